package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relay4ai/mcp/server/mcp"
	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

// PromptHandler renders one prompt. Template arguments arrive in the message
// params.
type PromptHandler func(ctx context.Context, msg *shared.Message, arguments map[string]string) (schema.Meta, []schema.PromptMessage, error)

var _ shared.IServerCapability = (*PromptsCapability)(nil)

// PromptsCapability handles prompt management and related requests.
type PromptsCapability struct {
	logger    *zap.Logger
	manager   mcp.ISessionManager
	mu        sync.RWMutex
	prompts   map[string]*Prompt
	templates map[string]*Template
	handlers  map[string]shared.MessageHandler
}

// Prompt represents a fixed prompt.
type Prompt struct {
	schema.Prompt
	Handler      PromptHandler
	LastModified time.Time
}

// Template represents a prompt template with arguments.
type Template struct {
	schema.Prompt
	Handler      PromptHandler
	LastModified time.Time
}

// NewPromptsCapability creates a new PromptsCapability.
func NewPromptsCapability(logger *zap.Logger, manager mcp.ISessionManager) *PromptsCapability {
	pc := &PromptsCapability{
		logger:    logger.Named("prompts-capability"),
		manager:   manager,
		prompts:   make(map[string]*Prompt),
		templates: make(map[string]*Template),
	}
	pc.handlers = map[string]shared.MessageHandler{
		"prompts/list": pc.handlePromptsList,
		"prompts/get":  pc.handlePromptsGet,
	}
	return pc
}

func (pc *PromptsCapability) GetHandlers() map[string]shared.MessageHandler {
	return pc.handlers
}

func (pc *PromptsCapability) SetCapabilities(s *schema.ServerCapabilities) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	if len(pc.prompts) > 0 || len(pc.templates) > 0 {
		s.Prompts = &schema.Capability{ListChanged: true}
	}
}

// AddPrompt adds a new prompt (not a template) with the specified details.
func (pc *PromptsCapability) AddPrompt(name string, description string, handler PromptHandler) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if _, exists := pc.prompts[name]; exists {
		return fmt.Errorf("prompt '%s' already exists", name)
	}
	if _, exists := pc.templates[name]; exists {
		return fmt.Errorf("template '%s' already exists", name)
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil for prompt '%s'", name)
	}

	pc.prompts[name] = &Prompt{
		Prompt: schema.Prompt{
			Name:        name,
			Description: description,
		},
		Handler:      handler,
		LastModified: time.Now(),
	}
	pc.logger.Info("Added prompt", zap.String("name", name))
	go pc.broadcastPromptsChanged()
	return nil
}

// UpdatePrompt updates an existing prompt.
func (pc *PromptsCapability) UpdatePrompt(name string, description string, handler PromptHandler) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	prompt, exists := pc.prompts[name]
	if !exists {
		return fmt.Errorf("prompt '%s' not found", name)
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil for prompt '%s'", name)
	}
	prompt.Description = description
	prompt.Handler = handler
	prompt.LastModified = time.Now()
	pc.logger.Info("Updated prompt", zap.String("name", name))
	go pc.broadcastPromptsChanged()
	return nil
}

// DeletePrompt removes a prompt by name.
func (pc *PromptsCapability) DeletePrompt(name string) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if _, exists := pc.prompts[name]; !exists {
		return fmt.Errorf("prompt '%s' not found", name)
	}
	delete(pc.prompts, name)
	pc.logger.Info("Deleted prompt", zap.String("name", name))
	go pc.broadcastPromptsChanged()
	return nil
}

// AddTemplate adds a new prompt template.
func (pc *PromptsCapability) AddTemplate(name string, description string, arguments []schema.PromptArgument, handler PromptHandler) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if _, exists := pc.templates[name]; exists {
		return fmt.Errorf("template '%s' already exists", name)
	}
	if _, exists := pc.prompts[name]; exists {
		return fmt.Errorf("prompt '%s' already exists", name)
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil for template '%s'", name)
	}

	pc.templates[name] = &Template{
		Prompt: schema.Prompt{
			Name:        name,
			Description: description,
			Arguments:   arguments,
		},
		Handler:      handler,
		LastModified: time.Now(),
	}
	pc.logger.Info("Added prompt template", zap.String("name", name))
	go pc.broadcastPromptsChanged()
	return nil
}

// DeleteTemplate removes a prompt template by name.
func (pc *PromptsCapability) DeleteTemplate(name string) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if _, exists := pc.templates[name]; !exists {
		return fmt.Errorf("template '%s' not found", name)
	}
	delete(pc.templates, name)
	pc.logger.Info("Deleted prompt template", zap.String("name", name))
	go pc.broadcastPromptsChanged()
	return nil
}

func (pc *PromptsCapability) broadcastPromptsChanged() {
	if pc.manager == nil {
		pc.logger.Error("Manager not set for broadcast")
		return
	}
	pc.manager.NotifyEligibleSessions("notifications/prompts/list_changed", nil)
}

// handlePromptsList handles the "prompts/list" request.
func (pc *PromptsCapability) handlePromptsList(ctx context.Context, msg *shared.Message) (interface{}, error) {
	logger := pc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "prompts/list"))

	pc.mu.RLock()
	allPrompts := make([]schema.Prompt, 0, len(pc.prompts)+len(pc.templates))
	for _, prompt := range pc.prompts {
		allPrompts = append(allPrompts, prompt.Prompt)
	}
	for _, template := range pc.templates {
		allPrompts = append(allPrompts, template.Prompt)
	}
	pc.mu.RUnlock()

	logger.Debug("Returning prompt list", zap.Int("count", len(allPrompts)))
	return schema.ListPromptsResult{Prompts: allPrompts}, nil
}

// handlePromptsGet handles the "prompts/get" request.
func (pc *PromptsCapability) handlePromptsGet(ctx context.Context, msg *shared.Message) (interface{}, error) {
	logger := pc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "prompts/get"))

	var params schema.GetPromptRequestParams
	if msg.Params == nil {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "Missing params"}
	}
	if err := json.Unmarshal(*msg.Params, &params); err != nil {
		logger.Error("Failed to unmarshal get params", zap.Error(err))
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("Invalid parameters: %v", err)}
	}
	logger = logger.With(zap.String("promptName", params.Name))

	pc.mu.RLock()
	prompt, promptExists := pc.prompts[params.Name]
	template, templateExists := pc.templates[params.Name]
	pc.mu.RUnlock()

	var handler PromptHandler
	var description string
	var required []schema.PromptArgument
	switch {
	case promptExists:
		handler = prompt.Handler
		description = prompt.Description
	case templateExists:
		handler = template.Handler
		description = template.Description
		required = template.Arguments
	default:
		logger.Warn("Prompt/template not found")
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorServerError, Message: fmt.Sprintf("Prompt or template not found: %s", params.Name)}
	}

	for _, arg := range required {
		if !arg.Required {
			continue
		}
		if _, ok := params.Arguments[arg.Name]; !ok {
			return nil, &shared.JSONRPCError{
				Code:    shared.JSONRPCErrorInvalidParams,
				Message: fmt.Sprintf("missing required prompt argument %q", arg.Name),
			}
		}
	}

	meta, messages, err := handler(ctx, msg, params.Arguments)
	if err != nil {
		logger.Error("Prompt handler error", zap.Error(err))
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorServerError, Message: fmt.Sprintf("Handler failed: %v", err)}
	}

	return schema.GetPromptResult{
		Meta:        meta,
		Description: description,
		Messages:    messages,
	}, nil
}
