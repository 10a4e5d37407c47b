package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

// CompletionResult is the result of a completion request.
type CompletionResult = schema.CompleteResult

// CompletionArgument names the argument being completed and its partial value.
type CompletionArgument = schema.CompleteArgument

// CompletionRequestParams are the completion/complete parameters. Ref needs
// custom handling: it is either a prompt or a resource reference.
type CompletionRequestParams = schema.CompletionRequestParams

type completionRefBase struct {
	Type string `json:"type"`
}

type completionPromptRef struct {
	completionRefBase
	Name string `json:"name"`
}

type completionResourceRef struct {
	completionRefBase
	URI string `json:"uri"`
}

// CompletionHandler produces suggestions for one argument. Suggestions are
// capped at 100 values; use HasMore/Total when truncating.
type CompletionHandler func(ctx context.Context, msg *shared.Message, arg CompletionArgument) (*schema.CompletionInfo, error)

var _ shared.IServerCapability = (*CompletionCapability)(nil)

// CompletionCapability handles completion requests for prompts and resources.
type CompletionCapability struct {
	logger             *zap.Logger
	mu                 sync.RWMutex
	promptCompleters   map[string]CompletionHandler // prompt name -> handler
	resourceCompleters map[string]CompletionHandler // resource URI -> handler
	handlers           map[string]shared.MessageHandler
}

// NewCompletionCapability creates a new instance of the CompletionCapability.
func NewCompletionCapability(logger *zap.Logger) *CompletionCapability {
	cc := &CompletionCapability{
		logger:             logger,
		promptCompleters:   make(map[string]CompletionHandler),
		resourceCompleters: make(map[string]CompletionHandler),
	}
	cc.handlers = map[string]shared.MessageHandler{
		"completion/complete": cc.handleCompletionComplete,
	}
	return cc
}

func (cc *CompletionCapability) GetHandlers() map[string]shared.MessageHandler {
	return cc.handlers
}

func (cc *CompletionCapability) SetCapabilities(s *schema.ServerCapabilities) {
	s.Completions = &struct{}{}
}

// AddPromptCompleter adds a completer for a specific prompt name.
func (cc *CompletionCapability) AddPromptCompleter(promptName string, handler CompletionHandler) {
	if handler == nil {
		cc.logger.Warn("Attempted to add nil handler for prompt completer", zap.String("promptName", promptName))
		return
	}
	cc.mu.Lock()
	cc.promptCompleters[promptName] = handler
	cc.mu.Unlock()
	cc.logger.Info("Added prompt completer", zap.String("promptName", promptName))
}

// AddResourceCompleter adds a completer for a specific resource URI.
func (cc *CompletionCapability) AddResourceCompleter(resourceURI string, handler CompletionHandler) {
	if handler == nil {
		cc.logger.Warn("Attempted to add nil handler for resource completer", zap.String("resourceURI", resourceURI))
		return
	}
	cc.mu.Lock()
	cc.resourceCompleters[resourceURI] = handler
	cc.mu.Unlock()
	cc.logger.Info("Added resource completer", zap.String("resourceURI", resourceURI))
}

// RemovePromptCompleter removes a prompt completer.
func (cc *CompletionCapability) RemovePromptCompleter(promptName string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	delete(cc.promptCompleters, promptName)
}

// RemoveResourceCompleter removes a resource completer.
func (cc *CompletionCapability) RemoveResourceCompleter(resourceURI string) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	delete(cc.resourceCompleters, resourceURI)
}

// findResourceCompleter finds the completer for a URI. Exact matches only.
func (cc *CompletionCapability) findResourceCompleter(uri string) (CompletionHandler, bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	handler, exists := cc.resourceCompleters[uri]
	return handler, exists
}

// handleCompletionComplete handles the "completion/complete" request.
func (cc *CompletionCapability) handleCompletionComplete(ctx context.Context, msg *shared.Message) (interface{}, error) {
	logger := cc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "completion/complete"))

	var params CompletionRequestParams
	if msg.Params == nil {
		logger.Warn("Missing parameters in completion request")
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*msg.Params, &params); err != nil {
		logger.Error("Failed to unmarshal completion params", zap.Error(err))
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
	}

	var refType completionRefBase
	if err := json.Unmarshal(params.Ref, &refType); err != nil {
		logger.Error("Failed to unmarshal completion reference type", zap.Error(err))
		return nil, fmt.Errorf("invalid reference in parameters: %w", err)
	}

	var handler CompletionHandler
	var exists bool

	switch refType.Type {
	case "ref/prompt":
		var promptRef completionPromptRef
		if err := json.Unmarshal(params.Ref, &promptRef); err != nil {
			return nil, fmt.Errorf("invalid prompt reference: %w", err)
		}
		cc.mu.RLock()
		handler, exists = cc.promptCompleters[promptRef.Name]
		cc.mu.RUnlock()
		if !exists {
			logger.Warn("No completion handler found for prompt", zap.String("promptName", promptRef.Name))
			return nil, fmt.Errorf("no completion handler for prompt: %s", promptRef.Name)
		}

	case "ref/resource":
		var resourceRef completionResourceRef
		if err := json.Unmarshal(params.Ref, &resourceRef); err != nil {
			return nil, fmt.Errorf("invalid resource reference: %w", err)
		}
		handler, exists = cc.findResourceCompleter(resourceRef.URI)
		if !exists {
			logger.Warn("No completion handler found for resource", zap.String("resourceURI", resourceRef.URI))
			return nil, fmt.Errorf("no completion handler for resource: %s", resourceRef.URI)
		}

	default:
		logger.Warn("Unsupported completion reference type", zap.String("type", refType.Type))
		return nil, fmt.Errorf("unsupported reference type: %s", refType.Type)
	}

	completionInfo, err := handler(ctx, msg, params.Argument)
	if err != nil {
		logger.Error("Completion handler returned an error", zap.Error(err))
		return nil, fmt.Errorf("completion handler failed: %w", err)
	}
	if completionInfo == nil {
		completionInfo = GetDefaultCompletionInfo()
	}
	if len(completionInfo.Values) > 100 {
		truncated := *completionInfo
		truncated.Values = completionInfo.Values[:100]
		hasMore := true
		truncated.HasMore = &hasMore
		completionInfo = &truncated
	}

	logger.Debug("Completion successful", zap.Int("suggestionCount", len(completionInfo.Values)))
	return CompletionResult{Completion: *completionInfo}, nil
}

// GetDefaultCompletionInfo returns empty completion info for handlers with no
// suggestions.
func GetDefaultCompletionInfo() *schema.CompletionInfo {
	return &schema.CompletionInfo{
		Values: []string{},
	}
}
