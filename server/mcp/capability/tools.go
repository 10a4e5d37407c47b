package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/relay4ai/mcp/server/mcp"
	"github.com/relay4ai/mcp/server/tasks"
	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

// ToolHandler is the body of one tool. Arguments have already been validated
// against the tool's input schema. The context is cancelled when the caller
// cancels the request; for task-augmented calls it carries the task execution
// instead.
type ToolHandler func(ctx context.Context, msg *shared.Message, arguments schema.Arguments) (schema.Meta, []schema.Content, error)

// ToolsCapability handles tool registration and invocation.
type ToolsCapability struct {
	manager  *mcp.Manager
	logger   *zap.Logger
	runner   *tasks.Runner
	mu       sync.RWMutex
	tools    map[string]*Tool
	handlers map[string]shared.MessageHandler
}

// Tool pairs a tool definition with its handler and compiled input schema.
type Tool struct {
	schema.Tool
	Handler  ToolHandler
	compiled *jsonschema.Schema
}

// NewToolsCapability creates a new ToolsCapability. runner may be nil, in
// which case task-augmented calls are rejected.
func NewToolsCapability(manager *mcp.Manager, runner *tasks.Runner, logger *zap.Logger) *ToolsCapability {
	tc := &ToolsCapability{
		manager: manager,
		logger:  logger,
		runner:  runner,
		tools:   make(map[string]*Tool),
	}
	tc.handlers = map[string]shared.MessageHandler{
		"tools/list": tc.handleToolsList,
		"tools/call": tc.handleToolsCall,
	}
	return tc
}

func (tc *ToolsCapability) GetHandlers() map[string]shared.MessageHandler {
	return tc.handlers
}

func (tc *ToolsCapability) SetCapabilities(s *schema.ServerCapabilities) {
	s.Tools = &schema.Capability{ListChanged: true}
	if tc.runner != nil {
		if s.Tasks == nil {
			s.Tasks = &schema.TasksCapability{}
		}
		if s.Tasks.Requests == nil {
			s.Tasks.Requests = &schema.TaskRequestsCapability{}
		}
		s.Tasks.Requests.Tools = &schema.TaskToolsCapability{Call: true}
	}
}

// compileInputSchema prepares argument validation for one tool definition.
func compileInputSchema(name string, inputSchema *schema.JSONSchemaProperty) (*jsonschema.Schema, error) {
	if inputSchema == nil {
		return nil, nil
	}
	data, err := json.Marshal(inputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input schema for tool %q: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	url := "inline://tools/" + name
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("invalid input schema for tool %q: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile input schema for tool %q: %w", name, err)
	}
	return compiled, nil
}

// AddTool registers a new tool and notifies connected clients.
func (tc *ToolsCapability) AddTool(name string, description string, inputSchema *schema.JSONSchemaProperty, annotations *schema.ToolAnnotations, handler ToolHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil for tool '%s'", name)
	}
	compiled, err := compileInputSchema(name, inputSchema)
	if err != nil {
		return err
	}

	tc.mu.Lock()
	if _, exists := tc.tools[name]; exists {
		tc.mu.Unlock()
		return fmt.Errorf("tool with name '%s' already exists", name)
	}
	tc.tools[name] = &Tool{
		Tool: schema.Tool{
			Name:        name,
			Description: description,
			InputSchema: inputSchema,
			Annotations: annotations,
		},
		Handler:  handler,
		compiled: compiled,
	}
	tc.mu.Unlock()

	tc.logger.Info("Added tool", zap.String("name", name))
	go tc.broadcastToolsChanged()
	return nil
}

// UpdateTool replaces an existing tool definition.
func (tc *ToolsCapability) UpdateTool(name string, description string, inputSchema *schema.JSONSchemaProperty, annotations *schema.ToolAnnotations, handler ToolHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil for tool '%s'", name)
	}
	compiled, err := compileInputSchema(name, inputSchema)
	if err != nil {
		return err
	}

	tc.mu.Lock()
	tool, exists := tc.tools[name]
	if !exists {
		tc.mu.Unlock()
		return fmt.Errorf("tool with name '%s' does not exist", name)
	}
	tool.Description = description
	tool.InputSchema = inputSchema
	tool.Annotations = annotations
	tool.Handler = handler
	tool.compiled = compiled
	tc.mu.Unlock()

	tc.logger.Info("Updated tool", zap.String("name", name))
	go tc.broadcastToolsChanged()
	return nil
}

// DeleteTool removes a tool by name.
func (tc *ToolsCapability) DeleteTool(name string) error {
	tc.mu.Lock()
	if _, exists := tc.tools[name]; !exists {
		tc.mu.Unlock()
		return fmt.Errorf("tool with name '%s' does not exist", name)
	}
	delete(tc.tools, name)
	tc.mu.Unlock()

	tc.logger.Info("Deleted tool", zap.String("name", name))
	go tc.broadcastToolsChanged()
	return nil
}

func (tc *ToolsCapability) broadcastToolsChanged() {
	if tc.manager == nil {
		tc.logger.Error("Cannot broadcast tool list changed: manager not set")
		return
	}
	tc.manager.NotifyEligibleSessions("notifications/tools/list_changed", nil)
}

func (tc *ToolsCapability) handleToolsList(ctx context.Context, msg *shared.Message) (interface{}, error) {
	logger := tc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "tools/list"))

	tc.mu.RLock()
	toolsList := make([]schema.Tool, 0, len(tc.tools))
	for _, tool := range tc.tools {
		toolsList = append(toolsList, tool.Tool)
	}
	tc.mu.RUnlock()

	logger.Debug("Returning tool list", zap.Int("count", len(toolsList)))
	return schema.ListToolsResult{Tools: toolsList}, nil
}

func (tc *ToolsCapability) handleToolsCall(ctx context.Context, msg *shared.Message) (interface{}, error) {
	logger := tc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "tools/call"))

	var params schema.CallToolRequestParams
	if msg.Params == nil {
		logger.Warn("Missing parameters in tools/call request")
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*msg.Params, &params); err != nil {
		logger.Error("Failed to unmarshal tools/call params", zap.Error(err))
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
	}
	logger = logger.With(zap.String("toolName", params.Name))

	tc.mu.RLock()
	tool, exists := tc.tools[params.Name]
	tc.mu.RUnlock()
	if !exists {
		logger.Warn("Tool not found")
		return nil, fmt.Errorf("tool not found: %s", params.Name)
	}

	if tool.compiled != nil {
		args := map[string]interface{}(params.Arguments)
		if args == nil {
			args = map[string]interface{}{}
		}
		if err := tool.compiled.Validate(args); err != nil {
			logger.Warn("Tool arguments failed schema validation", zap.Error(err))
			return nil, &shared.JSONRPCError{
				Code:    shared.JSONRPCErrorInvalidParams,
				Message: fmt.Sprintf("arguments do not match the tool's input schema: %v", err),
			}
		}
	}

	if params.Task != nil {
		return tc.launchTask(ctx, msg, tool, &params, logger)
	}

	result := tc.execute(ctx, msg, tool, &params, logger)
	return result, nil
}

// execute runs the tool handler and folds any handler error into the result,
// so tool failures travel as IsError rather than protocol errors.
func (tc *ToolsCapability) execute(ctx context.Context, msg *shared.Message, tool *Tool, params *schema.CallToolRequestParams, logger *zap.Logger) schema.CallToolResult {
	startTime := time.Now()
	meta, content, err := tool.Handler(ctx, msg, params.Arguments)
	duration := time.Since(startTime)

	if err != nil {
		logger.Error("Tool handler returned an error", zap.Error(err), zap.Duration("duration", duration))
		return schema.CallToolResult{
			Meta:    meta,
			Content: schema.NewTextContent(err.Error()),
			IsError: true,
		}
	}

	logger.Info("Tool call successful", zap.Duration("duration", duration))
	return schema.CallToolResult{
		Meta:    meta,
		Content: content,
	}
}

// launchTask answers a task-augmented call with the created task and runs the
// handler on a detached worker.
func (tc *ToolsCapability) launchTask(ctx context.Context, msg *shared.Message, tool *Tool, params *schema.CallToolRequestParams, logger *zap.Logger) (interface{}, error) {
	if tc.runner == nil {
		return nil, fmt.Errorf("task-augmented tools/call is not supported by this server")
	}

	task, err := tc.runner.Store().Create(ctx, params.Task, msg.ID, *msg.Params, msg.Session.GetID())
	if err != nil {
		logger.Warn("Failed to create task", zap.Error(err))
		if err == tasks.ErrResourceLimit {
			return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorResourceLimit, Message: "too many live tasks"}
		}
		return nil, err
	}
	logger.Info("Launching task-augmented tool call", zap.String("taskID", task.TaskID))

	session := msg.Session
	tc.runner.Launch(session, task, func(workerCtx context.Context) (interface{}, error) {
		return tc.execute(workerCtx, msg, tool, params, logger.With(zap.String("taskID", task.TaskID))), nil
	})

	return schema.CreateTaskResult{Task: *task}, nil
}
