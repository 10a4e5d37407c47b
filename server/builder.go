package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/relay4ai/mcp/server/mcp"
	"github.com/relay4ai/mcp/server/mcp/capability"
	"github.com/relay4ai/mcp/server/tasks"
	"github.com/relay4ai/mcp/server/transport"
	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/config"
	"go.uber.org/zap"
)

type ServerBuilder struct {
	ctx          context.Context
	logger       *zap.Logger
	cfg          config.IConfig
	listenAddr   string
	manager      *mcp.Manager
	mux          *http.ServeMux
	capabilities []shared.IServerCapability

	// Transport options are collected and applied when the transport is built.
	transportOptions []transport.TransportOption

	// Task subsystem (created lazily, only when a tool wants it)
	taskStore tasks.Store
	runner    *tasks.Runner

	// Capability instances (created lazily)
	baseCap       *capability.BaseCapability
	toolsCap      *capability.ToolsCapability
	resourcesCap  *capability.ResourcesCapability
	promptsCap    *capability.PromptsCapability
	completionCap *capability.CompletionCapability
	loggingCap    *capability.LoggingCapability
	tasksCap      *capability.TasksCapability
}

// EnsureMCPBaseCapability creates the BaseCapability if it doesn't exist.
func (b *ServerBuilder) EnsureMCPBaseCapability() error {
	if b.baseCap == nil {
		b.logger.Debug("Initializing BaseCapability")
		b.baseCap = capability.NewBase(b.logger, b.manager)
		b.capabilities = append(b.capabilities, b.baseCap)
	}
	return nil
}

// EnsureTaskRunner creates the task store and runner if they don't exist,
// plus the polling capability serving tasks/get and friends.
func (b *ServerBuilder) EnsureTaskRunner() (*tasks.Runner, error) {
	if b.runner != nil {
		return b.runner, nil
	}
	if err := b.EnsureMCPBaseCapability(); err != nil {
		return nil, err
	}

	if b.taskStore == nil {
		store, err := buildTaskStore(b.cfg, b.logger)
		if err != nil {
			return nil, err
		}
		b.taskStore = store
	}
	b.runner = tasks.NewRunner(b.taskStore, b.logger)

	b.logger.Debug("Initializing TasksCapability")
	b.tasksCap = capability.NewTasksCapability(b.runner, b.logger)
	b.capabilities = append(b.capabilities, b.tasksCap)
	return b.runner, nil
}

// buildTaskStore picks the store backend from config.
func buildTaskStore(cfg config.IConfig, logger *zap.Logger) (tasks.Store, error) {
	backend, err := cfg.TaskStoreBackend()
	if err != nil {
		return nil, fmt.Errorf("failed to get task store backend: %w", err)
	}
	defaultTTL, err := cfg.TaskDefaultTTL()
	if err != nil {
		return nil, err
	}
	sweepInterval, err := cfg.TaskSweepInterval()
	if err != nil {
		return nil, err
	}
	pageSize, err := cfg.TaskListPageSize()
	if err != nil {
		return nil, err
	}
	opts := &tasks.StoreOptions{
		DefaultTTL:    defaultTTL,
		SweepInterval: sweepInterval,
		PageSize:      pageSize,
	}

	switch backend {
	case "postgres":
		databaseURL, err := cfg.TaskDatabaseURL()
		if err != nil {
			return nil, fmt.Errorf("failed to get task database URL: %w", err)
		}
		return tasks.NewPostgresStore(databaseURL, logger, opts)
	case "", "memory":
		return tasks.NewMemoryStore(logger, opts), nil
	default:
		return nil, fmt.Errorf("unknown task store backend %q", backend)
	}
}

// EnsureToolsCapability creates the ToolsCapability if it doesn't exist. The
// task runner is wired in so tools can be invoked task-augmented.
func (b *ServerBuilder) EnsureToolsCapability() (*capability.ToolsCapability, error) {
	if err := b.EnsureMCPBaseCapability(); err != nil {
		return nil, err
	}
	if b.toolsCap == nil {
		runner, err := b.EnsureTaskRunner()
		if err != nil {
			return nil, err
		}
		b.logger.Debug("Initializing ToolsCapability")
		b.toolsCap = capability.NewToolsCapability(b.manager, runner, b.logger)
		b.capabilities = append(b.capabilities, b.toolsCap)
	}
	return b.toolsCap, nil
}

// EnsurePromptsCapability creates the PromptsCapability if it doesn't exist.
func (b *ServerBuilder) EnsurePromptsCapability() (*capability.PromptsCapability, error) {
	if err := b.EnsureMCPBaseCapability(); err != nil {
		return nil, err
	}
	if b.promptsCap == nil {
		b.logger.Debug("Initializing PromptsCapability")
		b.promptsCap = capability.NewPromptsCapability(b.logger, b.manager)
		b.capabilities = append(b.capabilities, b.promptsCap)
	}
	return b.promptsCap, nil
}

// EnsureResourcesCapability creates the ResourcesCapability if it doesn't exist.
func (b *ServerBuilder) EnsureResourcesCapability() (*capability.ResourcesCapability, error) {
	if err := b.EnsureMCPBaseCapability(); err != nil {
		return nil, err
	}
	if b.resourcesCap == nil {
		b.logger.Debug("Initializing ResourcesCapability")
		b.resourcesCap = capability.NewResourcesCapability(b.manager, b.logger)
		b.capabilities = append(b.capabilities, b.resourcesCap)
	}
	return b.resourcesCap, nil
}

// EnsureCompletionCapability creates the CompletionCapability if it doesn't exist.
func (b *ServerBuilder) EnsureCompletionCapability() (*capability.CompletionCapability, error) {
	if err := b.EnsureMCPBaseCapability(); err != nil {
		return nil, err
	}
	if b.completionCap == nil {
		b.logger.Debug("Initializing CompletionCapability")
		b.completionCap = capability.NewCompletionCapability(b.logger)
		b.capabilities = append(b.capabilities, b.completionCap)
	}
	return b.completionCap, nil
}

// EnsureLoggingCapability creates the LoggingCapability if it doesn't exist.
func (b *ServerBuilder) EnsureLoggingCapability() (*capability.LoggingCapability, error) {
	if err := b.EnsureMCPBaseCapability(); err != nil {
		return nil, err
	}
	if b.loggingCap == nil {
		b.logger.Debug("Initializing LoggingCapability")
		b.loggingCap = capability.NewLoggingCapability(b.logger)
		b.capabilities = append(b.capabilities, b.loggingCap)
	}
	return b.loggingCap, nil
}

// ServerOption defines a function type for configuring the ServerBuilder.
type ServerOption func(*ServerBuilder) error
