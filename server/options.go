package server

import (
	"errors"
	"time"

	"github.com/relay4ai/mcp/server/mcp/capability"
	"github.com/relay4ai/mcp/server/tasks"
	"github.com/relay4ai/mcp/server/transport"
	"github.com/relay4ai/mcp/shared"
	schema "github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

// WithMCPPrompt is a server option to add an MCP prompt.
func WithMCPPrompt(name string, description string, handler capability.PromptHandler) ServerOption {
	return func(b *ServerBuilder) error {
		promptsCap, err := b.EnsurePromptsCapability()
		if err != nil {
			return err
		}
		return promptsCap.AddPrompt(name, description, handler)
	}
}

// WithMCPPromptTemplate is a server option to add an MCP prompt template.
func WithMCPPromptTemplate(name string, description string, arguments []schema.PromptArgument, handler capability.PromptHandler) ServerOption {
	return func(b *ServerBuilder) error {
		promptsCap, err := b.EnsurePromptsCapability()
		if err != nil {
			return err
		}
		return promptsCap.AddTemplate(name, description, arguments, handler)
	}
}

// WithMCPResource is a server option to add an MCP resource.
func WithMCPResource(uri string, name string, description string, mimeType string, handler capability.ResourceHandler) ServerOption {
	return func(b *ServerBuilder) error {
		resCap, err := b.EnsureResourcesCapability()
		if err != nil {
			return err
		}
		return resCap.AddResource(uri, name, description, mimeType, handler)
	}
}

// WithMCPResourceTemplate is a server option to add an MCP resource template.
func WithMCPResourceTemplate(uriTemplate string, name string, description string, mimeType string, handler capability.ResourceHandler) ServerOption {
	return func(b *ServerBuilder) error {
		resCap, err := b.EnsureResourcesCapability()
		if err != nil {
			return err
		}
		return resCap.AddResourceTemplate(uriTemplate, name, description, mimeType, handler)
	}
}

// WithMCPSubscriptionHandler is a server option to add a handler for
// resource subscription events.
func WithMCPSubscriptionHandler(handler capability.SubscriptionHandler) ServerOption {
	return func(b *ServerBuilder) error {
		resCap, err := b.EnsureResourcesCapability()
		if err != nil {
			return err
		}
		resCap.AddSubscriptionHandler(handler)
		return nil
	}
}

// WithMCPTool is a server option to add an MCP tool.
func WithMCPTool(name string, description string, inputSchema *schema.JSONSchemaProperty, annotations *schema.ToolAnnotations, handler capability.ToolHandler) ServerOption {
	return func(b *ServerBuilder) error {
		toolsCap, err := b.EnsureToolsCapability()
		if err != nil {
			return err
		}
		return toolsCap.AddTool(name, description, inputSchema, annotations, handler)
	}
}

// WithMCPPromptCompleter adds argument completion for a prompt.
func WithMCPPromptCompleter(promptName string, handler capability.CompletionHandler) ServerOption {
	return func(b *ServerBuilder) error {
		completionCap, err := b.EnsureCompletionCapability()
		if err != nil {
			return err
		}
		completionCap.AddPromptCompleter(promptName, handler)
		return nil
	}
}

// WithMCPResourceCompleter adds argument completion for a resource.
func WithMCPResourceCompleter(resourceURI string, handler capability.CompletionHandler) ServerOption {
	return func(b *ServerBuilder) error {
		completionCap, err := b.EnsureCompletionCapability()
		if err != nil {
			return err
		}
		completionCap.AddResourceCompleter(resourceURI, handler)
		return nil
	}
}

// WithMCPLogging enables client-tunable log notifications.
func WithMCPLogging() ServerOption {
	return func(b *ServerBuilder) error {
		_, err := b.EnsureLoggingCapability()
		return err
	}
}

// WithMessageFilter wraps every dispatched message handler. Filters apply in
// registration order; the last-registered filter runs outermost.
func WithMessageFilter(filters ...shared.MessageFilter) ServerOption {
	return func(b *ServerBuilder) error {
		b.manager.AddFilter(filters...)
		return nil
	}
}

// WithInstructions sets the usage instructions advertised on initialize.
func WithInstructions(instructions string) ServerOption {
	return func(b *ServerBuilder) error {
		b.manager.SetInstructions(instructions)
		return nil
	}
}

// WithTaskStore replaces the config-selected task store backend.
func WithTaskStore(store tasks.Store) ServerOption {
	return func(b *ServerBuilder) error {
		if store == nil {
			return errors.New("task store cannot be nil")
		}
		if b.runner != nil {
			return errors.New("task store must be set before any tool is registered")
		}
		b.taskStore = store
		return nil
	}
}

// WithListenAddr overrides the listen address from the config.
func WithListenAddr(addr string) ServerOption {
	return func(b *ServerBuilder) error {
		if addr != "" {
			b.listenAddr = addr
		}
		return nil
	}
}

// WithSessionTimeout configures the idle session timeout.
func WithSessionTimeout(timeout time.Duration) ServerOption {
	return func(b *ServerBuilder) error {
		b.transportOptions = append(b.transportOptions, transport.WithSessionTimeout(timeout))
		return nil
	}
}

// WithAuthManager replaces the transport's authentication manager.
func WithAuthManager(authManager transport.AuthenticationManager) ServerOption {
	return func(b *ServerBuilder) error {
		b.transportOptions = append(b.transportOptions, transport.WithAuthManager(authManager))
		return nil
	}
}

// WithEventStore replaces the transport's in-memory SSE event store.
func WithEventStore(store transport.EventStore) ServerOption {
	return func(b *ServerBuilder) error {
		b.transportOptions = append(b.transportOptions, transport.WithEventStore(store))
		return nil
	}
}

// WithTransportOptions forwards raw transport options.
func WithTransportOptions(options ...transport.TransportOption) ServerOption {
	return func(b *ServerBuilder) error {
		b.transportOptions = append(b.transportOptions, options...)
		return nil
	}
}
