package shared

import "github.com/relay4ai/mcp/shared/mcp/2025/schema"

type ICapability interface {
	GetHandlers() map[string]MessageHandler
}

// IServerCapability contributes entries to the capabilities object a server
// advertises during initialization.
type IServerCapability interface {
	SetCapabilities(s *schema.ServerCapabilities)
}

// IClientCapability contributes entries to the capabilities object a client
// advertises during initialization.
type IClientCapability interface {
	SetCapabilities(s *schema.ClientCapabilities)
}
