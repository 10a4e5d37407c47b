package schema

import (
	"encoding/json"
)

// PROTOCOL_VERSION is the latest protocol version this schema describes.
const PROTOCOL_VERSION = "2025-06-18"

// PROTOCOL_VERSION_20250326 is the previous streamable-HTTP protocol version.
const PROTOCOL_VERSION_20250326 = "2025-03-26"

// Implementation describes the name and version of an MCP implementation.
type Implementation struct {
	Name    string `json:"name"`            // Implementation name
	Title   string `json:"title,omitempty"` // Optional human-readable title
	Version string `json:"version"`         // Implementation version
}

// Capability marks a feature a peer offers, with optional list-change notifications.
type Capability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// CapabilityWithSubscribe marks a feature that also supports per-item subscriptions.
type CapabilityWithSubscribe struct {
	ListChanged bool `json:"listChanged,omitempty"`
	Subscribe   bool `json:"subscribe,omitempty"`
}

// SamplingCapability describes what the client's sampling support covers.
type SamplingCapability struct {
	// Present if the client honors includeContext on createMessage requests.
	Context *struct{} `json:"context,omitempty"`
	// Present if the client supports tool use during sampling.
	Tools *struct{} `json:"tools,omitempty"`
}

// ElicitationCapability describes which elicitation modes the client accepts.
type ElicitationCapability struct {
	Form bool `json:"form,omitempty"` // Schema-driven form elicitation
	URL  bool `json:"url,omitempty"`  // Out-of-band URL elicitation
}

// TaskToolsCapability flags tool requests that may be task-augmented.
type TaskToolsCapability struct {
	Call bool `json:"call,omitempty"`
}

// TaskSamplingCapability flags sampling requests that may be task-augmented.
type TaskSamplingCapability struct {
	CreateMessage bool `json:"createMessage,omitempty"`
}

// TaskElicitationCapability flags elicitation requests that may be task-augmented.
type TaskElicitationCapability struct {
	Create bool `json:"create,omitempty"`
}

// TaskRequestsCapability enumerates the requests a receiver accepts in
// task-augmented form.
type TaskRequestsCapability struct {
	Tools       *TaskToolsCapability       `json:"tools,omitempty"`
	Sampling    *TaskSamplingCapability    `json:"sampling,omitempty"`
	Elicitation *TaskElicitationCapability `json:"elicitation,omitempty"`
}

// TasksCapability describes a peer's task support. A requestor must not
// attach task metadata to a request unless the receiver advertised the
// matching per-method flag.
type TasksCapability struct {
	List     *struct{}               `json:"list,omitempty"`   // tasks/list supported
	Cancel   *struct{}               `json:"cancel,omitempty"` // tasks/cancel supported
	Requests *TaskRequestsCapability `json:"requests,omitempty"`
}

// SupportsRequest reports whether the given method may be task-augmented
// against this capability set.
func (tc *TasksCapability) SupportsRequest(method string) bool {
	if tc == nil || tc.Requests == nil {
		return false
	}
	switch method {
	case "tools/call":
		return tc.Requests.Tools != nil && tc.Requests.Tools.Call
	case "sampling/createMessage":
		return tc.Requests.Sampling != nil && tc.Requests.Sampling.CreateMessage
	case "elicitation/create":
		return tc.Requests.Elicitation != nil && tc.Requests.Elicitation.Create
	default:
		return false
	}
}

// ClientCapabilities describes capabilities a client may support.
type ClientCapabilities struct {
	Experimental map[string]json.RawMessage `json:"experimental,omitempty"` // Non-standard capabilities
	Roots        *Capability                `json:"roots,omitempty"`        // Present if the client can list filesystem roots
	Sampling     *SamplingCapability        `json:"sampling,omitempty"`     // Present if the client supports LLM sampling
	Elicitation  *ElicitationCapability     `json:"elicitation,omitempty"`  // Present if the client supports elicitation
	Tasks        *TasksCapability           `json:"tasks,omitempty"`        // Present if the client accepts task-augmented requests
}

// ServerCapabilities describes features the server supports.
type ServerCapabilities struct {
	Experimental map[string]json.RawMessage `json:"experimental,omitempty"` // Experimental, non-standard capabilities
	Logging      *struct{}                  `json:"logging,omitempty"`      // Present if the server supports sending log messages to the client
	Completions  *struct{}                  `json:"completions,omitempty"`  // Present if the server supports argument autocompletion suggestions
	Prompts      *Capability                `json:"prompts,omitempty"`      // Present if the server offers any prompt templates
	Resources    *CapabilityWithSubscribe   `json:"resources,omitempty"`    // Present if the server offers any resources to read
	Tools        *Capability                `json:"tools,omitempty"`        // Present if the server offers any tools to call
	Tasks        *TasksCapability           `json:"tasks,omitempty"`        // Present if the server accepts task-augmented requests
}

// InitializeRequestParams contains parameters for initialization.
type InitializeRequestParams struct {
	Capabilities    ClientCapabilities `json:"capabilities"`    // Client capabilities
	ClientInfo      Implementation     `json:"clientInfo"`      // Client implementation info
	ProtocolVersion string             `json:"protocolVersion"` // Latest protocol version the client supports
}

// InitializeRequest is sent by the client to start initialization.
// This request is sent from the client to the server when it first connects.
type InitializeRequest struct {
	Method string                  `json:"method"` // const: "initialize"
	Params InitializeRequestParams `json:"params"`
}

// InitializeResult is the server's response to initialization.
type InitializeResult struct {
	Meta            Meta               `json:"_meta,omitempty"`        // Reserved for metadata
	ProtocolVersion string             `json:"protocolVersion"`        // Server's chosen protocol version
	Capabilities    ServerCapabilities `json:"capabilities"`           // Server capabilities
	ServerInfo      Implementation     `json:"serverInfo"`             // Server implementation info
	Instructions    string             `json:"instructions,omitempty"` // Instructions describing how to use the server and its features
}

// InitializedNotification informs the server that initialization is complete.
// This notification is sent from the client to the server after initialization has finished.
type InitializedNotification struct {
	Method string                 `json:"method"` // const: "notifications/initialized"
	Params map[string]interface{} `json:"params,omitempty"`
}
