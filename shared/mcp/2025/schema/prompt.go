package schema

import "encoding/json"

// PromptMessage describes a message returned as part of a prompt.
// This is similar to `SamplingMessage`, but also supports the embedding of
// resources from the MCP server.
type PromptMessage struct {
	Role    Role    `json:"role"`    // Message sender/recipient (user or assistant)
	Content Content `json:"content"` // Message content (TextContent, ImageContent, AudioContent, or EmbeddedResource)
}

func (m *PromptMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := UnmarshalContent(raw.Content)
	if err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = content
	return nil
}

// PromptArgument describes an argument that a prompt can accept.
type PromptArgument struct {
	Description string `json:"description,omitempty"` // Argument description
	Name        string `json:"name"`                  // Argument name
	Required    bool   `json:"required,omitempty"`    // Whether argument is required
}

// Prompt describes a prompt or prompt template that the server offers.
type Prompt struct {
	Name        string           `json:"name"`                  // The name of the prompt or prompt template
	Description string           `json:"description,omitempty"` // An optional description of what this prompt provides
	Arguments   []PromptArgument `json:"arguments,omitempty"`   // A list of arguments to use for templating the prompt
}

// ListPromptsRequest requests a list of available prompts.
// Sent from the client to request a list of prompts and prompt templates the server has.
type ListPromptsRequest struct {
	Method string                   `json:"method"` // const: "prompts/list"
	Params ListPromptsRequestParams `json:"params,omitempty"`
}

// ListPromptsRequestParams contains parameters for prompt listing requests.
type ListPromptsRequestParams struct {
	PaginatedRequestParams // Embeds pagination cursor
}

// ListPromptsResult is the server's response to a prompts/list request.
type ListPromptsResult struct {
	PaginatedResult          // Embeds next cursor
	Meta            Meta     `json:"_meta,omitempty"` // Reserved for metadata
	Prompts         []Prompt `json:"prompts"`         // Available prompts
}

// GetPromptRequest requests a specific prompt from the server.
// Used by the client to get a prompt provided by the server.
type GetPromptRequest struct {
	Method string                 `json:"method"` // const: "prompts/get"
	Params GetPromptRequestParams `json:"params"`
}

// GetPromptRequestParams contains parameters for prompt retrieval.
type GetPromptRequestParams struct {
	Name      string            `json:"name"`                // The name of the prompt or prompt template
	Arguments map[string]string `json:"arguments,omitempty"` // Arguments to use for templating the prompt
}

// GetPromptResult contains the retrieved prompt.
// The server's response to a prompts/get request from the client.
type GetPromptResult struct {
	Meta        Meta            `json:"_meta,omitempty"`       // Reserved for metadata
	Description string          `json:"description,omitempty"` // An optional description for the prompt
	Messages    []PromptMessage `json:"messages"`              // Prompt messages
}

// PromptListChangedNotification informs that available prompts have changed.
// An optional notification from the server to the client.
type PromptListChangedNotification struct {
	Method string                 `json:"method"` // const: "notifications/prompts/list_changed"
	Params map[string]interface{} `json:"params,omitempty"`
}

// PromptReference identifies a prompt.
type PromptReference struct {
	Name string `json:"name"` // Prompt name
	Type string `json:"type"` // const: "ref/prompt"
}
