package schema

import "encoding/json"

// Stop reasons reported by clients on sampling results. Passed through
// verbatim; no re-mapping onto other vocabularies.
const (
	StopReasonEndTurn      = "endTurn"
	StopReasonStopSequence = "stopSequence"
	StopReasonMaxTokens    = "maxTokens"
)

// ModelHint provides hints for model selection.
type ModelHint struct {
	Name string `json:"name,omitempty"` // Hint for model name
}

// ModelPreferences expresses the server's preferences for model selection,
// requested of the client during sampling. Always advisory; the client MAY
// ignore them.
type ModelPreferences struct {
	CostPriority         *float64    `json:"costPriority,omitempty"`         // Priority for cost (0-1)
	Hints                []ModelHint `json:"hints,omitempty"`                // Optional model selection hints
	IntelligencePriority *float64    `json:"intelligencePriority,omitempty"` // Priority for capabilities (0-1)
	SpeedPriority        *float64    `json:"speedPriority,omitempty"`        // Priority for speed (0-1)
}

// SamplingMessage describes a message issued to or received from an LLM API.
type SamplingMessage struct {
	Role    Role    `json:"role"`    // Message sender (user or assistant)
	Content Content `json:"content"` // Message content (TextContent, ImageContent, or AudioContent)
}

func (m *SamplingMessage) UnmarshalJSON(data []byte) error {
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

// CreateMessageRequest requests LLM sampling from the client.
// Sent from the server to the client.
type CreateMessageRequest struct {
	Method string                     `json:"method"` // const: "sampling/createMessage"
	Params CreateMessageRequestParams `json:"params"`
}

// CreateMessageRequestParams contains parameters for LLM sampling.
type CreateMessageRequestParams struct {
	Messages         []SamplingMessage `json:"messages"`                   // Messages to use for sampling
	ModelPreferences *ModelPreferences `json:"modelPreferences,omitempty"` // Server's preferences for model selection
	SystemPrompt     string            `json:"systemPrompt,omitempty"`     // Optional system prompt
	IncludeContext   string            `json:"includeContext,omitempty"`   // Deprecated context inclusion ("none", "thisServer", "allServers"); accepted, never emitted
	Temperature      *float64          `json:"temperature,omitempty"`      // Sampling temperature
	MaxTokens        int               `json:"maxTokens"`                  // Maximum tokens to sample
	StopSequences    []string          `json:"stopSequences,omitempty"`    // Sequences that should stop sampling
	Metadata         interface{}       `json:"metadata,omitempty"`         // Optional provider-specific metadata
}

// CreateMessageResult contains the result of LLM sampling.
// The client's response to a sampling/createMessage request.
type CreateMessageResult struct {
	Meta       Meta    `json:"_meta,omitempty"`      // Reserved for metadata
	Role       Role    `json:"role"`                 // Role of the generated message (usually "assistant")
	Content    Content `json:"content"`              // Generated message content (TextContent, ImageContent, AudioContent)
	Model      string  `json:"model"`                // Name of the model that generated the message
	StopReason string  `json:"stopReason,omitempty"` // Reason why sampling stopped, if known
}

func (r *CreateMessageResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Meta       Meta            `json:"_meta"`
		Role       Role            `json:"role"`
		Content    json.RawMessage `json:"content"`
		Model      string          `json:"model"`
		StopReason string          `json:"stopReason"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := UnmarshalContent(raw.Content)
	if err != nil {
		return err
	}
	r.Meta = raw.Meta
	r.Role = raw.Role
	r.Content = content
	r.Model = raw.Model
	r.StopReason = raw.StopReason
	return nil
}
