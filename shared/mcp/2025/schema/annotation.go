package schema

// Role represents the sender or recipient of messages and data in a conversation.
type Role = string

// Role constants
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Annotations contain optional metadata about objects used by the client.
type Annotations struct {
	// Describes who the intended customer of this object or data is.
	// It can include multiple entries to indicate content useful for multiple audiences (e.g., `["user", "assistant"]`).
	Audience []Role `json:"audience,omitempty"`
	// Describes how important this data is for operating the server.
	// 1 means "most important" (effectively required), 0 means "least
	// important" (entirely optional).
	Priority *float64 `json:"priority,omitempty"`
}
