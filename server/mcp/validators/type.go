package validators

import (
	"fmt"
	"sync"

	"github.com/relay4ai/mcp/shared"
)

// MethodValidator validates that the method in a message exists in the MCP specification
type MethodValidator struct {
	validMethods map[string]bool
	mu           sync.RWMutex
}

// NewMethodValidator creates a new method validator
func NewMethodValidator() *MethodValidator {
	v := &MethodValidator{
		validMethods: map[string]bool{
			// Client requests
			"initialize":               true,
			"ping":                     true,
			"tools/list":               true,
			"tools/call":               true,
			"prompts/list":             true,
			"prompts/get":              true,
			"resources/list":           true,
			"resources/templates/list": true,
			"resources/read":           true,
			"resources/subscribe":      true,
			"resources/unsubscribe":    true,
			"completion/complete":      true,
			"logging/setLevel":         true,
			"tasks/get":                true,
			"tasks/result":             true,
			"tasks/list":               true,
			"tasks/cancel":             true,

			// Notifications from the client
			"notifications/initialized":        true,
			"notifications/cancelled":          true,
			"notifications/progress":           true,
			"notifications/roots/list_changed": true,
		},
	}

	return v
}

// Validate implements the MessageValidator interface
func (v *MethodValidator) Validate(msg *shared.Message) error {
	if msg.Method != nil {
		v.mu.RLock()
		valid := v.validMethods[*msg.Method]
		v.mu.RUnlock()

		if !valid {
			return fmt.Errorf("invalid method: %s", *msg.Method)
		}
	} else if msg.ID.IsEmpty() {
		return fmt.Errorf("method and id is empty")
	}
	return nil
}
