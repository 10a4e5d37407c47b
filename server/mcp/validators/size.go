package validators

import (
	"fmt"
	"sync"

	"github.com/relay4ai/mcp/shared"
)

// maxRequestIDLength bounds the id string so hostile ids cannot inflate the
// per-request stream accounting keyed by them.
const maxRequestIDLength = 256

// MessageSizeValidator rejects messages whose payload exceeds the configured
// byte cap. Requests and notifications are measured by their params, responses
// by their result; both limits surface as a resource-limit error.
type MessageSizeValidator struct {
	mu      sync.RWMutex
	maxSize int64
}

// NewMessageSizeValidator creates a size validator with the given byte cap.
func NewMessageSizeValidator(maxSize int64) *MessageSizeValidator {
	return &MessageSizeValidator{maxSize: maxSize}
}

// SetMaxSize updates the byte cap for subsequent messages.
func (v *MessageSizeValidator) SetMaxSize(maxSize int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.maxSize = maxSize
}

// Validate implements the MessageValidator interface.
func (v *MessageSizeValidator) Validate(msg *shared.Message) error {
	if len(msg.ID.String()) >= maxRequestIDLength {
		return &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorResourceLimit,
			Message: fmt.Sprintf("request id exceeds %d bytes", maxRequestIDLength),
		}
	}

	v.mu.RLock()
	maxSize := v.maxSize
	v.mu.RUnlock()
	if maxSize <= 0 {
		return nil
	}

	if size := payloadSize(msg); size > maxSize {
		return &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorResourceLimit,
			Message: fmt.Sprintf("message payload of %d bytes exceeds the %d byte limit", size, maxSize),
		}
	}
	return nil
}

// payloadSize measures whichever body the message carries: params on requests
// and notifications, result on responses.
func payloadSize(msg *shared.Message) int64 {
	var size int64
	if msg.Params != nil {
		size += int64(len(*msg.Params))
	}
	if msg.Result != nil {
		size += int64(len(*msg.Result))
	}
	return size
}
