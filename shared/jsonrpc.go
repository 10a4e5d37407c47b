package shared

import (
	"encoding/json"
	"fmt"

	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

const (
	JSONRPCVersion = "2.0"

	// Standard JSON-RPC 2.0 error codes
	JSONRPCErrorParseError     = -32700 // Invalid JSON was received
	JSONRPCErrorInvalidRequest = -32600 // The JSON sent is not a valid Request object
	JSONRPCErrorMethodNotFound = -32601 // The method does not exist / is not available
	JSONRPCErrorInvalidParams  = -32602 // Invalid method parameter(s)
	JSONRPCErrorInternal       = -32603 // Internal JSON-RPC error

	// -32000 to -32099 are reserved for implementation-defined server errors
	JSONRPCErrorServerError = -32000 // Generic server error

	JSONRPCErrorUnauthorized     = -32001 // Unauthorized
	JSONRPCErrorSessionClosed    = -32002 // Session has been terminated
	JSONRPCErrorRequestCancelled = -32003 // Request cancelled by the peer
	JSONRPCErrorResourceLimit    = -32004 // A configured resource limit was hit

	// JSONRPCErrorURLElicitationRequired tells the caller to complete the
	// out-of-band elicitations carried in the error data before retrying.
	JSONRPCErrorURLElicitationRequired = -32042
)

type JSONRPCErrorResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *schema.RequestID `json:"id,omitempty"`
	Error   *JSONRPCError     `json:"error"`
}

// JSONRPCResponse represents the structure for sending successful JSON-RPC responses.
type JSONRPCResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *schema.RequestID `json:"id"` // Must be present and same as request ID
	Result  *json.RawMessage  `json:"result"`
}

type JSONRPCMessage struct {
	JSONRPC string            `json:"jsonrpc"` // Must be "2.0"
	ID      *schema.RequestID `json:"id,omitempty"`
	Method  *string           `json:"method,omitempty"`
	Params  *json.RawMessage  `json:"params,omitempty"`
	Error   *JSONRPCError     `json:"error,omitempty"`
}

type JSONRPCNotification struct {
	JSONRPC string           `json:"jsonrpc"` // Must be "2.0"
	Method  *string          `json:"method"`
	Params  *json.RawMessage `json:"params,omitempty"`
}

type JSONRPCRequest struct {
	JSONRPC string           `json:"jsonrpc"` // Must be "2.0"
	ID      schema.RequestID `json:"id,omitempty"`
	Method  string           `json:"method"`
	Params  map[string]any   `json:"params,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error type code
	Message string      `json:"message"`        // Short error description
	Data    interface{} `json:"data,omitempty"` // Additional error information
}

// Error implements the Go error interface for JSONRPCError.
func (e *JSONRPCError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewJSONRPCError wraps an arbitrary Go error into a JSON-RPC error object.
// A *JSONRPCError passes through unchanged so handlers can pick their own
// codes; anything else maps to an internal error.
func NewJSONRPCError(err error) *JSONRPCError {
	if err == nil {
		return nil
	}
	if rpcErr, ok := err.(*JSONRPCError); ok {
		return rpcErr
	}
	return &JSONRPCError{
		Code:    JSONRPCErrorInternal,
		Message: err.Error(),
	}
}

// NewMethodNotFoundError builds the standard -32601 error for a method.
func NewMethodNotFoundError(method string) *JSONRPCError {
	return &JSONRPCError{
		Code:    JSONRPCErrorMethodNotFound,
		Message: fmt.Sprintf("method not found: %s", method),
	}
}

// NewInvalidParamsError builds the standard -32602 error.
func NewInvalidParamsError(err error) *JSONRPCError {
	return &JSONRPCError{
		Code:    JSONRPCErrorInvalidParams,
		Message: err.Error(),
	}
}

// NewURLElicitationRequiredError builds the error that carries the pending
// out-of-band elicitations the client must complete before retrying.
func NewURLElicitationRequiredError(elicitations []schema.ElicitRequestParams) *JSONRPCError {
	return &JSONRPCError{
		Code:    JSONRPCErrorURLElicitationRequired,
		Message: "URL elicitation required",
		Data:    schema.URLElicitationRequiredErrorData{Elicitations: elicitations},
	}
}
