package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// RequestID identifies a JSON-RPC request. The wire token is either a string
// or an integer; the two spaces are disjoint, so the string "5" and the
// number 5 are different IDs.
type RequestID struct {
	value interface{} // string or int64, nil when unset
}

// RequestIDFromString builds a string-typed request ID.
func RequestIDFromString(value string) RequestID {
	return RequestID{value: value}
}

// RequestIDFromInt64 builds an integer-typed request ID.
func RequestIDFromInt64(value int64) RequestID {
	return RequestID{value: value}
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	token := bytes.TrimSpace(data)
	if len(token) == 0 {
		return errors.New("request id: empty token")
	}
	if token[0] == '"' {
		var s string
		if err := json.Unmarshal(token, &s); err != nil {
			return fmt.Errorf("request id: %w", err)
		}
		id.value = s
		return nil
	}
	if bytes.Equal(token, []byte("null")) {
		return errors.New("request id: null is not allowed")
	}
	n, err := strconv.ParseInt(string(token), 10, 64)
	if err != nil {
		return fmt.Errorf("request id must be a string or an integer: %w", err)
	}
	id.value = n
	return nil
}

func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.value == nil {
		return nil, errors.New("request id: cannot marshal an empty id")
	}
	return json.Marshal(id.value)
}

// Equal reports whether both IDs carry the same value of the same kind.
func (id *RequestID) Equal(other *RequestID) bool {
	if id == nil || other == nil {
		return false
	}
	return id.value != nil && id.value == other.value
}

// String renders the ID as its JSON token, so a string ID keeps its quotes
// and never collides with an integer ID. Used as the pending-request map key.
func (id *RequestID) String() string {
	if id == nil || id.value == nil {
		return "nil"
	}
	switch v := id.value.(type) {
	case string:
		b, _ := json.Marshal(v)
		return string(b)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (id *RequestID) IsEmpty() bool {
	return id == nil || id.value == nil
}

// ProgressToken is a token for request progress tracking (string or integer).
type ProgressToken = interface{}

// Meta is the reserved `_meta` metadata object.
type Meta = map[string]interface{}

// Arguments is a type alias for tool arguments map.
type Arguments = map[string]interface{}

// Request is the base structure for JSON-RPC requests.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	Meta   *struct {
		// If specified, the caller is requesting out-of-band progress notifications.
		ProgressToken ProgressToken `json:"progressToken,omitempty"`
	} `json:"_meta,omitempty"`
}

// Notification is the base structure for JSON-RPC notifications.
type Notification struct {
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Result is the base structure for JSON-RPC results.
type Result struct {
	Meta Meta `json:"_meta,omitempty"`
}
