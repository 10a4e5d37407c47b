package shared

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

// Message is the in-memory form of one JSON-RPC message, request, notification,
// response or error. Pointer fields record presence on the wire: a response
// whose result was JSON null keeps Result pointing at the literal "null".
//
// RelatedID is out-of-band routing state: for outgoing messages produced while
// handling an incoming request it carries that request's id, so the transport
// can deliver them on the HTTP response stream of the originating POST. It is
// never serialized.
type Message struct {
	ID        *schema.RequestID
	Timestamp time.Time
	Method    *string
	Params    *json.RawMessage
	Result    *json.RawMessage
	Error     *JSONRPCError
	RelatedID *schema.RequestID
	Processed bool
	Session   ISession
}

// IsRequest reports whether the message expects a response.
func (m *Message) IsRequest() bool {
	return m.Method != nil && m.ID != nil && !m.ID.IsEmpty()
}

// IsNotification reports whether the message is fire-and-forget.
func (m *Message) IsNotification() bool {
	return m.Method != nil && (m.ID == nil || m.ID.IsEmpty())
}

// IsResponse reports whether the message answers an earlier request,
// successfully or with an error.
func (m *Message) IsResponse() bool {
	return m.Method == nil && m.ID != nil && (m.Result != nil || m.Error != nil)
}

var nullLiteral = []byte("null")

// UnmarshalJSON decodes one JSON-RPC 2.0 message and classifies it in a
// single pass. The version marker must be exactly "2.0". A "result" key set
// to null still counts as a successful response; an object that is neither
// request, notification, response nor error is rejected.
func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("invalid JSON-RPC message: %w", err)
	}

	versionRaw, ok := fields["jsonrpc"]
	if !ok {
		return fmt.Errorf("missing jsonrpc version field")
	}
	var version string
	if err := json.Unmarshal(versionRaw, &version); err != nil || version != JSONRPCVersion {
		return fmt.Errorf("unsupported jsonrpc version: %s", string(versionRaw))
	}

	if raw, ok := fields["id"]; ok && !bytes.Equal(raw, nullLiteral) {
		id := &schema.RequestID{}
		if err := id.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("invalid request id: %w", err)
		}
		m.ID = id
	}
	if raw, ok := fields["method"]; ok {
		var method string
		if err := json.Unmarshal(raw, &method); err != nil {
			return fmt.Errorf("invalid method: %w", err)
		}
		m.Method = &method
	}
	if raw, ok := fields["params"]; ok && !bytes.Equal(raw, nullLiteral) {
		params := make(json.RawMessage, len(raw))
		copy(params, raw)
		m.Params = &params
	}
	if raw, ok := fields["result"]; ok {
		result := make(json.RawMessage, len(raw))
		copy(result, raw)
		m.Result = &result
	}
	if raw, ok := fields["error"]; ok && !bytes.Equal(raw, nullLiteral) {
		rpcErr := &JSONRPCError{}
		if err := json.Unmarshal(raw, rpcErr); err != nil {
			return fmt.Errorf("invalid error object: %w", err)
		}
		m.Error = rpcErr
	}

	switch {
	case m.Method != nil:
		// Request when an id is present, notification otherwise.
	case m.ID != nil && m.Error != nil:
		// Error response.
	case m.ID != nil && m.Result != nil:
		// Successful response, result may be null.
	default:
		return fmt.Errorf("message is neither request, notification, response nor error")
	}
	return nil
}

// ParseMessages decodes the payload of one transport frame. A JSON array is
// treated as a batch, anything else as a single message. Each message keeps a
// backreference to the session it arrived on.
func ParseMessages(session ISession, data []byte) ([]*Message, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	now := time.Now()

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []*Message
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("failed to parse message batch: %w", err)
		}
		if len(batch) == 0 {
			return nil, fmt.Errorf("empty message batch")
		}
		for _, msg := range batch {
			msg.Session = session
			msg.Timestamp = now
		}
		return batch, nil
	}

	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	msg.Session = session
	msg.Timestamp = now
	return []*Message{msg}, nil
}

// MarshalJSON renders the message back to its wire form based on which
// fields are populated.
func (m *Message) MarshalJSON() ([]byte, error) {
	if m.Error != nil {
		return json.Marshal(JSONRPCErrorResponse{
			JSONRPC: JSONRPCVersion,
			ID:      m.ID,
			Error:   m.Error,
		})
	}
	if m.Method == nil {
		if m.ID == nil || m.Result == nil {
			return nil, fmt.Errorf("response message requires both id and result")
		}
		return json.Marshal(JSONRPCResponse{
			JSONRPC: JSONRPCVersion,
			ID:      m.ID,
			Result:  m.Result,
		})
	}
	return json.Marshal(JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      m.ID,
		Method:  m.Method,
		Params:  m.Params,
	})
}
