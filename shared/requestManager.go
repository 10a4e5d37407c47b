package shared

import (
	"sync"
	"time"

	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
	"go.uber.org/zap"
)

// RequestCallback is a function that handles response messages.
type RequestCallback func(msg *Message)

// Request holds information about a sent request.
type Request struct {
	Callback  RequestCallback
	Timestamp time.Time
}

// RequestManager tracks outgoing requests until their responses arrive.
// Keys are the JSON rendering of the request id, so the string id "5" and
// the number 5 never collide.
type RequestManager struct {
	requests map[string]Request
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewRequestManager creates a new RequestManager instance.
func NewRequestManager(logger *zap.Logger) *RequestManager {
	return &RequestManager{
		requests: make(map[string]Request),
		logger:   logger,
	}
}

// RegisterRequest registers a request with its callback for later processing.
func (rm *RequestManager) RegisterRequest(id *schema.RequestID, callback RequestCallback) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.requests[id.String()] = Request{
		Callback:  callback,
		Timestamp: time.Now(),
	}
	rm.logger.Debug("RegisterRequest", zap.String("message_id", id.String()), zap.Int("requests_len", len(rm.requests)))
}

// ProcessResponse matches a response to its pending request and invokes the
// callback. The entry is removed before the callback runs, so a duplicate
// response can never trigger it twice. Returns true if a callback was found.
func (rm *RequestManager) ProcessResponse(msg *Message) bool {
	if msg.ID == nil {
		rm.logger.Error("No message ID found")
		return false
	}

	rm.mu.Lock()
	request, exists := rm.requests[msg.ID.String()]
	if exists {
		delete(rm.requests, msg.ID.String())
	}
	rm.mu.Unlock()

	if !exists || request.Callback == nil {
		rm.logger.Warn("No callback found for message", zap.String("message_id", msg.ID.String()))
		return false
	}

	request.Callback(msg)
	msg.Processed = true
	return true
}

// FailAll drains every pending request and invokes its callback with the
// given error. Used when the session closes while requests are in flight.
func (rm *RequestManager) FailAll(rpcErr *JSONRPCError) {
	rm.mu.Lock()
	pending := rm.requests
	rm.requests = make(map[string]Request)
	rm.mu.Unlock()

	for key, request := range pending {
		if request.Callback == nil {
			continue
		}
		rm.logger.Debug("failing pending request", zap.String("message_id", key), zap.Int("code", rpcErr.Code))
		request.Callback(&Message{Error: rpcErr, Timestamp: time.Now()})
	}
}

// PendingCount reports how many requests are still waiting for a response.
func (rm *RequestManager) PendingCount() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.requests)
}
