package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
	"go.uber.org/zap"
)

// SessionStatus represents the current state of a session.
type SessionStatus int

const (
	// StatusNew is the state before the initialize request arrives.
	StatusNew SessionStatus = iota
	// StatusConnecting means initialize was answered but the client has not
	// confirmed with notifications/initialized yet.
	StatusConnecting
	// StatusConnected is a fully initialized session.
	StatusConnected
	// StatusClosed is terminal; the session accepts no further traffic.
	StatusClosed
)

func (s SessionStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ErrSessionClosed is returned when sending on a terminated session.
var ErrSessionClosed = &JSONRPCError{
	Code:    JSONRPCErrorSessionClosed,
	Message: "session closed",
}

type ISession interface {
	GetID() string

	AcquireOutput() (<-chan *Message, bool)
	ReleaseOutput()
	Input() *Input

	SendResponse(msgId *schema.RequestID, result interface{}, err error)
	SendNotification(ctx context.Context, method string, params interface{})
	SendRequest(ctx context.Context, method string, params interface{}, callback RequestCallback) (*schema.RequestID, error)
	SendRequestSync(ctx context.Context, method string, params interface{}) <-chan *Message

	SetNegotiatedVersion(version string)
	GetNegotiatedVersion() string

	GetLastActivity() time.Time
	UpdateLastActivity()

	GetStatus() SessionStatus
	SetStatus(status SessionStatus)
	Close() error
	GetRequestManager() *RequestManager

	TrackIncoming(id *schema.RequestID, cancel context.CancelFunc)
	UntrackIncoming(id *schema.RequestID)
	CancelIncoming(id *schema.RequestID) bool

	NextMessageID() schema.RequestID
	GetParamsMutex() *sync.RWMutex
	GetParams() *sync.Map
	GetLogger() *zap.Logger
}

var _ ISession = (*BaseSession)(nil)

// BaseSession provides common session fields and functionality for both client
// and server implementations.
type BaseSession struct {
	Mu                sync.RWMutex
	ID                string
	messageID         int64
	CreatedAt         time.Time
	LastActivity      atomic.Value
	status            SessionStatus
	ParamsMutex       sync.RWMutex
	Params            *sync.Map
	RequestManager    *RequestManager
	output            chan *Message
	isOutputAcquired  bool
	Logger            *zap.Logger
	negotiatedVersion string
	inputProcessor    *Input

	incomingMu sync.Mutex
	incoming   map[string]context.CancelFunc
}

// NewBaseSession creates a new base session with default values.
func NewBaseSession(logger *zap.Logger, inputProcessor *Input, params *sync.Map) *BaseSession {
	if params == nil {
		params = &sync.Map{}
	}
	sessionID := RandomID()
	sessionLogger := logger.With(zap.String("session_id", sessionID))
	sessionLogger.Debug("Creating new session")
	s := &BaseSession{
		Logger:         sessionLogger,
		ID:             sessionID,
		CreatedAt:      time.Now(),
		status:         StatusNew,
		Params:         params,
		RequestManager: NewRequestManager(sessionLogger),
		output:         make(chan *Message, 100), // TODO: Make configurable
		inputProcessor: inputProcessor,
		incoming:       make(map[string]context.CancelFunc),
	}
	s.UpdateLastActivity()
	return s
}

func RandomID() string {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	if err != nil {
		panic(err)
	}
	return base64.URLEncoding.EncodeToString(key)
}

func (s *BaseSession) NextMessageID() schema.RequestID {
	return schema.RequestIDFromInt64(atomic.AddInt64(&s.messageID, 1))
}

// GetID returns the unique session identifier.
func (s *BaseSession) GetID() string {
	return s.ID
}

func (s *BaseSession) GetParams() *sync.Map {
	return s.Params
}

func (s *BaseSession) GetParamsMutex() *sync.RWMutex {
	return &s.ParamsMutex
}

// GetStatus returns the current status of the session.
func (s *BaseSession) GetStatus() SessionStatus {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.status
}

// SetStatus updates the status of the session. A closed session stays closed.
func (s *BaseSession) SetStatus(status SessionStatus) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.status == StatusClosed {
		return
	}
	s.status = status
}

// UpdateLastActivity updates the last activity timestamp for the session.
func (s *BaseSession) UpdateLastActivity() {
	s.LastActivity.Store(time.Now())
}

func (s *BaseSession) GetLastActivity() time.Time {
	return s.LastActivity.Load().(time.Time)
}

// GetRequestManager returns the request manager for this session.
func (s *BaseSession) GetRequestManager() *RequestManager {
	return s.RequestManager
}

// TrackIncoming remembers the cancel function of an in-flight incoming
// request so notifications/cancelled can abort it.
func (s *BaseSession) TrackIncoming(id *schema.RequestID, cancel context.CancelFunc) {
	if id == nil || id.IsEmpty() {
		return
	}
	s.incomingMu.Lock()
	defer s.incomingMu.Unlock()
	s.incoming[id.String()] = cancel
}

// UntrackIncoming forgets a finished incoming request.
func (s *BaseSession) UntrackIncoming(id *schema.RequestID) {
	if id == nil || id.IsEmpty() {
		return
	}
	s.incomingMu.Lock()
	defer s.incomingMu.Unlock()
	delete(s.incoming, id.String())
}

// CancelIncoming aborts the handler of an in-flight incoming request.
// Returns false when the request already finished or was never seen.
func (s *BaseSession) CancelIncoming(id *schema.RequestID) bool {
	if id == nil || id.IsEmpty() {
		return false
	}
	s.incomingMu.Lock()
	cancel, ok := s.incoming[id.String()]
	if ok {
		delete(s.incoming, id.String())
	}
	s.incomingMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Close terminates the session: the output channel is closed, every pending
// outgoing request fails with a session-closed error and all in-flight
// incoming handlers are cancelled. Safe to call more than once.
func (s *BaseSession) Close() error {
	s.Mu.Lock()
	if s.status == StatusClosed {
		s.Mu.Unlock()
		return nil
	}
	s.status = StatusClosed
	if s.output != nil {
		close(s.output)
		s.output = nil
	}
	s.isOutputAcquired = false
	s.Mu.Unlock()

	s.incomingMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.incoming))
	for _, cancel := range s.incoming {
		cancels = append(cancels, cancel)
	}
	s.incoming = make(map[string]context.CancelFunc)
	s.incomingMu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}

	s.RequestManager.FailAll(ErrSessionClosed)
	s.Logger.Debug("Session closed")
	return nil
}

func (s *BaseSession) AcquireOutput() (<-chan *Message, bool) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.isOutputAcquired || s.output == nil {
		s.Logger.Debug("Output channel is not available",
			zap.Bool("outputAcquired", s.isOutputAcquired),
			zap.Bool("outputIsNil", s.output == nil),
		)
		return nil, false
	}
	s.isOutputAcquired = true
	return s.output, true
}

func (s *BaseSession) ReleaseOutput() {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.isOutputAcquired = false
}

// SetNegotiatedVersion stores the protocol version agreed upon during initialization.
func (s *BaseSession) SetNegotiatedVersion(version string) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.negotiatedVersion = version
}

// GetNegotiatedVersion retrieves the negotiated protocol version for the session.
func (s *BaseSession) GetNegotiatedVersion() string {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.negotiatedVersion
}

// SendNotification sends a notification (a message without an ID) to the
// output channel. When ctx belongs to an in-flight incoming request, the
// notification is attributed to it for stream routing.
func (s *BaseSession) SendNotification(ctx context.Context, method string, params interface{}) {
	var jsonParams *json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			s.Logger.Error("failed to marshal notification params", zap.Error(err))
			return
		}
		raw := json.RawMessage(data)
		jsonParams = &raw
	}

	s.Mu.RLock()
	outputChan := s.output
	s.Mu.RUnlock()
	if outputChan == nil {
		s.Logger.Debug("Cannot send notification, session closed", zap.String("method", method))
		return
	}

	s.UpdateLastActivity()
	outputChan <- &Message{
		Session:   s,
		Timestamp: time.Now(),
		Method:    &method,
		Params:    jsonParams,
		RelatedID: RelatedRequestID(ctx),
	}
}

// SendRequest sends a request and registers a callback for its response.
func (s *BaseSession) SendRequest(ctx context.Context, method string, params interface{}, callback RequestCallback) (*schema.RequestID, error) {
	if s.GetStatus() == StatusClosed {
		return nil, ErrSessionClosed
	}
	if s.GetStatus() != StatusConnected && method != "initialize" {
		s.Logger.Warn("Request sent to not connected session",
			zap.String("method", method),
			zap.Any("params", params),
		)
	}

	msgID := s.NextMessageID()
	var jsonParams *json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request parameters: %w", err)
		}
		raw := json.RawMessage(data)
		jsonParams = &raw
	}

	msg := &Message{
		ID:        &msgID,
		Method:    &method,
		Session:   s,
		Params:    jsonParams,
		Timestamp: time.Now(),
		RelatedID: RelatedRequestID(ctx),
	}

	s.RequestManager.RegisterRequest(&msgID, callback)

	s.Mu.RLock()
	outputChan := s.output
	s.Mu.RUnlock()
	if outputChan == nil {
		s.RequestManager.ProcessResponse(&Message{ID: &msgID, Error: ErrSessionClosed})
		return nil, ErrSessionClosed
	}

	s.UpdateLastActivity()
	outputChan <- msg

	return &msgID, nil
}

// SendRequestSync sends a request and returns a channel that yields the
// response. Paginated results are followed automatically: every page is
// delivered on the channel and the channel closes after the last one.
func (s *BaseSession) SendRequestSync(ctx context.Context, method string, params interface{}) <-chan *Message {
	resultChan := make(chan *Message, 1)
	pendingRequests := &atomic.Int32{}

	var reader func(msg *Message)
	reader = func(msg *Message) {
		if msg.Result != nil {
			var paginated schema.PaginatedResult
			if err := json.Unmarshal(*msg.Result, &paginated); err == nil {
				if paginated.NextCursor != nil {
					pendingRequests.Add(1)
					//nolint:errcheck // a failed follow-up surfaces as a missing page, not a hang
					s.SendRequest(ctx, method, &schema.PaginatedRequestParams{Cursor: paginated.NextCursor}, reader)
				}
			}
		}
		resultChan <- msg
		if pendingRequests.Add(-1) == 0 {
			close(resultChan)
		}
		msg.Processed = true
	}

	pendingRequests.Add(1) // Count the initial request
	_, err := s.SendRequest(ctx, method, params, reader)
	if err != nil {
		resultChan <- &Message{
			Error: NewJSONRPCError(err),
		}
		close(resultChan)
	}
	return resultChan
}

// SendResponse sends a response message to the output channel. A nil result
// with a nil error is rendered as an empty object so the wire always carries
// a result field.
func (s *BaseSession) SendResponse(msgId *schema.RequestID, result interface{}, err error) {
	var jsonResult *json.RawMessage
	var jsonRpcError *JSONRPCError

	if err != nil {
		jsonRpcError = NewJSONRPCError(err)
	} else {
		if result == nil {
			result = struct{}{}
		}
		data, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			s.Logger.Error("Failed to marshal response result", zap.Error(marshalErr), zap.Any("msgId", msgId))
			jsonRpcError = &JSONRPCError{
				Code:    JSONRPCErrorInternal,
				Message: fmt.Sprintf("Failed to marshal result: %v", marshalErr),
			}
		} else {
			raw := json.RawMessage(data)
			jsonResult = &raw
		}
	}

	msg := &Message{
		Session:   s,
		Timestamp: time.Now(),
		ID:        msgId,
		Result:    jsonResult,
		Error:     jsonRpcError,
	}

	s.Mu.RLock()
	outputChan := s.output
	currentStatus := s.status
	s.Mu.RUnlock()

	isInitializeResponse := false
	if result != nil {
		_, isInitializeResponse = result.(schema.InitializeResult)
	}

	if outputChan == nil {
		s.Logger.Warn("Cannot send response, session closed", zap.Any("msgId", msgId))
		return
	}

	// Error responses always pass the status gate: a failed initialize still
	// has to answer the request that opened the session.
	if currentStatus != StatusConnected &&
		currentStatus != StatusConnecting && // clients often do not send "notifications/initialized" before sending requests
		!isInitializeResponse &&
		jsonRpcError == nil {
		s.Logger.Warn("Attempting to send response on non-connected session",
			zap.Any("msgId", msgId),
			zap.String("status", currentStatus.String()),
			zap.Error(err),
		)
		return
	}

	select {
	case outputChan <- msg:
		s.UpdateLastActivity()
	default:
		s.Logger.Error("Failed to send response, output channel full", zap.Any("msgId", msgId))
	}
}

func (s *BaseSession) Input() *Input {
	return s.inputProcessor
}

func (s *BaseSession) GetLogger() *zap.Logger {
	return s.Logger
}
