package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/relay4ai/mcp/server/tasks"
	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

var (
	// ErrStatelessServerToClient is returned when a handler attempts a
	// server-to-client request on a stateless deployment, where no standalone
	// stream exists to carry it.
	ErrStatelessServerToClient = errors.New("server-to-client requests are not available in stateless mode")

	ErrNoSamplingCapability    = errors.New("client did not advertise the sampling capability")
	ErrNoElicitationCapability = errors.New("client did not advertise the elicitation capability")
	ErrNoRootsCapability       = errors.New("client did not advertise the roots capability")
)

type IDownstreamSession interface {
	shared.ISession
	SetClientInfo(info schema.Implementation, caps schema.ClientCapabilities)
}

var _ IDownstreamSession = (*Session)(nil)

// Session is one client connection. On top of the base session it tracks the
// client identity negotiated during initialize and offers the typed
// server-to-client request helpers.
type Session struct {
	*shared.BaseSession
	manager ISessionManager
	UserID  string

	ClientCapabilities *schema.ClientCapabilities `json:"-"`
	ClientInfo         schema.Implementation      `json:"-"`

	stateless bool

	logMu       sync.RWMutex
	logMinLevel schema.LoggingLevel
}

// NewSession creates a new session. Client info and capabilities are set
// during initialization.
func NewSession(manager ISessionManager, userID string, inputProcessor *shared.Input, params *sync.Map) *Session {
	return &Session{
		BaseSession: shared.NewBaseSession(manager.GetLogger(), inputProcessor, params),
		manager:     manager,
		UserID:      userID,
		logMinLevel: schema.LoggingLevelInfo,
	}
}

func (s *Session) Close() error {
	logger := s.BaseSession.Logger
	logger.Debug("Closing server session")
	err := s.BaseSession.Close()
	if err != nil {
		logger.Error("Error while closing base session", zap.Error(err))
	}
	return err
}

// SetClientInfo stores the client's capabilities and implementation info.
func (s *Session) SetClientInfo(info schema.Implementation, caps schema.ClientCapabilities) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.ClientInfo = info
	s.ClientCapabilities = &caps
}

// GetClientInfo retrieves the client's implementation info.
func (s *Session) GetClientInfo() schema.Implementation {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.ClientInfo
}

// GetClientCapabilities retrieves the client's reported capabilities.
func (s *Session) GetClientCapabilities() *schema.ClientCapabilities {
	s.Mu.RLock()
	defer s.Mu.RUnlock()
	return s.ClientCapabilities
}

// SendRequest refuses server-to-client requests on stateless deployments.
func (s *Session) SendRequest(ctx context.Context, method string, params interface{}, callback shared.RequestCallback) (*schema.RequestID, error) {
	if s.stateless {
		return nil, ErrStatelessServerToClient
	}
	return s.BaseSession.SendRequest(ctx, method, params, callback)
}

// requestAndWait issues a server-to-client request and blocks for its
// response. When the caller runs on behalf of a task, the task is parked in
// input_required for the duration of the round trip. Giving up on ctx sends
// notifications/cancelled for the outgoing request.
func (s *Session) requestAndWait(ctx context.Context, method string, params interface{}) (*shared.Message, error) {
	if exec := tasks.ExecutionFrom(ctx); exec != nil {
		if snapshot, err := exec.Store().UpdateStatus(ctx, exec.TaskID, schema.TaskStatusInputRequired, "waiting for client input", exec.SessionID); err == nil {
			tasks.NotifyStatus(s, snapshot)
		}
		defer func() {
			if snapshot, err := exec.Store().UpdateStatus(context.Background(), exec.TaskID, schema.TaskStatusWorking, "", exec.SessionID); err == nil {
				tasks.NotifyStatus(s, snapshot)
			}
		}()
	}

	responseChan := make(chan *shared.Message, 1)
	requestID, err := s.SendRequest(ctx, method, params, func(msg *shared.Message) {
		responseChan <- msg
	})
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		s.SendNotification(context.Background(), "notifications/cancelled", schema.CancelledNotificationParams{
			RequestID: *requestID,
			Reason:    "caller gave up waiting",
		})
		return nil, ctx.Err()
	case msg := <-responseChan:
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg, nil
	}
}

// CreateMessage asks the client to sample its LLM. The stop reason of the
// result is whatever the client reported, passed through verbatim.
func (s *Session) CreateMessage(ctx context.Context, params *schema.CreateMessageRequestParams) (*schema.CreateMessageResult, error) {
	caps := s.GetClientCapabilities()
	if caps == nil || caps.Sampling == nil {
		return nil, ErrNoSamplingCapability
	}

	msg, err := s.requestAndWait(ctx, "sampling/createMessage", params)
	if err != nil {
		return nil, err
	}
	var result schema.CreateMessageResult
	if msg.Result == nil {
		return nil, errors.New("sampling response carried no result")
	}
	if err := result.UnmarshalJSON(*msg.Result); err != nil {
		return nil, fmt.Errorf("failed to parse sampling result: %w", err)
	}
	return &result, nil
}

// Elicit asks the client to gather structured input from the user.
func (s *Session) Elicit(ctx context.Context, params *schema.ElicitRequestParams) (*schema.ElicitResult, error) {
	caps := s.GetClientCapabilities()
	if caps == nil || caps.Elicitation == nil {
		return nil, ErrNoElicitationCapability
	}
	mode := params.Mode
	if mode == "" {
		mode = schema.ElicitationModeForm
	}
	switch mode {
	case schema.ElicitationModeForm:
		if !caps.Elicitation.Form {
			return nil, errors.New("client does not accept form elicitation")
		}
		if params.RequestedSchema == nil {
			return nil, errors.New("form elicitation requires a requested schema")
		}
	case schema.ElicitationModeURL:
		if params.URL == "" || params.ElicitationID == "" {
			return nil, errors.New("url elicitation requires url and elicitationId")
		}
		// A client without url-mode support cannot take the round trip; the
		// pending elicitation rides back on the error so the caller can
		// surface it out of band.
		if !caps.Elicitation.URL {
			return nil, shared.NewURLElicitationRequiredError([]schema.ElicitRequestParams{*params})
		}
	default:
		return nil, fmt.Errorf("unknown elicitation mode %q", mode)
	}

	msg, err := s.requestAndWait(ctx, "elicitation/create", params)
	if err != nil {
		return nil, err
	}
	var result schema.ElicitResult
	if msg.Result == nil {
		return nil, errors.New("elicitation response carried no result")
	}
	if err := json.Unmarshal(*msg.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse elicitation result: %w", err)
	}
	return &result, nil
}

// RequestRoots asks the client for its filesystem roots.
func (s *Session) RequestRoots(ctx context.Context) (*schema.ListRootsResult, error) {
	caps := s.GetClientCapabilities()
	if caps == nil || caps.Roots == nil {
		return nil, ErrNoRootsCapability
	}

	msg, err := s.requestAndWait(ctx, "roots/list", nil)
	if err != nil {
		return nil, err
	}
	var result schema.ListRootsResult
	if msg.Result == nil {
		return nil, errors.New("roots response carried no result")
	}
	if err := json.Unmarshal(*msg.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse roots result: %w", err)
	}
	return &result, nil
}

// Ping checks that the client is still responsive.
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.requestAndWait(ctx, "ping", nil)
	return err
}

// SetLoggingLevel stores the minimum severity the client wants to receive.
func (s *Session) SetLoggingLevel(level schema.LoggingLevel) error {
	if !level.IsValid() {
		return fmt.Errorf("unknown logging level %q", level)
	}
	s.logMu.Lock()
	s.logMinLevel = level
	s.logMu.Unlock()
	return nil
}

// GetLoggingLevel returns the session's minimum log severity.
func (s *Session) GetLoggingLevel() schema.LoggingLevel {
	s.logMu.RLock()
	defer s.logMu.RUnlock()
	return s.logMinLevel
}

// Log pushes a notifications/message to the client when the severity passes
// the session's level filter.
func (s *Session) Log(level schema.LoggingLevel, loggerName string, data interface{}) {
	if !s.GetLoggingLevel().Includes(level) {
		return
	}
	s.SendNotification(context.Background(), "notifications/message", schema.LoggingMessageNotificationParams{
		Level:  level,
		Logger: loggerName,
		Data:   data,
	})
}
