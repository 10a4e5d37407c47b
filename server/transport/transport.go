package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/relay4ai/mcp/server/mcp"
	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/config"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
	"go.uber.org/zap"
)

const (
	MCP_PATH           = "/mcp"           // Unified endpoint path
	MCP_SESSION_HEADER = "Mcp-Session-Id" // Header carrying the session ID
	LAST_EVENT_HEADER  = "Last-Event-ID"  // Header carrying the resumption anchor

	// Content Types
	contentTypeJSON = "application/json"
	contentTypeSSE  = "text/event-stream"

	// HTTP Statuses
	statusAccepted         = http.StatusAccepted         // 202
	statusNotFound         = http.StatusNotFound         // 404
	statusBadRequest       = http.StatusBadRequest       // 400
	statusMethodNotAllowed = http.StatusMethodNotAllowed // 405
	statusUnauthorized     = http.StatusUnauthorized     // 401
	statusConflict         = http.StatusConflict         // 409
)

var responseTimeout = 30 * time.Second // Default timeout for waiting on responses

// Transport serves the streamable HTTP endpoint: POST carries client
// messages in, GET opens the standalone server-to-client stream, DELETE
// terminates the session.
type Transport struct {
	sessionManager  mcp.ISessionManager
	logger          *zap.Logger
	authManager     AuthenticationManager
	config          config.IConfig
	store           EventStore
	streams         *streamRouter
	statelessMode   bool
	getStreamMode   StreamMode    // delivery mode of standalone GET streams
	retryHint       time.Duration // reconnection interval advertised to clients
	keepalive       time.Duration // comment interval on idle GET streams
	sessionTimeout  time.Duration // Idle timeout for sessions
	cleanupInterval time.Duration // How often to check for idle sessions
	cleanupStop     chan struct{}
}

// TransportOption defines a function type for configuring the Transport.
type TransportOption func(*Transport) error

// WithSessionTimeout sets the idle timeout for sessions.
func WithSessionTimeout(timeout time.Duration) TransportOption {
	return func(t *Transport) error {
		if timeout <= 0 {
			return errors.New("session timeout must be positive")
		}
		t.sessionTimeout = timeout
		return nil
	}
}

// WithCleanupInterval sets the interval for checking idle sessions.
func WithCleanupInterval(interval time.Duration) TransportOption {
	return func(t *Transport) error {
		if interval <= 0 {
			return errors.New("cleanup interval must be positive")
		}
		t.cleanupInterval = interval
		return nil
	}
}

// WithAuthManager replaces the default key-based authenticator.
func WithAuthManager(authManager AuthenticationManager) TransportOption {
	return func(t *Transport) error {
		if authManager == nil {
			return errors.New("auth manager cannot be nil")
		}
		t.authManager = authManager
		return nil
	}
}

// WithEventStore replaces the in-memory event store.
func WithEventStore(store EventStore) TransportOption {
	return func(t *Transport) error {
		if store == nil {
			return errors.New("event store cannot be nil")
		}
		t.store = store
		return nil
	}
}

// WithPollingStreams serves the standalone GET stream in polling mode: each
// GET ends after the retained backlog and the client reconnects with
// Last-Event-ID instead of holding a connection open.
func WithPollingStreams() TransportOption {
	return func(t *Transport) error {
		t.getStreamMode = StreamModePolling
		return nil
	}
}

// WithRetryInterval sets the reconnection hint sent on GET streams.
func WithRetryInterval(retry time.Duration) TransportOption {
	return func(t *Transport) error {
		if retry <= 0 {
			return errors.New("retry interval must be positive")
		}
		t.retryHint = retry
		return nil
	}
}

// New creates the MCP HTTP transport handler.
func New(mcpManager mcp.ISessionManager, logger *zap.Logger, cfg config.IConfig, options ...TransportOption) (*Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mcpManager == nil {
		return nil, errors.New("session manager cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	stateless, err := cfg.StatelessMode()
	if err != nil {
		return nil, fmt.Errorf("failed to get stateless mode from config: %w", err)
	}
	retainLimit, err := cfg.EventRetainLimit()
	if err != nil {
		return nil, fmt.Errorf("failed to get event retain limit from config: %w", err)
	}

	transport := &Transport{
		sessionManager:  mcpManager,
		logger:          logger.Named("transport"),
		authManager:     NewAuthenticator(cfg, logger),
		config:          cfg,
		statelessMode:   stateless,
		retryHint:       3 * time.Second,
		keepalive:       15 * time.Second,
		cleanupInterval: 5 * time.Minute,
		sessionTimeout:  30 * time.Minute,
		cleanupStop:     make(chan struct{}),
	}

	for _, option := range options {
		if err := option(transport); err != nil {
			return nil, fmt.Errorf("failed to apply transport option: %w", err)
		}
	}
	if transport.store == nil {
		transport.store = NewMemoryEventStore(retainLimit)
	}
	transport.streams = newStreamRouter(transport.store, transport.retryHint, transport.getStreamMode, transport.logger)

	if transport.sessionTimeout > 0 {
		go transport.startSessionCleanup()
	}

	logger.Info("MCP HTTP Transport created",
		zap.Bool("statelessMode", transport.statelessMode),
		zap.Duration("sessionTimeout", transport.sessionTimeout),
	)
	return transport, nil
}

// SetAuthManager allows changing the authentication manager.
func (t *Transport) SetAuthManager(authManager AuthenticationManager) {
	t.authManager = authManager
}

// EnablePolling flips one session's standalone stream to polling delivery,
// ending its open GET after the backlog. Lets a deployment shed long-lived
// connections under pressure.
func (t *Transport) EnablePolling(sessionID string) {
	if ss := t.streams.Lookup(sessionID); ss != nil {
		ss.EnablePolling()
	}
}

// RegisterHandlers registers the unified MCP handler with the HTTP mux.
func (t *Transport) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc(MCP_PATH, t.HandleMCP())
	t.logger.Info("Registered MCP handler", zap.String("path", MCP_PATH))
}

func (t *Transport) HandleMCP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := t.logger

		logger.Debug("Received request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remoteAddr", r.RemoteAddr),
		)

		switch r.Method {
		case http.MethodGet:
			t.handleGET(w, r, logger)
		case http.MethodPost:
			t.handlePOST(w, r, logger)
		case http.MethodDelete:
			t.handleDELETE(w, r, logger)
		case http.MethodOptions:
			w.Header().Set("Allow", "GET, POST, DELETE, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
		default:
			logger.Warn("Method not allowed", zap.String("method", r.Method))
			http.Error(w, "Method Not Allowed", statusMethodNotAllowed)
		}
	}
}

// Shutdown stops the idle-session cleanup routine.
func (t *Transport) Shutdown() {
	select {
	case <-t.cleanupStop:
	default:
		close(t.cleanupStop)
	}
}

// startSessionCleanup periodically checks for idle sessions and closes them.
func (t *Transport) startSessionCleanup() {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()
	t.logger.Info("Starting session cleanup routine",
		zap.Duration("interval", t.cleanupInterval),
		zap.Duration("timeout", t.sessionTimeout),
	)
	for {
		select {
		case <-ticker.C:
			t.sessionManager.CleanupIdleSessions(t.sessionTimeout)
		case <-t.cleanupStop:
			t.logger.Info("Session cleanup routine stopped")
			return
		}
	}
}

// --- Helper to send JSON responses ---
func sendJSONResponse(w http.ResponseWriter, statusCode int, data interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logger.Error("Failed to encode JSON response", zap.Error(err))
		}
	}
}

// --- Helper to send JSON-RPC errors ---
func sendJSONRPCErrorResponse(w http.ResponseWriter, id *schema.RequestID, code int, message string, data interface{}, logger *zap.Logger) {
	errResp := shared.JSONRPCErrorResponse{
		JSONRPC: shared.JSONRPCVersion,
		ID:      id, // Can be nil for some errors (like parse error)
		Error: &shared.JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	logger.Warn("Sending JSON-RPC Error",
		zap.Int("code", code),
		zap.String("message", message),
		zap.Any("reqID", id),
	)
	// JSON-RPC errors still return 200 OK at the HTTP level.
	sendJSONResponse(w, http.StatusOK, errResp, logger)
}

// getSession resolves the session named by the Mcp-Session-Id header. It
// writes the HTTP error itself when resolution fails.
func (t *Transport) getSession(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (shared.ISession, error) {
	sessionID := r.Header.Get(MCP_SESSION_HEADER)
	if sessionID == "" {
		logger.Warn("Missing Mcp-Session-Id header")
		http.Error(w, "Bad Request: Mcp-Session-Id header required", statusBadRequest)
		return nil, errors.New("session header missing")
	}

	session, err := t.sessionManager.GetSession(sessionID)
	if err != nil {
		logger.Warn("Session not found", zap.String("sessionId", sessionID), zap.Error(err))
		http.Error(w, "Not Found: Session expired or invalid", statusNotFound)
		return nil, err
	}
	return session, nil
}

// createSession authenticates the request and creates a fresh session. It
// writes the HTTP error itself when authentication fails.
func (t *Transport) createSession(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (shared.ISession, error) {
	authKey := extractAuthKey(r)
	userID, sessionParams, err := t.authManager.Authenticate(authKey, r.RemoteAddr)
	if err != nil {
		logger.Warn("Authentication failed", zap.String("remoteAddr", r.RemoteAddr), zap.Error(err))
		http.Error(w, "Authentication failed: "+err.Error(), statusUnauthorized)
		return nil, err
	}
	return t.sessionManager.CreateSession(userID, sessionParams), nil
}
