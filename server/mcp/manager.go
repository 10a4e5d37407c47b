package mcp

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/config"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

type ISessionManager interface {
	CreateSession(userID string, params *sync.Map) shared.ISession
	GetSession(id string) (shared.ISession, error)
	CloseSession(id string)
	CloseAllSessions()
	GetLogger() *zap.Logger

	NotifyEligibleSessions(method string, params map[string]any)
	CleanupIdleSessions(timeout time.Duration)
	GetServerInfo() *schema.Implementation
}

var _ ISessionManager = (*Manager)(nil)

// Manager owns every active session and the shared input processor that
// dispatches their messages.
type Manager struct {
	sessions       map[string]*Session
	mu             sync.RWMutex
	logger         *zap.Logger
	ServerInfo     schema.Implementation
	Instructions   string
	statelessMode  bool
	inputProcessor *shared.Input
	processCancel  context.CancelFunc
}

func (m *Manager) GetLogger() *zap.Logger {
	return m.logger
}

// CleanupIdleSessions closes every session without activity for longer than
// timeout.
func (m *Manager) CleanupIdleSessions(timeout time.Duration) {
	m.mu.RLock()
	idle := make([]string, 0)
	cutoff := time.Now().Add(-timeout)
	for id, session := range m.sessions {
		if session.GetLastActivity().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range idle {
		m.logger.Info("Closing idle session", zap.String("sessionID", id))
		m.CloseSession(id)
	}
}

func (m *Manager) GetServerInfo() *schema.Implementation {
	return &m.ServerInfo
}

// NewManager creates a session manager and starts its dispatch loop. The loop
// runs until ctx is done or Stop is called.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.IConfig) (*Manager, error) {
	serverName, err := cfg.ServerName()
	if err != nil {
		return nil, err
	}
	serverVersion, err := cfg.ServerVersion()
	if err != nil {
		return nil, err
	}
	stateless, err := cfg.StatelessMode()
	if err != nil {
		return nil, err
	}

	processCtx, cancel := context.WithCancel(ctx)
	m := &Manager{
		sessions:       make(map[string]*Session),
		logger:         logger,
		statelessMode:  stateless,
		inputProcessor: shared.NewInput(logger),
		processCancel:  cancel,
		ServerInfo: schema.Implementation{
			Name:    serverName,
			Version: serverVersion,
		},
	}
	go m.inputProcessor.Process(processCtx)
	return m, nil
}

// Input exposes the shared input processor so the transport can queue
// messages and the builder can register validators.
func (m *Manager) Input() *shared.Input {
	return m.inputProcessor
}

func (m *Manager) AddCapability(capabilities ...shared.IServerCapability) {
	m.inputProcessor.AddServerCapability(capabilities...)
}

func (m *Manager) AddValidator(validators ...shared.MessageValidator) {
	m.inputProcessor.AddValidator(validators...)
}

func (m *Manager) AddFilter(filters ...shared.MessageFilter) {
	m.inputProcessor.AddFilter(filters...)
}

// SetInstructions stores the usage instructions advertised on initialize.
func (m *Manager) SetInstructions(instructions string) {
	m.Instructions = instructions
}

// CreateSession creates a new session with a unique ID.
func (m *Manager) CreateSession(userID string, params *sync.Map) shared.ISession {
	session := NewSession(m, userID, m.inputProcessor, params)
	session.stateless = m.statelessMode

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.logger.Debug("Created new session",
		zap.String("sessionID", session.ID),
		zap.String("userID", userID),
	)
	return session
}

// GetSession retrieves a session by its ID.
func (m *Manager) GetSession(id string) (shared.ISession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, errors.New("session not found")
	}
	return session, nil
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseSession removes a session and releases its resources.
func (m *Manager) CloseSession(id string) {
	m.mu.Lock()
	session, exists := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !exists {
		m.logger.Warn("Attempted to close non-existent session", zap.String("sessionID", id))
		return
	}
	if err := session.Close(); err != nil {
		m.logger.Error("Error closing session resources", zap.String("sessionID", id), zap.Error(err))
	}
	m.logger.Info("Closed session", zap.String("sessionID", id))
}

func (m *Manager) CloseAllSessions() {
	m.mu.Lock()
	idsToClose := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		idsToClose = append(idsToClose, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range idsToClose {
		wg.Add(1)
		go func(sessionID string) {
			defer wg.Done()
			m.CloseSession(sessionID)
		}(id)
	}
	wg.Wait()
	m.logger.Info("Closed all sessions")
}

// Stop shuts down the dispatch loop. Sessions are left to CloseAllSessions.
func (m *Manager) Stop() {
	m.processCancel()
	m.inputProcessor.Stop()
}

// NotifyEligibleSessions broadcasts a notification to every connected session.
func (m *Manager) NotifyEligibleSessions(method string, params map[string]any) {
	m.mu.RLock()
	sessionsToNotify := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if session.GetStatus() == shared.StatusConnected {
			sessionsToNotify = append(sessionsToNotify, session)
		}
	}
	m.mu.RUnlock()

	if len(sessionsToNotify) == 0 {
		return
	}
	m.logger.Debug("Sending notification to eligible sessions",
		zap.String("method", method),
		zap.Int("count", len(sessionsToNotify)),
	)
	for _, session := range sessionsToNotify {
		session.SendNotification(context.Background(), method, params)
	}
}
