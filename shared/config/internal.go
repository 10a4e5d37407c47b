package config

import (
	"context"
	"errors"
	"sync"
	"time"
)

var _ IConfig = (*InternalConfig)(nil)
var ErrNotFound = errors.New("not found")

// InternalConfig implements all configuration interfaces with in-memory storage
type InternalConfig struct {
	mu                     sync.RWMutex
	ServerAddress          string
	ServerNameValue        string
	ServerVersionValue     string
	AuthorizationTypeValue AuthorizationType
	LogLevelValue          string
	SessionTimeoutValue    time.Duration
	StatelessModeValue     bool
	MaxMessageSizeValue    int64
	RequestsPerSecValue    int
	RequestsPerMinValue    int
	EventRetainLimitValue  int
	TaskStoreBackendValue  string
	TaskDatabaseURLValue   string
	TaskDefaultTTLValue    time.Duration
	TaskSweepValue         time.Duration
	TaskListPageSizeValue  int
	JWTSecretValue         string
	UserKeyHashes          map[string]string            // keyHash -> userID
	userParams             map[string]map[string]string // userID -> paramName -> paramValue
}

// NewInternalConfig creates a new in-memory configuration
func NewInternalConfig() *InternalConfig {
	return &InternalConfig{
		ServerAddress:         ":8080",
		ServerNameValue:       "Unknown",
		ServerVersionValue:    "0.0.0",
		LogLevelValue:         "info",
		SessionTimeoutValue:   DefaultSessionTimeout,
		MaxMessageSizeValue:   DefaultMaxMessageSize,
		RequestsPerSecValue:   DefaultRequestsPerSecond,
		RequestsPerMinValue:   DefaultRequestsPerMinute,
		EventRetainLimitValue: DefaultEventRetainLimit,
		TaskStoreBackendValue: "memory",
		TaskDefaultTTLValue:   DefaultTaskDefaultTTL,
		TaskSweepValue:        DefaultTaskSweepInterval,
		TaskListPageSizeValue: DefaultTaskListPageSize,

		UserKeyHashes: make(map[string]string),
		userParams:    make(map[string]map[string]string),
	}
}

func (c *InternalConfig) ListenAddr() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerAddress, nil
}

func (c *InternalConfig) SetListenAddr(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ServerAddress = addr
}

func (c *InternalConfig) AuthorizationType() (AuthorizationType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AuthorizationTypeValue, nil
}

func (c *InternalConfig) ServerName() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerNameValue, nil
}

func (c *InternalConfig) ServerVersion() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ServerVersionValue, nil
}

// LogLevel returns the configured log level
func (c *InternalConfig) LogLevel() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LogLevelValue, nil
}

func (c *InternalConfig) SessionTimeout() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.SessionTimeoutValue, nil
}

func (c *InternalConfig) SetSessionTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SessionTimeoutValue = d
}

func (c *InternalConfig) StatelessMode() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.StatelessModeValue, nil
}

func (c *InternalConfig) SetStatelessMode(stateless bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StatelessModeValue = stateless
}

func (c *InternalConfig) MaxMessageSize() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MaxMessageSizeValue, nil
}

func (c *InternalConfig) RequestsPerSecond() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.RequestsPerSecValue, nil
}

func (c *InternalConfig) RequestsPerMinute() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.RequestsPerMinValue, nil
}

func (c *InternalConfig) EventRetainLimit() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.EventRetainLimitValue, nil
}

func (c *InternalConfig) TaskStoreBackend() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TaskStoreBackendValue, nil
}

func (c *InternalConfig) TaskDatabaseURL() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TaskDatabaseURLValue, nil
}

func (c *InternalConfig) TaskDefaultTTL() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TaskDefaultTTLValue, nil
}

func (c *InternalConfig) TaskSweepInterval() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TaskSweepValue, nil
}

func (c *InternalConfig) TaskListPageSize() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TaskListPageSizeValue, nil
}

func (c *InternalConfig) JWTSecret() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.JWTSecretValue, nil
}

func (c *InternalConfig) SetJWTSecret(secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.JWTSecretValue = secret
}

func (c *InternalConfig) GetUserIDByKeyHash(keyHash string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// If empty key hash, return empty user ID
	if keyHash == "" {
		return "", nil
	}

	return c.UserKeyHashes[keyHash], nil
}

func (c *InternalConfig) GetUserParams(userID string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	params, exists := c.userParams[userID]
	if !exists {
		return make(map[string]string), nil
	}

	// Return a copy to prevent concurrent modification
	paramsCopy := make(map[string]string, len(params))
	for k, v := range params {
		paramsCopy[k] = v
	}
	return paramsCopy, nil
}

func (c *InternalConfig) SetUserParam(userID, paramName, paramValue string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	params, exists := c.userParams[userID]
	if !exists {
		params = make(map[string]string)
		c.userParams[userID] = params
	}

	params[paramName] = paramValue
}

// SSL settings: the in-memory provider serves plain HTTP.

func (c *InternalConfig) SSLEnabled() (bool, error)         { return false, nil }
func (c *InternalConfig) SSLMode() (string, error)          { return "manual", nil }
func (c *InternalConfig) SSLCertFile() (string, error)      { return "", nil }
func (c *InternalConfig) SSLKeyFile() (string, error)       { return "", nil }
func (c *InternalConfig) SSLAcmeDomains() ([]string, error) { return []string{}, nil }
func (c *InternalConfig) SSLAcmeEmail() (string, error)     { return "", nil }
func (c *InternalConfig) SSLAcmeCacheDir() (string, error)  { return "", nil }

func (c *InternalConfig) Close() error {
	return nil
}

func (c *InternalConfig) Status(ctx context.Context) error {
	return nil
}
