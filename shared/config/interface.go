package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// AuthorizationType represents different authorization strategies
type AuthorizationType int

const (
	// AuthorizedUsersOnly requires authentication for all requests
	AuthorizedUsersOnly AuthorizationType = iota
	// NotAuthorizedToMarkedMethods requires authentication for specific methods
	NotAuthorizedToMarkedMethods
	// NotAuthorizedEverywhere allows all requests without authentication
	NotAuthorizedEverywhere
)

// Helper method for AuthorizationType string representation
func (at AuthorizationType) String() string {
	names := [...]string{"AuthorizedUsersOnly", "NotAuthorizedToMarkedMethods", "NotAuthorizedEverywhere"}
	if at < 0 || int(at) >= len(names) {
		return "Unknown"
	}
	return names[at]
}

type IConfig interface {
	// Core Server Settings
	ListenAddr() (string, error)
	ServerName() (string, error)
	ServerVersion() (string, error)
	AuthorizationType() (AuthorizationType, error)
	LogLevel() (string, error)

	// Session Settings
	SessionTimeout() (time.Duration, error)
	StatelessMode() (bool, error)

	// Request Limit Settings
	MaxMessageSize() (int64, error)  // byte cap on one message's params/result
	RequestsPerSecond() (int, error) // per-session rate limit, 0 disables
	RequestsPerMinute() (int, error) // per-session rate limit, 0 disables

	// Streaming Settings
	EventRetainLimit() (int, error) // events kept per stream for SSE resumption

	// Task Settings
	TaskStoreBackend() (string, error) // "memory" or "postgres"
	TaskDatabaseURL() (string, error)
	TaskDefaultTTL() (time.Duration, error)
	TaskSweepInterval() (time.Duration, error)
	TaskListPageSize() (int, error)

	// User & Auth Settings
	GetUserIDByKeyHash(keyHash string) (userID string, err error)
	GetUserParams(userID string) (params map[string]string, err error)
	JWTSecret() (string, error)

	// SSL Settings
	SSLEnabled() (bool, error)
	SSLMode() (string, error)          // Returns "manual" or "acme"
	SSLCertFile() (string, error)      // Path to certificate file (manual mode)
	SSLKeyFile() (string, error)       // Path to private key file (manual mode)
	SSLAcmeDomains() ([]string, error) // List of domains for ACME
	SSLAcmeEmail() (string, error)     // Contact email for ACME
	SSLAcmeCacheDir() (string, error)  // Directory to cache ACME certificates

	// Lifecycle & Status
	Status(ctx context.Context) error
	Close() error
}

// Default values applied when a provider has no explicit setting.
const (
	DefaultSessionTimeout    = 30 * time.Minute
	DefaultEventRetainLimit  = 1024
	DefaultTaskDefaultTTL    = 15 * time.Minute
	DefaultTaskSweepInterval = 30 * time.Second
	DefaultTaskListPageSize  = 50
	DefaultMaxMessageSize    = int64(100 * 1024)
	DefaultRequestsPerSecond = 60
	DefaultRequestsPerMinute = 600
)

// HashAPIKey converts a plaintext API key to its SHA-256 hash representation
func HashAPIKey(key string) string {
	if key == "" {
		return ""
	}
	hasher := sha256.New()
	hasher.Write([]byte(key))
	return hex.EncodeToString(hasher.Sum(nil))
}
