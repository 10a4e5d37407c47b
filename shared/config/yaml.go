package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var _ IConfig = (*YamlConfig)(nil)

// YamlConfig implements all configuration interfaces with YAML file-based storage
type YamlConfig struct {
	mu                sync.RWMutex
	configPath        string
	logger            *zap.Logger
	watcher           *fsnotify.Watcher
	watchDone         chan struct{}
	serverAddress     string
	serverName        string
	serverVersion     string
	logLevel          string
	authorizationType AuthorizationType
	sessionTimeout    time.Duration
	statelessMode     bool
	maxMessageSize    int64
	requestsPerSecond int
	requestsPerMinute int
	eventRetainLimit  int
	jwtSecret         string
	taskStoreBackend  string
	taskDatabaseURL   string
	taskDefaultTTL    time.Duration
	taskSweepInterval time.Duration
	taskListPageSize  int
	userKeyHashes     map[string]string            // keyHash -> userID (generated on load)
	userParams        map[string]map[string]string // userID -> paramName -> paramValue

	// SSL Fields
	sslEnabled      bool
	sslMode         string
	sslCertFile     string
	sslKeyFile      string
	sslAcmeDomains  []string
	sslAcmeEmail    string
	sslAcmeCacheDir string
}

// YAML configuration structure matching the required format
type yamlConfig struct {
	Server struct {
		Address          string `yaml:"address"`
		Name             string `yaml:"name"`
		Version          string `yaml:"version"`
		LogLevel         string `yaml:"log_level"`
		Authorization    string `yaml:"authorization"` // "users_only", "marked_methods", or "none"
		SessionTimeout   string `yaml:"session_timeout"`
		Stateless        bool   `yaml:"stateless"`
		MaxMessageSize   int64  `yaml:"max_message_size"`
		RequestsPerSec   int    `yaml:"requests_per_second"`
		RequestsPerMin   int    `yaml:"requests_per_minute"`
		EventRetainLimit int    `yaml:"event_retain_limit"`
		JWTSecret        string `yaml:"jwt_secret"`
		SSL              struct {
			Enabled      bool     `yaml:"enabled"`
			Mode         string   `yaml:"mode"`
			CertFile     string   `yaml:"cert_file"`
			KeyFile      string   `yaml:"key_file"`
			AcmeDomains  []string `yaml:"acme_domains"`
			AcmeEmail    string   `yaml:"acme_email"`
			AcmeCacheDir string   `yaml:"acme_cache_dir"`
		} `yaml:"ssl"`
	} `yaml:"server"`

	Tasks struct {
		Store         string `yaml:"store"` // "memory" or "postgres"
		DatabaseURL   string `yaml:"database_url"`
		DefaultTTL    string `yaml:"default_ttl"`
		SweepInterval string `yaml:"sweep_interval"`
		ListPageSize  int    `yaml:"list_page_size"`
	} `yaml:"tasks"`

	Users map[string]struct {
		Keys   []string          `yaml:"keys"` // Store hashes directly
		Params map[string]string `yaml:"params"`
	} `yaml:"users"`
}

// NewYamlConfig creates a new YAML-based configuration
func NewYamlConfig(configPath string, logger *zap.Logger) (*YamlConfig, error) {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	config := &YamlConfig{
		configPath:        configPath,
		logger:            logger,
		userKeyHashes:     make(map[string]string),
		userParams:        make(map[string]map[string]string),
		authorizationType: AuthorizedUsersOnly, // Default
		sessionTimeout:    DefaultSessionTimeout,
		maxMessageSize:    DefaultMaxMessageSize,
		requestsPerSecond: DefaultRequestsPerSecond,
		requestsPerMinute: DefaultRequestsPerMinute,
		eventRetainLimit:  DefaultEventRetainLimit,
		taskStoreBackend:  "memory",
		taskDefaultTTL:    DefaultTaskDefaultTTL,
		taskSweepInterval: DefaultTaskSweepInterval,
		taskListPageSize:  DefaultTaskListPageSize,
		sslMode:           "manual",
		sslAcmeCacheDir:   "./.autocert-cache",
	}

	if err := config.Update(); err != nil {
		return nil, err
	}
	return config, nil
}

// Update reloads configuration from the YAML file
func (c *YamlConfig) Update() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("Updating configuration from YAML file", zap.String("path", c.configPath))

	data, err := os.ReadFile(c.configPath)
	if err != nil {
		c.logger.Error("Failed to read config file", zap.Error(err))
		return err
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		c.logger.Error("Failed to parse YAML", zap.Error(err))
		return err
	}

	// --- Process Server Section ---
	c.serverAddress = yamlCfg.Server.Address
	c.serverName = yamlCfg.Server.Name
	c.serverVersion = yamlCfg.Server.Version
	c.logLevel = yamlCfg.Server.LogLevel
	c.statelessMode = yamlCfg.Server.Stateless
	c.jwtSecret = yamlCfg.Server.JWTSecret
	if yamlCfg.Server.EventRetainLimit > 0 {
		c.eventRetainLimit = yamlCfg.Server.EventRetainLimit
	}
	if yamlCfg.Server.MaxMessageSize > 0 {
		c.maxMessageSize = yamlCfg.Server.MaxMessageSize
	}
	if yamlCfg.Server.RequestsPerSec > 0 {
		c.requestsPerSecond = yamlCfg.Server.RequestsPerSec
	}
	if yamlCfg.Server.RequestsPerMin > 0 {
		c.requestsPerMinute = yamlCfg.Server.RequestsPerMin
	}
	c.sessionTimeout = parseDurationOr(yamlCfg.Server.SessionTimeout, DefaultSessionTimeout, c.logger, "server.session_timeout")
	switch strings.ToLower(yamlCfg.Server.Authorization) {
	case "users_only":
		c.authorizationType = AuthorizedUsersOnly
	case "marked_methods":
		c.authorizationType = NotAuthorizedToMarkedMethods
	case "none":
		c.authorizationType = NotAuthorizedEverywhere
	default:
		c.authorizationType = AuthorizedUsersOnly
	}

	// --- Process SSL Section ---
	c.sslEnabled = yamlCfg.Server.SSL.Enabled
	c.sslMode = strings.ToLower(yamlCfg.Server.SSL.Mode)
	if c.sslMode != "acme" {
		c.sslMode = "manual"
	}
	c.sslCertFile = yamlCfg.Server.SSL.CertFile
	c.sslKeyFile = yamlCfg.Server.SSL.KeyFile
	c.sslAcmeDomains = yamlCfg.Server.SSL.AcmeDomains
	c.sslAcmeEmail = yamlCfg.Server.SSL.AcmeEmail
	c.sslAcmeCacheDir = yamlCfg.Server.SSL.AcmeCacheDir
	if c.sslAcmeCacheDir == "" {
		c.sslAcmeCacheDir = "./.autocert-cache"
	}

	// --- Process Tasks Section ---
	if yamlCfg.Tasks.Store != "" {
		c.taskStoreBackend = strings.ToLower(yamlCfg.Tasks.Store)
	}
	c.taskDatabaseURL = yamlCfg.Tasks.DatabaseURL
	c.taskDefaultTTL = parseDurationOr(yamlCfg.Tasks.DefaultTTL, DefaultTaskDefaultTTL, c.logger, "tasks.default_ttl")
	c.taskSweepInterval = parseDurationOr(yamlCfg.Tasks.SweepInterval, DefaultTaskSweepInterval, c.logger, "tasks.sweep_interval")
	if yamlCfg.Tasks.ListPageSize > 0 {
		c.taskListPageSize = yamlCfg.Tasks.ListPageSize
	}

	// --- Process Users Section ---
	newUserKeyHashes := make(map[string]string)
	newUserParams := make(map[string]map[string]string)
	for userID, user := range yamlCfg.Users {
		for _, keyHash := range user.Keys { // Assume keys in YAML are already hashes
			newUserKeyHashes[keyHash] = userID
		}
		if len(user.Params) > 0 {
			paramsCopy := make(map[string]string, len(user.Params))
			for k, v := range user.Params {
				paramsCopy[k] = v
			}
			newUserParams[userID] = paramsCopy
		}
	}
	c.userKeyHashes = newUserKeyHashes
	c.userParams = newUserParams

	return nil
}

func parseDurationOr(value string, fallback time.Duration, logger *zap.Logger, field string) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("Invalid duration in config, using default",
			zap.String("field", field),
			zap.String("value", value),
			zap.Duration("default", fallback),
		)
		return fallback
	}
	return d
}

// Watch reloads the configuration whenever the underlying file changes.
// It returns after installing the watcher; reloads happen in the background
// until Close is called.
func (c *YamlConfig) Watch() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(c.configPath); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}
	c.watcher = watcher
	c.watchDone = make(chan struct{})

	go func() {
		defer close(c.watchDone)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
					c.logger.Info("Config file changed, reloading", zap.String("path", event.Name))
					if err := c.Update(); err != nil {
						c.logger.Error("Config reload failed, keeping previous values", zap.Error(err))
					}
				}
				// Editors often replace the file instead of writing in place.
				if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
					if err := watcher.Add(c.configPath); err != nil {
						c.logger.Warn("Config file disappeared, watch suspended", zap.Error(err))
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Error("Config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (c *YamlConfig) Close() error {
	c.mu.Lock()
	watcher := c.watcher
	done := c.watchDone
	c.watcher = nil
	c.watchDone = nil
	c.mu.Unlock()

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			return err
		}
		<-done
	}
	return nil
}

func (c *YamlConfig) ListenAddr() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverAddress, nil
}
func (c *YamlConfig) AuthorizationType() (AuthorizationType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authorizationType, nil
}
func (c *YamlConfig) ServerName() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverName, nil
}
func (c *YamlConfig) ServerVersion() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverVersion, nil
}
func (c *YamlConfig) LogLevel() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logLevel, nil
}
func (c *YamlConfig) SessionTimeout() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionTimeout, nil
}
func (c *YamlConfig) StatelessMode() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statelessMode, nil
}
func (c *YamlConfig) MaxMessageSize() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxMessageSize, nil
}
func (c *YamlConfig) RequestsPerSecond() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requestsPerSecond, nil
}
func (c *YamlConfig) RequestsPerMinute() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requestsPerMinute, nil
}
func (c *YamlConfig) EventRetainLimit() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eventRetainLimit, nil
}
func (c *YamlConfig) TaskStoreBackend() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.taskStoreBackend, nil
}
func (c *YamlConfig) TaskDatabaseURL() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.taskDatabaseURL, nil
}
func (c *YamlConfig) TaskDefaultTTL() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.taskDefaultTTL, nil
}
func (c *YamlConfig) TaskSweepInterval() (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.taskSweepInterval, nil
}
func (c *YamlConfig) TaskListPageSize() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.taskListPageSize, nil
}
func (c *YamlConfig) JWTSecret() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jwtSecret, nil
}

func (c *YamlConfig) GetUserIDByKeyHash(keyHash string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if keyHash == "" {
		return "", nil
	}
	userID, exists := c.userKeyHashes[keyHash]
	if !exists {
		return "", ErrNotFound
	}
	return userID, nil
}

func (c *YamlConfig) GetUserParams(userID string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	params, exists := c.userParams[userID]
	if !exists {
		return make(map[string]string), nil
	}
	paramsCopy := make(map[string]string, len(params))
	for k, v := range params {
		paramsCopy[k] = v
	}
	return paramsCopy, nil
}

func (c *YamlConfig) Status(ctx context.Context) error {
	// Check if config file exists and is readable
	if _, err := os.Stat(c.configPath); err != nil {
		c.logger.Error("YAML config file status check failed", zap.String("path", c.configPath), zap.Error(err))
		return fmt.Errorf("config file error: %w", err)
	}
	return nil
}

// --- SSL Methods ---
func (c *YamlConfig) SSLEnabled() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslEnabled, nil
}
func (c *YamlConfig) SSLMode() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslMode, nil
}
func (c *YamlConfig) SSLCertFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslCertFile, nil
}
func (c *YamlConfig) SSLKeyFile() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslKeyFile, nil
}
func (c *YamlConfig) SSLAcmeDomains() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	domainsCopy := make([]string, len(c.sslAcmeDomains))
	copy(domainsCopy, c.sslAcmeDomains)
	return domainsCopy, nil
}
func (c *YamlConfig) SSLAcmeEmail() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslAcmeEmail, nil
}
func (c *YamlConfig) SSLAcmeCacheDir() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sslAcmeCacheDir, nil
}
