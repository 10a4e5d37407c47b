package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var _ IConfig = (*DatabaseConfig)(nil)

// DatabaseConfig implements all configuration interfaces with PostgreSQL
// database-based storage. Server settings live in the "Settings" table as
// JSON values keyed by name; API keys and users have their own tables.
type DatabaseConfig struct {
	logger             *zap.Logger
	dbConnectionString string
}

// NewDatabaseConfig creates a new DatabaseConfig instance
func NewDatabaseConfig(dbConnectionString string, logger *zap.Logger) (*DatabaseConfig, error) {
	return &DatabaseConfig{
		dbConnectionString: dbConnectionString,
		logger:             logger,
	}, nil
}

// Close closes any resources held by the config
func (c *DatabaseConfig) Close() error {
	return nil
}

// --- IConfig Implementation ---

func (c *DatabaseConfig) ListenAddr() (string, error) {
	return c.getSettingString("server_listen_address", ":8080")
}

func (c *DatabaseConfig) AuthorizationType() (AuthorizationType, error) {
	rawValue, err := c.getSettingJSON("server_authorization_type")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthorizedUsersOnly, nil
		}
		return AuthorizedUsersOnly, err
	}
	switch v := rawValue.(type) {
	case float64:
		return AuthorizationType(int(v)), nil
	case string:
		switch strings.ToLower(v) {
		case "authorizedusersonly", "users_only":
			return AuthorizedUsersOnly, nil
		case "notauthorizedtomarkedmethods", "marked_methods":
			return NotAuthorizedToMarkedMethods, nil
		case "notauthorizedeverywhere", "none":
			return NotAuthorizedEverywhere, nil
		default:
			var authTypeInt int
			if _, scanErr := fmt.Sscanf(v, "%d", &authTypeInt); scanErr == nil {
				if authTypeInt >= int(AuthorizedUsersOnly) && authTypeInt <= int(NotAuthorizedEverywhere) {
					return AuthorizationType(authTypeInt), nil
				}
			}
			return AuthorizedUsersOnly, fmt.Errorf("invalid authorization type string value: %s", v)
		}
	default:
		return AuthorizedUsersOnly, fmt.Errorf("invalid authorization type format in database: %T", rawValue)
	}
}

func (c *DatabaseConfig) GetUserIDByKeyHash(keyHash string) (string, error) {
	if keyHash == "" {
		return "", nil
	}

	db, err := sql.Open("postgres", c.dbConnectionString)
	if err != nil {
		return "", fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	query := `SELECT "userId" FROM "ApiKey" WHERE "keyHash" = $1 LIMIT 1`
	var userID string
	err = db.QueryRow(query, keyHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("query user by key hash: %w", err)
	}
	return userID, nil
}

func (c *DatabaseConfig) GetUserParams(userID string) (map[string]string, error) {
	db, err := sql.Open("postgres", c.dbConnectionString)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	query := `SELECT name, status, role, company FROM "User" WHERE id = $1 LIMIT 1`
	var name, status, role, company sql.NullString
	err = db.QueryRow(query, userID).Scan(&name, &status, &role, &company)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("query user params: %w", err)
	}
	params := make(map[string]string)
	if name.Valid {
		params["name"] = name.String
	}
	if status.Valid {
		params["status"] = status.String
	}
	if role.Valid {
		params["role"] = role.String
	}
	if company.Valid {
		params["company"] = company.String
	}
	return params, nil
}

func (c *DatabaseConfig) ServerName() (string, error) {
	return c.getSettingString("server_name", "MCP Server")
}
func (c *DatabaseConfig) ServerVersion() (string, error) {
	return c.getSettingString("server_version", "1.0.0")
}
func (c *DatabaseConfig) LogLevel() (string, error) {
	return c.getSettingString("server_log_level", "info")
}
func (c *DatabaseConfig) SessionTimeout() (time.Duration, error) {
	return c.getSettingDuration("server_session_timeout", DefaultSessionTimeout)
}
func (c *DatabaseConfig) StatelessMode() (bool, error) {
	return c.getSettingBool("server_stateless_mode", false)
}
func (c *DatabaseConfig) EventRetainLimit() (int, error) {
	return c.getSettingInt("server_event_retain_limit", DefaultEventRetainLimit)
}
func (c *DatabaseConfig) MaxMessageSize() (int64, error) {
	size, err := c.getSettingInt("server_max_message_size", int(DefaultMaxMessageSize))
	return int64(size), err
}
func (c *DatabaseConfig) RequestsPerSecond() (int, error) {
	return c.getSettingInt("server_requests_per_second", DefaultRequestsPerSecond)
}
func (c *DatabaseConfig) RequestsPerMinute() (int, error) {
	return c.getSettingInt("server_requests_per_minute", DefaultRequestsPerMinute)
}
func (c *DatabaseConfig) TaskStoreBackend() (string, error) {
	return c.getSettingString("tasks_store_backend", "postgres")
}
func (c *DatabaseConfig) TaskDatabaseURL() (string, error) {
	// The task store shares the settings database unless overridden.
	url, err := c.getSettingString("tasks_database_url", "")
	if err != nil || url == "" {
		return c.dbConnectionString, err
	}
	return url, nil
}
func (c *DatabaseConfig) TaskDefaultTTL() (time.Duration, error) {
	return c.getSettingDuration("tasks_default_ttl", DefaultTaskDefaultTTL)
}
func (c *DatabaseConfig) TaskSweepInterval() (time.Duration, error) {
	return c.getSettingDuration("tasks_sweep_interval", DefaultTaskSweepInterval)
}
func (c *DatabaseConfig) TaskListPageSize() (int, error) {
	return c.getSettingInt("tasks_list_page_size", DefaultTaskListPageSize)
}
func (c *DatabaseConfig) JWTSecret() (string, error) {
	return c.getSettingString("server_jwt_secret", "")
}
func (c *DatabaseConfig) Status(ctx context.Context) error {
	db, err := sql.Open("postgres", c.dbConnectionString)
	if err != nil {
		c.logger.Error("DB connect failed", zap.Error(err))
		return err
	}
	defer db.Close()
	if err = db.PingContext(ctx); err != nil {
		c.logger.Error("DB ping failed", zap.Error(err))
		return err
	}
	return nil
}
func (c *DatabaseConfig) SSLEnabled() (bool, error) {
	return c.getSettingBool("server_ssl_enabled", false)
}
func (c *DatabaseConfig) SSLMode() (string, error) {
	return c.getSettingString("server_ssl_mode", "manual")
}
func (c *DatabaseConfig) SSLCertFile() (string, error) {
	return c.getSettingString("server_ssl_cert_file", "")
}
func (c *DatabaseConfig) SSLKeyFile() (string, error) {
	return c.getSettingString("server_ssl_key_file", "")
}
func (c *DatabaseConfig) SSLAcmeEmail() (string, error) {
	return c.getSettingString("server_ssl_acme_email", "")
}
func (c *DatabaseConfig) SSLAcmeCacheDir() (string, error) {
	return c.getSettingString("server_ssl_acme_cache_dir", "./.autocert-cache")
}
func (c *DatabaseConfig) SSLAcmeDomains() ([]string, error) {
	return c.getSettingStringSlice("server_ssl_acme_domains", []string{})
}

// --- Database Helper Functions ---

func (c *DatabaseConfig) getSettingRaw(key string) ([]byte, error) {
	db, err := sql.Open("postgres", c.dbConnectionString)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	var valueStr sql.NullString
	err = db.QueryRowContext(context.Background(), `SELECT value FROM "Settings" WHERE key = $1 LIMIT 1`, key).Scan(&valueStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query setting '%s': %w", key, err)
	}
	if !valueStr.Valid {
		return nil, ErrNotFound
	}
	return []byte(valueStr.String), nil
}

func (c *DatabaseConfig) getSettingJSON(key string) (interface{}, error) {
	raw, err := c.getSettingRaw(key)
	if err != nil {
		return nil, err
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("unmarshal setting '%s': %w", key, err)
	}
	return value, nil
}

func (c *DatabaseConfig) getSettingString(key string, defaultValue string) (string, error) {
	value, err := c.getSettingJSON(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return defaultValue, nil
		}
		return defaultValue, err
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprintf("%v", int(v)), nil
	default:
		return defaultValue, fmt.Errorf("setting '%s' has unexpected type %T", key, value)
	}
}

func (c *DatabaseConfig) getSettingBool(key string, defaultValue bool) (bool, error) {
	value, err := c.getSettingJSON(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return defaultValue, nil
		}
		return defaultValue, err
	}
	boolValue, ok := value.(bool)
	if !ok {
		return defaultValue, fmt.Errorf("setting '%s' is not a boolean (type: %T)", key, value)
	}
	return boolValue, nil
}

func (c *DatabaseConfig) getSettingInt(key string, defaultValue int) (int, error) {
	value, err := c.getSettingJSON(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return defaultValue, nil
		}
		return defaultValue, err
	}
	floatValue, ok := value.(float64)
	if !ok {
		return defaultValue, fmt.Errorf("setting '%s' is not a number (type: %T)", key, value)
	}
	return int(floatValue), nil
}

func (c *DatabaseConfig) getSettingDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	str, err := c.getSettingString(key, "")
	if err != nil || str == "" {
		return defaultValue, err
	}
	d, parseErr := time.ParseDuration(str)
	if parseErr != nil {
		return defaultValue, fmt.Errorf("setting '%s' is not a duration: %w", key, parseErr)
	}
	return d, nil
}

func (c *DatabaseConfig) getSettingStringSlice(key string, defaultValue []string) ([]string, error) {
	value, err := c.getSettingJSON(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return defaultValue, nil
		}
		return defaultValue, err
	}
	if sliceInterface, ok := value.([]interface{}); ok {
		strSlice := make([]string, 0, len(sliceInterface))
		for i, item := range sliceInterface {
			if strVal, ok := item.(string); ok {
				strSlice = append(strSlice, strVal)
			} else {
				return defaultValue, fmt.Errorf("non-string value at index %d in setting '%s'", i, key)
			}
		}
		return strSlice, nil
	}
	if strSlice, ok := value.([]string); ok {
		return strSlice, nil
	}
	return defaultValue, fmt.Errorf("setting '%s' is not a JSON array of strings (type: %T)", key, value)
}
