package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/relay4ai/mcp/shared/config"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("session not found")

// AuthenticationManager authenticates the credentials presented on a request.
type AuthenticationManager interface {
	// Authenticate validates an authorization key and returns the user ID and
	// initial session parameters. An empty authKey means anonymous access;
	// remoteAddr is recorded either way.
	Authenticate(authKey string, remoteAddr string) (userID string, sessionParams *sync.Map, err error)
}

// DefaultAuthManager resolves API keys through the config's key-hash lookup.
type DefaultAuthManager struct {
	logger *zap.Logger
	config config.IConfig
}

var _ AuthenticationManager = (*DefaultAuthManager)(nil)

// NewAuthenticator creates the default key-based authentication manager.
func NewAuthenticator(cfg config.IConfig, logger *zap.Logger) *DefaultAuthManager {
	return &DefaultAuthManager{
		config: cfg,
		logger: logger,
	}
}

// Authenticate validates the provided key and remote address, returning the
// user ID if valid.
func (a *DefaultAuthManager) Authenticate(authKey string, remoteAddr string) (userID string, sessionParams *sync.Map, err error) {
	sessionParams = &sync.Map{}
	if remoteAddr != "" {
		SaveRemoteAddr(sessionParams, remoteAddr)
	}

	authType, err := a.config.AuthorizationType()
	if err != nil {
		return "", nil, err
	}

	if authKey != "" {
		keyHash := config.HashAPIKey(authKey)
		userID, err = a.config.GetUserIDByKeyHash(keyHash)
		if err != nil && !errors.Is(err, config.ErrNotFound) {
			a.logger.Error("Error checking key hash", zap.Error(err))
		} else if err == nil && userID != "" {
			a.logger.Debug("Authenticated via API Key", zap.String("userID", userID))
		} else {
			userID = "" // key invalid
		}
	}

	if userID == "" && authType == config.AuthorizedUsersOnly {
		a.logger.Warn("Authorization required but no valid key found", zap.String("authType", authType.String()))
		return "", nil, ErrSessionNotFound
	}

	SaveAuthKey(sessionParams, authKey)
	SaveUserId(sessionParams, userID)
	return userID, sessionParams, nil
}

// JWTAuthManager authenticates bearer tokens as HS256-signed JWTs. The token
// subject becomes the user ID.
type JWTAuthManager struct {
	logger *zap.Logger
	config config.IConfig
}

var _ AuthenticationManager = (*JWTAuthManager)(nil)

// NewJWTAuthenticator creates a JWT-based authentication manager using the
// shared secret from config.
func NewJWTAuthenticator(cfg config.IConfig, logger *zap.Logger) *JWTAuthManager {
	return &JWTAuthManager{
		config: cfg,
		logger: logger,
	}
}

func (a *JWTAuthManager) Authenticate(authKey string, remoteAddr string) (string, *sync.Map, error) {
	sessionParams := &sync.Map{}
	if remoteAddr != "" {
		SaveRemoteAddr(sessionParams, remoteAddr)
	}

	authType, err := a.config.AuthorizationType()
	if err != nil {
		return "", nil, err
	}
	secret, err := a.config.JWTSecret()
	if err != nil {
		return "", nil, err
	}

	var userID string
	if authKey != "" && secret != "" {
		token, err := jwt.Parse(authKey, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil {
			a.logger.Warn("JWT validation failed", zap.Error(err))
		} else if token.Valid {
			subject, err := token.Claims.GetSubject()
			if err != nil || subject == "" {
				a.logger.Warn("JWT has no usable subject", zap.Error(err))
			} else {
				userID = subject
				a.logger.Debug("Authenticated via JWT", zap.String("userID", userID))
			}
		}
	}

	if userID == "" && authType == config.AuthorizedUsersOnly {
		return "", nil, ErrSessionNotFound
	}

	SaveAuthKey(sessionParams, authKey)
	SaveUserId(sessionParams, userID)
	return userID, sessionParams, nil
}

// extractAuthKey pulls the bearer credential from the Authorization header.
func extractAuthKey(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// --- Session Parameter Helpers ---

// Constants for session parameter keys
const (
	UserIDKey     = "authenticator_user_id"
	AuthKeyKey    = "authenticator_auth_key"
	RemoteAddrKey = "authenticator_remote_addr"
)

func SaveUserId(sessionParams *sync.Map, userID string) {
	sessionParams.Store(UserIDKey, userID)
}

func GetUserId(sessionParams *sync.Map) string {
	userID, ok := sessionParams.Load(UserIDKey)
	if !ok {
		return ""
	}
	return userID.(string)
}

func SaveAuthKey(sessionParams *sync.Map, authKey string) {
	sessionParams.Store(AuthKeyKey, authKey)
}

func GetAuthKey(sessionParams *sync.Map) string {
	authKey, ok := sessionParams.Load(AuthKeyKey)
	if !ok {
		return ""
	}
	return authKey.(string)
}

func SaveRemoteAddr(sessionParams *sync.Map, remoteAddr string) {
	sessionParams.Store(RemoteAddrKey, remoteAddr)
}

func GetRemoteAddr(sessionParams *sync.Map) string {
	remoteAddr, ok := sessionParams.Load(RemoteAddrKey)
	if !ok {
		return ""
	}
	return remoteAddr.(string)
}
