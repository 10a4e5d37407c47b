package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/relay4ai/mcp/server/mcp"
	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

var _ shared.IServerCapability = (*LoggingCapability)(nil)

// LoggingCapability lets the client tune the severity of the log
// notifications it receives.
type LoggingCapability struct {
	logger   *zap.Logger
	handlers map[string]shared.MessageHandler
}

// NewLoggingCapability creates a new LoggingCapability.
func NewLoggingCapability(logger *zap.Logger) *LoggingCapability {
	lc := &LoggingCapability{
		logger: logger,
	}
	lc.handlers = map[string]shared.MessageHandler{
		"logging/setLevel": lc.handleSetLevel,
	}
	return lc
}

func (lc *LoggingCapability) GetHandlers() map[string]shared.MessageHandler {
	return lc.handlers
}

func (lc *LoggingCapability) SetCapabilities(s *schema.ServerCapabilities) {
	s.Logging = &struct{}{}
}

// handleSetLevel handles the "logging/setLevel" request.
func (lc *LoggingCapability) handleSetLevel(ctx context.Context, msg *shared.Message) (interface{}, error) {
	logger := lc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "logging/setLevel"))

	var params schema.SetLevelRequestParams
	if msg.Params == nil {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*msg.Params, &params); err != nil {
		logger.Error("Failed to unmarshal setLevel params", zap.Error(err))
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("invalid parameters: %v", err)}
	}

	session, ok := msg.Session.(*mcp.Session)
	if !ok {
		logger.Error("Session type assertion failed in handleSetLevel")
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInternal, Message: "internal server error: invalid session type"}
	}
	if err := session.SetLoggingLevel(params.Level); err != nil {
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: err.Error()}
	}

	logger.Info("Session logging level changed", zap.String("level", string(params.Level)))
	return map[string]interface{}{}, nil
}
