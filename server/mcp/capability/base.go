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

// Protocol versions this server accepts during the initialize handshake.
var supportedVersions = map[string]bool{
	schema.PROTOCOL_VERSION:          true,
	schema.PROTOCOL_VERSION_20250326: true,
}

const latestSupportedVersion = schema.PROTOCOL_VERSION

var _ shared.IServerCapability = (*BaseCapability)(nil)

// BaseCapability provides the fundamental protocol handlers: the initialize
// handshake, ping and cancellation.
type BaseCapability struct {
	logger   *zap.Logger
	manager  mcp.ISessionManager
	handlers map[string]shared.MessageHandler
}

// NewBase creates a new BaseCapability.
func NewBase(logger *zap.Logger, manager mcp.ISessionManager) *BaseCapability {
	bc := &BaseCapability{
		logger:  logger,
		manager: manager,
	}
	bc.handlers = map[string]shared.MessageHandler{
		"ping":                      bc.handlePing,
		"initialize":                bc.handleInitialize,
		"notifications/initialized": bc.handleNotificationInitialized,
		"notifications/cancelled":   bc.handleNotificationCancelled,
		"notifications/progress":    bc.handleNotificationProgress,
	}
	return bc
}

func (bc *BaseCapability) GetHandlers() map[string]shared.MessageHandler {
	return bc.handlers
}

// SetCapabilities is a no-op: the handshake itself is not an advertised
// feature.
func (bc *BaseCapability) SetCapabilities(s *schema.ServerCapabilities) {}

// handleInitialize negotiates the protocol version and records the client's
// identity and capabilities on the session.
func (bc *BaseCapability) handleInitialize(ctx context.Context, msg *shared.Message) (interface{}, error) {
	logger := bc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "initialize"))

	var params schema.InitializeRequestParams
	if msg.Params == nil {
		logger.Warn("Received initialize request with missing params")
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: "Missing params"}
	}
	if err := json.Unmarshal(*msg.Params, &params); err != nil {
		logger.Error("Failed to unmarshal initialize params", zap.Error(err), zap.ByteString("params", *msg.Params))
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInvalidParams, Message: fmt.Sprintf("Invalid parameters: %v", err)}
	}

	logger.Info("Received initialize request",
		zap.String("requestedVersion", params.ProtocolVersion),
		zap.String("clientName", params.ClientInfo.Name),
		zap.String("clientVersion", params.ClientInfo.Version),
	)

	// A supported requested version is echoed back; anything else gets the
	// latest version this server speaks and the client decides whether to
	// continue.
	negotiatedVersion := latestSupportedVersion
	if supportedVersions[params.ProtocolVersion] {
		negotiatedVersion = params.ProtocolVersion
	} else if params.ProtocolVersion != "" {
		logger.Warn("Client requested unsupported version, responding with server's latest",
			zap.String("requestedVersion", params.ProtocolVersion),
			zap.String("negotiatedVersion", negotiatedVersion))
	}

	session, ok := msg.Session.(mcp.IDownstreamSession)
	if !ok {
		logger.Error("Session type assertion failed in handleInitialize")
		return nil, &shared.JSONRPCError{Code: shared.JSONRPCErrorInternal, Message: "Internal server error: invalid session type"}
	}
	session.SetNegotiatedVersion(negotiatedVersion)
	session.SetClientInfo(params.ClientInfo, params.Capabilities)

	// Every registered capability fills in what it advertises.
	capabilities := schema.ServerCapabilities{}
	msg.Session.Input().SetCapabilities(&capabilities)

	response := schema.InitializeResult{
		ProtocolVersion: negotiatedVersion,
		Capabilities:    capabilities,
		ServerInfo:      *bc.manager.GetServerInfo(),
	}
	if m, ok := bc.manager.(*mcp.Manager); ok {
		response.Instructions = m.Instructions
	}

	session.SetStatus(shared.StatusConnecting)
	logger.Debug("Sending initialize response", zap.String("negotiatedVersion", negotiatedVersion))
	return response, nil
}

// handleNotificationInitialized completes the handshake.
func (bc *BaseCapability) handleNotificationInitialized(ctx context.Context, msg *shared.Message) (interface{}, error) {
	session := msg.Session
	logger := bc.logger.With(zap.String("sessionID", session.GetID()), zap.String("method", "notifications/initialized"))

	currentStatus := session.GetStatus()
	if currentStatus == shared.StatusConnected {
		logger.Debug("Received initialized notification for already connected session, ignoring")
		return nil, nil
	}
	if currentStatus != shared.StatusConnecting {
		logger.Warn("Received initialized notification for session not in connecting state",
			zap.String("status", currentStatus.String()))
	}

	if session.GetNegotiatedVersion() == "" {
		logger.Error("Received initialized notification before successful initialize handshake")
		return nil, &shared.JSONRPCError{
			Code:    shared.JSONRPCErrorInvalidRequest,
			Message: "Protocol error: received initialized notification before successful initialize",
		}
	}

	session.SetStatus(shared.StatusConnected)
	logger.Info("Session initialized and connected",
		zap.String("negotiatedVersion", session.GetNegotiatedVersion()),
	)
	return nil, nil
}

// handleNotificationCancelled aborts the in-flight request the client named.
// Unknown or already-finished requests are ignored.
func (bc *BaseCapability) handleNotificationCancelled(ctx context.Context, msg *shared.Message) (interface{}, error) {
	logger := bc.logger.With(zap.String("sessionID", msg.Session.GetID()), zap.String("method", "notifications/cancelled"))

	var params schema.CancelledNotificationParams
	if msg.Params == nil {
		logger.Warn("Cancellation notification without params")
		return nil, nil
	}
	if err := json.Unmarshal(*msg.Params, &params); err != nil {
		logger.Warn("Failed to unmarshal cancellation params", zap.Error(err))
		return nil, nil
	}

	if msg.Session.CancelIncoming(&params.RequestID) {
		logger.Debug("Cancelled in-flight request",
			zap.String("requestID", params.RequestID.String()),
			zap.String("reason", params.Reason),
		)
	} else {
		logger.Debug("Cancellation for unknown or finished request",
			zap.String("requestID", params.RequestID.String()),
		)
	}
	return nil, nil
}

// handleNotificationProgress accepts progress pushes from the client. The
// server does not track client-side progress; the notification is logged and
// dropped.
func (bc *BaseCapability) handleNotificationProgress(ctx context.Context, msg *shared.Message) (interface{}, error) {
	bc.logger.Debug("Received progress notification from client", zap.String("sessionID", msg.Session.GetID()))
	return nil, nil
}

// handlePing answers with an empty object.
func (bc *BaseCapability) handlePing(ctx context.Context, msg *shared.Message) (interface{}, error) {
	return map[string]interface{}{}, nil
}
