package transport

import (
	"net/http"

	"go.uber.org/zap"
)

// handleDELETE terminates the session named by the Mcp-Session-Id header.
func (t *Transport) handleDELETE(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	if t.statelessMode {
		logger.Warn("DELETE requested in stateless mode")
		http.Error(w, "Method Not Allowed", statusMethodNotAllowed)
		return
	}

	sessionIDHeader := r.Header.Get(MCP_SESSION_HEADER)
	if sessionIDHeader == "" {
		logger.Warn("Missing Mcp-Session-Id header for DELETE request")
		http.Error(w, "Bad Request: Mcp-Session-Id header required", statusBadRequest)
		return
	}

	if _, err := t.sessionManager.GetSession(sessionIDHeader); err != nil {
		logger.Warn("Session not found for DELETE request", zap.String("sessionId", sessionIDHeader), zap.Error(err))
		http.Error(w, "Not Found: Session expired or invalid", statusNotFound)
		return
	}

	logger.Info("Received DELETE request, closing session", zap.String("sessionId", sessionIDHeader))
	t.sessionManager.CloseSession(sessionIDHeader)

	w.WriteHeader(http.StatusNoContent)
}
