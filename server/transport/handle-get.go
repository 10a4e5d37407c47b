package transport

import (
	"net/http"

	"go.uber.org/zap"
)

// handleGET opens the standalone server-to-client SSE stream, or resumes an
// interrupted stream when the client presents a Last-Event-ID.
func (t *Transport) handleGET(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	if t.statelessMode {
		logger.Warn("GET stream requested in stateless mode")
		http.Error(w, "Method Not Allowed", statusMethodNotAllowed)
		return
	}

	if lastEventID := r.Header.Get(LAST_EVENT_HEADER); lastEventID != "" {
		t.resumeStream(w, r, lastEventID, logger)
		return
	}

	session, err := t.getSession(w, r, logger)
	if err != nil {
		return
	}
	session.UpdateLastActivity()

	ss := t.streams.Lookup(session.GetID())
	if ss == nil {
		if ss, err = t.streams.Attach(session); err != nil {
			logger.Error("Failed to attach session streams", zap.Error(err), zap.String("sessionId", session.GetID()))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}

	// One standalone stream per session.
	if !ss.ClaimGet() {
		logger.Warn("Standalone GET stream already open", zap.String("sessionId", session.GetID()))
		http.Error(w, "Conflict: stream already open for this session", statusConflict)
		return
	}
	defer ss.ReleaseGet()

	reader := ss.UnsolicitedReader()
	if reader == nil {
		logger.Error("Unsolicited stream missing", zap.String("sessionId", session.GetID()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	t.serveStream(w, r, session.GetID(), reader, logger)
}

// resumeStream replays events after the client's last seen position and then
// keeps following the stream live.
func (t *Transport) resumeStream(w http.ResponseWriter, r *http.Request, lastEventID string, logger *zap.Logger) {
	reader := t.store.GetReader(lastEventID)
	if reader == nil {
		logger.Warn("Cannot resume from event id", zap.String("lastEventId", lastEventID))
		http.Error(w, "Not Found: unknown or expired event id", statusNotFound)
		return
	}

	sessionID := reader.SessionID()
	session, err := t.sessionManager.GetSession(sessionID)
	if err != nil {
		logger.Warn("Session gone, cannot resume stream", zap.String("sessionId", sessionID), zap.Error(err))
		http.Error(w, "Not Found: Session expired or invalid", statusNotFound)
		return
	}
	session.UpdateLastActivity()

	// Resuming the standalone stream takes the same exclusive claim as
	// opening it fresh.
	if reader.StreamID() == unsolicitedStreamID {
		ss := t.streams.Lookup(sessionID)
		if ss != nil {
			if !ss.ClaimGet() {
				logger.Warn("Standalone GET stream already open", zap.String("sessionId", sessionID))
				http.Error(w, "Conflict: stream already open for this session", statusConflict)
				return
			}
			defer ss.ReleaseGet()
		}
	}

	logger.Info("Resuming event stream",
		zap.String("sessionId", sessionID),
		zap.Uint64("streamId", reader.StreamID()),
		zap.String("lastEventId", lastEventID),
	)
	t.serveStream(w, r, sessionID, reader, logger)
}

// serveStream writes SSE headers and pumps the reader until it ends.
func (t *Transport) serveStream(w http.ResponseWriter, r *http.Request, sessionID string, reader *StreamReader, logger *zap.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("Streaming unsupported for SSE", zap.String("sessionId", sessionID))
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(MCP_SESSION_HEADER, sessionID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	t.pumpEvents(w, r, flusher, reader, logger.With(zap.String("sessionId", sessionID)))
}
