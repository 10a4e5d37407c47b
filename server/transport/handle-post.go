package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
	"go.uber.org/zap"
)

// handlePOST processes POST requests on the unified MCP endpoint.
func (t *Transport) handlePOST(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	bodyBytes, bodyErr := io.ReadAll(r.Body)
	if bodyErr != nil {
		logger.Error("Failed to read request body", zap.Error(bodyErr))
		sendJSONRPCErrorResponse(w, nil, shared.JSONRPCErrorParseError, "Failed to read request body", nil, logger)
		return
	}
	defer r.Body.Close()

	msgs, err := shared.ParseMessages(nil, bodyBytes)
	if err != nil {
		logger.Error("Failed to parse JSON-RPC message(s)", zap.Error(err), zap.ByteString("body", bodyBytes))
		sendJSONRPCErrorResponse(w, nil, shared.JSONRPCErrorParseError, "Invalid JSON", err.Error(), logger)
		return
	}

	if t.statelessMode {
		t.handleStatelessPOST(w, r, msgs, logger)
		return
	}

	isInitializeRequest := len(msgs) > 0 && msgs[0].Method != nil && *msgs[0].Method == "initialize"

	var session shared.ISession
	sessionID := r.Header.Get(MCP_SESSION_HEADER)
	if sessionID == "" {
		// A session is only born from an initialize request.
		if !isInitializeRequest {
			logger.Warn("POST without session header is only valid for initialize")
			http.Error(w, "Bad Request: Mcp-Session-Id header required", statusBadRequest)
			return
		}
		session, err = t.createSession(w, r, logger)
		if err != nil {
			return
		}
		if _, err := t.streams.Attach(session); err != nil {
			logger.Error("Failed to attach session streams", zap.Error(err), zap.String("sessionId", session.GetID()))
			t.sessionManager.CloseSession(session.GetID())
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	} else {
		session, err = t.getSession(w, r, logger)
		if err != nil {
			return
		}
		session.UpdateLastActivity()
	}

	// Clients often start sending requests before "notifications/initialized".
	if !isInitializeRequest &&
		session.GetStatus() != shared.StatusConnecting &&
		session.GetStatus() != shared.StatusConnected {
		logger.Warn("Received non-initialize request for non-connected session",
			zap.String("sessionId", session.GetID()), zap.Int("status", int(session.GetStatus())))
		sendJSONRPCErrorResponse(w, nil, shared.JSONRPCErrorInvalidRequest, "Session not initialized", nil, logger)
		return
	}

	var requestIDs []*schema.RequestID
	for _, msg := range msgs {
		msg.Session = session
		msg.Timestamp = time.Now()
		if msg.IsRequest() {
			requestIDs = append(requestIDs, msg.ID)
		}
	}

	// Notifications and responses produce no reply; accept and return.
	if len(requestIDs) == 0 {
		for _, msg := range msgs {
			if putErr := session.Input().Put(msg); putErr != nil {
				logger.Error("Error handling message", zap.Error(putErr), zap.String("sessionId", session.GetID()), zap.Any("msgId", msg.ID))
			}
		}
		w.Header().Set(MCP_SESSION_HEADER, session.GetID())
		w.WriteHeader(statusAccepted)
		logger.Debug("POST processed, returning 202 Accepted",
			zap.String("sessionId", session.GetID()), zap.Int("messageCount", len(msgs)))
		return
	}

	ss := t.streams.Lookup(session.GetID())
	if ss == nil {
		if ss, err = t.streams.Attach(session); err != nil {
			logger.Error("Failed to attach session streams", zap.Error(err), zap.String("sessionId", session.GetID()))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}

	// The stream must exist before the first message is dispatched, or an
	// early response would race past it onto the standalone GET stream.
	reader, err := ss.OpenRequestStream(requestIDs)
	if err != nil {
		logger.Error("Failed to open request stream", zap.Error(err), zap.String("sessionId", session.GetID()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	for _, msg := range msgs {
		if putErr := session.Input().Put(msg); putErr != nil {
			logger.Error("Error handling message", zap.Error(putErr), zap.String("sessionId", session.GetID()), zap.Any("msgId", msg.ID))
		}
	}

	acceptHeader := strings.ToLower(r.Header.Get("Accept"))
	if strings.Contains(acceptHeader, contentTypeSSE) {
		t.streamResponses(w, r, session, reader, logger)
	} else {
		t.collectResponses(w, r, session, reader, len(requestIDs), logger)
	}
}

// collectResponses drains the request stream and answers the POST with a
// plain JSON body. Notifications produced mid-request cannot be delivered on
// a JSON response and are skipped.
func (t *Transport) collectResponses(w http.ResponseWriter, r *http.Request, session shared.ISession, reader *StreamReader, expected int, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(r.Context(), responseTimeout)
	defer cancel()

	responses := make([]json.RawMessage, 0, expected)
	for {
		event, err := reader.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			logger.Warn("Stopped waiting for response(s)", zap.Error(err), zap.String("sessionId", session.GetID()))
			break
		}
		if event.IsPrime() {
			continue
		}
		var probe struct {
			Method *string `json:"method"`
		}
		if err := json.Unmarshal(event.Data, &probe); err != nil || probe.Method != nil {
			continue // not a response
		}
		responses = append(responses, json.RawMessage(event.Data))
		if len(responses) >= expected {
			break
		}
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(MCP_SESSION_HEADER, session.GetID())
	w.WriteHeader(http.StatusOK)

	var encodeErr error
	if expected == 1 && len(responses) == 1 {
		encodeErr = json.NewEncoder(w).Encode(responses[0])
	} else {
		encodeErr = json.NewEncoder(w).Encode(responses)
	}
	if encodeErr != nil {
		logger.Error("Failed to encode response body", zap.Error(encodeErr))
	}
}

// streamResponses answers the POST with an SSE stream that ends after the
// response to the last request has been sent.
func (t *Transport) streamResponses(w http.ResponseWriter, r *http.Request, session shared.ISession, reader *StreamReader, logger *zap.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("Streaming unsupported for SSE", zap.String("sessionId", session.GetID()))
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeSSE)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(MCP_SESSION_HEADER, session.GetID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	t.pumpEvents(w, r, flusher, reader, logger.With(zap.String("sessionId", session.GetID())))
}

// pumpEvents copies stream events onto the wire until the stream ends or the
// client goes away, interleaving keepalive comments while idle.
func (t *Transport) pumpEvents(w http.ResponseWriter, r *http.Request, flusher http.Flusher, reader *StreamReader, logger *zap.Logger) {
	events := make(chan *Event)
	readErr := make(chan error, 1)
	go func() {
		for {
			event, err := reader.Next(r.Context())
			if err != nil {
				readErr <- err
				return
			}
			select {
			case events <- event:
			case <-r.Context().Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(t.keepalive)
	defer ticker.Stop()

	for {
		select {
		case event := <-events:
			writeSSEEvent(w, flusher, event)
		case err := <-readErr:
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				logger.Warn("Event stream ended", zap.Error(err))
			}
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			logger.Debug("Client disconnected from SSE stream")
			return
		}
	}
}

// writeSSEEvent renders one stored event as an SSE frame. Priming events
// carry no data; their id still anchors Last-Event-ID on the client.
func writeSSEEvent(w io.Writer, flusher http.Flusher, event *Event) {
	if event.Retry > 0 {
		fmt.Fprintf(w, "retry: %d\n", event.Retry.Milliseconds())
	}
	if event.IsPrime() {
		fmt.Fprintf(w, "id: %s\n\n", event.ID)
	} else {
		fmt.Fprintf(w, "id: %s\ndata: %s\n\n", event.ID, event.Data)
	}
	flusher.Flush()
}

// handleStatelessPOST serves one POST with a throwaway session. No session
// header is issued, no streams are registered and nothing survives the
// request.
func (t *Transport) handleStatelessPOST(w http.ResponseWriter, r *http.Request, msgs []*shared.Message, logger *zap.Logger) {
	session, err := t.createSession(w, r, logger)
	if err != nil {
		return
	}
	defer t.sessionManager.CloseSession(session.GetID())

	var requestIDs []*schema.RequestID
	for _, msg := range msgs {
		msg.Session = session
		msg.Timestamp = time.Now()
		if msg.IsRequest() {
			requestIDs = append(requestIDs, msg.ID)
		}
	}

	output, ok := session.AcquireOutput()
	if !ok {
		logger.Error("Failed to acquire output channel", zap.String("sessionId", session.GetID()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer session.ReleaseOutput()

	for _, msg := range msgs {
		if putErr := session.Input().Put(msg); putErr != nil {
			logger.Error("Error handling message", zap.Error(putErr), zap.String("sessionId", session.GetID()), zap.Any("msgId", msg.ID))
		}
	}

	if len(requestIDs) == 0 {
		w.WriteHeader(statusAccepted)
		return
	}

	pending := make(map[string]struct{}, len(requestIDs))
	for _, id := range requestIDs {
		pending[id.String()] = struct{}{}
	}

	ctx, cancel := context.WithTimeout(r.Context(), responseTimeout)
	defer cancel()

	responses := make([]json.RawMessage, 0, len(requestIDs))
collect:
	for len(pending) > 0 {
		select {
		case msg, ok := <-output:
			if !ok {
				break collect
			}
			if msg == nil || msg.ID == nil {
				continue
			}
			if _, expected := pending[msg.ID.String()]; !expected || !msg.IsResponse() {
				continue // server-to-client traffic cannot exist in stateless mode
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Error("Failed to marshal response", zap.Error(err), zap.Any("msgId", msg.ID))
				continue
			}
			delete(pending, msg.ID.String())
			responses = append(responses, data)
		case <-ctx.Done():
			logger.Warn("Timeout waiting for response(s)", zap.String("sessionId", session.GetID()))
			break collect
		}
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	var encodeErr error
	if len(requestIDs) == 1 && len(responses) == 1 {
		encodeErr = json.NewEncoder(w).Encode(responses[0])
	} else {
		encodeErr = json.NewEncoder(w).Encode(responses)
	}
	if encodeErr != nil {
		logger.Error("Failed to encode response body", zap.Error(encodeErr))
	}
}
