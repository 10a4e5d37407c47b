package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
	"go.uber.org/zap"
)

// unsolicitedStreamID is the stream behind the standalone GET: it carries
// every server-initiated message that cannot be attributed to an in-flight
// client request.
const unsolicitedStreamID uint64 = 0

// streamRouter distributes session output across the session's SSE streams.
// Responses go to the stream of the POST that carried their request; messages
// produced while handling a request follow that request's stream; everything
// else lands on the unsolicited stream.
type streamRouter struct {
	mu       sync.Mutex
	store    EventStore
	logger   *zap.Logger
	retry    time.Duration
	getMode  StreamMode // delivery mode of the standalone GET stream
	sessions map[string]*sessionStreams
}

func newStreamRouter(store EventStore, retry time.Duration, getMode StreamMode, logger *zap.Logger) *streamRouter {
	return &streamRouter{
		store:    store,
		logger:   logger.Named("streams"),
		retry:    retry,
		getMode:  getMode,
		sessions: make(map[string]*sessionStreams),
	}
}

// Attach sets up stream accounting for a session and starts draining its
// output channel. Idempotent per session.
func (r *streamRouter) Attach(session shared.ISession) (*sessionStreams, error) {
	r.mu.Lock()
	if ss, ok := r.sessions[session.GetID()]; ok {
		r.mu.Unlock()
		return ss, nil
	}
	r.mu.Unlock()

	unsolicited, err := r.store.CreateStream(session.GetID(), unsolicitedStreamID, r.getMode)
	if err != nil {
		return nil, err
	}
	// The priming event anchors Last-Event-ID before any payload exists.
	if _, err := unsolicited.Prime(r.retry); err != nil {
		return nil, err
	}

	ss := &sessionStreams{
		router:         r,
		session:        session,
		logger:         r.logger.With(zap.String("session_id", session.GetID())),
		nextStreamID:   unsolicitedStreamID,
		writers:        map[uint64]*StreamWriter{unsolicitedStreamID: unsolicited},
		requestStreams: make(map[string]uint64),
		streamRequests: make(map[uint64]map[string]struct{}),
	}

	r.mu.Lock()
	if existing, ok := r.sessions[session.GetID()]; ok {
		r.mu.Unlock()
		unsolicited.Close()
		return existing, nil
	}
	r.sessions[session.GetID()] = ss
	r.mu.Unlock()

	output, ok := session.AcquireOutput()
	if !ok {
		r.detach(session.GetID())
		return nil, shared.ErrSessionClosed
	}
	go ss.run(output)
	return ss, nil
}

// Lookup returns the stream accounting of a session, or nil.
func (r *streamRouter) Lookup(sessionID string) *sessionStreams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sessionID]
}

func (r *streamRouter) detach(sessionID string) {
	r.mu.Lock()
	ss := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if ss != nil {
		ss.closeAll()
	}
	r.store.DropSession(sessionID)
}

// sessionStreams is the per-session accounting: open writers, which request
// is answered on which stream, and the exclusive claim on the standalone GET.
type sessionStreams struct {
	router  *streamRouter
	session shared.ISession
	logger  *zap.Logger

	mu             sync.Mutex
	nextStreamID   uint64
	writers        map[uint64]*StreamWriter
	requestStreams map[string]uint64              // request id token -> stream
	streamRequests map[uint64]map[string]struct{} // stream -> unanswered request ids
	getActive      bool
}

// OpenRequestStream creates the SSE stream of one POST and registers the
// request ids whose responses terminate it. It returns a reader positioned
// at the start of the stream.
func (ss *sessionStreams) OpenRequestStream(requestIDs []*schema.RequestID) (*StreamReader, error) {
	ss.mu.Lock()
	ss.nextStreamID++
	streamID := ss.nextStreamID
	ss.mu.Unlock()

	writer, err := ss.router.store.CreateStream(ss.session.GetID(), streamID, StreamModeStreaming)
	if err != nil {
		return nil, err
	}

	ss.mu.Lock()
	ss.writers[streamID] = writer
	pending := make(map[string]struct{}, len(requestIDs))
	for _, id := range requestIDs {
		if id == nil || id.IsEmpty() {
			continue
		}
		pending[id.String()] = struct{}{}
		ss.requestStreams[id.String()] = streamID
	}
	ss.streamRequests[streamID] = pending
	ss.mu.Unlock()

	return writer.Reader(), nil
}

// UnsolicitedReader returns a reader over the standalone GET stream from its
// beginning, priming event included.
func (ss *sessionStreams) UnsolicitedReader() *StreamReader {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	writer := ss.writers[unsolicitedStreamID]
	if writer == nil {
		return nil
	}
	return writer.Reader()
}

// ClaimGet takes the exclusive claim on the standalone GET stream. It
// reports false when another GET is already being served.
func (ss *sessionStreams) ClaimGet() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.getActive {
		return false
	}
	ss.getActive = true
	return true
}

// ReleaseGet gives the standalone GET claim back.
func (ss *sessionStreams) ReleaseGet() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.getActive = false
}

// EnablePolling flips the standalone GET stream to polling delivery: the open
// GET ends after its backlog and the client reconnects with Last-Event-ID.
func (ss *sessionStreams) EnablePolling() {
	ss.mu.Lock()
	writer := ss.writers[unsolicitedStreamID]
	ss.mu.Unlock()
	if writer != nil {
		writer.SetMode(StreamModePolling)
	}
}

// run drains the session output until the session closes, appending every
// message to the stream it belongs on.
func (ss *sessionStreams) run(output <-chan *shared.Message) {
	for msg := range output {
		if msg == nil {
			continue
		}
		ss.deliver(msg)
	}
	ss.router.detach(ss.session.GetID())
}

func (ss *sessionStreams) deliver(msg *shared.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		ss.logger.Error("Failed to marshal outgoing message", zap.Error(err), zap.Any("msgId", msg.ID))
		return
	}

	ss.mu.Lock()
	streamID := unsolicitedStreamID
	var answered string
	if msg.Method == nil && msg.ID != nil {
		// A response terminates its request on the stream of the POST that
		// carried it.
		if sid, ok := ss.requestStreams[msg.ID.String()]; ok {
			streamID = sid
			answered = msg.ID.String()
		}
	} else if msg.RelatedID != nil {
		// Requests and notifications produced during handling follow the
		// handled request while its stream is still open.
		if sid, ok := ss.requestStreams[msg.RelatedID.String()]; ok {
			if _, open := ss.writers[sid]; open {
				streamID = sid
			}
		}
	}
	writer := ss.writers[streamID]

	var closeAfter *StreamWriter
	if answered != "" {
		delete(ss.requestStreams, answered)
		if pending, ok := ss.streamRequests[streamID]; ok {
			delete(pending, answered)
			if len(pending) == 0 {
				delete(ss.streamRequests, streamID)
				delete(ss.writers, streamID)
				closeAfter = writer
			}
		}
	}
	ss.mu.Unlock()

	if writer == nil {
		ss.logger.Warn("No open stream for message, dropping",
			zap.Uint64("stream_id", streamID),
			zap.Any("msgId", msg.ID),
			zap.Stringp("method", msg.Method),
		)
		return
	}
	if _, err := writer.Append(data); err != nil {
		ss.logger.Warn("Failed to append message to stream", zap.Error(err), zap.Uint64("stream_id", streamID))
	}
	// The terminal response is the last event of a request stream.
	if closeAfter != nil {
		closeAfter.Close()
	}
}

func (ss *sessionStreams) closeAll() {
	ss.mu.Lock()
	writers := make([]*StreamWriter, 0, len(ss.writers))
	for id, w := range ss.writers {
		writers = append(writers, w)
		delete(ss.writers, id)
	}
	ss.requestStreams = make(map[string]uint64)
	ss.streamRequests = make(map[uint64]map[string]struct{})
	ss.mu.Unlock()

	for _, w := range writers {
		w.Close()
	}
}
