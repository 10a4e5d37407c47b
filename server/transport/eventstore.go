package transport

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// StreamMode controls how readers behave once the retained backlog of a
// stream is drained.
type StreamMode int

const (
	// StreamModeStreaming keeps the reader alive until the writer is disposed.
	StreamModeStreaming StreamMode = iota
	// StreamModePolling ends the reader after the backlog, forcing the client
	// to reconnect. Acts as backpressure.
	StreamModePolling
)

// Event is one item of a session stream. A nil Data marks a priming event
// that only anchors Last-Event-ID and may carry a reconnection hint.
type Event struct {
	ID    string
	Data  []byte
	Retry time.Duration // reconnection interval hint, 0 when absent
}

// IsPrime reports whether the event carries no message payload.
func (e *Event) IsPrime() bool { return e.Data == nil }

// FormatEventID renders the globally unique id of one stream position:
// "<sessionID>_<streamID>_<counter>".
func FormatEventID(sessionID string, streamID uint64, counter uint64) string {
	return fmt.Sprintf("%s_%d_%d", sessionID, streamID, counter)
}

// ParseEventID splits an event id back into its parts. Session ids may
// themselves contain underscores, so the numeric fields are taken from the
// right.
func ParseEventID(eventID string) (sessionID string, streamID uint64, counter uint64, err error) {
	last := strings.LastIndex(eventID, "_")
	if last <= 0 {
		return "", 0, 0, fmt.Errorf("malformed event id %q", eventID)
	}
	counter, err = strconv.ParseUint(eventID[last+1:], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed event counter in %q", eventID)
	}
	rest := eventID[:last]
	mid := strings.LastIndex(rest, "_")
	if mid <= 0 {
		return "", 0, 0, fmt.Errorf("malformed event id %q", eventID)
	}
	streamID, err = strconv.ParseUint(rest[mid+1:], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed stream id in %q", eventID)
	}
	return rest[:mid], streamID, counter, nil
}

// EventStore persists the per-stream SSE event logs of sessions so a client
// reconnecting with Last-Event-ID can replay what it missed.
//
// Event ids are totally ordered within a stream and unique across the store.
type EventStore interface {
	// CreateStream opens a new append log for (sessionID, streamID).
	CreateStream(sessionID string, streamID uint64, mode StreamMode) (*StreamWriter, error)
	// GetReader returns a reader positioned strictly after lastEventID, or
	// nil when the id is unknown or its events already expired.
	GetReader(lastEventID string) *StreamReader
	// DropSession discards every stream of a session.
	DropSession(sessionID string)
}

// MemoryEventStore retains up to retainLimit events per stream in memory.
type MemoryEventStore struct {
	mu          sync.Mutex
	retainLimit int
	streams     map[string]map[uint64]*memoryStream // sessionID -> streamID
}

var _ EventStore = (*MemoryEventStore)(nil)

// NewMemoryEventStore creates an in-memory event store. retainLimit bounds
// the events kept per stream; older events expire and can no longer be
// replayed.
func NewMemoryEventStore(retainLimit int) *MemoryEventStore {
	if retainLimit <= 0 {
		retainLimit = 1024
	}
	return &MemoryEventStore{
		retainLimit: retainLimit,
		streams:     make(map[string]map[uint64]*memoryStream),
	}
}

func (s *MemoryEventStore) CreateStream(sessionID string, streamID uint64, mode StreamMode) (*StreamWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	perSession, ok := s.streams[sessionID]
	if !ok {
		perSession = make(map[uint64]*memoryStream)
		s.streams[sessionID] = perSession
	}
	if _, exists := perSession[streamID]; exists {
		return nil, fmt.Errorf("stream %d already exists for session %s", streamID, sessionID)
	}
	stream := &memoryStream{
		sessionID:   sessionID,
		streamID:    streamID,
		mode:        mode,
		retainLimit: s.retainLimit,
		nextCounter: 1,
		wakeup:      make(chan struct{}),
	}
	perSession[streamID] = stream
	return &StreamWriter{stream: stream}, nil
}

func (s *MemoryEventStore) GetReader(lastEventID string) *StreamReader {
	sessionID, streamID, counter, err := ParseEventID(lastEventID)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	stream := s.streams[sessionID][streamID]
	s.mu.Unlock()
	if stream == nil {
		return nil
	}

	stream.mu.Lock()
	defer stream.mu.Unlock()
	// The anchor must be a position this stream has actually produced and
	// still remembers. counter 0 anchors the very start of the stream.
	if counter >= stream.nextCounter {
		return nil
	}
	if stream.firstCounter > 0 && counter+1 < stream.firstCounter {
		return nil // expired from the retention window
	}
	return &StreamReader{stream: stream, next: counter + 1}
}

func (s *MemoryEventStore) DropSession(sessionID string) {
	s.mu.Lock()
	perSession := s.streams[sessionID]
	delete(s.streams, sessionID)
	s.mu.Unlock()

	for _, stream := range perSession {
		stream.close()
	}
}

// memoryStream is one append log. firstCounter is the counter of events[0];
// appends past the retain limit drop the oldest event and advance it.
type memoryStream struct {
	sessionID   string
	streamID    uint64
	mode        StreamMode
	retainLimit int

	mu           sync.Mutex
	events       []Event
	firstCounter uint64 // counter of events[0], 0 when no event was ever stored
	nextCounter  uint64 // counter the next append will get
	closed       bool
	wakeup       chan struct{} // closed and replaced on every append/close
}

func (m *memoryStream) append(data []byte, retry time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", fmt.Errorf("stream %d of session %s is closed", m.streamID, m.sessionID)
	}

	counter := m.nextCounter
	m.nextCounter++
	id := FormatEventID(m.sessionID, m.streamID, counter)
	if m.firstCounter == 0 {
		m.firstCounter = counter
	}
	m.events = append(m.events, Event{ID: id, Data: data, Retry: retry})
	if len(m.events) > m.retainLimit {
		drop := len(m.events) - m.retainLimit
		m.events = m.events[drop:]
		m.firstCounter += uint64(drop)
	}

	close(m.wakeup)
	m.wakeup = make(chan struct{})
	return id, nil
}

func (m *memoryStream) setMode(mode StreamMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == mode {
		return
	}
	m.mode = mode
	// Blocked streaming readers re-check the mode and drain out.
	close(m.wakeup)
	m.wakeup = make(chan struct{})
}

func (m *memoryStream) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.wakeup)
	m.wakeup = make(chan struct{})
}

// StreamWriter appends events to one stream. Close is idempotent; events
// already appended stay replayable for readers.
type StreamWriter struct {
	stream *memoryStream
}

// Append stores one message payload and returns the event id assigned to it.
func (w *StreamWriter) Append(data []byte) (string, error) {
	return w.stream.append(data, 0)
}

// Prime stores a data-less event that anchors Last-Event-ID at the current
// stream position. retry optionally tells the client how long to wait before
// reconnecting.
func (w *StreamWriter) Prime(retry time.Duration) (string, error) {
	return w.stream.append(nil, retry)
}

// Close disposes the writer. Streaming readers drain the backlog and end.
func (w *StreamWriter) Close() {
	w.stream.close()
}

// SetMode switches the stream between streaming and polling delivery.
// Flipping to polling wakes blocked readers so they end after the backlog.
func (w *StreamWriter) SetMode(mode StreamMode) {
	w.stream.setMode(mode)
}

// Reader returns a reader over this stream from its first retained event.
func (w *StreamWriter) Reader() *StreamReader {
	w.stream.mu.Lock()
	defer w.stream.mu.Unlock()
	next := w.stream.firstCounter
	if next == 0 {
		next = 1
	}
	return &StreamReader{stream: w.stream, next: next}
}

// SessionID returns the owning session.
func (w *StreamWriter) SessionID() string { return w.stream.sessionID }

// StreamID returns the stream this writer appends to.
func (w *StreamWriter) StreamID() uint64 { return w.stream.streamID }

// StreamReader yields the events of one stream in order. In polling mode it
// ends after the retained backlog; in streaming mode it blocks for new events
// until the writer is disposed.
type StreamReader struct {
	stream *memoryStream
	next   uint64
}

// SessionID returns the owning session.
func (r *StreamReader) SessionID() string { return r.stream.sessionID }

// StreamID returns the stream being read.
func (r *StreamReader) StreamID() uint64 { return r.stream.streamID }

// Next returns the next event, blocking in streaming mode until one is
// appended. It returns io.EOF when the stream is exhausted and ctx.Err()
// when the caller gives up.
func (r *StreamReader) Next(ctx context.Context) (*Event, error) {
	for {
		r.stream.mu.Lock()
		if r.next < r.stream.firstCounter {
			// The client fell behind the retention window.
			r.stream.mu.Unlock()
			return nil, fmt.Errorf("events before %d expired for stream %d", r.stream.firstCounter, r.stream.streamID)
		}
		if r.next < r.stream.nextCounter && len(r.stream.events) > 0 {
			event := r.stream.events[r.next-r.stream.firstCounter]
			r.next++
			r.stream.mu.Unlock()
			return &event, nil
		}
		if r.stream.closed || r.stream.mode == StreamModePolling {
			r.stream.mu.Unlock()
			return nil, io.EOF
		}
		wakeup := r.stream.wakeup
		r.stream.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wakeup:
		}
	}
}
