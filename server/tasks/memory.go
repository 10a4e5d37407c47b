package tasks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

// record is the internal state of one task.
type record struct {
	task      schema.Task
	sessionID string
	ttl       *time.Duration
	requestID *schema.RequestID
	request   json.RawMessage
	result    json.RawMessage
}

// MemoryStore keeps tasks in memory. Expired tasks are removed by a
// background sweep.
type MemoryStore struct {
	opts   StoreOptions
	logger *zap.Logger

	mu    sync.Mutex
	tasks map[string]*record

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory task store and starts its TTL sweeper.
func NewMemoryStore(logger *zap.Logger, opts *StoreOptions) *MemoryStore {
	s := &MemoryStore{
		opts:   opts.withDefaults(),
		logger: logger.Named("tasks"),
		tasks:  make(map[string]*record),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *MemoryStore) sweepLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	var dropped int
	for id, rec := range s.tasks {
		if expired(rec.task.CreatedAt, rec.ttl, now) {
			delete(s.tasks, id)
			dropped++
		}
	}
	s.mu.Unlock()
	if dropped > 0 {
		s.logger.Debug("Swept expired tasks", zap.Int("count", dropped))
	}
}

// newTaskID returns a time-ordered identifier so keyset pagination by id also
// orders tasks by creation.
func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *MemoryStore) Create(ctx context.Context, meta *schema.TaskMetadata, requestID *schema.RequestID, request json.RawMessage, sessionID string) (*schema.Task, error) {
	ttl := s.opts.clampTTL(meta)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.MaxTasks > 0 && len(s.tasks) >= s.opts.MaxTasks {
		return nil, ErrResourceLimit
	}
	if s.opts.MaxTasksPerSession > 0 && sessionID != "" {
		var own int
		for _, rec := range s.tasks {
			if rec.sessionID == sessionID {
				own++
			}
		}
		if own >= s.opts.MaxTasksPerSession {
			return nil, ErrResourceLimit
		}
	}

	task := schema.Task{
		TaskID:        newTaskID(),
		Status:        schema.TaskStatusWorking,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if ttl != nil {
		ms := schema.DurationMs(*ttl)
		task.TTL = &ms
	}
	poll := schema.DurationMs(s.opts.PollInterval)
	task.PollInterval = &poll

	s.tasks[task.TaskID] = &record{
		task:      task,
		sessionID: sessionID,
		ttl:       ttl,
		requestID: requestID,
		request:   request,
	}
	return &task, nil
}

// lookup fetches a live record. Expired records are treated as gone even if
// the sweeper has not collected them yet. Caller holds s.mu.
func (s *MemoryStore) lookup(taskID, sessionID string) (*record, error) {
	rec, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if sessionID != "" && rec.sessionID != sessionID {
		return nil, ErrTaskNotFound
	}
	if expired(rec.task.CreatedAt, rec.ttl, time.Now()) {
		delete(s.tasks, taskID)
		return nil, ErrTaskNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Get(ctx context.Context, taskID string, sessionID string) (*schema.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookup(taskID, sessionID)
	if err != nil {
		return nil, err
	}
	snapshot := rec.task
	return &snapshot, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, taskID string, status schema.TaskStatus, statusMessage string, sessionID string) (*schema.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookup(taskID, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.task.Status.IsTerminal() {
		return nil, ErrTaskTerminal
	}
	if !rec.task.Status.CanTransitionTo(status) {
		return nil, ErrInvalidTransition
	}
	rec.task.Status = status
	rec.task.StatusMessage = statusMessage
	rec.task.LastUpdatedAt = time.Now().UTC()
	snapshot := rec.task
	return &snapshot, nil
}

func (s *MemoryStore) StoreResult(ctx context.Context, taskID string, status schema.TaskStatus, statusMessage string, result json.RawMessage, sessionID string) (*schema.Task, error) {
	if status != schema.TaskStatusCompleted && status != schema.TaskStatusFailed {
		return nil, ErrInvalidTransition
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookup(taskID, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.task.Status.IsTerminal() {
		return nil, ErrTaskTerminal
	}
	rec.task.Status = status
	rec.task.StatusMessage = statusMessage
	rec.task.LastUpdatedAt = time.Now().UTC()
	rec.result = result
	snapshot := rec.task
	return &snapshot, nil
}

func (s *MemoryStore) GetResult(ctx context.Context, taskID string, sessionID string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookup(taskID, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.result == nil {
		return nil, ErrResultMissing
	}
	return rec.result, nil
}

// encodeCursor wraps the last returned task id in an opaque token.
func encodeCursor(lastTaskID string) *schema.Cursor {
	c := schema.Cursor(base64.URLEncoding.EncodeToString([]byte(lastTaskID)))
	return &c
}

// decodeCursor recovers the task id a listing should resume after. An
// unreadable cursor restarts from the beginning rather than failing the call.
func decodeCursor(cursor *schema.Cursor) string {
	if cursor == nil {
		return ""
	}
	raw, err := base64.URLEncoding.DecodeString(string(*cursor))
	if err != nil {
		return ""
	}
	return string(raw)
}

func (s *MemoryStore) List(ctx context.Context, cursor *schema.Cursor, sessionID string) ([]schema.Task, *schema.Cursor, error) {
	after := decodeCursor(cursor)
	now := time.Now()

	s.mu.Lock()
	live := make([]schema.Task, 0, len(s.tasks))
	for _, rec := range s.tasks {
		if sessionID != "" && rec.sessionID != sessionID {
			continue
		}
		if expired(rec.task.CreatedAt, rec.ttl, now) {
			continue
		}
		live = append(live, rec.task)
	}
	s.mu.Unlock()

	sort.Slice(live, func(a, b int) bool { return live[a].TaskID < live[b].TaskID })

	page := make([]schema.Task, 0, s.opts.PageSize)
	var more bool
	for _, task := range live {
		if after != "" && task.TaskID <= after {
			continue
		}
		if len(page) == s.opts.PageSize {
			more = true
			break
		}
		page = append(page, task)
	}

	var next *schema.Cursor
	if more {
		next = encodeCursor(page[len(page)-1].TaskID)
	}
	return page, next, nil
}

func (s *MemoryStore) Cancel(ctx context.Context, taskID string, sessionID string) (*schema.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookup(taskID, sessionID)
	if err != nil {
		return nil, err
	}
	// Cancelling a finished task keeps the terminal status it already has.
	if !rec.task.Status.IsTerminal() {
		rec.task.Status = schema.TaskStatusCancelled
		rec.task.StatusMessage = ""
		rec.task.LastUpdatedAt = time.Now().UTC()
	}
	snapshot := rec.task
	return &snapshot, nil
}

func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
