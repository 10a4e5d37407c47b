package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

const createTasksTableSQL = `
CREATE TABLE IF NOT EXISTS mcp_tasks (
	task_id         TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL,
	status          TEXT NOT NULL,
	status_message  TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	last_updated_at TIMESTAMPTZ NOT NULL,
	ttl_ms          BIGINT,
	request_id      TEXT,
	request         JSONB,
	result          JSONB
)`

// PostgresStore persists tasks in PostgreSQL so they survive server restarts.
type PostgresStore struct {
	db     *sql.DB
	opts   StoreOptions
	logger *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database, ensures the tasks table exists
// and starts the TTL sweeper.
func NewPostgresStore(databaseURL string, logger *zap.Logger, opts *StoreOptions) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping task database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTasksTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tasks table: %w", err)
	}
	return NewPostgresStoreWithDB(db, logger, opts), nil
}

// NewPostgresStoreWithDB wraps an existing connection pool. The caller is
// responsible for the schema.
func NewPostgresStoreWithDB(db *sql.DB, logger *zap.Logger, opts *StoreOptions) *PostgresStore {
	s := &PostgresStore{
		db:     db,
		opts:   opts.withDefaults(),
		logger: logger.Named("tasks-pg"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *PostgresStore) sweepLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			res, err := s.db.Exec(
				`DELETE FROM mcp_tasks WHERE ttl_ms IS NOT NULL AND created_at + (ttl_ms * interval '1 millisecond') <= NOW()`)
			if err != nil {
				s.logger.Error("Task sweep failed", zap.Error(err))
				continue
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				s.logger.Debug("Swept expired tasks", zap.Int64("count", n))
			}
		}
	}
}

// liveFilter excludes rows past their retention window from reads so an
// expired task disappears even between sweeps.
const liveFilter = `(ttl_ms IS NULL OR created_at + (ttl_ms * interval '1 millisecond') > NOW())`

func (s *PostgresStore) Create(ctx context.Context, meta *schema.TaskMetadata, requestID *schema.RequestID, request json.RawMessage, sessionID string) (*schema.Task, error) {
	ttl := s.opts.clampTTL(meta)
	now := time.Now().UTC()

	if s.opts.MaxTasks > 0 || (s.opts.MaxTasksPerSession > 0 && sessionID != "") {
		var total, own int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*), COUNT(*) FILTER (WHERE session_id = $1) FROM mcp_tasks WHERE `+liveFilter,
			sessionID).Scan(&total, &own)
		if err != nil {
			return nil, fmt.Errorf("failed to count tasks: %w", err)
		}
		if s.opts.MaxTasks > 0 && total >= s.opts.MaxTasks {
			return nil, ErrResourceLimit
		}
		if s.opts.MaxTasksPerSession > 0 && sessionID != "" && own >= s.opts.MaxTasksPerSession {
			return nil, ErrResourceLimit
		}
	}

	task := schema.Task{
		TaskID:        newTaskID(),
		Status:        schema.TaskStatusWorking,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	var ttlMs sql.NullInt64
	if ttl != nil {
		ttlMs = sql.NullInt64{Int64: ttl.Milliseconds(), Valid: true}
		ms := schema.DurationMs(*ttl)
		task.TTL = &ms
	}
	poll := schema.DurationMs(s.opts.PollInterval)
	task.PollInterval = &poll

	var reqID sql.NullString
	if requestID != nil && !requestID.IsEmpty() {
		reqID = sql.NullString{String: requestID.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mcp_tasks (task_id, session_id, status, status_message, created_at, last_updated_at, ttl_ms, request_id, request)
		 VALUES ($1, $2, $3, '', $4, $4, $5, $6, $7)`,
		task.TaskID, sessionID, string(task.Status), now, ttlMs, reqID, []byte(request))
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	return &task, nil
}

func (s *PostgresStore) scanTask(row *sql.Row) (*schema.Task, error) {
	var task schema.Task
	var status string
	var ttlMs sql.NullInt64
	err := row.Scan(&task.TaskID, &status, &task.StatusMessage, &task.CreatedAt, &task.LastUpdatedAt, &ttlMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	task.Status = schema.TaskStatus(status)
	if ttlMs.Valid {
		ms := schema.DurationMs(time.Duration(ttlMs.Int64) * time.Millisecond)
		task.TTL = &ms
	}
	poll := schema.DurationMs(s.opts.PollInterval)
	task.PollInterval = &poll
	return &task, nil
}

const selectTaskSQL = `SELECT task_id, status, status_message, created_at, last_updated_at, ttl_ms
	FROM mcp_tasks WHERE task_id = $1 AND ($2 = '' OR session_id = $2) AND ` + liveFilter

func (s *PostgresStore) Get(ctx context.Context, taskID string, sessionID string) (*schema.Task, error) {
	return s.scanTask(s.db.QueryRowContext(ctx, selectTaskSQL, taskID, sessionID))
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, taskID string, status schema.TaskStatus, statusMessage string, sessionID string) (*schema.Task, error) {
	current, err := s.Get(ctx, taskID, sessionID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, ErrTaskTerminal
	}
	if !current.Status.CanTransitionTo(status) {
		return nil, ErrInvalidTransition
	}
	// Guard against a concurrent transition with a compare-and-set on status.
	res, err := s.db.ExecContext(ctx,
		`UPDATE mcp_tasks SET status = $1, status_message = $2, last_updated_at = NOW()
		 WHERE task_id = $3 AND status = $4 AND ($5 = '' OR session_id = $5)`,
		string(status), statusMessage, taskID, string(current.Status), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrTaskTerminal
	}
	return s.Get(ctx, taskID, sessionID)
}

func (s *PostgresStore) StoreResult(ctx context.Context, taskID string, status schema.TaskStatus, statusMessage string, result json.RawMessage, sessionID string) (*schema.Task, error) {
	if status != schema.TaskStatusCompleted && status != schema.TaskStatusFailed {
		return nil, ErrInvalidTransition
	}
	current, err := s.Get(ctx, taskID, sessionID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, ErrTaskTerminal
	}
	var resultBytes []byte
	if result != nil {
		resultBytes = []byte(result)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE mcp_tasks SET status = $1, status_message = $2, result = $3, last_updated_at = NOW()
		 WHERE task_id = $4 AND status IN ('working', 'input_required') AND ($5 = '' OR session_id = $5)`,
		string(status), statusMessage, resultBytes, taskID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to store task result: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrTaskTerminal
	}
	return s.Get(ctx, taskID, sessionID)
}

func (s *PostgresStore) GetResult(ctx context.Context, taskID string, sessionID string) (json.RawMessage, error) {
	var result []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM mcp_tasks WHERE task_id = $1 AND ($2 = '' OR session_id = $2) AND `+liveFilter,
		taskID, sessionID).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task result: %w", err)
	}
	if result == nil {
		return nil, ErrResultMissing
	}
	return json.RawMessage(result), nil
}

func (s *PostgresStore) List(ctx context.Context, cursor *schema.Cursor, sessionID string) ([]schema.Task, *schema.Cursor, error) {
	after := decodeCursor(cursor)
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, status, status_message, created_at, last_updated_at, ttl_ms
		 FROM mcp_tasks
		 WHERE ($1 = '' OR session_id = $1) AND task_id > $2 AND `+liveFilter+`
		 ORDER BY task_id ASC LIMIT $3`,
		sessionID, after, s.opts.PageSize+1)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]schema.Task, 0, s.opts.PageSize)
	poll := schema.DurationMs(s.opts.PollInterval)
	for rows.Next() {
		var task schema.Task
		var status string
		var ttlMs sql.NullInt64
		if err := rows.Scan(&task.TaskID, &status, &task.StatusMessage, &task.CreatedAt, &task.LastUpdatedAt, &ttlMs); err != nil {
			return nil, nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		task.Status = schema.TaskStatus(status)
		if ttlMs.Valid {
			ms := schema.DurationMs(time.Duration(ttlMs.Int64) * time.Millisecond)
			task.TTL = &ms
		}
		task.PollInterval = &poll
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}

	var next *schema.Cursor
	if len(tasks) > s.opts.PageSize {
		tasks = tasks[:s.opts.PageSize]
		next = encodeCursor(tasks[len(tasks)-1].TaskID)
	}
	return tasks, next, nil
}

func (s *PostgresStore) Cancel(ctx context.Context, taskID string, sessionID string) (*schema.Task, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mcp_tasks SET status = $1, status_message = '', last_updated_at = NOW()
		 WHERE task_id = $2 AND status IN ('working', 'input_required') AND ($3 = '' OR session_id = $3)`,
		string(schema.TaskStatusCancelled), taskID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel task: %w", err)
	}
	return s.Get(ctx, taskID, sessionID)
}

func (s *PostgresStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return s.db.Close()
}
