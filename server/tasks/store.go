package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

var (
	// ErrTaskNotFound is returned when a task does not exist or belongs to a
	// different session.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskTerminal is returned when an operation requires a non-terminal
	// task but the task already completed, failed or was cancelled.
	ErrTaskTerminal = errors.New("task already reached a terminal status")
	// ErrResultMissing is returned by GetResult when no result was stored yet.
	ErrResultMissing = errors.New("task result not available")
	// ErrResourceLimit is returned by Create when a task count limit is hit.
	ErrResourceLimit = errors.New("task limit reached")
	// ErrInvalidTransition is returned when the status machine forbids the
	// requested transition.
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// Store persists task records. Implementations are safe for concurrent use.
//
// A non-empty sessionID scopes the operation: tasks created under a session
// are invisible to other sessions. An empty sessionID bypasses the scope and
// is reserved for store-internal maintenance and embedders.
type Store interface {
	// Create allocates a new task in the Working status. The request bytes
	// are retained verbatim so an embedder can inspect what started the task.
	Create(ctx context.Context, meta *schema.TaskMetadata, requestID *schema.RequestID, request json.RawMessage, sessionID string) (*schema.Task, error)

	// Get returns the task snapshot, or ErrTaskNotFound.
	Get(ctx context.Context, taskID string, sessionID string) (*schema.Task, error)

	// UpdateStatus replaces status and statusMessage and bumps lastUpdatedAt.
	// Terminal statuses are absorbing: updating a terminal task fails with
	// ErrTaskTerminal, and a transition the machine forbids fails with
	// ErrInvalidTransition.
	UpdateStatus(ctx context.Context, taskID string, status schema.TaskStatus, statusMessage string, sessionID string) (*schema.Task, error)

	// StoreResult transitions the task to Completed or Failed and stores the
	// result bytes verbatim. Fails with ErrTaskTerminal when the task is
	// already terminal.
	StoreResult(ctx context.Context, taskID string, status schema.TaskStatus, statusMessage string, result json.RawMessage, sessionID string) (*schema.Task, error)

	// GetResult returns the stored result bytes, or ErrResultMissing.
	GetResult(ctx context.Context, taskID string, sessionID string) (json.RawMessage, error)

	// List pages through live tasks ordered by taskId ascending. The cursor
	// is opaque; a nil next cursor means the listing is exhausted.
	List(ctx context.Context, cursor *schema.Cursor, sessionID string) ([]schema.Task, *schema.Cursor, error)

	// Cancel transitions a task to Cancelled. Cancelling a terminal task is
	// a no-op that returns the current snapshot.
	Cancel(ctx context.Context, taskID string, sessionID string) (*schema.Task, error)

	// Close stops background maintenance.
	Close() error
}

// StoreOptions tune task retention and paging. The zero value picks the
// defaults below.
type StoreOptions struct {
	// DefaultTTL applies when the requestor did not ask for a TTL. Zero means
	// unlimited retention.
	DefaultTTL time.Duration
	// MaxTTL caps the TTL a requestor may ask for. Zero means uncapped.
	MaxTTL time.Duration
	// PollInterval is the polling cadence hint published with every task.
	PollInterval time.Duration
	// PageSize bounds tasks/list pages.
	PageSize int
	// MaxTasks bounds live tasks across all sessions. Zero means unbounded.
	MaxTasks int
	// MaxTasksPerSession bounds live tasks per session. Zero means unbounded.
	MaxTasksPerSession int
	// SweepInterval is how often expired tasks are removed.
	SweepInterval time.Duration
}

func (o *StoreOptions) withDefaults() StoreOptions {
	out := StoreOptions{}
	if o != nil {
		out = *o
	}
	if out.PollInterval <= 0 {
		out.PollInterval = time.Second
	}
	if out.PageSize <= 0 {
		out.PageSize = 50
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = 30 * time.Second
	}
	return out
}

// clampTTL resolves the effective TTL of a new task from the requested
// metadata and the store limits. nil means unlimited retention.
func (o *StoreOptions) clampTTL(meta *schema.TaskMetadata) *time.Duration {
	var ttl time.Duration
	if meta != nil && meta.TTL != nil {
		ttl = meta.TTL.Duration()
	} else {
		ttl = o.DefaultTTL
	}
	if o.MaxTTL > 0 && (ttl <= 0 || ttl > o.MaxTTL) {
		ttl = o.MaxTTL
	}
	if ttl <= 0 {
		return nil
	}
	return &ttl
}

// expired reports whether a task with the given creation time and TTL is
// past its retention window at now.
func expired(createdAt time.Time, ttl *time.Duration, now time.Time) bool {
	return ttl != nil && !now.Before(createdAt.Add(*ttl))
}
