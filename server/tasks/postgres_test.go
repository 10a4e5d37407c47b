package tasks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

func newPGFixture(t *testing.T, opts *StoreOptions) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewPostgresStoreWithDB(db, zap.NewNop(), opts)
	t.Cleanup(func() {
		mock.ExpectClose()
		_ = store.Close()
	})
	return store, mock
}

func taskColumns() []string {
	return []string{"task_id", "status", "status_message", "created_at", "last_updated_at", "ttl_ms"}
}

func TestPostgresStore_Create(t *testing.T) {
	store, mock := newPGFixture(t, nil)

	mock.ExpectExec("INSERT INTO mcp_tasks").
		WillReturnResult(sqlmock.NewResult(0, 1))

	task, err := store.Create(context.Background(), nil, nil, json.RawMessage(`{}`), "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, task.TaskID)
	assert.Equal(t, schema.TaskStatusWorking, task.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateEnforcesLimits(t *testing.T) {
	store, mock := newPGFixture(t, &StoreOptions{MaxTasks: 10})

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "count"}).AddRow(10, 3))

	_, err := store.Create(context.Background(), nil, nil, nil, "s1")
	assert.ErrorIs(t, err, ErrResourceLimit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newPGFixture(t, nil)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT task_id, status, status_message").
		WithArgs("t1", "s1").
		WillReturnRows(sqlmock.NewRows(taskColumns()).
			AddRow("t1", "working", "", now, now, int64(60000)))

	task, err := store.Get(context.Background(), "t1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "t1", task.TaskID)
	assert.Equal(t, schema.TaskStatusWorking, task.Status)
	require.NotNil(t, task.TTL)
	assert.Equal(t, time.Minute, task.TTL.Duration())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock := newPGFixture(t, nil)

	mock.ExpectQuery("SELECT task_id, status, status_message").
		WithArgs("missing", "s1").
		WillReturnRows(sqlmock.NewRows(taskColumns()))

	_, err := store.Get(context.Background(), "missing", "s1")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatus(t *testing.T) {
	store, mock := newPGFixture(t, nil)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT task_id, status, status_message").
		WithArgs("t1", "s1").
		WillReturnRows(sqlmock.NewRows(taskColumns()).
			AddRow("t1", "working", "", now, now, nil))
	mock.ExpectExec("UPDATE mcp_tasks SET status").
		WithArgs("input_required", "waiting for user", "t1", "working", "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT task_id, status, status_message").
		WithArgs("t1", "s1").
		WillReturnRows(sqlmock.NewRows(taskColumns()).
			AddRow("t1", "input_required", "waiting for user", now, now, nil))

	task, err := store.UpdateStatus(context.Background(), "t1", schema.TaskStatusInputRequired, "waiting for user", "s1")
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStatusInputRequired, task.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatusTerminalFails(t *testing.T) {
	store, mock := newPGFixture(t, nil)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT task_id, status, status_message").
		WithArgs("t1", "s1").
		WillReturnRows(sqlmock.NewRows(taskColumns()).
			AddRow("t1", "completed", "", now, now, nil))

	_, err := store.UpdateStatus(context.Background(), "t1", schema.TaskStatusWorking, "", "s1")
	assert.ErrorIs(t, err, ErrTaskTerminal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateStatusLosesRace(t *testing.T) {
	store, mock := newPGFixture(t, nil)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT task_id, status, status_message").
		WithArgs("t1", "s1").
		WillReturnRows(sqlmock.NewRows(taskColumns()).
			AddRow("t1", "working", "", now, now, nil))
	// A concurrent transition changed the status between read and write.
	mock.ExpectExec("UPDATE mcp_tasks SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateStatus(context.Background(), "t1", schema.TaskStatusCompleted, "", "s1")
	assert.ErrorIs(t, err, ErrTaskTerminal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StoreResult(t *testing.T) {
	store, mock := newPGFixture(t, nil)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT task_id, status, status_message").
		WithArgs("t1", "s1").
		WillReturnRows(sqlmock.NewRows(taskColumns()).
			AddRow("t1", "working", "", now, now, nil))
	mock.ExpectExec("UPDATE mcp_tasks SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT task_id, status, status_message").
		WithArgs("t1", "s1").
		WillReturnRows(sqlmock.NewRows(taskColumns()).
			AddRow("t1", "completed", "", now, now, nil))

	task, err := store.StoreResult(context.Background(), "t1", schema.TaskStatusCompleted, "", json.RawMessage(`{"ok":true}`), "s1")
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStatusCompleted, task.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StoreResultRequiresTerminalStatus(t *testing.T) {
	store, _ := newPGFixture(t, nil)
	_, err := store.StoreResult(context.Background(), "t1", schema.TaskStatusWorking, "", nil, "s1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPostgresStore_GetResult(t *testing.T) {
	store, mock := newPGFixture(t, nil)

	mock.ExpectQuery("SELECT result FROM mcp_tasks").
		WithArgs("t1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow([]byte(`{"ok":true}`)))

	result, err := store.GetResult(context.Background(), "t1", "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetResultMissing(t *testing.T) {
	store, mock := newPGFixture(t, nil)

	mock.ExpectQuery("SELECT result FROM mcp_tasks").
		WithArgs("t1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"result"}).AddRow(nil))

	_, err := store.GetResult(context.Background(), "t1", "s1")
	assert.ErrorIs(t, err, ErrResultMissing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPagination(t *testing.T) {
	store, mock := newPGFixture(t, &StoreOptions{PageSize: 2})
	now := time.Now().UTC()

	// One row past the page size signals another page.
	mock.ExpectQuery("SELECT task_id, status, status_message").
		WithArgs("s1", "", 3).
		WillReturnRows(sqlmock.NewRows(taskColumns()).
			AddRow("t1", "working", "", now, now, nil).
			AddRow("t2", "completed", "", now, now, nil).
			AddRow("t3", "working", "", now, now, nil))

	page, next, err := store.List(context.Background(), nil, "s1")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "t1", page[0].TaskID)
	assert.Equal(t, "t2", page[1].TaskID)
	require.NotNil(t, next)

	mock.ExpectQuery("SELECT task_id, status, status_message").
		WithArgs("s1", "t2", 3).
		WillReturnRows(sqlmock.NewRows(taskColumns()).
			AddRow("t3", "working", "", now, now, nil))

	page, next, err = store.List(context.Background(), next, "s1")
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "t3", page[0].TaskID)
	assert.Nil(t, next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Cancel(t *testing.T) {
	store, mock := newPGFixture(t, nil)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE mcp_tasks SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT task_id, status, status_message").
		WithArgs("t1", "s1").
		WillReturnRows(sqlmock.NewRows(taskColumns()).
			AddRow("t1", "cancelled", "", now, now, nil))

	task, err := store.Cancel(context.Background(), "t1", "s1")
	require.NoError(t, err)
	assert.Equal(t, schema.TaskStatusCancelled, task.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
