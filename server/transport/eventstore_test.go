package transport

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventID(t *testing.T) {
	sessionID, streamID, counter, err := ParseEventID("abc_2_15")
	require.NoError(t, err)
	assert.Equal(t, "abc", sessionID)
	assert.Equal(t, uint64(2), streamID)
	assert.Equal(t, uint64(15), counter)
}

func TestParseEventID_SessionIDWithUnderscores(t *testing.T) {
	id := FormatEventID("se_ss_ion", 0, 3)
	sessionID, streamID, counter, err := ParseEventID(id)
	require.NoError(t, err)
	assert.Equal(t, "se_ss_ion", sessionID)
	assert.Equal(t, uint64(0), streamID)
	assert.Equal(t, uint64(3), counter)
}

func TestParseEventID_Malformed(t *testing.T) {
	for _, bad := range []string{"", "abc", "abc_1", "abc_x_1", "abc_1_x", "_1_2"} {
		_, _, _, err := ParseEventID(bad)
		assert.Error(t, err, "id=%q", bad)
	}
}

func TestMemoryEventStore_AppendAndRead(t *testing.T) {
	store := NewMemoryEventStore(10)
	writer, err := store.CreateStream("s1", 1, StreamModeStreaming)
	require.NoError(t, err)

	id1, err := writer.Append([]byte(`{"a":1}`))
	require.NoError(t, err)
	id2, err := writer.Append([]byte(`{"a":2}`))
	require.NoError(t, err)
	assert.Equal(t, "s1_1_1", id1)
	assert.Equal(t, "s1_1_2", id2)

	reader := writer.Reader()
	ctx := context.Background()

	event, err := reader.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, event.ID)
	assert.JSONEq(t, `{"a":1}`, string(event.Data))

	event, err = reader.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, id2, event.ID)
}

func TestMemoryEventStore_DuplicateStream(t *testing.T) {
	store := NewMemoryEventStore(10)
	_, err := store.CreateStream("s1", 1, StreamModeStreaming)
	require.NoError(t, err)
	_, err = store.CreateStream("s1", 1, StreamModeStreaming)
	assert.Error(t, err)
}

func TestMemoryEventStore_ReaderBlocksUntilAppend(t *testing.T) {
	store := NewMemoryEventStore(10)
	writer, err := store.CreateStream("s1", 1, StreamModeStreaming)
	require.NoError(t, err)
	reader := writer.Reader()

	got := make(chan *Event, 1)
	go func() {
		event, err := reader.Next(context.Background())
		if err == nil {
			got <- event
		}
	}()

	time.Sleep(20 * time.Millisecond)
	_, err = writer.Append([]byte(`{}`))
	require.NoError(t, err)

	select {
	case event := <-got:
		assert.Equal(t, "s1_1_1", event.ID)
	case <-time.After(time.Second):
		t.Fatal("reader never woke up")
	}
}

func TestMemoryEventStore_ReaderEOFOnClose(t *testing.T) {
	store := NewMemoryEventStore(10)
	writer, err := store.CreateStream("s1", 1, StreamModeStreaming)
	require.NoError(t, err)
	_, err = writer.Append([]byte(`{}`))
	require.NoError(t, err)
	writer.Close()

	reader := writer.Reader()
	_, err = reader.Next(context.Background())
	require.NoError(t, err) // backlog is still replayable
	_, err = reader.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestMemoryEventStore_ReaderHonorsContext(t *testing.T) {
	store := NewMemoryEventStore(10)
	writer, err := store.CreateStream("s1", 1, StreamModeStreaming)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = writer.Reader().Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryEventStore_PollingModeEndsAfterBacklog(t *testing.T) {
	store := NewMemoryEventStore(10)
	writer, err := store.CreateStream("s1", 1, StreamModePolling)
	require.NoError(t, err)
	_, err = writer.Append([]byte(`{}`))
	require.NoError(t, err)

	reader := writer.Reader()
	_, err = reader.Next(context.Background())
	require.NoError(t, err)
	_, err = reader.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestMemoryEventStore_SetModeWakesBlockedReader(t *testing.T) {
	store := NewMemoryEventStore(10)
	writer, err := store.CreateStream("s1", 1, StreamModeStreaming)
	require.NoError(t, err)
	reader := writer.Reader()

	done := make(chan error, 1)
	go func() {
		_, err := reader.Next(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	writer.SetMode(StreamModePolling)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("reader never woke up after the mode flip")
	}
}

func TestMemoryEventStore_GetReaderResumesAfterEvent(t *testing.T) {
	store := NewMemoryEventStore(10)
	writer, err := store.CreateStream("s1", 1, StreamModeStreaming)
	require.NoError(t, err)
	id1, err := writer.Append([]byte(`{"n":1}`))
	require.NoError(t, err)
	_, err = writer.Append([]byte(`{"n":2}`))
	require.NoError(t, err)

	reader := store.GetReader(id1)
	require.NotNil(t, reader)
	event, err := reader.Next(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(event.Data))
}

func TestMemoryEventStore_GetReaderUnknownID(t *testing.T) {
	store := NewMemoryEventStore(10)
	assert.Nil(t, store.GetReader("nope"))
	assert.Nil(t, store.GetReader("s1_1_1"))

	writer, err := store.CreateStream("s1", 1, StreamModeStreaming)
	require.NoError(t, err)
	_, err = writer.Append([]byte(`{}`))
	require.NoError(t, err)
	// The anchor must be a position the stream has produced.
	assert.Nil(t, store.GetReader("s1_1_9"))
}

func TestMemoryEventStore_RetentionWindow(t *testing.T) {
	store := NewMemoryEventStore(2)
	writer, err := store.CreateStream("s1", 1, StreamModeStreaming)
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := writer.Append([]byte(`{}`))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// Events 1 and 2 expired; anchoring on event 1 cannot replay event 2.
	assert.Nil(t, store.GetReader(ids[0]))
	// Anchoring on the last expired event is still fine: replay starts at 3.
	reader := store.GetReader(ids[1])
	require.NotNil(t, reader)
	event, err := reader.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ids[2], event.ID)
}

func TestMemoryEventStore_PrimeEvent(t *testing.T) {
	store := NewMemoryEventStore(10)
	writer, err := store.CreateStream("s1", 0, StreamModeStreaming)
	require.NoError(t, err)

	id, err := writer.Prime(3 * time.Second)
	require.NoError(t, err)

	reader := writer.Reader()
	event, err := reader.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, event.ID)
	assert.True(t, event.IsPrime())
	assert.Equal(t, 3*time.Second, event.Retry)
}

func TestMemoryEventStore_DropSession(t *testing.T) {
	store := NewMemoryEventStore(10)
	writer, err := store.CreateStream("s1", 1, StreamModeStreaming)
	require.NoError(t, err)
	id, err := writer.Append([]byte(`{}`))
	require.NoError(t, err)

	store.DropSession("s1")
	assert.Nil(t, store.GetReader(id))
	_, err = writer.Append([]byte(`{}`))
	assert.Error(t, err)
}
