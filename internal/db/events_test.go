package db

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB opens an in-memory DuckDB with the schema applied.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, InitializeSchema(conn))
	return conn
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitializeSchemaIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	assert.NoError(t, InitializeSchema(conn))
}

func TestLatestEvent(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	log := NewEventLog(conn, "run-1", testLogger())

	url := "https://cdn.example.com/v/1.mp4"
	log.Record(ctx, url, "discovered", "", "", nil)
	log.Record(ctx, url, "fetch_start", "downloads/a.mp4", "", nil)
	duration := 1500 * time.Millisecond
	log.Record(ctx, url, "fetch_end", "downloads/a.mp4", "", &duration)

	event, timestamp, message, found, err := LatestEvent(ctx, conn, url)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "fetch_end", event)
	assert.Empty(t, message)
	assert.WithinDuration(t, time.Now().UTC(), timestamp, time.Minute)
}

func TestLatestEventUnknownURL(t *testing.T) {
	conn := openTestDB(t)

	_, _, _, found, err := LatestEvent(context.Background(), conn, "https://cdn.example.com/nope.mp4")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCompletedURLs(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	log := NewEventLog(conn, "run-1", testLogger())

	done := "https://cdn.example.com/v/done.mp4"
	started := "https://cdn.example.com/v/started.mp4"
	unseen := "https://cdn.example.com/v/unseen.mp4"
	duration := time.Second
	log.Record(ctx, done, "fetch_end", "downloads/done.mp4", "", &duration)
	log.Record(ctx, started, "fetch_start", "", "", nil)

	completed, err := CompletedURLs(ctx, conn, []string{done, started, unseen}, "fetch_end")
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.True(t, completed[done])
}

func TestCompletedURLsEmptyInput(t *testing.T) {
	conn := openTestDB(t)

	completed, err := CompletedURLs(context.Background(), conn, nil, "fetch_end")
	require.NoError(t, err)
	assert.Empty(t, completed)
}
