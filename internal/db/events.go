// Package db persists a fetch-event audit trail in DuckDB. The log is
// advisory: the on-disk file check stays the sole authority for idempotent
// skip, so losing the database never causes re-downloads of files already
// present.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // driver
)

const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS fetch_event_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS fetch_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('fetch_event_id_seq'),
    run_id          VARCHAR NOT NULL,
    url             VARCHAR NOT NULL,
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    output_path     VARCHAR,
    message         VARCHAR,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_fetch_event_log_url ON fetch_event_log (url);
CREATE INDEX IF NOT EXISTS idx_fetch_event_log_event_time ON fetch_event_log (event, event_timestamp);
`

// InitializeSchema creates the sequence and table in the correct order.
func InitializeSchema(conn *sql.DB) error {
	if _, err := conn.Exec(schemaSequenceSQL); err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	if _, err := conn.Exec(schemaTableSQL); err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// EventLog records fetch events for one run. It satisfies fetch.Recorder;
// insert failures are logged and swallowed so a broken audit trail can never
// fail a download.
type EventLog struct {
	conn   *sql.DB
	runID  string
	logger *slog.Logger
}

func NewEventLog(conn *sql.DB, runID string, logger *slog.Logger) *EventLog {
	return &EventLog{conn: conn, runID: runID, logger: logger}
}

// Record inserts one event row.
func (l *EventLog) Record(ctx context.Context, url, event, outputPath, message string, duration *time.Duration) {
	query := `
        INSERT INTO fetch_event_log (run_id, url, event, event_timestamp, output_path, message, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?);
    `
	var durationMs sql.NullInt64
	if duration != nil {
		durationMs = sql.NullInt64{Int64: duration.Milliseconds(), Valid: true}
	}

	_, err := l.conn.ExecContext(ctx, query,
		l.runID,
		url,
		event,
		time.Now().UTC(),
		sql.NullString{String: outputPath, Valid: outputPath != ""},
		sql.NullString{String: message, Valid: message != ""},
		durationMs,
	)
	if err != nil {
		l.logger.Warn("Failed to record fetch event.",
			slog.String("url", url),
			slog.String("event", event),
			"error", err,
		)
	}
}

// CompletedURLs checks which of the given URLs have ever had a completion
// event, using a temporary table approach compatible with DuckDB. Returns a
// map keyed by URL with true for every URL that completed.
func CompletedURLs(ctx context.Context, conn *sql.DB, urls []string, completionEvent string) (map[string]bool, error) {
	completed := make(map[string]bool)
	if len(urls) == 0 {
		return completed, nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for batch check: %w", err)
	}
	defer tx.Rollback() // safe even after commit

	tempTableName := fmt.Sprintf("temp_urls_to_check_%d", time.Now().UnixNano())
	createSQL := fmt.Sprintf(`CREATE TEMP TABLE %s (url TEXT PRIMARY KEY);`, tempTableName)
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return nil, fmt.Errorf("failed to create temp table %s: %w", tempTableName, err)
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s (url) VALUES (?)`, tempTableName)
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert for temp table %s: %w", tempTableName, err)
	}
	for _, u := range urls {
		select {
		case <-ctx.Done():
			stmt.Close()
			return nil, ctx.Err()
		default:
			if _, err := stmt.ExecContext(ctx, u); err != nil {
				stmt.Close()
				return nil, fmt.Errorf("failed to insert url '%s' into temp table %s: %w", u, tempTableName, err)
			}
		}
	}
	if err := stmt.Close(); err != nil {
		return nil, fmt.Errorf("failed to close insert statement for %s: %w", tempTableName, err)
	}

	query := fmt.Sprintf(`
        SELECT DISTINCT el.url
        FROM fetch_event_log el
        JOIN %s tuc ON el.url = tuc.url
        WHERE el.event = ?;
    `, tempTableName)
	rows, err := tx.QueryContext(ctx, query, completionEvent)
	if err != nil {
		return nil, fmt.Errorf("failed batch status query joining temp table %s (event=%s): %w", tempTableName, completionEvent, err)
	}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed scanning batch status row: %w", err)
		}
		completed[u] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating batch status results: %w", err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch check transaction: %w", err)
	}
	return completed, nil
}

// LatestEvent retrieves the most recent event record for a URL.
func LatestEvent(ctx context.Context, conn *sql.DB, url string) (event string, timestamp time.Time, message string, found bool, err error) {
	query := `
        SELECT event, event_timestamp, message
        FROM fetch_event_log
        WHERE url = ?
        ORDER BY event_timestamp DESC, log_id DESC
        LIMIT 1;
    `
	var msg sql.NullString
	row := conn.QueryRowContext(ctx, query, url)
	err = row.Scan(&event, &timestamp, &msg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, "", false, nil
		}
		return "", time.Time{}, "", false, fmt.Errorf("failed query latest event for '%s': %w", url, err)
	}
	return event, timestamp, msg.String, true, nil
}

// DisplayLatest prints the most recent event recorded for a single URL.
func DisplayLatest(ctx context.Context, conn *sql.DB, url string) error {
	event, timestamp, message, found, err := LatestEvent(ctx, conn, url)
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("No events recorded for %s.\n", url)
		return nil
	}
	fmt.Printf("%s: %s at %s", url, event, timestamp.Format(time.RFC3339))
	if message != "" {
		fmt.Printf(" (%s)", message)
	}
	fmt.Println()
	return nil
}

// DisplayHistory queries and prints the event log.
func DisplayHistory(ctx context.Context, conn *sql.DB, eventFilter string, limit int) error {
	query := `
        SELECT run_id, url, event, event_timestamp, message, duration_ms, output_path
        FROM fetch_event_log
    `
	args := []any{}
	argCounter := 1
	if eventFilter != "" {
		query += fmt.Sprintf(" WHERE event = $%d", argCounter)
		args = append(args, eventFilter)
		argCounter++
	}
	query += fmt.Sprintf(" ORDER BY event_timestamp DESC, log_id DESC LIMIT $%d", argCounter)
	args = append(args, limit)

	fmt.Printf("--- Fetch Event History (Limit %d) ---\n", limit)
	fmt.Printf("%-10s | %-50s | %-15s | %-25s | %-10s | %s\n", "Run", "URL", "Event", "Timestamp (UTC)", "DurationMS", "Details")
	fmt.Println(strings.Repeat("-", 150))

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var runID, url, event string
		var timestamp time.Time
		var message, outputPath sql.NullString
		var durationMs sql.NullInt64
		if err := rows.Scan(&runID, &url, &event, &timestamp, &message, &durationMs, &outputPath); err != nil {
			return fmt.Errorf("failed to scan event log row: %w", err)
		}

		durationStr := ""
		if durationMs.Valid {
			durationStr = fmt.Sprintf("%d", durationMs.Int64)
		}
		details := message.String
		if outputPath.Valid && outputPath.String != "" {
			details += fmt.Sprintf(" (Output: %s)", outputPath.String)
		}
		shortRun := runID
		if len(shortRun) > 8 {
			shortRun = shortRun[:8]
		}
		shortURL := url
		if len(shortURL) > 50 {
			shortURL = shortURL[:47] + "..."
		}
		fmt.Printf("%-10s | %-50s | %-15s | %-25s | %-10s | %s\n",
			shortRun, shortURL, event, timestamp.Format(time.RFC3339), durationStr, details)
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating event log rows: %w", err)
	}
	fmt.Printf("Displayed %d records.\n", count)
	return nil
}
