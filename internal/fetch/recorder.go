package fetch

import (
	"context"
	"time"
)

// Audit event names recorded for each URL.
const (
	EventDiscovered    = "discovered"
	EventFetchStart    = "fetch_start"
	EventFetchEnd      = "fetch_end"
	EventSkipExisting  = "skip_existing"
	EventSkipDuplicate = "skip_duplicate"
	EventError         = "error"
)

// Recorder receives audit events for the fetch phase. Implementations must
// never fail the fetch: recording problems are theirs to log and swallow.
type Recorder interface {
	Record(ctx context.Context, url, event, outputPath, message string, duration *time.Duration)
}

// NopRecorder discards all events. Used when no event database is configured
// and throughout the tests.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, string, string, string, string, *time.Duration) {}
