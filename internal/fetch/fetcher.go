package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tokfetch/tokfetch/internal/util"
)

// Fetcher downloads one task at a time. It holds no mutable state between
// calls, so a single Fetcher is safe to share across workers.
type Fetcher struct {
	WorkDir     string
	Client      *http.Client
	Logger      *slog.Logger
	Recorder    Recorder
	MaxAttempts int
	Backoff     time.Duration
}

// New creates a Fetcher with the given settings. attemptTimeout bounds each
// individual network attempt, independent of run-level cancellation.
func New(workDir string, attemptTimeout, backoff time.Duration, maxAttempts int, logger *slog.Logger, recorder Recorder) *Fetcher {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Fetcher{
		WorkDir:     workDir,
		Client:      util.NewHTTPClient(attemptTimeout),
		Logger:      logger,
		Recorder:    recorder,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
	}
}

// Fetch processes a single task: resolve the destination path, skip when a
// non-empty file already sits there, otherwise attempt the download with
// bounded retries. Individual failures are returned as a Failure result,
// never as a run-terminating error.
func (f *Fetcher) Fetch(ctx context.Context, task Task) Result {
	if ctx.Err() != nil {
		return Result{Task: task, Kind: OutcomeCancelled}
	}

	dest := DestinationPath(f.WorkDir, task)
	l := f.Logger.With(slog.String("url", task.URL), slog.String("dest", dest))

	// Idempotent re-run guarantee: a non-empty file at the deterministic
	// path means this URL is already satisfied.
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		l.Info("File already exists, skipping download.", slog.Int64("bytes", info.Size()))
		f.Recorder.Record(ctx, task.URL, EventSkipExisting, dest, "already downloaded", nil)
		return Result{Task: task, Kind: OutcomeSuccess, Path: dest}
	}

	f.Recorder.Record(ctx, task.URL, EventFetchStart, dest, "", nil)
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= f.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return Result{Task: task, Kind: OutcomeCancelled}
		}

		written, err := f.attempt(ctx, task.URL, dest)
		if err == nil {
			duration := time.Since(start)
			l.Info("Download complete.",
				slog.Int64("bytes", written),
				slog.Int("attempt", attempt),
				slog.Duration("duration", duration.Round(time.Millisecond)),
			)
			f.Recorder.Record(ctx, task.URL, EventFetchEnd, dest, "", &duration)
			return Result{Task: task, Kind: OutcomeSuccess, Path: dest}
		}
		lastErr = err

		if attempt < f.MaxAttempts {
			l.Warn("Attempt failed, retrying.", slog.Int("attempt", attempt), "error", err)
			select {
			case <-time.After(f.Backoff):
			case <-ctx.Done():
				return Result{Task: task, Kind: OutcomeCancelled}
			}
		}
	}

	duration := time.Since(start)
	l.Error("All attempts failed.", slog.Int("attempts", f.MaxAttempts), "error", lastErr)
	f.Recorder.Record(ctx, task.URL, EventError, dest, lastErr.Error(), &duration)
	return Result{Task: task, Kind: OutcomeFailure, Err: fmt.Errorf("fetch %s: %w", task.URL, lastErr)}
}

// attempt performs one streaming download. The body is written to a temporary
// name and renamed into place on success, so a failed attempt never leaves a
// truncated file that a later skip check would accept.
func (f *Fetcher) attempt(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", util.RandomUserAgent())
	req.Header.Set("Accept", "*/*")

	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http do request for %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a little of the body for context on the error.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("bad status '%s' fetching %s: %s", resp.Status, url, string(snippet))
	}

	// Unique temp name per attempt: concurrent fetches of the same URL must
	// never interleave writes into one partial file.
	out, err := os.CreateTemp(f.WorkDir, filepath.Base(dest)+".part")
	if err != nil {
		return 0, fmt.Errorf("create temp file for %s: %w", dest, err)
	}
	tmp := out.Name()

	written, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("rename %s: %w", tmp, err)
	}
	return written, nil
}
