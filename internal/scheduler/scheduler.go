// Package scheduler drives the batched, cancellable, deduplicating parallel
// fetch over an extracted task list.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/tokfetch/tokfetch/internal/fetch"
)

// errInvalidFile marks a reported success whose file is missing or empty.
var errInvalidFile = errors.New("download reported success but file is missing or empty")

// TaskFetcher processes one task and returns its outcome. Implementations
// must be safe for concurrent use and must never panic the pool: every
// failure mode collapses into the returned Result.
type TaskFetcher interface {
	Fetch(ctx context.Context, task fetch.Task) fetch.Result
}

// Options configures one scheduler run.
type Options struct {
	// BatchSize is the number of tasks per contiguous slice. Boundaries are
	// purely positional.
	BatchSize int
	// MaxWorkers bounds concurrent fetches within a batch.
	MaxWorkers int
	// Confirm, when non-nil, gates every batch after the first. A false
	// return stops the run cleanly with the results accumulated so far.
	Confirm func() bool
	// Progress, when non-nil, is invoked after every accounted completion
	// with run-wide monotonically nondecreasing counts.
	Progress func(processed, total int)
	// OnResult, when non-nil, is invoked after every accounted completion
	// with the classified result. Reporting only; it never influences
	// scheduling.
	OnResult func(fetch.Result)
}

// Scheduler partitions a task list into batches and drives a bounded worker
// pool per batch. The pool for a batch is fully shut down before the next
// batch's pool is created.
type Scheduler struct {
	fetcher  TaskFetcher
	signal   *Signal
	logger   *slog.Logger
	recorder fetch.Recorder
	opts     Options
}

func New(fetcher TaskFetcher, signal *Signal, logger *slog.Logger, recorder fetch.Recorder, opts Options) *Scheduler {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if recorder == nil {
		recorder = fetch.NopRecorder{}
	}
	return &Scheduler{
		fetcher:  fetcher,
		signal:   signal,
		logger:   logger,
		recorder: recorder,
		opts:     opts,
	}
}

// Run processes every task in batches and returns the verified success paths
// plus the run statistics. Individual task failures never abort the run; it
// ends early only on explicit user decline or cancellation, and both are
// clean returns of everything accumulated so far.
func (s *Scheduler) Run(ctx context.Context, tasks []fetch.Task) ([]string, *RunStats) {
	stats := newRunStats()
	total := len(tasks)

	for start := 0; start < total; start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, total)
		batchNum := start/s.opts.BatchSize + 1

		if start > 0 && s.opts.Confirm != nil {
			if !s.opts.Confirm() {
				s.logger.Info("Stopping at user request.", slog.Int("next_batch", batchNum))
				break
			}
		}
		// Run-level cancellation is always honored between batches.
		if s.cancelled(ctx) {
			s.logger.Warn("Run cancelled before batch start.", slog.Int("batch", batchNum))
			break
		}

		s.logger.Info("Processing batch.",
			slog.Int("batch", batchNum),
			slog.Int("from", start+1),
			slog.Int("to", end),
			slog.Int("total", total),
		)

		stats.Batches++
		cut := s.runBatch(ctx, tasks[start:end], total, stats)
		if cut {
			break
		}
	}

	logRunSummary(s.logger, stats)
	return stats.Successes, stats
}

// runBatch drives the bounded pool over one slice of tasks and drains
// completions in completion order. It returns true when the run was cut
// short by cancellation.
func (s *Scheduler) runBatch(ctx context.Context, batch []fetch.Task, total int, stats *RunStats) bool {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so in-flight workers can always deliver and exit, even after
	// the drain loop has abandoned the batch.
	results := make(chan fetch.Result, len(batch))
	sem := semaphore.NewWeighted(int64(s.opts.MaxWorkers))
	var wg sync.WaitGroup

	for _, task := range batch {
		wg.Add(1)
		go func(task fetch.Task) {
			defer wg.Done()
			if err := sem.Acquire(batchCtx, 1); err != nil {
				// Batch cancelled before this submission started.
				results <- fetch.Result{Task: task, Kind: fetch.OutcomeCancelled}
				return
			}
			defer sem.Release(1)
			results <- s.fetcher.Fetch(batchCtx, task)
		}(task)
	}

	var batchSuccesses, batchFailures []string

	for drained := 0; drained < len(batch); {
		if s.cancelled(ctx) {
			// Immediate shutdown: cancel not-yet-started submissions and do
			// not wait for in-flight work. Results arriving after this point
			// are discarded, not counted.
			cancel()
			s.logger.Warn("Run cancelled mid-batch, abandoning remaining completions.",
				slog.Int("drained", drained),
				slog.Int("batch_size", len(batch)),
			)
			s.appendBatch(stats, batchSuccesses, batchFailures)
			return true
		}

		select {
		case res := <-results:
			drained++
			if res.Kind == fetch.OutcomeCancelled {
				continue
			}
			s.account(ctx, res, total, stats, &batchSuccesses, &batchFailures)
		case <-s.signal.Done():
			// Re-enter the loop; the poll above handles shutdown.
		case <-ctx.Done():
		}
	}

	// Drained fully: wait for the pool to wind down cleanly before the next
	// batch's pool is created.
	wg.Wait()

	s.appendBatch(stats, batchSuccesses, batchFailures)
	logBatchSummary(s.logger, stats.Batches, batchSuccesses, batchFailures)
	return false
}

// account classifies one completion and updates the run totals. Runs only on
// the drain loop goroutine.
func (s *Scheduler) account(ctx context.Context, res fetch.Result, total int, stats *RunStats, successes, failures *[]string) {
	url := res.Task.URL

	if !stats.markProcessed(url) {
		s.logger.Warn("Skipping duplicate URL.", slog.String("url", url))
		s.recorder.Record(ctx, url, fetch.EventSkipDuplicate, "", "already processed this run", nil)
		stats.SkippedDuplicates++
		stats.Completions++
		s.report(fetch.Result{Task: res.Task, Kind: fetch.OutcomeSkippedDuplicate}, stats, total)
		return
	}

	switch res.Kind {
	case fetch.OutcomeSuccess:
		if verifyResult(res.Path) {
			*successes = append(*successes, res.Path)
			s.logger.Info("Verified successful download.",
				slog.String("path", res.Path),
				slog.Int64("bytes", pathSize(res.Path)),
			)
		} else {
			// A reported success with a missing or empty file is a failure.
			*failures = append(*failures, url)
			s.logger.Error("Download reported success but file is invalid.",
				slog.String("url", url),
				slog.String("path", res.Path),
			)
			res = fetch.Result{Task: res.Task, Kind: fetch.OutcomeFailure, Err: errInvalidFile}
		}
	case fetch.OutcomeFailure:
		*failures = append(*failures, url)
		s.logger.Error("Failed to process media.", slog.String("url", url), "error", res.Err)
	}

	stats.Completions++
	s.report(res, stats, total)
}

func (s *Scheduler) report(res fetch.Result, stats *RunStats, total int) {
	if s.opts.Progress != nil {
		s.opts.Progress(stats.Completions, total)
	}
	if s.opts.OnResult != nil {
		s.opts.OnResult(res)
	}
}

// appendBatch folds one batch's outcomes into the run totals.
func (s *Scheduler) appendBatch(stats *RunStats, successes, failures []string) {
	stats.Successes = append(stats.Successes, successes...)
	stats.Failures = append(stats.Failures, failures...)
}

func (s *Scheduler) cancelled(ctx context.Context) bool {
	return s.signal.IsSet() || ctx.Err() != nil
}

// verifyResult accepts a result path when it is a non-empty file or a
// directory of materialized files.
func verifyResult(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir() || info.Size() > 0
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
