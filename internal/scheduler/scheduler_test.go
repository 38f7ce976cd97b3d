package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokfetch/tokfetch/internal/fetch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFetcher writes real files into workDir so the scheduler's verification
// step sees genuine downloads. Behavior per URL is table-driven.
type fakeFetcher struct {
	workDir string

	mu    sync.Mutex
	calls []string

	fail    map[string]bool // return a failure result
	phantom map[string]bool // report success without writing the file
	onFetch func(task fetch.Task)
}

func newFakeFetcher(workDir string) *fakeFetcher {
	return &fakeFetcher{
		workDir: workDir,
		fail:    make(map[string]bool),
		phantom: make(map[string]bool),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, task fetch.Task) fetch.Result {
	f.mu.Lock()
	f.calls = append(f.calls, task.URL)
	f.mu.Unlock()

	if f.onFetch != nil {
		f.onFetch(task)
	}

	if f.fail[task.URL] {
		return fetch.Result{Task: task, Kind: fetch.OutcomeFailure, Err: errors.New("simulated fetch failure")}
	}

	dest := fetch.DestinationPath(f.workDir, task)
	if f.phantom[task.URL] {
		return fetch.Result{Task: task, Kind: fetch.OutcomeSuccess, Path: dest}
	}
	if err := os.WriteFile(dest, []byte("payload"), 0644); err != nil {
		return fetch.Result{Task: task, Kind: fetch.OutcomeFailure, Err: err}
	}
	return fetch.Result{Task: task, Kind: fetch.OutcomeSuccess, Path: dest}
}

func (f *fakeFetcher) calledURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func makeTasks(n int) []fetch.Task {
	tasks := make([]fetch.Task, n)
	for i := range tasks {
		tasks[i] = fetch.Task{
			URL:       fmt.Sprintf("https://cdn.example.com/v/%d.mp4", i),
			Timestamp: fmt.Sprintf("2023-05-%02d 10:00:00", n-i),
			Category:  "posted",
			IsPrimary: true,
		}
	}
	return tasks
}

func TestRunProcessesAllBatches(t *testing.T) {
	fetcher := newFakeFetcher(t.TempDir())
	tasks := makeTasks(5)

	var progress []int
	sched := New(fetcher, NewSignal(), testLogger(), nil, Options{
		BatchSize:  2,
		MaxWorkers: 2,
		Progress: func(processed, total int) {
			assert.Equal(t, 5, total)
			progress = append(progress, processed)
		},
	})

	paths, stats := sched.Run(context.Background(), tasks)

	assert.Len(t, paths, 5)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 5, stats.Completions)
	assert.Empty(t, stats.Failures)
	assert.Len(t, fetcher.calledURLs(), 5)

	// Progress is run-wide and monotonically nondecreasing, ending at total.
	require.Len(t, progress, 5)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.Equal(t, 5, progress[len(progress)-1])

	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestRunCollectsFailuresWithoutAborting(t *testing.T) {
	fetcher := newFakeFetcher(t.TempDir())
	tasks := makeTasks(4)
	fetcher.fail[tasks[1].URL] = true

	sched := New(fetcher, NewSignal(), testLogger(), nil, Options{BatchSize: 2, MaxWorkers: 2})
	paths, stats := sched.Run(context.Background(), tasks)

	assert.Len(t, paths, 3)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, tasks[1].URL, stats.Failures[0])
	assert.Equal(t, 2, stats.Batches, "a failed task must not stop later batches")
	assert.Equal(t, 4, stats.Completions)
}

func TestRunDeduplicatesRepeatedURLs(t *testing.T) {
	fetcher := newFakeFetcher(t.TempDir())
	tasks := makeTasks(2)
	// A duplicate slipping past extraction, e.g. from a multi-source merge.
	tasks = append(tasks, tasks[0])

	var kinds []fetch.OutcomeKind
	sched := New(fetcher, NewSignal(), testLogger(), nil, Options{
		BatchSize:  10,
		MaxWorkers: 1,
		OnResult:   func(res fetch.Result) { kinds = append(kinds, res.Kind) },
	})
	paths, stats := sched.Run(context.Background(), tasks)

	assert.Len(t, paths, 2)
	assert.Equal(t, 1, stats.SkippedDuplicates)
	assert.Equal(t, 3, stats.Completions)
	assert.Len(t, stats.Processed, 2)

	duplicates := 0
	for _, k := range kinds {
		if k == fetch.OutcomeSkippedDuplicate {
			duplicates++
		}
	}
	assert.Equal(t, 1, duplicates)
}

func TestRunStopsWhenConfirmDeclined(t *testing.T) {
	fetcher := newFakeFetcher(t.TempDir())
	tasks := makeTasks(6)

	confirms := 0
	sched := New(fetcher, NewSignal(), testLogger(), nil, Options{
		BatchSize:  2,
		MaxWorkers: 2,
		Confirm: func() bool {
			confirms++
			return false
		},
	})
	paths, stats := sched.Run(context.Background(), tasks)

	// First batch runs unprompted; the decline stops everything after it.
	assert.Equal(t, 1, confirms)
	assert.Equal(t, 1, stats.Batches)
	assert.Len(t, paths, 2)
	assert.Len(t, fetcher.calledURLs(), 2)
}

func TestRunConfirmGatesEveryLaterBatch(t *testing.T) {
	fetcher := newFakeFetcher(t.TempDir())
	tasks := makeTasks(6)

	confirms := 0
	sched := New(fetcher, NewSignal(), testLogger(), nil, Options{
		BatchSize:  2,
		MaxWorkers: 2,
		Confirm: func() bool {
			confirms++
			return true
		},
	})
	paths, stats := sched.Run(context.Background(), tasks)

	assert.Equal(t, 2, confirms, "every batch after the first asks once")
	assert.Equal(t, 3, stats.Batches)
	assert.Len(t, paths, 6)
}

func TestRunDowngradesPhantomSuccess(t *testing.T) {
	fetcher := newFakeFetcher(t.TempDir())
	tasks := makeTasks(2)
	fetcher.phantom[tasks[0].URL] = true

	var reported []fetch.Result
	sched := New(fetcher, NewSignal(), testLogger(), nil, Options{
		BatchSize:  10,
		MaxWorkers: 1,
		OnResult:   func(res fetch.Result) { reported = append(reported, res) },
	})
	paths, stats := sched.Run(context.Background(), tasks)

	assert.Len(t, paths, 1)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, tasks[0].URL, stats.Failures[0])

	failures := 0
	for _, res := range reported {
		if res.Kind == fetch.OutcomeFailure {
			failures++
			assert.Error(t, res.Err)
		}
	}
	assert.Equal(t, 1, failures)
}

func TestRunStopsOnSignal(t *testing.T) {
	fetcher := newFakeFetcher(t.TempDir())
	tasks := makeTasks(6)
	sig := NewSignal()

	// Flag the stop while the first batch is still executing; no later batch
	// may start after that.
	stopURL := tasks[1].URL
	fetcher.onFetch = func(task fetch.Task) {
		if task.URL == stopURL {
			sig.Set()
		}
	}

	sched := New(fetcher, sig, testLogger(), nil, Options{BatchSize: 3, MaxWorkers: 1})
	paths, stats := sched.Run(context.Background(), tasks)

	assert.Equal(t, 1, stats.Batches)

	firstBatch := map[string]bool{tasks[0].URL: true, tasks[1].URL: true, tasks[2].URL: true}
	for _, url := range fetcher.calledURLs() {
		assert.True(t, firstBatch[url], "no task beyond the first batch may be fetched after the stop")
	}

	// Whatever was verified before the stop is returned, nothing more.
	assert.LessOrEqual(t, len(paths), 3)
	assert.Equal(t, paths, stats.Successes)
}

func TestRunHonorsCancelledContext(t *testing.T) {
	fetcher := newFakeFetcher(t.TempDir())
	tasks := makeTasks(4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sched := New(fetcher, NewSignal(), testLogger(), nil, Options{BatchSize: 2, MaxWorkers: 2})
	paths, stats := sched.Run(ctx, tasks)

	assert.Empty(t, paths)
	assert.Equal(t, 0, stats.Batches)
	assert.Empty(t, fetcher.calledURLs())
}

func TestRunEmptyTaskList(t *testing.T) {
	fetcher := newFakeFetcher(t.TempDir())

	sched := New(fetcher, NewSignal(), testLogger(), nil, Options{BatchSize: 2, MaxWorkers: 2})
	paths, stats := sched.Run(context.Background(), nil)

	assert.Empty(t, paths)
	assert.Equal(t, 0, stats.Batches)
	assert.Equal(t, 0, stats.Completions)
}

func TestSignal(t *testing.T) {
	sig := NewSignal()
	assert.False(t, sig.IsSet())

	select {
	case <-sig.Done():
		t.Fatal("Done must not be closed before Set")
	default:
	}

	sig.Set()
	sig.Set() // idempotent
	assert.True(t, sig.IsSet())

	select {
	case <-sig.Done():
	default:
		t.Fatal("Done must be closed after Set")
	}
}
