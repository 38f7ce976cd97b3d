package scheduler

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// RunStats accumulates per-run accounting. It is created at run start,
// mutated only by the scheduler's single drain loop (workers never touch it),
// read for the final summary, and discarded at run end.
type RunStats struct {
	Processed         map[string]struct{} // URLs seen by the completion-handling stage
	Successes         []string            // verified output paths, in completion order
	Failures          []string            // URLs, in completion order
	SkippedDuplicates int
	Completions       int // accounted completions, drives the progress callback
	Batches           int
}

func newRunStats() *RunStats {
	return &RunStats{Processed: make(map[string]struct{})}
}

// markProcessed records a URL as handled and reports whether this was its
// first completion. Duplicates slipping past extraction (multi-source merges)
// come through here a second time and must not be counted twice.
func (st *RunStats) markProcessed(url string) bool {
	if _, dup := st.Processed[url]; dup {
		return false
	}
	st.Processed[url] = struct{}{}
	return true
}

// pathSize returns the on-disk size of a result path, recursing when the
// result is a directory rather than a single file. Missing paths count as 0.
func pathSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	if !info.IsDir() {
		return info.Size()
	}
	var total int64
	filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	return total
}

func totalSize(paths []string) int64 {
	var total int64
	for _, p := range paths {
		total += pathSize(p)
	}
	return total
}

// logBatchSummary emits the per-batch aggregate record. Pure accounting; no
// scheduling decisions are made from it.
func logBatchSummary(logger *slog.Logger, batch int, successes, failures []string) {
	logger.Info("Batch complete.",
		slog.Int("batch", batch),
		slog.Int("successes", len(successes)),
		slog.Int("failures", len(failures)),
		slog.Int64("bytes", totalSize(successes)),
	)
}

// logRunSummary emits the run-wide aggregate record.
func logRunSummary(logger *slog.Logger, st *RunStats) {
	logger.Info("Run complete.",
		slog.Int("unique_urls_processed", len(st.Processed)),
		slog.Int("total_successes", len(st.Successes)),
		slog.Int("total_failures", len(st.Failures)),
		slog.Int("skipped_duplicates", st.SkippedDuplicates),
		slog.Int("batches", st.Batches),
		slog.Int64("total_bytes", totalSize(st.Successes)),
	)
}
