package export

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/tokfetch/tokfetch/internal/fetch"
)

// CategoryPosted labels content the owning identity posted themselves.
const CategoryPosted = "posted"

// Extract walks the parsed export and produces the ordered, URL-deduplicated
// task list. First occurrence of a URL wins with its own metadata; later
// duplicates are dropped silently. The result is stably sorted by timestamp
// descending, empty timestamps last. No network or filesystem access happens
// here.
func Extract(exp *Export, logger *slog.Logger) []fetch.Task {
	var tasks []fetch.Task
	seen := make(map[string]struct{})

	addEntry := func(entry Entry, category string, isPrimary bool) {
		if entry.Link == "" {
			return
		}
		for _, raw := range strings.Split(entry.Link, "\n") {
			url := strings.TrimSpace(raw)
			if url == "" {
				continue
			}
			if _, dup := seen[url]; dup {
				continue
			}
			seen[url] = struct{}{}
			tasks = append(tasks, fetch.Task{
				URL:       url,
				Timestamp: entry.Date,
				Category:  category,
				IsPrimary: isPrimary,
			})
		}
	}

	for _, entry := range exp.Video.Videos.VideoList {
		addEntry(entry, CategoryPosted, true)
	}

	// Newest first; ties keep discovery order. Ordering only affects which
	// items land in which batch, not correctness.
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Timestamp > tasks[j].Timestamp
	})

	primaryCount := 0
	for _, task := range tasks {
		if task.IsPrimary {
			primaryCount++
		}
		logger.Info("Discovered media link.",
			slog.String("url", task.URL),
			slog.String("date", task.Timestamp),
			slog.String("category", task.Category),
			slog.Bool("personal", task.IsPrimary),
		)
	}
	logger.Info("Extraction complete.",
		slog.Int("unique_links", len(tasks)),
		slog.Int("personal", primaryCount),
		slog.Int("other", len(tasks)-primaryCount),
	)

	return tasks
}
