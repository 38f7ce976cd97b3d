package fetch

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// Task is one media URL to download, plus the metadata needed to name the
// resulting file. URL is the dedup key: the extractor guarantees no two tasks
// in a run share one.
type Task struct {
	URL       string
	Timestamp string // sortable date token from the export, may be empty
	Category  string // classification label, e.g. "posted"
	IsPrimary bool   // true for the owning identity's own content
}

// OutcomeKind classifies the result of processing one task.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	OutcomeSkippedDuplicate
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeSkippedDuplicate:
		return "skipped_duplicate"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is the outcome of processing one Task. Exactly one outcome per task
// per run: Path is set for OutcomeSuccess, Err for OutcomeFailure.
type Result struct {
	Task Task
	Kind OutcomeKind
	Path string
	Err  error
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// DestinationPath derives the deterministic output path for a task:
// prefix_dateToken_category_hash8 plus an extension chosen from the URL.
// The derivation is pure; the same task always maps to the same path, which
// is what makes the already-downloaded skip check possible.
func DestinationPath(dir string, task Task) string {
	dateToken := "unknown_date"
	if fields := strings.Fields(task.Timestamp); len(fields) > 0 {
		dateToken = fields[0]
	}

	prefix := "other"
	if task.IsPrimary {
		prefix = "personal"
	}

	sum := md5.Sum([]byte(task.URL))
	hash := hex.EncodeToString(sum[:])[:8]

	extension := ".mp4"
	lowered := strings.ToLower(task.URL)
	for _, ext := range imageExtensions {
		if strings.Contains(lowered, ext) {
			extension = ".jpg"
			break
		}
	}

	filename := fmt.Sprintf("%s_%s_%s_%s%s", prefix, dateToken, task.Category, hash, extension)
	return filepath.Join(dir, filename)
}
