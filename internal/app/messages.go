package app

import "time"

// ProgressMsg updates the overall progress bar with run-wide counts.
type ProgressMsg struct {
	Current int64
	Total   int64
}

// FileResultMsg reports one accounted completion for the per-file rows.
type FileResultMsg struct {
	Name   string // display name (output filename or URL)
	Status string // "Complete", "Error", "Duplicate"
	ErrMsg string
}

// BatchPromptMsg asks the user whether to continue with the next batch. The
// workflow goroutine blocks on Reply until a key answers the prompt.
type BatchPromptMsg struct {
	Reply chan bool
}

// TaskFinishedMsg signals the completion of the whole fetch workflow.
type TaskFinishedMsg struct {
	Err       error
	Message   string
	StartTime time.Time
	EndTime   time.Time
}
