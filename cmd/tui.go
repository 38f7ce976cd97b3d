package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tokfetch/tokfetch/internal/app"
	"github.com/tokfetch/tokfetch/internal/fetch"
	"github.com/tokfetch/tokfetch/internal/scheduler"
)

// tuiCmd starts the interactive front-end.
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Start the interactive terminal front-end",
	Long: `Runs the downloader behind an interactive terminal UI with a progress
bar, per-file status rows, a between-batch confirmation prompt, and a stop
key. Logs go to tokfetch.log unless --log-output points elsewhere.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		ctx := cmd.Context()

		// Logging to stderr would corrupt the TUI; divert to a file when the
		// user has not picked a destination themselves.
		logger := getLogger()
		if strings.ToLower(logOutput) == "stderr" {
			f, err := os.OpenFile("tokfetch.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("failed to open tokfetch.log: %w", err)
			}
			defer f.Close()
			logger = slog.New(slog.NewTextHandler(f, nil))
		}

		runner := func(sig *scheduler.Signal, progressFn func(done, total int), onResult func(fetch.Result), confirm func() bool) (string, error) {
			opts := scheduler.Options{
				BatchSize:  cfg.BatchSize,
				MaxWorkers: cfg.MaxWorkers,
				Confirm:    confirm,
				Progress:   progressFn,
				OnResult:   onResult,
			}
			return runWorkflow(ctx, cfg, getDB(), logger, sig, opts)
		}

		model := app.NewModel(runner)
		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("tui failed: %w", err)
		}
		return nil
	},
}
