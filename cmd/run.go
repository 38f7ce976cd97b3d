package cmd

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tokfetch/tokfetch/internal/archive"
	"github.com/tokfetch/tokfetch/internal/config"
	"github.com/tokfetch/tokfetch/internal/db"
	"github.com/tokfetch/tokfetch/internal/export"
	"github.com/tokfetch/tokfetch/internal/fetch"
	"github.com/tokfetch/tokfetch/internal/scheduler"
)

var confirmBatches bool

// runCmd performs the complete download workflow without the TUI.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full extract, download, and archive workflow",
	Long: `Performs the complete pipeline:
1. Parses the data-export JSON and extracts the unique media links.
2. Downloads them concurrently in batches, skipping files already on disk.
3. Packages successful downloads into a zip archive and removes the work dir.
Use --confirm to be asked before each batch after the first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		sig := scheduler.NewSignal()
		interrupts := make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(interrupts)
		go func() {
			<-interrupts
			logger.Warn("Interrupt received, finishing in-flight work and stopping.")
			sig.Set()
		}()

		opts := scheduler.Options{
			BatchSize:  cfg.BatchSize,
			MaxWorkers: cfg.MaxWorkers,
		}
		if confirmBatches {
			opts.Confirm = consoleConfirm
		}

		summary, err := runWorkflow(cmd.Context(), cfg, getDB(), logger, sig, opts)
		if err != nil {
			return fmt.Errorf("run workflow failed: %w", err)
		}
		logger.Info("Workflow finished.", slog.String("summary", summary))
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&confirmBatches, "confirm", false, "Ask before processing each batch after the first")
}

// consoleConfirm blocks for a yes/no answer on stdin. Anything but an
// explicit yes stops the run.
func consoleConfirm() bool {
	fmt.Print("\nContinue with next batch? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

// runWorkflow is the shared pipeline behind both the run command and the
// TUI: extract, fetch in batches, archive, clean up. Per-task failures stay
// inside the statistics; only extraction and packaging errors come back as
// errors.
func runWorkflow(ctx context.Context, cfg config.Config, conn *sql.DB, logger *slog.Logger, sig *scheduler.Signal, opts scheduler.Options) (string, error) {
	runID := uuid.New().String()
	logger = logger.With(slog.String("run_id", runID[:8]))

	exp, err := export.Load(cfg.ExportPath)
	if err != nil {
		return "", err
	}
	tasks := export.Extract(exp, logger)
	if len(tasks) == 0 {
		logger.Warn("No media links found in export.")
		return "no media links found in export", nil
	}

	var recorder fetch.Recorder = fetch.NopRecorder{}
	if conn != nil {
		eventLog := db.NewEventLog(conn, runID, logger)
		recorder = eventLog
		for _, task := range tasks {
			eventLog.Record(ctx, task.URL, fetch.EventDiscovered, "", "", nil)
		}

		urls := make([]string, 0, len(tasks))
		for _, task := range tasks {
			urls = append(urls, task.URL)
		}
		if previously, err := db.CompletedURLs(ctx, conn, urls, fetch.EventFetchEnd); err != nil {
			logger.Warn("Could not check fetch history.", "error", err)
		} else if len(previously) > 0 {
			logger.Info("Some links were fetched in earlier runs.", slog.Int("count", len(previously)))
		}
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("create work directory %s: %w", cfg.WorkDir, err)
	}

	fetcher := fetch.New(cfg.WorkDir, cfg.AttemptTimeout, cfg.RetryBackoff, cfg.MaxAttempts, logger, recorder)
	sched := scheduler.New(fetcher, sig, logger, recorder, opts)
	paths, stats := sched.Run(ctx, tasks)

	if len(paths) == 0 {
		logger.Error("No media were successfully downloaded.",
			slog.Int("failures", len(stats.Failures)),
		)
		return "no media were successfully downloaded", nil
	}

	if err := archive.Build(ctx, cfg.ArchivePath, cfg.WorkDir, logger); err != nil {
		return "", fmt.Errorf("build archive: %w", err)
	}
	if err := archive.Cleanup(cfg.WorkDir, logger); err != nil {
		return "", fmt.Errorf("cleanup: %w", err)
	}

	return fmt.Sprintf("%d media files downloaded, archive at %s", len(paths), cfg.ArchivePath), nil
}
