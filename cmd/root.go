package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/spf13/cobra"

	"github.com/tokfetch/tokfetch/internal/config"
	"github.com/tokfetch/tokfetch/internal/db"
)

var (
	// Config flags - bound in init()
	exportPath  string
	workDir     string
	archivePath string
	dbPath      string
	workers     int
	batchSize   int
	logFormat   string
	logLevel    string
	logOutput   string

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tokfetch",
	Short: "Download media from a data export, in batches, into a zip archive.",
	Long: `tokfetch reads a social-media data-export JSON file, extracts the unique
media links, downloads them concurrently in batches with retry and resume
semantics, and packages the results into a zip archive. A DuckDB database
records a fetch-event audit trail.

The primary command is 'run'; 'tui' starts the interactive front-end and
'state' shows the audit trail.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// --- 1. Initialize Logger ---
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var logWriter io.Writer = os.Stderr
		if logOutput != "" && strings.ToLower(logOutput) != "stderr" {
			if strings.ToLower(logOutput) == "stdout" {
				logWriter = os.Stdout
			} else {
				f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
				if err != nil {
					return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
				}
				logWriter = f
			}
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		rootLogger.Debug("Logger initialized", "level", level.String(), "format", logFormat, "output", logOutput)

		// --- 2. Load Config: defaults, then .env, then flags ---
		appConfig = config.Default()
		if err := config.LoadEnv(&appConfig); err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("export") || appConfig.ExportPath == "" {
			appConfig.ExportPath = exportPath
		}
		if flags.Changed("work-dir") {
			appConfig.WorkDir = workDir
		}
		if flags.Changed("archive") {
			appConfig.ArchivePath = archivePath
		}
		if flags.Changed("db-path") {
			appConfig.DBPath = dbPath
		}
		if flags.Changed("workers") {
			appConfig.MaxWorkers = workers
		}
		if flags.Changed("batch-size") {
			appConfig.BatchSize = batchSize
		}
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		rootLogger.Debug("Configuration loaded", slog.Any("config", appConfig))

		if err := os.MkdirAll(appConfig.WorkDir, 0o755); err != nil {
			return fmt.Errorf("failed to create work directory %s: %w", appConfig.WorkDir, err)
		}
		if appConfig.DBPath != ":memory:" {
			dbDir := filepath.Dir(appConfig.DBPath)
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}

		// --- 3. Initialize DuckDB Connection & Schema ---
		var err error
		dbConn, err = sql.Open("duckdb", appConfig.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open duckdb database (%s): %w", appConfig.DBPath, err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", appConfig.DBPath, err)
		}
		if err := db.InitializeSchema(dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		rootLogger.Debug("DuckDB connection ready.", "path", appConfig.DBPath)

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close DuckDB connection cleanly", "error", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and runs it. Called by
// main.main().
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(stateCmd)

	if err := rootCmd.Execute(); err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	defaults := config.Default()
	rootCmd.PersistentFlags().StringVarP(&exportPath, "export", "e", defaults.ExportPath, "Path to the data-export JSON file")
	rootCmd.PersistentFlags().StringVarP(&workDir, "work-dir", "w", defaults.WorkDir, "Directory media files are downloaded into")
	rootCmd.PersistentFlags().StringVarP(&archivePath, "archive", "a", defaults.ArchivePath, "Path of the final zip archive")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db-path", "d", defaults.DBPath, "Path to DuckDB state database file (:memory: for in-memory)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", defaults.MaxWorkers, "Number of parallel download workers")
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", defaults.BatchSize, "Number of media items per batch")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "0.2.0"
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getDB() *sql.DB {
	return dbConn
}

func getConfig() config.Config {
	return appConfig
}
