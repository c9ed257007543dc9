package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"classboard/internal/app"
	"classboard/internal/config"
	"classboard/internal/logging"
	"classboard/pkg/types"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// ARCHITECTURAL DISCOVERY: Command tree is built per call; tests execute it with their own args and output
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "classboard",
		Short:        "Real-time classroom whiteboard and chat coordinator",
		SilenceUsage: true,
	}

	// FUNCTIONAL DISCOVERY: CLASSBOARD_CONFIG_FILE supplies the default config path
	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CLASSBOARD_CONFIG_FILE"), "Path to YAML config file")

	var verbose bool
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the coordinator and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath, verbose)
		},
	}
	startCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version and build info",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "classboard %s\n", Version)
			fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config without starting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigWithPrecedence(configPath)
			if err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration is valid.\n")
			fmt.Fprintf(out, "  Listen: %s\n", cfg.Address())
			fmt.Fprintf(out, "  Database: %s\n", cfg.Database.Path)
			fmt.Fprintf(out, "  Persistence workers: %d\n", cfg.Persistence.Workers)
			fmt.Fprintf(out, "  Reap empty rooms: %v\n", cfg.Room.ReapEmpty)
			fmt.Fprintf(out, "  Metrics: %v\n", cfg.Monitoring.MetricsEnabled)
			return nil
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check health (non-zero exit if unhealthy)",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			return checkHealth(cmd.OutOrStdout(), url)
		},
	}
	healthCmd.Flags().String("url", "http://127.0.0.1:8080/health", "Health endpoint URL")

	rootCmd.AddCommand(startCmd, versionCmd, validateCmd, healthCmd, newLessonCmd(&configPath))
	return rootCmd
}

// newLessonCmd stands in for the group-management flow that owns lesson creation
func newLessonCmd(configPath *string) *cobra.Command {
	lessonCmd := &cobra.Command{
		Use:   "lesson",
		Short: "Create and inspect stored lessons",
	}

	var topic, id string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a lesson so clients can join its room",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*configPath, func(ctx context.Context, store lessonStore) error {
				lesson := &types.Lesson{ID: id, Topic: topic}
				if err := store.CreateLesson(ctx, lesson); err != nil {
					return fmt.Errorf("create lesson: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), lesson.ID)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&topic, "topic", "", "Lesson topic")
	createCmd.Flags().StringVar(&id, "id", "", "Lesson ID (generated when empty)")
	_ = createCmd.MarkFlagRequired("topic")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a lesson with its chat log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*configPath, func(ctx context.Context, store lessonStore) error {
				lesson, err := store.FindLessonByID(ctx, args[0])
				if err != nil {
					return fmt.Errorf("find lesson: %w", err)
				}
				messages, err := store.ListLessonMessages(ctx, lesson.ID)
				if err != nil {
					return fmt.Errorf("list messages: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Lesson %s\n", lesson.ID)
				fmt.Fprintf(out, "  Topic: %s\n", lesson.Topic)
				fmt.Fprintf(out, "  Canvas: %d bytes\n", len(lesson.CanvasContent))
				fmt.Fprintf(out, "  Messages: %d\n", len(messages))
				for _, m := range messages {
					fmt.Fprintf(out, "    [%s] %s: %s\n", m.CreatedAt.Format(time.RFC3339), m.OwnerID, m.Content)
				}
				return nil
			})
		},
	}

	lessonCmd.AddCommand(createCmd, showCmd)
	return lessonCmd
}

type lessonStore interface {
	CreateLesson(ctx context.Context, lesson *types.Lesson) error
	FindLessonByID(ctx context.Context, id string) (*types.Lesson, error)
	ListLessonMessages(ctx context.Context, lessonID string) ([]*types.Message, error)
}

func withStore(configPath string, fn func(context.Context, lessonStore) error) error {
	cfg, err := config.LoadConfigWithPrecedence(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := app.OpenDatabase(cfg.Database, logging.New(io.Discard, "error", "json"))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
	defer cancel()
	return fn(ctx, store)
}

func runServer(configPath string, verbose bool) error {
	cfg, err := config.LoadConfigWithPrecedence(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, closer := logging.Setup(cfg.Logging)
	if closer != nil {
		defer closer.Close()
	}

	logger.Info("starting classboard",
		"version", Version,
		"listen", cfg.Address(),
		"database", cfg.Database.Path,
	)

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	// Notify systemd that we're ready
	daemon.SdNotify(false, daemon.SdNotifyReady)

	// Start watchdog heartbeat (send every 15s for 30s WatchdogSec)
	go watchdog(ctx, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err, ok := <-application.Errors():
		if ok {
			runErr = fmt.Errorf("application error: %w", err)
		}
	}

	cancel()
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	// FUNCTIONAL DISCOVERY: Timeout context prevents hanging shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), application.ShutdownTimeout())
	defer shutdownCancel()

	if err := application.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		if runErr == nil {
			runErr = fmt.Errorf("shutdown error: %w", err)
		}
	}
	return runErr
}

func watchdog(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sent, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			if err != nil {
				logger.Warn("failed to notify watchdog", "error", err)
			} else if sent {
				logger.Debug("watchdog keepalive sent")
			}
		case <-ctx.Done():
			return
		}
	}
}

func checkHealth(out io.Writer, url string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy (status: %d)", resp.StatusCode)
	}
	fmt.Fprintln(out, "healthy")
	return nil
}
