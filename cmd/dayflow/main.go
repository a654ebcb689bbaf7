// Dayflow daemon, the personal scheduling service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dayflow/dayflow/internal/api"
	"github.com/dayflow/dayflow/internal/availability"
	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/internal/core"
	"github.com/dayflow/dayflow/internal/logging"
	"github.com/dayflow/dayflow/internal/notifications"
	"github.com/dayflow/dayflow/internal/scheduler"
	"github.com/dayflow/dayflow/internal/scheduling"
	"github.com/dayflow/dayflow/internal/storage"
	dsync "github.com/dayflow/dayflow/internal/sync"
)

var (
	configPath string
	dataDir    string
	port       int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dayflow",
		Short: "Dayflow daemon - your scheduling assistant",
		RunE:  runDaemon,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Config file path")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")
	rootCmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// syncReporter funnels reconciliation failures into the notification feed.
type syncReporter struct {
	service *notifications.Service
}

func (r *syncReporter) SendSyncFailed(ctx context.Context, provider, detail string) error {
	_, err := r.service.SendSyncFailed(ctx, provider, detail)
	return err
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// .env is optional; real env vars always win
	godotenv.Load()

	log := logging.WithComponent("daemon")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	dbPath := filepath.Join(cfg.DataDir, "dayflow.db")
	db, err := storage.Open(storage.Config{Path: dbPath})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	events := storage.NewEventStore(db)
	connections := storage.NewConnectionStore(db)
	meetings := storage.NewMeetingStore(db)

	notifSvc := notifications.NewService(db)

	model := availability.NewModel(events, availability.SelfResolver)
	engine := scheduling.NewEngine(meetings, events, model, cfg.Scheduling, notifications.NewSchedulerNotifier(notifSvc))

	tokens, err := dsync.NewTokenStore(filepath.Join(cfg.DataDir, "tokens"))
	if err != nil {
		return fmt.Errorf("opening token store: %w", err)
	}

	oauth := dsync.NewGoogleOAuth(cfg.Google)
	if !oauth.Configured() {
		log.Warn("GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET not set, calendar sync disabled")
	}

	registry := dsync.NewRegistry()
	registry.Register(core.SourceGoogle, dsync.NewGoogleProvider(oauth, tokens))

	reconciler := dsync.NewReconciler(events, connections, registry, cfg.Sync, &syncReporter{service: notifSvc})

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background work: periodic reconciliation plus daily notification cleanup.
	tasks := scheduler.NewScheduler("Local")
	tasks.Register(scheduler.IntervalTask("sync", "calendar sync", cfg.Sync.Interval.Std(), func(ctx context.Context) error {
		_, err := reconciler.SyncAll(ctx)
		return err
	}))
	tasks.Register(scheduler.DailyTask("notif-cleanup", "notification cleanup", "03:00", func(ctx context.Context) error {
		_, err := notifSvc.Cleanup(ctx, 30*24*time.Hour)
		return err
	}))
	if err := tasks.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	server := api.New(api.Config{
		Port:                cfg.Server.Port,
		DB:                  db,
		Engine:              engine,
		Reconciler:          reconciler,
		NotificationService: notifSvc,
		TaskScheduler:       tasks,
		OAuth:               oauth,
		Tokens:              tokens,
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		log.Info("shutting down")
		tasks.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Stop(shutdownCtx)
		cancel()
	}()

	log.WithField("port", cfg.Server.Port).Info("dayflow listening")
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
