package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"internship-sync/tracker/internal/config"
	"internship-sync/tracker/internal/database"
	"internship-sync/tracker/internal/export"
	"internship-sync/tracker/internal/normalize"
	"internship-sync/tracker/internal/pipeline"
	"internship-sync/tracker/internal/server"
	"internship-sync/tracker/internal/source"
	"internship-sync/tracker/internal/store"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func usage() {
	fmt.Println("Usage: tracker [command] [options]")
	fmt.Println("Commands: sync, serve, export")
	fmt.Println("\nFor command-specific options, use: tracker [command] -h")
}

func main() {
	cfg := config.Load()

	syncCmd := flag.NewFlagSet("sync", flag.ExitOnError)
	syncCmd.StringVar(&cfg.DBPath, "db", cfg.DBPath,
		"Path to the SQLite database file (env: DATABASE_PATH)")
	syncCmd.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun,
		"Log decisions without writing anything (env: DRY_RUN)")
	syncCmd.IntVar(&cfg.WorkerCount, "workers", cfg.WorkerCount,
		"Number of worker goroutines for search units (env: WORKER_COUNT)")

	var intervalMinutes int
	syncCmd.IntVar(&intervalMinutes, "interval", 0,
		"Interval in minutes between sync runs, 0 for one-shot mode")

	var cronSpec string
	syncCmd.StringVar(&cronSpec, "cron", "",
		"Cron expression for scheduled runs (overrides -interval)")

	var syncLogLevel string
	syncCmd.StringVar(&syncLogLevel, "log-level", cfg.LogLevel.String(),
		"Log level: debug, info, warn, error (env: LOG_LEVEL)")

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	serveCmd.StringVar(&cfg.DBPath, "db", cfg.DBPath,
		"Path to the SQLite database file (env: DATABASE_PATH)")
	serveCmd.StringVar(&cfg.ServerHost, "host", cfg.ServerHost,
		"Host to bind the server to (env: TRACKER_HOST)")
	serveCmd.IntVar(&cfg.ServerPort, "port", cfg.ServerPort,
		"Port to listen on (env: TRACKER_PORT)")

	var serveLogLevel string
	serveCmd.StringVar(&serveLogLevel, "log-level", cfg.LogLevel.String(),
		"Log level: debug, info, warn, error (env: LOG_LEVEL)")

	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportCmd.StringVar(&cfg.DBPath, "db", cfg.DBPath,
		"Path to the SQLite database file (env: DATABASE_PATH)")

	var exportPath string
	exportCmd.StringVar(&exportPath, "out", "internships.csv",
		"Output CSV path, '-' for stdout")

	var exportLogLevel string
	exportCmd.StringVar(&exportLogLevel, "log-level", cfg.LogLevel.String(),
		"Log level: debug, info, warn, error (env: LOG_LEVEL)")

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sync":
		syncCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, syncLogLevel)

		if err := cfg.Validate(); err != nil {
			log.Error().Err(err).Msg("Invalid configuration")
			os.Exit(1)
		}
		if err := runSync(cfg, time.Duration(intervalMinutes)*time.Minute, cronSpec); err != nil {
			log.Error().Err(err).Msg("Sync failed")
			os.Exit(1)
		}

	case "serve":
		serveCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, serveLogLevel)

		if err := runServe(cfg); err != nil {
			log.Error().Err(err).Msg("Server failed")
			os.Exit(1)
		}

	case "export":
		exportCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, exportLogLevel)

		if err := runExport(cfg, exportPath); err != nil {
			log.Error().Err(err).Msg("Export failed")
			os.Exit(1)
		}

	case "-h", "--help", "help":
		usage()
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		usage()
		os.Exit(1)
	}
}

func applyLogLevel(cfg *config.Config, levelStr string) {
	if level, err := zerolog.ParseLevel(levelStr); err == nil {
		cfg.LogLevel = level
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
}

// runSync executes the sync pipeline once, periodically, or on a cron
// schedule.
func runSync(cfg *config.Config, interval time.Duration, cronSpec string) error {
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	p, err := buildPipeline(cfg, db)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-shutdown
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	if cronSpec != "" {
		return runOnSchedule(ctx, p, cronSpec)
	}

	if err := runCycle(ctx, p); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("Sync canceled by shutdown signal")
			return nil
		}
		return err
	}

	if interval <= 0 {
		log.Info().Msg("One-shot sync completed, exiting")
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", interval).
		Time("next_run", time.Now().Add(interval)).
		Msg("Waiting for next sync cycle")

	for {
		select {
		case <-ticker.C:
			log.Info().Msg("Starting scheduled sync cycle")
			if err := runCycle(ctx, p); err != nil {
				if errors.Is(err, context.Canceled) {
					log.Info().Msg("Sync canceled by shutdown signal")
					return nil
				}
				log.Error().Err(err).Msg("Sync cycle failed")
				// Continue to the next cycle rather than exiting.
			}
			log.Info().
				Time("next_run", time.Now().Add(interval)).
				Msg("Waiting for next sync cycle")

		case <-ctx.Done():
			log.Info().Msg("Shutting down periodic sync")
			return nil
		}
	}
}

// runOnSchedule runs sync cycles on a cron expression until shutdown.
func runOnSchedule(ctx context.Context, p *pipeline.Pipeline, cronSpec string) error {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(cronSpec, func() {
		log.Info().Str("schedule", cronSpec).Msg("Starting scheduled sync cycle")
		if err := runCycle(ctx, p); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Sync cycle failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronSpec, err)
	}

	scheduler.Start()
	log.Info().Str("schedule", cronSpec).Msg("Cron scheduler started")

	<-ctx.Done()
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	log.Info().Msg("Cron scheduler stopped")
	return nil
}

func runCycle(ctx context.Context, p *pipeline.Pipeline) error {
	cycleCtx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	start := time.Now()
	summary, err := p.Run(cycleCtx)
	if err != nil {
		if ctxErr := cycleCtx.Err(); ctxErr != nil {
			return ctx.Err()
		}
		return fmt.Errorf("sync error: %w", err)
	}

	log.Info().
		Int64("run_id", summary.RunID).
		Int64("inserted", summary.Inserted).
		Int64("closed", summary.Closed).
		Dur("duration", time.Since(start)).
		Msg("Sync cycle finished")
	return nil
}

func buildPipeline(cfg *config.Config, db *database.DB) (*pipeline.Pipeline, error) {
	client, err := source.NewClient(source.ClientConfig{
		Timeout:      cfg.HTTPTimeout,
		RetryMax:     cfg.RetryMax,
		RetryBackoff: cfg.RetryBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client: %w", err)
	}

	sources, err := source.Registry(client, cfg.SiteNames)
	if err != nil {
		return nil, err
	}

	rules, err := normalize.LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	normalizer, err := normalize.New(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to build normalizer: %w", err)
	}

	return pipeline.New(cfg, store.New(db), sources, normalizer), nil
}

func runServe(cfg *config.Config) error {
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	return server.RunServer(db, cfg.ListenAddr(), log.Logger, cfg.APIKey)
}

func runExport(cfg *config.Config, outPath string) error {
	dbCfg := database.NewConfig(cfg.DBPath)
	dbCfg.ReadOnly = true
	db, err := database.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	out := os.Stdout
	if outPath != "-" {
		out, err = os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outPath, err)
		}
		defer out.Close()
	}

	count, err := export.WriteCSV(context.Background(), store.New(db), out)
	if err != nil {
		return err
	}
	log.Info().Int("internship_count", count).Str("path", outPath).Msg("Exported internships")
	return nil
}
