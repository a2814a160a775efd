// Package app wires the pool together: configuration, the shared store
// handle, the validation engine, candidate sources and the lifecycle
// jobs. Everything downstream receives its collaborators explicitly;
// there is no hidden global state beyond the process logger.
package app

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"proxypool/internal/checker"
	"proxypool/internal/config"
	"proxypool/internal/database"
	"proxypool/internal/fetcher"
	"proxypool/internal/geo"
	"proxypool/internal/jobs/runtime"
	"proxypool/internal/reputation"
	"proxypool/internal/store"
)

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	modeFlag := flag.String("mode", "serve", "Run mode: fetch, validate, clean or serve")
	logLevelFlag := flag.String("log-level", "info", "Log level: debug, info, warn or error")
	flag.Parse()

	if level, err := log.ParseLevel(*logLevelFlag); err == nil {
		log.SetLevel(level)
	} else {
		log.Warn("invalid log level, keeping info", "value", *logLevelFlag)
	}

	cfg, err := config.ReadSettings()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	poolStore, err := store.NewRedisStore(cfg.Redis.URL, cfg.Redis.PoolKey, cfg.Scores.Initial)
	if err != nil {
		return fmt.Errorf("connecting pool store: %w", err)
	}
	defer func() {
		if err := poolStore.Close(); err != nil {
			log.Warn("error closing pool store", "error", err)
		}
	}()

	validator := checker.New(checker.Config{
		TestURLs:       cfg.Checker.TestURLs,
		Timeout:        cfg.CheckerTimeout(),
		Retries:        int(cfg.Checker.Retries),
		Concurrency:    int64(cfg.Checker.Concurrency),
		RetryBackoff:   cfg.CheckerRetryBackoff(),
		MinSuccessRate: cfg.Checker.MinSuccessRate,
	})

	candidateFetcher := fetcher.New()
	for _, source := range cfg.Sources {
		candidateFetcher.Register(fetcher.NewPlainTextSource(&fetcher.SourceConfig{
			Name:     source.Name,
			URLs:     source.URLs,
			Enabled:  source.Enabled,
			Interval: time.Duration(source.Interval) * time.Second,
			Timeout:  time.Duration(source.Timeout) * time.Second,
		}))
	}

	thresholds := reputation.Thresholds{
		ValidityScore:   cfg.Reputation.ValidityThreshold,
		FreshnessWindow: cfg.FreshnessWindow(),
	}
	cleaner := runtime.NewCleaner(poolStore, validator, thresholds, cfg.Pool.DecayFactor)
	cleaner.SetForgetFunc(candidateFetcher.Forget)

	var geoResolver *geo.Resolver
	if cfg.Geo.DBPath != "" {
		geoResolver, err = geo.Open(cfg.Geo.DBPath)
		if err != nil {
			log.Warn("GeoIP database unavailable, country tagging disabled", "error", err)
		} else {
			defer geoResolver.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.DSN != "" {
		db, err := database.Setup(cfg.Database.DSN)
		if err != nil {
			log.Warn("probe archive unavailable", "error", err)
		} else {
			validator.SetResultHook(runtime.RecordProbeStatistic)
			go runtime.StartProbeArchiveRoutine(ctx, db)
		}
	}

	orchestrator := runtime.NewOrchestrator(cfg, poolStore, validator, candidateFetcher, cleaner, geoResolver)

	log.Info("starting", "mode", *modeFlag, "pool_key", cfg.Redis.PoolKey)

	switch *modeFlag {
	case "fetch":
		return runFetchMode(ctx, orchestrator, candidateFetcher, validator)
	case "validate":
		return runValidateMode(ctx, poolStore, orchestrator, validator)
	case "clean":
		cleaner.RunPeriodic(ctx, cfg.CleanInterval(), cfg.CycleCooldown())
		log.Info("shutdown complete")
		return nil
	case "serve":
		if err := orchestrator.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		log.Info("shutdown complete")
		return nil
	default:
		return fmt.Errorf("unknown mode %q", *modeFlag)
	}
}

// runFetchMode performs a single fetch, validate and store pass.
func runFetchMode(ctx context.Context, orchestrator *runtime.Orchestrator, candidateFetcher *fetcher.Fetcher, validator *checker.Validator) error {
	candidates := candidateFetcher.FetchDue(ctx)
	confirmed := validator.BatchValidate(ctx, candidates)
	stored := orchestrator.StoreConfirmed(ctx, confirmed)
	log.Info("fetch pass complete", "fetched", len(candidates), "alive", len(confirmed), "stored", stored)
	return ctx.Err()
}

// runValidateMode re-validates every stored entry once.
func runValidateMode(ctx context.Context, poolStore store.Store, orchestrator *runtime.Orchestrator, validator *checker.Validator) error {
	stored := poolStore.GetAll(ctx)
	confirmed := validator.BatchValidate(ctx, stored)
	updated := orchestrator.StoreConfirmed(ctx, confirmed)
	log.Info("validate pass complete", "stored", len(stored), "alive", len(confirmed), "updated", updated)
	return ctx.Err()
}
