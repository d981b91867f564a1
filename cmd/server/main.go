package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/verifyai/verifyai/internal/api"
	"github.com/verifyai/verifyai/internal/cache"
	"github.com/verifyai/verifyai/internal/config"
	"github.com/verifyai/verifyai/internal/contentstore"
	"github.com/verifyai/verifyai/internal/database"
	"github.com/verifyai/verifyai/internal/detector"
	"github.com/verifyai/verifyai/internal/fusion"
	"github.com/verifyai/verifyai/internal/log"
	"github.com/verifyai/verifyai/internal/media"
	"github.com/verifyai/verifyai/internal/metadata"
	"github.com/verifyai/verifyai/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.Environment)

	db, err := database.NewDB(database.Config{
		Type:       cfg.Database.Type,
		Host:       cfg.Database.Host,
		Port:       cfg.Database.Port,
		User:       cfg.Database.User,
		Password:   cfg.Database.Password,
		Name:       cfg.Database.Name,
		SQLitePath: cfg.Database.SQLitePath,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	if cfg.Database.Type == "postgres" {
		migrator := database.NewMigrator(db.Conn(), cfg.Database.Type, logger)
		if err := migrator.Run(cfg.Database.Migrations); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	ctx := context.Background()

	var store contentstore.Store
	switch cfg.Storage.Backend {
	case "s3":
		objectStore, err := contentstore.NewObjectStore(contentstore.ObjectStoreConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
			Region:    cfg.Storage.Region,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize object store")
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Fatal().Err(err).Str("bucket", cfg.Storage.Bucket).Msg("failed to ensure bucket")
		}
		store = objectStore
	case "disk":
		diskStore, err := contentstore.NewDiskStore(cfg.Storage.Path)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize disk store")
		}
		store = diskStore
	default:
		logger.Fatal().Str("backend", cfg.Storage.Backend).Msg("unknown storage backend")
	}

	var verdictCache *cache.VerdictCache
	if cfg.Redis.Addr != "" {
		verdictCache, err = cache.New(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, running without verdict cache")
			verdictCache = nil
		}
	}

	sampler, err := media.NewFrameSampler(logger)
	if err != nil {
		logger.Warn().Err(err).Msg("ffmpeg not found, video frame sampling disabled")
		sampler = nil
	}

	refRepo := database.NewReferenceRepo(db)
	if cfg.Pipeline.ReferenceSeed != "" {
		n, err := refRepo.SeedFromFile(ctx, cfg.Pipeline.ReferenceSeed)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.Pipeline.ReferenceSeed).Msg("seeding reference hashes failed")
		} else {
			logger.Info().Int("count", n).Msg("reference hashes seeded")
		}
	}

	detectors := []detector.Detector{
		detector.NewELADetector(logger),
		detector.NewPHashDetector(refRepo, cfg.Pipeline.HammingThreshold, logger),
	}
	if cfg.Oracle.Endpoint != "" {
		oracle := detector.NewHTTPOracle(detector.OracleConfig{
			Endpoint: cfg.Oracle.Endpoint,
			APIKey:   cfg.Oracle.APIKey,
			Timeout:  cfg.Oracle.Timeout,
		})
		detectors = append(detectors, detector.NewModelDetector(oracle, logger))
	} else {
		logger.Info().Msg("no oracle endpoint configured, model detector disabled")
	}

	orchestrator := pipeline.NewOrchestrator(
		store,
		metadata.NewExtractor(logger),
		sampler,
		detectors,
		pipeline.Config{
			Policy:          buildPolicy(cfg),
			Detectors:       buildDetectorConfig(cfg),
			DetectorTimeout: cfg.Pipeline.DetectorTimeout,
		},
		pipeline.Repos{
			Artifacts: database.NewArtifactRepo(db),
			Findings:  database.NewFindingsRepo(db),
			Results:   database.NewResultRepo(db),
			Runs:      database.NewRunRepo(db),
			Ledger:    database.NewLedger(db, []byte(cfg.Ledger.Secret)),
		},
		verdictCache,
		logger,
	)

	app := &api.App{
		Pipeline:      orchestrator,
		Findings:      database.NewFindingsRepo(db),
		Results:       database.NewResultRepo(db),
		MaxUploadSize: cfg.HTTP.MaxUploadSize,
		Log:           logger,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      api.NewRouter(app),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("storage", cfg.Storage.Backend).
			Str("database", cfg.Database.Type).
			Int("detectors", len(detectors)).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	// Let in-flight analyses reach a terminal state before closing the DB.
	orchestrator.Wait()
}

func buildPolicy(cfg *config.AppConfig) fusion.Policy {
	weights := make(map[string]float64, len(cfg.Pipeline.Detectors))
	for name, d := range cfg.Pipeline.Detectors {
		weights[name] = d.Weight
	}
	return fusion.Policy{
		Version:       cfg.Pipeline.PolicyVersion,
		Weights:       weights,
		SuspiciousAt:  cfg.Pipeline.SuspiciousAt,
		ManipulatedAt: cfg.Pipeline.ManipulatedAt,
	}
}

func buildDetectorConfig(cfg *config.AppConfig) detector.Config {
	settings := make(detector.Config, len(cfg.Pipeline.Detectors))
	for name, d := range cfg.Pipeline.Detectors {
		settings[name] = detector.Setting{Weight: d.Weight, Enabled: d.Enabled}
	}
	return settings
}
