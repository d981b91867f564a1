package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

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

// One-shot verification from the command line: ingest a file, run the
// full pipeline synchronously and print the recorded verdict as JSON.
func main() {
	var (
		file    = flag.String("file", "", "Path to the media file to verify")
		mime    = flag.String("mime", "", "Declared MIME type (optional)")
		verbose = flag.Bool("v", false, "Also print per-detector results")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze -file <path> [-mime <type>] [-v]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.Environment)

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("failed to read file")
	}

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

	store, err := contentstore.NewDiskStore(cfg.Storage.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize disk store")
	}

	sampler, err := media.NewFrameSampler(logger)
	if err != nil {
		sampler = nil
	}

	refRepo := database.NewReferenceRepo(db)

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
	}

	weights := make(map[string]float64, len(cfg.Pipeline.Detectors))
	settings := make(detector.Config, len(cfg.Pipeline.Detectors))
	for name, d := range cfg.Pipeline.Detectors {
		weights[name] = d.Weight
		settings[name] = detector.Setting{Weight: d.Weight, Enabled: d.Enabled}
	}

	orchestrator := pipeline.NewOrchestrator(
		store,
		metadata.NewExtractor(logger),
		sampler,
		detectors,
		pipeline.Config{
			Policy: fusion.Policy{
				Version:       cfg.Pipeline.PolicyVersion,
				Weights:       weights,
				SuspiciousAt:  cfg.Pipeline.SuspiciousAt,
				ManipulatedAt: cfg.Pipeline.ManipulatedAt,
			},
			Detectors:       settings,
			DetectorTimeout: cfg.Pipeline.DetectorTimeout,
		},
		pipeline.Repos{
			Artifacts: database.NewArtifactRepo(db),
			Findings:  database.NewFindingsRepo(db),
			Results:   database.NewResultRepo(db),
			Runs:      database.NewRunRepo(db),
			Ledger:    database.NewLedger(db, []byte(cfg.Ledger.Secret)),
		},
		nil,
		logger,
	)

	ctx := context.Background()

	verdict, err := orchestrator.SubmitSync(ctx, data, *mime)
	if errors.Is(err, pipeline.ErrUnsupportedFormat) {
		logger.Fatal().Str("file", *file).Msg("unsupported media format")
	}
	if errors.Is(err, pipeline.ErrNotVerifiable) {
		logger.Fatal().Err(err).Str("file", *file).Msg("not verifiable")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("analysis failed")
	}

	out, err := json.MarshalIndent(verdict, "", "  ")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to encode verdict")
	}
	fmt.Println(string(out))

	if *verbose {
		resultRepo := database.NewResultRepo(db)
		results, err := resultRepo.ListByRun(ctx, verdict.RunID)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load detector results")
		}
		detail, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to encode detector results")
		}
		fmt.Println(string(detail))
	}
}
