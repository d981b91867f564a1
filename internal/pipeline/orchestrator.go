package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/verifyai/verifyai/internal/cache"
	"github.com/verifyai/verifyai/internal/contentstore"
	"github.com/verifyai/verifyai/internal/database"
	"github.com/verifyai/verifyai/internal/detector"
	"github.com/verifyai/verifyai/internal/fusion"
	"github.com/verifyai/verifyai/internal/media"
	"github.com/verifyai/verifyai/internal/metadata"
	"github.com/verifyai/verifyai/internal/models"
)

// Repos bundles the persistence handles the orchestrator needs.
type Repos struct {
	Artifacts *database.ArtifactRepo
	Findings  *database.FindingsRepo
	Results   *database.ResultRepo
	Runs      *database.RunRepo
	Ledger    *database.Ledger
}

// Config controls one orchestrator instance. Detector settings are
// re-resolved from here per analysis run; there is no global registry.
type Config struct {
	Policy          fusion.Policy
	Detectors       detector.Config
	DetectorTimeout time.Duration
}

// Orchestrator sequences the pipeline per submitted artifact:
// Received -> Ingested -> Analyzing -> Fused -> Recorded, with
// Failed(reason) reachable from Ingested and Analyzing. Detectors for one
// artifact run concurrently; artifacts do not share locks.
type Orchestrator struct {
	store     contentstore.Store
	extractor *metadata.Extractor
	sampler   *media.FrameSampler // nil when ffmpeg is unavailable
	detectors []detector.Detector
	cfg       Config
	repos     Repos
	cache     *cache.VerdictCache
	log       zerolog.Logger

	wg sync.WaitGroup
}

func NewOrchestrator(
	store contentstore.Store,
	extractor *metadata.Extractor,
	sampler *media.FrameSampler,
	detectors []detector.Detector,
	cfg Config,
	repos Repos,
	verdictCache *cache.VerdictCache,
	logger zerolog.Logger,
) *Orchestrator {
	if cfg.DetectorTimeout == 0 {
		cfg.DetectorTimeout = 45 * time.Second
	}
	return &Orchestrator{
		store:     store,
		extractor: extractor,
		sampler:   sampler,
		detectors: detectors,
		cfg:       cfg,
		repos:     repos,
		cache:     verdictCache,
		log:       logger.With().Str("component", "pipeline").Logger(),
	}
}

// Submit ingests artifact bytes and starts analysis in the background. The
// digest is returned as soon as ingestion completes; cancellation of the
// caller's context after that point does not abort the analysis.
func (o *Orchestrator) Submit(ctx context.Context, data []byte, declaredMIME string) (digest, runID string, err error) {
	digest, run, input, err := o.ingest(ctx, data, declaredMIME)
	if err != nil {
		return digest, "", err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		// Detached from the caller: an abandoned upload must not leave a
		// half-recorded analysis behind.
		o.analyze(context.Background(), run, input)
	}()

	return digest, run.ID, nil
}

// SubmitSync runs the full pipeline inline and returns the recorded
// verdict. Used by the CLI and by deployments that prefer synchronous
// verification. Caller cancellation discards the run's results.
func (o *Orchestrator) SubmitSync(ctx context.Context, data []byte, declaredMIME string) (*models.Verdict, error) {
	digest, run, input, err := o.ingest(ctx, data, declaredMIME)
	if err != nil {
		return nil, err
	}

	o.analyze(ctx, run, input)

	verdict, err := o.repos.Ledger.Latest(ctx, digest)
	if errors.Is(err, database.ErrNotFound) {
		finished, runErr := o.repos.Runs.Get(ctx, run.ID)
		if runErr == nil && finished.State == models.RunFailed {
			return nil, fmt.Errorf("%w: %s", ErrNotVerifiable, finished.FailureReason)
		}
		return nil, ErrNotVerifiable
	}
	return verdict, err
}

// Reanalyze starts a fresh run for an already-ingested artifact, for
// example after a fusion-policy version change. The previous verdicts stay
// in the ledger untouched.
func (o *Orchestrator) Reanalyze(ctx context.Context, digest string) (string, error) {
	artifact, err := o.repos.Artifacts.Get(ctx, digest)
	if errors.Is(err, database.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	data, err := o.store.Get(ctx, digest)
	if errors.Is(err, contentstore.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	run := models.NewRun(digest, o.cfg.Policy.Version)
	if err := o.repos.Runs.Create(ctx, run); err != nil {
		return "", err
	}
	if err := o.repos.Runs.Transition(ctx, run.ID, models.RunIngested, ""); err != nil {
		return "", err
	}

	input := detector.Input{
		Digest: digest,
		Kind:   artifact.Kind,
		Bytes:  data,
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.analyze(context.Background(), run, input)
	}()

	return run.ID, nil
}

// Verdict resolves the latest verdict for a digest: the verdict itself,
// ErrPending while a run is in flight, ErrNotVerifiable when the last run
// failed, or ErrNotFound.
func (o *Orchestrator) Verdict(ctx context.Context, digest string) (*models.Verdict, error) {
	if cached, ok := o.cache.GetVerdict(ctx, digest); ok {
		return cached, nil
	}

	verdict, err := o.repos.Ledger.Latest(ctx, digest)
	if err == nil {
		o.cache.SetVerdict(ctx, verdict)
		return verdict, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	active, err := o.repos.Runs.HasActive(ctx, digest)
	if err != nil {
		return nil, err
	}
	if active || o.cache.IsPending(ctx, digest) {
		return nil, ErrPending
	}

	run, err := o.repos.Runs.Latest(ctx, digest)
	if err == nil && run.State == models.RunFailed {
		return nil, fmt.Errorf("%w: %s", ErrNotVerifiable, run.FailureReason)
	}

	return nil, ErrNotFound
}

// History returns all verdicts ever recorded for a digest, newest first.
func (o *Orchestrator) History(ctx context.Context, digest string) ([]*models.Verdict, error) {
	history, err := o.repos.Ledger.History(ctx, digest)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		exists, err := o.repos.Artifacts.Exists(ctx, digest)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
	}
	return history, nil
}

// Wait blocks until all background analyses finish. Used on shutdown and
// in tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// ingest stores the bytes, dedups the artifact record, extracts metadata
// and advances the run to Analyzing.
func (o *Orchestrator) ingest(ctx context.Context, data []byte, declaredMIME string) (string, *models.Run, detector.Input, error) {
	digest, err := o.store.Put(ctx, data)
	if err != nil {
		return "", nil, detector.Input{}, err
	}

	run := models.NewRun(digest, o.cfg.Policy.Version)
	if err := o.repos.Runs.Create(ctx, run); err != nil {
		return digest, nil, detector.Input{}, err
	}
	if err := o.repos.Runs.Transition(ctx, run.ID, models.RunIngested, ""); err != nil {
		return digest, nil, detector.Input{}, err
	}

	info, err := media.Sniff(data)
	if err != nil {
		o.fail(ctx, run, ErrUnsupportedFormat.Error())
		return digest, nil, detector.Input{}, ErrUnsupportedFormat
	}

	artifact := models.NewArtifact(digest, info.Kind, declaredMIME, info.MIME, int64(len(data)))
	if err := o.repos.Artifacts.Insert(ctx, artifact); err != nil {
		return digest, nil, detector.Input{}, err
	}

	findings, err := o.extractor.Extract(data)
	if errors.Is(err, metadata.ErrUnsupportedFormat) {
		o.fail(ctx, run, ErrUnsupportedFormat.Error())
		return digest, nil, detector.Input{}, ErrUnsupportedFormat
	}
	if err != nil {
		return digest, nil, detector.Input{}, err
	}
	if err := o.repos.Findings.Upsert(ctx, digest, findings); err != nil {
		return digest, nil, detector.Input{}, err
	}

	o.log.Info().
		Str("digest", digest).
		Str("run", run.ID).
		Str("kind", string(info.Kind)).
		Int("flags", len(findings.Flags)).
		Msg("artifact ingested")

	return digest, run, detector.Input{Digest: digest, Kind: info.Kind, Bytes: data}, nil
}

// analyze fans detectors out, fuses their results and records the verdict.
// A cancelled ctx after fan-in discards the run instead of persisting it.
func (o *Orchestrator) analyze(ctx context.Context, run *models.Run, input detector.Input) {
	if err := o.repos.Runs.Transition(ctx, run.ID, models.RunAnalyzing, ""); err != nil {
		o.log.Error().Err(err).Str("run", run.ID).Msg("transition to analyzing failed")
		return
	}
	o.cache.MarkPending(ctx, input.Digest, run.ID)
	defer o.cache.ClearPending(context.Background(), input.Digest)

	if input.Kind == media.KindVideo && o.sampler != nil {
		frame, err := o.sampler.MidFrame(ctx, input.Bytes)
		if err != nil {
			o.log.Warn().Err(err).Str("digest", input.Digest).Msg("frame sampling failed, pixel detectors will skip")
		} else {
			input.Frame = frame
			// Frames are derived artifacts; keep them content-addressed
			// for the evidence trail.
			if _, err := o.store.Put(ctx, frame); err != nil {
				o.log.Warn().Err(err).Msg("storing sampled frame failed")
			}
		}
	}

	results := o.fanOut(ctx, input)

	if ctx.Err() != nil {
		// Caller cancelled; detectors ran to completion but their results
		// are discarded, not recorded.
		o.fail(context.Background(), run, "cancelled by caller")
		return
	}

	contributingIDs := []string{}
	for _, result := range results {
		rec, err := o.repos.Results.Insert(ctx, run.ID, input.Digest, result)
		if err != nil {
			o.log.Error().Err(err).Str("detector", result.Detector).Msg("persisting detector result failed")
			continue
		}
		if result.Status == detector.StatusSucceeded {
			contributingIDs = append(contributingIDs, rec.ID)
		}
	}

	fused, err := fusion.Fuse(results, o.cfg.Policy)
	if errors.Is(err, fusion.ErrInsufficientEvidence) {
		o.fail(ctx, run, "insufficient evidence: no detector succeeded")
		return
	}
	if err != nil {
		o.fail(ctx, run, err.Error())
		return
	}

	if err := o.repos.Runs.Transition(ctx, run.ID, models.RunFused, ""); err != nil {
		o.log.Error().Err(err).Str("run", run.ID).Msg("transition to fused failed")
		return
	}

	verdict := models.NewVerdict(run.ID, input.Digest, fused, contributingIDs)
	if _, err := o.repos.Ledger.Append(ctx, verdict); err != nil {
		o.fail(ctx, run, fmt.Sprintf("ledger append failed: %v", err))
		return
	}

	if err := o.repos.Runs.Transition(ctx, run.ID, models.RunRecorded, ""); err != nil {
		o.log.Error().Err(err).Str("run", run.ID).Msg("transition to recorded failed")
		return
	}

	o.cache.SetVerdict(ctx, verdict)

	o.log.Info().
		Str("digest", input.Digest).
		Str("run", run.ID).
		Float64("score", verdict.Score).
		Str("label", string(verdict.Label)).
		Strs("degraded", verdict.Degraded).
		Msg("verdict recorded")
}

// fanOut runs every enabled detector concurrently under its own timeout
// and joins the results. A detector that overruns its deadline is recorded
// as failed with the timeout in evidence; the task itself is left to finish
// so external calls are never torn mid-flight.
func (o *Orchestrator) fanOut(ctx context.Context, input detector.Input) []detector.Result {
	type outcome struct {
		idx    int
		result detector.Result
	}

	enabled := make([]detector.Detector, 0, len(o.detectors))
	for _, d := range o.detectors {
		setting, ok := o.cfg.Detectors[d.Name()]
		if !ok || !setting.Enabled {
			continue
		}
		enabled = append(enabled, d)
	}

	results := make([]detector.Result, len(enabled))
	resultCh := make(chan outcome, len(enabled))

	// Detector deadlines are independent of caller cancellation: a
	// cancelled submission discards results after the fan-in rather than
	// tearing dispatched work (oracle HTTP calls included) mid-flight.
	base := context.WithoutCancel(ctx)

	for i, d := range enabled {
		go func(idx int, det detector.Detector) {
			detCtx, cancel := context.WithTimeout(base, o.cfg.DetectorTimeout)
			defer cancel()

			start := time.Now()
			done := make(chan detector.Result, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- timeoutResult(det.Name(), fmt.Sprintf("panic: %v", r), time.Since(start))
					}
				}()
				result := det.Analyze(detCtx, input)
				result.Elapsed = time.Since(start)
				done <- result
			}()

			select {
			case result := <-done:
				resultCh <- outcome{idx: idx, result: result}
			case <-detCtx.Done():
				resultCh <- outcome{idx: idx, result: timeoutResult(det.Name(),
					fmt.Sprintf("timeout after %s", o.cfg.DetectorTimeout), time.Since(start))}
			}
		}(i, d)
	}

	for range enabled {
		out := <-resultCh
		results[out.idx] = out.result
	}
	return results
}

func timeoutResult(name, reason string, elapsed time.Duration) detector.Result {
	evidence, _ := json.Marshal(map[string]string{"failure": reason})
	return detector.Result{
		Detector: name,
		Status:   detector.StatusFailed,
		Evidence: evidence,
		Elapsed:  elapsed,
	}
}

func (o *Orchestrator) fail(ctx context.Context, run *models.Run, reason string) {
	if err := o.repos.Runs.Transition(ctx, run.ID, models.RunFailed, reason); err != nil {
		o.log.Error().Err(err).Str("run", run.ID).Msg("transition to failed failed")
	}
	o.log.Warn().Str("run", run.ID).Str("digest", run.Digest).Str("reason", reason).Msg("analysis run failed")
}
