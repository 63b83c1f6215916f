package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/adapters"
	"github.com/aristath/sharpline/internal/arbiter"
	"github.com/aristath/sharpline/internal/backtest"
	"github.com/aristath/sharpline/internal/catalog"
	"github.com/aristath/sharpline/internal/clock"
	"github.com/aristath/sharpline/internal/curated"
	"github.com/aristath/sharpline/internal/detect"
	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/outcomes"
	"github.com/aristath/sharpline/internal/ratelimit"
	"github.com/aristath/sharpline/internal/staging"
	"github.com/aristath/sharpline/internal/storage/games"
	"github.com/aristath/sharpline/internal/storage/raw"
	"github.com/aristath/sharpline/internal/tuner"
	"github.com/aristath/sharpline/internal/utils"
)

// SourceRuntime bundles one provider's adapter with its own rate limiter
// and circuit breaker, the unit the FetchJob iterates over.
type SourceRuntime struct {
	Name    adapters.SourceName
	Adapter adapters.Adapter
	Breaker *ratelimit.Breaker
	Bucket  *ratelimit.TokenBucket
}

// FetchJob runs one collection pass across every registered source,
// honoring each source's circuit breaker, token bucket, and the shared
// quiet period.
type FetchJob struct {
	Sources     []*SourceRuntime
	RawStore    *raw.Store
	Games       *games.Store
	QuietPeriod *ratelimit.QuietPeriod
	Clock       clock.Clock
	FetchWindow time.Duration
	Log         zerolog.Logger
}

func (j *FetchJob) Name() string { return "fetch_sources" }

func (j *FetchJob) Run() error {
	if j.QuietPeriod != nil && j.QuietPeriod.Active() {
		j.Log.Debug().Msg("quiet period active, skipping fetch pass")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := j.Clock.Now()
	window := adapters.FetchWindow{Since: now.Add(-j.FetchWindow), Until: now}

	var firstErr error
	for _, src := range j.Sources {
		if !src.Breaker.Allow() {
			continue
		}
		if !src.Bucket.Take() {
			j.Log.Warn().Str("source", string(src.Name)).Msg("token bucket exhausted, skipping source")
			continue
		}

		stop := utils.OperationTimer("fetch_"+string(src.Name), j.Log)
		observations, err := src.Adapter.Fetch(ctx, window)
		stop()
		if err != nil {
			src.Breaker.RecordFailure()
			if errors.Is(err, model.ErrSourceRateLimited) {
				src.Bucket.ZeroWithCooldown(5 * time.Minute)
			}
			j.Log.Warn().Err(err).Str("source", string(src.Name)).Msg("fetch failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		src.Breaker.RecordSuccess()

		for _, obs := range observations {
			if _, err := j.RawStore.Append(ctx, obs); err != nil {
				j.Log.Error().Err(err).Str("source", string(src.Name)).Msg("append to raw store failed")
			}
		}
		j.Log.Debug().Str("source", string(src.Name)).Int("observations", len(observations)).Msg("fetch pass complete")
	}
	return firstErr
}

// PipelineCursor tracks how far each stage of the RAW → Staging →
// Curated → Outcomes chain has progressed, so PipelineJob only processes
// newly arrived rows on each tick.
type PipelineCursor struct {
	mu                sync.Mutex
	afterIngestionID  int64
	afterStagingID    int64
	afterOutcomeIngID int64
}

// PipelineJob advances Staging, Curated, Outcomes, runs the Detector
// Engine over the freshly curated window, and hands its CandidateSignals
// to the Arbiter — the live-detection half of the pipeline.
type PipelineJob struct {
	Staging   *staging.Transformer
	Curated   *curated.Builder
	Outcomes  *outcomes.Resolver
	Engine    *detect.Engine
	Catalog   *catalog.Catalog
	Arbiter   *arbiter.Arbiter
	Clock     clock.Clock
	Cursor    *PipelineCursor
	OnResults func(summary arbiter.RunSummary, recs []model.Recommendation)
	BatchSize int
	Log       zerolog.Logger
}

func (j *PipelineJob) Name() string { return "pipeline_tick" }

func (j *PipelineJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	batch := j.BatchSize
	if batch <= 0 {
		batch = 500
	}

	j.Cursor.mu.Lock()
	afterIngestionID := j.Cursor.afterIngestionID
	afterStagingID := j.Cursor.afterStagingID
	afterOutcomeIngID := j.Cursor.afterOutcomeIngID
	j.Cursor.mu.Unlock()

	stagingResult, err := j.Staging.Run(ctx, afterIngestionID, batch)
	if err != nil {
		return err
	}
	curatedResult, err := j.Curated.Run(ctx, afterStagingID, batch)
	if err != nil {
		return err
	}
	outcomeResult, err := j.Outcomes.Run(ctx, afterOutcomeIngID, batch)
	if err != nil {
		return err
	}

	j.Cursor.mu.Lock()
	if stagingResult.LastIngestionID > j.Cursor.afterIngestionID {
		j.Cursor.afterIngestionID = stagingResult.LastIngestionID
	}
	if curatedResult.LastStagingID > j.Cursor.afterStagingID {
		j.Cursor.afterStagingID = curatedResult.LastStagingID
	}
	if outcomeResult.LastIngestionID > j.Cursor.afterOutcomeIngID {
		j.Cursor.afterOutcomeIngID = outcomeResult.LastIngestionID
	}
	j.Cursor.mu.Unlock()

	variants, err := j.Catalog.Snapshot(ctx)
	if err != nil {
		return err
	}

	now := j.Clock.Now()
	signals, err := j.Engine.Evaluate(ctx, now.Add(-48*time.Hour), now.Add(48*time.Hour), variants)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		return nil
	}

	status := func(strategyName, variantName string) model.VariantStatus {
		v, err := j.Catalog.Get(ctx, strategyName, variantName)
		if err != nil {
			return model.StatusActive
		}
		return v.Status
	}

	summary, recs, err := j.Arbiter.Run(ctx, signals, status, nil)
	if err != nil {
		return err
	}
	if j.OnResults != nil {
		j.OnResults(summary, recs)
	}
	return nil
}

// TunerJob runs the Performance Tuner once per invocation, a daily
// cadence.
type TunerJob struct {
	Tuner *tuner.Tuner
	Log   zerolog.Logger
}

func (j *TunerJob) Name() string { return "performance_tuner" }

func (j *TunerJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	result, err := j.Tuner.Tune(ctx)
	if err != nil {
		return err
	}
	j.Log.Info().Int("evaluated", result.Evaluated).Int("tuned", result.Tuned).Msg("performance tuner run complete")
	return nil
}

// BacktestJob runs the Backtester over a trailing window once per
// invocation, a nightly cadence.
type BacktestJob struct {
	Backtester  *backtest.Backtester
	Catalog     *catalog.Catalog
	Clock       clock.Clock
	WindowWidth time.Duration
	Log         zerolog.Logger
}

func (j *BacktestJob) Name() string { return "nightly_backtest" }

func (j *BacktestJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	variants, err := j.Catalog.Snapshot(ctx)
	if err != nil {
		return err
	}
	windowWidth := j.WindowWidth
	if windowWidth <= 0 {
		windowWidth = 90 * 24 * time.Hour
	}
	now := j.Clock.Now()
	stopMeasure := utils.MeasureDBQuery("nightly_backtest_run", j.Log)
	results, err := j.Backtester.Run(ctx, now.Add(-windowWidth), now, variants)
	if err != nil {
		return err
	}
	stopMeasure(int64(len(results)))
	j.Log.Info().Int("results", len(results)).Msg("nightly backtest complete")
	return nil
}

// LiveGameGuard tracks whether now falls within any upcoming or ongoing
// game's protected window ([game_start-10min, game_start+4h]). It does
// not itself pause any job — it exposes Active() for a deploy tool to
// consult before allowing a change to live collection code paths, the
// operational rule the Scheduler enforces as a flag rather than a hard
// stop.
type LiveGameGuard struct {
	Games *games.Store
	Clock clock.Clock

	mu     sync.Mutex
	active bool
}

func (g *LiveGameGuard) Name() string { return "live_game_guard" }

func (g *LiveGameGuard) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := g.Clock.Now()
	windowStart := now.Add(-4 * time.Hour)
	windowEnd := now.Add(10 * time.Minute)
	upcoming, err := g.Games.ListInWindow(ctx, windowStart, windowEnd)
	if err != nil {
		return err
	}

	active := false
	for _, game := range upcoming {
		protectedStart := game.GameStartUTC.Add(-10 * time.Minute)
		protectedEnd := game.GameStartUTC.Add(4 * time.Hour)
		if !now.Before(protectedStart) && now.Before(protectedEnd) {
			active = true
			break
		}
	}

	g.mu.Lock()
	g.active = active
	g.mu.Unlock()
	return nil
}

// Active reports whether now falls within any game's protected window.
func (g *LiveGameGuard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
