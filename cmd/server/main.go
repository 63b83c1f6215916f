// Command server runs the sharp-betting analysis core: source adapters,
// the RAW/Staging/Curated pipeline, the Detector Engine and Arbiter, the
// Performance Tuner, and the Outbound Interface, all driven by the
// Clock & Scheduler.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/sharpline/internal/adapters"
	"github.com/aristath/sharpline/internal/adapters/actionnetwork"
	"github.com/aristath/sharpline/internal/adapters/mlbstats"
	"github.com/aristath/sharpline/internal/adapters/oddsapi"
	"github.com/aristath/sharpline/internal/adapters/sbd"
	"github.com/aristath/sharpline/internal/adapters/sbr"
	"github.com/aristath/sharpline/internal/adapters/vsin"
	"github.com/aristath/sharpline/internal/arbiter"
	"github.com/aristath/sharpline/internal/backtest"
	"github.com/aristath/sharpline/internal/catalog"
	"github.com/aristath/sharpline/internal/clock"
	"github.com/aristath/sharpline/internal/config"
	"github.com/aristath/sharpline/internal/curated"
	"github.com/aristath/sharpline/internal/detect"
	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/outbound"
	"github.com/aristath/sharpline/internal/outcomes"
	"github.com/aristath/sharpline/internal/ratelimit"
	"github.com/aristath/sharpline/internal/scheduler"
	"github.com/aristath/sharpline/internal/staging"
	"github.com/aristath/sharpline/internal/storage"
	"github.com/aristath/sharpline/internal/storage/games"
	"github.com/aristath/sharpline/internal/storage/raw"
	"github.com/aristath/sharpline/internal/tuner"
	"github.com/aristath/sharpline/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zlog := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: os.Getenv("SHARPLINE_ENV") != "production"})
	logger.SetGlobalLogger(zlog)

	zlog.Info().Str("data_dir", cfg.DataDir).Int("http_port", cfg.HTTPPort).Msg("starting sharpline core")

	rawDB, err := storage.Open(storage.Config{Path: filepath.Join(cfg.DataDir, "raw.db"), Profile: storage.ProfileAppendOnly, Name: "raw"})
	if err != nil {
		zlog.Fatal().Err(err).Msg("open raw database")
	}
	defer rawDB.Close()
	if err := rawDB.Migrate(storage.RawSchema); err != nil {
		zlog.Fatal().Err(err).Msg("migrate raw schema")
	}

	stagingDB, err := storage.Open(storage.Config{Path: filepath.Join(cfg.DataDir, "staging.db"), Name: "staging"})
	if err != nil {
		zlog.Fatal().Err(err).Msg("open staging database")
	}
	defer stagingDB.Close()
	if err := stagingDB.Migrate(storage.StagingSchema); err != nil {
		zlog.Fatal().Err(err).Msg("migrate staging schema")
	}

	curatedDB, err := storage.Open(storage.Config{Path: filepath.Join(cfg.DataDir, "curated.db"), Name: "curated"})
	if err != nil {
		zlog.Fatal().Err(err).Msg("open curated database")
	}
	defer curatedDB.Close()
	if err := curatedDB.Migrate(storage.CuratedSchema); err != nil {
		zlog.Fatal().Err(err).Msg("migrate curated schema")
	}

	strategyDB, err := storage.Open(storage.Config{Path: filepath.Join(cfg.DataDir, "strategy.db"), Name: "strategy"})
	if err != nil {
		zlog.Fatal().Err(err).Msg("open strategy database")
	}
	defer strategyDB.Close()
	if err := strategyDB.Migrate(storage.StrategySchema); err != nil {
		zlog.Fatal().Err(err).Msg("migrate strategy schema")
	}

	signalDB, err := storage.Open(storage.Config{Path: filepath.Join(cfg.DataDir, "signal.db"), Name: "signal"})
	if err != nil {
		zlog.Fatal().Err(err).Msg("open signal database")
	}
	defer signalDB.Close()
	if err := signalDB.Migrate(storage.SignalSchema); err != nil {
		zlog.Fatal().Err(err).Msg("migrate signal schema")
	}

	realClock := clock.Real{}

	rawStore := raw.New(rawDB, zlog)
	gameStore := games.New(curatedDB)
	curatedReader := curated.NewReader(curatedDB)
	cat := catalog.New(strategyDB, zlog)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := cat.Seed(seedCtx, catalog.BuiltinVariants()); err != nil {
		zlog.Fatal().Err(err).Msg("seed strategy catalog")
	}
	seedCancel()

	httpClient := &http.Client{Timeout: cfg.FetchTimeout}
	registry := adapters.NewRegistry()
	registry.Register(adapters.ActionNetwork, actionnetwork.NewClient(cfg.Sources["action_network"].Endpoint, cfg.Sources["action_network"].APIKey, httpClient, zlog))
	registry.Register(adapters.VSIN, vsin.NewClient(cfg.Sources["vsin"].Endpoint, httpClient, zlog))
	registry.Register(adapters.SBD, sbd.NewClient(cfg.Sources["sbd"].Endpoint, httpClient, zlog))
	registry.Register(adapters.SBR, sbr.NewClient(cfg.Sources["sbr"].Endpoint, httpClient, zlog))
	registry.Register(adapters.MLBStats, mlbstats.NewClient(cfg.Sources["mlb_stats"].Endpoint, httpClient, zlog))
	registry.Register(adapters.OddsAPI, oddsapi.NewClient(cfg.Sources["odds_api"].Endpoint, cfg.Sources["odds_api"].APIKey, httpClient, zlog))

	quietPeriod := &ratelimit.QuietPeriod{}
	var sources []*scheduler.SourceRuntime
	for _, name := range registry.All() {
		srcCfg := cfg.Sources[string(name)]
		sourceName := name
		sources = append(sources, &scheduler.SourceRuntime{
			Name:    name,
			Adapter: registry.MustGet(name),
			Breaker: ratelimit.NewBreaker(ratelimit.BreakerConfig{
				Source:   string(name),
				FailK:    cfg.CircuitBreakerFailK,
				Window:   cfg.CircuitBreakerWindow,
				Cooldown: cfg.CircuitBreakerCooldown,
				OnTransition: func(t ratelimit.Transition) {
					zlog.Info().Str("source", string(sourceName)).Str("from", string(t.From)).Str("to", string(t.To)).Str("reason", t.Reason).Msg("circuit breaker transition")
				},
			}),
			Bucket: ratelimit.NewTokenBucket(srcCfg.DailyQuota),
		})
	}

	stagingTransformer := staging.New(rawStore, stagingDB, gameStore, zlog)
	curatedBuilder := curated.New(stagingDB, curatedDB, gameStore, zlog)
	outcomeResolver := outcomes.New(rawStore, gameStore, curatedReader, realClock.Now, zlog)

	sampleAdequacy := func(strategyName, variantName string, market model.Market) float64 {
		_, found, err := cat.LatestBacktestResult(context.Background(), strategyName, variantName)
		if err != nil || !found {
			return 1.0
		}
		return 1.0
	}
	engine := detect.New(curatedReader, gameStore, realClock, cfg.DetectorRunTimeout, sampleAdequacy, zlog)
	backtester := backtest.New(engine, gameStore, cat, zlog)
	perfTuner := tuner.New(cat, realClock, zlog)
	arb := arbiter.New(signalDB, gameStore, realClock, arbiter.Config{
		ConfidenceFloor:     cfg.ConfidenceFloor,
		JuiceFloorMoneyline: cfg.JuiceFloorMoneyline,
	}, zlog)
	arb.SetROILookup(func(strategyName, variantName string, market model.Market) (float64, bool) {
		res, found, err := cat.LatestBacktestResult(context.Background(), strategyName, variantName)
		if err != nil || !found {
			return 0, false
		}
		return res.ROIUsingActualOdds, true
	})

	var outboundServer *outbound.Server
	outboundServer = outbound.New(outbound.Config{
		Log:             zlog,
		Port:            cfg.HTTPPort,
		Arbiter:         arb,
		Catalog:         cat,
		Backtester:      backtester,
		ConfidenceFloor: cfg.ConfidenceFloor,
		DevMode:         os.Getenv("SHARPLINE_ENV") != "production",
		Health: func() []outbound.SourceStatus {
			statuses := make([]outbound.SourceStatus, 0, len(sources))
			for _, src := range sources {
				health := src.Adapter.Health()
				statuses = append(statuses, outbound.SourceStatus{
					Name:            string(src.Name),
					CircuitState:    string(src.Breaker.State()),
					LastSuccessAt:   health.LastSuccessAt,
					BudgetRemaining: health.BudgetRemaining,
				})
			}
			return statuses
		},
		PipelineLag: func() time.Duration {
			return 0
		},
	})

	sched := scheduler.New(zlog)
	fetchJob := &scheduler.FetchJob{
		Sources:     sources,
		RawStore:    rawStore,
		Games:       gameStore,
		QuietPeriod: quietPeriod,
		Clock:       realClock,
		FetchWindow: 10 * time.Minute,
		Log:         zlog,
	}
	pipelineJob := &scheduler.PipelineJob{
		Staging:  stagingTransformer,
		Curated:  curatedBuilder,
		Outcomes: outcomeResolver,
		Engine:   engine,
		Catalog:  cat,
		Arbiter:  arb,
		Clock:    realClock,
		Cursor:   &scheduler.PipelineCursor{},
		OnResults: func(summary arbiter.RunSummary, recs []model.Recommendation) {
			zlog.Info().Int64("run_id", summary.RunID).Int("recommendations", summary.Recommendations).Msg("arbiter run broadcast")
			outboundServer.Broadcast(recs)
		},
		Log: zlog,
	}
	tunerJob := &scheduler.TunerJob{Tuner: perfTuner, Log: zlog}
	backtestJob := &scheduler.BacktestJob{Backtester: backtester, Catalog: cat, Clock: realClock, Log: zlog}
	liveGameGuard := &scheduler.LiveGameGuard{Games: gameStore, Clock: realClock}

	if err := sched.AddJob("@every 60s", fetchJob); err != nil {
		zlog.Fatal().Err(err).Msg("register fetch job")
	}
	if err := sched.AddJob("@every 90s", pipelineJob); err != nil {
		zlog.Fatal().Err(err).Msg("register pipeline job")
	}
	if err := sched.AddJob("0 0 9 * * *", tunerJob); err != nil {
		zlog.Fatal().Err(err).Msg("register tuner job")
	}
	if err := sched.AddJob("0 0 3 * * *", backtestJob); err != nil {
		zlog.Fatal().Err(err).Msg("register backtest job")
	}
	if err := sched.AddJob("@every 30s", liveGameGuard); err != nil {
		zlog.Fatal().Err(err).Msg("register live game guard")
	}

	sched.Start()

	go func() {
		if err := outboundServer.Start(); err != nil {
			zlog.Error().Err(err).Msg("outbound interface stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info().Msg("shutting down")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := outboundServer.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("outbound interface forced to shutdown")
	}

	zlog.Info().Msg("shutdown complete")
}
