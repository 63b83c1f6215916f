package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpline/internal/arbiter"
	"github.com/aristath/sharpline/internal/backtest"
	"github.com/aristath/sharpline/internal/catalog"
	"github.com/aristath/sharpline/internal/clock"
	"github.com/aristath/sharpline/internal/curated"
	"github.com/aristath/sharpline/internal/detect"
	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
	"github.com/aristath/sharpline/internal/storage/games"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	signalDB, err := storage.Open(storage.Config{Path: "file::memory:?cache=shared", Name: "signal-test"})
	require.NoError(t, err)
	require.NoError(t, signalDB.Migrate(storage.SignalSchema))
	t.Cleanup(func() { _ = signalDB.Close() })

	curatedDB, err := storage.Open(storage.Config{Path: "file::memory:?cache=shared", Name: "curated-test"})
	require.NoError(t, err)
	require.NoError(t, curatedDB.Migrate(storage.CuratedSchema))
	t.Cleanup(func() { _ = curatedDB.Close() })

	strategyDB, err := storage.Open(storage.Config{Path: "file::memory:?cache=shared", Name: "strategy-test"})
	require.NoError(t, err)
	require.NoError(t, strategyDB.Migrate(storage.StrategySchema))
	t.Cleanup(func() { _ = strategyDB.Close() })

	gameStore := games.New(curatedDB)
	arb := arbiter.New(signalDB, gameStore, clock.Real{}, arbiter.Config{}, zerolog.Nop())
	cat := catalog.New(strategyDB, zerolog.Nop())
	curatedReader := curated.NewReader(curatedDB)
	engine := detect.New(curatedReader, gameStore, clock.Real{}, 0, nil, zerolog.Nop())
	bt := backtest.New(engine, gameStore, cat, zerolog.Nop())

	cfg := Config{
		Log:             zerolog.Nop(),
		Port:            0,
		Arbiter:         arb,
		Catalog:         cat,
		Backtester:      bt,
		ConfidenceFloor: 0.55,
		DevMode:         true,
	}
	return New(cfg)
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth_ReportsOK(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
}

func TestHandleRecommendations_EmptyCatalogReturnsEmptyList(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/recommendations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]recommendationDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp["recommendations"])
}

func TestHandleRecommendations_RejectsNonNumericConfidence(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/recommendations?min_confidence=not-a-number", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStrategies_ReturnsSeededVariants(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	v := model.StrategyVariant{
		StrategyName:      "sharp_action",
		VariantName:       "strong",
		DetectorID:        "sharp_action",
		ApplicableMarkets: []model.Market{model.MarketMoneyline},
		Thresholds:        map[string]float64{"min_differential": 15},
		MinSampleSize:     10,
		Status:            model.StatusActive,
		LastTuned:         time.Now(),
	}
	require.NoError(t, s.cfg.Catalog.Seed(ctx, []model.StrategyVariant{v}))

	rec := doRequest(s, http.MethodGet, "/api/strategies", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]strategyDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp["strategies"], 1)
	require.Equal(t, "sharp_action", resp["strategies"][0].StrategyName)
	require.Nil(t, resp["strategies"][0].LatestBacktest)
}

func TestHandleBacktest_RejectsInvertedWindow(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(backtestRequestDTO{
		WindowStart: time.Now(),
		WindowEnd:   time.Now().Add(-time.Hour),
	})
	rec := doRequest(s, http.MethodPost, "/api/backtest", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBacktest_EmptyCatalogProducesNoResults(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(backtestRequestDTO{
		WindowStart: time.Now().Add(-24 * time.Hour),
		WindowEnd:   time.Now(),
	})
	rec := doRequest(s, http.MethodPost, "/api/backtest", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	results, ok := resp["results"].([]interface{})
	require.True(t, ok)
	require.Empty(t, results)
}
