package outbound

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleRecommendations lists the latest Arbiter run's Recommendations,
// optionally filtered by min_confidence and window_minutes.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	minConfidence := s.cfg.ConfidenceFloor
	if v := r.URL.Query().Get("min_confidence"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_confidence must be a number")
			return
		}
		minConfidence = parsed
	}
	windowMinutes := 0
	if v := r.URL.Query().Get("window_minutes"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "window_minutes must be an integer")
			return
		}
		windowMinutes = parsed
	}

	recs, err := s.cfg.Arbiter.LatestRecommendations(r.Context(), minConfidence, windowMinutes)
	if err != nil {
		s.log.Error().Err(err).Msg("list recommendations failed")
		writeError(w, http.StatusInternalServerError, "failed to load recommendations")
		return
	}

	dtos := make([]recommendationDTO, 0, len(recs))
	for _, rec := range recs {
		dtos = append(dtos, toRecommendationDTO(rec))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"recommendations": dtos})
}

// handleStrategies returns the catalog snapshot, each variant enriched
// with its latest backtest result.
func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	variants, err := s.cfg.Catalog.Snapshot(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("snapshot catalog failed")
		writeError(w, http.StatusInternalServerError, "failed to load strategies")
		return
	}

	dtos := make([]strategyDTO, 0, len(variants))
	for _, v := range variants {
		dto := strategyDTO{
			StrategyName:      v.StrategyName,
			VariantName:       v.VariantName,
			DetectorID:        v.DetectorID,
			ApplicableMarkets: toMarketStrings(v.ApplicableMarkets),
			Thresholds:        v.Thresholds,
			MinSampleSize:     v.MinSampleSize,
			Status:            string(v.Status),
			LastTuned:         v.LastTuned,
		}
		if latest, found, err := s.cfg.Catalog.LatestBacktestResult(r.Context(), v.StrategyName, v.VariantName); err != nil {
			s.log.Warn().Err(err).Str("strategy", v.StrategyName).Str("variant", v.VariantName).
				Msg("load latest backtest result failed")
		} else if found {
			result := toBacktestResultDTO(latest)
			dto.LatestBacktest = &result
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"strategies": dtos})
}

// handleHealth reports per-source circuit/budget status, pipeline lag,
// and the Arbiter's last run time.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthDTO{Status: "ok"}

	if s.cfg.Health != nil {
		for _, src := range s.cfg.Health() {
			resp.Sources = append(resp.Sources, sourceDTO{
				Name:            src.Name,
				CircuitState:    src.CircuitState,
				LastSuccessAt:   src.LastSuccessAt,
				BudgetRemaining: src.BudgetRemaining,
			})
		}
	}
	if s.cfg.PipelineLag != nil {
		resp.PipelineLagSec = s.cfg.PipelineLag().Seconds()
	}
	if s.cfg.Arbiter != nil {
		if lastRun, found, err := s.cfg.Arbiter.LastRunAt(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("load arbiter last run failed")
		} else if found {
			resp.ArbiterLastRunAt = &lastRun
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBacktest runs the Backtester synchronously over the requested
// window and variants, returning the window's results.
func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WindowEnd.Before(req.WindowStart) {
		writeError(w, http.StatusBadRequest, "window_end must not precede window_start")
		return
	}

	variants, err := s.cfg.Catalog.Snapshot(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("snapshot catalog for backtest failed")
		writeError(w, http.StatusInternalServerError, "failed to load strategy catalog")
		return
	}
	if len(req.VariantIDs) > 0 {
		wanted := make(map[string]bool, len(req.VariantIDs))
		for _, id := range req.VariantIDs {
			wanted[id] = true
		}
		filtered := variants[:0]
		for _, v := range variants {
			if wanted[v.Key()] {
				filtered = append(filtered, v)
			}
		}
		variants = filtered
	}

	results, err := s.cfg.Backtester.Run(r.Context(), req.WindowStart, req.WindowEnd, variants)
	if err != nil {
		s.log.Error().Err(err).Msg("run backtest failed")
		writeError(w, http.StatusInternalServerError, "backtest run failed")
		return
	}

	dtos := make([]backtestResultDTO, 0, len(results))
	for _, res := range results {
		dtos = append(dtos, toBacktestResultDTO(res))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": dtos, "ran_at": time.Now().UTC()})
}
