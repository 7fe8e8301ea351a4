// Package server provides the HTTP server and routing for Mosaic.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/curation"
	"github.com/mosaicquant/mosaic/internal/domain"
	"github.com/mosaicquant/mosaic/internal/marts"
	"github.com/mosaicquant/mosaic/internal/pipeline"
	"github.com/mosaicquant/mosaic/pkg/formulas"
)

// Handlers serves the mart read endpoints and the pipeline trigger.
type Handlers struct {
	marts      *marts.Repository
	curated    *curation.Repository
	quarantine *curation.QuarantineStore
	runner     *pipeline.Runner
	log        zerolog.Logger
}

// NewHandlers creates the API handlers
func NewHandlers(m *marts.Repository, c *curation.Repository, q *curation.QuarantineStore, runner *pipeline.Runner, log zerolog.Logger) *Handlers {
	return &Handlers{
		marts:      m,
		curated:    c,
		quarantine: q,
		runner:     runner,
		log:        log.With().Str("component", "api_handlers").Logger(),
	}
}

// HandleGetFeatures returns the feature rows for one date
func (h *Handlers) HandleGetFeatures(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	rows, err := h.marts.GetFeatures(date)
	if err != nil {
		h.log.Error().Err(err).Str("date", date).Msg("Failed to load features")
		h.writeError(w, http.StatusInternalServerError, "failed to load features")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":     date,
		"count":    len(rows),
		"features": rows,
	})
}

// HandleGetSignals returns the signal scores for one date in rank order
func (h *Handlers) HandleGetSignals(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	scores, err := h.marts.GetScores(date)
	if err != nil {
		h.log.Error().Err(err).Str("date", date).Msg("Failed to load signals")
		h.writeError(w, http.StatusInternalServerError, "failed to load signals")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":    date,
		"count":   len(scores),
		"signals": scores,
	})
}

// HandleGetPositions returns the positions for one date, longs first
func (h *Handlers) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	positions, err := h.marts.GetPositions(date)
	if err != nil {
		h.log.Error().Err(err).Str("date", date).Msg("Failed to load positions")
		h.writeError(w, http.StatusInternalServerError, "failed to load positions")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":      date,
		"count":     len(positions),
		"positions": positions,
	})
}

// HandleGetLatestPositions returns the positions for the most recent run date
func (h *Handlers) HandleGetLatestPositions(w http.ResponseWriter, r *http.Request) {
	date, err := h.marts.LatestDate()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to resolve latest date")
		h.writeError(w, http.StatusInternalServerError, "failed to resolve latest date")
		return
	}
	if date == "" {
		h.writeError(w, http.StatusNotFound, "no positions generated yet")
		return
	}
	positions, err := h.marts.GetPositions(date)
	if err != nil {
		h.log.Error().Err(err).Str("date", date).Msg("Failed to load positions")
		h.writeError(w, http.StatusInternalServerError, "failed to load positions")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":      date,
		"count":     len(positions),
		"positions": positions,
	})
}

// ChartPoint is a single point on a price chart
type ChartPoint struct {
	Time  string  `json:"time"` // YYYY-MM-DD
	Value float64 `json:"value"`
}

// HandleGetChart returns the close series for a ticker with EMA/SMA overlays.
// Query params: to (upper date bound, default latest), limit (observation
// count, default 120).
func (h *Handlers) HandleGetChart(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	upTo := r.URL.Query().Get("to")
	if upTo == "" {
		upTo = "9999-12-31"
	}
	limit := 120
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	prices, err := h.curated.GetCloseSeries(ticker, upTo, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to load close series")
		h.writeError(w, http.StatusInternalServerError, "failed to load close series")
		return
	}
	if len(prices) == 0 {
		h.writeError(w, http.StatusNotFound, "no price history for ticker")
		return
	}

	points := make([]ChartPoint, len(prices))
	closes := make([]float64, len(prices))
	for i, p := range prices {
		points[i] = ChartPoint{Time: p.Date, Value: p.Close}
		closes[i] = p.Close
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": ticker,
		"points": points,
		"overlays": map[string]*float64{
			"ema_20":  formulas.CalculateEMA(closes, 20),
			"ema_50":  formulas.CalculateEMA(closes, 50),
			"sma_100": formulas.CalculateSMA(closes, 100),
		},
	})
}

// HandleGetQuarantine returns the rejected rows of one validation batch
func (h *Handlers) HandleGetQuarantine(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	rows, err := h.quarantine.Load(batchID)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to load quarantine batch")
		h.writeError(w, http.StatusInternalServerError, "failed to load quarantine batch")
		return
	}
	if rows == nil {
		h.writeError(w, http.StatusNotFound, "unknown batch")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"batch_id": batchID,
		"count":    len(rows),
		"rejected": rows,
	})
}

// runRequest is the pipeline trigger payload
type runRequest struct {
	RunDate string `json:"run_date"`
}

// HandleRunPipeline triggers one synchronous pipeline run
func (h *Handlers) HandleRunPipeline(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RunDate == "" {
		h.writeError(w, http.StatusBadRequest, "run_date is required")
		return
	}

	report, err := h.runner.Run(r.Context(), req.RunDate)
	if err != nil {
		var structural *domain.StructuralError
		status := http.StatusInternalServerError
		if errors.As(err, &structural) {
			status = http.StatusUnprocessableEntity
		}
		h.log.Error().Err(err).Str("run_date", req.RunDate).Msg("Pipeline run failed")
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
