package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantfolio/allocengine/internal/cache"
	"github.com/quantfolio/allocengine/internal/engine"
	"github.com/quantfolio/allocengine/internal/engine/riskmetrics"
	apperrors "github.com/quantfolio/allocengine/internal/errors"
	"github.com/quantfolio/allocengine/internal/logger"
	"github.com/quantfolio/allocengine/internal/middleware"
	"github.com/quantfolio/allocengine/internal/models"
	"github.com/quantfolio/allocengine/internal/monitoring"
)

// Engine is the slice of the orchestrator the handler consumes.
type Engine interface {
	Run(ctx context.Context, assets []models.Asset, pref models.Preference) (*engine.Result, error)
	Correlations(ctx context.Context, assets []models.Asset) ([]models.CorrelationPair, error)
	Metrics(assets []models.Asset, pairs []models.CorrelationPair) (*riskmetrics.Metrics, error)
}

// ResultCache is the optional memo layer in front of Run.
type ResultCache interface {
	Get(ctx context.Context, key string) (*engine.Result, error)
	Set(ctx context.Context, key string, result *engine.Result) error
}

type PortfolioHandler struct {
	engine  Engine
	cache   ResultCache // nil disables caching
	metrics *monitoring.Metrics
	log     *logger.Logger
}

func NewPortfolioHandler(eng Engine, resultCache ResultCache, metrics *monitoring.Metrics, log *logger.Logger) *PortfolioHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &PortfolioHandler{
		engine:  eng,
		cache:   resultCache,
		metrics: metrics,
		log:     log,
	}
}

// Register mounts the portfolio routes on a router.
func (h *PortfolioHandler) Register(r *mux.Router) {
	r.HandleFunc("/portfolio/optimize", h.Optimize).Methods(http.MethodPost)
	r.HandleFunc("/portfolio/correlations", h.Correlations).Methods(http.MethodPost)
	r.HandleFunc("/portfolio/metrics", h.Metrics).Methods(http.MethodPost)
}

type OptimizeRequest struct {
	Assets     []models.Asset    `json:"assets"`
	Preference models.Preference `json:"preference"`
}

type CorrelationsRequest struct {
	Assets []models.Asset `json:"assets"`
}

type MetricsRequest struct {
	Assets       []models.Asset           `json:"assets"`
	Correlations []models.CorrelationPair `json:"correlations"`
}

func (h *PortfolioHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.NewInvalidInputError("malformed request body", err))
		return
	}

	if h.cache != nil {
		key := cache.Key(req.Assets, req.Preference)
		if cached, err := h.cache.Get(r.Context(), key); err != nil {
			// A broken cache never fails the request.
			h.log.Warnw("Result cache lookup failed", "error", err)
		} else if cached != nil {
			if h.metrics != nil {
				h.metrics.ObserveCache(true)
			}
			h.writeJSON(w, http.StatusOK, cached)
			return
		}
		if h.metrics != nil {
			h.metrics.ObserveCache(false)
		}
	}

	start := time.Now()
	result, err := h.engine.Run(r.Context(), req.Assets, req.Preference)
	if h.metrics != nil {
		h.metrics.ObserveOptimization(string(req.Preference.RiskTolerance), len(req.Assets), time.Since(start), err)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.cache != nil {
		key := cache.Key(req.Assets, req.Preference)
		if err := h.cache.Set(r.Context(), key, result); err != nil {
			h.log.Warnw("Result cache store failed", "error", err)
		}
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *PortfolioHandler) Correlations(w http.ResponseWriter, r *http.Request) {
	var req CorrelationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.NewInvalidInputError("malformed request body", err))
		return
	}

	pairs, err := h.engine.Correlations(r.Context(), req.Assets)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"correlations": pairs})
}

func (h *PortfolioHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	var req MetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.NewInvalidInputError("malformed request body", err))
		return
	}

	metrics, err := h.engine.Metrics(req.Assets, req.Correlations)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, metrics)
}

func (h *PortfolioHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto HTTP. StageFailure wrappers
// surface the wrapped component error's status and code.
func (h *PortfolioHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewInternalError("unexpected error", err)
	}
	if appErr.Type == apperrors.ErrorTypeStageFailure {
		var inner *apperrors.Error
		if errors.As(appErr.Unwrap(), &inner) {
			inner.Details["stage"] = string(appErr.Stage)
			appErr = inner
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	json.NewEncoder(w).Encode(apperrors.NewErrorResponse(appErr, requestID))
}
