// Package engine sequences the three portfolio computation stages:
// correlation structure, capital allocation, and portfolio risk
// metrics. Every stage is a pure function of its inputs; the Engine
// value itself carries only configuration and can be shared freely
// across goroutines.
package engine

import (
	"context"
	"time"

	"github.com/quantfolio/allocengine/internal/engine/correlation"
	"github.com/quantfolio/allocengine/internal/engine/optimizer"
	"github.com/quantfolio/allocengine/internal/engine/riskmetrics"
	apperrors "github.com/quantfolio/allocengine/internal/errors"
	"github.com/quantfolio/allocengine/internal/logger"
	"github.com/quantfolio/allocengine/internal/models"
)

type Config struct {
	RiskFreeRate       float64
	DrawdownConfidence float64
	MaxWeight          float64
}

// Result bundles one run's allocation with the correlation structure
// it was computed against. Both are owned by the result; the caller's
// input universe is never retained or mutated.
type Result struct {
	Allocation   *models.PortfolioAllocation `json:"allocation"`
	Correlations []models.CorrelationPair    `json:"correlations"`
}

type Engine struct {
	correlations *correlation.Engine
	optimizer    *optimizer.Optimizer
	calculator   *riskmetrics.Calculator
	log          *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		correlations: correlation.NewEngine(),
		optimizer:    optimizer.New(cfg.MaxWeight),
		calculator:   riskmetrics.NewCalculator(cfg.RiskFreeRate, cfg.DrawdownConfidence),
		log:          log,
	}
}

// Run executes the full pipeline. A stage failure short-circuits and
// is surfaced wrapped in a StageFailure naming the stage; no partial
// result is ever returned.
func (e *Engine) Run(ctx context.Context, assets []models.Asset, pref models.Preference) (*Result, error) {
	start := time.Now()

	pairs, err := e.correlations.Compute(ctx, assets)
	if err != nil {
		e.log.LogOptimization("", len(assets), string(pref.RiskTolerance), time.Since(start), err)
		return nil, apperrors.NewStageFailureError(apperrors.StageCorrelation, err)
	}

	allocation, err := e.optimizer.Optimize(assets, pairs, pref)
	if err != nil {
		e.log.LogOptimization("", len(assets), string(pref.RiskTolerance), time.Since(start), err)
		return nil, apperrors.NewStageFailureError(apperrors.StageOptimizer, err)
	}

	metrics, err := e.calculator.Compute(allocation.Assets, pairs)
	if err != nil {
		e.log.LogOptimization(allocation.ID.String(), len(assets), string(pref.RiskTolerance), time.Since(start), err)
		return nil, apperrors.NewStageFailureError(apperrors.StageMetrics, err)
	}

	allocation.ExpectedReturn = metrics.ExpectedReturn
	allocation.Volatility = metrics.Volatility
	allocation.SharpeRatio = metrics.SharpeRatio
	allocation.MaxDrawdown = metrics.MaxDrawdown

	e.log.LogOptimization(allocation.ID.String(), len(assets), string(pref.RiskTolerance), time.Since(start), nil)

	return &Result{Allocation: allocation, Correlations: pairs}, nil
}

// Correlations exposes the correlation stage on its own.
func (e *Engine) Correlations(ctx context.Context, assets []models.Asset) ([]models.CorrelationPair, error) {
	return e.correlations.Compute(ctx, assets)
}

// Metrics exposes the risk metrics stage on its own. The correlation
// set must cover every pair in the allocation.
func (e *Engine) Metrics(assets []models.Asset, pairs []models.CorrelationPair) (*riskmetrics.Metrics, error) {
	return e.calculator.Compute(assets, pairs)
}
