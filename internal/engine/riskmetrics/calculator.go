package riskmetrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	apperrors "github.com/quantfolio/allocengine/internal/errors"
	"github.com/quantfolio/allocengine/internal/models"
)

// Metrics holds portfolio-level risk/return numbers. Percentage fields
// are in percent; SharpeRatio is dimensionless.
type Metrics struct {
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	MaxDrawdown    float64 `json:"max_drawdown"`
}

// weightSumTolerance guards against callers passing an un-normalized
// allocation. Weights arrive rounded to one decimal place, so an exact
// sum is expected up to floating error.
const weightSumTolerance = 1e-6

// Calculator computes portfolio metrics from an allocation and the
// correlation structure the optimizer ran against. It is stateless and
// safe for concurrent use.
type Calculator struct {
	// riskFreeRate is the annualized risk-free rate as a fraction.
	riskFreeRate float64
	// drawdownConfidence scales portfolio volatility into the estimated
	// worst peak-to-trough loss. No return series exist in this
	// subsystem, so the drawdown is a deterministic multiple of
	// volatility rather than a historical measurement.
	drawdownConfidence float64
}

func NewCalculator(riskFreeRate, drawdownConfidence float64) *Calculator {
	if drawdownConfidence <= 0 {
		drawdownConfidence = 2.33
	}
	return &Calculator{
		riskFreeRate:       riskFreeRate,
		drawdownConfidence: drawdownConfidence,
	}
}

// Compute derives the four portfolio metrics from weighted asset
// snapshots. The correlation set must be the same one the optimizer
// consumed; recomputing it differently would make the Sharpe ratio
// inconsistent with the allocation.
//
// When portfolio volatility is zero the Sharpe ratio is reported as 0
// rather than dividing by zero. That sentinel is part of the contract.
func (c *Calculator) Compute(assets []models.Asset, pairs []models.CorrelationPair) (*Metrics, error) {
	if len(assets) == 0 {
		return nil, apperrors.NewEmptyUniverseError()
	}

	n := len(assets)
	weights := make([]float64, n)
	var sum float64
	for i, a := range assets {
		weights[i] = a.Allocation / 100
		sum += a.Allocation
	}
	if math.Abs(sum-100) > weightSumTolerance {
		return nil, apperrors.NewInvalidInputError(
			"allocation weights do not sum to 100", nil,
		).WithDetails(map[string]interface{}{"weight_sum": sum})
	}

	lookup := models.NewCorrelationLookup(pairs)

	// Covariance entries sigma_i*sigma_j*rho_ij; variance is the
	// quadratic form w'Sigma*w.
	sigma := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			rho, ok := lookup.Get(assets[i].ID, assets[j].ID)
			if !ok {
				return nil, apperrors.NewMissingCorrelationError(assets[i].ID, assets[j].ID)
			}
			sigma.SetSym(i, j, assets[i].Volatility*assets[j].Volatility*rho)
		}
	}

	w := mat.NewVecDense(n, weights)
	variance := mat.Inner(w, sigma, w)
	if variance < 0 {
		// Floating error on a near-zero quadratic form.
		variance = 0
	}

	var expectedReturn float64
	for i, a := range assets {
		expectedReturn += weights[i] * a.ExpectedReturn
	}
	expectedReturnPct := expectedReturn * 100
	volatilityPct := math.Sqrt(variance) * 100

	sharpe := 0.0
	if volatilityPct > 0 {
		sharpe = (expectedReturnPct - c.riskFreeRate*100) / volatilityPct
	}

	drawdown := c.drawdownConfidence * volatilityPct
	if drawdown > 100 {
		drawdown = 100
	}

	return &Metrics{
		ExpectedReturn: expectedReturnPct,
		Volatility:     volatilityPct,
		SharpeRatio:    sharpe,
		MaxDrawdown:    drawdown,
	}, nil
}
