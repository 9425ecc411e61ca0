package optimizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/allocengine/internal/engine/correlation"
	apperrors "github.com/quantfolio/allocengine/internal/errors"
	"github.com/quantfolio/allocengine/internal/models"
)

func pairsFor(t *testing.T, assets []models.Asset) []models.CorrelationPair {
	t.Helper()
	pairs, err := correlation.NewEngine().Compute(context.Background(), assets)
	require.NoError(t, err)
	return pairs
}

func weightOf(alloc *models.PortfolioAllocation, id string) float64 {
	for _, a := range alloc.Assets {
		if a.ID == id {
			return a.Allocation
		}
	}
	return -1
}

func sumWeights(alloc *models.PortfolioAllocation) float64 {
	var sum float64
	for _, a := range alloc.Assets {
		sum += a.Allocation
	}
	return sum
}

func TestOptimizer_Optimize(t *testing.T) {
	opt := New(1.0)

	t.Run("Weights sum to exactly 100", func(t *testing.T) {
		assets := []models.Asset{
			{ID: "A", Price: 10, ExpectedReturn: 0.08, Volatility: 0.10},
			{ID: "B", Price: 20, ExpectedReturn: 0.14, Volatility: 0.25},
			{ID: "C", Price: 30, ExpectedReturn: 0.05, Volatility: 0.05},
			{ID: "D", Price: 40, ExpectedReturn: 0.11, Volatility: 0.30},
		}
		for _, tolerance := range []models.RiskTolerance{models.LowRisk, models.MediumRisk, models.HighRisk} {
			alloc, err := opt.Optimize(assets, pairsFor(t, assets), models.Preference{RiskTolerance: tolerance})
			require.NoError(t, err)
			assert.InDelta(t, 100.0, sumWeights(alloc), 1e-9, "tolerance %s", tolerance)
			for _, a := range alloc.Assets {
				assert.GreaterOrEqual(t, a.Allocation, 0.0)
			}
		}
	})

	t.Run("Low risk tolerance shelters in the stable asset", func(t *testing.T) {
		assets := []models.Asset{
			{ID: "BTC", Price: 60000, ExpectedReturn: 0.15, Volatility: 0.60},
			{ID: "USDC", Price: 1, ExpectedReturn: 0.02, Volatility: 0.01},
		}
		alloc, err := opt.Optimize(assets, pairsFor(t, assets), models.Preference{RiskTolerance: models.LowRisk})
		require.NoError(t, err)

		assert.GreaterOrEqual(t, weightOf(alloc, "USDC"), 70.0)
	})

	t.Run("Identical assets split evenly", func(t *testing.T) {
		assets := []models.Asset{
			{ID: "A", Price: 10, ExpectedReturn: 0.10, Volatility: 0.30},
			{ID: "B", Price: 10, ExpectedReturn: 0.10, Volatility: 0.30},
		}
		alloc, err := opt.Optimize(assets, pairsFor(t, assets), models.Preference{RiskTolerance: models.MediumRisk})
		require.NoError(t, err)

		assert.Equal(t, 50.0, weightOf(alloc, "A"))
		assert.Equal(t, 50.0, weightOf(alloc, "B"))
	})

	t.Run("Raising expected return never lowers the weight", func(t *testing.T) {
		base := []models.Asset{
			{ID: "A", Price: 10, ExpectedReturn: 0.06, Volatility: 0.20},
			{ID: "B", Price: 10, ExpectedReturn: 0.09, Volatility: 0.18},
			{ID: "C", Price: 10, ExpectedReturn: 0.04, Volatility: 0.12},
		}
		pairs := pairsFor(t, base)
		before, err := opt.Optimize(base, pairs, models.Preference{RiskTolerance: models.MediumRisk})
		require.NoError(t, err)

		bumped := make([]models.Asset, len(base))
		copy(bumped, base)
		bumped[0].ExpectedReturn = 0.12

		after, err := opt.Optimize(bumped, pairs, models.Preference{RiskTolerance: models.MediumRisk})
		require.NoError(t, err)

		assert.GreaterOrEqual(t, weightOf(after, "A"), weightOf(before, "A"))
	})

	t.Run("Raising volatility never raises the weight", func(t *testing.T) {
		base := []models.Asset{
			{ID: "A", Price: 10, ExpectedReturn: 0.06, Volatility: 0.20},
			{ID: "B", Price: 10, ExpectedReturn: 0.09, Volatility: 0.18},
			{ID: "C", Price: 10, ExpectedReturn: 0.04, Volatility: 0.12},
		}
		pairs := pairsFor(t, base)
		before, err := opt.Optimize(base, pairs, models.Preference{RiskTolerance: models.MediumRisk})
		require.NoError(t, err)

		bumped := make([]models.Asset, len(base))
		copy(bumped, base)
		bumped[0].Volatility = 0.35

		after, err := opt.Optimize(bumped, pairs, models.Preference{RiskTolerance: models.MediumRisk})
		require.NoError(t, err)

		assert.LessOrEqual(t, weightOf(after, "A"), weightOf(before, "A"))
	})

	t.Run("Deterministic across calls", func(t *testing.T) {
		assets := []models.Asset{
			{ID: "A", Price: 10, ExpectedReturn: 0.08, Volatility: 0.10},
			{ID: "B", Price: 20, ExpectedReturn: 0.14, Volatility: 0.25},
			{ID: "C", Price: 30, ExpectedReturn: 0.05, Volatility: 0.05},
		}
		pairs := pairsFor(t, assets)
		pref := models.Preference{RiskTolerance: models.HighRisk}

		first, err := opt.Optimize(assets, pairs, pref)
		require.NoError(t, err)
		second, err := opt.Optimize(assets, pairs, pref)
		require.NoError(t, err)

		for _, a := range assets {
			assert.Equal(t, weightOf(first, a.ID), weightOf(second, a.ID))
		}
	})

	t.Run("Max weight cap binds", func(t *testing.T) {
		assets := []models.Asset{
			{ID: "GOOD", Price: 10, ExpectedReturn: 0.20, Volatility: 0.05},
			{ID: "POOR", Price: 10, ExpectedReturn: 0.01, Volatility: 0.40},
		}
		alloc, err := opt.Optimize(assets, pairsFor(t, assets),
			models.Preference{RiskTolerance: models.HighRisk, MaxWeight: 0.6})
		require.NoError(t, err)

		assert.InDelta(t, 60.0, weightOf(alloc, "GOOD"), 1e-9)
		assert.InDelta(t, 40.0, weightOf(alloc, "POOR"), 1e-9)
	})

	t.Run("Unattainable cap is infeasible", func(t *testing.T) {
		assets := []models.Asset{
			{ID: "A", Price: 10, ExpectedReturn: 0.08, Volatility: 0.10},
			{ID: "B", Price: 20, ExpectedReturn: 0.14, Volatility: 0.25},
			{ID: "C", Price: 30, ExpectedReturn: 0.05, Volatility: 0.05},
		}
		_, err := opt.Optimize(assets, pairsFor(t, assets),
			models.Preference{RiskTolerance: models.LowRisk, MaxWeight: 0.3})
		assert.ErrorIs(t, err, apperrors.NewInfeasibleError("", nil))
	})

	t.Run("Minimum diversification above universe size is infeasible", func(t *testing.T) {
		assets := []models.Asset{
			{ID: "A", Price: 10, ExpectedReturn: 0.08, Volatility: 0.10},
			{ID: "B", Price: 20, ExpectedReturn: 0.14, Volatility: 0.25},
		}
		_, err := opt.Optimize(assets, pairsFor(t, assets),
			models.Preference{RiskTolerance: models.LowRisk, MinAssets: 5})
		assert.ErrorIs(t, err, apperrors.NewInfeasibleError("", nil))
	})

	t.Run("Missing correlation pair fails with InvalidInput", func(t *testing.T) {
		assets := []models.Asset{
			{ID: "A", Price: 10, ExpectedReturn: 0.08, Volatility: 0.10},
			{ID: "B", Price: 20, ExpectedReturn: 0.14, Volatility: 0.25},
			{ID: "C", Price: 30, ExpectedReturn: 0.05, Volatility: 0.05},
		}
		partial := []models.CorrelationPair{
			{AssetA: "A", AssetB: "B", Correlation: 0.4},
		}
		_, err := opt.Optimize(assets, partial, models.Preference{RiskTolerance: models.MediumRisk})
		assert.ErrorIs(t, err, apperrors.NewInvalidInputError("", nil))
	})

	t.Run("Empty universe fails with InvalidInput", func(t *testing.T) {
		_, err := opt.Optimize(nil, nil, models.Preference{RiskTolerance: models.LowRisk})
		assert.ErrorIs(t, err, apperrors.NewInvalidInputError("", nil))
	})

	t.Run("Unknown risk tolerance fails validation", func(t *testing.T) {
		assets := []models.Asset{
			{ID: "A", Price: 10, ExpectedReturn: 0.08, Volatility: 0.10},
		}
		_, err := opt.Optimize(assets, nil, models.Preference{RiskTolerance: "reckless"})
		assert.ErrorIs(t, err, apperrors.NewInvalidInputError("", nil))
	})

	t.Run("Input universe is never mutated", func(t *testing.T) {
		assets := []models.Asset{
			{ID: "A", Price: 10, ExpectedReturn: 0.08, Volatility: 0.10},
			{ID: "B", Price: 20, ExpectedReturn: 0.14, Volatility: 0.25},
		}
		_, err := opt.Optimize(assets, pairsFor(t, assets), models.Preference{RiskTolerance: models.LowRisk})
		require.NoError(t, err)

		assert.Equal(t, 0.0, assets[0].Allocation)
		assert.Equal(t, 0.0, assets[1].Allocation)
	})
}

func TestRoundToPercents(t *testing.T) {
	t.Run("Largest weight absorbs the residual", func(t *testing.T) {
		// Thirds round to 33.3 each; the first (largest on tie) takes
		// the remaining 0.1.
		percents := roundToPercents([]float64{1.0 / 3, 1.0 / 3, 1.0 / 3})

		var sum float64
		for _, p := range percents {
			sum += p
		}
		assert.InDelta(t, 100.0, sum, 1e-9)
		assert.InDelta(t, 33.4, percents[0], 1e-9)
		assert.InDelta(t, 33.3, percents[1], 1e-9)
		assert.InDelta(t, 33.3, percents[2], 1e-9)
	})
}

func TestApplyCap(t *testing.T) {
	t.Run("Excess redistributes proportionally", func(t *testing.T) {
		weights, err := applyCap([]float64{0.8, 0.15, 0.05}, 0.5)
		require.NoError(t, err)

		assert.InDelta(t, 0.5, weights[0], 1e-9)
		assert.InDelta(t, 0.375, weights[1], 1e-9)
		assert.InDelta(t, 0.125, weights[2], 1e-9)
	})

	t.Run("Cap below feasibility fails", func(t *testing.T) {
		_, err := applyCap([]float64{0.5, 0.5}, 0.4)
		assert.ErrorIs(t, err, apperrors.NewInfeasibleError("", nil))
	})
}
