package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/quantfolio/allocengine/internal/errors"
	"github.com/quantfolio/allocengine/internal/models"
)

func testUniverse() []models.Asset {
	return []models.Asset{
		{ID: "SPY", Symbol: "SPY", Price: 450, ExpectedReturn: 0.08, Volatility: 0.10},
		{ID: "BTC", Symbol: "BTC", Price: 60000, ExpectedReturn: 0.14, Volatility: 0.25},
		{ID: "BND", Symbol: "BND", Price: 72, ExpectedReturn: 0.05, Volatility: 0.05},
	}
}

func TestEngine_Run(t *testing.T) {
	eng := New(Config{RiskFreeRate: 0.02, DrawdownConfidence: 2.33, MaxWeight: 1.0}, nil)
	ctx := context.Background()

	t.Run("Full pipeline produces a complete allocation", func(t *testing.T) {
		result, err := eng.Run(ctx, testUniverse(), models.Preference{RiskTolerance: models.MediumRisk})
		require.NoError(t, err)
		require.NotNil(t, result.Allocation)

		var sum float64
		for _, a := range result.Allocation.Assets {
			sum += a.Allocation
		}
		assert.InDelta(t, 100.0, sum, 1e-9)

		assert.Len(t, result.Correlations, 3)
		assert.NotEqual(t, "", result.Allocation.ID.String())
		assert.False(t, result.Allocation.CreatedAt.IsZero())
		assert.Greater(t, result.Allocation.ExpectedReturn, 0.0)
		assert.Greater(t, result.Allocation.Volatility, 0.0)
		assert.Greater(t, result.Allocation.MaxDrawdown, 0.0)
	})

	t.Run("Higher risk tolerance yields at least as much volatility", func(t *testing.T) {
		low, err := eng.Run(ctx, testUniverse(), models.Preference{RiskTolerance: models.LowRisk})
		require.NoError(t, err)
		high, err := eng.Run(ctx, testUniverse(), models.Preference{RiskTolerance: models.HighRisk})
		require.NoError(t, err)

		assert.LessOrEqual(t, low.Allocation.Volatility, high.Allocation.Volatility)
	})

	t.Run("Deterministic weights across runs", func(t *testing.T) {
		pref := models.Preference{RiskTolerance: models.LowRisk}
		first, err := eng.Run(ctx, testUniverse(), pref)
		require.NoError(t, err)
		second, err := eng.Run(ctx, testUniverse(), pref)
		require.NoError(t, err)

		for i := range first.Allocation.Assets {
			assert.Equal(t, first.Allocation.Assets[i].Allocation, second.Allocation.Assets[i].Allocation)
		}
		assert.Equal(t, first.Allocation.Volatility, second.Allocation.Volatility)
	})

	t.Run("Correlation stage failure names its stage", func(t *testing.T) {
		bad := testUniverse()
		bad[1].Volatility = -0.2

		_, err := eng.Run(ctx, bad, models.Preference{RiskTolerance: models.LowRisk})
		require.Error(t, err)

		var appErr *apperrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.ErrorTypeStageFailure, appErr.Type)
		assert.Equal(t, apperrors.StageCorrelation, appErr.Stage)

		// The component failure stays reachable through the wrapper.
		assert.ErrorIs(t, err, apperrors.NewInvalidInputError("", nil))
	})

	t.Run("Optimizer stage failure surfaces the inner status", func(t *testing.T) {
		_, err := eng.Run(ctx, testUniverse(), models.Preference{
			RiskTolerance: models.LowRisk,
			MaxWeight:     0.2,
		})
		require.Error(t, err)

		var appErr *apperrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.StageOptimizer, appErr.Stage)
		assert.Equal(t, 422, appErr.StatusCode)
		assert.ErrorIs(t, err, apperrors.NewInfeasibleError("", nil))
	})

	t.Run("Empty universe fails in the correlation stage", func(t *testing.T) {
		_, err := eng.Run(ctx, nil, models.Preference{RiskTolerance: models.LowRisk})
		require.Error(t, err)

		var appErr *apperrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, apperrors.StageCorrelation, appErr.Stage)
		assert.Equal(t, 400, appErr.StatusCode)
	})
}

func TestEngine_Correlations(t *testing.T) {
	eng := New(Config{}, nil)

	pairs, err := eng.Correlations(context.Background(), testUniverse())
	require.NoError(t, err)
	assert.Len(t, pairs, 3)
}

func TestEngine_Metrics(t *testing.T) {
	eng := New(Config{DrawdownConfidence: 2.33}, nil)

	assets := []models.Asset{
		{ID: "EQ", ExpectedReturn: 0.10, Volatility: 0.20, Allocation: 60},
		{ID: "BD", ExpectedReturn: 0.05, Volatility: 0.10, Allocation: 40},
	}
	pairs := []models.CorrelationPair{{AssetA: "EQ", AssetB: "BD", Correlation: 0.5}}

	m, err := eng.Metrics(assets, pairs)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, m.ExpectedReturn, 1e-9)
	assert.InDelta(t, 14.422, m.Volatility, 1e-3)
}
