package correlation

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/quantfolio/allocengine/internal/errors"
	"github.com/quantfolio/allocengine/internal/models"
	"github.com/quantfolio/allocengine/internal/validator"
)

// No return series exist in this system, so the coefficient for a pair
// is derived from each asset's class and volatility profile: assets of
// the same class with similar volatility co-move strongly, assets of
// different classes less so. Same-class pairs land in [0.25, 0.90] and
// cross-class pairs in [-0.30, 0.60], both strictly inside [-1, 1].
const (
	sameClassFloor  = 0.25
	sameClassRange  = 0.65
	crossClassFloor = -0.30
	crossClassRange = 0.90
)

// Volatility buckets used when an asset carries no explicit class.
const (
	defensiveCutoff = 0.10
	balancedCutoff  = 0.35
)

// Engine derives a symmetric pairwise correlation structure over an
// asset universe. It holds no state between calls and is safe for
// concurrent use.
type Engine struct {
	// parallelThreshold is the universe size above which rows are
	// computed across workers. Pair computation is O(n^2) and each pair
	// is independent.
	parallelThreshold int
	workers           int
}

func NewEngine() *Engine {
	return &Engine{
		parallelThreshold: 64,
		workers:           runtime.GOMAXPROCS(0),
	}
}

// Compute returns one CorrelationPair per unordered pair of distinct
// assets, ordered by the input positions of the two assets. Self-pairs
// are omitted; lookups treat them as 1 (models.CorrelationLookup).
func (e *Engine) Compute(ctx context.Context, assets []models.Asset) ([]models.CorrelationPair, error) {
	if len(assets) == 0 {
		return nil, apperrors.NewEmptyUniverseError()
	}

	v := validator.New()
	v.ValidateUniverse(assets)
	if !v.Valid() {
		return nil, apperrors.NewUniverseValidationError(v.Errors)
	}

	n := len(assets)
	if n < e.parallelThreshold {
		return e.computeSerial(assets), nil
	}
	return e.computeParallel(ctx, assets)
}

func (e *Engine) computeSerial(assets []models.Asset) []models.CorrelationPair {
	n := len(assets)
	pairs := make([]models.CorrelationPair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, models.CorrelationPair{
				AssetA:      assets[i].ID,
				AssetB:      assets[j].ID,
				Correlation: Coefficient(assets[i], assets[j]),
			})
		}
	}
	return pairs
}

// computeParallel fans rows out across workers. Each row i owns the
// pairs (i, j) for j > i, so rows are independent and the flattened
// output matches the serial ordering exactly.
func (e *Engine) computeParallel(ctx context.Context, assets []models.Asset) ([]models.CorrelationPair, error) {
	n := len(assets)
	rows := make([][]models.CorrelationPair, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := 0; i < n-1; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := make([]models.CorrelationPair, 0, n-i-1)
			for j := i + 1; j < n; j++ {
				row = append(row, models.CorrelationPair{
					AssetA:      assets[i].ID,
					AssetB:      assets[j].ID,
					Correlation: Coefficient(assets[i], assets[j]),
				})
			}
			rows[i] = row
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	pairs := make([]models.CorrelationPair, 0, n*(n-1)/2)
	for _, row := range rows {
		pairs = append(pairs, row...)
	}
	return pairs, nil
}

// Coefficient returns the correlation between two assets. It is
// symmetric in its arguments and returns exactly 1 for an asset
// compared to itself.
func Coefficient(a, b models.Asset) float64 {
	if a.ID == b.ID {
		return 1
	}

	sim := volatilitySimilarity(a.Volatility, b.Volatility)
	if classOf(a) == classOf(b) {
		return sameClassFloor + sameClassRange*sim
	}
	return crossClassFloor + crossClassRange*sim
}

// volatilitySimilarity maps a pair of volatilities to [0, 1], with 1
// for identical values. Two zero-volatility assets are fully similar.
func volatilitySimilarity(a, b float64) float64 {
	denom := a + b
	if denom == 0 {
		return 1
	}
	return 1 - math.Abs(a-b)/denom
}

func classOf(a models.Asset) string {
	if a.Class != "" {
		return a.Class
	}
	switch {
	case a.Volatility < defensiveCutoff:
		return "defensive"
	case a.Volatility < balancedCutoff:
		return "balanced"
	default:
		return "aggressive"
	}
}
