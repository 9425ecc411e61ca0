package optimizer

import (
	"math"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/quantfolio/allocengine/internal/errors"
	"github.com/quantfolio/allocengine/internal/models"
	"github.com/quantfolio/allocengine/internal/validator"
)

// profile maps a risk tolerance to the two knobs of the allocation
// rule: lambda is the risk-aversion coefficient in the score
// mu - lambda*sigma^2, eta is the softmax concentration (larger eta
// concentrates weight on the best scores).
type profile struct {
	lambda float64
	eta    float64
}

var profiles = map[models.RiskTolerance]profile{
	models.LowRisk:    {lambda: 8.0, eta: 3.0},
	models.MediumRisk: {lambda: 2.0, eta: 6.0},
	models.HighRisk:   {lambda: 0.5, eta: 10.0},
}

// diversificationWeight scales the penalty an asset pays for being
// highly correlated with the rest of the universe.
const diversificationWeight = 0.5

// weightSumTolerance is the accepted deviation of the final percentage
// sum from 100 before the rounding residual is absorbed.
const weightSumTolerance = 1e-6

// Optimizer computes a capital allocation over an asset universe from
// a risk-adjusted score per asset. It is a pure function of its
// inputs: no randomness, no retained state, safe for concurrent use.
//
// The allocation rule scores each asset as
//
//	u_i = mu_i - lambda*sigma_i^2 - lambda*gamma*sigma_i*rhoBar_i
//
// where rhoBar_i is the asset's mean correlation to the rest of the
// universe clamped at zero, then assigns weights proportional to
// exp(eta*u_i). The rule is monotone: raising mu_i never lowers w_i,
// raising sigma_i never raises it, and identical assets always receive
// identical weights.
type Optimizer struct {
	// defaultMaxWeight caps each asset's weight when the preference
	// carries no cap of its own. 1.0 means uncapped.
	defaultMaxWeight float64
}

func New(defaultMaxWeight float64) *Optimizer {
	if defaultMaxWeight <= 0 || defaultMaxWeight > 1 {
		defaultMaxWeight = 1.0
	}
	return &Optimizer{defaultMaxWeight: defaultMaxWeight}
}

// Optimize produces a PortfolioAllocation whose asset snapshots carry
// weights in percent, rounded to one decimal place and summing to
// exactly 100.0. The risk metric fields are left for the metrics
// calculator; the orchestrator fills them before the result is
// published.
//
// A pair referenced by the universe but absent from the correlation
// set is an InvalidInput error: silently assuming zero correlation
// would understate portfolio risk.
func (o *Optimizer) Optimize(assets []models.Asset, pairs []models.CorrelationPair, pref models.Preference) (*models.PortfolioAllocation, error) {
	if len(assets) == 0 {
		return nil, apperrors.NewEmptyUniverseError()
	}

	v := validator.New()
	v.ValidateUniverse(assets)
	v.ValidatePreference(pref)
	if !v.Valid() {
		return nil, apperrors.NewUniverseValidationError(v.Errors)
	}

	if pref.MinAssets > len(assets) {
		return nil, apperrors.NewInfeasibleError(
			"universe is smaller than the requested minimum diversification", nil)
	}

	lookup := models.NewCorrelationLookup(pairs)
	if err := checkCoverage(assets, lookup); err != nil {
		return nil, err
	}

	prof := profiles[pref.RiskTolerance]

	weights := rawWeights(assets, lookup, prof)

	maxWeight := pref.MaxWeight
	if maxWeight == 0 {
		maxWeight = o.defaultMaxWeight
	}
	if maxWeight < 1 {
		var err error
		weights, err = applyCap(weights, maxWeight)
		if err != nil {
			return nil, err
		}
	}

	percents := roundToPercents(weights)

	out := make([]models.Asset, len(assets))
	copy(out, assets)
	for i := range out {
		out[i].Allocation = percents[i]
	}

	return &models.PortfolioAllocation{
		ID:        uuid.New(),
		Assets:    out,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func checkCoverage(assets []models.Asset, lookup models.CorrelationLookup) error {
	for i := range assets {
		for j := i + 1; j < len(assets); j++ {
			if _, ok := lookup.Get(assets[i].ID, assets[j].ID); !ok {
				return apperrors.NewMissingCorrelationError(assets[i].ID, assets[j].ID)
			}
		}
	}
	return nil
}

// rawWeights converts risk-adjusted scores into strictly positive
// weights summing to 1. Scores are shifted by their maximum before
// exponentiation so large universes cannot overflow.
func rawWeights(assets []models.Asset, lookup models.CorrelationLookup, prof profile) []float64 {
	n := len(assets)
	scores := make([]float64, n)
	for i, a := range assets {
		penalty := prof.lambda * diversificationWeight * a.Volatility * meanCorrelation(assets, lookup, i)
		scores[i] = a.ExpectedReturn - prof.lambda*a.Volatility*a.Volatility - penalty
	}

	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	weights := make([]float64, n)
	var sum float64
	for i, s := range scores {
		weights[i] = math.Exp(prof.eta * (s - maxScore))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// meanCorrelation is the average correlation of asset i to the rest of
// the universe, clamped at zero. The clamp keeps the diversification
// penalty non-negative so a higher own volatility can never raise an
// asset's score.
func meanCorrelation(assets []models.Asset, lookup models.CorrelationLookup, i int) float64 {
	if len(assets) == 1 {
		return 0
	}
	var sum float64
	for j := range assets {
		if j == i {
			continue
		}
		rho, _ := lookup.Get(assets[i].ID, assets[j].ID)
		sum += rho
	}
	mean := sum / float64(len(assets)-1)
	if mean < 0 {
		return 0
	}
	return mean
}

// applyCap clamps weights to the per-asset cap and redistributes the
// excess across uncapped assets proportionally, iterating until no
// weight exceeds the cap. n*maxWeight < 1 cannot reach a fully invested
// portfolio and is Infeasible.
func applyCap(weights []float64, maxWeight float64) ([]float64, error) {
	n := len(weights)
	if float64(n)*maxWeight < 1-weightSumTolerance {
		return nil, apperrors.NewUnattainableCapError(maxWeight, n)
	}

	out := make([]float64, n)
	copy(out, weights)

	for iter := 0; iter < n; iter++ {
		var excess, uncappedSum float64
		capped := make([]bool, n)
		for i, w := range out {
			if w >= maxWeight {
				excess += w - maxWeight
				out[i] = maxWeight
				capped[i] = true
			} else {
				uncappedSum += w
			}
		}
		if excess <= weightSumTolerance || uncappedSum == 0 {
			break
		}
		for i := range out {
			if !capped[i] {
				out[i] += excess * (out[i] / uncappedSum)
			}
		}
	}
	return out, nil
}

// roundToPercents converts fractional weights to percentages rounded
// to one decimal place. The largest weight absorbs the rounding
// residual so the sum is exactly 100.0; ties go to the earliest asset
// so the result stays deterministic.
func roundToPercents(weights []float64) []float64 {
	percents := make([]float64, len(weights))
	var sum float64
	largest := 0
	for i, w := range weights {
		percents[i] = math.Round(w*1000) / 10
		sum += percents[i]
		if percents[i] > percents[largest] {
			largest = i
		}
	}

	residual := math.Round((100-sum)*10) / 10
	if residual != 0 {
		percents[largest] = math.Round((percents[largest]+residual)*10) / 10
	}
	return percents
}
