package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskTolerance is the user's stated appetite for portfolio risk.
type RiskTolerance string

const (
	LowRisk    RiskTolerance = "low"
	MediumRisk RiskTolerance = "medium"
	HighRisk   RiskTolerance = "high"
)

// Valid reports whether the tolerance is one of the supported levels.
func (r RiskTolerance) Valid() bool {
	switch r {
	case LowRisk, MediumRisk, HighRisk:
		return true
	}
	return false
}

// Asset is one investable instrument in the candidate universe.
// ExpectedReturn and Volatility are annualized fractions (0.15 = 15%).
// Allocation is a percentage of capital and stays 0 until an optimizer
// run assigns it.
type Asset struct {
	ID             string  `json:"id"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name,omitempty"`
	Class          string  `json:"class,omitempty"`
	Price          float64 `json:"price"`
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
	Allocation     float64 `json:"allocation"`
	Quantity       float64 `json:"quantity,omitempty"`
}

// CorrelationPair is the correlation coefficient between two assets,
// identified by their IDs. One record exists per unordered pair;
// self-pairs are implied with a coefficient of 1.
type CorrelationPair struct {
	AssetA      string  `json:"asset_a"`
	AssetB      string  `json:"asset_b"`
	Correlation float64 `json:"correlation"`
}

// Preference captures the caller's risk appetite and optional
// allocation constraints for a single optimization run.
type Preference struct {
	RiskTolerance RiskTolerance `json:"risk_tolerance"`
	// MaxWeight caps each asset's weight as a fraction of the portfolio
	// (0.4 = 40%). Zero means uncapped.
	MaxWeight float64 `json:"max_weight,omitempty"`
	// MinAssets requires the universe to hold at least this many assets.
	MinAssets int `json:"min_assets,omitempty"`
}

// PortfolioAllocation is the immutable result of one optimization run.
// Assets are deep-copied snapshots carrying the chosen Allocation
// weights; the percentage fields are expressed in percent.
type PortfolioAllocation struct {
	ID             uuid.UUID `json:"id"`
	Assets         []Asset   `json:"assets"`
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	CreatedAt      time.Time `json:"created_at"`
}

// CorrelationLookup indexes correlation pairs for symmetric access.
type CorrelationLookup map[string]map[string]float64

// NewCorrelationLookup builds a lookup from a pair set. Both directions
// of every pair are indexed so Get(a, b) == Get(b, a).
func NewCorrelationLookup(pairs []CorrelationPair) CorrelationLookup {
	l := make(CorrelationLookup, len(pairs))
	for _, p := range pairs {
		l.put(p.AssetA, p.AssetB, p.Correlation)
		l.put(p.AssetB, p.AssetA, p.Correlation)
	}
	return l
}

func (l CorrelationLookup) put(a, b string, rho float64) {
	row, ok := l[a]
	if !ok {
		row = make(map[string]float64)
		l[a] = row
	}
	row[b] = rho
}

// Get returns the correlation between two assets. Self-correlation is
// always 1, whether or not a self-pair was recorded.
func (l CorrelationLookup) Get(a, b string) (float64, bool) {
	if a == b {
		return 1, true
	}
	rho, ok := l[a][b]
	return rho, ok
}
