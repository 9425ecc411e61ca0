package validator

import (
	"fmt"
	"math"
	"regexp"

	"github.com/quantfolio/allocengine/internal/models"
)

var symbolRegex = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

type Validator struct {
	Errors map[string]string
}

func New() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

func (v *Validator) AddError(key, message string) {
	if _, exists := v.Errors[key]; !exists {
		v.Errors[key] = message
	}
}

func (v *Validator) Check(ok bool, key, message string) {
	if !ok {
		v.AddError(key, message)
	}
}

// ValidateUniverse checks the structural invariants of an asset
// universe: at least one asset, unique IDs, positive prices and
// non-negative volatilities, and finite statistics.
func (v *Validator) ValidateUniverse(assets []models.Asset) {
	if len(assets) == 0 {
		v.AddError("assets", "must contain at least one asset")
		return
	}

	seen := make(map[string]bool, len(assets))
	for i, a := range assets {
		key := fmt.Sprintf("assets[%d]", i)

		v.Check(a.ID != "", key+".id", "must not be empty")
		if a.ID != "" {
			v.Check(!seen[a.ID], key+".id", fmt.Sprintf("duplicate asset id %q", a.ID))
			seen[a.ID] = true
		}
		if a.Symbol != "" {
			v.Check(symbolRegex.MatchString(a.Symbol), key+".symbol", "must be 1-10 uppercase letters or digits")
		}
		v.Check(a.Price > 0, key+".price", "must be greater than zero")
		v.Check(a.Volatility >= 0, key+".volatility", "must not be negative")
		v.Check(a.Quantity >= 0, key+".quantity", "must not be negative")
		v.Check(isFinite(a.Price), key+".price", "must be finite")
		v.Check(isFinite(a.ExpectedReturn), key+".expected_return", "must be finite")
		v.Check(isFinite(a.Volatility), key+".volatility", "must be finite")
	}
}

// ValidatePreference checks a single run's risk preference.
func (v *Validator) ValidatePreference(p models.Preference) {
	v.Check(p.RiskTolerance.Valid(), "preference.risk_tolerance",
		fmt.Sprintf("must be one of %q, %q, %q", models.LowRisk, models.MediumRisk, models.HighRisk))
	if p.MaxWeight != 0 {
		v.Check(p.MaxWeight > 0 && p.MaxWeight <= 1, "preference.max_weight", "must be in (0, 1]")
	}
	v.Check(p.MinAssets >= 0, "preference.min_assets", "must not be negative")
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
