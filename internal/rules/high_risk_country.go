package rules

import (
	"context"

	"github.com/opensource-finance/riskscore/internal/domain"
)

// HighRiskCountry triggers when the beneficiary country is in a configured set.
// Matching is exact and case-sensitive.
type HighRiskCountry struct {
	countries map[string]struct{}
	weight    int
}

// NewHighRiskCountry creates the rule from a list of 2-letter country codes.
func NewHighRiskCountry(countries []string, weight int) *HighRiskCountry {
	set := make(map[string]struct{}, len(countries))
	for _, c := range countries {
		set[c] = struct{}{}
	}
	return &HighRiskCountry{countries: set, weight: weight}
}

func (r *HighRiskCountry) ReasonCode() string {
	return domain.ReasonHighRiskCountry
}

func (r *HighRiskCountry) Evaluate(_ context.Context, tx *domain.Transaction) (domain.RiskSignal, error) {
	if _, ok := r.countries[tx.BeneficiaryCountry]; ok {
		return domain.Triggered(domain.ReasonHighRiskCountry, r.weight), nil
	}
	return domain.NotTriggered(domain.ReasonHighRiskCountry), nil
}
