package rules

import (
	"context"
	"fmt"

	"github.com/opensource-finance/riskscore/internal/domain"
)

// NewBeneficiary triggers when the client has no history with the beneficiary.
// When history is unavailable it fails safe (triggered).
type NewBeneficiary struct {
	history    domain.HistoryLookup
	dependency string
	weight     int
}

// NewNewBeneficiary creates the rule.
func NewNewBeneficiary(history domain.HistoryLookup, dependency string, weight int) *NewBeneficiary {
	return &NewBeneficiary{history: history, dependency: dependency, weight: weight}
}

func (r *NewBeneficiary) ReasonCode() string {
	return domain.ReasonNewBeneficiary
}

func (r *NewBeneficiary) Dependency() string {
	return r.dependency
}

func (r *NewBeneficiary) Evaluate(ctx context.Context, tx *domain.Transaction) (domain.RiskSignal, error) {
	h, err := r.history.Find(ctx, tx.ClientID, tx.BeneficiaryID)
	if err != nil {
		return r.Fallback(err), fmt.Errorf("history lookup: %w", err)
	}
	if h == nil {
		return domain.Triggered(domain.ReasonNewBeneficiary, r.weight), nil
	}
	return domain.NotTriggered(domain.ReasonNewBeneficiary), nil
}

// Fallback assumes the relationship is new when it cannot be confirmed.
func (r *NewBeneficiary) Fallback(error) domain.RiskSignal {
	return domain.Triggered(domain.ReasonNewBeneficiary, r.weight)
}
