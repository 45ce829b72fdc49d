package rules

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskscore/internal/domain"
)

// HighValueTransaction triggers when the amount is strictly greater than the
// pair's historical average times a multiplier. Without history it abstains.
// When history is unavailable it fails open (not triggered).
type HighValueTransaction struct {
	history    domain.HistoryLookup
	dependency string
	multiplier decimal.Decimal
	weight     int
}

// NewHighValueTransaction creates the rule.
func NewHighValueTransaction(history domain.HistoryLookup, dependency string, multiplier float64, weight int) *HighValueTransaction {
	return &HighValueTransaction{
		history:    history,
		dependency: dependency,
		multiplier: decimal.NewFromFloat(multiplier),
		weight:     weight,
	}
}

func (r *HighValueTransaction) ReasonCode() string {
	return domain.ReasonHighValueTransaction
}

func (r *HighValueTransaction) Dependency() string {
	return r.dependency
}

func (r *HighValueTransaction) Evaluate(ctx context.Context, tx *domain.Transaction) (domain.RiskSignal, error) {
	h, err := r.history.Find(ctx, tx.ClientID, tx.BeneficiaryID)
	if err != nil {
		return domain.NotTriggered(domain.ReasonHighValueTransaction), fmt.Errorf("history lookup: %w", err)
	}
	if h == nil || !h.AvgAmount.Valid {
		return domain.NotTriggered(domain.ReasonHighValueTransaction), nil
	}

	limit := h.AvgAmount.Decimal.Mul(r.multiplier)
	if tx.Amount.GreaterThan(limit) {
		return domain.Triggered(domain.ReasonHighValueTransaction, r.weight), nil
	}
	return domain.NotTriggered(domain.ReasonHighValueTransaction), nil
}

// Fallback abstains: high value cannot be proven without history.
func (r *HighValueTransaction) Fallback(error) domain.RiskSignal {
	return domain.NotTriggered(domain.ReasonHighValueTransaction)
}
