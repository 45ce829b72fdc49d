package rules

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata" // reference timezone must resolve without a system zoneinfo

	"github.com/opensource-finance/riskscore/internal/domain"
)

// UnusualTimeOfDay triggers when the transaction hour, converted to the
// reference timezone, falls outside [start, end).
type UnusualTimeOfDay struct {
	loc        *time.Location
	start, end int
	weight     int
}

// NewUnusualTimeOfDay creates the rule. tz must be an IANA zone name.
func NewUnusualTimeOfDay(tz string, start, end, weight int) (*UnusualTimeOfDay, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load reference timezone %q: %w", tz, err)
	}
	return &UnusualTimeOfDay{loc: loc, start: start, end: end, weight: weight}, nil
}

func (r *UnusualTimeOfDay) ReasonCode() string {
	return domain.ReasonUnusualTimeOfDay
}

func (r *UnusualTimeOfDay) Evaluate(_ context.Context, tx *domain.Transaction) (domain.RiskSignal, error) {
	hour := tx.Timestamp.In(r.loc).Hour()
	if hour < r.start || hour >= r.end {
		return domain.Triggered(domain.ReasonUnusualTimeOfDay, r.weight), nil
	}
	return domain.NotTriggered(domain.ReasonUnusualTimeOfDay), nil
}

// Location returns the reference timezone.
func (r *UnusualTimeOfDay) Location() *time.Location {
	return r.loc
}
