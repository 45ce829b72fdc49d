// Package rules provides the risk rules evaluated by the scoring engine and
// the circuit-breaker guard that gives dependency-bearing rules their fallback.
package rules

import (
	"context"
	"log/slog"

	"github.com/opensource-finance/riskscore/internal/circuit"
	"github.com/opensource-finance/riskscore/internal/domain"
)

// Rule evaluates one risk condition against a transaction. It always returns
// a signal carrying its reason code. Business conditions such as missing
// history map to an untriggered signal; errors are reserved for dependency
// failures.
type Rule interface {
	ReasonCode() string
	Evaluate(ctx context.Context, tx *domain.Transaction) (domain.RiskSignal, error)
}

// FallbackRule is a Rule that reads an external dependency and knows which
// signal to emit when that dependency is unavailable.
type FallbackRule interface {
	Rule

	// Dependency names the breaker shared by every rule reading the same source.
	Dependency() string

	// Fallback returns the signal to use when the dependency call failed,
	// timed out or was short-circuited.
	Fallback(err error) domain.RiskSignal
}

// FallbackFunc observes fallback decisions, for metrics.
type FallbackFunc func(reasonCode string, err error)

// GuardOption configures a guarded rule.
type GuardOption func(*guarded)

// WithFallbackHook registers a callback invoked whenever the fallback is used.
func WithFallbackHook(fn FallbackFunc) GuardOption {
	return func(g *guarded) { g.onFallback = fn }
}

type guarded struct {
	rule       FallbackRule
	breaker    *circuit.Breaker
	onFallback FallbackFunc
}

// Guard wraps r so its evaluation runs under b. The returned Rule never
// returns an error: any failure becomes r.Fallback(err).
func Guard(r FallbackRule, b *circuit.Breaker, opts ...GuardOption) Rule {
	g := &guarded{rule: r, breaker: b}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *guarded) ReasonCode() string {
	return g.rule.ReasonCode()
}

func (g *guarded) Evaluate(ctx context.Context, tx *domain.Transaction) (domain.RiskSignal, error) {
	sig := circuit.Call(ctx, g.breaker,
		func(ctx context.Context) (domain.RiskSignal, error) {
			return g.rule.Evaluate(ctx, tx)
		},
		func(err error) domain.RiskSignal {
			fb := g.rule.Fallback(err)
			slog.Warn("rule fallback applied",
				"reason_code", fb.ReasonCode,
				"dependency", g.rule.Dependency(),
				"transaction_id", tx.ID,
				"triggered", fb.Triggered,
				"error", err,
			)
			if g.onFallback != nil {
				g.onFallback(fb.ReasonCode, err)
			}
			return fb
		},
	)
	return sig, nil
}
