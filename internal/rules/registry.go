package rules

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/riskscore/internal/circuit"
	"github.com/opensource-finance/riskscore/internal/domain"
)

// HistoryDependency is the breaker name shared by the rules that read
// transaction history.
const HistoryDependency = "transactionHistory"

// Registry is the fixed, ordered rule sequence. Order determines the order
// of reason codes in every score.
type Registry struct {
	rules []Rule
}

// NewRegistry creates a registry evaluating rules in the given order.
func NewRegistry(rules ...Rule) *Registry {
	return &Registry{rules: append([]Rule(nil), rules...)}
}

// Rules returns the rules in evaluation order.
func (r *Registry) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// ReasonCodes returns each rule's reason code in evaluation order.
func (r *Registry) ReasonCodes() []string {
	codes := make([]string, len(r.rules))
	for i, rule := range r.rules {
		codes[i] = rule.ReasonCode()
	}
	return codes
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	return len(r.rules)
}

// BuildOptions are the inputs to Build.
type BuildOptions struct {
	Risk     domain.RiskConfig
	History  domain.HistoryLookup
	Breakers *circuit.Registry

	// Expressions are operator rules appended after the built-ins in
	// Position order. Disabled entries are skipped.
	Expressions []*domain.RuleConfig

	// OnFallback observes guarded fallbacks.
	OnFallback FallbackFunc
}

// Build assembles the built-in rules in Risk.RuleOrder followed by the
// enabled expression rules. In ResiliencePerRule mode dependency-bearing
// rules are wrapped by Guard; in ResilienceEngine mode they are left
// unguarded so their errors reach the caller.
func Build(opts BuildOptions) (*Registry, error) {
	if opts.History == nil {
		return nil, fmt.Errorf("history lookup is required")
	}

	cfg := opts.Risk
	w := cfg.Weights

	timeRule, err := NewUnusualTimeOfDay(cfg.ReferenceTimezone, cfg.BusinessHoursStart, cfg.BusinessHoursEnd, w.UnusualTimeOfDay)
	if err != nil {
		return nil, err
	}

	builtins := map[string]Rule{
		domain.ReasonHighRiskCountry:      NewHighRiskCountry(cfg.HighRiskCountries, w.HighRiskCountry),
		domain.ReasonHighValueTransaction: NewHighValueTransaction(opts.History, HistoryDependency, cfg.HighValueMultiplier, w.HighValue),
		domain.ReasonNewBeneficiary:       NewNewBeneficiary(opts.History, HistoryDependency, w.NewBeneficiary),
		domain.ReasonUnusualTimeOfDay:     timeRule,
	}

	order := cfg.RuleOrder
	if len(order) == 0 {
		order = domain.DefaultRuleOrder()
	}

	seen := make(map[string]bool, len(order))
	var ordered []Rule
	for _, code := range order {
		rule, ok := builtins[code]
		if !ok {
			return nil, fmt.Errorf("unknown rule %q in rule order", code)
		}
		if seen[code] {
			return nil, fmt.Errorf("rule %q listed twice in rule order", code)
		}
		seen[code] = true

		if fr, ok := rule.(FallbackRule); ok && cfg.ResilienceMode != domain.ResilienceEngine {
			if opts.Breakers == nil {
				return nil, fmt.Errorf("rule %q needs a circuit breaker registry", code)
			}
			rule = Guard(fr, opts.Breakers.Get(fr.Dependency()), WithFallbackHook(opts.OnFallback))
		}
		ordered = append(ordered, rule)
	}

	exprs := make([]*domain.RuleConfig, 0, len(opts.Expressions))
	for _, rc := range opts.Expressions {
		if rc != nil && rc.Enabled {
			exprs = append(exprs, rc)
		}
	}
	sort.SliceStable(exprs, func(i, j int) bool { return exprs[i].Position < exprs[j].Position })

	if len(exprs) > 0 {
		compiler, err := NewCompiler(timeRule.Location())
		if err != nil {
			return nil, err
		}
		for _, rc := range exprs {
			rule, err := compiler.Compile(rc)
			if err != nil {
				return nil, err
			}
			ordered = append(ordered, rule)
		}
	}

	return NewRegistry(ordered...), nil
}
