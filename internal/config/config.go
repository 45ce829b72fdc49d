// Package config loads and validates the service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/opensource-finance/riskscore/internal/domain"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "RISKSCORE_"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load builds the configuration from tier defaults, an optional .env file
// and the environment, then validates it.
func Load() (*domain.Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := domain.DefaultConfig()
	if os.Getenv(EnvPrefix+"TIER") == string(domain.TierPro) {
		cfg = domain.ProConfig()
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv overlays environment variables onto target.
func ParseEnv(target *domain.Config) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects configurations under which scoring is undefined.
func Validate(cfg *domain.Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	risk := cfg.Risk
	if !risk.Thresholds.Monotonic() {
		add("thresholds must satisfy 0 <= medium < high < critical, got %d/%d/%d",
			risk.Thresholds.Medium, risk.Thresholds.High, risk.Thresholds.Critical)
	}

	for _, code := range risk.HighRiskCountries {
		if !isCountryCode(code) {
			add("high-risk country %q is not a 2-letter upper-case ISO code", code)
		}
	}

	w := risk.Weights
	if w.HighRiskCountry < 0 || w.HighValue < 0 || w.NewBeneficiary < 0 || w.UnusualTimeOfDay < 0 {
		add("rule weights must be non-negative")
	}

	if risk.AuditTimeout <= 0 {
		add("audit timeout must be positive, got %v", risk.AuditTimeout)
	}

	if risk.HighValueMultiplier <= 0 {
		add("high value multiplier must be positive, got %v", risk.HighValueMultiplier)
	}

	if _, err := time.LoadLocation(risk.ReferenceTimezone); err != nil {
		add("reference timezone %q: %v", risk.ReferenceTimezone, err)
	}

	if risk.BusinessHoursStart < 0 || risk.BusinessHoursStart >= risk.BusinessHoursEnd || risk.BusinessHoursEnd > 24 {
		add("business hours must satisfy 0 <= start < end <= 24, got [%d,%d)",
			risk.BusinessHoursStart, risk.BusinessHoursEnd)
	}

	seen := make(map[string]bool, len(risk.RuleOrder))
	known := make(map[string]bool)
	for _, code := range domain.DefaultRuleOrder() {
		known[code] = true
	}
	for _, code := range risk.RuleOrder {
		if !known[code] {
			add("unknown rule %q in rule order", code)
		}
		if seen[code] {
			add("rule %q listed twice in rule order", code)
		}
		seen[code] = true
	}

	switch risk.ResilienceMode {
	case domain.ResiliencePerRule, domain.ResilienceEngine:
	default:
		add("resilience mode must be %q or %q, got %q",
			domain.ResiliencePerRule, domain.ResilienceEngine, risk.ResilienceMode)
	}

	b := cfg.Breaker
	if b.FailureRateThreshold <= 0 || b.FailureRateThreshold > 100 {
		add("breaker failure rate must be in (0,100], got %v", b.FailureRateThreshold)
	}
	if b.WindowSize <= 0 || b.MinimumCalls <= 0 || b.MinimumCalls > b.WindowSize {
		add("breaker window size and minimum calls must satisfy 0 < minimum <= window, got %d/%d",
			b.MinimumCalls, b.WindowSize)
	}
	if b.OpenTimeout <= 0 || b.CallTimeout <= 0 {
		add("breaker open timeout and call timeout must be positive")
	}
	if b.HalfOpenMaxCalls <= 0 {
		add("breaker half-open calls must be positive, got %d", b.HalfOpenMaxCalls)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func isCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	return strings.ToUpper(code) == code && code[0] >= 'A' && code[0] <= 'Z' && code[1] >= 'A' && code[1] <= 'Z'
}
