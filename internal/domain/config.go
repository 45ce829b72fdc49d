package domain

import "time"

// Config holds the complete service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backing services are used
	Tier Tier `json:"tier" env:"TIER"`

	// Scoring policy
	Risk    RiskConfig    `json:"risk"`
	Breaker BreakerConfig `json:"breaker"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ResilienceMode selects how dependency outages are absorbed.
// Exactly one mode is active per process.
type ResilienceMode string

const (
	// ResiliencePerRule guards each dependency-bearing rule with its own
	// fallback signal (fail-open or fail-safe per rule).
	ResiliencePerRule ResilienceMode = "rule"

	// ResilienceEngine leaves rules unguarded and replaces the whole score
	// with SystemUnavailableScore when any dependency fails.
	ResilienceEngine ResilienceMode = "engine"
)

// RiskConfig holds the scoring policy. Read-only after startup.
type RiskConfig struct {
	Thresholds RiskThresholds `json:"thresholds"`

	// HighRiskCountries are matched exactly (case-sensitive) against the
	// beneficiary country code.
	HighRiskCountries []string `json:"highRiskCountries" env:"HIGH_RISK_COUNTRIES" envSeparator:","`

	AuditEnabled bool `json:"auditEnabled" env:"AUDIT_ENABLED"`

	// AuditTimeout bounds how long a score response waits on the audit write.
	AuditTimeout time.Duration `json:"auditTimeout" env:"AUDIT_TIMEOUT"`

	Weights RuleWeights `json:"weights"`

	// HighValueMultiplier: amount must exceed average * multiplier
	HighValueMultiplier float64 `json:"highValueMultiplier" env:"HIGH_VALUE_MULTIPLIER"`

	// Business hours are [start, end) in ReferenceTimezone.
	ReferenceTimezone  string `json:"referenceTimezone" env:"REFERENCE_TIMEZONE"`
	BusinessHoursStart int    `json:"businessHoursStart" env:"BUSINESS_HOURS_START"`
	BusinessHoursEnd   int    `json:"businessHoursEnd" env:"BUSINESS_HOURS_END"`

	// RuleOrder is the evaluation order of the built-in rules by reason code.
	// It determines the order of reason codes in every score.
	RuleOrder []string `json:"ruleOrder" env:"RULE_ORDER" envSeparator:","`

	ResilienceMode ResilienceMode `json:"resilienceMode" env:"RESILIENCE_MODE"`
}

// RuleWeights are the score contributions of the built-in rules.
type RuleWeights struct {
	HighRiskCountry  int `json:"highRiskCountry" env:"WEIGHT_HIGH_RISK_COUNTRY"`
	HighValue        int `json:"highValue" env:"WEIGHT_HIGH_VALUE"`
	NewBeneficiary   int `json:"newBeneficiary" env:"WEIGHT_NEW_BENEFICIARY"`
	UnusualTimeOfDay int `json:"unusualTimeOfDay" env:"WEIGHT_UNUSUAL_TIME"`
}

// BreakerConfig parameterizes every circuit breaker in the process.
type BreakerConfig struct {
	// FailureRateThreshold is the failure percentage (0-100] at which the
	// breaker opens, measured over the sliding window.
	FailureRateThreshold float64 `json:"failureRateThreshold" env:"BREAKER_FAILURE_RATE"`

	// WindowSize is the number of most recent calls considered.
	WindowSize int `json:"windowSize" env:"BREAKER_WINDOW_SIZE"`

	// MinimumCalls must be recorded before the failure rate is evaluated.
	MinimumCalls int `json:"minimumCalls" env:"BREAKER_MINIMUM_CALLS"`

	// OpenTimeout is the cool-down before an open breaker admits trials.
	OpenTimeout time.Duration `json:"openTimeout" env:"BREAKER_OPEN_TIMEOUT"`

	// HalfOpenMaxCalls trial calls are admitted; all must succeed to close.
	HalfOpenMaxCalls int `json:"halfOpenMaxCalls" env:"BREAKER_HALF_OPEN_CALLS"`

	// CallTimeout bounds a single dependency call; exceeding it is a failure.
	CallTimeout time.Duration `json:"callTimeout" env:"BREAKER_CALL_TIMEOUT"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" env:"HOST"`
	Port         int    `json:"port" env:"PORT"`
	ReadTimeout  int    `json:"readTimeout" env:"READ_TIMEOUT"`   // seconds
	WriteTimeout int    `json:"writeTimeout" env:"WRITE_TIMEOUT"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`   // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" env:"TRACING_ENABLED"`
	ServiceName string `json:"serviceName" env:"TRACING_SERVICE_NAME"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-process channels + LRU
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultRuleOrder is the built-in evaluation order.
func DefaultRuleOrder() []string {
	return []string{
		ReasonHighRiskCountry,
		ReasonHighValueTransaction,
		ReasonNewBeneficiary,
		ReasonUnusualTimeOfDay,
	}
}

// DefaultConfig returns a default configuration for the community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Risk: RiskConfig{
			Thresholds: RiskThresholds{
				Medium:   200,
				High:     400,
				Critical: 600,
			},
			HighRiskCountries: []string{"IR", "KP", "SY", "CU", "VE"},
			AuditEnabled:      true,
			AuditTimeout:      2 * time.Second,
			Weights: RuleWeights{
				HighRiskCountry:  250,
				HighValue:        200,
				NewBeneficiary:   150,
				UnusualTimeOfDay: 100,
			},
			HighValueMultiplier: 3.0,
			ReferenceTimezone:   "America/New_York",
			BusinessHoursStart:  9,
			BusinessHoursEnd:    17,
			RuleOrder:           DefaultRuleOrder(),
			ResilienceMode:      ResiliencePerRule,
		},
		Breaker: BreakerConfig{
			FailureRateThreshold: 50,
			WindowSize:           10,
			MinimumCalls:         5,
			OpenTimeout:          30 * time.Second,
			HalfOpenMaxCalls:     3,
			CallTimeout:          2 * time.Second,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./riskscore.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			HistoryTTL:   30 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "riskscore",
		},
	}
}

// ProConfig returns a configuration for the pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "riskscore",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Second,
		HistoryTTL:     30 * time.Second,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "riskscore",
	}
	cfg.Tracing.Enabled = true
	return cfg
}
