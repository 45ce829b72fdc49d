package domain

import "time"

// RiskLevel is the band a numeric score is classified into.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Reason codes emitted by the built-in rules.
const (
	ReasonHighRiskCountry      = "HIGH_RISK_COUNTRY"
	ReasonHighValueTransaction = "HIGH_VALUE_TRANSACTION"
	ReasonNewBeneficiary       = "NEW_BENEFICIARY"
	ReasonUnusualTimeOfDay     = "UNUSUAL_TIME_OF_DAY"
	ReasonSystemUnavailable    = "SYSTEM_UNAVAILABLE"
)

// RiskSignal is the output of a single rule evaluation. A rule always
// emits one, carrying its reason code whether or not it triggered.
type RiskSignal struct {
	ReasonCode string `json:"reasonCode"`
	Weight     int    `json:"weight"`
	Triggered  bool   `json:"triggered"`
}

// Triggered returns a signal contributing weight to the score.
func Triggered(reasonCode string, weight int) RiskSignal {
	return RiskSignal{ReasonCode: reasonCode, Weight: weight, Triggered: true}
}

// NotTriggered returns a zero-weight signal that still names its rule.
func NotTriggered(reasonCode string) RiskSignal {
	return RiskSignal{ReasonCode: reasonCode}
}

// RiskScore is the final decision for a transaction.
type RiskScore struct {
	TransactionID     string    `json:"transactionId"`
	Score             int       `json:"riskScore"`
	Level             RiskLevel `json:"riskLevel"`
	ReasonCodes       []string  `json:"reasonCodes"`
	CalculationTimeMs int64     `json:"calculationTimeMs"`
}

// Clone returns a copy that shares no memory with s.
func (s RiskScore) Clone() RiskScore {
	out := s
	out.ReasonCodes = append(make([]string, 0, len(s.ReasonCodes)), s.ReasonCodes...)
	return out
}

// IsAlert reports whether the score is in a band that warrants review.
func (s RiskScore) IsAlert() bool {
	return s.Level == RiskHigh || s.Level == RiskCritical
}

// RiskThresholds are the lower bounds of the MEDIUM, HIGH and CRITICAL bands.
type RiskThresholds struct {
	Medium   int `json:"medium" env:"THRESHOLD_MEDIUM"`
	High     int `json:"high" env:"THRESHOLD_HIGH"`
	Critical int `json:"critical" env:"THRESHOLD_CRITICAL"`
}

// Monotonic reports whether 0 <= Medium < High < Critical.
func (t RiskThresholds) Monotonic() bool {
	return t.Medium >= 0 && t.Medium < t.High && t.High < t.Critical
}

// ClassifyRiskLevel maps a score to its band. The highest matching
// threshold wins and a score equal to a threshold belongs to that band.
func ClassifyRiskLevel(score int, t RiskThresholds) RiskLevel {
	switch {
	case score >= t.Critical:
		return RiskCritical
	case score >= t.High:
		return RiskHigh
	case score >= t.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// SystemUnavailableScore is the fixed conservative result returned when the
// whole scoring path is short-circuited. It sits at the bottom of the HIGH band.
func SystemUnavailableScore(txID string, t RiskThresholds) RiskScore {
	return RiskScore{
		TransactionID: txID,
		Score:         t.High,
		Level:         ClassifyRiskLevel(t.High, t),
		ReasonCodes:   []string{ReasonSystemUnavailable},
	}
}

// AuditRecord is the persisted, immutable form of a RiskScore.
type AuditRecord struct {
	ID                string    `json:"id"`
	TransactionID     string    `json:"transactionId"`
	Score             int       `json:"riskScore"`
	Level             RiskLevel `json:"riskLevel"`
	ReasonCodes       []string  `json:"reasonCodes"`
	CalculationTimeMs int64     `json:"calculationTimeMs"`
	CreatedAt         time.Time `json:"createdAt"`
	CreatedBy         string    `json:"createdBy"`
}

// DefaultAuditActor is recorded when no actor is supplied.
const DefaultAuditActor = "SYSTEM"

// RuleConfig defines an operator-configured expression rule.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// CEL expression; must evaluate to bool
	Expression string `json:"expression"`

	ReasonCode string `json:"reasonCode"`
	Weight     int    `json:"weight"`

	// Position orders expression rules after the built-in ones.
	Position int  `json:"position"`
	Enabled  bool `json:"enabled"`
}
