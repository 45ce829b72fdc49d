package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a validated payment instruction submitted for scoring.
// It is created once per inbound request and treated as immutable.
type Transaction struct {
	// Core identifiers
	ID            string `json:"transactionId"`
	ClientID      string `json:"clientId"`
	BeneficiaryID string `json:"beneficiaryId"`

	// BeneficiaryCountry is the 2-letter ISO 3166 code of the beneficiary.
	BeneficiaryCountry string `json:"beneficiaryCountry"`

	// Financial details
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	// Timestamp keeps the submitter's offset; rules convert as needed.
	Timestamp time.Time `json:"timestamp"`
}

// HistoryAggregate is the stored relationship between a client and a
// beneficiary. Either field may be absent on a known pair.
type HistoryAggregate struct {
	ClientID      string              `json:"clientId"`
	BeneficiaryID string              `json:"beneficiaryId"`
	AvgAmount     decimal.NullDecimal `json:"avgAmount"`
	LastSeen      *time.Time          `json:"lastSeen,omitempty"`
}
