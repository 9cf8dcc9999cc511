package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction constants
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
)

// Account class constants
const (
	AccountTaxable     = "taxable"
	AccountTaxDeferred = "tax-deferred"
)

// Transaction is an immutable buy or sell event for one holder, instrument
// and account. ID is the creation sequence and breaks ties between
// transactions sharing an effective date.
type Transaction struct {
	ID            int64           `json:"id"`
	ExternalID    string          `json:"external_id,omitempty"`
	HolderID      string          `json:"holder_id"`
	InstrumentID  string          `json:"instrument_id"`
	AccountClass  string          `json:"account_class"`
	Direction     string          `json:"direction"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	EffectiveDate time.Time       `json:"effective_date"`
	Note          string          `json:"note,omitempty"`
	OpportunityID *int64          `json:"opportunity_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IsBuy reports whether the transaction adds quantity
func (t *Transaction) IsBuy() bool {
	return t.Direction == DirectionBuy
}

// ValidDirection reports whether d is a known direction
func ValidDirection(d string) bool {
	return d == DirectionBuy || d == DirectionSell
}

// ValidAccountClass reports whether a is a known account class
func ValidAccountClass(a string) bool {
	return a == AccountTaxable || a == AccountTaxDeferred
}

// TransactionFilter narrows FindTransactions. Empty fields match everything.
type TransactionFilter struct {
	InstrumentID string
	AccountClass string
}
