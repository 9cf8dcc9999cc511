package models

import "time"

// Event type constants
const (
	EventOpportunityDetected      = "OPPORTUNITY_DETECTED"
	EventOpportunityStatusChanged = "OPPORTUNITY_STATUS_CHANGED"
	EventTransactionRecorded      = "TRANSACTION_RECORDED"
)

// OpportunityEvent represents a Kafka event for opportunity changes
type OpportunityEvent struct {
	EventType   string       `json:"event_type"`
	Opportunity *Opportunity `json:"opportunity,omitempty"`
	ID          int64        `json:"id"`
	Ticker      string       `json:"ticker"`
	Status      string       `json:"status,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// TransactionEvent is the envelope for transactions recorded upstream
type TransactionEvent struct {
	EventType string               `json:"event_type"`
	Source    string               `json:"source"`
	Timestamp string               `json:"timestamp"`
	Data      TransactionEventData `json:"data"`
}

// TransactionEventData carries the transaction with string encoded numbers
type TransactionEventData struct {
	ExternalID    string  `json:"external_id"`
	HolderID      string  `json:"holder_id"`
	InstrumentID  string  `json:"instrument_id"`
	AccountClass  string  `json:"account_class"`
	Direction     string  `json:"direction"`
	Quantity      string  `json:"quantity"`
	UnitPrice     string  `json:"unit_price"`
	EffectiveDate *string `json:"effective_date,omitempty"`
	Note          string  `json:"note,omitempty"`
	OpportunityID *int64  `json:"opportunity_id,omitempty"`
}

// UniverseTicker is a symbol in the scan universe table
type UniverseTicker struct {
	Symbol  string    `json:"symbol"`
	Enabled bool      `json:"enabled"`
	Notes   string    `json:"notes,omitempty"`
	AddedAt time.Time `json:"added_at"`
}
