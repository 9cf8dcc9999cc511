package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Earnings report timing constants
const (
	TimingBeforeMarket = "BeforeMarket"
	TimingAfterMarket  = "AfterMarket"
)

// PriceBar is one daily close for a symbol
type PriceBar struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume,omitempty"`
}

// EarningsEvent is a quarterly earnings report
type EarningsEvent struct {
	Ticker       string          `json:"ticker"`
	Date         time.Time       `json:"date"`
	ReportedEPS  decimal.Decimal `json:"reported_eps"`
	EstimatedEPS decimal.Decimal `json:"estimated_eps"`
	Timing       string          `json:"timing,omitempty"`
	Reported     bool            `json:"reported"`
}

// QuoteSnapshot is a point-in-time price plus the fundamentals the scorer needs
type QuoteSnapshot struct {
	Ticker    string          `json:"ticker"`
	Price     decimal.Decimal `json:"price"`
	MarketCap decimal.Decimal `json:"market_cap"`
	Sector    string          `json:"sector"`
	AsOf      time.Time       `json:"as_of"`
}
