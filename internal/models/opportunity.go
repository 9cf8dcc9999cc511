package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry window constants
const (
	EntryWindowWaitDay1 = "wait_day1"
	EntryWindowOptimal  = "optimal"
	EntryWindowLate     = "late"
	EntryWindowExpired  = "expired"
)

// Entry status constants
const (
	EntryStatusPending = "pending"
	EntryStatusReady   = "ready"
	EntryStatusSkip    = "skip"
)

// Opportunity lifecycle status constants
const (
	OpportunityPending   = "pending"
	OpportunityTraded    = "traded"
	OpportunityDismissed = "dismissed"
	OpportunityExpired   = "expired"
)

// Sector classification constants
const (
	SectorTechnology    = "technology"
	SectorCommunication = "communication"
	SectorHealthcare    = "healthcare"
	SectorFinancial     = "financial"
	SectorConsumer      = "consumer"
	SectorOther         = "other"
)

// ValidOpportunityStatus reports whether s is a known lifecycle status
func ValidOpportunityStatus(s string) bool {
	switch s {
	case OpportunityPending, OpportunityTraded, OpportunityDismissed, OpportunityExpired:
		return true
	}
	return false
}

// OpportunityKey is the natural key of an opportunity
type OpportunityKey struct {
	HolderID     string
	Ticker       string
	EarningsDate time.Time
}

// Opportunity is a stock that beat EPS estimates but sold off after the report
type Opportunity struct {
	ID                int64               `json:"id"`
	HolderID          string              `json:"holder_id"`
	Ticker            string              `json:"ticker"`
	EarningsDate      time.Time           `json:"earnings_date"`
	ReportedEPS       decimal.Decimal     `json:"reported_eps"`
	EstimatedEPS      decimal.Decimal     `json:"estimated_eps"`
	PreEarningsClose  decimal.Decimal     `json:"pre_earnings_close"`
	PostEarningsClose decimal.Decimal     `json:"post_earnings_close"`
	CurrentPrice      decimal.Decimal     `json:"current_price"`
	DropPct           decimal.Decimal     `json:"drop_pct"`
	EPSBeatPct        decimal.Decimal     `json:"eps_beat_pct"`
	Score             int                 `json:"score"`
	Sector            string              `json:"sector"`
	RawSector         string              `json:"raw_sector,omitempty"`
	MarketCap         decimal.Decimal     `json:"market_cap"`
	Day1ChangePct     decimal.NullDecimal `json:"day1_change_pct"`
	DaysSinceEarnings int                 `json:"days_since_earnings"`
	EntryWindow       string              `json:"entry_window"`
	EntryStatus       string              `json:"entry_status"`
	Status            string              `json:"status"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Key returns the natural key of the opportunity
func (o *Opportunity) Key() OpportunityKey {
	return OpportunityKey{HolderID: o.HolderID, Ticker: o.Ticker, EarningsDate: o.EarningsDate}
}

// UpcomingEarnings is an earnings report due inside a scan window
type UpcomingEarnings struct {
	Ticker       string          `json:"ticker"`
	Date         time.Time       `json:"date"`
	EstimatedEPS decimal.Decimal `json:"estimated_eps"`
	Timing       string          `json:"timing,omitempty"`
	DaysUntil    int             `json:"days_until"`
}

// OpportunityEntry is the part of an opportunity that moves as trading days
// pass after the report
type OpportunityEntry struct {
	CurrentPrice      decimal.Decimal
	Day1ChangePct     decimal.NullDecimal
	DaysSinceEarnings int
	EntryWindow       string
	EntryStatus       string
}

// Entry returns the entry state of the opportunity
func (o *Opportunity) Entry() OpportunityEntry {
	return OpportunityEntry{
		CurrentPrice:      o.CurrentPrice,
		Day1ChangePct:     o.Day1ChangePct,
		DaysSinceEarnings: o.DaysSinceEarnings,
		EntryWindow:       o.EntryWindow,
		EntryStatus:       o.EntryStatus,
	}
}

// Equal reports whether two entry states match
func (e OpportunityEntry) Equal(other OpportunityEntry) bool {
	if e.Day1ChangePct.Valid != other.Day1ChangePct.Valid {
		return false
	}
	if e.Day1ChangePct.Valid && !e.Day1ChangePct.Decimal.Equal(other.Day1ChangePct.Decimal) {
		return false
	}
	return e.CurrentPrice.Equal(other.CurrentPrice) &&
		e.DaysSinceEarnings == other.DaysSinceEarnings &&
		e.EntryWindow == other.EntryWindow &&
		e.EntryStatus == other.EntryStatus
}
