package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is a quantity of an instrument still held at a given unit cost
type Lot struct {
	TransactionID int64           `json:"transaction_id"`
	AcquiredAt    time.Time       `json:"acquired_at"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
}

// CostBasis returns quantity times unit cost
func (l Lot) CostBasis() decimal.Decimal {
	return l.Quantity.Mul(l.UnitCost)
}

// RealizedLot records the part of a buy lot consumed by a sell
type RealizedLot struct {
	BuyTransactionID  int64           `json:"buy_transaction_id"`
	SellTransactionID int64           `json:"sell_transaction_id"`
	AcquiredAt        time.Time       `json:"acquired_at"`
	SoldAt            time.Time       `json:"sold_at"`
	Quantity          decimal.Decimal `json:"quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	SalePrice         decimal.Decimal `json:"sale_price"`
	RealizedPnl       decimal.Decimal `json:"realized_pnl"`
}

// Position is the valuation of what a holder still owns of one instrument in
// one account. Nullable values are invalid when they cannot be computed:
// no market price, or a zero denominator.
type Position struct {
	ID               int                 `json:"id,omitempty"`
	HolderID         string              `json:"holder_id"`
	InstrumentID     string              `json:"instrument_id"`
	AccountClass     string              `json:"account_class"`
	Quantity         decimal.Decimal     `json:"quantity"`
	CostBasis        decimal.Decimal     `json:"cost_basis"`
	AverageCost      decimal.NullDecimal `json:"average_cost"`
	CurrentPrice     decimal.NullDecimal `json:"current_price"`
	MarketValue      decimal.NullDecimal `json:"market_value"`
	UnrealizedPnl    decimal.NullDecimal `json:"unrealized_pnl"`
	UnrealizedPnlPct decimal.NullDecimal `json:"unrealized_pnl_pct"`
	RealizedPnl      decimal.Decimal     `json:"realized_pnl"`
	OpenLotCount     int                 `json:"open_lot_count"`
	OpenLots         []Lot               `json:"open_lots,omitempty"`
	CreatedAt        time.Time           `json:"created_at,omitempty"`
	UpdatedAt        time.Time           `json:"updated_at,omitempty"`
}

// PortfolioTotals sums positions. Market value and unrealized P&L are null
// when any position is missing a price.
type PortfolioTotals struct {
	CostBasis        decimal.Decimal     `json:"cost_basis"`
	MarketValue      decimal.NullDecimal `json:"market_value"`
	UnrealizedPnl    decimal.NullDecimal `json:"unrealized_pnl"`
	UnrealizedPnlPct decimal.NullDecimal `json:"unrealized_pnl_pct"`
	RealizedPnl      decimal.Decimal     `json:"realized_pnl"`
	PositionCount    int                 `json:"position_count"`
	UnpricedCount    int                 `json:"unpriced_count"`
}

// ReconciliationWarning flags a sell that exceeded the lots available to it
type ReconciliationWarning struct {
	InstrumentID string          `json:"instrument_id"`
	AccountClass string          `json:"account_class"`
	Unmatched    decimal.Decimal `json:"unmatched_quantity"`
}

// PortfolioSummary is the result of aggregating one holder's transactions
type PortfolioSummary struct {
	HolderID    string                  `json:"holder_id"`
	Positions   []*Position             `json:"positions"`
	Totals      PortfolioTotals         `json:"totals"`
	Warnings    []ReconciliationWarning `json:"warnings,omitempty"`
	GeneratedAt time.Time               `json:"generated_at"`
}
