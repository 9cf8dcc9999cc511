package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

var hundred = decimal.NewFromInt(100)

// TransactionSource loads a holder's transactions ordered by effective date
// and creation sequence
type TransactionSource interface {
	FindTransactions(ctx context.Context, holderID string, filter models.TransactionFilter) ([]models.Transaction, error)
}

// Aggregator values a holder's positions from their transaction history.
// It holds no per-call state and can serve concurrent requests.
type Aggregator struct {
	transactions TransactionSource
	prices       PriceSource
	strict       bool
	now          func() time.Time
	log          zerolog.Logger
}

// AggregatorOption configures an Aggregator
type AggregatorOption func(*Aggregator)

// WithStrictOversell reports oversold sells as reconciliation warnings
func WithStrictOversell(strict bool) AggregatorOption {
	return func(a *Aggregator) {
		a.strict = strict
	}
}

// WithClock overrides the clock used for GeneratedAt
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates a new Aggregator
func NewAggregator(transactions TransactionSource, prices PriceSource, log zerolog.Logger, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		transactions: transactions,
		prices:       prices,
		now:          time.Now,
		log:          log.With().Str("component", "position_aggregator").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type positionKey struct {
	instrumentID string
	accountClass string
}

// AggregatePositions returns every position the holder still has a positive
// quantity in, plus portfolio totals. Only a failure to load transactions is
// returned as an error; per-position problems are logged and skipped.
func (a *Aggregator) AggregatePositions(ctx context.Context, holderID string) (*models.PortfolioSummary, error) {
	txns, err := a.transactions.FindTransactions(ctx, holderID, models.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for holder %s: %w", holderID, err)
	}

	summary := &models.PortfolioSummary{
		HolderID:    holderID,
		Positions:   []*models.Position{},
		GeneratedAt: a.now(),
	}

	groups, order := groupTransactions(txns)
	prices := make(map[string]decimal.NullDecimal)

	for _, key := range order {
		log := a.log.With().
			Str("holder_id", holderID).
			Str("instrument_id", key.instrumentID).
			Str("account_class", key.accountClass).
			Logger()

		result, err := MatchLots(groups[key], StrictOversell(a.strict))
		var oversell *OversellError
		switch {
		case errors.As(err, &oversell):
			log.Warn().Str("excess", oversell.Excess.String()).Msg("Sell exceeds open lots, excess ignored")
			summary.Warnings = append(summary.Warnings, models.ReconciliationWarning{
				InstrumentID: key.instrumentID,
				AccountClass: key.accountClass,
				Unmatched:    oversell.Excess,
			})
		case err != nil:
			log.Error().Err(err).Msg("Skipping position with unreadable history")
			continue
		case result.Unmatched.IsPositive():
			log.Debug().Str("excess", result.Unmatched.String()).Msg("Sell exceeds open lots, excess ignored")
		}

		qty := result.Quantity()
		if !qty.IsPositive() {
			continue
		}

		price, seen := prices[key.instrumentID]
		if !seen {
			price = a.lookupPrice(ctx, key.instrumentID, log)
			prices[key.instrumentID] = price
		}

		summary.Positions = append(summary.Positions, buildPosition(holderID, key, result, price))
	}

	sort.SliceStable(summary.Positions, func(i, j int) bool {
		pi, pj := summary.Positions[i], summary.Positions[j]
		if pi.InstrumentID != pj.InstrumentID {
			return pi.InstrumentID < pj.InstrumentID
		}
		return pi.AccountClass < pj.AccountClass
	})
	summary.Totals = computeTotals(summary.Positions)
	return summary, nil
}

// RealizedLots returns the FIFO consumption records for a holder, optionally
// narrowed to one instrument or account
func (a *Aggregator) RealizedLots(ctx context.Context, holderID string, filter models.TransactionFilter) ([]models.RealizedLot, error) {
	txns, err := a.transactions.FindTransactions(ctx, holderID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for holder %s: %w", holderID, err)
	}

	groups, order := groupTransactions(txns)
	realized := []models.RealizedLot{}
	for _, key := range order {
		result, err := MatchLots(groups[key])
		if err != nil {
			a.log.Error().Err(err).Str("instrument_id", key.instrumentID).Msg("Skipping unreadable history")
			continue
		}
		realized = append(realized, result.Realized...)
	}

	sort.SliceStable(realized, func(i, j int) bool {
		return realized[i].SoldAt.Before(realized[j].SoldAt)
	})
	return realized, nil
}

func (a *Aggregator) lookupPrice(ctx context.Context, instrumentID string, log zerolog.Logger) decimal.NullDecimal {
	if a.prices == nil {
		return decimal.NullDecimal{}
	}
	price, err := a.prices.CurrentPrice(ctx, instrumentID)
	if err != nil {
		log.Warn().Err(err).Msg("Price unavailable, position left unvalued")
		return decimal.NullDecimal{}
	}
	if !price.IsPositive() {
		log.Warn().Str("price", price.String()).Msg("Non-positive price ignored")
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(price)
}

func groupTransactions(txns []models.Transaction) (map[positionKey][]models.Transaction, []positionKey) {
	groups := make(map[positionKey][]models.Transaction)
	var order []positionKey
	for _, t := range txns {
		key := positionKey{instrumentID: t.InstrumentID, accountClass: t.AccountClass}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}
	return groups, order
}

func buildPosition(holderID string, key positionKey, result *MatchResult, price decimal.NullDecimal) *models.Position {
	qty := result.Quantity()
	costBasis := result.CostBasis()

	p := &models.Position{
		HolderID:     holderID,
		InstrumentID: key.instrumentID,
		AccountClass: key.accountClass,
		Quantity:     qty,
		CostBasis:    costBasis,
		AverageCost:  safeDiv(costBasis, qty),
		CurrentPrice: price,
		RealizedPnl:  result.RealizedPnl(),
		OpenLotCount: len(result.Open),
		OpenLots:     result.Open,
	}

	if price.Valid {
		marketValue := qty.Mul(price.Decimal)
		pnl := marketValue.Sub(costBasis)
		p.MarketValue = decimal.NewNullDecimal(marketValue)
		p.UnrealizedPnl = decimal.NewNullDecimal(pnl)
		p.UnrealizedPnlPct = percentOf(pnl, costBasis)
	}
	return p
}

func computeTotals(positions []*models.Position) models.PortfolioTotals {
	totals := models.PortfolioTotals{
		CostBasis:     decimal.Zero,
		RealizedPnl:   decimal.Zero,
		PositionCount: len(positions),
	}

	marketValue := decimal.Zero
	for _, p := range positions {
		totals.CostBasis = totals.CostBasis.Add(p.CostBasis)
		totals.RealizedPnl = totals.RealizedPnl.Add(p.RealizedPnl)
		if !p.MarketValue.Valid {
			totals.UnpricedCount++
			continue
		}
		marketValue = marketValue.Add(p.MarketValue.Decimal)
	}

	if totals.UnpricedCount == 0 {
		pnl := marketValue.Sub(totals.CostBasis)
		totals.MarketValue = decimal.NewNullDecimal(marketValue)
		totals.UnrealizedPnl = decimal.NewNullDecimal(pnl)
		totals.UnrealizedPnlPct = percentOf(pnl, totals.CostBasis)
	}
	return totals
}

func safeDiv(numerator, denominator decimal.Decimal) decimal.NullDecimal {
	if denominator.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(numerator.Div(denominator))
}

func percentOf(part, whole decimal.Decimal) decimal.NullDecimal {
	ratio := safeDiv(part, whole)
	if !ratio.Valid {
		return ratio
	}
	return decimal.NewNullDecimal(ratio.Decimal.Mul(hundred))
}
