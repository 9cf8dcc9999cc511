// Package portfolio matches buy and sell transactions into FIFO lots and
// values the resulting positions.
package portfolio

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

// ErrOversell is returned in strict mode when a sell exceeds the open lots
var ErrOversell = errors.New("sell quantity exceeds open lots")

// OversellError describes the first oversold sell and the total excess that
// was discarded across the whole replay.
type OversellError struct {
	InstrumentID      string
	AccountClass      string
	SellTransactionID int64
	Excess            decimal.Decimal
}

func (e *OversellError) Error() string {
	return fmt.Sprintf("%s: %s %s (%s account, first at transaction %d)",
		ErrOversell, e.Excess, e.InstrumentID, e.AccountClass, e.SellTransactionID)
}

func (e *OversellError) Unwrap() error {
	return ErrOversell
}

// MatchResult is the outcome of replaying transactions through the FIFO queue
type MatchResult struct {
	Open      []models.Lot
	Realized  []models.RealizedLot
	Unmatched decimal.Decimal
}

// Quantity returns the total remaining quantity
func (r *MatchResult) Quantity() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range r.Open {
		total = total.Add(lot.Quantity)
	}
	return total
}

// CostBasis returns the total cost of the remaining lots
func (r *MatchResult) CostBasis() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range r.Open {
		total = total.Add(lot.CostBasis())
	}
	return total
}

// RealizedPnl returns the profit or loss locked in by matched sells
func (r *MatchResult) RealizedPnl() decimal.Decimal {
	total := decimal.Zero
	for _, rl := range r.Realized {
		total = total.Add(rl.RealizedPnl)
	}
	return total
}

type matchOptions struct {
	strict bool
}

// MatchOption configures MatchLots
type MatchOption func(*matchOptions)

// StrictOversell makes MatchLots return an *OversellError when a sell
// exceeds the open lots. The numeric result is the same either way.
func StrictOversell(strict bool) MatchOption {
	return func(o *matchOptions) {
		o.strict = strict
	}
}

// MatchLots replays transactions in effective date order and returns the
// lots still open. Transactions sharing a date keep their input order, so
// callers pass them in creation sequence. The input slice is not modified.
func MatchLots(transactions []models.Transaction, opts ...MatchOption) (*MatchResult, error) {
	var o matchOptions
	for _, opt := range opts {
		opt(&o)
	}

	ordered := make([]models.Transaction, len(transactions))
	copy(ordered, transactions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EffectiveDate.Before(ordered[j].EffectiveDate)
	})

	result := &MatchResult{Unmatched: decimal.Zero}
	var queue []models.Lot
	var oversell *OversellError

	for _, t := range ordered {
		switch t.Direction {
		case models.DirectionBuy:
			queue = append(queue, models.Lot{
				TransactionID: t.ID,
				AcquiredAt:    t.EffectiveDate,
				Quantity:      t.Quantity,
				UnitCost:      t.UnitPrice,
			})

		case models.DirectionSell:
			remaining := t.Quantity
			for remaining.IsPositive() && len(queue) > 0 {
				front := &queue[0]
				consumed := remaining
				if front.Quantity.LessThanOrEqual(remaining) {
					consumed = front.Quantity
				}

				result.Realized = append(result.Realized, models.RealizedLot{
					BuyTransactionID:  front.TransactionID,
					SellTransactionID: t.ID,
					AcquiredAt:        front.AcquiredAt,
					SoldAt:            t.EffectiveDate,
					Quantity:          consumed,
					UnitCost:          front.UnitCost,
					SalePrice:         t.UnitPrice,
					RealizedPnl:       t.UnitPrice.Sub(front.UnitCost).Mul(consumed),
				})

				remaining = remaining.Sub(consumed)
				if consumed.Equal(front.Quantity) {
					queue = queue[1:]
				} else {
					front.Quantity = front.Quantity.Sub(consumed)
				}
			}

			// Excess sell quantity has nothing to match; it is dropped rather
			// than turned into a negative lot.
			if remaining.IsPositive() {
				result.Unmatched = result.Unmatched.Add(remaining)
				if oversell == nil {
					oversell = &OversellError{
						InstrumentID:      t.InstrumentID,
						AccountClass:      t.AccountClass,
						SellTransactionID: t.ID,
					}
				}
			}

		default:
			return nil, fmt.Errorf("unknown direction %q on transaction %d", t.Direction, t.ID)
		}
	}

	result.Open = queue
	if oversell != nil && o.strict {
		oversell.Excess = result.Unmatched
		return result, oversell
	}
	return result, nil
}
