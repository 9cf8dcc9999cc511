package portfolio

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

// PriceSource returns the latest known price for an instrument
type PriceSource interface {
	CurrentPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error)
}

// QuoteFetcher is the slice of the market data gateway that serves quotes
type QuoteFetcher interface {
	GetQuoteSnapshot(ctx context.Context, ticker string) (*models.QuoteSnapshot, error)
}

// QuotePrices adapts a QuoteFetcher to a PriceSource
type QuotePrices struct {
	Quotes QuoteFetcher
}

// CurrentPrice returns the snapshot price
func (q QuotePrices) CurrentPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error) {
	snap, err := q.Quotes.GetQuoteSnapshot(ctx, instrumentID)
	if err != nil {
		return decimal.Zero, err
	}
	if snap == nil {
		return decimal.Zero, fmt.Errorf("no quote for %s", instrumentID)
	}
	return snap.Price, nil
}

// FallbackPrices tries each source in order and returns the first positive
// price
type FallbackPrices []PriceSource

// CurrentPrice implements PriceSource
func (f FallbackPrices) CurrentPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error) {
	var errs []error
	for _, src := range f {
		price, err := src.CurrentPrice(ctx, instrumentID)
		if err == nil && price.IsPositive() {
			return price, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return decimal.Zero, fmt.Errorf("no price for %s", instrumentID)
	}
	return decimal.Zero, fmt.Errorf("no price for %s: %w", instrumentID, errors.Join(errs...))
}
