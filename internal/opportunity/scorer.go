package opportunity

import (
	"github.com/shopspring/decimal"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

var (
	hundred = decimal.NewFromInt(100)

	pct5  = decimal.NewFromInt(5)
	pct10 = decimal.NewFromInt(10)
	pct15 = decimal.NewFromInt(15)
	pct25 = decimal.NewFromInt(25)

	cap10B  = decimal.New(10, 9)
	cap100B = decimal.New(100, 9)
	cap500B = decimal.New(500, 9)
)

// MomentumDays is the trailing window for the market regime factor
const MomentumDays = 30

// Factors are the inputs to Score. MarketMomentumPct is null when index
// data was unavailable.
type Factors struct {
	DropPct           decimal.Decimal
	EPSBeatPct        decimal.Decimal
	MarketCap         decimal.Decimal
	Sector            string
	MarketMomentumPct decimal.NullDecimal
}

// Score returns the composite opportunity score in [0, 100]
func Score(f Factors) int {
	total := dropPoints(f.DropPct) +
		epsBeatPoints(f.EPSBeatPct) +
		marketCapPoints(f.MarketCap) +
		sectorPoints(f.Sector) +
		regimePoints(f.MarketMomentumPct)

	if total > 100 {
		return 100
	}
	if total < 0 {
		return 0
	}
	return total
}

// dropPoints favours the 10-15% band, which has the best historical win rate
func dropPoints(dropPct decimal.Decimal) int {
	drop := dropPct.Abs()
	switch {
	case drop.LessThan(pct10):
		return 25
	case drop.LessThanOrEqual(pct15):
		return 30
	case drop.LessThanOrEqual(pct25):
		return 15
	default:
		return 5
	}
}

func epsBeatPoints(beatPct decimal.Decimal) int {
	switch {
	case beatPct.GreaterThan(pct15):
		return 25
	case beatPct.GreaterThan(pct10):
		return 20
	case beatPct.GreaterThan(pct5):
		return 10
	default:
		return 5
	}
}

func marketCapPoints(marketCap decimal.Decimal) int {
	switch {
	case marketCap.GreaterThan(cap500B):
		return 20
	case marketCap.GreaterThan(cap100B):
		return 15
	case marketCap.GreaterThan(cap10B):
		return 10
	default:
		return 5
	}
}

func sectorPoints(sector string) int {
	switch sector {
	case models.SectorTechnology, models.SectorCommunication:
		return 15
	case models.SectorHealthcare:
		return 10
	default:
		return 5
	}
}

func regimePoints(momentum decimal.NullDecimal) int {
	if !momentum.Valid {
		return 5
	}
	m := momentum.Decimal
	switch {
	case m.GreaterThan(pct5):
		return 10
	case m.IsPositive():
		return 7
	case m.GreaterThan(pct5.Neg()):
		return 3
	default:
		return 0
	}
}

// MarketMomentum returns the percent change between the first and last
// close in bars, or null when there is not enough data
func MarketMomentum(bars []models.PriceBar) decimal.NullDecimal {
	if len(bars) < 2 {
		return decimal.NullDecimal{}
	}
	first, last := bars[0].Close, bars[len(bars)-1].Close
	if !first.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(last.Sub(first).Div(first).Mul(hundred))
}
