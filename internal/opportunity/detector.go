// Package opportunity detects stocks that beat earnings estimates yet sold
// off after the report, and scores them as option entry candidates.
package opportunity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

// DefaultMinDropPct is the smallest post-earnings drop that qualifies
const DefaultMinDropPct = 10

// preEventBufferDays of history are fetched before the event so a
// pre-event close exists across weekends and holidays
const preEventBufferDays = 10

// day1BreakerPct is the continued day-1 decline past which the setup is skipped
var day1BreakerPct = decimal.NewFromInt(-5)

// ErrInsufficientHistory is returned when the price bars around the event
// are not available
var ErrInsufficientHistory = errors.New("insufficient price history around earnings event")

// Gateway is the market data feed the detector and scanner read from
type Gateway interface {
	// GetEarningsEvent returns the most recent earnings event, or nil when
	// the ticker has none
	GetEarningsEvent(ctx context.Context, ticker string) (*models.EarningsEvent, error)
	GetDailyHistory(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error)
	GetQuoteSnapshot(ctx context.Context, ticker string) (*models.QuoteSnapshot, error)
	GetIndexHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error)
	GetUpcomingEarnings(ctx context.Context, tickers []string, from, to time.Time) ([]models.EarningsEvent, error)
}

// BarRecorder stores daily bars fetched during detection
type BarRecorder interface {
	UpsertPriceBars(ctx context.Context, bars []models.PriceBar) error
}

// Detector applies the earnings beat plus price drop filter to one ticker
type Detector struct {
	gateway    Gateway
	recorder   BarRecorder
	minDropPct decimal.Decimal
	now        func() time.Time
	log        zerolog.Logger
}

// DetectorOption configures a Detector
type DetectorOption func(*Detector)

// WithMinDropPct sets the minimum absolute drop percentage
func WithMinDropPct(pct float64) DetectorOption {
	return func(d *Detector) {
		d.minDropPct = decimal.NewFromFloat(pct)
	}
}

// WithBarRecorder records every fetched price bar
func WithBarRecorder(r BarRecorder) DetectorOption {
	return func(d *Detector) {
		d.recorder = r
	}
}

// WithDetectorClock overrides the current time
func WithDetectorClock(now func() time.Time) DetectorOption {
	return func(d *Detector) {
		d.now = now
	}
}

// NewDetector creates a new Detector
func NewDetector(gateway Gateway, log zerolog.Logger, opts ...DetectorOption) *Detector {
	d := &Detector{
		gateway:    gateway,
		minDropPct: decimal.NewFromInt(DefaultMinDropPct),
		now:        time.Now,
		log:        log.With().Str("component", "opportunity_detector").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the opportunity for ticker, or nil when the pattern does
// not match. Errors mean the data needed to decide was unavailable.
// The returned opportunity is unscored and may carry the expired window;
// callers decide whether to keep it.
func (d *Detector) Detect(ctx context.Context, ticker string, lookbackDays int) (*models.Opportunity, error) {
	log := d.log.With().Str("ticker", ticker).Logger()

	event, err := d.gateway.GetEarningsEvent(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to get earnings event for %s: %w", ticker, err)
	}
	if event == nil || !event.Reported {
		log.Debug().Msg("No reported earnings event")
		return nil, nil
	}

	now := d.now().UTC()
	eventDate := truncateDay(event.Date)
	days := DaysSince(now, eventDate)
	if days < 0 || days > lookbackDays {
		log.Debug().Int("days_since_earnings", days).Msg("Earnings event outside lookback window")
		return nil, nil
	}

	// A zero estimate makes the beat percentage undefined
	if event.EstimatedEPS.IsZero() || event.ReportedEPS.LessThanOrEqual(event.EstimatedEPS) {
		log.Debug().
			Str("reported_eps", event.ReportedEPS.String()).
			Str("estimated_eps", event.EstimatedEPS.String()).
			Msg("No EPS beat")
		return nil, nil
	}

	bars, err := d.gateway.GetDailyHistory(ctx, ticker, eventDate.AddDate(0, 0, -preEventBufferDays), now)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history for %s: %w", ticker, err)
	}
	d.record(ctx, bars, log)

	preIdx, postIdx := eventCloses(bars, eventDate, event.Timing)
	if preIdx < 0 || postIdx < 0 {
		return nil, fmt.Errorf("%s on %s: %w", ticker, eventDate.Format("2006-01-02"), ErrInsufficientHistory)
	}
	pre, post := bars[preIdx].Close, bars[postIdx].Close
	if !pre.IsPositive() {
		return nil, fmt.Errorf("%s: non-positive pre-earnings close: %w", ticker, ErrInsufficientHistory)
	}

	dropPct := post.Sub(pre).Div(pre).Mul(hundred)
	if dropPct.GreaterThan(d.minDropPct.Neg()) {
		log.Debug().Str("drop_pct", dropPct.StringFixed(2)).Msg("Drop below threshold")
		return nil, nil
	}

	beatPct := event.ReportedEPS.Sub(event.EstimatedEPS).Div(event.EstimatedEPS.Abs()).Mul(hundred)

	quote, err := d.gateway.GetQuoteSnapshot(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", ticker, err)
	}
	if quote == nil {
		return nil, fmt.Errorf("no quote for %s", ticker)
	}

	opp := &models.Opportunity{
		Ticker:            ticker,
		EarningsDate:      eventDate,
		ReportedEPS:       event.ReportedEPS,
		EstimatedEPS:      event.EstimatedEPS,
		PreEarningsClose:  pre,
		PostEarningsClose: post,
		CurrentPrice:      quote.Price,
		DropPct:           dropPct.Round(4),
		EPSBeatPct:        beatPct.Round(4),
		Sector:            ClassifySector(quote.Sector),
		RawSector:         quote.Sector,
		MarketCap:         quote.MarketCap,
		DaysSinceEarnings: days,
		EntryWindow:       EntryWindowFor(days),
		EntryStatus:       models.EntryStatusPending,
		Status:            models.OpportunityPending,
	}
	if !opp.CurrentPrice.IsPositive() {
		opp.CurrentPrice = bars[len(bars)-1].Close
	}

	if days >= 1 && postIdx+1 < len(bars) && post.IsPositive() {
		day1 := bars[postIdx+1].Close
		change := day1.Sub(post).Div(post).Mul(hundred).Round(4)
		opp.Day1ChangePct = decimal.NewNullDecimal(change)
		opp.EntryStatus = EntryStatusFor(change)
	}

	log.Info().
		Str("drop_pct", opp.DropPct.StringFixed(2)).
		Str("eps_beat_pct", opp.EPSBeatPct.StringFixed(2)).
		Str("entry_window", opp.EntryWindow).
		Str("entry_status", opp.EntryStatus).
		Msg("Earnings drop detected")
	return opp, nil
}

func (d *Detector) record(ctx context.Context, bars []models.PriceBar, log zerolog.Logger) {
	if d.recorder == nil || len(bars) == 0 {
		return
	}
	if err := d.recorder.UpsertPriceBars(ctx, bars); err != nil {
		log.Warn().Err(err).Msg("Failed to record price bars")
	}
}

// eventCloses finds the last close before the report and the first close
// after it. For after-market reports the report day's own close is the
// pre-event close. Returns -1 for a close that is not in bars.
func eventCloses(bars []models.PriceBar, eventDate time.Time, timing string) (pre, post int) {
	pre, post = -1, -1
	afterMarket := timing == models.TimingAfterMarket
	for i, bar := range bars {
		day := truncateDay(bar.Date)
		isPre := day.Before(eventDate) || (afterMarket && day.Equal(eventDate))
		if isPre {
			pre = i
			continue
		}
		if post < 0 {
			post = i
		}
	}
	return pre, post
}

// EntryWindowFor classifies the days elapsed since the earnings report
func EntryWindowFor(daysSinceEarnings int) string {
	switch {
	case daysSinceEarnings <= 0:
		return models.EntryWindowWaitDay1
	case daysSinceEarnings <= 3:
		return models.EntryWindowOptimal
	case daysSinceEarnings <= 5:
		return models.EntryWindowLate
	default:
		return models.EntryWindowExpired
	}
}

// EntryStatusFor applies the day-1 circuit breaker
func EntryStatusFor(day1ChangePct decimal.Decimal) string {
	if day1ChangePct.LessThan(day1BreakerPct) {
		return models.EntryStatusSkip
	}
	return models.EntryStatusReady
}

// DaysSince returns the whole days elapsed from eventDate to now
func DaysSince(now, eventDate time.Time) int {
	const day = 24 * time.Hour
	d := now.Sub(truncateDay(eventDate))
	days := int(d / day)
	if d < 0 && d%day != 0 {
		days--
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
