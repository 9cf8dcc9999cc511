package opportunity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

// fixedNow is a Monday afternoon
var fixedNow = time.Date(2026, time.October, 19, 15, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// MockGateway serves canned market data
type MockGateway struct {
	mu        sync.Mutex
	events    map[string]*models.EarningsEvent
	bars      map[string][]models.PriceBar
	quotes    map[string]*models.QuoteSnapshot
	index     []models.PriceBar
	indexErr  error
	upcoming  []models.EarningsEvent
	failures  map[string]error
	delay     map[string]time.Duration
	historyTo map[string]time.Time
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		events:    make(map[string]*models.EarningsEvent),
		bars:      make(map[string][]models.PriceBar),
		quotes:    make(map[string]*models.QuoteSnapshot),
		failures:  make(map[string]error),
		delay:     make(map[string]time.Duration),
		historyTo: make(map[string]time.Time),
	}
}

func (m *MockGateway) GetEarningsEvent(ctx context.Context, ticker string) (*models.EarningsEvent, error) {
	m.mu.Lock()
	err, delay := m.failures[ticker], m.delay[ticker]
	event := m.events[ticker]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (m *MockGateway) GetDailyHistory(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyTo[ticker] = end
	var out []models.PriceBar
	for _, b := range m.bars[ticker] {
		if !b.Date.Before(start) && !b.Date.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MockGateway) GetQuoteSnapshot(ctx context.Context, ticker string) (*models.QuoteSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[ticker]
	if !ok {
		return nil, errors.New("quote not found")
	}
	return q, nil
}

func (m *MockGateway) GetIndexHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	if m.indexErr != nil {
		return nil, m.indexErr
	}
	return m.index, nil
}

func (m *MockGateway) GetUpcomingEarnings(ctx context.Context, tickers []string, from, to time.Time) ([]models.EarningsEvent, error) {
	return m.upcoming, nil
}

// addSetup registers a beat with a pre close of 100 the trading day before
// eventDate and the given closes from eventDate onwards
func (m *MockGateway) addSetup(ticker string, eventDate time.Time, reported, estimated string, closes ...string) {
	m.events[ticker] = &models.EarningsEvent{
		Ticker:       ticker,
		Date:         eventDate,
		ReportedEPS:  dec(reported),
		EstimatedEPS: dec(estimated),
		Timing:       models.TimingBeforeMarket,
		Reported:     true,
	}
	bars := []models.PriceBar{
		{Symbol: ticker, Date: eventDate.AddDate(0, 0, -3), Close: dec("101")},
		{Symbol: ticker, Date: eventDate.AddDate(0, 0, -1), Close: dec("100")},
	}
	for i, c := range closes {
		bars = append(bars, models.PriceBar{Symbol: ticker, Date: eventDate.AddDate(0, 0, i), Close: dec(c)})
	}
	m.bars[ticker] = bars
	m.quotes[ticker] = &models.QuoteSnapshot{
		Ticker:    ticker,
		Price:     dec(closes[len(closes)-1]),
		MarketCap: dec("600000000000"),
		Sector:    "Technology",
	}
}

// MockBarRecorder collects recorded bars
type MockBarRecorder struct {
	mu   sync.Mutex
	bars []models.PriceBar
	err  error
}

func (m *MockBarRecorder) UpsertPriceBars(ctx context.Context, bars []models.PriceBar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars = append(m.bars, bars...)
	return m.err
}

func newTestDetector(gw Gateway, opts ...DetectorOption) *Detector {
	opts = append([]DetectorOption{WithDetectorClock(clock)}, opts...)
	return NewDetector(gw, zerolog.Nop(), opts...)
}

func TestDetect_EarningsDrop(t *testing.T) {
	gw := NewMockGateway()
	// Reported Thursday, drop of 12%, then a mild day-1 decline
	gw.addSetup("NVDA", day(2026, 10, 15), "1.20", "1.00", "88", "85")
	recorder := &MockBarRecorder{}

	opp, err := newTestDetector(gw, WithBarRecorder(recorder)).Detect(context.Background(), "NVDA", 5)
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, "NVDA", opp.Ticker)
	assert.Equal(t, day(2026, 10, 15), opp.EarningsDate)
	assert.True(t, opp.PreEarningsClose.Equal(dec("100")))
	assert.True(t, opp.PostEarningsClose.Equal(dec("88")))
	assert.True(t, opp.DropPct.Equal(dec("-12")))
	assert.True(t, opp.EPSBeatPct.Equal(dec("20")))
	assert.Equal(t, 4, opp.DaysSinceEarnings)
	assert.Equal(t, models.EntryWindowLate, opp.EntryWindow)
	require.True(t, opp.Day1ChangePct.Valid)
	assert.Equal(t, "-3.4091", opp.Day1ChangePct.Decimal.String())
	assert.Equal(t, models.EntryStatusReady, opp.EntryStatus)
	assert.Equal(t, models.SectorTechnology, opp.Sector)
	assert.Equal(t, "Technology", opp.RawSector)
	assert.Equal(t, models.OpportunityPending, opp.Status)
	assert.True(t, opp.CurrentPrice.Equal(dec("85")))

	assert.Len(t, recorder.bars, 4)
}

func TestDetect_ExactlyTenPercentPasses(t *testing.T) {
	gw := NewMockGateway()
	gw.addSetup("AMD", day(2026, 10, 16), "2", "1.5", "90")

	opp, err := newTestDetector(gw).Detect(context.Background(), "AMD", 5)
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.True(t, opp.DropPct.Equal(dec("-10")))
}

func TestDetect_PatternMismatches(t *testing.T) {
	tests := []struct {
		name  string
		setup func(gw *MockGateway)
	}{
		{"no earnings event", func(gw *MockGateway) {}},
		{"drop too small", func(gw *MockGateway) {
			gw.addSetup("X", day(2026, 10, 16), "2", "1.5", "90.01")
		}},
		{"no beat", func(gw *MockGateway) {
			gw.addSetup("X", day(2026, 10, 16), "1.5", "1.5", "80")
		}},
		{"zero estimate", func(gw *MockGateway) {
			gw.addSetup("X", day(2026, 10, 16), "0.5", "0", "80")
		}},
		{"outside lookback", func(gw *MockGateway) {
			gw.addSetup("X", day(2026, 10, 5), "2", "1", "80")
		}},
		{"future event", func(gw *MockGateway) {
			gw.addSetup("X", day(2026, 10, 22), "2", "1", "80")
		}},
		{"not yet reported", func(gw *MockGateway) {
			gw.addSetup("X", day(2026, 10, 16), "2", "1", "80")
			gw.events["X"].Reported = false
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := NewMockGateway()
			tt.setup(gw)

			opp, err := newTestDetector(gw).Detect(context.Background(), "X", 5)
			require.NoError(t, err)
			assert.Nil(t, opp)
		})
	}
}

func TestDetect_DataUnavailable(t *testing.T) {
	t.Run("earnings fetch fails", func(t *testing.T) {
		gw := NewMockGateway()
		gw.failures["X"] = errors.New("503 service unavailable")

		_, err := newTestDetector(gw).Detect(context.Background(), "X", 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("no bars around event", func(t *testing.T) {
		gw := NewMockGateway()
		gw.addSetup("X", day(2026, 10, 16), "2", "1", "80")
		gw.bars["X"] = nil

		_, err := newTestDetector(gw).Detect(context.Background(), "X", 5)
		assert.ErrorIs(t, err, ErrInsufficientHistory)
	})

	t.Run("quote fails", func(t *testing.T) {
		gw := NewMockGateway()
		gw.addSetup("X", day(2026, 10, 16), "2", "1", "80")
		delete(gw.quotes, "X")

		_, err := newTestDetector(gw).Detect(context.Background(), "X", 5)
		require.Error(t, err)
	})
}

func TestDetect_AfterMarketUsesReportDayClose(t *testing.T) {
	gw := NewMockGateway()
	eventDate := day(2026, 10, 15)
	gw.addSetup("META", eventDate, "5", "4", "110", "95", "94")
	gw.events["META"].Timing = models.TimingAfterMarket

	opp, err := newTestDetector(gw).Detect(context.Background(), "META", 5)
	require.NoError(t, err)
	require.NotNil(t, opp)

	// 110 on the report day, 95 the next session
	assert.True(t, opp.PreEarningsClose.Equal(dec("110")))
	assert.True(t, opp.PostEarningsClose.Equal(dec("95")))
	require.True(t, opp.Day1ChangePct.Valid)
	assert.True(t, strings.HasPrefix(opp.Day1ChangePct.Decimal.String(), "-1.05"))
}

func TestDetect_DayOfReportWaitsForDay1(t *testing.T) {
	gw := NewMockGateway()
	gw.addSetup("CRM", day(2026, 10, 19), "3", "2", "85")

	opp, err := newTestDetector(gw).Detect(context.Background(), "CRM", 5)
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, 0, opp.DaysSinceEarnings)
	assert.Equal(t, models.EntryWindowWaitDay1, opp.EntryWindow)
	assert.Equal(t, models.EntryStatusPending, opp.EntryStatus)
	assert.False(t, opp.Day1ChangePct.Valid)
}

func TestDetect_Day1CircuitBreaker(t *testing.T) {
	gw := NewMockGateway()
	gw.addSetup("SNAP", day(2026, 10, 16), "0.2", "0.1", "80", "75")

	opp, err := newTestDetector(gw).Detect(context.Background(), "SNAP", 5)
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, models.EntryStatusSkip, opp.EntryStatus)
}

func TestDetect_ExpiredWindowIsClassified(t *testing.T) {
	gw := NewMockGateway()
	gw.addSetup("INTC", day(2026, 10, 13), "1", "0.5", "80", "81")

	opp, err := newTestDetector(gw).Detect(context.Background(), "INTC", 10)
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, 6, opp.DaysSinceEarnings)
	assert.Equal(t, models.EntryWindowExpired, opp.EntryWindow)
}

func TestEntryWindowFor(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{0, models.EntryWindowWaitDay1},
		{1, models.EntryWindowOptimal},
		{3, models.EntryWindowOptimal},
		{4, models.EntryWindowLate},
		{5, models.EntryWindowLate},
		{6, models.EntryWindowExpired},
		{30, models.EntryWindowExpired},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EntryWindowFor(tt.days), "days=%d", tt.days)
	}
}

func TestEntryStatusFor(t *testing.T) {
	assert.Equal(t, models.EntryStatusSkip, EntryStatusFor(dec("-5.01")))
	assert.Equal(t, models.EntryStatusReady, EntryStatusFor(dec("-4.99")))
	assert.Equal(t, models.EntryStatusReady, EntryStatusFor(dec("-5")))
	assert.Equal(t, models.EntryStatusReady, EntryStatusFor(decimal.NewFromInt(3)))
}

func TestDaysSince(t *testing.T) {
	assert.Equal(t, 0, DaysSince(fixedNow, day(2026, 10, 19)))
	assert.Equal(t, 1, DaysSince(fixedNow, day(2026, 10, 18)))
	assert.Equal(t, -1, DaysSince(fixedNow, day(2026, 10, 20)))
	assert.Equal(t, -2, DaysSince(fixedNow, day(2026, 10, 21)))
}
