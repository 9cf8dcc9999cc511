// Package marketdata fetches prices, earnings calendars and fundamentals
// from an EODHD compatible REST API.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 15 * time.Second
	DefaultRateLimit = 10 // requests per second
	DefaultExchange  = "US"

	// earningsLookback bounds the calendar query for the latest report
	earningsLookback = 120 * 24 * time.Hour
	dateLayout       = "2006-01-02"
)

// flexDecimal accepts numbers, numeric strings, null and "N/A"
type flexDecimal struct {
	decimal.NullDecimal
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" || s == "N/A" {
		f.Valid = false
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		f.Valid = false
		return nil
	}
	f.NullDecimal = decimal.NewNullDecimal(d)
	return nil
}

// Client talks to the market data provider
type Client struct {
	baseURL    string
	apiKey     string
	exchange   string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
	log        zerolog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log.With().Str("component", "marketdata").Logger()
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithExchange sets the suffix appended to bare tickers
func WithExchange(exchange string) ClientOption {
	return func(c *Client) {
		c.exchange = exchange
	}
}

// WithClock overrides the current time
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new market data client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		apiKey:   apiKey,
		exchange: DefaultExchange,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		now:     time.Now,
		log:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-200 response from the provider
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market data API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.log.Debug().Str("url", c.baseURL+path).Msg("Market data request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// symbol appends the exchange suffix to bare tickers
func (c *Client) symbol(ticker string) string {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if strings.Contains(ticker, ".") || c.exchange == "" {
		return ticker
	}
	return ticker + "." + c.exchange
}

// bareTicker strips the exchange suffix from a provider code
func bareTicker(code string) string {
	if i := strings.LastIndex(code, "."); i > 0 {
		return code[:i]
	}
	return code
}

type eodBarResponse struct {
	Date          string      `json:"date"`
	Close         flexDecimal `json:"close"`
	AdjustedClose flexDecimal `json:"adjusted_close"`
	Volume        int64       `json:"volume"`
}

// GetDailyHistory returns daily closes between start and end, oldest first
func (c *Client) GetDailyHistory(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error) {
	params := url.Values{}
	params.Set("period", "d")
	params.Set("order", "a")
	params.Set("from", start.Format(dateLayout))
	params.Set("to", end.Format(dateLayout))

	var bars []eodBarResponse
	if err := c.get(ctx, "/eod/"+c.symbol(ticker), params, &bars); err != nil {
		return nil, err
	}

	out := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		date, err := time.Parse(dateLayout, b.Date)
		if err != nil || !b.Close.Valid {
			continue
		}
		out = append(out, models.PriceBar{
			Symbol: strings.ToUpper(ticker),
			Date:   date,
			Close:  b.Close.Decimal,
			Volume: b.Volume,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// GetIndexHistory returns daily closes of a market index
func (c *Client) GetIndexHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	return c.GetDailyHistory(ctx, symbol, start, end)
}

type earningsCalendarResponse struct {
	Earnings []earningsEntry `json:"earnings"`
}

type earningsEntry struct {
	Code              string      `json:"code"`
	ReportDate        string      `json:"report_date"`
	BeforeAfterMarket string      `json:"before_after_market"`
	Actual            flexDecimal `json:"actual"`
	Estimate          flexDecimal `json:"estimate"`
}

func (e earningsEntry) toEvent() (models.EarningsEvent, bool) {
	date, err := time.Parse(dateLayout, e.ReportDate)
	if err != nil {
		return models.EarningsEvent{}, false
	}
	return models.EarningsEvent{
		Ticker:       bareTicker(e.Code),
		Date:         date,
		ReportedEPS:  e.Actual.Decimal,
		EstimatedEPS: e.Estimate.Decimal,
		Timing:       e.BeforeAfterMarket,
		Reported:     e.Actual.Valid && e.Estimate.Valid,
	}, true
}

func (c *Client) earningsCalendar(ctx context.Context, symbols []string, from, to time.Time) ([]models.EarningsEvent, error) {
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))
	params.Set("from", from.Format(dateLayout))
	params.Set("to", to.Format(dateLayout))

	var resp earningsCalendarResponse
	if err := c.get(ctx, "/calendar/earnings", params, &resp); err != nil {
		return nil, err
	}

	events := make([]models.EarningsEvent, 0, len(resp.Earnings))
	for _, e := range resp.Earnings {
		if event, ok := e.toEvent(); ok {
			events = append(events, event)
		}
	}
	return events, nil
}

// GetEarningsEvent returns the most recent reported earnings event, or nil
// when none is on the calendar
func (c *Client) GetEarningsEvent(ctx context.Context, ticker string) (*models.EarningsEvent, error) {
	now := c.now().UTC()
	events, err := c.earningsCalendar(ctx, []string{c.symbol(ticker)}, now.Add(-earningsLookback), now)
	if err != nil {
		return nil, err
	}

	var latest *models.EarningsEvent
	for i := range events {
		e := &events[i]
		if !e.Reported || e.Date.After(now) {
			continue
		}
		if latest == nil || e.Date.After(latest.Date) {
			latest = e
		}
	}
	if latest != nil {
		latest.Ticker = strings.ToUpper(ticker)
	}
	return latest, nil
}

// GetUpcomingEarnings returns scheduled reports for tickers between from and to
func (c *Client) GetUpcomingEarnings(ctx context.Context, tickers []string, from, to time.Time) ([]models.EarningsEvent, error) {
	if len(tickers) == 0 {
		return nil, nil
	}
	symbols := make([]string, len(tickers))
	for i, t := range tickers {
		symbols[i] = c.symbol(t)
	}
	return c.earningsCalendar(ctx, symbols, from, to)
}

type realTimeResponse struct {
	Code      string      `json:"code"`
	Timestamp int64       `json:"timestamp"`
	Close     flexDecimal `json:"close"`
}

type fundamentalsResponse struct {
	General struct {
		Sector string `json:"Sector"`
	} `json:"General"`
	Highlights struct {
		MarketCapitalization flexDecimal `json:"MarketCapitalization"`
	} `json:"Highlights"`
}

// GetQuoteSnapshot combines the real-time price with sector and market cap
func (c *Client) GetQuoteSnapshot(ctx context.Context, ticker string) (*models.QuoteSnapshot, error) {
	sym := c.symbol(ticker)

	var rt realTimeResponse
	if err := c.get(ctx, "/real-time/"+sym, nil, &rt); err != nil {
		return nil, err
	}
	if !rt.Close.Valid {
		return nil, fmt.Errorf("no real-time price for %s", sym)
	}

	var fund fundamentalsResponse
	params := url.Values{}
	params.Set("filter", "General,Highlights")
	if err := c.get(ctx, "/fundamentals/"+sym, params, &fund); err != nil {
		return nil, err
	}

	asOf := c.now().UTC()
	if rt.Timestamp > 0 {
		asOf = time.Unix(rt.Timestamp, 0).UTC()
	}

	return &models.QuoteSnapshot{
		Ticker:    strings.ToUpper(ticker),
		Price:     rt.Close.Decimal,
		MarketCap: fund.Highlights.MarketCapitalization.Decimal,
		Sector:    fund.General.Sector,
		AsOf:      asOf,
	}, nil
}
