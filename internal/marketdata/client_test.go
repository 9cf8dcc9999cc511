package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

var testNow = time.Date(2026, time.October, 19, 15, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000), WithClock(func() time.Time { return testNow }))
}

func TestGetDailyHistory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/eod/NVDA.US", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_token"))
		assert.Equal(t, "2026-10-01", r.URL.Query().Get("from"))
		assert.Equal(t, "2026-10-19", r.URL.Query().Get("to"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"date":"2026-10-16","open":90,"close":"88.5","adjusted_close":88.5,"volume":1200},
			{"date":"2026-10-15","open":101,"close":100.25,"adjusted_close":100.25,"volume":900},
			{"date":"bad-date","close":1},
			{"date":"2026-10-14","close":null}
		]`))
	})

	bars, err := client.GetDailyHistory(context.Background(), "nvda", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), testNow)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "NVDA", bars[0].Symbol)
	assert.Equal(t, "2026-10-15", bars[0].Date.Format(dateLayout))
	assert.Equal(t, "100.25", bars[0].Close.String())
	assert.Equal(t, "88.5", bars[1].Close.String())
	assert.Equal(t, int64(1200), bars[1].Volume)
}

func TestGetIndexHistory_KeepsExchangeSuffix(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/eod/GSPC.INDX", r.URL.Path)
		w.Write([]byte(`[]`))
	})

	bars, err := client.GetIndexHistory(context.Background(), "GSPC.INDX", testNow.AddDate(0, 0, -30), testNow)
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestGetEarningsEvent_PicksLatestReported(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calendar/earnings", r.URL.Path)
		assert.Equal(t, "AAPL.US", r.URL.Query().Get("symbols"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"type": "Earnings",
			"earnings": []map[string]interface{}{
				{"code": "AAPL.US", "report_date": "2026-07-30", "before_after_market": "AfterMarket", "actual": 1.4, "estimate": 1.35},
				{"code": "AAPL.US", "report_date": "2026-10-16", "before_after_market": "AfterMarket", "actual": 1.64, "estimate": "1.60"},
				{"code": "AAPL.US", "report_date": "2026-10-17", "before_after_market": "BeforeMarket", "actual": nil, "estimate": 1.7},
			},
		})
	})

	event, err := client.GetEarningsEvent(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, "AAPL", event.Ticker)
	assert.Equal(t, "2026-10-16", event.Date.Format(dateLayout))
	assert.Equal(t, "1.64", event.ReportedEPS.String())
	assert.Equal(t, "1.6", event.EstimatedEPS.String())
	assert.Equal(t, models.TimingAfterMarket, event.Timing)
	assert.True(t, event.Reported)
}

func TestGetEarningsEvent_NoneOnCalendar(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"Earnings","earnings":[]}`))
	})

	event, err := client.GetEarningsEvent(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestGetUpcomingEarnings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MSFT.US,AAPL.US", r.URL.Query().Get("symbols"))
		w.Write([]byte(`{"earnings":[
			{"code":"MSFT.US","report_date":"2026-10-23","before_after_market":"AfterMarket","actual":null,"estimate":3.1},
			{"code":"AAPL.US","report_date":"2026-10-29","actual":"N/A","estimate":null}
		]}`))
	})

	events, err := client.GetUpcomingEarnings(context.Background(), []string{"MSFT", "AAPL"}, testNow, testNow.AddDate(0, 0, 14))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "MSFT", events[0].Ticker)
	assert.False(t, events[0].Reported)
	assert.Equal(t, "3.1", events[0].EstimatedEPS.String())
	assert.Equal(t, "AAPL", events[1].Ticker)
}

func TestGetQuoteSnapshot(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/real-time/NVDA.US":
			w.Write([]byte(`{"code":"NVDA.US","timestamp":1792339200,"close":131.42}`))
		case "/fundamentals/NVDA.US":
			assert.Equal(t, "General,Highlights", r.URL.Query().Get("filter"))
			w.Write([]byte(`{"General":{"Sector":"Technology"},"Highlights":{"MarketCapitalization":3.2e12}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	quote, err := client.GetQuoteSnapshot(context.Background(), "NVDA")
	require.NoError(t, err)

	assert.Equal(t, "NVDA", quote.Ticker)
	assert.Equal(t, "131.42", quote.Price.String())
	assert.Equal(t, "3200000000000", quote.MarketCap.String())
	assert.Equal(t, "Technology", quote.Sector)
	assert.Equal(t, time.Unix(1792339200, 0).UTC(), quote.AsOf)
}

func TestGetQuoteSnapshot_MissingPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"XYZ.US","close":"NA"}`))
	})

	_, err := client.GetQuoteSnapshot(context.Background(), "XYZ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no real-time price")
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte("You exceeded your daily API requests limit"))
	})

	_, err := client.GetDailyHistory(context.Background(), "AAPL", testNow, testNow)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
	assert.Equal(t, "/eod/AAPL.US", apiErr.Endpoint)
	assert.Contains(t, apiErr.Message, "daily API requests limit")
}

func TestContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetDailyHistory(ctx, "AAPL", testNow, testNow)
	require.Error(t, err)
}

func TestFlexDecimal(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
		want  string
	}{
		{`12.5`, true, "12.5"},
		{`"12.5"`, true, "12.5"},
		{`1.5e3`, true, "1500"},
		{`null`, false, ""},
		{`"N/A"`, false, ""},
		{`""`, false, ""},
		{`"abc"`, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var f flexDecimal
			require.NoError(t, json.Unmarshal([]byte(tt.in), &f))
			assert.Equal(t, tt.valid, f.Valid)
			if tt.valid {
				assert.Equal(t, tt.want, f.Decimal.String())
			}
		})
	}
}
