package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/earnings-opportunity-service/internal/database"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
	"github.com/trogers1052/earnings-opportunity-service/internal/opportunity"
)

type MockPositionService struct {
	summary    *models.PortfolioSummary
	realized   []models.RealizedLot
	err        error
	lastHolder string
	lastFilter models.TransactionFilter
}

func (m *MockPositionService) AggregatePositions(_ context.Context, holderID string) (*models.PortfolioSummary, error) {
	m.lastHolder = holderID
	return m.summary, m.err
}

func (m *MockPositionService) RealizedLots(_ context.Context, holderID string, filter models.TransactionFilter) ([]models.RealizedLot, error) {
	m.lastHolder = holderID
	m.lastFilter = filter
	return m.realized, m.err
}

type MockScanService struct {
	result    *opportunity.ScanResult
	scanErr   error
	lastReq   opportunity.ScanRequest
	updated   map[int64]*models.Opportunity
	updateErr error
}

func (m *MockScanService) Scan(_ context.Context, req opportunity.ScanRequest) (*opportunity.ScanResult, error) {
	m.lastReq = req
	return m.result, m.scanErr
}

func (m *MockScanService) UpdateStatus(_ context.Context, id int64, status string) (*models.Opportunity, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	if !models.ValidOpportunityStatus(status) {
		return nil, fmt.Errorf("%w: %q", opportunity.ErrInvalidStatus, status)
	}
	opp, ok := m.updated[id]
	if !ok {
		return nil, fmt.Errorf("opportunity %d: %w", id, database.ErrNotFound)
	}
	opp.Status = status
	return opp, nil
}

type MockOpportunityLister struct {
	opps       []*models.Opportunity
	lastFilter database.OpportunityFilter
}

func (m *MockOpportunityLister) ListOpportunities(_ context.Context, filter database.OpportunityFilter) ([]*models.Opportunity, error) {
	m.lastFilter = filter
	return m.opps, nil
}

type MockPinger struct{ err error }

func (m MockPinger) Ping(context.Context) error { return m.err }

type testServer struct {
	positions *MockPositionService
	scanner   *MockScanService
	lister    *MockOpportunityLister
	router    http.Handler
}

func newTestServer(pinger Pinger) *testServer {
	ts := &testServer{
		positions: &MockPositionService{},
		scanner:   &MockScanService{updated: map[int64]*models.Opportunity{}},
		lister:    &MockOpportunityLister{},
	}
	handler := NewHandler(ts.positions, ts.scanner, ts.lister, pinger, zerolog.New(io.Discard))
	ts.router = SetupRoutes(handler)
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	rec := newTestServer(MockPinger{}).do("GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = newTestServer(MockPinger{err: errors.New("connection refused")}).do("GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func TestGetPositions(t *testing.T) {
	ts := newTestServer(nil)
	ts.positions.summary = &models.PortfolioSummary{
		HolderID: "holder-1",
		Positions: []*models.Position{{
			InstrumentID: "AAPL",
			AccountClass: models.AccountTaxable,
			Quantity:     decimal.NewFromInt(5),
			CostBasis:    decimal.NewFromInt(600),
			AverageCost:  decimal.NewNullDecimal(decimal.NewFromInt(120)),
		}},
		Totals: models.PortfolioTotals{CostBasis: decimal.NewFromInt(600), PositionCount: 1, UnpricedCount: 1},
	}

	rec := ts.do("GET", "/api/v1/holders/holder-1/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "holder-1", ts.positions.lastHolder)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	positions := body["positions"].([]interface{})
	require.Len(t, positions, 1)
	first := positions[0].(map[string]interface{})
	assert.Equal(t, "AAPL", first["instrument_id"])
	assert.Equal(t, "120", first["average_cost"])
	assert.Nil(t, first["market_value"], "unpriced value must serialize as null")
}

func TestGetPositions_Error(t *testing.T) {
	ts := newTestServer(nil)
	ts.positions.err = errors.New("failed to load transactions")

	rec := ts.do("GET", "/api/v1/holders/holder-1/positions", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetRealizedLots(t *testing.T) {
	ts := newTestServer(nil)
	ts.positions.realized = []models.RealizedLot{{BuyTransactionID: 1, SellTransactionID: 3, RealizedPnl: decimal.NewFromInt(300)}}

	rec := ts.do("GET", "/api/v1/holders/holder-1/realized?instrument=AAPL&account=tax-deferred", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", ts.positions.lastFilter.InstrumentID)
	assert.Equal(t, models.AccountTaxDeferred, ts.positions.lastFilter.AccountClass)
	assert.Contains(t, rec.Body.String(), `"realized_pnl":"300"`)

	rec = ts.do("GET", "/api/v1/holders/holder-1/realized?account=margin", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunScan(t *testing.T) {
	t.Run("decodes the request", func(t *testing.T) {
		ts := newTestServer(nil)
		ts.scanner.result = &opportunity.ScanResult{Mode: opportunity.ModeUpcoming, Scanned: 3}

		rec := ts.do("POST", "/api/v1/scans", `{"mode":"upcoming","window_days":7}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, opportunity.ModeUpcoming, ts.scanner.lastReq.Mode)
		assert.Equal(t, 7, ts.scanner.lastReq.WindowDays)
		assert.Contains(t, rec.Body.String(), `"scanned":3`)
	})

	t.Run("empty body uses defaults", func(t *testing.T) {
		ts := newTestServer(nil)
		ts.scanner.result = &opportunity.ScanResult{Mode: opportunity.ModeRecent}

		rec := ts.do("POST", "/api/v1/scans", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, opportunity.ScanRequest{}, ts.scanner.lastReq)
	})

	t.Run("empty chunked body uses defaults", func(t *testing.T) {
		ts := newTestServer(nil)
		ts.scanner.result = &opportunity.ScanResult{Mode: opportunity.ModeRecent}

		req := httptest.NewRequest("POST", "/api/v1/scans", strings.NewReader(""))
		req.ContentLength = -1
		req.TransferEncoding = []string{"chunked"}
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, opportunity.ScanRequest{}, ts.scanner.lastReq)
	})

	t.Run("chunked body is decoded", func(t *testing.T) {
		ts := newTestServer(nil)
		ts.scanner.result = &opportunity.ScanResult{Mode: opportunity.ModeRecent}

		req := httptest.NewRequest("POST", "/api/v1/scans", strings.NewReader(`{"min_score":60}`))
		req.ContentLength = -1
		req.TransferEncoding = []string{"chunked"}
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 60, ts.scanner.lastReq.MinScore)
	})

	t.Run("invalid mode", func(t *testing.T) {
		ts := newTestServer(nil)
		ts.scanner.scanErr = fmt.Errorf("%w: %q", opportunity.ErrInvalidMode, "sideways")

		rec := ts.do("POST", "/api/v1/scans", `{"mode":"sideways"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := newTestServer(nil).do("POST", "/api/v1/scans", `{"mode":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("persistence failure", func(t *testing.T) {
		ts := newTestServer(nil)
		ts.scanner.scanErr = errors.New("failed to create opportunity: connection refused")

		rec := ts.do("POST", "/api/v1/scans", `{}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestListOpportunities(t *testing.T) {
	ts := newTestServer(nil)
	ts.lister.opps = []*models.Opportunity{{ID: 1, Ticker: "NVDA", Score: 100}}

	rec := ts.do("GET", "/api/v1/opportunities?holder=holder-1&status=pending&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, database.OpportunityFilter{HolderID: "holder-1", Status: "pending", Limit: 10}, ts.lister.lastFilter)
	assert.Contains(t, rec.Body.String(), `"ticker":"NVDA"`)

	assert.Equal(t, http.StatusBadRequest, ts.do("GET", "/api/v1/opportunities?status=archived", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do("GET", "/api/v1/opportunities?limit=-1", "").Code)
}

func TestUpdateOpportunityStatus(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"dismiss", "/api/v1/opportunities/7", `{"status":"dismissed"}`, http.StatusOK},
		{"unknown status", "/api/v1/opportunities/7", `{"status":"archived"}`, http.StatusBadRequest},
		{"missing opportunity", "/api/v1/opportunities/8", `{"status":"traded"}`, http.StatusNotFound},
		{"malformed body", "/api/v1/opportunities/7", `status=traded`, http.StatusBadRequest},
		{"non-numeric id", "/api/v1/opportunities/abc", `{"status":"traded"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(nil)
			ts.scanner.updated[7] = &models.Opportunity{ID: 7, Ticker: "NVDA", Status: models.OpportunityPending}

			rec := ts.do("PATCH", tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"status":"dismissed"`)
			}
		})
	}
}
