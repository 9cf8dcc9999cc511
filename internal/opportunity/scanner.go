package opportunity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/earnings-opportunity-service/internal/database"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
	"golang.org/x/sync/errgroup"
)

// Scan modes
const (
	ModeRecent   = "recent"
	ModeUpcoming = "upcoming"
)

// lateWindowDays is the last day an opportunity can still be entered
const lateWindowDays = 5

var (
	// ErrInvalidMode is returned for an unknown scan mode
	ErrInvalidMode = errors.New("invalid scan mode")
	// ErrInvalidStatus is returned for an unknown lifecycle status
	ErrInvalidStatus = errors.New("invalid opportunity status")
)

// UniverseSource supplies the tickers to scan
type UniverseSource interface {
	Tickers(ctx context.Context) ([]string, error)
}

// StaticUniverse is a fixed ticker list
type StaticUniverse []string

// Tickers implements UniverseSource
func (u StaticUniverse) Tickers(ctx context.Context) ([]string, error) {
	return []string(u), nil
}

// OpportunityStore is the persistence the scanner needs. FindOpportunity
// returns nil when no row matches; CreateOpportunity returns
// database.ErrDuplicateOpportunity on a natural key collision.
type OpportunityStore interface {
	FindOpportunity(ctx context.Context, key models.OpportunityKey) (*models.Opportunity, error)
	CreateOpportunity(ctx context.Context, opp *models.Opportunity) error
	UpdateOpportunityStatus(ctx context.Context, id int64, status string) (*models.Opportunity, error)
	RefreshOpportunityEntry(ctx context.Context, id int64, entry models.OpportunityEntry) (*models.Opportunity, error)
	ExpireStaleOpportunities(ctx context.Context, earnedBefore time.Time) (int64, error)
}

// Publisher announces opportunity changes
type Publisher interface {
	PublishOpportunityDetected(ctx context.Context, opp *models.Opportunity) error
	PublishOpportunityStatusChanged(ctx context.Context, opp *models.Opportunity) error
}

// ScannerConfig tunes a Scanner
type ScannerConfig struct {
	HolderID      string
	IndexSymbol   string
	LookbackDays  int
	MinScore      int
	Concurrency   int
	TickerTimeout time.Duration
}

// ScanRequest parameterizes one scan. Zero values fall back to the
// scanner configuration.
type ScanRequest struct {
	HolderID   string `json:"holder_id"`
	Mode       string `json:"mode"`
	WindowDays int    `json:"window_days"`
	MinScore   int    `json:"min_score"`
}

// ScanResult summarizes a scan
type ScanResult struct {
	Mode              string                    `json:"mode"`
	HolderID          string                    `json:"holder_id"`
	Scanned           int                       `json:"scanned"`
	Created           []*models.Opportunity     `json:"created"`
	Refreshed         []*models.Opportunity     `json:"refreshed"`
	Upcoming          []models.UpcomingEarnings `json:"upcoming,omitempty"`
	Duplicates        int                       `json:"duplicates"`
	BelowMinScore     int                       `json:"below_min_score"`
	Expired           int                       `json:"expired"`
	Failed            int                       `json:"failed"`
	MarketMomentumPct decimal.NullDecimal       `json:"market_momentum_pct"`
	StartedAt         time.Time                 `json:"started_at"`
	FinishedAt        time.Time                 `json:"finished_at"`
}

// Scanner runs the detector over the ticker universe and stores new
// opportunities exactly once per natural key
type Scanner struct {
	cfg       ScannerConfig
	gateway   Gateway
	detector  *Detector
	universe  UniverseSource
	store     OpportunityStore
	publisher Publisher
	now       func() time.Time
	log       zerolog.Logger
}

// ScannerOption configures a Scanner
type ScannerOption func(*Scanner)

// WithPublisher publishes created opportunities and status changes
func WithPublisher(p Publisher) ScannerOption {
	return func(s *Scanner) {
		s.publisher = p
	}
}

// WithScannerClock overrides the current time
func WithScannerClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) {
		s.now = now
	}
}

// NewScanner creates a new Scanner
func NewScanner(cfg ScannerConfig, gateway Gateway, detector *Detector, universe UniverseSource, store OpportunityStore, log zerolog.Logger, opts ...ScannerOption) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = lateWindowDays
	}
	s := &Scanner{
		cfg:      cfg,
		gateway:  gateway,
		detector: detector,
		universe: universe,
		store:    store,
		now:      time.Now,
		log:      log.With().Str("component", "opportunity_scanner").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan runs one scan. Per-ticker failures are counted and skipped; only
// universe or persistence failures abort the scan.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if req.Mode == "" {
		req.Mode = ModeRecent
	}
	if req.HolderID == "" {
		req.HolderID = s.cfg.HolderID
	}
	if req.WindowDays <= 0 {
		req.WindowDays = s.cfg.LookbackDays
	}
	if req.MinScore <= 0 {
		req.MinScore = s.cfg.MinScore
	}

	tickers, err := s.universe.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load scan universe: %w", err)
	}
	tickers = normalizeTickers(tickers)

	result := &ScanResult{
		Mode:      req.Mode,
		HolderID:  req.HolderID,
		Scanned:   len(tickers),
		Created:   []*models.Opportunity{},
		Refreshed: []*models.Opportunity{},
		StartedAt: s.now(),
	}

	switch req.Mode {
	case ModeRecent:
		err = s.scanRecent(ctx, req, tickers, result)
	case ModeUpcoming:
		err = s.scanUpcoming(ctx, req, tickers, result)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
	result.FinishedAt = s.now()
	if err != nil {
		return result, err
	}

	s.log.Info().
		Str("mode", result.Mode).
		Str("holder_id", result.HolderID).
		Int("scanned", result.Scanned).
		Int("created", len(result.Created)).
		Int("refreshed", len(result.Refreshed)).
		Int("upcoming", len(result.Upcoming)).
		Int("duplicates", result.Duplicates).
		Int("below_min_score", result.BelowMinScore).
		Int("expired", result.Expired).
		Int("failed", result.Failed).
		Dur("took", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Scan complete")
	return result, nil
}

func (s *Scanner) scanRecent(ctx context.Context, req ScanRequest, tickers []string, result *ScanResult) error {
	result.MarketMomentumPct = s.marketMomentum(ctx)

	candidates := make([]*models.Opportunity, len(tickers))
	var failed atomic.Int64

	// Tickers are independent: a failure is recorded and never cancels
	// the rest of the batch
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			tctx := ctx
			if s.cfg.TickerTimeout > 0 {
				var cancel context.CancelFunc
				tctx, cancel = context.WithTimeout(ctx, s.cfg.TickerTimeout)
				defer cancel()
			}
			opp, err := s.detector.Detect(tctx, ticker, req.WindowDays)
			if err != nil {
				failed.Add(1)
				s.log.Debug().Err(err).Str("ticker", ticker).Msg("Skipping ticker")
				return nil
			}
			candidates[i] = opp
			return nil
		})
	}
	_ = g.Wait()
	result.Failed = int(failed.Load())

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scan cancelled: %w", err)
	}

	for _, opp := range candidates {
		if opp == nil {
			continue
		}
		if opp.EntryWindow == models.EntryWindowExpired {
			result.Expired++
			continue
		}

		opp.HolderID = req.HolderID
		opp.Score = Score(Factors{
			DropPct:           opp.DropPct,
			EPSBeatPct:        opp.EPSBeatPct,
			MarketCap:         opp.MarketCap,
			Sector:            opp.Sector,
			MarketMomentumPct: result.MarketMomentumPct,
		})

		outcome, stored, err := s.persist(ctx, opp, req.MinScore)
		if err != nil {
			return err
		}
		switch outcome {
		case outcomeCreated:
			result.Created = append(result.Created, stored)
		case outcomeRefreshed:
			result.Refreshed = append(result.Refreshed, stored)
		case outcomeBelowMinScore:
			result.BelowMinScore++
		default:
			result.Duplicates++
		}
	}

	sort.SliceStable(result.Created, func(i, j int) bool {
		a, b := result.Created[i], result.Created[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.DropPct.LessThan(b.DropPct)
	})
	return nil
}

type persistOutcome int

const (
	outcomeDuplicate persistOutcome = iota
	outcomeCreated
	outcomeRefreshed
	outcomeBelowMinScore
)

// persist stores opp unless its natural key already exists. A stored row
// that is still pending takes the fresh entry state, so the day-1 breaker
// applies to rows first seen on the report day. The score gate only guards
// new rows. The unique constraint in the store is the final word when
// scans race.
func (s *Scanner) persist(ctx context.Context, opp *models.Opportunity, minScore int) (persistOutcome, *models.Opportunity, error) {
	log := s.log.With().Str("ticker", opp.Ticker).Time("earnings_date", opp.EarningsDate).Logger()

	existing, err := s.store.FindOpportunity(ctx, opp.Key())
	if err != nil {
		return 0, nil, fmt.Errorf("failed to look up opportunity %s: %w", opp.Ticker, err)
	}
	if existing != nil {
		return s.refresh(ctx, existing, opp, log)
	}

	if opp.Score < minScore {
		return outcomeBelowMinScore, nil, nil
	}

	if err := s.store.CreateOpportunity(ctx, opp); err != nil {
		if errors.Is(err, database.ErrDuplicateOpportunity) {
			log.Debug().Msg("Opportunity recorded concurrently")
			return outcomeDuplicate, nil, nil
		}
		return 0, nil, fmt.Errorf("failed to create opportunity %s: %w", opp.Ticker, err)
	}

	log.Info().Int64("id", opp.ID).Int("score", opp.Score).Msg("Opportunity created")
	if s.publisher != nil {
		if err := s.publisher.PublishOpportunityDetected(ctx, opp); err != nil {
			log.Warn().Err(err).Msg("Failed to publish opportunity")
		}
	}
	return outcomeCreated, opp, nil
}

func (s *Scanner) refresh(ctx context.Context, existing, fresh *models.Opportunity, log zerolog.Logger) (persistOutcome, *models.Opportunity, error) {
	entry := fresh.Entry()
	if existing.Status != models.OpportunityPending || existing.Entry().Equal(entry) {
		log.Debug().Int64("id", existing.ID).Str("status", existing.Status).Msg("Opportunity already recorded")
		return outcomeDuplicate, nil, nil
	}

	updated, err := s.store.RefreshOpportunityEntry(ctx, existing.ID, entry)
	if errors.Is(err, database.ErrNotFound) {
		log.Debug().Int64("id", existing.ID).Msg("Opportunity left pending concurrently")
		return outcomeDuplicate, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to refresh opportunity %s: %w", fresh.Ticker, err)
	}

	log.Info().
		Int64("id", updated.ID).
		Str("entry_window", updated.EntryWindow).
		Str("entry_status", updated.EntryStatus).
		Msg("Opportunity entry refreshed")
	return outcomeRefreshed, updated, nil
}

func (s *Scanner) scanUpcoming(ctx context.Context, req ScanRequest, tickers []string, result *ScanResult) error {
	today := truncateDay(s.now())
	until := today.AddDate(0, 0, req.WindowDays)

	events, err := s.gateway.GetUpcomingEarnings(ctx, tickers, today, until)
	if err != nil {
		return fmt.Errorf("failed to get upcoming earnings: %w", err)
	}

	inUniverse := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		inUniverse[t] = true
	}

	result.Upcoming = []models.UpcomingEarnings{}
	for _, e := range events {
		ticker := strings.ToUpper(e.Ticker)
		date := truncateDay(e.Date)
		if !inUniverse[ticker] || date.Before(today) || date.After(until) {
			continue
		}
		result.Upcoming = append(result.Upcoming, models.UpcomingEarnings{
			Ticker:       ticker,
			Date:         date,
			EstimatedEPS: e.EstimatedEPS,
			Timing:       e.Timing,
			DaysUntil:    int(date.Sub(today) / (24 * time.Hour)),
		})
	}

	sort.SliceStable(result.Upcoming, func(i, j int) bool {
		a, b := result.Upcoming[i], result.Upcoming[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Ticker < b.Ticker
	})
	return nil
}

// marketMomentum fetches the index once per scan. Missing data scores as
// a neutral regime.
func (s *Scanner) marketMomentum(ctx context.Context) decimal.NullDecimal {
	if s.cfg.IndexSymbol == "" {
		return decimal.NullDecimal{}
	}
	now := s.now()
	bars, err := s.gateway.GetIndexHistory(ctx, s.cfg.IndexSymbol, now.AddDate(0, 0, -MomentumDays), now)
	if err != nil {
		s.log.Warn().Err(err).Str("index", s.cfg.IndexSymbol).Msg("Index history unavailable, using neutral regime")
		return decimal.NullDecimal{}
	}
	momentum := MarketMomentum(bars)
	if momentum.Valid {
		s.log.Debug().Str("momentum_pct", momentum.Decimal.StringFixed(2)).Msg("Market regime")
	}
	return momentum
}

// UpdateStatus moves an opportunity to a new lifecycle status
func (s *Scanner) UpdateStatus(ctx context.Context, id int64, status string) (*models.Opportunity, error) {
	if !models.ValidOpportunityStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	opp, err := s.store.UpdateOpportunityStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if s.publisher != nil {
		if err := s.publisher.PublishOpportunityStatusChanged(ctx, opp); err != nil {
			s.log.Warn().Err(err).Int64("id", id).Msg("Failed to publish status change")
		}
	}
	return opp, nil
}

// ExpireStale marks pending opportunities whose entry window has closed
// as expired and returns how many changed
func (s *Scanner) ExpireStale(ctx context.Context) (int64, error) {
	cutoff := truncateDay(s.now()).AddDate(0, 0, -lateWindowDays)
	n, err := s.store.ExpireStaleOpportunities(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire opportunities: %w", err)
	}
	if n > 0 {
		s.log.Info().Int64("expired", n).Time("cutoff", cutoff).Msg("Expired stale opportunities")
	}
	return n, nil
}

func normalizeTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
