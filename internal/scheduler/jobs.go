package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/trogers1052/earnings-opportunity-service/internal/opportunity"
)

// Job names
const (
	ScanJobName   = "opportunity_scan"
	ExpiryJobName = "opportunity_expiry"
	PruneJobName  = "price_history_prune"
)

// Scanner is the part of the opportunity scanner the jobs drive
type Scanner interface {
	Scan(ctx context.Context, req opportunity.ScanRequest) (*opportunity.ScanResult, error)
	ExpireStale(ctx context.Context) (int64, error)
}

// PriceHistoryPruner deletes recorded closes
type PriceHistoryPruner interface {
	DeletePriceHistoryOlderThan(ctx context.Context, date time.Time) (int64, error)
}

// ScanJob runs a recent-mode scan for the configured holder
type ScanJob struct {
	scanner  Scanner
	schedule string
	log      zerolog.Logger
}

// NewScanJob creates a new ScanJob
func NewScanJob(scanner Scanner, schedule string, log zerolog.Logger) *ScanJob {
	return &ScanJob{scanner: scanner, schedule: schedule, log: log}
}

func (j *ScanJob) Name() string     { return ScanJobName }
func (j *ScanJob) Schedule() string { return j.schedule }

// Run executes one scan
func (j *ScanJob) Run(ctx context.Context) error {
	result, err := j.scanner.Scan(ctx, opportunity.ScanRequest{Mode: opportunity.ModeRecent})
	if err != nil {
		return err
	}
	for _, opp := range result.Created {
		j.log.Info().
			Str("ticker", opp.Ticker).
			Int("score", opp.Score).
			Str("entry_window", opp.EntryWindow).
			Msg("New opportunity")
	}
	return nil
}

// ExpiryJob expires pending opportunities whose entry window has closed
type ExpiryJob struct {
	scanner  Scanner
	schedule string
}

// NewExpiryJob creates a new ExpiryJob
func NewExpiryJob(scanner Scanner, schedule string) *ExpiryJob {
	return &ExpiryJob{scanner: scanner, schedule: schedule}
}

func (j *ExpiryJob) Name() string     { return ExpiryJobName }
func (j *ExpiryJob) Schedule() string { return j.schedule }

// Run executes the expiry
func (j *ExpiryJob) Run(ctx context.Context) error {
	_, err := j.scanner.ExpireStale(ctx)
	return err
}

// PruneJob drops recorded closes older than the retention period
type PruneJob struct {
	store     PriceHistoryPruner
	schedule  string
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewPruneJob creates a new PruneJob
func NewPruneJob(store PriceHistoryPruner, schedule string, retentionDays int, log zerolog.Logger) *PruneJob {
	return &PruneJob{
		store:     store,
		schedule:  schedule,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		log:       log,
	}
}

func (j *PruneJob) Name() string     { return PruneJobName }
func (j *PruneJob) Schedule() string { return j.schedule }

// Run executes the prune
func (j *PruneJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)
	n, err := j.store.DeletePriceHistoryOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune price history: %w", err)
	}
	if n > 0 {
		j.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Pruned price history")
	}
	return nil
}
