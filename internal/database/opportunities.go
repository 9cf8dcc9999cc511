package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

const opportunityColumns = `id, holder_id, ticker, earnings_date, reported_eps, estimated_eps,
		pre_earnings_close, post_earnings_close, current_price, drop_pct, eps_beat_pct,
		score, sector, raw_sector, market_cap, day1_change_pct, days_since_earnings,
		entry_window, entry_status, status, created_at, updated_at`

// OpportunityFilter narrows ListOpportunities. Empty fields match everything.
type OpportunityFilter struct {
	HolderID string
	Status   string
	Limit    int
}

// CreateOpportunity inserts a new opportunity. The natural key unique
// constraint makes a second insert return ErrDuplicateOpportunity, even
// when two scans race.
func (db *DB) CreateOpportunity(ctx context.Context, o *models.Opportunity) error {
	query := `
		INSERT INTO opportunities (
			holder_id, ticker, earnings_date, reported_eps, estimated_eps,
			pre_earnings_close, post_earnings_close, current_price, drop_pct, eps_beat_pct,
			score, sector, raw_sector, market_cap, day1_change_pct, days_since_earnings,
			entry_window, entry_status, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (holder_id, ticker, earnings_date) DO NOTHING
		RETURNING id
	`
	if o.Status == "" {
		o.Status = models.OpportunityPending
	}
	now := time.Now()

	err := db.conn.QueryRowContext(ctx, query,
		o.HolderID, o.Ticker, o.EarningsDate, o.ReportedEPS, o.EstimatedEPS,
		o.PreEarningsClose, o.PostEarningsClose, o.CurrentPrice, o.DropPct, o.EPSBeatPct,
		o.Score, o.Sector, nullString(o.RawSector), o.MarketCap, o.Day1ChangePct, o.DaysSinceEarnings,
		o.EntryWindow, o.EntryStatus, o.Status, now, now,
	).Scan(&o.ID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("%s on %s: %w", o.Ticker, o.EarningsDate.Format("2006-01-02"), ErrDuplicateOpportunity)
	}
	if err != nil {
		return fmt.Errorf("failed to create opportunity: %w", err)
	}
	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

// FindOpportunity returns the opportunity with the given natural key, or
// nil when there is none
func (db *DB) FindOpportunity(ctx context.Context, key models.OpportunityKey) (*models.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + `
		FROM opportunities
		WHERE holder_id = $1 AND ticker = $2 AND earnings_date = $3`

	o, err := scanOpportunity(db.conn.QueryRowContext(ctx, query, key.HolderID, key.Ticker, key.EarningsDate))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find opportunity: %w", err)
	}
	return o, nil
}

// GetOpportunityByID retrieves an opportunity by ID
func (db *DB) GetOpportunityByID(ctx context.Context, id int64) (*models.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE id = $1`

	o, err := scanOpportunity(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("opportunity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get opportunity: %w", err)
	}
	return o, nil
}

// UpdateOpportunityStatus sets the lifecycle status and returns the updated row
func (db *DB) UpdateOpportunityStatus(ctx context.Context, id int64, status string) (*models.Opportunity, error) {
	query := `
		UPDATE opportunities
		SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + opportunityColumns

	o, err := scanOpportunity(db.conn.QueryRowContext(ctx, query, id, status, time.Now()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("opportunity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update opportunity status: %w", err)
	}
	return o, nil
}

// RefreshOpportunityEntry rewrites the entry state of a pending opportunity.
// The natural key, score and lifecycle status are left as they are. Returns
// ErrNotFound when the row is missing or no longer pending.
func (db *DB) RefreshOpportunityEntry(ctx context.Context, id int64, entry models.OpportunityEntry) (*models.Opportunity, error) {
	query := `
		UPDATE opportunities
		SET current_price = $2, day1_change_pct = $3, days_since_earnings = $4,
			entry_window = $5, entry_status = $6, updated_at = $7
		WHERE id = $1 AND status = $8
		RETURNING ` + opportunityColumns

	o, err := scanOpportunity(db.conn.QueryRowContext(ctx, query, id,
		entry.CurrentPrice, entry.Day1ChangePct, entry.DaysSinceEarnings,
		entry.EntryWindow, entry.EntryStatus, time.Now(), models.OpportunityPending))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pending opportunity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refresh opportunity entry: %w", err)
	}
	return o, nil
}

// ListOpportunities returns opportunities with the highest score first
func (db *DB) ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]*models.Opportunity, error) {
	var conditions []string
	var args []interface{}

	if filter.HolderID != "" {
		args = append(args, filter.HolderID)
		conditions = append(conditions, fmt.Sprintf("holder_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + opportunityColumns + ` FROM opportunities`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY score DESC, earnings_date DESC, ticker ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	defer rows.Close()

	opps := []*models.Opportunity{}
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate opportunities: %w", err)
	}
	return opps, nil
}

// ExpireStaleOpportunities marks pending opportunities whose earnings date
// is before earnedBefore as expired
func (db *DB) ExpireStaleOpportunities(ctx context.Context, earnedBefore time.Time) (int64, error) {
	query := `
		UPDATE opportunities
		SET status = $1, updated_at = $2
		WHERE status = $3 AND earnings_date < $4
	`
	result, err := db.conn.ExecContext(ctx, query,
		models.OpportunityExpired, time.Now(), models.OpportunityPending, earnedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to expire opportunities: %w", err)
	}
	return result.RowsAffected()
}

func scanOpportunity(row rowScanner) (*models.Opportunity, error) {
	var o models.Opportunity
	var rawSector sql.NullString

	err := row.Scan(
		&o.ID, &o.HolderID, &o.Ticker, &o.EarningsDate, &o.ReportedEPS, &o.EstimatedEPS,
		&o.PreEarningsClose, &o.PostEarningsClose, &o.CurrentPrice, &o.DropPct, &o.EPSBeatPct,
		&o.Score, &o.Sector, &rawSector, &o.MarketCap, &o.Day1ChangePct, &o.DaysSinceEarnings,
		&o.EntryWindow, &o.EntryStatus, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.RawSector = rawSector.String
	return &o, nil
}
