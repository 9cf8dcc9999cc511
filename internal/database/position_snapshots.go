package database

import (
	"context"
	"fmt"
	"time"

	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

// ReplacePositionSnapshots swaps a holder's stored positions for the given
// set in one transaction
func (db *DB) ReplacePositionSnapshots(ctx context.Context, holderID string, positions []*models.Position) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM position_snapshots WHERE holder_id = $1`, holderID); err != nil {
		return fmt.Errorf("failed to delete existing positions: %w", err)
	}

	insertQuery := `
		INSERT INTO position_snapshots (
			holder_id, instrument_id, account_class, quantity, cost_basis, average_cost,
			current_price, market_value, unrealized_pnl, unrealized_pnl_pct, realized_pnl,
			open_lots, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	now := time.Now()
	for _, p := range positions {
		err := tx.QueryRowContext(ctx, insertQuery,
			holderID, p.InstrumentID, p.AccountClass, p.Quantity, p.CostBasis, p.AverageCost,
			p.CurrentPrice, p.MarketValue, p.UnrealizedPnl, p.UnrealizedPnlPct, p.RealizedPnl,
			p.OpenLotCount, now, now,
		).Scan(&p.ID)
		if err != nil {
			return fmt.Errorf("failed to insert position %s: %w", p.InstrumentID, err)
		}
		p.HolderID = holderID
		p.CreatedAt = now
		p.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetPositionSnapshots returns a holder's stored positions
func (db *DB) GetPositionSnapshots(ctx context.Context, holderID string) ([]*models.Position, error) {
	query := `
		SELECT id, holder_id, instrument_id, account_class, quantity, cost_basis, average_cost,
		       current_price, market_value, unrealized_pnl, unrealized_pnl_pct, realized_pnl,
		       open_lots, created_at, updated_at
		FROM position_snapshots
		WHERE holder_id = $1
		ORDER BY instrument_id ASC, account_class ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, holderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get position snapshots: %w", err)
	}
	defer rows.Close()

	positions := []*models.Position{}
	for rows.Next() {
		var p models.Position
		err := rows.Scan(
			&p.ID, &p.HolderID, &p.InstrumentID, &p.AccountClass, &p.Quantity, &p.CostBasis, &p.AverageCost,
			&p.CurrentPrice, &p.MarketValue, &p.UnrealizedPnl, &p.UnrealizedPnlPct, &p.RealizedPnl,
			&p.OpenLotCount, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position snapshot: %w", err)
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}
