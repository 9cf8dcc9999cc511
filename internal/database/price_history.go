package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

// UpsertPriceBars records daily closes, replacing existing rows for the
// same symbol and date
func (db *DB) UpsertPriceBars(ctx context.Context, bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_history (symbol, date, close, volume, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, date) DO UPDATE SET
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.Date, b.Close, b.Volume, now); err != nil {
			return fmt.Errorf("failed to upsert price bar for %s: %w", b.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetPriceBarsRange returns closes for a symbol within a date range, oldest first
func (db *DB) GetPriceBarsRange(ctx context.Context, symbol string, startDate, endDate time.Time) ([]models.PriceBar, error) {
	query := `
		SELECT symbol, date, close, volume
		FROM price_history
		WHERE symbol = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, symbol, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history range: %w", err)
	}
	defer rows.Close()

	bars := []models.PriceBar{}
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price bar: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// CurrentPrice returns the latest recorded close for a symbol
func (db *DB) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	query := `
		SELECT close
		FROM price_history
		WHERE symbol = $1
		ORDER BY date DESC
		LIMIT 1
	`
	var price decimal.Decimal
	err := db.conn.QueryRowContext(ctx, query, symbol).Scan(&price)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("no price history for %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get latest close: %w", err)
	}
	return price, nil
}

// DeletePriceHistoryOlderThan removes closes older than date
func (db *DB) DeletePriceHistoryOlderThan(ctx context.Context, date time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM price_history WHERE date < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old price history: %w", err)
	}
	return result.RowsAffected()
}
