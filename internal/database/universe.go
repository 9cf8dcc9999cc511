package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

// AddUniverseTicker adds a symbol to the scan universe, or updates it
func (db *DB) AddUniverseTicker(ctx context.Context, u *models.UniverseTicker) error {
	query := `
		INSERT INTO scan_universe (symbol, enabled, notes, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			notes = EXCLUDED.notes
	`
	u.Symbol = strings.ToUpper(strings.TrimSpace(u.Symbol))
	now := time.Now()
	if _, err := db.conn.ExecContext(ctx, query, u.Symbol, u.Enabled, nullString(u.Notes), now); err != nil {
		return fmt.Errorf("failed to add universe ticker: %w", err)
	}
	u.AddedAt = now
	return nil
}

// SeedUniverse inserts symbols that are not yet in the universe and
// returns how many were added
func (db *DB) SeedUniverse(ctx context.Context, symbols []string) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scan_universe (symbol, enabled, added_at)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (symbol) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	added := 0
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		result, err := stmt.ExecContext(ctx, s, now)
		if err != nil {
			return 0, fmt.Errorf("failed to seed %s: %w", s, err)
		}
		n, _ := result.RowsAffected()
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return added, nil
}

// SetUniverseTickerEnabled enables or disables a symbol
func (db *DB) SetUniverseTickerEnabled(ctx context.Context, symbol string, enabled bool) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE scan_universe SET enabled = $2 WHERE symbol = $1`, strings.ToUpper(symbol), enabled)
	if err != nil {
		return fmt.Errorf("failed to update universe ticker: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("universe ticker %s: %w", symbol, ErrNotFound)
	}
	return nil
}

// GetUniverse returns the scan universe ordered by symbol
func (db *DB) GetUniverse(ctx context.Context, enabledOnly bool) ([]models.UniverseTicker, error) {
	query := `SELECT symbol, enabled, notes, added_at FROM scan_universe`
	if enabledOnly {
		query += ` WHERE enabled = TRUE`
	}
	query += ` ORDER BY symbol ASC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get universe: %w", err)
	}
	defer rows.Close()

	universe := []models.UniverseTicker{}
	for rows.Next() {
		var u models.UniverseTicker
		var notes sql.NullString
		if err := rows.Scan(&u.Symbol, &u.Enabled, &notes, &u.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan universe ticker: %w", err)
		}
		u.Notes = notes.String
		universe = append(universe, u)
	}
	return universe, rows.Err()
}

// Tickers returns the enabled symbols of the scan universe
func (db *DB) Tickers(ctx context.Context) ([]string, error) {
	universe, err := db.GetUniverse(ctx, true)
	if err != nil {
		return nil, err
	}
	tickers := make([]string, len(universe))
	for i, u := range universe {
		tickers[i] = u.Symbol
	}
	return tickers, nil
}
