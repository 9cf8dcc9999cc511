package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

const transactionColumns = `id, external_id, holder_id, instrument_id, account_class, direction,
		quantity, unit_price, effective_date, note, opportunity_id, created_at`

// CreateTransaction inserts a new transaction
func (db *DB) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			external_id, holder_id, instrument_id, account_class, direction,
			quantity, unit_price, effective_date, note, opportunity_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRowContext(ctx, query,
		nullString(t.ExternalID), t.HolderID, t.InstrumentID, t.AccountClass, t.Direction,
		t.Quantity, t.UnitPrice, t.EffectiveDate, nullString(t.Note), t.OpportunityID, now,
	).Scan(&t.ID)

	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	t.CreatedAt = now
	return nil
}

// TransactionExistsByExternalID checks whether an upstream transaction was
// already recorded
func (db *DB) TransactionExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transactions WHERE external_id = $1)`
	var exists bool
	if err := db.conn.QueryRowContext(ctx, query, externalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return exists, nil
}

// GetTransactionByID retrieves a transaction by ID
func (db *DB) GetTransactionByID(ctx context.Context, id int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	t, err := scanTransaction(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// FindTransactions returns a holder's transactions in replay order:
// effective date, then creation sequence
func (db *DB) FindTransactions(ctx context.Context, holderID string, filter models.TransactionFilter) ([]models.Transaction, error) {
	conditions := []string{"holder_id = $1"}
	args := []interface{}{holderID}

	if filter.InstrumentID != "" {
		args = append(args, filter.InstrumentID)
		conditions = append(conditions, fmt.Sprintf("instrument_id = $%d", len(args)))
	}
	if filter.AccountClass != "" {
		args = append(args, filter.AccountClass)
		conditions = append(conditions, fmt.Sprintf("account_class = $%d", len(args)))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY effective_date ASC, id ASC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find transactions: %w", err)
	}
	defer rows.Close()

	txns := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txns, nil
}

// ListHolders returns every holder with at least one transaction
func (db *DB) ListHolders(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT holder_id FROM transactions ORDER BY holder_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list holders: %w", err)
	}
	defer rows.Close()

	var holders []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan holder: %w", err)
		}
		holders = append(holders, h)
	}
	return holders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var externalID, note sql.NullString
	var opportunityID sql.NullInt64

	err := row.Scan(
		&t.ID, &externalID, &t.HolderID, &t.InstrumentID, &t.AccountClass, &t.Direction,
		&t.Quantity, &t.UnitPrice, &t.EffectiveDate, &note, &opportunityID, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ExternalID = externalID.String
	t.Note = note.String
	if opportunityID.Valid {
		t.OpportunityID = &opportunityID.Int64
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
