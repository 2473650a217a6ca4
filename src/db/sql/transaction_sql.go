package db

import (
	"context"

	"finlink-server/src/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ExistingTransactionIDs returns which of the given external ids are
// already stored for the account. This is the dedup guard's fast path;
// the unique constraint on (account_id, external_id) remains the
// authoritative backstop for concurrent syncs.
func ExistingTransactionIDs(ctx context.Context, pool *pgxpool.Pool, accountID int64, externalIDs []string) (map[string]struct{}, error) {
	if len(externalIDs) == 0 {
		return map[string]struct{}{}, nil
	}

	query := `SELECT external_id FROM transactions WHERE account_id = $1 AND external_id = ANY($2)`

	rows, err := pool.Query(ctx, query, accountID, externalIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]struct{}, len(externalIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = struct{}{}
	}

	return existing, rows.Err()
}

// InsertTransaction stores one normalized transaction. Each insert is
// its own atomic unit keyed by external id: replaying a page over
// already-stored rows is a no-op. Returns whether a row was actually
// created.
func InsertTransaction(ctx context.Context, pool *pgxpool.Pool, txn *models.Transaction) (bool, error) {
	query := `
		INSERT INTO transactions
			(account_id, external_id, type, amount, currency, date, description, category, raw_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (account_id, external_id) DO NOTHING
	`

	tag, err := pool.Exec(ctx, query,
		txn.AccountID,
		txn.ExternalID,
		txn.Type,
		txn.Amount,
		txn.Currency,
		txn.Date,
		txn.Description,
		txn.Category,
		txn.RawData,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func GetTransactions(ctx context.Context, pool *pgxpool.Pool, accountID int64, limit int) ([]models.Transaction, error) {
	query := `
		SELECT id, account_id, external_id, type, amount, currency, date, description, category, notes, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY date DESC
		LIMIT $2
	`

	rows, err := pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var txn models.Transaction
		err := rows.Scan(&txn.ID, &txn.AccountID, &txn.ExternalID, &txn.Type, &txn.Amount,
			&txn.Currency, &txn.Date, &txn.Description, &txn.Category, &txn.Notes, &txn.CreatedAt)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}

	return transactions, rows.Err()
}
