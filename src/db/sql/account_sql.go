package db

import (
	"context"
	"time"

	"finlink-server/src/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const accountColumns = `
	id, connection_id, account_id, name, type, subtype, mask, currency,
	balance, balance_as_of, sync_frequency_minutes, last_sync_at, active, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.LinkedAccount, error) {
	var acc models.LinkedAccount
	err := row.Scan(
		&acc.ID, &acc.ConnectionID, &acc.AccountID, &acc.Name, &acc.Type, &acc.Subtype,
		&acc.Mask, &acc.Currency, &acc.Balance, &acc.BalanceAsOf,
		&acc.SyncFrequency, &acc.LastSyncAt, &acc.Active, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func GetAccount(ctx context.Context, pool *pgxpool.Pool, id int64) (*models.LinkedAccount, error) {
	query := `SELECT` + accountColumns + ` FROM linked_accounts WHERE id = $1`
	return scanAccount(pool.QueryRow(ctx, query, id))
}

func GetAccountsByConnection(ctx context.Context, pool *pgxpool.Pool, connectionID string) ([]models.LinkedAccount, error) {
	query := `
		SELECT` + accountColumns + `
		FROM linked_accounts a
		WHERE a.connection_id = (SELECT id FROM linked_connections WHERE connection_id = $1)
		ORDER BY a.id
	`

	rows, err := pool.Query(ctx, query, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.LinkedAccount
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}

	return accounts, rows.Err()
}

// ActiveAccountIDsByConnection returns the internal ids of the active
// accounts under a provider connection id. Used by the webhook
// dispatcher to fan transaction events out into sync jobs.
func ActiveAccountIDsByConnection(ctx context.Context, pool *pgxpool.Pool, connectionID string) ([]int64, error) {
	query := `
		SELECT a.id
		FROM linked_accounts a
		JOIN linked_connections c ON a.connection_id = c.id
		WHERE c.connection_id = $1 AND a.active AND c.active
	`

	rows, err := pool.Query(ctx, query, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// UpsertAccount bootstraps a linked account from provider data. Balance
// is written only on first insert; afterwards it belongs to the balance
// reconciler.
func UpsertAccount(ctx context.Context, pool *pgxpool.Pool, connectionDBID int64, acc *models.LinkedAccount) error {
	query := `
		INSERT INTO linked_accounts
			(connection_id, account_id, name, type, subtype, mask, currency, balance, sync_frequency_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			subtype = EXCLUDED.subtype,
			mask = EXCLUDED.mask,
			currency = EXCLUDED.currency,
			active = TRUE,
			updated_at = NOW()
	`

	_, err := pool.Exec(ctx, query,
		connectionDBID,
		acc.AccountID,
		acc.Name,
		acc.Type,
		acc.Subtype,
		acc.Mask,
		acc.Currency,
		acc.Balance,
		acc.SyncFrequency,
	)
	return err
}

// UpdateAccountBalance applies a reconciled balance. The active check is
// part of the statement so an account deactivated mid-run is never
// touched; the returned bool reports whether the write landed.
func UpdateAccountBalance(ctx context.Context, pool *pgxpool.Pool, id int64, balance decimal.Decimal, asOf time.Time) (bool, error) {
	query := `
		UPDATE linked_accounts
		SET balance = $1, balance_as_of = $2, updated_at = NOW()
		WHERE id = $3 AND active
	`
	tag, err := pool.Exec(ctx, query, balance, asOf, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func TouchAccountSync(ctx context.Context, pool *pgxpool.Pool, id int64, at time.Time) error {
	query := `UPDATE linked_accounts SET last_sync_at = $1, updated_at = NOW() WHERE id = $2`
	_, err := pool.Exec(ctx, query, at, id)
	return err
}

// AccountIDsDueForSync lists active accounts whose frequency-throttle
// window has elapsed. The scheduler enqueues these periodically.
func AccountIDsDueForSync(ctx context.Context, pool *pgxpool.Pool, now time.Time) ([]int64, error) {
	query := `
		SELECT a.id
		FROM linked_accounts a
		JOIN linked_connections c ON a.connection_id = c.id
		WHERE a.active AND c.active
		  AND (a.last_sync_at IS NULL
		       OR a.last_sync_at + make_interval(mins => a.sync_frequency_minutes) <= $1)
	`

	rows, err := pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
