package db

import (
	"context"
	"time"

	"finlink-server/src/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

func CreateSyncRun(ctx context.Context, pool *pgxpool.Pool, run *models.SyncRun) error {
	query := `
		INSERT INTO sync_runs (id, account_id, status, started_at, from_date, to_date)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := pool.Exec(ctx, query, run.ID, run.AccountID, run.Status, run.StartedAt, run.FromDate, run.ToDate)
	return err
}

// CompleteSyncRun terminal-updates a run. The status guard keeps
// terminal rows immutable if an update is ever replayed.
func CompleteSyncRun(ctx context.Context, pool *pgxpool.Pool, runID string, found, newCount int, at time.Time) error {
	query := `
		UPDATE sync_runs
		SET status = $1, found_count = $2, new_count = $3, completed_at = $4
		WHERE id = $5 AND status = $6
	`
	_, err := pool.Exec(ctx, query, models.RunCompleted, found, newCount, at, runID, models.RunRunning)
	return err
}

func FailSyncRun(ctx context.Context, pool *pgxpool.Pool, runID string, errMsg string, found, newCount int, at time.Time) error {
	query := `
		UPDATE sync_runs
		SET status = $1, error = $2, found_count = $3, new_count = $4, completed_at = $5
		WHERE id = $6 AND status = $7
	`
	_, err := pool.Exec(ctx, query, models.RunFailed, errMsg, found, newCount, at, runID, models.RunRunning)
	return err
}

func GetSyncHistory(ctx context.Context, pool *pgxpool.Pool, accountID int64, limit int) ([]models.SyncRun, error) {
	query := `
		SELECT id, account_id, status, started_at, completed_at, found_count, new_count, error, from_date, to_date
		FROM sync_runs
		WHERE account_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		err := rows.Scan(&run.ID, &run.AccountID, &run.Status, &run.StartedAt, &run.CompletedAt,
			&run.Found, &run.New, &run.Error, &run.FromDate, &run.ToDate)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
