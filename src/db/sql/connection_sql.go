package db

import (
	"context"
	"encoding/json"
	"time"

	"finlink-server/src/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

const connectionColumns = `
	id, user_id, connection_id, connector_id, connector_name, status, execution_status,
	error_code, error_message, consent_id, consent_expires_at, status_detail,
	last_updated_at, active, created_at, updated_at`

func scanConnection(row interface{ Scan(...any) error }) (*models.LinkedConnection, error) {
	var conn models.LinkedConnection
	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.ConnectionID, &conn.ConnectorID, &conn.ConnectorName,
		&conn.Status, &conn.ExecutionStatus, &conn.ErrorCode, &conn.ErrorMessage,
		&conn.ConsentID, &conn.ConsentExpires, &conn.StatusDetail,
		&conn.LastUpdatedAt, &conn.Active, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func GetConnectionByExternalID(ctx context.Context, pool *pgxpool.Pool, connectionID string) (*models.LinkedConnection, error) {
	query := `SELECT` + connectionColumns + ` FROM linked_connections WHERE connection_id = $1`
	return scanConnection(pool.QueryRow(ctx, query, connectionID))
}

func ListConnections(ctx context.Context, pool *pgxpool.Pool, userID int64) ([]models.LinkedConnection, error) {
	query := `SELECT` + connectionColumns + ` FROM linked_connections WHERE user_id = $1 ORDER BY created_at`

	rows, err := pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var connections []models.LinkedConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, *conn)
	}

	return connections, rows.Err()
}

// UpsertConnection creates the row on first sight of a connection and
// refreshes connector/status details on later sightings. Re-creating an
// existing connection reactivates it (a new user action restarts the
// flow).
func UpsertConnection(ctx context.Context, pool *pgxpool.Pool, conn *models.LinkedConnection) error {
	query := `
		INSERT INTO linked_connections
			(user_id, connection_id, connector_id, connector_name, status, execution_status, last_updated_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), TRUE)
		ON CONFLICT (connection_id) DO UPDATE SET
			connector_id = EXCLUDED.connector_id,
			connector_name = EXCLUDED.connector_name,
			status = EXCLUDED.status,
			execution_status = EXCLUDED.execution_status,
			last_updated_at = NOW(),
			active = TRUE,
			updated_at = NOW()
	`

	_, err := pool.Exec(ctx, query,
		conn.UserID,
		conn.ConnectionID,
		conn.ConnectorID,
		conn.ConnectorName,
		conn.Status,
		conn.ExecutionStatus,
	)
	return err
}

func UpdateConnectionStatus(ctx context.Context, pool *pgxpool.Pool, connectionID string, status models.ConnectionStatus, executionStatus string, errorCode, errorMessage *string, statusDetail json.RawMessage) error {
	query := `
		UPDATE linked_connections
		SET status = $1, execution_status = $2, error_code = $3, error_message = $4,
		    status_detail = COALESCE($5, status_detail), last_updated_at = NOW(), updated_at = NOW()
		WHERE connection_id = $6
	`
	_, err := pool.Exec(ctx, query, status, executionStatus, errorCode, errorMessage, statusDetail, connectionID)
	return err
}

func UpdateConnectionConsent(ctx context.Context, pool *pgxpool.Pool, connectionID, consentID string, expiresAt *time.Time) error {
	query := `
		UPDATE linked_connections
		SET consent_id = $1, consent_expires_at = $2, updated_at = NOW()
		WHERE connection_id = $3
	`
	_, err := pool.Exec(ctx, query, consentID, expiresAt, connectionID)
	return err
}

// DeactivateConnection soft-deletes a connection and its accounts. Rows
// are kept for audit; nothing is hard-deleted while history exists.
func DeactivateConnection(ctx context.Context, pool *pgxpool.Pool, connectionID string) error {
	query := `UPDATE linked_connections SET active = FALSE, updated_at = NOW() WHERE connection_id = $1`
	if _, err := pool.Exec(ctx, query, connectionID); err != nil {
		return err
	}

	query = `
		UPDATE linked_accounts a SET active = FALSE, updated_at = NOW()
		FROM linked_connections c
		WHERE a.connection_id = c.id AND c.connection_id = $1
	`
	_, err := pool.Exec(ctx, query, connectionID)
	return err
}

func SaveConnectionToken(ctx context.Context, pool *pgxpool.Pool, connectionID, encryptedToken string) error {
	query := `UPDATE linked_connections SET access_token_encrypted = $1, updated_at = NOW() WHERE connection_id = $2`
	_, err := pool.Exec(ctx, query, encryptedToken, connectionID)
	return err
}
