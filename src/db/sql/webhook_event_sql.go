package db

import (
	"context"
	"encoding/json"

	"finlink-server/src/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InsertWebhookEvent persists a delivery keyed by the provider event id.
// Returns false when a row for the id already exists — that delivery is
// a replay.
func InsertWebhookEvent(ctx context.Context, pool *pgxpool.Pool, eventID, eventType string, payload json.RawMessage) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_id, type, payload, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`
	tag, err := pool.Exec(ctx, query, eventID, eventType, payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func GetWebhookEvent(ctx context.Context, pool *pgxpool.Pool, eventID string) (*models.WebhookEvent, error) {
	query := `
		SELECT id, event_id, type, payload, processed, processed_at, error, created_at
		FROM webhook_events
		WHERE event_id = $1
	`

	var evt models.WebhookEvent
	err := pool.QueryRow(ctx, query, eventID).Scan(
		&evt.ID, &evt.EventID, &evt.Type, &evt.Payload,
		&evt.Processed, &evt.ProcessedAt, &evt.Error, &evt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &evt, nil
}

func MarkWebhookProcessed(ctx context.Context, pool *pgxpool.Pool, eventID string) error {
	query := `UPDATE webhook_events SET processed = TRUE, processed_at = NOW(), error = NULL WHERE event_id = $1`
	_, err := pool.Exec(ctx, query, eventID)
	return err
}

func MarkWebhookError(ctx context.Context, pool *pgxpool.Pool, eventID, errMsg string) error {
	query := `UPDATE webhook_events SET error = $1 WHERE event_id = $2`
	_, err := pool.Exec(ctx, query, errMsg, eventID)
	return err
}
