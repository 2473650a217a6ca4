package models

import (
	"encoding/json"
	"time"
)

// WebhookEvent is one inbound delivery from the aggregator. EventID is
// the provider's id and the replay-protection key: a duplicate delivery
// with the same id is recognized and never reprocessed.
type WebhookEvent struct {
	ID          int64           `json:"id"`
	EventID     string          `json:"event_id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Processed   bool            `json:"processed"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
