package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"finlink-server/src/models"
)

// Store is the persistence surface the dispatcher needs.
type Store interface {
	InsertEvent(ctx context.Context, eventID, eventType string, payload json.RawMessage) (bool, error)
	GetEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	MarkEventProcessed(ctx context.Context, eventID string) error
	MarkEventError(ctx context.Context, eventID, errMsg string) error
	GetConnection(ctx context.Context, connectionID string) (*models.LinkedConnection, error)
	UpsertConnection(ctx context.Context, conn *models.LinkedConnection) error
	UpdateConnectionStatus(ctx context.Context, connectionID string, status models.ConnectionStatus, executionStatus string, errorCode, errorMessage *string, statusDetail json.RawMessage) error
	UpdateConnectionConsent(ctx context.Context, connectionID, consentID string, expiresAt *time.Time) error
	DeactivateConnection(ctx context.Context, connectionID string) error
	ActiveAccountIDs(ctx context.Context, connectionID string) ([]int64, error)
}

// SyncEnqueuer hands sync work off to the background pool. Webhook
// handling must answer inside the sender's delivery timeout, so data
// pulls never run inline.
type SyncEnqueuer interface {
	EnqueueSync(accountID int64) error
}

// Dispatcher routes a validated event to its state transition. The
// WebhookEvent row is persisted before any business effect: a crash
// between the two leaves an unprocessed row that the sender's
// redelivery safely finishes.
type Dispatcher struct {
	store Store
	jobs  SyncEnqueuer

	// Called after a connection's status or lifecycle changes; wired to
	// cache invalidation.
	OnConnectionChange func(connectionID string)
}

func NewDispatcher(store Store, jobs SyncEnqueuer) *Dispatcher {
	return &Dispatcher{store: store, jobs: jobs}
}

// Dispatch persists and applies one validated event. Duplicate event ids
// that were already processed are idempotent no-ops.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event, rawBody json.RawMessage) error {
	inserted, err := d.store.InsertEvent(ctx, event.ID, event.Type, rawBody)
	if err != nil {
		return fmt.Errorf("persist webhook event %s: %w", event.ID, err)
	}
	if !inserted {
		existing, err := d.store.GetEvent(ctx, event.ID)
		if err != nil {
			return fmt.Errorf("load webhook event %s: %w", event.ID, err)
		}
		if existing.Processed {
			log.Printf("INFO: webhook event %s already processed, ignoring replay", event.ID)
			return nil
		}
		// Persisted but never applied: a crash interrupted the previous
		// delivery. Finish the job now.
		log.Printf("INFO: resuming interrupted webhook event %s", event.ID)
	}

	if err := d.apply(ctx, event); err != nil {
		if markErr := d.store.MarkEventError(ctx, event.ID, err.Error()); markErr != nil {
			log.Printf("ERROR: failed to record error on webhook event %s: %v", event.ID, markErr)
		}
		return err
	}

	return d.store.MarkEventProcessed(ctx, event.ID)
}

func (d *Dispatcher) apply(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventConnectionCreated:
		return d.applyConnectionCreated(ctx, event)
	case EventConnectionUpdated:
		return d.applyStatusChange(ctx, event, models.ConnectionStatus(event.ObjectString("status")))
	case EventConnectionLoginOK:
		return d.applyStatusChange(ctx, event, models.StatusUpdating)
	case EventConnectionError:
		return d.applyConnectionError(ctx, event)
	case EventConnectionDeleted:
		return d.applyConnectionDeleted(ctx, event)
	case EventTransactionsCreated, EventTransactionsUpdated:
		return d.applyTransactionsChanged(ctx, event)
	case EventConsentGranted, EventConsentRenewed, EventConsentRevoked:
		return d.applyConsentChange(ctx, event)
	default:
		log.Printf("INFO: no route for webhook event type %q, dropping event %s", event.Type, event.ID)
		return nil
	}
}

func (d *Dispatcher) applyConnectionCreated(ctx context.Context, event *Event) error {
	status := models.ConnectionStatus(event.ObjectString("status"))
	if !models.IsKnownStatus(status) {
		status = models.StatusCreated
	}

	var userID int64
	if v, ok := event.Data.Object["user_id"].(float64); ok {
		userID = int64(v)
	}

	conn := &models.LinkedConnection{
		UserID:          userID,
		ConnectionID:    event.ObjectString("connection_id"),
		ConnectorID:     event.ObjectString("connector_id"),
		ConnectorName:   event.ObjectString("connector_name"),
		Status:          status,
		ExecutionStatus: event.ObjectString("execution_status"),
	}
	if err := d.store.UpsertConnection(ctx, conn); err != nil {
		return fmt.Errorf("upsert connection %s: %w", conn.ConnectionID, err)
	}

	d.notifyChange(conn.ConnectionID)
	return nil
}

func (d *Dispatcher) applyStatusChange(ctx context.Context, event *Event, target models.ConnectionStatus) error {
	connectionID := event.ObjectString("connection_id")

	if !models.IsKnownStatus(target) {
		log.Printf("WARN: webhook event %s carries unknown status %q for connection %s, skipping", event.ID, target, connectionID)
		return nil
	}

	conn, err := d.store.GetConnection(ctx, connectionID)
	if err != nil {
		log.Printf("WARN: webhook event %s references unknown connection %s, skipping", event.ID, connectionID)
		return nil
	}

	if !models.CanTransition(conn.Status, target) {
		log.Printf("WARN: illegal status transition %s -> %s for connection %s, skipping event %s", conn.Status, target, connectionID, event.ID)
		return nil
	}

	var detail json.RawMessage
	if obj, ok := event.Data.Object["status_detail"]; ok {
		detail, _ = json.Marshal(obj)
	}

	err = d.store.UpdateConnectionStatus(ctx, connectionID, target, event.ObjectString("execution_status"), nil, nil, detail)
	if err != nil {
		return fmt.Errorf("update status of connection %s: %w", connectionID, err)
	}

	d.notifyChange(connectionID)
	return nil
}

func (d *Dispatcher) applyConnectionError(ctx context.Context, event *Event) error {
	connectionID := event.ObjectString("connection_id")
	code := event.ObjectString("error_code")
	message := event.ObjectString("error_message")

	target := models.StatusError
	if code == "LOGIN_ERROR" || code == "INVALID_CREDENTIALS" {
		target = models.StatusLoginError
	}

	conn, err := d.store.GetConnection(ctx, connectionID)
	if err != nil {
		log.Printf("WARN: webhook event %s references unknown connection %s, skipping", event.ID, connectionID)
		return nil
	}
	if !models.CanTransition(conn.Status, target) {
		log.Printf("WARN: illegal status transition %s -> %s for connection %s, skipping event %s", conn.Status, target, connectionID, event.ID)
		return nil
	}

	err = d.store.UpdateConnectionStatus(ctx, connectionID, target, event.ObjectString("execution_status"), &code, &message, nil)
	if err != nil {
		return fmt.Errorf("record error on connection %s: %w", connectionID, err)
	}

	d.notifyChange(connectionID)
	return nil
}

func (d *Dispatcher) applyConnectionDeleted(ctx context.Context, event *Event) error {
	connectionID := event.ObjectString("connection_id")
	if err := d.store.DeactivateConnection(ctx, connectionID); err != nil {
		return fmt.Errorf("deactivate connection %s: %w", connectionID, err)
	}
	d.notifyChange(connectionID)
	return nil
}

// applyTransactionsChanged fans a transaction notification out into
// background sync jobs for the connection's active accounts. A full
// queue drops the job with a log line; the periodic scheduler will catch
// the account up.
func (d *Dispatcher) applyTransactionsChanged(ctx context.Context, event *Event) error {
	connectionID := event.ObjectString("connection_id")

	accountIDs, err := d.store.ActiveAccountIDs(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("resolve accounts of connection %s: %w", connectionID, err)
	}
	if len(accountIDs) == 0 {
		log.Printf("INFO: webhook event %s for connection %s matches no active accounts", event.ID, connectionID)
		return nil
	}

	for _, accountID := range accountIDs {
		if err := d.jobs.EnqueueSync(accountID); err != nil {
			log.Printf("WARN: could not enqueue sync for account %d: %v", accountID, err)
		}
	}
	return nil
}

func (d *Dispatcher) applyConsentChange(ctx context.Context, event *Event) error {
	connectionID := event.ObjectString("connection_id")
	consentID := event.ObjectString("consent_id")

	var expiresAt *time.Time
	if raw := event.ObjectString("expires_at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("parse consent expiry %q: %w", raw, err)
		}
		expiresAt = &parsed
	}

	if err := d.store.UpdateConnectionConsent(ctx, connectionID, consentID, expiresAt); err != nil {
		return fmt.Errorf("update consent of connection %s: %w", connectionID, err)
	}
	return nil
}

func (d *Dispatcher) notifyChange(connectionID string) {
	if d.OnConnectionChange != nil {
		d.OnConnectionChange(connectionID)
	}
}
