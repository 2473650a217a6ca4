package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"finlink-server/src/models"
)

type mockDispatchStore struct {
	InsertEventFunc             func(ctx context.Context, eventID, eventType string, payload json.RawMessage) (bool, error)
	GetEventFunc                func(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	MarkEventProcessedFunc      func(ctx context.Context, eventID string) error
	MarkEventErrorFunc          func(ctx context.Context, eventID, errMsg string) error
	GetConnectionFunc           func(ctx context.Context, connectionID string) (*models.LinkedConnection, error)
	UpsertConnectionFunc        func(ctx context.Context, conn *models.LinkedConnection) error
	UpdateConnectionStatusFunc  func(ctx context.Context, connectionID string, status models.ConnectionStatus, executionStatus string, errorCode, errorMessage *string, statusDetail json.RawMessage) error
	UpdateConnectionConsentFunc func(ctx context.Context, connectionID, consentID string, expiresAt *time.Time) error
	DeactivateConnectionFunc    func(ctx context.Context, connectionID string) error
	ActiveAccountIDsFunc        func(ctx context.Context, connectionID string) ([]int64, error)
}

func (m *mockDispatchStore) InsertEvent(ctx context.Context, eventID, eventType string, payload json.RawMessage) (bool, error) {
	if m.InsertEventFunc != nil {
		return m.InsertEventFunc(ctx, eventID, eventType, payload)
	}
	return true, nil
}

func (m *mockDispatchStore) GetEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	return m.GetEventFunc(ctx, eventID)
}

func (m *mockDispatchStore) MarkEventProcessed(ctx context.Context, eventID string) error {
	if m.MarkEventProcessedFunc != nil {
		return m.MarkEventProcessedFunc(ctx, eventID)
	}
	return nil
}

func (m *mockDispatchStore) MarkEventError(ctx context.Context, eventID, errMsg string) error {
	if m.MarkEventErrorFunc != nil {
		return m.MarkEventErrorFunc(ctx, eventID, errMsg)
	}
	return nil
}

func (m *mockDispatchStore) GetConnection(ctx context.Context, connectionID string) (*models.LinkedConnection, error) {
	return m.GetConnectionFunc(ctx, connectionID)
}

func (m *mockDispatchStore) UpsertConnection(ctx context.Context, conn *models.LinkedConnection) error {
	return m.UpsertConnectionFunc(ctx, conn)
}

func (m *mockDispatchStore) UpdateConnectionStatus(ctx context.Context, connectionID string, status models.ConnectionStatus, executionStatus string, errorCode, errorMessage *string, statusDetail json.RawMessage) error {
	return m.UpdateConnectionStatusFunc(ctx, connectionID, status, executionStatus, errorCode, errorMessage, statusDetail)
}

func (m *mockDispatchStore) UpdateConnectionConsent(ctx context.Context, connectionID, consentID string, expiresAt *time.Time) error {
	return m.UpdateConnectionConsentFunc(ctx, connectionID, consentID, expiresAt)
}

func (m *mockDispatchStore) DeactivateConnection(ctx context.Context, connectionID string) error {
	return m.DeactivateConnectionFunc(ctx, connectionID)
}

func (m *mockDispatchStore) ActiveAccountIDs(ctx context.Context, connectionID string) ([]int64, error) {
	return m.ActiveAccountIDsFunc(ctx, connectionID)
}

type mockEnqueuer struct {
	enqueued []int64
	err      error
}

func (m *mockEnqueuer) EnqueueSync(accountID int64) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, accountID)
	return nil
}

func makeEvent(eventType string, object map[string]interface{}) *Event {
	return &Event{
		ID:      "evt_1",
		Type:    eventType,
		Created: time.Now().Unix(),
		Data:    EventData{Object: object},
	}
}

func TestDispatchConnectionCreated(t *testing.T) {
	var upserted *models.LinkedConnection
	store := &mockDispatchStore{
		UpsertConnectionFunc: func(ctx context.Context, conn *models.LinkedConnection) error {
			upserted = conn
			return nil
		},
	}
	d := NewDispatcher(store, &mockEnqueuer{})

	notified := ""
	d.OnConnectionChange = func(connectionID string) { notified = connectionID }

	event := makeEvent(EventConnectionCreated, map[string]interface{}{
		"connection_id":  "conn-1",
		"connector_id":   "bank-42",
		"connector_name": "Some Bank",
		"status":         "created",
		"user_id":        float64(7),
	})
	if err := d.Dispatch(context.Background(), event, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if upserted == nil || upserted.ConnectionID != "conn-1" || upserted.UserID != 7 {
		t.Errorf("upserted = %+v, want conn-1 for user 7", upserted)
	}
	if notified != "conn-1" {
		t.Errorf("change notification = %q, want conn-1", notified)
	}
}

func TestDispatchStatusTransition(t *testing.T) {
	var newStatus models.ConnectionStatus
	store := &mockDispatchStore{
		GetConnectionFunc: func(ctx context.Context, connectionID string) (*models.LinkedConnection, error) {
			return &models.LinkedConnection{ConnectionID: connectionID, Status: models.StatusUpdating}, nil
		},
		UpdateConnectionStatusFunc: func(ctx context.Context, connectionID string, status models.ConnectionStatus, executionStatus string, errorCode, errorMessage *string, statusDetail json.RawMessage) error {
			newStatus = status
			return nil
		},
	}
	d := NewDispatcher(store, &mockEnqueuer{})

	event := makeEvent(EventConnectionUpdated, map[string]interface{}{
		"connection_id": "conn-1",
		"status":        "updated",
	})
	if err := d.Dispatch(context.Background(), event, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if newStatus != models.StatusUpdated {
		t.Errorf("status = %q, want updated", newStatus)
	}
}

func TestDispatchIllegalTransitionSkipped(t *testing.T) {
	updated := false
	store := &mockDispatchStore{
		GetConnectionFunc: func(ctx context.Context, connectionID string) (*models.LinkedConnection, error) {
			return &models.LinkedConnection{ConnectionID: connectionID, Status: models.StatusError}, nil
		},
		UpdateConnectionStatusFunc: func(ctx context.Context, connectionID string, status models.ConnectionStatus, executionStatus string, errorCode, errorMessage *string, statusDetail json.RawMessage) error {
			updated = true
			return nil
		},
	}
	d := NewDispatcher(store, &mockEnqueuer{})

	// error -> updated is not a legal step; the event is dropped, not failed.
	event := makeEvent(EventConnectionUpdated, map[string]interface{}{
		"connection_id": "conn-1",
		"status":        "updated",
	})
	if err := d.Dispatch(context.Background(), event, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if updated {
		t.Error("illegal transition must not be persisted")
	}
}

func TestDispatchUnknownConnectionSkipped(t *testing.T) {
	store := &mockDispatchStore{
		GetConnectionFunc: func(ctx context.Context, connectionID string) (*models.LinkedConnection, error) {
			return nil, errors.New("no rows")
		},
	}
	d := NewDispatcher(store, &mockEnqueuer{})

	event := makeEvent(EventConnectionUpdated, map[string]interface{}{
		"connection_id": "conn-unknown",
		"status":        "updated",
	})
	if err := d.Dispatch(context.Background(), event, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("event for unknown connection should be dropped, got: %v", err)
	}
}

func TestDispatchConnectionErrorMapsLoginError(t *testing.T) {
	var newStatus models.ConnectionStatus
	var recordedCode *string
	store := &mockDispatchStore{
		GetConnectionFunc: func(ctx context.Context, connectionID string) (*models.LinkedConnection, error) {
			return &models.LinkedConnection{ConnectionID: connectionID, Status: models.StatusUpdating}, nil
		},
		UpdateConnectionStatusFunc: func(ctx context.Context, connectionID string, status models.ConnectionStatus, executionStatus string, errorCode, errorMessage *string, statusDetail json.RawMessage) error {
			newStatus = status
			recordedCode = errorCode
			return nil
		},
	}
	d := NewDispatcher(store, &mockEnqueuer{})

	event := makeEvent(EventConnectionError, map[string]interface{}{
		"connection_id": "conn-1",
		"error_code":    "INVALID_CREDENTIALS",
		"error_message": "bad password",
	})
	if err := d.Dispatch(context.Background(), event, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if newStatus != models.StatusLoginError {
		t.Errorf("status = %q, want login_error for credential failures", newStatus)
	}
	if recordedCode == nil || *recordedCode != "INVALID_CREDENTIALS" {
		t.Error("error code must be recorded on the connection")
	}
}

func TestDispatchConnectionDeleted(t *testing.T) {
	deactivated := ""
	store := &mockDispatchStore{
		DeactivateConnectionFunc: func(ctx context.Context, connectionID string) error {
			deactivated = connectionID
			return nil
		},
	}
	d := NewDispatcher(store, &mockEnqueuer{})

	event := makeEvent(EventConnectionDeleted, map[string]interface{}{"connection_id": "conn-1"})
	if err := d.Dispatch(context.Background(), event, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if deactivated != "conn-1" {
		t.Errorf("deactivated = %q, want conn-1", deactivated)
	}
}

func TestDispatchTransactionsCreatedEnqueuesSync(t *testing.T) {
	store := &mockDispatchStore{
		ActiveAccountIDsFunc: func(ctx context.Context, connectionID string) ([]int64, error) {
			return []int64{10, 11}, nil
		},
	}
	jobs := &mockEnqueuer{}
	d := NewDispatcher(store, jobs)

	event := makeEvent(EventTransactionsCreated, map[string]interface{}{"connection_id": "conn-1"})
	if err := d.Dispatch(context.Background(), event, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if len(jobs.enqueued) != 2 || jobs.enqueued[0] != 10 || jobs.enqueued[1] != 11 {
		t.Errorf("enqueued = %v, want [10 11]", jobs.enqueued)
	}
}

func TestDispatchFullQueueDoesNotFailEvent(t *testing.T) {
	store := &mockDispatchStore{
		ActiveAccountIDsFunc: func(ctx context.Context, connectionID string) ([]int64, error) {
			return []int64{10}, nil
		},
	}
	d := NewDispatcher(store, &mockEnqueuer{err: errors.New("sync queue full")})

	event := makeEvent(EventTransactionsCreated, map[string]interface{}{"connection_id": "conn-1"})
	if err := d.Dispatch(context.Background(), event, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("a full queue must not fail the delivery: %v", err)
	}
}

func TestDispatchConsentGranted(t *testing.T) {
	var gotConsentID string
	var gotExpiry *time.Time
	store := &mockDispatchStore{
		UpdateConnectionConsentFunc: func(ctx context.Context, connectionID, consentID string, expiresAt *time.Time) error {
			gotConsentID = consentID
			gotExpiry = expiresAt
			return nil
		},
	}
	d := NewDispatcher(store, &mockEnqueuer{})

	event := makeEvent(EventConsentGranted, map[string]interface{}{
		"connection_id": "conn-1",
		"consent_id":    "consent-9",
		"expires_at":    "2026-09-01T00:00:00Z",
	})
	if err := d.Dispatch(context.Background(), event, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if gotConsentID != "consent-9" {
		t.Errorf("consent id = %q, want consent-9", gotConsentID)
	}
	if gotExpiry == nil || !gotExpiry.Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expiry = %v, want 2026-09-01", gotExpiry)
	}
}

func TestDispatchDuplicateProcessedIsNoOp(t *testing.T) {
	applied := false
	store := &mockDispatchStore{
		InsertEventFunc: func(ctx context.Context, eventID, eventType string, payload json.RawMessage) (bool, error) {
			return false, nil
		},
		GetEventFunc: func(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
			return &models.WebhookEvent{EventID: eventID, Processed: true}, nil
		},
		DeactivateConnectionFunc: func(ctx context.Context, connectionID string) error {
			applied = true
			return nil
		},
	}
	d := NewDispatcher(store, &mockEnqueuer{})

	event := makeEvent(EventConnectionDeleted, map[string]interface{}{"connection_id": "conn-1"})
	if err := d.Dispatch(context.Background(), event, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if applied {
		t.Error("already-processed event must not be applied again")
	}
}

func TestDispatchResumesInterruptedEvent(t *testing.T) {
	applied := false
	store := &mockDispatchStore{
		InsertEventFunc: func(ctx context.Context, eventID, eventType string, payload json.RawMessage) (bool, error) {
			return false, nil
		},
		GetEventFunc: func(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
			return &models.WebhookEvent{EventID: eventID, Processed: false}, nil
		},
		DeactivateConnectionFunc: func(ctx context.Context, connectionID string) error {
			applied = true
			return nil
		},
	}
	d := NewDispatcher(store, &mockEnqueuer{})

	event := makeEvent(EventConnectionDeleted, map[string]interface{}{"connection_id": "conn-1"})
	if err := d.Dispatch(context.Background(), event, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if !applied {
		t.Error("persisted-but-unprocessed event must be applied on redelivery")
	}
}

func TestDispatchApplyErrorRecorded(t *testing.T) {
	markedErr := ""
	store := &mockDispatchStore{
		DeactivateConnectionFunc: func(ctx context.Context, connectionID string) error {
			return errors.New("db down")
		},
		MarkEventErrorFunc: func(ctx context.Context, eventID, errMsg string) error {
			markedErr = errMsg
			return nil
		},
	}
	d := NewDispatcher(store, &mockEnqueuer{})

	event := makeEvent(EventConnectionDeleted, map[string]interface{}{"connection_id": "conn-1"})
	if err := d.Dispatch(context.Background(), event, json.RawMessage(`{}`)); err == nil {
		t.Fatal("apply failure must surface so the sender redelivers")
	}
	if markedErr == "" {
		t.Error("apply failure must be recorded on the event row")
	}
}

func TestDispatchUnknownTypeDropped(t *testing.T) {
	processed := false
	store := &mockDispatchStore{
		MarkEventProcessedFunc: func(ctx context.Context, eventID string) error {
			processed = true
			return nil
		},
	}
	d := NewDispatcher(store, &mockEnqueuer{})

	event := makeEvent("institution.maintenance_scheduled", map[string]interface{}{})
	if err := d.Dispatch(context.Background(), event, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if !processed {
		t.Error("unroutable event should still be marked processed")
	}
}
