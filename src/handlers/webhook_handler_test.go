package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finlink-server/src/models"
	"finlink-server/src/webhook"
)

const webhookTestSecret = "whsec_test"

type mapReplayCache struct {
	seen map[string]bool
}

func (m *mapReplayCache) Seen(eventID string) bool { return m.seen[eventID] }
func (m *mapReplayCache) Mark(eventID string)      { m.seen[eventID] = true }

// flakyEventStore persists webhook events in memory and fails the first
// insertErrs InsertEvent calls.
type flakyEventStore struct {
	insertErrs  int
	events      map[string]*models.WebhookEvent
	deactivated []string
}

func newFlakyEventStore(insertErrs int) *flakyEventStore {
	return &flakyEventStore{
		insertErrs: insertErrs,
		events:     make(map[string]*models.WebhookEvent),
	}
}

func (s *flakyEventStore) InsertEvent(ctx context.Context, eventID, eventType string, payload json.RawMessage) (bool, error) {
	if s.insertErrs > 0 {
		s.insertErrs--
		return false, errors.New("db down")
	}
	if _, ok := s.events[eventID]; ok {
		return false, nil
	}
	s.events[eventID] = &models.WebhookEvent{EventID: eventID, Type: eventType, Payload: payload}
	return true, nil
}

func (s *flakyEventStore) GetEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	event, ok := s.events[eventID]
	if !ok {
		return nil, errors.New("no rows")
	}
	return event, nil
}

func (s *flakyEventStore) MarkEventProcessed(ctx context.Context, eventID string) error {
	s.events[eventID].Processed = true
	return nil
}

func (s *flakyEventStore) MarkEventError(ctx context.Context, eventID, errMsg string) error {
	return nil
}

func (s *flakyEventStore) GetConnection(ctx context.Context, connectionID string) (*models.LinkedConnection, error) {
	return nil, errors.New("no rows")
}

func (s *flakyEventStore) UpsertConnection(ctx context.Context, conn *models.LinkedConnection) error {
	return nil
}

func (s *flakyEventStore) UpdateConnectionStatus(ctx context.Context, connectionID string, status models.ConnectionStatus, executionStatus string, errorCode, errorMessage *string, statusDetail json.RawMessage) error {
	return nil
}

func (s *flakyEventStore) UpdateConnectionConsent(ctx context.Context, connectionID, consentID string, expiresAt *time.Time) error {
	return nil
}

func (s *flakyEventStore) DeactivateConnection(ctx context.Context, connectionID string) error {
	s.deactivated = append(s.deactivated, connectionID)
	return nil
}

func (s *flakyEventStore) ActiveAccountIDs(ctx context.Context, connectionID string) ([]int64, error) {
	return nil, nil
}

type noopEnqueuer struct{}

func (noopEnqueuer) EnqueueSync(accountID int64) error { return nil }

func signedWebhookRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/aggregator", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature",
		fmt.Sprintf("t=%d,v1=%s", ts, webhook.ComputeSignature(webhookTestSecret, ts, body)))
	return req
}

// A delivery whose persistence fails is marked in the replay cache but
// never stored. The sender's redelivery arrives as a replay and must
// still reach the dispatcher so the event lands.
func TestWebhookRedeliveryAfterPersistFailure(t *testing.T) {
	store := newFlakyEventStore(1)
	dispatcher := webhook.NewDispatcher(store, noopEnqueuer{})
	validator := webhook.NewValidator(webhookTestSecret, nil, time.Minute,
		&mapReplayCache{seen: make(map[string]bool)}, webhook.NewRateLimiter(nil))
	handler := AggregatorWebhook(validator, dispatcher)

	body := []byte(fmt.Sprintf(
		`{"id":"evt_9","type":"connection.deleted","created":%d,"data":{"object":{"connection_id":"conn-1"}}}`,
		time.Now().Unix()))

	rec := httptest.NewRecorder()
	handler(rec, signedWebhookRequest(t, body))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("first delivery status = %d, want 500 while the store is down", rec.Code)
	}
	if len(store.events) != 0 {
		t.Fatalf("failed delivery persisted %d rows, want 0", len(store.events))
	}

	rec = httptest.NewRecorder()
	handler(rec, signedWebhookRequest(t, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d, want 200", rec.Code)
	}
	event, ok := store.events["evt_9"]
	if !ok || !event.Processed {
		t.Fatal("redelivery must persist and process the event")
	}
	if len(store.deactivated) != 1 || store.deactivated[0] != "conn-1" {
		t.Errorf("deactivated = %v, want exactly one application to conn-1", store.deactivated)
	}
}

// A replay of an already-processed event answers 200 without applying
// the transition again.
func TestWebhookProcessedReplayNotReapplied(t *testing.T) {
	store := newFlakyEventStore(0)
	dispatcher := webhook.NewDispatcher(store, noopEnqueuer{})
	validator := webhook.NewValidator(webhookTestSecret, nil, time.Minute,
		&mapReplayCache{seen: make(map[string]bool)}, webhook.NewRateLimiter(nil))
	handler := AggregatorWebhook(validator, dispatcher)

	body := []byte(fmt.Sprintf(
		`{"id":"evt_10","type":"connection.deleted","created":%d,"data":{"object":{"connection_id":"conn-2"}}}`,
		time.Now().Unix()))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler(rec, signedWebhookRequest(t, body))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d, want 200", i+1, rec.Code)
		}
	}
	if len(store.deactivated) != 1 {
		t.Errorf("transition applied %d times, want once", len(store.deactivated))
	}
}
