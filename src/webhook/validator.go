package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// Event types routed by the pipeline. Unknown types pass validation
// (forward compatibility) and are dropped by the dispatcher.
const (
	EventConnectionCreated   = "connection.created"
	EventConnectionUpdated   = "connection.updated"
	EventConnectionLoginOK   = "connection.login_succeeded"
	EventConnectionError     = "connection.error"
	EventConnectionDeleted   = "connection.deleted"
	EventTransactionsCreated = "transactions.created"
	EventTransactionsUpdated = "transactions.updated"
	EventConsentGranted      = "consent.granted"
	EventConsentRenewed      = "consent.renewed"
	EventConsentRevoked      = "consent.revoked"
)

var knownEventTypes = map[string]bool{
	EventConnectionCreated:   true,
	EventConnectionUpdated:   true,
	EventConnectionLoginOK:   true,
	EventConnectionError:     true,
	EventConnectionDeleted:   true,
	EventTransactionsCreated: true,
	EventTransactionsUpdated: true,
	EventConsentGranted:      true,
	EventConsentRenewed:      true,
	EventConsentRevoked:      true,
}

// Required data.object fields per event type, checked by the content
// gate. Unknown types have no rule and skip the gate.
var contentRules = map[string][]string{
	EventConnectionCreated:   {"connection_id", "connector_id", "status"},
	EventConnectionUpdated:   {"connection_id", "status"},
	EventConnectionLoginOK:   {"connection_id"},
	EventConnectionError:     {"connection_id", "error_code"},
	EventConnectionDeleted:   {"connection_id"},
	EventTransactionsCreated: {"connection_id"},
	EventTransactionsUpdated: {"connection_id"},
	EventConsentGranted:      {"connection_id", "consent_id", "expires_at"},
	EventConsentRenewed:      {"connection_id", "consent_id", "expires_at"},
	EventConsentRevoked:      {"connection_id", "consent_id"},
}

// Machine-readable rejection reasons returned to the sender.
const (
	ReasonInvalidSignature = "invalid_signature"
	ReasonStaleTimestamp   = "stale_timestamp"
	ReasonMalformedPayload = "malformed_payload"
	ReasonRateLimited      = "rate_limited"
	ReasonInvalidContent   = "invalid_content"
)

// ValidationError is a gate failure. Terminal for this delivery; the
// sender may redeliver, we never retry.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Reason + ": " + e.Detail
}

func reject(reason, detail string) error {
	return &ValidationError{Reason: reason, Detail: detail}
}

// ErrReplay marks a delivery whose event id was already seen. Not a
// rejection: the sender gets 200, nothing is reprocessed.
var ErrReplay = errors.New("event already processed")

// Event is a parsed, validated delivery.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Created int64     `json:"created"`
	Data    EventData `json:"data"`
}

type EventData struct {
	Object map[string]interface{} `json:"object"`
}

// ObjectString returns a string field of data.object, or "".
func (e *Event) ObjectString(key string) string {
	if v, ok := e.Data.Object[key].(string); ok {
		return v
	}
	return ""
}

// ReplayCache is the short-term seen-event-id set.
type ReplayCache interface {
	Seen(eventID string) bool
	Mark(eventID string)
}

const DefaultTolerance = 300 * time.Second

// Validator runs every inbound delivery through seven gates in fixed
// order: signature, timestamp, structure, replay, type allow-list, rate
// limit, content. The first failing gate short-circuits; no gate has
// side effects beyond logging and the replay mark.
type Validator struct {
	secrets   []string
	tolerance time.Duration
	replay    ReplayCache
	limiter   *RateLimiter
	now       func() time.Time
}

// NewValidator builds a validator. secret is the current shared secret;
// fallbacks are recently rotated-out secrets still accepted so rotation
// needs no downtime.
func NewValidator(secret string, fallbacks []string, tolerance time.Duration, replay ReplayCache, limiter *RateLimiter) *Validator {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Validator{
		secrets:   append([]string{secret}, fallbacks...),
		tolerance: tolerance,
		replay:    replay,
		limiter:   limiter,
		now:       time.Now,
	}
}

// Validate checks one delivery. It returns the parsed event when all
// gates pass, ErrReplay for an already-seen event id, or a
// *ValidationError naming the failed gate.
func (v *Validator) Validate(body []byte, signatureHeader string) (*Event, error) {
	now := v.now()

	// Gate 1: signature.
	timestamp, err := VerifySignature(v.secrets, signatureHeader, body)
	if err != nil {
		return nil, reject(ReasonInvalidSignature, err.Error())
	}

	// Gate 2: timestamp. A valid signature over a stale timestamp is a
	// replay of an old capture.
	age := now.Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return nil, reject(ReasonStaleTimestamp, fmt.Sprintf("signed timestamp %d outside %s tolerance", timestamp, v.tolerance))
	}

	// Gate 3: structure.
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, reject(ReasonMalformedPayload, "body is not valid JSON")
	}
	if event.ID == "" || event.Type == "" || event.Created == 0 || event.Data.Object == nil {
		return nil, reject(ReasonMalformedPayload, "missing required field id, type, created or data.object")
	}

	// Gate 4: replay. First sighting is marked immediately; later
	// sightings are accepted at the transport level but go no further.
	if v.replay.Seen(event.ID) {
		return &event, ErrReplay
	}
	v.replay.Mark(event.ID)

	// Gate 5: event-type allow-list. Unknown types are logged, not
	// rejected, so new provider events don't bounce before we support
	// them.
	if !knownEventTypes[event.Type] {
		log.Printf("INFO: accepting webhook event %s of unknown type %q", event.ID, event.Type)
	}

	// Gate 6: rate limit.
	if !v.limiter.Allow(event.Type, now) {
		return nil, reject(ReasonRateLimited, fmt.Sprintf("hourly ceiling reached for event type %q", event.Type))
	}

	// Gate 7: type-specific content.
	for _, field := range contentRules[event.Type] {
		if event.ObjectString(field) == "" {
			return nil, reject(ReasonInvalidContent, fmt.Sprintf("event type %q requires data.object.%s", event.Type, field))
		}
	}

	return &event, nil
}
