package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"finlink-server/src/webhook"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// AggregatorWebhook receives deliveries from the aggregation provider.
// Replies must land inside the sender's delivery timeout, so nothing
// slow happens here: validation, persistence and status transitions
// only. Sync work triggered by an event goes to the background pool.
func AggregatorWebhook(validator *webhook.Validator, dispatcher *webhook.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "unable to read body", http.StatusBadRequest)
			return
		}

		event, err := validator.Validate(body, r.Header.Get("X-Webhook-Signature"))
		if err != nil {
			if errors.Is(err, webhook.ErrReplay) {
				// Replays are acknowledged but still go through the
				// dispatcher: processed rows no-op there, and a delivery
				// whose dispatch failed after the replay mark gets
				// persisted and applied on redelivery.
				if err := dispatcher.Dispatch(r.Context(), event, body); err != nil {
					log.Printf("ERROR: failed to dispatch webhook event %s: %v", event.ID, err)
					http.Error(w, "dispatch failed", http.StatusInternalServerError)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{"status": "ignored"})
				return
			}

			var vErr *webhook.ValidationError
			if errors.As(err, &vErr) {
				log.Printf("INFO: webhook delivery rejected: %v", vErr)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{
					"error":  vErr.Reason,
					"detail": vErr.Detail,
				})
				return
			}

			log.Printf("ERROR: webhook validation failed unexpectedly: %v", err)
			http.Error(w, "validation failed", http.StatusInternalServerError)
			return
		}

		if err := dispatcher.Dispatch(r.Context(), event, body); err != nil {
			// Let the sender redeliver; the persisted event row makes
			// the retry idempotent.
			log.Printf("ERROR: failed to dispatch webhook event %s: %v", event.ID, err)
			http.Error(w, "dispatch failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	}
}
