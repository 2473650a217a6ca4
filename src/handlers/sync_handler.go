package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	cache "finlink-server/src/db"
	db "finlink-server/src/db/sql"
	"finlink-server/src/models"
	"finlink-server/src/sync"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const syncHistoryLimit = 50

// RunSync triggers one synchronous sync run for an account. An explicit
// from/to range is a backfill and bypasses the frequency throttle.
func RunSync(orchestrator *sync.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := strconv.ParseInt(chi.URLParam(r, "account_id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid account id", http.StatusBadRequest)
			return
		}

		var rng *sync.DateRange
		if fromStr := r.URL.Query().Get("from"); fromStr != "" {
			from, err := time.Parse("2006-01-02", fromStr)
			if err != nil {
				http.Error(w, "invalid from date", http.StatusBadRequest)
				return
			}
			to := time.Now()
			if toStr := r.URL.Query().Get("to"); toStr != "" {
				to, err = time.Parse("2006-01-02", toStr)
				if err != nil {
					http.Error(w, "invalid to date", http.StatusBadRequest)
					return
				}
			}
			rng = &sync.DateRange{From: from, To: to}
		}

		outcome, err := orchestrator.RunSync(r.Context(), accountID, rng)
		if err != nil {
			http.Error(w, "sync failed to start", http.StatusBadRequest)
			log.Printf("ERROR: sync for account %d could not start: %v", accountID, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if outcome.Status == models.OutcomeAlreadyRunning {
			w.WriteHeader(http.StatusConflict)
		}
		json.NewEncoder(w).Encode(outcome)
	}
}

func GetSyncHistory(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := strconv.ParseInt(chi.URLParam(r, "account_id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid account id", http.StatusBadRequest)
			return
		}

		runs, err := db.GetSyncHistory(r.Context(), pool, accountID, syncHistoryLimit)
		if err != nil {
			http.Error(w, "Failed to retrieve sync history", http.StatusInternalServerError)
			log.Printf("ERROR: Failed to get sync history for account %d: %v", accountID, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	}
}

func GetAccountTransactions(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := strconv.ParseInt(chi.URLParam(r, "account_id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid account id", http.StatusBadRequest)
			return
		}

		limit := 100
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 1000 {
				limit = parsed
			}
		}

		transactions, err := db.GetTransactions(r.Context(), pool, accountID, limit)
		if err != nil {
			http.Error(w, "Failed to retrieve transactions", http.StatusInternalServerError)
			log.Printf("ERROR: Failed to get transactions for account %d: %v", accountID, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(transactions)
	}
}

type connectionStatusResponse struct {
	Status          models.ConnectionStatus `json:"status"`
	ExecutionStatus string                  `json:"execution_status"`
	ErrorCode       *string                 `json:"error_code,omitempty"`
}

// GetConnectionStatus reads through a short-TTL cache; webhook dispatch
// invalidates the entry whenever the connection changes.
func GetConnectionStatus(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connectionID := chi.URLParam(r, "connection_id")
		cacheKey := "connstatus:" + connectionID

		if cached, ok := cache.GetConnStatusCache(cacheKey); ok {
			if resp, ok := cached.(connectionStatusResponse); ok {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(resp)
				return
			}
		}

		conn, err := db.GetConnectionByExternalID(r.Context(), pool, connectionID)
		if err != nil {
			http.Error(w, "Connection not found", http.StatusNotFound)
			log.Printf("ERROR: Failed to get connection %s: %v", connectionID, err)
			return
		}

		resp := connectionStatusResponse{
			Status:          conn.Status,
			ExecutionStatus: conn.ExecutionStatus,
			ErrorCode:       conn.ErrorCode,
		}
		cache.SetConnStatusCache(cacheKey, resp)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
