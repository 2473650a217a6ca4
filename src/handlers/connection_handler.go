package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"finlink-server/src/aggregator"
	db "finlink-server/src/db/sql"
	"finlink-server/src/models"
	"finlink-server/src/util"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultSyncFrequencyMinutes = 60

// CreateConnection registers a connection established through the
// provider's connect flow. The access token is stored encrypted; the
// connection and its accounts are bootstrapped from provider data.
func CreateConnection(client aggregator.Client, pool *pgxpool.Pool, enc *util.Encryptor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value("user_id").(int64)

		var req struct {
			ConnectionID  string `json:"connection_id"`
			AccessToken   string `json:"access_token"`
			SyncFrequency int    `json:"sync_frequency_minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConnectionID == "" || req.AccessToken == "" {
			http.Error(w, "connection_id and access_token are required", http.StatusBadRequest)
			return
		}
		if req.SyncFrequency <= 0 {
			req.SyncFrequency = defaultSyncFrequencyMinutes
		}

		conn := &models.LinkedConnection{
			UserID:       userID,
			ConnectionID: req.ConnectionID,
			Status:       models.StatusCreated,
		}
		if err := db.UpsertConnection(r.Context(), pool, conn); err != nil {
			http.Error(w, "Failed to save connection", http.StatusInternalServerError)
			log.Printf("ERROR: Failed to save connection %s for user %d: %v", req.ConnectionID, userID, err)
			return
		}

		encrypted, err := enc.Encrypt(req.AccessToken)
		if err != nil {
			http.Error(w, "Failed to store credentials", http.StatusInternalServerError)
			log.Printf("ERROR: Failed to encrypt token for connection %s: %v", req.ConnectionID, err)
			return
		}
		if err := db.SaveConnectionToken(r.Context(), pool, req.ConnectionID, encrypted); err != nil {
			http.Error(w, "Failed to store credentials", http.StatusInternalServerError)
			log.Printf("ERROR: Failed to save token for connection %s: %v", req.ConnectionID, err)
			return
		}

		// Refresh connector details and status from the provider now
		// that credentials are resolvable.
		provider, err := client.GetConnection(r.Context(), req.ConnectionID)
		if err != nil {
			http.Error(w, "Failed to fetch connection from provider", http.StatusBadGateway)
			log.Printf("ERROR: Failed to fetch connection %s: %v", req.ConnectionID, err)
			return
		}

		status := models.ConnectionStatus(provider.Status)
		if !models.IsKnownStatus(status) {
			status = models.StatusCreated
		}
		conn.ConnectorID = provider.ConnectorID
		conn.ConnectorName = provider.ConnectorName
		conn.Status = status
		conn.ExecutionStatus = provider.ExecutionStatus
		if err := db.UpsertConnection(r.Context(), pool, conn); err != nil {
			http.Error(w, "Failed to save connection", http.StatusInternalServerError)
			log.Printf("ERROR: Failed to update connection %s: %v", req.ConnectionID, err)
			return
		}

		stored, err := db.GetConnectionByExternalID(r.Context(), pool, req.ConnectionID)
		if err != nil {
			http.Error(w, "Failed to load connection", http.StatusInternalServerError)
			log.Printf("ERROR: Failed to load connection %s: %v", req.ConnectionID, err)
			return
		}

		accounts, err := client.GetAccounts(r.Context(), req.ConnectionID)
		if err != nil {
			http.Error(w, "Failed to fetch accounts from provider", http.StatusBadGateway)
			log.Printf("ERROR: Failed to fetch accounts for connection %s: %v", req.ConnectionID, err)
			return
		}

		for _, acc := range accounts {
			balance, err := acc.GetBalance()
			if err != nil {
				log.Printf("WARN: unparsable balance for account %s: %v", acc.ID, err)
			}
			linked := &models.LinkedAccount{
				AccountID:     acc.ID,
				Name:          acc.Name,
				Type:          acc.Type,
				Subtype:       acc.Subtype,
				Mask:          acc.Mask,
				Currency:      acc.CurrencyCode,
				Balance:       balance,
				SyncFrequency: req.SyncFrequency,
			}
			if err := db.UpsertAccount(r.Context(), pool, stored.ID, linked); err != nil {
				http.Error(w, "Failed to save accounts", http.StatusInternalServerError)
				log.Printf("ERROR: Failed to save account %s: %v", acc.ID, err)
				return
			}
		}

		log.Printf("INFO: registered connection %s with %d accounts for user %d", req.ConnectionID, len(accounts), userID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(stored)
	}
}

func ListConnections(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value("user_id").(int64)

		connections, err := db.ListConnections(r.Context(), pool, userID)
		if err != nil {
			http.Error(w, "Failed to retrieve connections", http.StatusInternalServerError)
			log.Printf("ERROR: Failed to get connections for user %d: %v", userID, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(connections)
	}
}

func GetConnectionAccounts(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connectionID := chi.URLParam(r, "connection_id")

		accounts, err := db.GetAccountsByConnection(r.Context(), pool, connectionID)
		if err != nil {
			http.Error(w, "Failed to retrieve accounts", http.StatusInternalServerError)
			log.Printf("ERROR: Failed to get accounts for connection %s: %v", connectionID, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(accounts)
	}
}
