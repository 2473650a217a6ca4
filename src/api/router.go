package api

import (
	"finlink-server/src/aggregator"
	"finlink-server/src/handlers"
	"finlink-server/src/middleware"
	"finlink-server/src/sync"
	"finlink-server/src/util"
	"finlink-server/src/webhook"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Deps bundles what the routes need. The webhook route is the only
// unauthenticated one besides /health; deliveries authenticate by
// signature, everything else by JWT.
type Deps struct {
	Pool         *pgxpool.Pool
	JWTSecret    string
	Client       aggregator.Client
	Encryptor    *util.Encryptor
	Orchestrator *sync.Orchestrator
	Validator    *webhook.Validator
	Dispatcher   *webhook.Dispatcher
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.LoggingMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhooks/aggregator", handlers.AggregatorWebhook(d.Validator, d.Dispatcher))

		// Protected routes
		r.With(middleware.JWTAuthMiddleware(d.JWTSecret)).Group(func(r chi.Router) {
			// Connections
			r.Post("/connections", handlers.CreateConnection(d.Client, d.Pool, d.Encryptor))
			r.Get("/connections", handlers.ListConnections(d.Pool))
			r.Get("/connections/{connection_id}/status", handlers.GetConnectionStatus(d.Pool))
			r.Get("/connections/{connection_id}/accounts", handlers.GetConnectionAccounts(d.Pool))

			// Accounts
			r.Get("/accounts/{account_id}/transactions", handlers.GetAccountTransactions(d.Pool))

			// Sync
			r.Post("/sync/accounts/{account_id}", handlers.RunSync(d.Orchestrator))
			r.Get("/sync/accounts/{account_id}/history", handlers.GetSyncHistory(d.Pool))
		})
	})

	return r
}
