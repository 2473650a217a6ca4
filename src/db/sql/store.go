package db

import (
	"context"
	"encoding/json"
	"time"

	"finlink-server/src/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store adapts the query functions in this package to the narrow
// interfaces the sync orchestrator and webhook dispatcher depend on.
type Store struct {
	Pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*models.LinkedAccount, error) {
	return GetAccount(ctx, s.Pool, id)
}

func (s *Store) ExistingTransactionIDs(ctx context.Context, accountID int64, externalIDs []string) (map[string]struct{}, error) {
	return ExistingTransactionIDs(ctx, s.Pool, accountID, externalIDs)
}

func (s *Store) InsertTransaction(ctx context.Context, txn *models.Transaction) (bool, error) {
	return InsertTransaction(ctx, s.Pool, txn)
}

func (s *Store) UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal, asOf time.Time) (bool, error) {
	return UpdateAccountBalance(ctx, s.Pool, id, balance, asOf)
}

func (s *Store) TouchAccountSync(ctx context.Context, id int64, at time.Time) error {
	return TouchAccountSync(ctx, s.Pool, id, at)
}

func (s *Store) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	return CreateSyncRun(ctx, s.Pool, run)
}

func (s *Store) CompleteSyncRun(ctx context.Context, runID string, found, newCount int, at time.Time) error {
	return CompleteSyncRun(ctx, s.Pool, runID, found, newCount, at)
}

func (s *Store) FailSyncRun(ctx context.Context, runID string, errMsg string, found, newCount int, at time.Time) error {
	return FailSyncRun(ctx, s.Pool, runID, errMsg, found, newCount, at)
}

func (s *Store) InsertEvent(ctx context.Context, eventID, eventType string, payload json.RawMessage) (bool, error) {
	return InsertWebhookEvent(ctx, s.Pool, eventID, eventType, payload)
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	return GetWebhookEvent(ctx, s.Pool, eventID)
}

func (s *Store) MarkEventProcessed(ctx context.Context, eventID string) error {
	return MarkWebhookProcessed(ctx, s.Pool, eventID)
}

func (s *Store) MarkEventError(ctx context.Context, eventID, errMsg string) error {
	return MarkWebhookError(ctx, s.Pool, eventID, errMsg)
}

func (s *Store) GetConnection(ctx context.Context, connectionID string) (*models.LinkedConnection, error) {
	return GetConnectionByExternalID(ctx, s.Pool, connectionID)
}

func (s *Store) UpsertConnection(ctx context.Context, conn *models.LinkedConnection) error {
	return UpsertConnection(ctx, s.Pool, conn)
}

func (s *Store) UpdateConnectionStatus(ctx context.Context, connectionID string, status models.ConnectionStatus, executionStatus string, errorCode, errorMessage *string, statusDetail json.RawMessage) error {
	return UpdateConnectionStatus(ctx, s.Pool, connectionID, status, executionStatus, errorCode, errorMessage, statusDetail)
}

func (s *Store) UpdateConnectionConsent(ctx context.Context, connectionID, consentID string, expiresAt *time.Time) error {
	return UpdateConnectionConsent(ctx, s.Pool, connectionID, consentID, expiresAt)
}

func (s *Store) DeactivateConnection(ctx context.Context, connectionID string) error {
	return DeactivateConnection(ctx, s.Pool, connectionID)
}

func (s *Store) ActiveAccountIDs(ctx context.Context, connectionID string) ([]int64, error) {
	return ActiveAccountIDsByConnection(ctx, s.Pool, connectionID)
}
