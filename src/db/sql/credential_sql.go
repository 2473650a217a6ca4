package db

import (
	"context"
	"fmt"

	"finlink-server/src/util"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialStore resolves per-connection aggregator access tokens from
// their encrypted at-rest column. It satisfies the aggregator client's
// CredentialSource.
type CredentialStore struct {
	Pool *pgxpool.Pool
	Enc  *util.Encryptor
}

func NewCredentialStore(pool *pgxpool.Pool, enc *util.Encryptor) *CredentialStore {
	return &CredentialStore{Pool: pool, Enc: enc}
}

func (s *CredentialStore) TokenForConnection(ctx context.Context, connectionID string) (string, error) {
	query := `SELECT access_token_encrypted FROM linked_connections WHERE connection_id = $1 AND active`

	var encrypted string
	if err := s.Pool.QueryRow(ctx, query, connectionID).Scan(&encrypted); err != nil {
		return "", fmt.Errorf("no credentials for connection %s: %w", connectionID, err)
	}
	return s.Enc.Decrypt(encrypted)
}

func (s *CredentialStore) TokenForAccount(ctx context.Context, accountID string) (string, error) {
	query := `
		SELECT c.access_token_encrypted
		FROM linked_connections c
		JOIN linked_accounts a ON a.connection_id = c.id
		WHERE a.account_id = $1 AND c.active
	`

	var encrypted string
	if err := s.Pool.QueryRow(ctx, query, accountID).Scan(&encrypted); err != nil {
		return "", fmt.Errorf("no credentials for account %s: %w", accountID, err)
	}
	return s.Enc.Decrypt(encrypted)
}
