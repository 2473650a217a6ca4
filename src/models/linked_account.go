package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LinkedAccount is one financial account reachable through a
// LinkedConnection. Balance and BalanceAsOf are written only by the
// balance reconciler at the end of a successful sync run.
type LinkedAccount struct {
	ID            int64           `json:"id"`
	ConnectionID  int64           `json:"connection_id"`
	AccountID     string          `json:"account_id"` // provider id, unique per tenant
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	Subtype       string          `json:"subtype"`
	Mask          string          `json:"mask"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	BalanceAsOf   *time.Time      `json:"balance_as_of,omitempty"`
	SyncFrequency int             `json:"sync_frequency_minutes"`
	LastSyncAt    *time.Time      `json:"last_sync_at,omitempty"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SyncDue reports whether the frequency throttle window has elapsed.
func (a *LinkedAccount) SyncDue(now time.Time) bool {
	if a.LastSyncAt == nil {
		return true
	}
	return now.Sub(*a.LastSyncAt) >= time.Duration(a.SyncFrequency)*time.Minute
}
