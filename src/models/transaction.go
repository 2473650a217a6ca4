package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the normalized internal classification of a ledger
// entry. The amount is stored as a magnitude; direction comes from the
// type.
type TransactionType string

const (
	TypeCredit      TransactionType = "credit"
	TypeDebit       TransactionType = "debit"
	TypeTransferIn  TransactionType = "transfer_in"
	TypeTransferOut TransactionType = "transfer_out"
	TypePayment     TransactionType = "payment"
	TypeFee         TransactionType = "fee"
	TypeInterest    TransactionType = "interest"
	TypeRefund      TransactionType = "refund"
)

// Inbound reports whether the type moves money into the account.
func (t TransactionType) Inbound() bool {
	switch t {
	case TypeCredit, TypeTransferIn, TypeInterest, TypeRefund:
		return true
	}
	return false
}

// Transaction is a normalized ledger entry. (account_id, external_id) is
// the idempotency key: once created, the external identity never changes.
// Corrections arrive as new provider events; only Category and Notes are
// mutable after the fact.
type Transaction struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"account_id"`
	ExternalID  string          `json:"external_id"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Category    *string         `json:"category,omitempty"`
	Notes       *string         `json:"notes,omitempty"`
	RawData     json.RawMessage `json:"raw_data,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SignedAmount returns the amount with the conventional sign for the
// transaction's direction.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type.Inbound() {
		return t.Amount
	}
	return t.Amount.Neg()
}
