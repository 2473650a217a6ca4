package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Client is the consumed contract of the account-aggregation provider.
// The provider itself is a black box; the sync engine only depends on
// this surface.
type Client interface {
	GetConnection(ctx context.Context, connectionID string) (*Connection, error)
	GetAccounts(ctx context.Context, connectionID string) ([]Account, error)
	GetAccountBalance(ctx context.Context, accountID string) (*Balance, error)
	GetTransactions(ctx context.Context, accountID string, from, to time.Time, page, pageSize int) (*TransactionPage, error)
}

// CredentialSource resolves the per-connection access token the provider
// expects as a bearer credential. Implementations decrypt tokens stored
// at rest; injected so the client never touches the database directly.
type CredentialSource interface {
	TokenForConnection(ctx context.Context, connectionID string) (string, error)
	TokenForAccount(ctx context.Context, accountID string) (string, error)
}

// Connection is the provider's view of a linked institution session.
type Connection struct {
	ID              string  `json:"id"`
	ConnectorID     string  `json:"connectorId"`
	ConnectorName   string  `json:"connectorName"`
	Status          string  `json:"status"`
	ExecutionStatus string  `json:"executionStatus"`
	ErrorCode       *string `json:"errorCode"`
	ErrorMessage    *string `json:"errorMessage"`
	ConsentID       *string `json:"consentId"`
	ConsentExpires  *string `json:"consentExpiresAt"`
}

// Account is one financial account as reported by the provider.
type Account struct {
	ID            string `json:"id"`
	ConnectionID  string `json:"itemId"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Subtype       string `json:"subtype"`
	Mask          string `json:"number"`
	CurrencyCode  string `json:"currencyCode"`
	BalanceString string `json:"balance"` // provider returns balance as string
}

// GetBalance parses the string-encoded balance.
func (a *Account) GetBalance() (decimal.Decimal, error) {
	if a.BalanceString == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(a.BalanceString)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance '%s': %w", a.BalanceString, err)
	}
	return d, nil
}

// Balance is a point-in-time balance report for one account.
type Balance struct {
	AccountID     string `json:"accountId"`
	CurrentString string `json:"current"`
	AsOfString    string `json:"asOf"` // RFC 3339
}

func (b *Balance) GetCurrent() (decimal.Decimal, error) {
	if b.CurrentString == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(b.CurrentString)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance '%s': %w", b.CurrentString, err)
	}
	return d, nil
}

func (b *Balance) GetAsOf() (time.Time, error) {
	if b.AsOfString == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, b.AsOfString)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse asOf '%s': %w", b.AsOfString, err)
	}
	return t, nil
}

// RawTransaction is one transaction record as the provider reports it.
// Amounts arrive as strings; Type is "CREDIT" or "DEBIT"; Category and
// ProviderCode are optional hints for the internal type mapping.
type RawTransaction struct {
	ID           string  `json:"id"`
	Description  string  `json:"description"`
	AmountString string  `json:"amount"`
	CurrencyCode string  `json:"currencyCode"`
	DateString   string  `json:"date"` // "2006-01-02 15:04:05"
	Type         string  `json:"type"`
	Category     *string `json:"category"`
	ProviderCode *string `json:"providerCode"`
}

func (t *RawTransaction) GetAmount() (decimal.Decimal, error) {
	if t.AmountString == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(t.AmountString)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse amount '%s': %w", t.AmountString, err)
	}
	return d, nil
}

func (t *RawTransaction) GetDate() (time.Time, error) {
	if t.DateString == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	parsed, err := time.Parse("2006-01-02 15:04:05", t.DateString)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, t.DateString)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse date '%s': %w", t.DateString, err)
		}
	}
	return parsed, nil
}

// TransactionPage is one page of the provider's paginated transaction
// listing.
type TransactionPage struct {
	Results    []RawTransaction `json:"results"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
}
