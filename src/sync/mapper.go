package sync

import (
	"encoding/json"
	"strings"

	"finlink-server/src/aggregator"
	"finlink-server/src/errs"
	"finlink-server/src/models"
)

// typePair holds the internal type for each direction of a provider
// hint; "TRANSFER" means transfer_in for credits and transfer_out for
// debits.
type typePair struct {
	credit models.TransactionType
	debit  models.TransactionType
}

func (p typePair) pick(direction string) models.TransactionType {
	if direction == "CREDIT" {
		return p.credit
	}
	return p.debit
}

// Provider-specific codes are the most specific signal the provider
// gives and win over category hints. Both tables are static: the same
// record always maps to the same internal type.
var providerCodeTypes = map[string]typePair{
	"TRANSFER":     {models.TypeTransferIn, models.TypeTransferOut},
	"WIRE":         {models.TypeTransferIn, models.TypeTransferOut},
	"ACH":          {models.TypeTransferIn, models.TypeTransferOut},
	"FEE":          {models.TypeFee, models.TypeFee},
	"SERVICE_FEE":  {models.TypeFee, models.TypeFee},
	"INTEREST":     {models.TypeInterest, models.TypeInterest},
	"PAYMENT":      {models.TypePayment, models.TypePayment},
	"BILL_PAYMENT": {models.TypePayment, models.TypePayment},
	"REFUND":       {models.TypeRefund, models.TypeRefund},
	"CHARGEBACK":   {models.TypeRefund, models.TypeRefund},
}

var categoryTypes = map[string]typePair{
	"transfer":  {models.TypeTransferIn, models.TypeTransferOut},
	"transfers": {models.TypeTransferIn, models.TypeTransferOut},
	"fees":      {models.TypeFee, models.TypeFee},
	"bank fees": {models.TypeFee, models.TypeFee},
	"interest":  {models.TypeInterest, models.TypeInterest},
	"payments":  {models.TypePayment, models.TypePayment},
	"refunds":   {models.TypeRefund, models.TypeRefund},
}

// MapTransactionType resolves the internal type for a raw record.
// Precedence: provider code, then category hint, then the bare
// credit/debit direction.
func MapTransactionType(direction string, providerCode, category *string) models.TransactionType {
	if providerCode != nil {
		if pair, ok := providerCodeTypes[strings.ToUpper(strings.TrimSpace(*providerCode))]; ok {
			return pair.pick(direction)
		}
	}
	if category != nil {
		if pair, ok := categoryTypes[strings.ToLower(strings.TrimSpace(*category))]; ok {
			return pair.pick(direction)
		}
	}
	if direction == "CREDIT" {
		return models.TypeCredit
	}
	return models.TypeDebit
}

// MapTransaction normalizes one raw provider record for the given
// account. A record missing its id, amount, or date is malformed and
// reported with the malformed_record kind so the caller can skip it
// without aborting the page.
func MapTransaction(accountID int64, fallbackCurrency string, raw *aggregator.RawTransaction) (*models.Transaction, error) {
	if raw.ID == "" {
		return nil, errs.Newf(errs.KindMalformedRecord, "transaction record has no id")
	}

	amount, err := raw.GetAmount()
	if err != nil {
		return nil, errs.Newf(errs.KindMalformedRecord, "transaction %s: %v", raw.ID, err)
	}

	date, err := raw.GetDate()
	if err != nil {
		return nil, errs.Newf(errs.KindMalformedRecord, "transaction %s: %v", raw.ID, err)
	}

	direction := strings.ToUpper(raw.Type)
	if direction != "CREDIT" && direction != "DEBIT" {
		// Some connectors omit the flag; fall back to the amount's sign.
		if amount.IsNegative() {
			direction = "DEBIT"
		} else {
			direction = "CREDIT"
		}
	}

	currency := raw.CurrencyCode
	if currency == "" {
		currency = fallbackCurrency
	}

	rawData, err := json.Marshal(raw)
	if err != nil {
		return nil, errs.Newf(errs.KindMalformedRecord, "transaction %s: %v", raw.ID, err)
	}

	return &models.Transaction{
		AccountID:   accountID,
		ExternalID:  raw.ID,
		Type:        MapTransactionType(direction, raw.ProviderCode, raw.Category),
		Amount:      amount.Abs(),
		Currency:    currency,
		Date:        date,
		Description: raw.Description,
		Category:    raw.Category,
		RawData:     rawData,
	}, nil
}
