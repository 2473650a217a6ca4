package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"finlink-server/src/aggregator"
	"finlink-server/src/errs"
	"finlink-server/src/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the storage surface the orchestrator needs. The adapter in
// db/sql satisfies it; tests inject mocks.
type Store interface {
	GetAccount(ctx context.Context, id int64) (*models.LinkedAccount, error)
	ExistingTransactionIDs(ctx context.Context, accountID int64, externalIDs []string) (map[string]struct{}, error)
	InsertTransaction(ctx context.Context, txn *models.Transaction) (bool, error)
	UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal, asOf time.Time) (bool, error)
	TouchAccountSync(ctx context.Context, id int64, at time.Time) error
	CreateSyncRun(ctx context.Context, run *models.SyncRun) error
	CompleteSyncRun(ctx context.Context, runID string, found, newCount int, at time.Time) error
	FailSyncRun(ctx context.Context, runID string, errMsg string, found, newCount int, at time.Time) error
}

// DateRange bounds a sync run. A caller-supplied range is an explicit
// backfill and bypasses the frequency throttle.
type DateRange struct {
	From time.Time
	To   time.Time
}

type Options struct {
	PageSize   int
	MaxPages   int
	Lookback   time.Duration // default range for never-synced accounts
	LockTTL    time.Duration
	RunTimeout time.Duration
}

const (
	defaultPageSize   = 100
	defaultMaxPages   = 200
	defaultLookback   = 90 * 24 * time.Hour
	defaultLockTTL    = 10 * time.Minute
	defaultRunTimeout = 5 * time.Minute

	// Re-fetch a day before the last sync so records posted late by the
	// institution are still picked up. Ingestion is idempotent, so the
	// overlap costs nothing.
	syncOverlap = 24 * time.Hour
)

// Orchestrator runs the ingestion algorithm for one account at a time
// per account: throttle check, lease, paginated fetch with per-record
// dedup, balance reconciliation, run bookkeeping.
type Orchestrator struct {
	store  Store
	client aggregator.Client
	locks  *AccountLocks
	opts   Options
	now    func() time.Time
}

func NewOrchestrator(store Store, client aggregator.Client, opts Options) *Orchestrator {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if opts.Lookback <= 0 {
		opts.Lookback = defaultLookback
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = defaultRunTimeout
	}
	return &Orchestrator{
		store:  store,
		client: client,
		locks:  NewAccountLocks(opts.LockTTL),
		opts:   opts,
		now:    time.Now,
	}
}

// RunSync executes one sync run for the account. Failed upstream calls
// fail only this run; everything ingested before the failure stays, so
// a retry from scratch wastes nothing.
func (o *Orchestrator) RunSync(ctx context.Context, accountID int64, rng *DateRange) (*models.SyncOutcome, error) {
	now := o.now()

	account, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", accountID, err)
	}
	if !account.Active {
		return nil, fmt.Errorf("account %d is not active", accountID)
	}

	if rng == nil && !account.SyncDue(now) {
		log.Printf("INFO: sync for account %d skipped, last sync %v within frequency window", accountID, account.LastSyncAt)
		return &models.SyncOutcome{Status: models.OutcomeSkipped}, nil
	}

	if !o.locks.TryAcquire(accountID, now) {
		log.Printf("INFO: sync for account %d rejected, run already in progress", accountID)
		return &models.SyncOutcome{Status: models.OutcomeAlreadyRunning}, nil
	}
	defer o.locks.Release(accountID)

	ctx, cancel := context.WithTimeout(ctx, o.opts.RunTimeout)
	defer cancel()

	resolved := o.resolveRange(account, rng, now)
	run := &models.SyncRun{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Status:    models.RunRunning,
		StartedAt: now,
		FromDate:  resolved.From,
		ToDate:    resolved.To,
	}
	if err := o.store.CreateSyncRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create sync run: %w", err)
	}

	// Fetch the balance up front so credential problems fail the run
	// before any pagination work.
	if _, err := o.client.GetAccountBalance(ctx, account.AccountID); err != nil {
		return o.failRun(ctx, run, 0, 0, err), nil
	}

	found, newCount, walkErr := o.walkTransactionPages(ctx, account, resolved)
	if walkErr != nil {
		return o.failRun(ctx, run, found, newCount, walkErr), nil
	}

	// The balance applied is the final successful fetch of the run, so
	// it reflects everything the walk just ingested.
	balance, err := o.client.GetAccountBalance(ctx, account.AccountID)
	if err != nil {
		return o.failRun(ctx, run, found, newCount, err), nil
	}
	if err := o.reconcileBalance(ctx, account, balance); err != nil {
		return o.failRun(ctx, run, found, newCount, err), nil
	}

	completedAt := o.now()
	if err := o.store.CompleteSyncRun(ctx, run.ID, found, newCount, completedAt); err != nil {
		return nil, fmt.Errorf("complete sync run %s: %w", run.ID, err)
	}

	log.Printf("INFO: sync run %s for account %d completed: found=%d new=%d", run.ID, accountID, found, newCount)
	return &models.SyncOutcome{
		Status: models.OutcomeCompleted,
		RunID:  run.ID,
		Found:  found,
		New:    newCount,
	}, nil
}

func (o *Orchestrator) resolveRange(account *models.LinkedAccount, rng *DateRange, now time.Time) DateRange {
	if rng != nil {
		return *rng
	}
	if account.LastSyncAt != nil {
		return DateRange{From: account.LastSyncAt.Add(-syncOverlap), To: now}
	}
	return DateRange{From: now.Add(-o.opts.Lookback), To: now}
}

// walkTransactionPages drives the paginated fetch until exhaustion or
// the page budget, ingesting each page as it arrives. A malformed record
// is logged and skipped; it counts toward found but never new. Any
// transport error stops the walk with counts so far — prior pages stay.
func (o *Orchestrator) walkTransactionPages(ctx context.Context, account *models.LinkedAccount, rng DateRange) (found, newCount int, err error) {
	for page := 1; ; page++ {
		result, err := o.client.GetTransactions(ctx, account.AccountID, rng.From, rng.To, page, o.opts.PageSize)
		if err != nil {
			return found, newCount, fmt.Errorf("fetch page %d: %w", page, err)
		}

		pageFound, pageNew, err := o.ingestPage(ctx, account, result.Results)
		found += pageFound
		newCount += pageNew
		if err != nil {
			return found, newCount, fmt.Errorf("ingest page %d: %w", page, err)
		}

		if result.TotalPages <= page {
			return found, newCount, nil
		}
		if page >= o.opts.MaxPages {
			log.Printf("WARN: sync for account %d stopped at page budget (%d of %d pages)", account.ID, page, result.TotalPages)
			return found, newCount, nil
		}
	}
}

func (o *Orchestrator) ingestPage(ctx context.Context, account *models.LinkedAccount, records []aggregator.RawTransaction) (found, newCount int, err error) {
	mapped := make([]*models.Transaction, 0, len(records))
	externalIDs := make([]string, 0, len(records))
	for i := range records {
		found++
		txn, err := MapTransaction(account.ID, account.Currency, &records[i])
		if err != nil {
			log.Printf("WARN: skipping malformed transaction record for account %d: %v", account.ID, err)
			continue
		}
		mapped = append(mapped, txn)
		externalIDs = append(externalIDs, txn.ExternalID)
	}

	existing, err := o.store.ExistingTransactionIDs(ctx, account.ID, externalIDs)
	if err != nil {
		return found, 0, fmt.Errorf("check existing transactions: %w", err)
	}

	for _, txn := range mapped {
		if _, dup := existing[txn.ExternalID]; dup {
			continue
		}
		// The unique constraint decides; a concurrent sync inserting the
		// same external id makes this a silent no-op.
		inserted, err := o.store.InsertTransaction(ctx, txn)
		if err != nil {
			return found, newCount, fmt.Errorf("insert transaction %s: %w", txn.ExternalID, err)
		}
		if inserted {
			newCount++
		}
	}

	return found, newCount, nil
}

// reconcileBalance applies the fetched balance, re-checking that the
// account is still active at commit time. Deactivation mid-run turns the
// commit into a no-op.
func (o *Orchestrator) reconcileBalance(ctx context.Context, account *models.LinkedAccount, balance *aggregator.Balance) error {
	current, err := balance.GetCurrent()
	if err != nil {
		return fmt.Errorf("parse balance: %w", err)
	}
	asOf, err := balance.GetAsOf()
	if err != nil {
		return fmt.Errorf("parse balance date: %w", err)
	}
	if asOf.IsZero() {
		asOf = o.now()
	}

	applied, err := o.store.UpdateAccountBalance(ctx, account.ID, current, asOf)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if !applied {
		log.Printf("INFO: account %d deactivated during sync, balance not applied", account.ID)
		return nil
	}

	if err := o.store.TouchAccountSync(ctx, account.ID, o.now()); err != nil {
		return fmt.Errorf("update last sync time: %w", err)
	}
	return nil
}

func (o *Orchestrator) failRun(ctx context.Context, run *models.SyncRun, found, newCount int, cause error) *models.SyncOutcome {
	log.Printf("ERROR: sync run %s for account %d failed (kind=%s retryable=%t): %v",
		run.ID, run.AccountID, errs.KindOf(cause), errs.Retryable(cause), cause)
	// The run deadline may be what killed us; bookkeeping still has to land.
	ctx = context.WithoutCancel(ctx)
	if err := o.store.FailSyncRun(ctx, run.ID, cause.Error(), found, newCount, o.now()); err != nil {
		log.Printf("ERROR: failed to record failure of sync run %s: %v", run.ID, err)
	}
	return &models.SyncOutcome{
		Status: models.OutcomeFailed,
		RunID:  run.ID,
		Found:  found,
		New:    newCount,
		Error:  cause.Error(),
	}
}
