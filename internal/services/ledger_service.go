package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/eventpass/cashless/internal/audit"
	"github.com/eventpass/cashless/internal/config"
	"github.com/eventpass/cashless/internal/models"
	"github.com/eventpass/cashless/internal/store"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	OpActivate    = "activate"
	OpCredit      = "credit"
	OpDebit       = "debit"
	OpTransfer    = "transfer"
	OpFreeze      = "freeze"
	OpUnfreeze    = "unfreeze"
	OpRefund      = "refund"
	OpBlockSerial = "block_serial"
	OpReconcile   = "reconcile"
	OpOpenWallet  = "open_wallet"
)

// Publisher is notified after a ledger operation has durably committed.
type Publisher interface {
	PublishCommitted(ctx context.Context, result *models.Result) error
}

// Recorder receives operation metrics.
type Recorder interface {
	ObserveOperation(operation, outcome string, duration time.Duration)
	ObserveRetry(operation string)
}

type noopPublisher struct{}

func (noopPublisher) PublishCommitted(context.Context, *models.Result) error { return nil }

type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, string, time.Duration) {}

func (noopRecorder) ObserveRetry(string) {}

// LedgerService is the only writer of balances and the transaction log.
// Every mutating operation runs as one atomic unit of work against the store
// and is retried when it loses an optimistic concurrency race.
type LedgerService struct {
	store     store.Store
	cfg       *config.LedgerConfig
	publisher Publisher
	recorder  Recorder
	audit     *audit.AuditLogger
	newID     func() string
}

type Option func(*LedgerService)

func WithPublisher(p Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

func WithRecorder(r Recorder) Option {
	return func(s *LedgerService) { s.recorder = r }
}

func WithAuditLogger(a *audit.AuditLogger) Option {
	return func(s *LedgerService) { s.audit = a }
}

func NewLedgerService(st store.Store, cfg *config.LedgerConfig, opts ...Option) *LedgerService {
	if cfg == nil {
		cfg = config.DefaultLedgerConfig()
	}
	s := &LedgerService{
		store:     st,
		cfg:       cfg,
		publisher: noopPublisher{},
		recorder:  noopRecorder{},
		audit:     audit.NewAuditLogger(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutation decides and writes one operation inside a unit of work.
type mutation func(ctx context.Context, tx store.Tx, txID string) (*models.Result, error)

// receiptScope fingerprints what a request id was first used for: the
// account, the acting party and the amount.
func receiptScope(parts ...any) string {
	fields := make([]string, len(parts))
	for i, p := range parts {
		fields[i] = fmt.Sprint(p)
	}
	return strings.Join(fields, "|")
}

// execute runs fn as a retried unit of work. When requestID is set, the
// committed result is stored with the unit together with scope, and returned
// as-is when the same request arrives again.
func (s *LedgerService) execute(ctx context.Context, op, requestID, scope, accountID string, amount int64, keys []string, fn mutation) (*models.Result, error) {
	start := time.Now()
	if requestID != "" {
		keys = append(keys, store.ReceiptKey(requestID))
	}

	var result *models.Result
	err := s.runUnit(ctx, op, keys, func(ctx context.Context, tx store.Tx) error {
		result = nil

		if requestID != "" {
			receipt, err := tx.GetReceipt(ctx, requestID)
			if err == nil {
				if receipt.Operation != op {
					return newError(ReasonInvalidArgument, "request id %s was already used for %s", requestID, receipt.Operation)
				}
				if receipt.Scope != scope {
					return newError(ReasonInvalidArgument, "request id %s was already used for a different %s", requestID, op)
				}
				replayed := receipt.Result
				replayed.Replayed = true
				result = &replayed
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		txID := s.newID()
		res, err := fn(ctx, tx, txID)
		if err != nil {
			return err
		}
		res.TransactionID = txID
		res.Operation = op

		if requestID != "" {
			if err := tx.PutReceipt(ctx, &models.Receipt{
				RequestID: requestID,
				Operation: op,
				Scope:     scope,
				Result:    *res,
				CreatedAt: tx.Now(),
			}); err != nil {
				return err
			}
		}
		result = res
		return nil
	})

	if err != nil {
		le := s.translate(err)
		s.recorder.ObserveOperation(op, string(le.Reason), time.Since(start))
		s.audit.LogError(op, accountID, amount, le)
		return nil, le
	}

	if result.Replayed {
		s.recorder.ObserveOperation(op, "replayed", time.Since(start))
		return result, nil
	}

	s.recorder.ObserveOperation(op, "ok", time.Since(start))
	s.audit.LogCommitted(result)
	if err := s.publisher.PublishCommitted(ctx, result); err != nil {
		log.Printf("[LEDGER] publishing %s %s failed: %v", op, result.TransactionID, err)
	}
	return result, nil
}

// runUnit retries fn while the store reports a concurrent modification.
func (s *LedgerService) runUnit(ctx context.Context, op string, keys []string, fn store.UnitFunc) error {
	attempt := 0
	return retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			s.recorder.ObserveRetry(op)
		}

		err := s.store.WithAtomicUnit(ctx, keys, fn)
		if errors.Is(err, store.ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *LedgerService) backoff() retry.Backoff {
	attempts := s.cfg.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	base := s.cfg.RetryBaseDelay
	if base <= 0 {
		base = time.Millisecond
	}

	b := retry.NewExponential(base)
	if s.cfg.RetryMaxDelay > 0 {
		b = retry.WithCappedDuration(s.cfg.RetryMaxDelay, b)
	}
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(attempts-1, b)
}

// translate turns store and context failures into the ledger error taxonomy.
func (s *LedgerService) translate(err error) *LedgerError {
	if le, ok := AsLedgerError(err); ok {
		return le
	}
	switch {
	case errors.Is(err, store.ErrConflict):
		return newError(ReasonTransient, "too much contention on the account, retry later").wrap(err)
	case errors.Is(err, store.ErrUnavailable):
		return newError(ReasonTransient, "ledger store unavailable").wrap(err)
	case errors.Is(err, store.ErrConstraint):
		return newError(ReasonInvalidAmount, "amount rejected by a balance constraint").wrap(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(ReasonTransient, "request canceled before commit").wrap(err)
	}
	log.Printf("[LEDGER] unexpected error: %v", err)
	return newError(ReasonInternal, "internal ledger error").wrap(err)
}

// loadAccount reads an account inside a unit, mapping a miss to reason.
func loadAccount(ctx context.Context, tx store.Tx, id string, reason Reason) (*models.Account, error) {
	account, err := tx.GetAccount(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(reason, "account %s not found", id)
	}
	return account, err
}

// requireMutable rejects balance changes on inactive or frozen accounts.
func requireMutable(account *models.Account) error {
	switch account.Status {
	case models.AccountStatusInactive:
		return newError(ReasonAccountInactive, "account %s is not activated", account.ID).withAccount(account)
	case models.AccountStatusFrozen:
		return newError(ReasonAccountFrozen, "account %s is frozen", account.ID).withAccount(account)
	}
	return nil
}

// post applies amount to one balance field of account, advances its stats,
// and returns the matching log entry.
func post(account *models.Account, txID string, entryType models.EntryType, field models.BalanceField, amount int64, now time.Time) *models.LedgerEntry {
	var after int64
	switch field {
	case models.FieldBonusBalance:
		account.BonusBalance += amount
		after = account.BonusBalance
	default:
		field = models.FieldBalance
		account.Balance += amount
		after = account.Balance
	}

	if amount > 0 {
		account.Stats.TotalCredited += amount
	} else {
		account.Stats.TotalDebited -= amount
	}
	account.Stats.TransactionCount++
	account.UpdatedAt = now

	return &models.LedgerEntry{
		ID:            uuid.NewString(),
		TransactionID: txID,
		AccountID:     account.ID,
		Type:          entryType,
		Field:         field,
		Amount:        amount,
		BalanceAfter:  after,
		Sequence:      account.Stats.TransactionCount,
		CreatedAt:     now,
	}
}

func requirePositive(amount int64) error {
	if amount <= 0 {
		return newError(ReasonInvalidAmount, "amount must be positive, got %d", amount)
	}
	return nil
}

// requireAmount also enforces the configured per-operation maximum.
func (s *LedgerService) requireAmount(amount int64) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if s.cfg.MaxAmount > 0 && amount > s.cfg.MaxAmount {
		return newError(ReasonInvalidAmount, "amount %d exceeds the per-operation maximum of %d", amount, s.cfg.MaxAmount)
	}
	return nil
}

// requireHeadroom rejects a credit that would overflow the balance field or
// the account's running credit total.
func requireHeadroom(account *models.Account, field models.BalanceField, amount int64) error {
	current := account.Balance
	if field == models.FieldBonusBalance {
		current = account.BonusBalance
	}
	if amount > math.MaxInt64-current || amount > math.MaxInt64-account.Stats.TotalCredited {
		return newError(ReasonInvalidAmount, "crediting %d would overflow account %s", amount, account.ID).withAccount(account)
	}
	return nil
}
