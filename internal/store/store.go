package store

import (
	"context"
	"errors"
	"time"

	"github.com/eventpass/cashless/internal/models"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrConflict    = errors.New("concurrent modification")
	ErrDuplicate   = errors.New("duplicate record")
	ErrUnavailable = errors.New("store unavailable")
	ErrConstraint  = errors.New("write violates a balance constraint")
)

// UnitFunc is the read-decide-write body of an atomic unit of work.
// Returning an error aborts the unit with no side effects.
type UnitFunc func(ctx context.Context, tx Tx) error

// Store is the durable backing of accounts, inventory and the transaction log.
type Store interface {
	// WithAtomicUnit runs fn so that every record it reads and writes commits
	// together or not at all. keys are lock hints; ErrConflict is returned when
	// a concurrent writer invalidated something fn read.
	WithAtomicUnit(ctx context.Context, keys []string, fn UnitFunc) error

	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccountsByOwner(ctx context.Context, ownerID string) ([]*models.Account, error)
	GetInventory(ctx context.Context, serial string) (*models.InventoryEntry, error)
	ListEntries(ctx context.Context, accountID string, limit int) ([]*models.LedgerEntry, error)
	ListDailyAggregates(ctx context.Context, scope models.AggregateScope, scopeID, fromDay, toDay string) ([]*models.DailyAggregate, error)
}

// Provisioner registers new wristband serials as available inventory.
type Provisioner interface {
	ProvisionInventory(ctx context.Context, serials ...string) (int, error)
}

// Tx is the view of the store inside one atomic unit of work.
type Tx interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountBySerial(ctx context.Context, serial string) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	// UpdateAccount writes account if its stored version still equals account.Version.
	UpdateAccount(ctx context.Context, account *models.Account) error

	GetInventory(ctx context.Context, serial string) (*models.InventoryEntry, error)
	UpdateInventory(ctx context.Context, entry *models.InventoryEntry) error

	// GetOwnerProfile returns a zero-version profile when none exists yet.
	GetOwnerProfile(ctx context.Context, ownerID string) (*models.OwnerProfile, error)
	PutOwnerProfile(ctx context.Context, profile *models.OwnerProfile) error

	AppendEntries(ctx context.Context, entries ...*models.LedgerEntry) error
	ListEntries(ctx context.Context, accountID string) ([]*models.LedgerEntry, error)
	IncrementDailyAggregate(ctx context.Context, scope models.AggregateScope, scopeID string, day string, amount int64) error

	GetReceipt(ctx context.Context, requestID string) (*models.Receipt, error)
	PutReceipt(ctx context.Context, receipt *models.Receipt) error

	Now() time.Time
}

// Lock hint keys used by the ledger when opening a unit of work.
func AccountKey(id string) string { return "account:" + id }

func SerialKey(serial string) string { return "serial:" + serial }

func OwnerKey(ownerID string) string { return "owner:" + ownerID }

func ReceiptKey(requestID string) string { return "receipt:" + requestID }
