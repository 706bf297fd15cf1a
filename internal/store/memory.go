package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eventpass/cashless/internal/models"
)

// MemoryStore is an in-process Store with optimistic concurrency control.
// Each unit of work records the version of every key it reads; commit
// validates those versions under the store lock before applying writes.
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]*models.Account
	serials    map[string]string
	owners     map[string][]string
	inventory  map[string]*models.InventoryEntry
	profiles   map[string]*models.OwnerProfile
	entries    map[string][]*models.LedgerEntry
	aggregates map[string]*models.DailyAggregate
	receipts   map[string]*models.Receipt
	versions   map[string]int64
	clock      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]*models.Account),
		serials:    make(map[string]string),
		owners:     make(map[string][]string),
		inventory:  make(map[string]*models.InventoryEntry),
		profiles:   make(map[string]*models.OwnerProfile),
		entries:    make(map[string][]*models.LedgerEntry),
		aggregates: make(map[string]*models.DailyAggregate),
		receipts:   make(map[string]*models.Receipt),
		versions:   make(map[string]int64),
		clock:      time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// AddInventory provisions serial numbers. Existing serials are left untouched.
func (s *MemoryStore) AddInventory(serials ...string) {
	s.ProvisionInventory(context.Background(), serials...)
}

func (s *MemoryStore) ProvisionInventory(ctx context.Context, serials ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	added := 0
	for _, serial := range serials {
		if _, exists := s.inventory[serial]; exists {
			continue
		}
		s.inventory[serial] = &models.InventoryEntry{
			SerialNumber: serial,
			Status:       models.InventoryStatusAvailable,
			CreatedAt:    now,
		}
		s.versions[inventoryVersionKey(serial)]++
		added++
	}
	return added, nil
}

// PutAccount stores an account directly, bypassing the ledger. It exists to
// seed fixtures and simulate drift in tests.
func (s *MemoryStore) PutAccount(account *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyAccount(account.Clone(), true)
}

func (s *MemoryStore) WithAtomicUnit(ctx context.Context, keys []string, fn UnitFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	now := s.clock()
	s.mu.RUnlock()

	tx := newMemoryTx(s, now)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

func (s *MemoryStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	return account.Clone(), nil
}

func (s *MemoryStore) ListAccountsByOwner(ctx context.Context, ownerID string) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Account
	for _, id := range s.owners[ownerID] {
		if account, exists := s.accounts[id]; exists {
			result = append(result, account.Clone())
		}
	}
	return result, nil
}

func (s *MemoryStore) GetInventory(ctx context.Context, serial string) (*models.InventoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.inventory[serial]
	if !exists {
		return nil, fmt.Errorf("%w: serial %s", ErrNotFound, serial)
	}
	return entry.Clone(), nil
}

// ListEntries returns the newest entries first; limit <= 0 returns all.
func (s *MemoryStore) ListEntries(ctx context.Context, accountID string, limit int) ([]*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.entries[accountID]
	result := make([]*models.LedgerEntry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		cp := *stored[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) ListDailyAggregates(ctx context.Context, scope models.AggregateScope, scopeID, fromDay, toDay string) ([]*models.DailyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.DailyAggregate
	for _, agg := range s.aggregates {
		if agg.Scope != scope || agg.ScopeID != scopeID {
			continue
		}
		if fromDay != "" && agg.Day < fromDay {
			continue
		}
		if toDay != "" && agg.Day > toDay {
			continue
		}
		cp := *agg
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day < result[j].Day })
	return result, nil
}

// applyAccount must be called with s.mu held for writing.
func (s *MemoryStore) applyAccount(account *models.Account, created bool) {
	if created {
		if _, exists := s.accounts[account.ID]; !exists {
			s.owners[account.OwnerID] = append(s.owners[account.OwnerID], account.ID)
		}
		if account.SerialNumber != "" {
			s.serials[account.SerialNumber] = account.ID
			s.versions[serialVersionKey(account.SerialNumber)]++
		}
	}
	s.accounts[account.ID] = account
	s.versions[accountVersionKey(account.ID)]++
}

func accountVersionKey(id string) string { return "account:" + id }

func serialVersionKey(serial string) string { return "serial:" + serial }

func inventoryVersionKey(serial string) string { return "inventory:" + serial }

func profileVersionKey(ownerID string) string { return "owner:" + ownerID }

func entriesVersionKey(accountID string) string { return "entries:" + accountID }

func receiptVersionKey(requestID string) string { return "receipt:" + requestID }

func aggregateKey(scope models.AggregateScope, scopeID, day string) string {
	return string(scope) + "|" + scopeID + "|" + day
}

type aggregateDelta struct {
	scope   models.AggregateScope
	scopeID string
	day     string
	amount  int64
}

type memoryTx struct {
	s          *MemoryStore
	now        time.Time
	reads      map[string]int64
	accounts   map[string]*models.Account
	created    map[string]bool
	inventory  map[string]*models.InventoryEntry
	profiles   map[string]*models.OwnerProfile
	entries    []*models.LedgerEntry
	aggregates []aggregateDelta
	receipts   map[string]*models.Receipt
}

func newMemoryTx(s *MemoryStore, now time.Time) *memoryTx {
	return &memoryTx{
		s:         s,
		now:       now,
		reads:     make(map[string]int64),
		accounts:  make(map[string]*models.Account),
		created:   make(map[string]bool),
		inventory: make(map[string]*models.InventoryEntry),
		profiles:  make(map[string]*models.OwnerProfile),
		receipts:  make(map[string]*models.Receipt),
	}
}

func (t *memoryTx) Now() time.Time { return t.now }

// observe records the version of key the first time the unit reads it.
// Must be called with t.s.mu held.
func (t *memoryTx) observe(key string) {
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = t.s.versions[key]
	}
}

// stale observes key and reports whether it changed since the unit first read
// it. Must be called with t.s.mu held.
func (t *memoryTx) stale(key string) bool {
	seen, ok := t.reads[key]
	t.observe(key)
	return ok && seen != t.s.versions[key]
}

func (t *memoryTx) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if pending, ok := t.accounts[id]; ok {
		return pending.Clone(), nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	t.observe(accountVersionKey(id))
	account, exists := t.s.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	return account.Clone(), nil
}

func (t *memoryTx) GetAccountBySerial(ctx context.Context, serial string) (*models.Account, error) {
	for _, pending := range t.accounts {
		if pending.SerialNumber == serial {
			return pending.Clone(), nil
		}
	}

	t.s.mu.RLock()
	t.observe(serialVersionKey(serial))
	id, exists := t.s.serials[serial]
	t.s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: serial %s", ErrNotFound, serial)
	}
	return t.GetAccount(ctx, id)
}

func (t *memoryTx) CreateAccount(ctx context.Context, account *models.Account) error {
	if _, ok := t.accounts[account.ID]; ok {
		return fmt.Errorf("%w: account %s", ErrDuplicate, account.ID)
	}

	t.s.mu.RLock()
	idStale := t.stale(accountVersionKey(account.ID))
	_, exists := t.s.accounts[account.ID]
	serialStale, serialTaken := false, false
	if account.SerialNumber != "" {
		serialStale = t.stale(serialVersionKey(account.SerialNumber))
		_, serialTaken = t.s.serials[account.SerialNumber]
	}
	t.s.mu.RUnlock()

	// A record this unit saw as absent was created concurrently.
	if idStale || serialStale {
		return fmt.Errorf("%w: account %s created concurrently", ErrConflict, account.ID)
	}
	if exists {
		return fmt.Errorf("%w: account %s", ErrDuplicate, account.ID)
	}
	if serialTaken {
		return fmt.Errorf("%w: serial %s", ErrDuplicate, account.SerialNumber)
	}

	account.Version = 0
	t.accounts[account.ID] = account.Clone()
	t.created[account.ID] = true
	return nil
}

func (t *memoryTx) UpdateAccount(ctx context.Context, account *models.Account) error {
	if pending, ok := t.accounts[account.ID]; ok {
		if pending.Version != account.Version {
			return fmt.Errorf("%w: account %s", ErrConflict, account.ID)
		}
		t.accounts[account.ID] = account.Clone()
		return nil
	}

	t.s.mu.RLock()
	t.observe(accountVersionKey(account.ID))
	stored, exists := t.s.accounts[account.ID]
	t.s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: account %s", ErrNotFound, account.ID)
	}
	if stored.Version != account.Version {
		return fmt.Errorf("%w: account %s", ErrConflict, account.ID)
	}
	t.accounts[account.ID] = account.Clone()
	return nil
}

func (t *memoryTx) GetInventory(ctx context.Context, serial string) (*models.InventoryEntry, error) {
	if pending, ok := t.inventory[serial]; ok {
		return pending.Clone(), nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	t.observe(inventoryVersionKey(serial))
	entry, exists := t.s.inventory[serial]
	if !exists {
		return nil, fmt.Errorf("%w: serial %s", ErrNotFound, serial)
	}
	return entry.Clone(), nil
}

func (t *memoryTx) UpdateInventory(ctx context.Context, entry *models.InventoryEntry) error {
	if _, ok := t.inventory[entry.SerialNumber]; !ok {
		t.s.mu.RLock()
		t.observe(inventoryVersionKey(entry.SerialNumber))
		stored, exists := t.s.inventory[entry.SerialNumber]
		t.s.mu.RUnlock()

		if !exists {
			return fmt.Errorf("%w: serial %s", ErrNotFound, entry.SerialNumber)
		}
		if stored.Version != entry.Version {
			return fmt.Errorf("%w: serial %s", ErrConflict, entry.SerialNumber)
		}
	}
	t.inventory[entry.SerialNumber] = entry.Clone()
	return nil
}

func (t *memoryTx) GetOwnerProfile(ctx context.Context, ownerID string) (*models.OwnerProfile, error) {
	if pending, ok := t.profiles[ownerID]; ok {
		cp := *pending
		return &cp, nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	t.observe(profileVersionKey(ownerID))
	profile, exists := t.s.profiles[ownerID]
	if !exists {
		return &models.OwnerProfile{OwnerID: ownerID}, nil
	}
	cp := *profile
	return &cp, nil
}

func (t *memoryTx) PutOwnerProfile(ctx context.Context, profile *models.OwnerProfile) error {
	if _, ok := t.profiles[profile.OwnerID]; !ok {
		t.s.mu.RLock()
		t.observe(profileVersionKey(profile.OwnerID))
		var storedVersion int64
		if stored, exists := t.s.profiles[profile.OwnerID]; exists {
			storedVersion = stored.Version
		}
		t.s.mu.RUnlock()

		if storedVersion != profile.Version {
			return fmt.Errorf("%w: owner %s", ErrConflict, profile.OwnerID)
		}
	}
	cp := *profile
	t.profiles[profile.OwnerID] = &cp
	return nil
}

func (t *memoryTx) AppendEntries(ctx context.Context, entries ...*models.LedgerEntry) error {
	for _, e := range entries {
		cp := *e
		t.entries = append(t.entries, &cp)
	}
	return nil
}

// ListEntries returns the account's committed entries in replay order.
func (t *memoryTx) ListEntries(ctx context.Context, accountID string) ([]*models.LedgerEntry, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	t.observe(entriesVersionKey(accountID))
	stored := t.s.entries[accountID]
	result := make([]*models.LedgerEntry, 0, len(stored))
	for _, e := range stored {
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

func (t *memoryTx) IncrementDailyAggregate(ctx context.Context, scope models.AggregateScope, scopeID string, day string, amount int64) error {
	t.aggregates = append(t.aggregates, aggregateDelta{scope: scope, scopeID: scopeID, day: day, amount: amount})
	return nil
}

func (t *memoryTx) GetReceipt(ctx context.Context, requestID string) (*models.Receipt, error) {
	if pending, ok := t.receipts[requestID]; ok {
		cp := *pending
		return &cp, nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	t.observe(receiptVersionKey(requestID))
	receipt, exists := t.s.receipts[requestID]
	if !exists {
		return nil, fmt.Errorf("%w: receipt %s", ErrNotFound, requestID)
	}
	cp := *receipt
	return &cp, nil
}

func (t *memoryTx) PutReceipt(ctx context.Context, receipt *models.Receipt) error {
	cp := *receipt
	t.receipts[receipt.RequestID] = &cp
	return nil
}

func (t *memoryTx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, version := range t.reads {
		if s.versions[key] != version {
			return fmt.Errorf("%w: %s changed during unit of work", ErrConflict, key)
		}
	}
	for id := range t.created {
		if _, exists := s.accounts[id]; exists {
			return fmt.Errorf("%w: account %s", ErrConflict, id)
		}
	}
	for id, account := range t.accounts {
		if t.created[id] {
			continue
		}
		if stored, exists := s.accounts[id]; !exists || stored.Version != account.Version {
			return fmt.Errorf("%w: account %s", ErrConflict, id)
		}
	}
	for requestID := range t.receipts {
		if _, exists := s.receipts[requestID]; exists {
			return fmt.Errorf("%w: receipt %s", ErrConflict, requestID)
		}
	}

	for id, account := range t.accounts {
		stored := account.Clone()
		stored.Version = account.Version + 1
		stored.UpdatedAt = t.now
		s.applyAccount(stored, t.created[id])
	}
	for serial, entry := range t.inventory {
		stored := entry.Clone()
		stored.Version = entry.Version + 1
		s.inventory[serial] = stored
		s.versions[inventoryVersionKey(serial)]++
	}
	for ownerID, profile := range t.profiles {
		cp := *profile
		cp.Version = profile.Version + 1
		cp.UpdatedAt = t.now
		s.profiles[ownerID] = &cp
		s.versions[profileVersionKey(ownerID)]++
	}
	for _, e := range t.entries {
		s.entries[e.AccountID] = append(s.entries[e.AccountID], e)
		s.versions[entriesVersionKey(e.AccountID)]++
	}
	for _, d := range t.aggregates {
		key := aggregateKey(d.scope, d.scopeID, d.day)
		agg, exists := s.aggregates[key]
		if !exists {
			agg = &models.DailyAggregate{Scope: d.scope, ScopeID: d.scopeID, Day: d.day}
			s.aggregates[key] = agg
		}
		agg.PaymentCount++
		agg.TotalAmount += d.amount
	}
	for requestID, receipt := range t.receipts {
		s.receipts[requestID] = receipt
		s.versions[receiptVersionKey(requestID)]++
	}
	return nil
}
