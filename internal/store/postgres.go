package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/eventpass/cashless/internal/models"
	"github.com/lib/pq"
)

const accountColumns = `id, kind, owner_id, serial_number, linked_event_id, display_name, status,
	balance, bonus_balance, total_credited, total_debited, transaction_count, version, created_at, updated_at`

const inventoryColumns = `serial_number, status, activated_account_id, activated_by, activated_at, blocked_reason, version, created_at`

const entryColumns = `id, transaction_id, account_id, entry_type, field, amount, balance_after,
	counterparty_ref, vendor_id, event_id, description, sequence, created_at`

// PostgresStore runs units of work as SERIALIZABLE transactions. Key hints are
// taken as transaction-scoped advisory locks in sorted order before fn runs.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) WithAtomicUnit(ctx context.Context, keys []string, fn UnitFunc) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	for _, key := range sortedUnique(keys) {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return classify(err)
		}
	}

	if err := fn(ctx, &postgresTx{tx: tx, now: time.Now().UTC()}); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[STORE] commit failed: %v", err)
		return classify(err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	return account, classify(err)
}

func (s *PostgresStore) ListAccountsByOwner(ctx context.Context, ownerID string) ([]*models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, classify(rows.Err())
}

func (s *PostgresStore) GetInventory(ctx context.Context, serial string) (*models.InventoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+inventoryColumns+` FROM inventory WHERE serial_number = $1`, serial)
	entry, err := scanInventory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: serial %s", ErrNotFound, serial)
	}
	return entry, classify(err)
}

// ListEntries returns the newest entries first; limit <= 0 returns all.
func (s *PostgresStore) ListEntries(ctx context.Context, accountID string, limit int) ([]*models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE account_id = $1 ORDER BY sequence DESC`
	args := []interface{}{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListDailyAggregates(ctx context.Context, scope models.AggregateScope, scopeID, fromDay, toDay string) ([]*models.DailyAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, scope_id, day, payment_count, total_amount
		FROM daily_aggregates
		WHERE scope = $1 AND scope_id = $2
		  AND ($3 = '' OR day >= $3)
		  AND ($4 = '' OR day <= $4)
		ORDER BY day`, string(scope), scopeID, fromDay, toDay)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var aggregates []*models.DailyAggregate
	for rows.Next() {
		var agg models.DailyAggregate
		var scopeValue string
		if err := rows.Scan(&scopeValue, &agg.ScopeID, &agg.Day, &agg.PaymentCount, &agg.TotalAmount); err != nil {
			return nil, err
		}
		agg.Scope = models.AggregateScope(scopeValue)
		aggregates = append(aggregates, &agg)
	}
	return aggregates, classify(rows.Err())
}

// ProvisionInventory registers serial numbers as available. Serials that
// already exist are skipped; the number of newly added serials is returned.
func (s *PostgresStore) ProvisionInventory(ctx context.Context, serials ...string) (int, error) {
	added := 0
	for _, serial := range serials {
		result, err := s.db.ExecContext(ctx, `
			INSERT INTO inventory (serial_number, status, version, created_at)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (serial_number) DO NOTHING`,
			serial, string(models.InventoryStatusAvailable), time.Now().UTC())
		if err != nil {
			return added, classify(err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}

type postgresTx struct {
	tx  *sql.Tx
	now time.Time
}

func (t *postgresTx) Now() time.Time { return t.now }

func (t *postgresTx) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	return account, err
}

func (t *postgresTx) GetAccountBySerial(ctx context.Context, serial string) (*models.Account, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE serial_number = $1 FOR UPDATE`, serial)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: serial %s", ErrNotFound, serial)
	}
	return account, err
}

func (t *postgresTx) CreateAccount(ctx context.Context, account *models.Account) error {
	account.Version = 0
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (id, kind, owner_id, serial_number, linked_event_id, display_name, status,
			balance, bonus_balance, total_credited, total_debited, transaction_count, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		account.ID, string(account.Kind), account.OwnerID, nullString(account.SerialNumber),
		account.LinkedEventID, account.DisplayName, string(account.Status),
		account.Balance, account.BonusBalance,
		account.Stats.TotalCredited, account.Stats.TotalDebited, account.Stats.TransactionCount,
		account.Version, account.CreatedAt, t.now)
	return classify(err)
}

func (t *postgresTx) UpdateAccount(ctx context.Context, account *models.Account) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET status = $1, balance = $2, bonus_balance = $3, total_credited = $4, total_debited = $5,
			transaction_count = $6, linked_event_id = $7, display_name = $8, version = version + 1, updated_at = $9
		WHERE id = $10 AND version = $11`,
		string(account.Status), account.Balance, account.BonusBalance,
		account.Stats.TotalCredited, account.Stats.TotalDebited, account.Stats.TransactionCount,
		account.LinkedEventID, account.DisplayName, t.now, account.ID, account.Version)
	if err != nil {
		return classify(err)
	}
	return requireOneRow(result, "account "+account.ID)
}

func (t *postgresTx) GetInventory(ctx context.Context, serial string) (*models.InventoryEntry, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+inventoryColumns+` FROM inventory WHERE serial_number = $1 FOR UPDATE`, serial)
	entry, err := scanInventory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: serial %s", ErrNotFound, serial)
	}
	return entry, err
}

func (t *postgresTx) UpdateInventory(ctx context.Context, entry *models.InventoryEntry) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE inventory
		SET status = $1, activated_account_id = $2, activated_by = $3, activated_at = $4, blocked_reason = $5, version = version + 1
		WHERE serial_number = $6 AND version = $7`,
		string(entry.Status), entry.ActivatedAccountID, entry.ActivatedBy, entry.ActivatedAt,
		entry.BlockedReason, entry.SerialNumber, entry.Version)
	if err != nil {
		return classify(err)
	}
	return requireOneRow(result, "serial "+entry.SerialNumber)
}

func (t *postgresTx) GetOwnerProfile(ctx context.Context, ownerID string) (*models.OwnerProfile, error) {
	profile := models.OwnerProfile{OwnerID: ownerID}
	err := t.tx.QueryRowContext(ctx, `
		SELECT wristband_count, version, updated_at FROM owner_profiles WHERE owner_id = $1 FOR UPDATE`,
		ownerID).Scan(&profile.WristbandCount, &profile.Version, &profile.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &profile, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &profile, nil
}

func (t *postgresTx) PutOwnerProfile(ctx context.Context, profile *models.OwnerProfile) error {
	var (
		result sql.Result
		err    error
	)
	if profile.Version == 0 {
		result, err = t.tx.ExecContext(ctx, `
			INSERT INTO owner_profiles (owner_id, wristband_count, version, updated_at)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (owner_id) DO NOTHING`,
			profile.OwnerID, profile.WristbandCount, t.now)
	} else {
		result, err = t.tx.ExecContext(ctx, `
			UPDATE owner_profiles SET wristband_count = $1, version = version + 1, updated_at = $2
			WHERE owner_id = $3 AND version = $4`,
			profile.WristbandCount, t.now, profile.OwnerID, profile.Version)
	}
	if err != nil {
		return classify(err)
	}
	return requireOneRow(result, "owner "+profile.OwnerID)
}

func (t *postgresTx) AppendEntries(ctx context.Context, entries ...*models.LedgerEntry) error {
	for _, e := range entries {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (`+entryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			e.ID, e.TransactionID, e.AccountID, string(e.Type), string(e.Field), e.Amount, e.BalanceAfter,
			e.CounterpartyRef, e.VendorID, e.EventID, e.Description, e.Sequence, e.CreatedAt)
		if err != nil {
			return classify(err)
		}
	}
	return nil
}

func (t *postgresTx) ListEntries(ctx context.Context, accountID string) ([]*models.LedgerEntry, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE account_id = $1 ORDER BY sequence`, accountID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (t *postgresTx) IncrementDailyAggregate(ctx context.Context, scope models.AggregateScope, scopeID string, day string, amount int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO daily_aggregates (scope, scope_id, day, payment_count, total_amount)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (scope, scope_id, day)
		DO UPDATE SET payment_count = daily_aggregates.payment_count + 1,
			total_amount = daily_aggregates.total_amount + EXCLUDED.total_amount`,
		string(scope), scopeID, day, amount)
	return classify(err)
}

func (t *postgresTx) GetReceipt(ctx context.Context, requestID string) (*models.Receipt, error) {
	receipt := models.Receipt{RequestID: requestID}
	var payload []byte
	err := t.tx.QueryRowContext(ctx, `
		SELECT operation, scope, result, created_at FROM receipts WHERE request_id = $1`,
		requestID).Scan(&receipt.Operation, &receipt.Scope, &payload, &receipt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: receipt %s", ErrNotFound, requestID)
	}
	if err != nil {
		return nil, classify(err)
	}
	if err := json.Unmarshal(payload, &receipt.Result); err != nil {
		return nil, fmt.Errorf("decoding receipt %s: %w", requestID, err)
	}
	return &receipt, nil
}

func (t *postgresTx) PutReceipt(ctx context.Context, receipt *models.Receipt) error {
	payload, err := json.Marshal(receipt.Result)
	if err != nil {
		return fmt.Errorf("encoding receipt %s: %w", receipt.RequestID, err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO receipts (request_id, operation, scope, result, created_at) VALUES ($1, $2, $3, $4, $5)`,
		receipt.RequestID, receipt.Operation, receipt.Scope, payload, receipt.CreatedAt)
	return classify(err)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		account      models.Account
		kind, status string
		serial       sql.NullString
	)
	err := row.Scan(&account.ID, &kind, &account.OwnerID, &serial, &account.LinkedEventID, &account.DisplayName, &status,
		&account.Balance, &account.BonusBalance,
		&account.Stats.TotalCredited, &account.Stats.TotalDebited, &account.Stats.TransactionCount,
		&account.Version, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	account.Kind = models.AccountKind(kind)
	account.Status = models.AccountStatus(status)
	account.SerialNumber = serial.String
	return &account, nil
}

func scanInventory(row rowScanner) (*models.InventoryEntry, error) {
	var (
		entry       models.InventoryEntry
		status      string
		activatedAt sql.NullTime
	)
	err := row.Scan(&entry.SerialNumber, &status, &entry.ActivatedAccountID, &entry.ActivatedBy,
		&activatedAt, &entry.BlockedReason, &entry.Version, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	entry.Status = models.InventoryStatus(status)
	if activatedAt.Valid {
		entry.ActivatedAt = &activatedAt.Time
	}
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	for rows.Next() {
		var (
			e                models.LedgerEntry
			entryType, field string
		)
		err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &entryType, &field, &e.Amount, &e.BalanceAfter,
			&e.CounterpartyRef, &e.VendorID, &e.EventID, &e.Description, &e.Sequence, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		e.Type = models.EntryType(entryType)
		e.Field = models.BalanceField(field)
		entries = append(entries, &e)
	}
	return entries, classify(rows.Err())
}

func requireOneRow(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: optimistic lock failed for %s", ErrConflict, what)
	}
	return nil
}

// classify maps driver failures onto the store's sentinel errors. Errors that
// did not come from the database pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		case "08000", "08003", "08006", "57P01", "53300":
			return fmt.Errorf("%w: %s", ErrUnavailable, pqErr.Message)
		case "23514", "22003":
			return fmt.Errorf("%w: %s", ErrConstraint, pqErr.Message)
		}
		return err
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func sortedUnique(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
