package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/eventpass/cashless/internal/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountColumnNames = []string{"id", "kind", "owner_id", "serial_number", "linked_event_id", "display_name", "status",
	"balance", "bonus_balance", "total_credited", "total_debited", "transaction_count", "version", "created_at", "updated_at"}

func TestPostgresStore_WithAtomicUnit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("locks keys in order and commits", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("SELECT pg_advisory_xact_lock\\(hashtext\\(\\$1\\)\\)").
			WithArgs("account:a").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("SELECT pg_advisory_xact_lock\\(hashtext\\(\\$1\\)\\)").
			WithArgs("account:b").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs("a").
			WillReturnRows(sqlmock.NewRows(accountColumnNames).
				AddRow("a", "wristband", "owner1", "SN1", "", "", "active", 1000, 0, 1000, 0, 1, 3, now, now))
		mock.ExpectExec("UPDATE accounts SET (.+) WHERE id = \\$10 AND version = \\$11").
			WithArgs("active", int64(600), int64(0), int64(1000), int64(400), int64(2), "", "", sqlmock.AnyArg(), "a", int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := s.WithAtomicUnit(ctx, []string{"account:b", "account:a", "account:b"}, func(ctx context.Context, tx Tx) error {
			account, err := tx.GetAccount(ctx, "a")
			if err != nil {
				return err
			}
			account.Balance -= 400
			account.Stats.TotalDebited += 400
			account.Stats.TransactionCount++
			if err := tx.UpdateAccount(ctx, account); err != nil {
				return err
			}
			return tx.AppendEntries(ctx, &models.LedgerEntry{
				ID: "e1", TransactionID: "t1", AccountID: "a", Type: models.EntryPayment,
				Field: models.FieldBalance, Amount: -400, BalanceAfter: 600, Sequence: 2, CreatedAt: now,
			})
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE accounts SET").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := s.WithAtomicUnit(ctx, nil, func(ctx context.Context, tx Tx) error {
			return tx.UpdateAccount(ctx, &models.Account{ID: "a", Status: models.AccountStatusActive, Version: 7})
		})
		assert.ErrorIs(t, err, ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("serialization failure is a conflict", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})

		err := s.WithAtomicUnit(ctx, nil, func(ctx context.Context, tx Tx) error { return nil })
		assert.ErrorIs(t, err, ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unit error rolls back and passes through", func(t *testing.T) {
		boom := errors.New("insufficient")
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := s.WithAtomicUnit(ctx, nil, func(ctx context.Context, tx Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_OwnerProfile(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT wristband_count, version, updated_at FROM owner_profiles").
		WithArgs("owner1").
		WillReturnRows(sqlmock.NewRows([]string{"wristband_count", "version", "updated_at"}))
	mock.ExpectExec("INSERT INTO owner_profiles").
		WithArgs("owner1", int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = s.WithAtomicUnit(ctx, nil, func(ctx context.Context, tx Tx) error {
		profile, err := tx.GetOwnerProfile(ctx, "owner1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), profile.Version)
		profile.WristbandCount++
		return tx.PutOwnerProfile(ctx, profile)
	})
	assert.ErrorIs(t, err, ErrConflict, "a concurrent first insert must surface as a conflict")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Reads(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("missing account", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id = \\$1").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows(accountColumnNames))

		_, err := s.GetAccount(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("wallet has no serial", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE owner_id = \\$1").
			WithArgs("owner1").
			WillReturnRows(sqlmock.NewRows(accountColumnNames).
				AddRow("wallet_owner1", "wallet", "owner1", nil, "", "", "active", 100, 50, 150, 0, 2, 2, now, now))

		accounts, err := s.ListAccountsByOwner(ctx, "owner1")
		require.NoError(t, err)
		require.Len(t, accounts, 1)
		assert.Equal(t, models.AccountKindWallet, accounts[0].Kind)
		assert.Empty(t, accounts[0].SerialNumber)
		assert.Equal(t, int64(50), accounts[0].BonusBalance)
	})

	t.Run("entries with limit", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE account_id = \\$1 ORDER BY sequence DESC LIMIT \\$2").
			WithArgs("a", 5).
			WillReturnRows(sqlmock.NewRows([]string{"id", "transaction_id", "account_id", "entry_type", "field", "amount",
				"balance_after", "counterparty_ref", "vendor_id", "event_id", "description", "sequence", "created_at"}).
				AddRow("e2", "t2", "a", "payment", "balance", -100, 400, "", "v1", "ev1", "", 2, now).
				AddRow("e1", "t1", "a", "activation_bonus", "balance", 500, 500, "", "", "", "", 1, now))

		entries, err := s.ListEntries(ctx, "a", 5)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, models.EntryPayment, entries[0].Type)
		assert.Equal(t, int64(1), entries[1].Sequence)
	})

	t.Run("daily aggregates", func(t *testing.T) {
		mock.ExpectQuery("SELECT scope, scope_id, day, payment_count, total_amount FROM daily_aggregates").
			WithArgs("vendor", "v1", "2026-07-01", "").
			WillReturnRows(sqlmock.NewRows([]string{"scope", "scope_id", "day", "payment_count", "total_amount"}).
				AddRow("vendor", "v1", "2026-07-01", 3, 1200))

		aggs, err := s.ListDailyAggregates(ctx, models.ScopeVendor, "v1", "2026-07-01", "")
		require.NoError(t, err)
		require.Len(t, aggs, 1)
		assert.Equal(t, int64(1200), aggs[0].TotalAmount)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ProvisionInventory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO inventory").
		WithArgs("SN-1", "available", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO inventory").
		WithArgs("SN-2", "available", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	added, err := NewPostgresStore(db).ProvisionInventory(context.Background(), "SN-1", "SN-2")
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(&pq.Error{Code: "40P01"}), ErrConflict)
	assert.ErrorIs(t, classify(&pq.Error{Code: "23505"}), ErrConflict)
	assert.ErrorIs(t, classify(&pq.Error{Code: "57P01"}), ErrUnavailable)
	assert.ErrorIs(t, classify(&pq.Error{Code: "23514", Message: "violates check constraint \"accounts_balance_check\""}), ErrConstraint)
	assert.ErrorIs(t, classify(&pq.Error{Code: "22003"}), ErrConstraint)
	assert.Nil(t, classify(nil))

	other := errors.New("other")
	assert.Equal(t, other, classify(other))
}
