package services

import (
	"context"
	"errors"
	"time"

	"github.com/eventpass/cashless/internal/models"
	"github.com/eventpass/cashless/internal/store"
)

const (
	DefaultEntryLimit = 50
	MaxEntryLimit     = 500
)

func (s *LedgerService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.store.GetAccount(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(ReasonAccountNotFound, "account %s not found", id)
	}
	if err != nil {
		return nil, s.translate(err)
	}
	return account, nil
}

func (s *LedgerService) ListAccounts(ctx context.Context, ownerID string) ([]*models.Account, error) {
	accounts, err := s.store.ListAccountsByOwner(ctx, ownerID)
	if err != nil {
		return nil, s.translate(err)
	}
	return accounts, nil
}

// GetOrCreateWallet returns the owner's wallet, opening it on first access.
func (s *LedgerService) GetOrCreateWallet(ctx context.Context, ownerID string) (*models.Account, error) {
	if ownerID == "" {
		return nil, newError(ReasonInvalidArgument, "owner is required")
	}

	walletID := models.WalletID(ownerID)
	wallet, err := s.store.GetAccount(ctx, walletID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, s.translate(err)
	}

	err = s.runUnit(ctx, OpOpenWallet, []string{store.AccountKey(walletID)}, func(ctx context.Context, tx store.Tx) error {
		wallet = nil
		existing, err := tx.GetAccount(ctx, walletID)
		if err == nil {
			wallet = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		created := models.NewWallet(ownerID, tx.Now())
		if err := tx.CreateAccount(ctx, created); err != nil {
			return err
		}
		wallet = created
		return nil
	})
	if err != nil {
		return nil, s.translate(err)
	}
	return wallet, nil
}

// ListEntries returns an account's log, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, accountID string, limit int) ([]*models.LedgerEntry, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultEntryLimit
	}
	if limit > MaxEntryLimit {
		limit = MaxEntryLimit
	}

	entries, err := s.store.ListEntries(ctx, accountID, limit)
	if err != nil {
		return nil, s.translate(err)
	}
	return entries, nil
}

// DailyAggregates reports per-day payment totals for a vendor or an event.
// from and to are inclusive UTC days (YYYY-MM-DD); either may be empty.
func (s *LedgerService) DailyAggregates(ctx context.Context, scope models.AggregateScope, scopeID, from, to string) ([]*models.DailyAggregate, error) {
	if scope != models.ScopeVendor && scope != models.ScopeEvent {
		return nil, newError(ReasonInvalidArgument, "unknown report scope %q", scope)
	}
	if scopeID == "" {
		return nil, newError(ReasonInvalidArgument, "scope id is required")
	}
	for _, day := range []string{from, to} {
		if day == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return nil, newError(ReasonInvalidFormat, "day %q must be formatted YYYY-MM-DD", day)
		}
	}

	aggregates, err := s.store.ListDailyAggregates(ctx, scope, scopeID, from, to)
	if err != nil {
		return nil, s.translate(err)
	}
	return aggregates, nil
}
