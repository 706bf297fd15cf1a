package services

import (
	"context"

	"github.com/eventpass/cashless/internal/models"
	"github.com/eventpass/cashless/internal/store"
)

type CreditSource string

const (
	CreditSourceTopUp CreditSource = "topup"
	CreditSourceBonus CreditSource = "bonus"
)

type CreditRequest struct {
	RequestID       string
	AccountID       string
	Amount          int64
	Source          CreditSource
	CounterpartyRef string
	Description     string
}

type DebitRequest struct {
	RequestID   string
	AccountID   string
	Amount      int64
	VendorID    string
	EventID     string
	Description string
}

type RefundRequest struct {
	RequestID string
	OrderRef  string
	AccountID string
	Amount    int64
	Reason    string
}

// Credit tops up the main balance or, on wallets, grants bonus value.
// Large wallet top-ups earn a percentage bonus chained onto the same transaction.
func (s *LedgerService) Credit(ctx context.Context, req CreditRequest) (*models.Result, error) {
	if err := s.requireAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.Source == "" {
		req.Source = CreditSourceTopUp
	}
	if req.Source != CreditSourceTopUp && req.Source != CreditSourceBonus {
		return nil, newError(ReasonInvalidArgument, "unknown credit source %q", req.Source)
	}

	keys := []string{store.AccountKey(req.AccountID)}
	return s.execute(ctx, OpCredit, req.RequestID, receiptScope(req.AccountID, req.Source, req.Amount), req.AccountID, req.Amount, keys, func(ctx context.Context, tx store.Tx, txID string) (*models.Result, error) {
		account, err := loadAccount(ctx, tx, req.AccountID, ReasonAccountNotFound)
		if err != nil {
			return nil, err
		}
		if err := requireMutable(account); err != nil {
			return nil, err
		}

		isWallet := account.Kind == models.AccountKindWallet
		if req.Source == CreditSourceBonus && !isWallet {
			return nil, newError(ReasonInvalidAmount, "bonus credits are only accepted by wallets")
		}
		if req.Source == CreditSourceTopUp && isWallet && req.Amount < s.cfg.WalletTopUpMinimum {
			return nil, newError(ReasonInvalidAmount, "wallet top-ups must be at least %d", s.cfg.WalletTopUpMinimum)
		}

		now := tx.Now()
		var entries []*models.LedgerEntry
		if req.Source == CreditSourceBonus {
			if err := requireHeadroom(account, models.FieldBonusBalance, req.Amount); err != nil {
				return nil, err
			}
			entries = append(entries, post(account, txID, models.EntryBonusCredit, models.FieldBonusBalance, req.Amount, now))
		} else {
			if err := requireHeadroom(account, models.FieldBalance, req.Amount); err != nil {
				return nil, err
			}
			entries = append(entries, post(account, txID, models.EntryTopUp, models.FieldBalance, req.Amount, now))
			if bonus := s.topUpBonus(account, req.Amount); bonus > 0 {
				if err := requireHeadroom(account, models.FieldBonusBalance, bonus); err != nil {
					return nil, err
				}
				entry := post(account, txID, models.EntryBonusCredit, models.FieldBonusBalance, bonus, now)
				entry.Description = "top-up bonus"
				entries = append(entries, entry)
			}
		}
		for _, e := range entries {
			e.CounterpartyRef = req.CounterpartyRef
			if e.Description == "" {
				e.Description = req.Description
			}
		}

		if err := tx.UpdateAccount(ctx, account); err != nil {
			return nil, err
		}
		if err := tx.AppendEntries(ctx, entries...); err != nil {
			return nil, err
		}
		return &models.Result{Account: account, Entries: entries}, nil
	})
}

func (s *LedgerService) topUpBonus(account *models.Account, amount int64) int64 {
	if account.Kind != models.AccountKindWallet || s.cfg.TopUpBonusThreshold <= 0 || amount < s.cfg.TopUpBonusThreshold {
		return 0
	}
	pct := s.cfg.TopUpBonusPercent
	return amount/100*pct + amount%100*pct/100
}

// Debit pays a vendor. Wallets spend bonus value before their main balance;
// each non-empty source gets its own payment entry.
func (s *LedgerService) Debit(ctx context.Context, req DebitRequest) (*models.Result, error) {
	if err := s.requireAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.VendorID == "" {
		return nil, newError(ReasonInvalidArgument, "vendor is required")
	}

	keys := []string{store.AccountKey(req.AccountID)}
	return s.execute(ctx, OpDebit, req.RequestID, receiptScope(req.AccountID, req.VendorID, req.Amount), req.AccountID, -req.Amount, keys, func(ctx context.Context, tx store.Tx, txID string) (*models.Result, error) {
		account, err := loadAccount(ctx, tx, req.AccountID, ReasonAccountNotFound)
		if err != nil {
			return nil, err
		}
		if err := requireMutable(account); err != nil {
			return nil, err
		}
		if account.LinkedEventID != "" && account.LinkedEventID != req.EventID {
			return nil, newError(ReasonEventMismatch, "wristband %s can only pay at event %s", account.ID, account.LinkedEventID)
		}
		if account.Spendable() < req.Amount {
			return nil, newError(ReasonInsufficientBalance, "account %s cannot cover %d", account.ID, req.Amount).withAccount(account)
		}

		// The split is decided from this attempt's read, never a cached one.
		fromBonus := int64(0)
		if account.Kind == models.AccountKindWallet {
			fromBonus = min(account.BonusBalance, req.Amount)
		}
		fromBalance := req.Amount - fromBonus

		now := tx.Now()
		var entries []*models.LedgerEntry
		if fromBonus > 0 {
			entries = append(entries, post(account, txID, models.EntryPayment, models.FieldBonusBalance, -fromBonus, now))
		}
		if fromBalance > 0 {
			entries = append(entries, post(account, txID, models.EntryPayment, models.FieldBalance, -fromBalance, now))
		}
		for _, e := range entries {
			e.VendorID = req.VendorID
			e.EventID = req.EventID
			e.CounterpartyRef = req.VendorID
			e.Description = req.Description
		}

		if err := tx.UpdateAccount(ctx, account); err != nil {
			return nil, err
		}
		if err := tx.AppendEntries(ctx, entries...); err != nil {
			return nil, err
		}

		day := models.DayKey(now)
		if err := tx.IncrementDailyAggregate(ctx, models.ScopeVendor, req.VendorID, day, req.Amount); err != nil {
			return nil, err
		}
		if req.EventID != "" {
			if err := tx.IncrementDailyAggregate(ctx, models.ScopeEvent, req.EventID, day, req.Amount); err != nil {
				return nil, err
			}
		}
		return &models.Result{Account: account, Entries: entries}, nil
	})
}

// Refund returns money for a cancelled order to the account's main balance.
func (s *LedgerService) Refund(ctx context.Context, req RefundRequest) (*models.Result, error) {
	if err := s.requireAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.OrderRef == "" {
		return nil, newError(ReasonInvalidArgument, "order reference is required")
	}

	keys := []string{store.AccountKey(req.AccountID)}
	return s.execute(ctx, OpRefund, req.RequestID, receiptScope(req.AccountID, req.OrderRef, req.Amount), req.AccountID, req.Amount, keys, func(ctx context.Context, tx store.Tx, txID string) (*models.Result, error) {
		account, err := loadAccount(ctx, tx, req.AccountID, ReasonAccountNotFound)
		if err != nil {
			return nil, err
		}
		if err := requireMutable(account); err != nil {
			return nil, err
		}

		if err := requireHeadroom(account, models.FieldBalance, req.Amount); err != nil {
			return nil, err
		}

		entry := post(account, txID, models.EntryRefund, models.FieldBalance, req.Amount, tx.Now())
		entry.CounterpartyRef = req.OrderRef
		entry.Description = req.Reason

		if err := tx.UpdateAccount(ctx, account); err != nil {
			return nil, err
		}
		if err := tx.AppendEntries(ctx, entry); err != nil {
			return nil, err
		}
		return &models.Result{Account: account, Entries: []*models.LedgerEntry{entry}}, nil
	})
}
