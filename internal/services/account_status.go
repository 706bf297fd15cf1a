package services

import (
	"context"
	"errors"
	"strings"

	"github.com/eventpass/cashless/internal/models"
	"github.com/eventpass/cashless/internal/store"
)

type FreezeRequest struct {
	RequestID string
	AccountID string
	CallerID  string
}

type BlockRequest struct {
	RequestID    string
	SerialNumber string
	Reason       string
}

// Freeze stops every balance change on the owner's account. Reads keep working.
func (s *LedgerService) Freeze(ctx context.Context, req FreezeRequest) (*models.Result, error) {
	return s.setStatus(ctx, OpFreeze, req, models.AccountStatusFrozen)
}

// Unfreeze reactivates a frozen account. Accounts frozen by BlockSerial stay
// frozen for good.
func (s *LedgerService) Unfreeze(ctx context.Context, req FreezeRequest) (*models.Result, error) {
	return s.setStatus(ctx, OpUnfreeze, req, models.AccountStatusActive)
}

func (s *LedgerService) setStatus(ctx context.Context, op string, req FreezeRequest, target models.AccountStatus) (*models.Result, error) {
	if req.CallerID == "" {
		return nil, newError(ReasonPermissionDenied, "caller is required")
	}

	keys := []string{store.AccountKey(req.AccountID)}
	return s.execute(ctx, op, req.RequestID, receiptScope(req.AccountID, req.CallerID), req.AccountID, 0, keys, func(ctx context.Context, tx store.Tx, txID string) (*models.Result, error) {
		account, err := loadAccount(ctx, tx, req.AccountID, ReasonAccountNotFound)
		if err != nil {
			return nil, err
		}
		if account.OwnerID != req.CallerID {
			return nil, newError(ReasonPermissionDenied, "account %s does not belong to the caller", account.ID)
		}
		if account.Status == models.AccountStatusInactive {
			return nil, newError(ReasonAccountInactive, "account %s is not activated", account.ID).withAccount(account)
		}
		if account.Status == target {
			return &models.Result{Account: account, Entries: []*models.LedgerEntry{}}, nil
		}
		if target == models.AccountStatusActive && account.SerialNumber != "" {
			inv, err := tx.GetInventory(ctx, account.SerialNumber)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			if inv != nil && inv.Status == models.InventoryStatusBlocked {
				return nil, newError(ReasonBlocked, "serial %s was reported lost or stolen", account.SerialNumber).withAccount(account)
			}
		}

		account.Status = target
		account.UpdatedAt = tx.Now()
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return nil, err
		}
		return &models.Result{Account: account, Entries: []*models.LedgerEntry{}}, nil
	})
}

// BlockSerial reports a wristband lost or stolen. The serial can never be
// activated again and the account it was bound to is frozen.
func (s *LedgerService) BlockSerial(ctx context.Context, req BlockRequest) (*models.Result, error) {
	serial := strings.TrimSpace(req.SerialNumber)
	if serial == "" {
		return nil, newError(ReasonInvalidFormat, "serial number is required")
	}

	keys := []string{store.SerialKey(serial)}
	return s.execute(ctx, OpBlockSerial, req.RequestID, receiptScope(serial), "", 0, keys, func(ctx context.Context, tx store.Tx, txID string) (*models.Result, error) {
		inv, err := tx.GetInventory(ctx, serial)
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(ReasonNotFound, "serial %s is not in inventory", serial)
		}
		if err != nil {
			return nil, err
		}

		result := &models.Result{Inventory: inv, Entries: []*models.LedgerEntry{}}
		if inv.ActivatedAccountID != "" {
			account, err := loadAccount(ctx, tx, inv.ActivatedAccountID, ReasonAccountNotFound)
			if err != nil {
				return nil, err
			}
			if account.Status == models.AccountStatusActive {
				account.Status = models.AccountStatusFrozen
				account.UpdatedAt = tx.Now()
				if err := tx.UpdateAccount(ctx, account); err != nil {
					return nil, err
				}
			}
			result.Account = account
		}

		if inv.Status != models.InventoryStatusBlocked {
			inv.Status = models.InventoryStatusBlocked
			inv.BlockedReason = req.Reason
			if err := tx.UpdateInventory(ctx, inv); err != nil {
				return nil, err
			}
		}
		return result, nil
	})
}
