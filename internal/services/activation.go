package services

import (
	"context"
	"errors"
	"strings"

	"github.com/eventpass/cashless/internal/models"
	"github.com/eventpass/cashless/internal/store"
	"github.com/google/uuid"
)

type ActivateRequest struct {
	RequestID     string
	SerialNumber  string
	OwnerID       string
	DisplayName   string
	LinkedEventID string
}

// Activate binds an available inventory serial to a new wristband account
// for the owner. The owner's first wristband ever receives the configured
// activation bonus.
func (s *LedgerService) Activate(ctx context.Context, req ActivateRequest) (*models.Result, error) {
	serial := strings.TrimSpace(req.SerialNumber)
	if !s.cfg.SerialPattern.MatchString(serial) {
		return nil, newError(ReasonInvalidFormat, "serial number %q is not a valid wristband serial", req.SerialNumber)
	}
	if req.OwnerID == "" {
		return nil, newError(ReasonInvalidArgument, "owner is required")
	}

	keys := []string{store.SerialKey(serial), store.OwnerKey(req.OwnerID)}
	return s.execute(ctx, OpActivate, req.RequestID, receiptScope(serial, req.OwnerID), "", 0, keys, func(ctx context.Context, tx store.Tx, txID string) (*models.Result, error) {
		inv, err := tx.GetInventory(ctx, serial)
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(ReasonNotFound, "serial %s is not in inventory", serial)
		}
		if err != nil {
			return nil, err
		}
		if inv.Status == models.InventoryStatusBlocked {
			return nil, newError(ReasonBlocked, "serial %s is blocked", serial)
		}

		existing, err := tx.GetAccountBySerial(ctx, serial)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if existing != nil && existing.OwnerID == req.OwnerID {
			return nil, newError(ReasonDuplicateOwnership, "serial %s is already activated on one of your accounts", serial)
		}
		if existing != nil || inv.Status != models.InventoryStatusAvailable {
			return nil, newError(ReasonAlreadyActivated, "serial %s is already activated", serial)
		}

		profile, err := tx.GetOwnerProfile(ctx, req.OwnerID)
		if err != nil {
			return nil, err
		}

		now := tx.Now()
		account := &models.Account{
			ID:            uuid.NewString(),
			Kind:          models.AccountKindWristband,
			OwnerID:       req.OwnerID,
			SerialNumber:  serial,
			LinkedEventID: req.LinkedEventID,
			DisplayName:   req.DisplayName,
			Status:        models.AccountStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		var entries []*models.LedgerEntry
		if profile.WristbandCount == 0 && s.cfg.ActivationBonus > 0 {
			entry := post(account, txID, models.EntryActivationBonus, models.FieldBalance, s.cfg.ActivationBonus, now)
			entry.Description = "first wristband activation bonus"
			entries = append(entries, entry)
		}

		if err := tx.CreateAccount(ctx, account); err != nil {
			return nil, err
		}

		inv.Status = models.InventoryStatusActivated
		inv.ActivatedAccountID = account.ID
		inv.ActivatedBy = req.OwnerID
		inv.ActivatedAt = &now
		if err := tx.UpdateInventory(ctx, inv); err != nil {
			return nil, err
		}

		profile.WristbandCount++
		if err := tx.PutOwnerProfile(ctx, profile); err != nil {
			return nil, err
		}

		if err := tx.AppendEntries(ctx, entries...); err != nil {
			return nil, err
		}
		return &models.Result{Account: account, Inventory: inv, Entries: entries}, nil
	})
}
