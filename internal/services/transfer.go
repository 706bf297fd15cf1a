package services

import (
	"context"
	"errors"

	"github.com/eventpass/cashless/internal/models"
	"github.com/eventpass/cashless/internal/store"
)

type DestinationKind string

const (
	DestinationWallet    DestinationKind = "wallet"
	DestinationWristband DestinationKind = "wristband"
)

type Destination struct {
	Kind      DestinationKind
	AccountID string
}

type TransferRequest struct {
	RequestID       string
	SourceAccountID string
	Destination     Destination
	Amount          int64
	OwnerID         string
}

// Transfer moves main balance between two accounts of the same owner. Bonus
// value never moves. A wallet destination is created on first use.
func (s *LedgerService) Transfer(ctx context.Context, req TransferRequest) (*models.Result, error) {
	if err := s.requireAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.OwnerID == "" {
		return nil, newError(ReasonInvalidArgument, "owner is required")
	}

	var destID string
	switch req.Destination.Kind {
	case DestinationWallet:
		destID = models.WalletID(req.OwnerID)
	case DestinationWristband:
		if req.Destination.AccountID == "" {
			return nil, newError(ReasonInvalidArgument, "destination account is required")
		}
		destID = req.Destination.AccountID
	default:
		return nil, newError(ReasonInvalidArgument, "unknown destination kind %q", req.Destination.Kind)
	}
	if destID == req.SourceAccountID {
		return nil, newError(ReasonInvalidArgument, "source and destination must differ")
	}

	keys := []string{store.AccountKey(req.SourceAccountID), store.AccountKey(destID)}
	return s.execute(ctx, OpTransfer, req.RequestID, receiptScope(req.SourceAccountID, destID, req.OwnerID, req.Amount), req.SourceAccountID, -req.Amount, keys, func(ctx context.Context, tx store.Tx, txID string) (*models.Result, error) {
		source, err := loadAccount(ctx, tx, req.SourceAccountID, ReasonAccountNotFound)
		if err != nil {
			return nil, err
		}
		if source.OwnerID != req.OwnerID {
			return nil, newError(ReasonOwnershipMismatch, "account %s does not belong to the caller", source.ID)
		}
		if err := requireMutable(source); err != nil {
			return nil, err
		}
		if source.Balance < req.Amount {
			return nil, newError(ReasonInsufficientBalance, "account %s cannot transfer %d", source.ID, req.Amount).withAccount(source)
		}

		now := tx.Now()
		created := false
		dest, err := tx.GetAccount(ctx, destID)
		switch {
		case errors.Is(err, store.ErrNotFound) && req.Destination.Kind == DestinationWallet:
			dest = models.NewWallet(req.OwnerID, now)
			created = true
		case errors.Is(err, store.ErrNotFound):
			return nil, newError(ReasonDestinationNotFound, "destination account %s not found", destID)
		case err != nil:
			return nil, err
		}
		if dest.Kind != models.AccountKind(req.Destination.Kind) {
			return nil, newError(ReasonInvalidArgument, "account %s is not a %s", dest.ID, req.Destination.Kind)
		}
		if dest.OwnerID != req.OwnerID {
			return nil, newError(ReasonOwnershipMismatch, "destination %s belongs to another owner", dest.ID)
		}
		if err := requireMutable(dest); err != nil {
			return nil, err
		}
		if err := requireHeadroom(dest, models.FieldBalance, req.Amount); err != nil {
			return nil, err
		}

		out := post(source, txID, models.EntryTransferOut, models.FieldBalance, -req.Amount, now)
		out.CounterpartyRef = dest.ID
		in := post(dest, txID, models.EntryTransferIn, models.FieldBalance, req.Amount, now)
		in.CounterpartyRef = source.ID

		if err := tx.UpdateAccount(ctx, source); err != nil {
			return nil, err
		}
		if created {
			err = tx.CreateAccount(ctx, dest)
		} else {
			err = tx.UpdateAccount(ctx, dest)
		}
		if err != nil {
			return nil, err
		}

		entries := []*models.LedgerEntry{out, in}
		if err := tx.AppendEntries(ctx, entries...); err != nil {
			return nil, err
		}
		return &models.Result{Account: source, Counterparty: dest, Entries: entries}, nil
	})
}
