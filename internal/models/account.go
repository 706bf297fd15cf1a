package models

import (
	"time"
)

// AccountKind distinguishes event-scoped wristbands from platform wallets
type AccountKind string

const (
	AccountKindWristband AccountKind = "wristband"
	AccountKindWallet    AccountKind = "wallet"
)

// AccountStatus represents the account lifecycle state
type AccountStatus string

const (
	AccountStatusInactive AccountStatus = "inactive"
	AccountStatusActive   AccountStatus = "active"
	AccountStatusFrozen   AccountStatus = "frozen"
)

// AccountStats are caches of the transaction log, always reproducible by replay
type AccountStats struct {
	TotalCredited    int64 `json:"totalCredited" db:"total_credited"`
	TotalDebited     int64 `json:"totalDebited" db:"total_debited"`
	TransactionCount int64 `json:"transactionCount" db:"transaction_count"`
}

// Account represents a prepaid balance holder (wristband or wallet)
type Account struct {
	ID            string        `json:"id" db:"id"`
	Kind          AccountKind   `json:"kind" db:"kind"`
	OwnerID       string        `json:"ownerId" db:"owner_id"`
	SerialNumber  string        `json:"serialNumber,omitempty" db:"serial_number"`
	LinkedEventID string        `json:"linkedEventId,omitempty" db:"linked_event_id"`
	DisplayName   string        `json:"displayName,omitempty" db:"display_name"`
	Status        AccountStatus `json:"status" db:"status"`
	Balance       int64         `json:"balance" db:"balance"`             // in minor units
	BonusBalance  int64         `json:"bonusBalance" db:"bonus_balance"` // wallets only
	Stats         AccountStats  `json:"stats"`
	Version       int64         `json:"-" db:"version"` // for optimistic locking
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time     `json:"updatedAt" db:"updated_at"`
}

// WalletID returns the deterministic account id of an owner's wallet
func WalletID(ownerID string) string {
	return "wallet_" + ownerID
}

// NewWallet builds the lazily created wallet for an owner
func NewWallet(ownerID string, now time.Time) *Account {
	return &Account{
		ID:        WalletID(ownerID),
		Kind:      AccountKindWallet,
		OwnerID:   ownerID,
		Status:    AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Spendable is the total a debit may draw from
func (a *Account) Spendable() int64 {
	if a.Kind == AccountKindWallet {
		return a.Balance + a.BonusBalance
	}
	return a.Balance
}

// Clone returns a copy safe to mutate independently
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// OwnerProfile holds the per-owner denormalized counters the ledger maintains
type OwnerProfile struct {
	OwnerID        string    `json:"ownerId" db:"owner_id"`
	WristbandCount int64     `json:"wristbandCount" db:"wristband_count"`
	Version        int64     `json:"-" db:"version"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}
