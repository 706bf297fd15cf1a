package models

import (
	"time"
)

// EntryType classifies a ledger entry
type EntryType string

const (
	EntryActivationBonus EntryType = "activation_bonus"
	EntryTopUp           EntryType = "topup"
	EntryBonusCredit     EntryType = "bonus_credit"
	EntryPayment         EntryType = "payment"
	EntryRefund          EntryType = "refund"
	EntryTransferOut     EntryType = "transfer_out"
	EntryTransferIn      EntryType = "transfer_in"
)

// BalanceField names which balance of an account an entry touched
type BalanceField string

const (
	FieldBalance      BalanceField = "balance"
	FieldBonusBalance BalanceField = "bonus_balance"
)

// LedgerEntry is one immutable row of the transaction log
type LedgerEntry struct {
	ID              string       `json:"id" db:"id"`
	TransactionID   string       `json:"transactionId" db:"transaction_id"` // shared by every entry of one operation
	AccountID       string       `json:"accountId" db:"account_id"`
	Type            EntryType    `json:"type" db:"entry_type"`
	Field           BalanceField `json:"field" db:"field"`
	Amount          int64        `json:"amount" db:"amount"` // signed, in minor units
	BalanceAfter    int64        `json:"balanceAfter" db:"balance_after"`
	CounterpartyRef string       `json:"counterpartyRef,omitempty" db:"counterparty_ref"`
	VendorID        string       `json:"vendorId,omitempty" db:"vendor_id"`
	EventID         string       `json:"eventId,omitempty" db:"event_id"`
	Description     string       `json:"description,omitempty" db:"description"`
	Sequence        int64        `json:"sequence" db:"sequence"` // per-account replay order
	CreatedAt       time.Time    `json:"createdAt" db:"created_at"`
}

// IsCredit reports whether the entry added value to the account
func (e *LedgerEntry) IsCredit() bool {
	return e.Amount > 0
}

// AggregateScope names what a daily aggregate is keyed by
type AggregateScope string

const (
	ScopeVendor AggregateScope = "vendor"
	ScopeEvent  AggregateScope = "event"
)

// DailyAggregate is a denormalized per-day payment rollup for reporting
type DailyAggregate struct {
	Scope        AggregateScope `json:"scope" db:"scope"`
	ScopeID      string         `json:"scopeId" db:"scope_id"`
	Day          string         `json:"day" db:"day"` // UTC, YYYY-MM-DD
	PaymentCount int64          `json:"paymentCount" db:"payment_count"`
	TotalAmount  int64          `json:"totalAmount" db:"total_amount"`
}

// DayKey formats t as the UTC day used by daily aggregates
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
