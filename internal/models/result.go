package models

import "time"

// Result is what a committed ledger operation returns to its caller
type Result struct {
	TransactionID string          `json:"transactionId"`
	Operation     string          `json:"operation"`
	Account       *Account        `json:"account"`
	Counterparty  *Account        `json:"counterparty,omitempty"`
	Inventory     *InventoryEntry `json:"inventory,omitempty"`
	Entries       []*LedgerEntry  `json:"entries"`
	Replayed      bool            `json:"replayed,omitempty"`
}

// Receipt stores a committed result under the caller's request id so a
// retried request returns the original outcome instead of re-applying.
type Receipt struct {
	RequestID string    `json:"requestId" db:"request_id"`
	Operation string    `json:"operation" db:"operation"`
	Scope     string    `json:"scope" db:"scope"`
	Result    Result    `json:"result" db:"result"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ReconcileReport describes the outcome of replaying an account's log
type ReconcileReport struct {
	AccountID            string       `json:"accountId"`
	EntryCount           int          `json:"entryCount"`
	ReplayedBalance      int64        `json:"replayedBalance"`
	ReplayedBonusBalance int64        `json:"replayedBonusBalance"`
	StoredBalance        int64        `json:"storedBalance"`
	StoredBonusBalance   int64        `json:"storedBonusBalance"`
	ReplayedStats        AccountStats `json:"replayedStats"`
	StatsRepaired        bool         `json:"statsRepaired"`
	Consistent           bool         `json:"consistent"`
}
