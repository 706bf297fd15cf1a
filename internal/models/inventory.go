package models

import "time"

// InventoryStatus is the lifecycle state of an issuable wristband serial
type InventoryStatus string

const (
	InventoryStatusAvailable InventoryStatus = "available"
	InventoryStatusActivated InventoryStatus = "activated"
	InventoryStatusBlocked   InventoryStatus = "blocked"
)

// InventoryEntry represents one provisioned wristband serial number
type InventoryEntry struct {
	SerialNumber       string          `json:"serialNumber" db:"serial_number"`
	Status             InventoryStatus `json:"status" db:"status"`
	ActivatedAccountID string          `json:"activatedAccountId,omitempty" db:"activated_account_id"`
	ActivatedBy        string          `json:"activatedBy,omitempty" db:"activated_by"`
	ActivatedAt        *time.Time      `json:"activatedAt,omitempty" db:"activated_at"`
	BlockedReason      string          `json:"blockedReason,omitempty" db:"blocked_reason"`
	Version            int64           `json:"-" db:"version"`
	CreatedAt          time.Time       `json:"createdAt" db:"created_at"`
}

func (e *InventoryEntry) Clone() *InventoryEntry {
	if e == nil {
		return nil
	}
	cp := *e
	if e.ActivatedAt != nil {
		t := *e.ActivatedAt
		cp.ActivatedAt = &t
	}
	return &cp
}
