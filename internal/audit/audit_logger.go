package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/eventpass/cashless/internal/models"
)

type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id,omitempty"`
	AccountID     string    `json:"account_id,omitempty"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// AuditLogger writes one JSON line per committed or failed ledger operation.
type AuditLogger struct {
	logger *log.Logger
}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{logger: log.Default()}
}

// NewAuditLoggerTo sends audit lines to logger instead of the default log output.
func NewAuditLoggerTo(logger *log.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogCommitted records every entry of a committed operation.
func (a *AuditLogger) LogCommitted(result *models.Result) {
	var accountID string
	if result.Account != nil {
		accountID = result.Account.ID
	}

	var amount int64
	entries := make([]map[string]any, 0, len(result.Entries))
	for _, e := range result.Entries {
		if e.AccountID == accountID {
			amount += e.Amount
		}
		entries = append(entries, map[string]any{
			"account_id":    e.AccountID,
			"type":          e.Type,
			"field":         e.Field,
			"amount":        e.Amount,
			"balance_after": e.BalanceAfter,
		})
	}

	event := AuditEvent{
		Timestamp:     time.Now(),
		EventType:     result.Operation,
		TransactionID: result.TransactionID,
		AccountID:     accountID,
		Amount:        amount,
		Status:        "SUCCESS",
		Details:       map[string]any{"entries": entries, "replayed": result.Replayed},
	}
	a.log(event)
}

func (a *AuditLogger) LogError(operation, accountID string, amount int64, err error) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: operation,
		AccountID: accountID,
		Amount:    amount,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *AuditLogger) LogOperation(operation, accountID, details string) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: operation,
		AccountID: accountID,
		Status:    "SUCCESS",
		Details:   map[string]string{"details": details},
	}
	a.log(event)
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	a.logger.Printf("AUDIT: %s", string(data))
}
