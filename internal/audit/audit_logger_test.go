package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/eventpass/cashless/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAuditLine(t *testing.T, buf *bytes.Buffer) AuditEvent {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	idx := strings.Index(line, "AUDIT: ")
	require.GreaterOrEqual(t, idx, 0)

	var event AuditEvent
	require.NoError(t, json.Unmarshal([]byte(line[idx+len("AUDIT: "):]), &event))
	return event
}

func TestAuditLogger_LogCommitted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewAuditLoggerTo(log.New(&buf, "", 0))

	logger.LogCommitted(&models.Result{
		TransactionID: "tx-1",
		Operation:     "debit",
		Account:       &models.Account{ID: "wallet_u1"},
		Entries: []*models.LedgerEntry{
			{AccountID: "wallet_u1", Type: models.EntryPayment, Field: models.FieldBonusBalance, Amount: -200},
			{AccountID: "wallet_u1", Type: models.EntryPayment, Field: models.FieldBalance, Amount: -50},
		},
	})

	event := decodeAuditLine(t, &buf)
	assert.Equal(t, "debit", event.EventType)
	assert.Equal(t, "tx-1", event.TransactionID)
	assert.Equal(t, int64(-250), event.Amount)
	assert.Equal(t, "SUCCESS", event.Status)
}

func TestAuditLogger_LogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewAuditLoggerTo(log.New(&buf, "", 0))

	logger.LogError("transfer", "acc-1", 900, errors.New("insufficient_balance"))

	event := decodeAuditLine(t, &buf)
	assert.Equal(t, "FAILED", event.Status)
	assert.Equal(t, "acc-1", event.AccountID)
	assert.Contains(t, event.Details, "error")
}
