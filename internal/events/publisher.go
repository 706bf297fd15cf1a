package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/eventpass/cashless/internal/models"
	"github.com/nats-io/nats.go"
)

// SubjectLedgerCommitted carries one message per committed ledger operation
const SubjectLedgerCommitted = "ledger.entries.committed"

// LedgerCommitted is the payload published after a unit of work commits
type LedgerCommitted struct {
	TransactionID string                `json:"transactionId"`
	Operation     string                `json:"operation"`
	AccountIDs    []string              `json:"accountIds"`
	Entries       []*models.LedgerEntry `json:"entries"`
	CommittedAt   time.Time             `json:"committedAt"`
}

func NewLedgerCommitted(result *models.Result) LedgerCommitted {
	event := LedgerCommitted{
		TransactionID: result.TransactionID,
		Operation:     result.Operation,
		Entries:       result.Entries,
		CommittedAt:   time.Now().UTC(),
	}

	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			event.AccountIDs = append(event.AccountIDs, id)
		}
	}
	if result.Account != nil {
		add(result.Account.ID)
	}
	if result.Counterparty != nil {
		add(result.Counterparty.ID)
	}
	for _, e := range result.Entries {
		add(e.AccountID)
	}
	return event
}

type natsConn interface {
	Publish(subject string, data []byte) error
}

type NATSPublisher struct {
	nc natsConn
}

func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

func (p *NATSPublisher) PublishCommitted(ctx context.Context, result *models.Result) error {
	data, err := json.Marshal(NewLedgerCommitted(result))
	if err != nil {
		return err
	}
	return p.nc.Publish(SubjectLedgerCommitted, data)
}

// NoopPublisher drops events; used when no NATS URL is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishCommitted(ctx context.Context, result *models.Result) error {
	return nil
}

// Connect dials NATS. An empty url disables eventing and returns a nil conn.
func Connect(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}

	nc, err := nats.Connect(url, nats.Name("cashless-ledger"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return nc, nil
}
