package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/eventpass/cashless/internal/models"
	"github.com/nats-io/nats.go"
)

const reconcileQueue = "reconcile_workers"

type Reconciler interface {
	Reconcile(ctx context.Context, accountID string) (*models.ReconcileReport, error)
}

type MismatchObserver interface {
	ObserveReconcileMismatch()
}

// ReconcileWorker replays the log of every account touched by a committed
// operation. Running several copies is safe: the queue group delivers each
// event to one of them.
type ReconcileWorker struct {
	nc         *nats.Conn
	reconciler Reconciler
	observer   MismatchObserver
}

func NewReconcileWorker(nc *nats.Conn, reconciler Reconciler, observer MismatchObserver) *ReconcileWorker {
	return &ReconcileWorker{
		nc:         nc,
		reconciler: reconciler,
		observer:   observer,
	}
}

// Start subscribes and blocks until ctx is done, then drains the subscription.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	sub, err := w.nc.QueueSubscribe(SubjectLedgerCommitted, reconcileQueue, func(m *nats.Msg) {
		if err := w.HandleMessage(ctx, m.Data); err != nil {
			log.Printf("[RECONCILE] dropping message: %v", err)
		}
	})
	if err != nil {
		return err
	}

	log.Printf("[RECONCILE] worker subscribed to %s", SubjectLedgerCommitted)
	<-ctx.Done()
	return sub.Drain()
}

func (w *ReconcileWorker) HandleMessage(ctx context.Context, data []byte) error {
	var event LedgerCommitted
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}

	for _, accountID := range event.AccountIDs {
		report, err := w.reconciler.Reconcile(ctx, accountID)
		if report != nil && !report.Consistent {
			log.Printf("[RECONCILE] account %s drifted: stored %d/%d, replayed %d/%d",
				accountID, report.StoredBalance, report.StoredBonusBalance,
				report.ReplayedBalance, report.ReplayedBonusBalance)
			if w.observer != nil {
				w.observer.ObserveReconcileMismatch()
			}
			continue
		}
		if err != nil {
			log.Printf("[RECONCILE] account %s: %v", accountID, err)
			continue
		}
		if report != nil && report.StatsRepaired {
			log.Printf("[RECONCILE] account %s stats repaired", accountID)
		}
	}
	return nil
}
