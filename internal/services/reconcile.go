package services

import (
	"context"
	"time"

	"github.com/eventpass/cashless/internal/models"
	"github.com/eventpass/cashless/internal/store"
)

// Reconcile replays an account's transaction log. Stats drift is repaired in
// place; a balance that disagrees with the log is reported, never rewritten.
func (s *LedgerService) Reconcile(ctx context.Context, accountID string) (*models.ReconcileReport, error) {
	start := time.Now()

	var report *models.ReconcileReport
	err := s.runUnit(ctx, OpReconcile, []string{store.AccountKey(accountID)}, func(ctx context.Context, tx store.Tx) error {
		report = nil

		account, err := loadAccount(ctx, tx, accountID, ReasonAccountNotFound)
		if err != nil {
			return err
		}
		entries, err := tx.ListEntries(ctx, accountID)
		if err != nil {
			return err
		}

		r := replay(account, entries)
		if r.ReplayedStats != account.Stats {
			account.Stats = r.ReplayedStats
			account.UpdatedAt = tx.Now()
			if err := tx.UpdateAccount(ctx, account); err != nil {
				return err
			}
			r.StatsRepaired = true
		}
		report = r
		return nil
	})
	if err != nil {
		le := s.translate(err)
		s.recorder.ObserveOperation(OpReconcile, string(le.Reason), time.Since(start))
		return nil, le
	}

	if !report.Consistent {
		s.recorder.ObserveOperation(OpReconcile, string(ReasonReplayMismatch), time.Since(start))
		s.audit.LogOperation(OpReconcile, accountID, "stored balance disagrees with transaction log")
		le := newError(ReasonReplayMismatch, "account %s balance %d/%d, log replays to %d/%d", accountID,
			report.StoredBalance, report.StoredBonusBalance, report.ReplayedBalance, report.ReplayedBonusBalance)
		return report, le
	}

	s.recorder.ObserveOperation(OpReconcile, "ok", time.Since(start))
	if report.StatsRepaired {
		s.audit.LogOperation(OpReconcile, accountID, "stats repaired from transaction log")
	}
	return report, nil
}

// replay folds entries in sequence order into balances and stats.
func replay(account *models.Account, entries []*models.LedgerEntry) *models.ReconcileReport {
	report := &models.ReconcileReport{
		AccountID:          account.ID,
		EntryCount:         len(entries),
		StoredBalance:      account.Balance,
		StoredBonusBalance: account.BonusBalance,
	}

	for _, e := range entries {
		if e.Field == models.FieldBonusBalance {
			report.ReplayedBonusBalance += e.Amount
		} else {
			report.ReplayedBalance += e.Amount
		}
		if e.Amount > 0 {
			report.ReplayedStats.TotalCredited += e.Amount
		} else {
			report.ReplayedStats.TotalDebited -= e.Amount
		}
		report.ReplayedStats.TransactionCount++
	}

	report.Consistent = report.ReplayedBalance == account.Balance &&
		report.ReplayedBonusBalance == account.BonusBalance
	return report
}
