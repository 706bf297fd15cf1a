package handlers

import (
	"net/http"

	"github.com/eventpass/cashless/internal/models"
	"github.com/eventpass/cashless/internal/services"
	"github.com/go-chi/chi/v5"
)

// DailyReport returns per-day payment totals for a vendor or an event
// @Summary Daily payment report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param scope path string true "vendor or event"
// @Param scopeId path string true "Vendor or event ID"
// @Param from query string false "First UTC day, YYYY-MM-DD"
// @Param to query string false "Last UTC day, YYYY-MM-DD"
// @Success 200 {object} object{success=bool,data=[]models.DailyAggregate}
// @Failure 400 {object} services.ErrorResponse
// @Router /reports/{scope}/{scopeId}/daily [get]
func (h *LedgerHandler) DailyReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	aggregates, err := h.ledger.DailyAggregates(r.Context(),
		models.AggregateScope(chi.URLParam(r, "scope")),
		chi.URLParam(r, "scopeId"),
		query.Get("from"),
		query.Get("to"),
	)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	if aggregates == nil {
		aggregates = []*models.DailyAggregate{}
	}
	sendJSON(w, http.StatusOK, aggregates)
}

// Reconcile replays an account's log against its stored balances
// @Summary Reconcile account
// @Description Replay the transaction log. Stats drift is repaired; a balance mismatch is reported with consistent=false and left untouched.
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Success 200 {object} object{success=bool,data=models.ReconcileReport}
// @Failure 404 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /accounts/{accountId}/reconcile [post]
func (h *LedgerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Reconcile(r.Context(), chi.URLParam(r, "accountId"))
	if report != nil {
		// a mismatch is a finding, not a failed request
		sendJSON(w, http.StatusOK, report)
		return
	}
	services.SendLedgerError(w, err)
}
