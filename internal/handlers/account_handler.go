package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/eventpass/cashless/internal/models"
	mW "github.com/eventpass/cashless/internal/middleware"
	"github.com/eventpass/cashless/internal/services"
	"github.com/go-chi/chi/v5"
)

// LedgerHandler exposes the ledger engine over HTTP. Every balance change is
// delegated to services.LedgerService; the handler only maps callers and
// request bodies onto engine requests.
type LedgerHandler struct {
	ledger    *services.LedgerService
	validator *services.ValidationHelper
}

func NewLedgerHandler(ledger *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledger:    ledger,
		validator: services.NewValidationHelper(),
	}
}

// authorizedAccount loads the {accountId} account and checks that the caller
// owns it. Service callers may read any account.
func (h *LedgerHandler) authorizedAccount(w http.ResponseWriter, r *http.Request, caller *mW.Caller) (*models.Account, bool) {
	account, err := h.ledger.GetAccount(r.Context(), chi.URLParam(r, "accountId"))
	if err != nil {
		services.SendLedgerError(w, err)
		return nil, false
	}
	if caller.Role != mW.RoleService && account.OwnerID != caller.ID {
		services.SendLedgerError(w, services.PermissionDenied("account %s does not belong to the caller", account.ID))
		return nil, false
	}
	return account, true
}

// ListAccounts returns the caller's accounts
// @Summary List my accounts
// @Description List the wristbands and wallet owned by the caller
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{success=bool,data=[]models.Account}
// @Failure 401 {object} services.ErrorResponse
// @Router /accounts [get]
func (h *LedgerHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	accounts, err := h.ledger.ListAccounts(r.Context(), caller.ID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	sendJSON(w, http.StatusOK, accounts)
}

// GetWallet returns the caller's wallet, opening it on first access
// @Summary Get my wallet
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{success=bool,data=models.Account}
// @Failure 401 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /wallet [get]
func (h *LedgerHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	wallet, err := h.ledger.GetOrCreateWallet(r.Context(), caller.ID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, wallet)
}

// GetAccount returns one account with its balances and stats
// @Summary Get account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Success 200 {object} object{success=bool,data=models.Account}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{accountId} [get]
func (h *LedgerHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	account, ok := h.authorizedAccount(w, r, caller)
	if !ok {
		return
	}
	sendJSON(w, http.StatusOK, account)
}

// ListEntries returns an account's transaction log, newest first
// @Summary List ledger entries
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param limit query int false "Maximum entries (default 50, max 500)"
// @Success 200 {object} object{success=bool,data=[]models.LedgerEntry}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{accountId}/entries [get]
func (h *LedgerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			services.SendErrorResponse(w, "limit must be a non-negative integer", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}

	account, ok := h.authorizedAccount(w, r, caller)
	if !ok {
		return
	}

	entries, err := h.ledger.ListEntries(r.Context(), account.ID, limit)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	sendJSON(w, http.StatusOK, entries)
}

// Freeze stops all balance changes on the caller's account
// @Summary Freeze account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param Idempotency-Key header string false "Client request id"
// @Success 200 {object} object{success=bool,data=models.Result}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /accounts/{accountId}/freeze [post]
func (h *LedgerHandler) Freeze(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.ledger.Freeze)
}

// Unfreeze re-enables balance changes on the caller's account
// @Summary Unfreeze account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param Idempotency-Key header string false "Client request id"
// @Success 200 {object} object{success=bool,data=models.Result}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{accountId}/unfreeze [post]
func (h *LedgerHandler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.ledger.Unfreeze)
}

func (h *LedgerHandler) setStatus(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, req services.FreezeRequest) (*models.Result, error)) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	result, err := op(r.Context(), services.FreezeRequest{
		RequestID: requestID(r),
		AccountID: chi.URLParam(r, "accountId"),
		CallerID:  caller.ID,
	})
	if err != nil {
		log.Printf("[GATEWAY] %s by %s failed: %v", r.URL.Path, caller.ID, err)
		services.SendLedgerError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, result)
}
