package handlers

import (
	"log"
	"net/http"

	mW "github.com/eventpass/cashless/internal/middleware"
	"github.com/eventpass/cashless/internal/services"
	"github.com/go-chi/chi/v5"
)

type CreditRequest struct {
	Amount          int64  `json:"amount" validate:"required,gt=0"`
	Source          string `json:"source,omitempty" validate:"omitempty,oneof=topup bonus"`
	CounterpartyRef string `json:"counterpartyRef,omitempty" validate:"max=128"`
	Description     string `json:"description,omitempty" validate:"max=256"`
}

type DebitRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	VendorID    string `json:"vendorId,omitempty" validate:"max=128"`
	EventID     string `json:"eventId,omitempty" validate:"max=128"`
	Description string `json:"description,omitempty" validate:"max=256"`
}

type TransferDestination struct {
	Kind      string `json:"kind" validate:"required,oneof=wallet wristband"`
	AccountID string `json:"accountId,omitempty" validate:"required_if=Kind wristband"`
}

type TransferRequest struct {
	Destination TransferDestination `json:"destination"`
	Amount      int64               `json:"amount" validate:"required,gt=0"`
}

type RefundRequest struct {
	OrderRef  string `json:"orderRef" validate:"required,max=128"`
	AccountID string `json:"accountId" validate:"required"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reason    string `json:"reason,omitempty" validate:"max=256"`
}

// Credit tops up an account
// @Summary Credit account
// @Description Top up the main balance, or grant bonus value to a wallet. Wallet top-ups above the bonus threshold earn a bonus in the same transaction.
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param Idempotency-Key header string false "Client request id"
// @Param request body CreditRequest true "Credit request"
// @Success 200 {object} object{success=bool,data=models.Result}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /accounts/{accountId}/credit [post]
func (h *LedgerHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	result, err := h.ledger.Credit(r.Context(), services.CreditRequest{
		RequestID:       requestID(r),
		AccountID:       chi.URLParam(r, "accountId"),
		Amount:          req.Amount,
		Source:          services.CreditSource(req.Source),
		CounterpartyRef: req.CounterpartyRef,
		Description:     req.Description,
	})
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, result)
}

// Debit charges an account for a vendor payment
// @Summary Pay a vendor
// @Description Debit an account for a purchase. Wallets spend bonus value first. Vendors are charged as themselves; service callers must name the vendor.
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param Idempotency-Key header string false "Client request id"
// @Param request body DebitRequest true "Debit request"
// @Success 200 {object} object{success=bool,data=models.Result}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /accounts/{accountId}/debit [post]
func (h *LedgerHandler) Debit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req DebitRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	vendorID := req.VendorID
	if caller.Role == mW.RoleVendor {
		if vendorID != "" && vendorID != caller.ID {
			services.SendLedgerError(w, services.PermissionDenied("vendors may only charge as themselves"))
			return
		}
		vendorID = caller.ID
	}

	result, err := h.ledger.Debit(r.Context(), services.DebitRequest{
		RequestID:   requestID(r),
		AccountID:   chi.URLParam(r, "accountId"),
		Amount:      req.Amount,
		VendorID:    vendorID,
		EventID:     req.EventID,
		Description: req.Description,
	})
	if err != nil {
		log.Printf("[GATEWAY] Debit of %d by %s failed: %v", req.Amount, vendorID, err)
		services.SendLedgerError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, result)
}

// Transfer moves main balance between two of the caller's accounts
// @Summary Transfer between own accounts
// @Description Move main balance from a wristband or wallet to another account of the same owner. A wallet destination is opened on first use. Bonus balance never moves.
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Source account ID"
// @Param Idempotency-Key header string false "Client request id"
// @Param request body TransferRequest true "Transfer request"
// @Success 200 {object} object{success=bool,data=models.Result}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /accounts/{accountId}/transfer [post]
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req TransferRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	result, err := h.ledger.Transfer(r.Context(), services.TransferRequest{
		RequestID:       requestID(r),
		SourceAccountID: chi.URLParam(r, "accountId"),
		Destination: services.Destination{
			Kind:      services.DestinationKind(req.Destination.Kind),
			AccountID: req.Destination.AccountID,
		},
		Amount:  req.Amount,
		OwnerID: caller.ID,
	})
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, result)
}

// Refund returns money for a cancelled order
// @Summary Refund an order
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Client request id"
// @Param request body RefundRequest true "Refund request"
// @Success 200 {object} object{success=bool,data=models.Result}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /refunds [post]
func (h *LedgerHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	result, err := h.ledger.Refund(r.Context(), services.RefundRequest{
		RequestID: requestID(r),
		OrderRef:  req.OrderRef,
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, result)
}
