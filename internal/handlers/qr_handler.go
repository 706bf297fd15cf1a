package handlers

import (
	"log"
	"net/http"

	"github.com/eventpass/cashless/internal/services"
	"github.com/go-chi/chi/v5"
)

type QRHandler struct {
	service   *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type ResolveQRRequest struct {
	QRCode string `json:"qrCode" validate:"required,max=512"`
}

// GenerateQR issues a single-use pay code for one of the caller's accounts
// @Summary Generate account pay code
// @Description Issue a short-lived QR pay code standing in for a wristband tap at terminals without NFC
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Success 200 {object} object{qrCode=string,qrImage=string}
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /accounts/{accountId}/qr [get]
func (h *QRHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	qrCode, qrImage, err := h.service.GenerateAccountQRCode(r.Context(), chi.URLParam(r, "accountId"), caller.ID)
	if err != nil {
		log.Printf("[QR] GenerateQR for %s failed: %v", caller.ID, err)
		services.SendLedgerError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]string{
		"qrCode":  qrCode,
		"qrImage": qrImage,
	})
}

// ResolveQR consumes a scanned pay code
// @Summary Resolve pay code
// @Description Resolve a scanned pay code to the account it stands for. Each code resolves once.
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ResolveQRRequest true "Scanned code"
// @Success 200 {object} object{success=bool,data=models.Account}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /qr/resolve [post]
func (h *QRHandler) ResolveQR(w http.ResponseWriter, r *http.Request) {
	var req ResolveQRRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	account, err := h.service.ResolveQRCode(r.Context(), req.QRCode)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, account)
}
