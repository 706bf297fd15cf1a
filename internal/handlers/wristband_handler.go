package handlers

import (
	"log"
	"net/http"

	"github.com/eventpass/cashless/internal/services"
	"github.com/go-chi/chi/v5"
)

type ActivateWristbandRequest struct {
	SerialNumber  string `json:"serialNumber" validate:"required,serial,max=32"`
	DisplayName   string `json:"displayName,omitempty" validate:"max=64"`
	LinkedEventID string `json:"linkedEventId,omitempty" validate:"max=128"`
}

type BlockSerialRequest struct {
	Reason string `json:"reason" validate:"required,max=256"`
}

// ActivateWristband binds a wristband serial to the caller
// @Summary Activate wristband
// @Description Activate an inventory wristband as a new account of the caller. The caller's first wristband ever is credited with the activation bonus.
// @Tags wristbands
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Client request id"
// @Param request body ActivateWristbandRequest true "Activation request"
// @Success 201 {object} object{success=bool,data=models.Result}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /wristbands/activate [post]
func (h *LedgerHandler) ActivateWristband(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req ActivateWristbandRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	log.Printf("[WRISTBAND] Activation of %s requested by %s", req.SerialNumber, caller.ID)

	result, err := h.ledger.Activate(r.Context(), services.ActivateRequest{
		RequestID:     requestID(r),
		SerialNumber:  req.SerialNumber,
		OwnerID:       caller.ID,
		DisplayName:   req.DisplayName,
		LinkedEventID: req.LinkedEventID,
	})
	if err != nil {
		log.Printf("[WRISTBAND] Activation of %s failed: %v", req.SerialNumber, err)
		services.SendLedgerError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	sendJSON(w, status, result)
}

// BlockSerial reports a wristband lost or stolen
// @Summary Block wristband serial
// @Description Permanently block an inventory serial and freeze the account it is bound to
// @Tags wristbands
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param serial path string true "Wristband serial number"
// @Param Idempotency-Key header string false "Client request id"
// @Param request body BlockSerialRequest true "Block request"
// @Success 200 {object} object{success=bool,data=models.Result}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /inventory/{serial}/block [post]
func (h *LedgerHandler) BlockSerial(w http.ResponseWriter, r *http.Request) {
	var req BlockSerialRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	serial := chi.URLParam(r, "serial")
	result, err := h.ledger.BlockSerial(r.Context(), services.BlockRequest{
		RequestID:    requestID(r),
		SerialNumber: serial,
		Reason:       req.Reason,
	})
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	log.Printf("[WRISTBAND] Serial %s blocked: %s", serial, req.Reason)
	sendJSON(w, http.StatusOK, result)
}
