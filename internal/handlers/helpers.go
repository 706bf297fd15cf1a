package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	mW "github.com/eventpass/cashless/internal/middleware"
	"github.com/eventpass/cashless/internal/services"
)

const (
	maxBodyBytes      = 1_048_576
	idempotencyHeader = "Idempotency-Key"
)

// decodeRequest reads exactly one JSON object into req and validates it.
// On failure the error response has already been written.
func decodeRequest(w http.ResponseWriter, r *http.Request, validator *services.ValidationHelper, req any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(req); err != nil {
		log.Printf("[GATEWAY] %s %s - decode error: %v", r.Method, r.URL.Path, err)
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := validator.ValidateStruct(req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func requireCaller(w http.ResponseWriter, r *http.Request) (*mW.Caller, bool) {
	caller, ok := mW.CallerFromContext(r.Context())
	if !ok || caller.ID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return nil, false
	}
	return caller, true
}

// requestID scopes the client's Idempotency-Key to the authenticated caller,
// so equal keys from different callers never share a receipt.
func requestID(r *http.Request) string {
	key := r.Header.Get(idempotencyHeader)
	if key == "" {
		return ""
	}
	if caller, ok := mW.CallerFromContext(r.Context()); ok {
		return caller.ID + ":" + key
	}
	return key
}

func sendJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}
