package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/eventpass/cashless/internal/models"
	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error        string               `json:"error"`                  // Error message
	Code         string               `json:"code,omitempty"`         // Error kind
	Reason       string               `json:"reason,omitempty"`       // Specific failure
	Details      map[string]string    `json:"details,omitempty"`      // Validation details
	Balance      *int64               `json:"balance,omitempty"`      // Current balance, when relevant
	BonusBalance *int64               `json:"bonusBalance,omitempty"` // Current bonus balance, when relevant
	Status       models.AccountStatus `json:"status,omitempty"`       // Current account status, when relevant
}

var serialTagPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterValidation("serial", func(fl validator.FieldLevel) bool {
		return serialTagPattern.MatchString(fl.Field().String())
	})
	return &ValidationHelper{
		validator: v,
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	errorResp := ErrorResponse{Error: message}

	var validationErrors validator.ValidationErrors
	if errors.As(validationErr, &validationErrors) {
		errorResp.Code = string(KindInvalidArgument)
		errorResp.Details = make(map[string]string)
		for _, err := range validationErrors {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	writeError(w, statusCode, errorResp)
}

// SendLedgerError maps a ledger failure onto its HTTP status and JSON body.
func SendLedgerError(w http.ResponseWriter, err error) {
	le, ok := AsLedgerError(err)
	if !ok {
		SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}

	if le.Kind == KindInternalTransient {
		w.Header().Set("Retry-After", "1")
	}

	writeError(w, HTTPStatus(le.Kind), ErrorResponse{
		Error:        le.Message,
		Code:         string(le.Kind),
		Reason:       string(le.Reason),
		Balance:      le.Balance,
		BonusBalance: le.BonusBalance,
		Status:       le.Status,
	})
}

// HTTPStatus is the gateway status code for an error kind
func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPreconditionFailed:
		return http.StatusUnprocessableEntity
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindInternalTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, statusCode int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
