package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eventpass/cashless/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestStruct struct {
	Serial  string `validate:"required,serial"`
	OwnerID string `validate:"required,min=2"`
	Amount  int64  `validate:"required,gt=0"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		valid := TestStruct{Serial: "WB-000123", OwnerID: "user-1", Amount: 100}
		assert.NoError(t, vh.ValidateStruct(&valid))
	})

	t.Run("invalid struct - missing required fields", func(t *testing.T) {
		invalid := TestStruct{
			Serial:  "WB 000123", // spaces are not allowed
			OwnerID: "u",         // Too short
		}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 3) // Serial, OwnerID, Amount errors
	})

	t.Run("invalid serial tag", func(t *testing.T) {
		invalid := TestStruct{Serial: "wb_01", OwnerID: "user-1", Amount: 1}

		err := vh.ValidateStruct(&invalid)
		validationErrors, ok := err.(validator.ValidationErrors)
		require.True(t, ok)
		assert.Len(t, validationErrors, 1)
		assert.Equal(t, "Serial", validationErrors[0].Field())
		assert.Equal(t, "serial", validationErrors[0].Tag())
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		validationErr := NewValidationHelper().ValidateStruct(&TestStruct{})
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "invalid_argument", response.Code)
		assert.Contains(t, response.Details, "Serial")
		assert.Contains(t, response.Details, "OwnerID")
		assert.Contains(t, response.Details, "Amount")
	})

	t.Run("non validation error is ignored", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Bad", http.StatusBadRequest, errors.New("plain"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Nil(t, response.Details)
	})
}

func TestSendLedgerError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid amount", newError(ReasonInvalidAmount, "amount must be positive"), http.StatusBadRequest},
		{"not found", newError(ReasonAccountNotFound, "missing"), http.StatusNotFound},
		{"already activated", newError(ReasonAlreadyActivated, "taken"), http.StatusConflict},
		{"frozen", newError(ReasonAccountFrozen, "frozen"), http.StatusUnprocessableEntity},
		{"ownership", newError(ReasonOwnershipMismatch, "not yours"), http.StatusForbidden},
		{"transient", newError(ReasonTransient, "busy"), http.StatusServiceUnavailable},
		{"replay mismatch", newError(ReasonReplayMismatch, "drift"), http.StatusInternalServerError},
		{"foreign error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SendLedgerError(w, tc.err)
			assert.Equal(t, tc.status, w.Code)
		})
	}

	t.Run("insufficient balance carries balances", func(t *testing.T) {
		account := &models.Account{ID: "wallet_u1", Balance: 10, BonusBalance: 5, Status: models.AccountStatusActive}
		w := httptest.NewRecorder()
		SendLedgerError(w, newError(ReasonInsufficientBalance, "cannot cover").withAccount(account))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "insufficient_balance", response.Reason)
		require.NotNil(t, response.Balance)
		assert.Equal(t, int64(10), *response.Balance)
		assert.Equal(t, int64(5), *response.BonusBalance)
		assert.Equal(t, models.AccountStatusActive, response.Status)
	})

	t.Run("transient sets retry after", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendLedgerError(w, newError(ReasonTransient, "busy"))
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
	})
}

func TestLedgerError_IsMatchesReason(t *testing.T) {
	err := newError(ReasonInsufficientBalance, "account a cannot cover 10")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.NotErrorIs(t, err, ErrAccountFrozen)
	assert.Equal(t, KindPreconditionFailed, err.Kind)

	wrapped := newError(ReasonTransient, "busy").wrap(errors.New("conflict"))
	assert.True(t, wrapped.Retryable())
	assert.Contains(t, wrapped.Error(), "conflict")
}
