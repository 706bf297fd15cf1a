package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eventpass/cashless/internal/audit"
	"github.com/eventpass/cashless/internal/config"
	"github.com/eventpass/cashless/internal/models"
	"github.com/eventpass/cashless/internal/services"
	"github.com/eventpass/cashless/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret"

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	t      *testing.T
	router chi.Router
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	viper.Set("jwt.secret_key", testSecret)

	st := store.NewMemoryStore()
	st.AddInventory("WB-000001", "WB-000002", "WB-000003")

	cfg := config.DefaultLedgerConfig()
	cfg.RetryBaseDelay = 100 * time.Microsecond
	ledger := services.NewLedgerService(st, cfg,
		services.WithAuditLogger(audit.NewAuditLoggerTo(log.New(io.Discard, "", 0))))

	r := chi.NewRouter()
	MountAPI(r, NewLedgerHandler(ledger), NewQRHandler(services.NewQRService(ledger, nil)), RouteOptions{})
	return &testAPI{t: t, router: r}
}

func (a *testAPI) do(method, path, sub, role, body string, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if sub != "" {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  sub,
			"role": role,
			"exp":  time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(testSecret))
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	require.True(t, resp.Success)
	var out T
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) services.ErrorResponse {
	t.Helper()
	var resp services.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func (a *testAPI) activate(owner, serial string) *models.Account {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/wristbands/activate", owner, "user", `{"serialNumber":"`+serial+`"}`)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[models.Result](a.t, rec).Account
}

func TestActivateWristband(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/wristbands/activate", "u1", "user",
		`{"serialNumber":"WB-000001","displayName":"Main band"}`, "Idempotency-Key", "act-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeData[models.Result](t, rec)
	assert.Equal(t, int64(500), result.Account.Balance)
	assert.Equal(t, "u1", result.Account.OwnerID)

	rec = api.do(http.MethodPost, "/wristbands/activate", "u1", "user",
		`{"serialNumber":"WB-000001","displayName":"Main band"}`, "Idempotency-Key", "act-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeData[models.Result](t, rec).Replayed)

	rec = api.do(http.MethodPost, "/wristbands/activate", "u2", "user", `{"serialNumber":"WB-000001"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_activated", decodeError(t, rec).Reason)
}

func TestRequestDecoding(t *testing.T) {
	api := newTestAPI(t)

	cases := map[string]string{
		"unknown field":    `{"serialNumber":"WB-000001","pin":"1234"}`,
		"two objects":      `{"serialNumber":"WB-000001"}{"serialNumber":"WB-000002"}`,
		"not json":         `serial=WB-000001`,
		"invalid serial":   `{"serialNumber":"WB 0001"}`,
		"missing required": `{}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := api.do(http.MethodPost, "/wristbands/activate", "u1", "user", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := api.do(http.MethodPost, "/wristbands/activate", "u1", "user", `{"serialNumber":"WB 0001"}`)
	assert.Contains(t, decodeError(t, rec).Details, "SerialNumber")
}

func TestAuthorization(t *testing.T) {
	api := newTestAPI(t)
	band := api.activate("u1", "WB-000001")

	rec := api.do(http.MethodGet, "/accounts", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodGet, "/accounts/"+band.ID, "u2", "user", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodGet, "/accounts/"+band.ID, "ledger-admin", "service", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/accounts/ghost", "u1", "user", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodPost, "/accounts/"+band.ID+"/debit", "u1", "user", `{"amount":10}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, "/accounts/"+band.ID+"/credit", "v1", "vendor", `{"amount":10}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDebit(t *testing.T) {
	api := newTestAPI(t)
	band := api.activate("u1", "WB-000001")

	rec := api.do(http.MethodPost, "/accounts/"+band.ID+"/debit", "v1", "vendor", `{"amount":120,"eventId":"fest"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeData[models.Result](t, rec)
	assert.Equal(t, int64(380), result.Account.Balance)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "v1", result.Entries[0].VendorID)

	rec = api.do(http.MethodPost, "/accounts/"+band.ID+"/debit", "v1", "vendor", `{"amount":10,"vendorId":"v2"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, "/accounts/"+band.ID+"/debit", "v1", "vendor", `{"amount":1000}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "insufficient_balance", body.Reason)
	require.NotNil(t, body.Balance)
	assert.Equal(t, int64(380), *body.Balance)

	rec = api.do(http.MethodGet, "/reports/vendor/v1/daily", "org-1", "organizer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	aggregates := decodeData[[]models.DailyAggregate](t, rec)
	require.Len(t, aggregates, 1)
	assert.Equal(t, int64(120), aggregates[0].TotalAmount)
}

func TestIdempotencyKeysArePerCaller(t *testing.T) {
	api := newTestAPI(t)
	first := api.activate("u1", "WB-000001")
	second := api.activate("u2", "WB-000002")

	rec := api.do(http.MethodPost, "/accounts/"+first.ID+"/debit", "v1", "vendor", `{"amount":100}`, "Idempotency-Key", "1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeData[models.Result](t, rec).Replayed)

	rec = api.do(http.MethodPost, "/accounts/"+second.ID+"/debit", "v2", "vendor", `{"amount":100}`, "Idempotency-Key", "1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeData[models.Result](t, rec)
	assert.False(t, result.Replayed)
	assert.Equal(t, second.ID, result.Account.ID)
	assert.Equal(t, int64(400), result.Account.Balance)

	rec = api.do(http.MethodPost, "/accounts/"+first.ID+"/debit", "v1", "vendor", `{"amount":100}`, "Idempotency-Key", "1")
	require.Equal(t, http.StatusOK, rec.Code)
	replay := decodeData[models.Result](t, rec)
	assert.True(t, replay.Replayed)
	assert.Equal(t, int64(400), replay.Account.Balance)

	rec = api.do(http.MethodPost, "/accounts/"+second.ID+"/debit", "v1", "vendor", `{"amount":100}`, "Idempotency-Key", "1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransferAndWallet(t *testing.T) {
	api := newTestAPI(t)
	band := api.activate("u1", "WB-000001")

	rec := api.do(http.MethodPost, "/accounts/"+band.ID+"/transfer", "u1", "user",
		`{"destination":{"kind":"wallet"},"amount":200}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeData[models.Result](t, rec)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, int64(300), result.Account.Balance)

	rec = api.do(http.MethodGet, "/wallet", "u1", "user", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(200), decodeData[models.Account](t, rec).Balance)

	rec = api.do(http.MethodGet, "/accounts", "u1", "user", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]models.Account](t, rec), 2)

	rec = api.do(http.MethodPost, "/accounts/"+band.ID+"/transfer", "u1", "user",
		`{"destination":{"kind":"wristband"},"amount":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFreezeBlocksPayments(t *testing.T) {
	api := newTestAPI(t)
	band := api.activate("u1", "WB-000001")

	rec := api.do(http.MethodPost, "/accounts/"+band.ID+"/freeze", "u1", "user", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/accounts/"+band.ID+"/debit", "v1", "vendor", `{"amount":10}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "account_frozen", body.Reason)
	assert.Equal(t, models.AccountStatusFrozen, body.Status)

	rec = api.do(http.MethodGet, "/accounts/"+band.ID+"/entries?limit=10", "u1", "user", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]models.LedgerEntry](t, rec), 1)

	rec = api.do(http.MethodPost, "/accounts/"+band.ID+"/unfreeze", "u2", "user", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServiceOperations(t *testing.T) {
	api := newTestAPI(t)
	band := api.activate("u1", "WB-000001")

	rec := api.do(http.MethodPost, "/accounts/"+band.ID+"/credit", "psp", "service", `{"amount":250,"counterpartyRef":"psp-77"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(750), decodeData[models.Result](t, rec).Account.Balance)

	rec = api.do(http.MethodPost, "/accounts/"+band.ID+"/credit", "psp", "service", `{"amount":250,"source":"gift"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/refunds", "orders", "service", `{"orderRef":"o-1","accountId":"`+band.ID+`","amount":50}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(800), decodeData[models.Result](t, rec).Account.Balance)

	rec = api.do(http.MethodPost, "/accounts/"+band.ID+"/reconcile", "ops", "service", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeData[models.ReconcileReport](t, rec)
	assert.True(t, report.Consistent)
	assert.Equal(t, 3, report.EntryCount)

	rec = api.do(http.MethodPost, "/inventory/WB-000001/block", "org-1", "organizer", `{"reason":"stolen"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.InventoryStatusBlocked, decodeData[models.Result](t, rec).Inventory.Status)
}

func TestQRWithoutRedis(t *testing.T) {
	api := newTestAPI(t)
	band := api.activate("u1", "WB-000001")

	rec := api.do(http.MethodGet, "/accounts/"+band.ID+"/qr", "u1", "user", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
