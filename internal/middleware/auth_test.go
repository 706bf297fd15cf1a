package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func setupAuth(t *testing.T) redismock.ClientMock {
	t.Helper()
	viper.Set("jwt.secret_key", testSecret)
	viper.Set("jwt.expiry_hours", 24)
	client, mock := redismock.NewClientMock()
	InitAuthMiddleware(client)
	t.Cleanup(func() { InitAuthMiddleware(nil) })
	return mock
}

func callerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(caller.ID + "/" + string(caller.Role)))
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		mock := setupAuth(t)
		token := signToken(t, jwt.MapClaims{"sub": "u1", "role": "user", "exp": time.Now().Add(time.Hour).Unix()})
		mock.ExpectExists("blacklist:" + token).SetVal(0)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		AuthMiddleware(callerEcho()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1/user", rec.Body.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("revoked token", func(t *testing.T) {
		mock := setupAuth(t)
		token := signToken(t, jwt.MapClaims{"sub": "u1", "role": "user"})
		mock.ExpectExists("blacklist:" + token).SetVal(1)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		AuthMiddleware(callerEcho()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("redis down does not lock callers out", func(t *testing.T) {
		mock := setupAuth(t)
		token := signToken(t, jwt.MapClaims{"sub": "v1", "role": "vendor"})
		mock.ExpectExists("blacklist:" + token).SetErr(errors.New("connection refused"))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		AuthMiddleware(callerEcho()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejections", func(t *testing.T) {
		setupAuth(t)
		InitAuthMiddleware(nil)

		wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "role": "user"}).SignedString([]byte("other"))
		require.NoError(t, err)

		cases := map[string]string{
			"missing header": "",
			"not bearer":     "Basic abc",
			"wrong key":      "Bearer " + wrongKey,
			"expired":        "Bearer " + signToken(t, jwt.MapClaims{"sub": "u1", "role": "user", "exp": time.Now().Add(-time.Minute).Unix()}),
			"no subject":     "Bearer " + signToken(t, jwt.MapClaims{"role": "user"}),
			"unknown role":   "Bearer " + signToken(t, jwt.MapClaims{"sub": "u1", "role": "admin"}),
		}
		for name, header := range cases {
			t.Run(name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				if header != "" {
					req.Header.Set("Authorization", header)
				}
				rec := httptest.NewRecorder()
				AuthMiddleware(callerEcho()).ServeHTTP(rec, req)
				assert.Equal(t, http.StatusUnauthorized, rec.Code)
			})
		}
	})
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleVendor, RoleService)(callerEcho())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(WithCaller(req.Context(), &Caller{ID: "v1", Role: RoleVendor})))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(WithCaller(req.Context(), &Caller{ID: "u1", Role: RoleUser})))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "permission_denied")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	mock := setupAuth(t)
	handler := RateLimit(2, time.Minute)(callerEcho())
	ctx := WithCaller(httptest.NewRequest(http.MethodGet, "/", nil).Context(), &Caller{ID: "v1", Role: RoleVendor})

	mock.ExpectIncr("ratelimit:v1").SetVal(1)
	mock.ExpectExpire("ratelimit:v1", time.Minute).SetVal(true)
	mock.ExpectIncr("ratelimit:v1").SetVal(2)
	mock.ExpectIncr("ratelimit:v1").SetVal(3)

	codes := []int{}
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.NoError(t, mock.ExpectationsWereMet())

	InitAuthMiddleware(nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogout(t *testing.T) {
	mock := setupAuth(t)
	caller := &Caller{ID: "u1", Role: RoleUser, Token: "tok"}
	mock.ExpectSet("blacklist:tok", "1", 24*time.Hour).SetVal("OK")

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	Logout(rec, req.WithContext(WithCaller(req.Context(), caller)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Logout successful")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}
