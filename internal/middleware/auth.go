package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eventpass/cashless/internal/services"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

// Role is the kind of caller a bearer token was issued to
type Role string

const (
	RoleUser      Role = "user"
	RoleVendor    Role = "vendor"
	RoleOrganizer Role = "organizer"
	RoleService   Role = "service"
)

func (r Role) valid() bool {
	switch r {
	case RoleUser, RoleVendor, RoleOrganizer, RoleService:
		return true
	}
	return false
}

// Caller is the authenticated identity of a request
type Caller struct {
	ID        string
	Role      Role
	Token     string
	ExpiresAt time.Time
}

type callerKey struct{}

// WithCaller returns ctx carrying the caller
func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller set by AuthMiddleware
func CallerFromContext(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(*Caller)
	return caller, ok && caller != nil
}

var redisClient *redis.Client

// InitAuthMiddleware wires the Redis client used for token revocation and
// rate limiting. A nil client disables both.
func InitAuthMiddleware(client *redis.Client) {
	redisClient = client
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
			return
		}

		caller, err := validateToken(token)
		if err != nil {
			log.Printf("[AUTH] Rejected token from %s: %v", r.RemoteAddr, err)
			services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
			return
		}

		if redisClient != nil {
			revoked, err := redisClient.Exists(r.Context(), blacklistKey(token)).Result()
			if err != nil {
				log.Printf("[AUTH] Revocation check failed, continuing without Redis: %v", err)
			} else if revoked > 0 {
				services.SendErrorResponse(w, "Token has been revoked", http.StatusUnauthorized, nil)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// RequireRole rejects callers whose role is not in roles
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
				return
			}
			for _, role := range roles {
				if caller.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			services.SendLedgerError(w, services.PermissionDenied("role %s may not call this endpoint", caller.Role))
		})
	}
}

// RateLimit allows each caller at most limit requests per window, counted in
// Redis. Without Redis every request is let through.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok || redisClient == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := rateLimitKey(caller.ID)
			count, err := redisClient.Incr(r.Context(), key).Result()
			if err != nil {
				log.Printf("[AUTH] Rate limit check failed, continuing without Redis: %v", err)
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				if err := redisClient.Expire(r.Context(), key, window).Err(); err != nil {
					log.Printf("[AUTH] Failed to set rate limit window for %s: %v", caller.ID, err)
				}
			}
			if count > int64(limit) {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				services.SendErrorResponse(w, "Too many requests", http.StatusTooManyRequests, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets response headers common to every API response
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// Logout handles token revocation
// @Summary Logout
// @Description Revoke the bearer token until it expires
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func Logout(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if ok && redisClient != nil {
		expiry := time.Until(caller.ExpiresAt)
		if caller.ExpiresAt.IsZero() || expiry <= 0 {
			expiry = time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
		}
		if err := redisClient.Set(r.Context(), blacklistKey(caller.Token), "1", expiry).Err(); err != nil {
			log.Printf("[AUTH] Failed to blacklist token: %v", err)
			services.SendErrorResponse(w, "Logout failed, try again", http.StatusServiceUnavailable, nil)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func validateToken(tokenString string) (*Caller, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(viper.GetString("jwt.secret_key")), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, errors.New("token has no subject")
	}
	role, _ := claims["role"].(string)
	if !Role(role).valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	caller := &Caller{ID: subject, Role: Role(role), Token: tokenString}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		caller.ExpiresAt = exp.Time
	}
	return caller, nil
}

func blacklistKey(token string) string {
	return fmt.Sprintf("blacklist:%s", token)
}

func rateLimitKey(callerID string) string {
	return fmt.Sprintf("ratelimit:%s", callerID)
}
