package handlers

import (
	"time"

	mW "github.com/eventpass/cashless/internal/middleware"
	"github.com/go-chi/chi/v5"
)

type RouteOptions struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// MountAPI registers the authenticated ledger API on r
func MountAPI(r chi.Router, ledger *LedgerHandler, qr *QRHandler, opts RouteOptions) {
	r.Group(func(r chi.Router) {
		r.Use(mW.AuthMiddleware)
		r.Use(mW.RateLimit(opts.RateLimitRequests, opts.RateLimitWindow))

		r.Post("/auth/logout", mW.Logout)

		// Owners
		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleUser))

			r.Post("/wristbands/activate", ledger.ActivateWristband)
			r.Get("/accounts", ledger.ListAccounts)
			r.Get("/wallet", ledger.GetWallet)
			r.Get("/accounts/{accountId}/qr", qr.GenerateQR)
			r.Post("/accounts/{accountId}/transfer", ledger.Transfer)
			r.Post("/accounts/{accountId}/freeze", ledger.Freeze)
			r.Post("/accounts/{accountId}/unfreeze", ledger.Unfreeze)
		})

		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleUser, mW.RoleService))

			r.Get("/accounts/{accountId}", ledger.GetAccount)
			r.Get("/accounts/{accountId}/entries", ledger.ListEntries)
		})

		// Terminals
		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleVendor, mW.RoleService))

			r.Post("/accounts/{accountId}/debit", ledger.Debit)
			r.Post("/qr/resolve", qr.ResolveQR)
		})

		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleOrganizer, mW.RoleService))

			r.Post("/inventory/{serial}/block", ledger.BlockSerial)
			r.Get("/reports/{scope}/{scopeId}/daily", ledger.DailyReport)
		})

		// Internal services
		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleService))

			r.Post("/accounts/{accountId}/credit", ledger.Credit)
			r.Post("/accounts/{accountId}/reconcile", ledger.Reconcile)
			r.Post("/refunds", ledger.Refund)
		})
	})
}
