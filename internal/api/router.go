/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser-based admin tooling.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// LedgerRoutes creates and returns the router for the ledger service.
func LedgerRoutes(h *LedgerHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public catalog of active ad placements; the game client fetches this
	// before a player signs in.
	r.Get("/ads/rewards", h.ListAdRewardsHandler)
	r.Get("/ads/rewards/{adType}", h.ListAdRewardsHandler)

	// Group routes that require player authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Get("/accounts/me", h.GetMyAccountHandler)
		r.Get("/accounts/me/ledger", h.GetMyLedgerHandler)
		r.Get("/accounts/me/ledger/summary", h.GetMyLedgerSummaryHandler)
		r.Put("/accounts/me/payout-email", h.UpdatePayoutEmailHandler)

		r.Post("/payouts", h.RequestPayoutHandler)
		r.Get("/payouts", h.ListPayoutsHandler)
		r.Get("/payouts/active", h.GetActivePayoutHandler)
		r.Get("/payouts/config/info", h.GetPayoutConfigHandler)
		r.Get("/payouts/{id}", h.GetPayoutHandler)
		r.Post("/payouts/{id}/cancel", h.CancelPayoutHandler)

		r.Get("/ads/{adUnitId}/eligibility", h.GetAdEligibilityHandler)
		r.Post("/ads/{adUnitId}/watch", h.WatchAdHandler)

		r.Post("/game/sessions", h.StartGameSessionHandler)
		r.Post("/game/sessions/{id}/complete", h.CompleteGameSessionHandler)

		r.Get("/leaderboard/{timeframe}", h.GetLeaderboardHandler)
	})

	// Admin routes additionally require the admin role claim.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))
		r.Use(RequireAdmin)

		r.Get("/admin/dashboard", h.AdminDashboardHandler)
		r.Get("/admin/analytics", h.AdminAnalyticsHandler)

		r.Get("/admin/payouts", h.AdminListPayoutsHandler)
		r.Post("/admin/payouts/{id}/process", h.AdminProcessPayoutHandler)
		r.Post("/admin/payouts/{id}/reject", h.AdminRejectPayoutHandler)

		r.Get("/admin/ads", h.AdminListAdConfigsHandler)
		r.Post("/admin/ads", h.AdminCreateAdConfigHandler)
		r.Put("/admin/ads/{adUnitId}", h.AdminUpdateAdConfigHandler)

		r.Post("/admin/accounts/{id}/credit", h.AdminCreditAccountHandler)
		r.Post("/admin/accounts/{id}/debit", h.AdminDebitAccountHandler)
		r.Post("/admin/accounts/{id}/adjust", h.AdminAdjustBalanceHandler)
		r.Post("/admin/accounts/{id}/reconcile", h.AdminReconcileAccountHandler)
		r.Post("/admin/accounts/{id}/unfreeze", h.AdminUnfreezeAccountHandler)
	})

	return r
}
