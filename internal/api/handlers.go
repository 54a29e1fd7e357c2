/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's account-facing
 * endpoints. Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP response.
 * They act as the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/dropstrike/ledger-service/internal/app"
	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/dropstrike/ledger-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// requireAccountID pulls the authenticated account id out of the context,
// writing a 500 when the auth middleware did not run.
func (h *LedgerHandlers) requireAccountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get account ID from context")
		return uuid.Nil, false
	}
	return accountID, true
}

// GetMyAccountHandler returns the authenticated player's balance summary.
func (h *LedgerHandlers) GetMyAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}

	summary, err := h.service.GetAccountSummary(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_account msg=\"account lookup failed\" account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load account")
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// GetMyLedgerHandler returns a page of the player's ledger history.
// Query params: kind, source, from, to (RFC 3339), limit, offset.
func (h *LedgerHandlers) GetMyLedgerHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}

	filter := domain.LedgerEntryFilter{
		Kind:   r.URL.Query().Get("kind"),
		Source: r.URL.Query().Get("source"),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}
	if from, ok := queryTime(r, "from"); ok {
		filter.From = &from
	}
	if to, ok := queryTime(r, "to"); ok {
		filter.To = &to
	}

	entries, err := h.service.ListLedgerHistory(r.Context(), accountID, filter)
	if err != nil {
		if errors.Is(err, app.ErrUnknownEntryKind) || errors.Is(err, app.ErrUnknownEntrySource) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=get_ledger msg=\"ledger query failed\" account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load ledger history")
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// GetMyLedgerSummaryHandler returns the player's net coin movement over an
// optional window. Query params: from, to (RFC 3339).
func (h *LedgerHandlers) GetMyLedgerSummaryHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}

	var fromPtr, toPtr *time.Time
	if from, ok := queryTime(r, "from"); ok {
		fromPtr = &from
	}
	if to, ok := queryTime(r, "to"); ok {
		toPtr = &to
	}

	sum, err := h.service.SumLedgerWindow(r.Context(), accountID, fromPtr, toPtr)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_ledger_summary msg=\"ledger sum failed\" account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load ledger summary")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":   accountID,
		"from":         fromPtr,
		"to":           toPtr,
		"net_movement": sum,
	})
}

// UpdatePayoutEmailHandler stores the player's payout destination address.
func (h *LedgerHandlers) UpdatePayoutEmailHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}

	var req struct {
		PayoutEmail string `json:"payout_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.UpdatePayoutEmail(r.Context(), accountID, req.PayoutEmail); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidPayoutEmail):
			h.writeError(w, http.StatusBadRequest, "Payout email address is invalid")
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Account not found")
		default:
			log.Printf("level=error component=api endpoint=update_payout_email msg=\"update failed\" account_id=%s err=%v", accountID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to update payout email")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// GetLeaderboardHandler returns the coin leaderboard for a timeframe.
// Query params: limit, country (ISO 3166-1 alpha-2).
func (h *LedgerHandlers) GetLeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	timeframe := chi.URLParam(r, "timeframe")
	if timeframe == "all" {
		timeframe = app.TimeframeAllTime
	}

	entries, err := h.service.GetLeaderboard(r.Context(), timeframe, queryInt(r, "limit", 0), r.URL.Query().Get("country"))
	if err != nil {
		if errors.Is(err, app.ErrInvalidTimeframe) {
			h.writeError(w, http.StatusBadRequest, "Unknown timeframe; use all, daily, weekly, or monthly")
			return
		}
		log.Printf("level=error component=api endpoint=leaderboard msg=\"leaderboard query failed\" timeframe=%s err=%v", timeframe, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load leaderboard")
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"timeframe": timeframe,
		"entries":   entries,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func queryTime(r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, false
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return value, true
}
