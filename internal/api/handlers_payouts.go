/**
 * @description
 * HTTP handlers for the player-facing payout endpoints: requesting a cash-out,
 * listing history, inspecting a single payout, cancelling a pending one, and
 * reading the conversion/fee configuration.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/dropstrike/ledger-service/internal/app"
	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/dropstrike/ledger-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RequestPayoutHandler handles a player requesting a payout.
func (h *LedgerHandlers) RequestPayoutHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}

	var payload domain.PayoutRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payout, err := h.service.RequestPayout(r.Context(), accountID, payload)
	if err != nil {
		var balanceErr *app.InsufficientBalanceError
		switch {
		case errors.Is(err, app.ErrAmountOutOfRange):
			policy := h.service.PayoutPolicy()
			h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":            "Payout amount is outside the allowed bounds",
				"min_payout_cents": policy.MinPayoutCents,
				"max_payout_cents": policy.MaxPayoutCents,
			})
		case errors.Is(err, app.ErrAmountTooSmall):
			h.writeError(w, http.StatusBadRequest, "Payout amount does not cover the fees")
		case errors.Is(err, app.ErrInvalidPayoutEmail):
			h.writeError(w, http.StatusBadRequest, "A valid payout email is required")
		case errors.As(err, &balanceErr):
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":          "Insufficient coin balance",
				"required_coins": balanceErr.RequiredCoins,
				"current_coins":  balanceErr.CurrentCoins,
				"shortfall":      balanceErr.Shortfall(),
			})
		case errors.Is(err, store.ErrInsufficientBalance):
			h.writeError(w, http.StatusUnprocessableEntity, "Insufficient coin balance")
		case errors.Is(err, store.ErrPayoutConflict):
			h.writeError(w, http.StatusConflict, "An active payout already exists for this account")
		case errors.Is(err, store.ErrAccountFrozen):
			h.writeError(w, http.StatusLocked, "Account is frozen pending review")
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Account not found")
		default:
			log.Printf("level=error component=api endpoint=request_payout msg=\"payout request failed\" account_id=%s err=%v", accountID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to create payout request")
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, payout)
}

// ListPayoutsHandler returns the player's payout history.
// Query params: status, limit, offset.
func (h *LedgerHandlers) ListPayoutsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}

	opts := domain.PayoutListOptions{
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}
	payouts, err := h.service.ListPayouts(r.Context(), accountID, opts)
	if err != nil {
		if errors.Is(err, app.ErrInvalidPayoutStatus) {
			h.writeError(w, http.StatusBadRequest, "Unknown payout status filter")
			return
		}
		log.Printf("level=error component=api endpoint=list_payouts msg=\"payout list failed\" account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load payouts")
		return
	}
	if payouts == nil {
		payouts = []domain.Payout{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"payouts": payouts})
}

// GetActivePayoutHandler returns the player's in-flight payout, if any. The
// client uses this to decide whether to offer the cash-out button.
func (h *LedgerHandlers) GetActivePayoutHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}

	payout, err := h.service.GetActivePayout(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrPayoutNotFound) {
			h.writeError(w, http.StatusNotFound, "No active payout")
			return
		}
		log.Printf("level=error component=api endpoint=get_active_payout msg=\"active payout lookup failed\" account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load payout")
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

// GetPayoutHandler returns one of the player's payouts.
func (h *LedgerHandlers) GetPayoutHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}
	payoutID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	payout, err := h.service.GetPayoutForAccount(r.Context(), accountID, payoutID)
	if err != nil {
		if errors.Is(err, store.ErrPayoutNotFound) {
			h.writeError(w, http.StatusNotFound, "Payout not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_payout msg=\"payout lookup failed\" payout_id=%s err=%v", payoutID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load payout")
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

// CancelPayoutHandler withdraws a payout that is still pending. The coins come
// back in the same operation.
func (h *LedgerHandlers) CancelPayoutHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}
	payoutID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	payout, err := h.service.CancelPayout(r.Context(), accountID, payoutID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPayoutNotFound):
			h.writeError(w, http.StatusNotFound, "Payout not found")
		case errors.Is(err, store.ErrInvalidPayoutState):
			h.writeError(w, http.StatusConflict, "Payout can no longer be cancelled")
		default:
			log.Printf("level=error component=api endpoint=cancel_payout msg=\"payout cancel failed\" payout_id=%s err=%v", payoutID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to cancel payout")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

// GetPayoutConfigHandler exposes the conversion rate, fee schedule, and bounds
// so the client can show the conversion math before a request is made.
func (h *LedgerHandlers) GetPayoutConfigHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.PayoutPolicy())
}
