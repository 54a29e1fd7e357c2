/**
 * @description
 * HTTP handlers for the admin surface: the dashboard, coin analytics, payout
 * queue operations, ad placement management, and account-level corrections
 * (manual credits/debits, the absolute balance override, reconciliation, and
 * unfreezing).
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

// AdminDashboardHandler returns the headline numbers for the admin dashboard.
func (h *LedgerHandlers) AdminDashboardHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetDashboardStats(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=admin_dashboard msg=\"dashboard query failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load dashboard")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// AdminAnalyticsHandler returns one analytics series selected by the `metric`
// query param: sources, timeline, or countries. `days` bounds the trailing
// window and `bucket` (day|week|month) shapes the timeline series.
func (h *LedgerHandlers) AdminAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	days := queryInt(r, "days", 30)

	var (
		data interface{}
		err  error
	)
	switch metric {
	case "sources", "":
		data, err = h.service.GetSourceBreakdown(r.Context(), days)
	case "timeline":
		bucket := r.URL.Query().Get("bucket")
		if bucket == "" {
			bucket = "day"
		}
		data, err = h.service.GetCoinsOverTime(r.Context(), bucket, days)
	case "countries":
		data, err = h.service.GetCountryBreakdown(r.Context(), days)
	default:
		h.writeError(w, http.StatusBadRequest, "Unknown metric; use sources, timeline, or countries")
		return
	}
	if err != nil {
		if errors.Is(err, app.ErrInvalidTimeframe) {
			h.writeError(w, http.StatusBadRequest, "Unknown bucket; use day, week, or month")
			return
		}
		log.Printf("level=error component=api endpoint=admin_analytics msg=\"analytics query failed\" metric=%s err=%v", metric, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load analytics")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"metric": metric, "days": days, "data": data})
}

// AdminListPayoutsHandler returns the payout queue for a status (default pending).
func (h *LedgerHandlers) AdminListPayoutsHandler(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = domain.PayoutStatusPending
	}

	payouts, err := h.service.ListPayoutsByStatus(r.Context(), status, queryInt(r, "limit", 0))
	if err != nil {
		if errors.Is(err, app.ErrInvalidPayoutStatus) {
			h.writeError(w, http.StatusBadRequest, "Unknown payout status")
			return
		}
		log.Printf("level=error component=api endpoint=admin_list_payouts msg=\"payout queue query failed\" status=%s err=%v", status, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load payout queue")
		return
	}
	if payouts == nil {
		payouts = []domain.Payout{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": status, "payouts": payouts})
}

// AdminProcessPayoutHandler submits a pending payout to the gateway.
func (h *LedgerHandlers) AdminProcessPayoutHandler(w http.ResponseWriter, r *http.Request) {
	payoutID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	payout, err := h.service.ProcessPayout(r.Context(), payoutID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPayoutNotFound):
			h.writeError(w, http.StatusNotFound, "Payout not found")
		case errors.Is(err, store.ErrInvalidPayoutState):
			h.writeError(w, http.StatusConflict, "Payout is not in a processable state")
		case errors.Is(err, app.ErrGatewayUnavailable):
			h.writeError(w, http.StatusBadGateway, "Payout gateway did not give a definitive answer; payout left processing")
		default:
			log.Printf("level=error component=api endpoint=admin_process_payout msg=\"payout processing failed\" payout_id=%s err=%v", payoutID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to process payout")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

// AdminRejectPayoutHandler declines a payout and refunds its coins.
func (h *LedgerHandlers) AdminRejectPayoutHandler(w http.ResponseWriter, r *http.Request) {
	payoutID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	var payload domain.RejectPayoutPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payout, err := h.service.RejectPayout(r.Context(), payoutID, payload)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrReasonRequired):
			h.writeError(w, http.StatusBadRequest, "A rejection reason is required")
		case errors.Is(err, store.ErrPayoutNotFound):
			h.writeError(w, http.StatusNotFound, "Payout not found")
		case errors.Is(err, store.ErrInvalidPayoutState):
			h.writeError(w, http.StatusConflict, "Payout can no longer be rejected")
		default:
			log.Printf("level=error component=api endpoint=admin_reject_payout msg=\"payout reject failed\" payout_id=%s err=%v", payoutID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to reject payout")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, payout)
}

// AdminListAdConfigsHandler returns every ad placement, active or not.
func (h *LedgerHandlers) AdminListAdConfigsHandler(w http.ResponseWriter, r *http.Request) {
	configs, err := h.service.ListAdRewardConfigs(r.Context(), r.URL.Query().Get("ad_type"), false)
	if err != nil {
		if errors.Is(err, app.ErrInvalidAdType) {
			h.writeError(w, http.StatusBadRequest, "Unknown ad type")
			return
		}
		log.Printf("level=error component=api endpoint=admin_list_ads msg=\"config list failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load ad configs")
		return
	}
	if configs == nil {
		configs = []domain.AdRewardConfig{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"configs": configs})
}

// AdminCreateAdConfigHandler registers a new ad placement.
func (h *LedgerHandlers) AdminCreateAdConfigHandler(w http.ResponseWriter, r *http.Request) {
	var payload domain.UpsertAdRewardConfigPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg, err := h.service.CreateAdRewardConfig(r.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAdConfig), errors.Is(err, app.ErrInvalidAdType):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrAdUnitExists):
			h.writeError(w, http.StatusConflict, "An ad unit with this ID already exists")
		default:
			log.Printf("level=error component=api endpoint=admin_create_ad msg=\"config create failed\" err=%v", err)
			h.writeError(w, http.StatusInternalServerError, "Unable to create ad config")
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, cfg)
}

// AdminUpdateAdConfigHandler updates an existing ad placement's policy fields.
func (h *LedgerHandlers) AdminUpdateAdConfigHandler(w http.ResponseWriter, r *http.Request) {
	adUnitID := chi.URLParam(r, "adUnitId")

	var payload domain.UpsertAdRewardConfigPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	payload.AdUnitID = adUnitID

	cfg, err := h.service.UpdateAdRewardConfig(r.Context(), adUnitID, payload)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAdConfig), errors.Is(err, app.ErrInvalidAdType):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrAdUnitNotFound):
			h.writeError(w, http.StatusNotFound, "Ad unit not found")
		default:
			log.Printf("level=error component=api endpoint=admin_update_ad msg=\"config update failed\" ad_unit_id=%s err=%v", adUnitID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to update ad config")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

type manualEntryRequest struct {
	Amount      int64  `json:"amount"`
	Kind        string `json:"kind"`
	Source      string `json:"source"`
	Description string `json:"description"`
}

// AdminCreditAccountHandler writes a manual credit to an account's ledger.
func (h *LedgerHandlers) AdminCreditAccountHandler(w http.ResponseWriter, r *http.Request) {
	h.adminManualEntry(w, r, true)
}

// AdminDebitAccountHandler writes a manual debit to an account's ledger.
func (h *LedgerHandlers) AdminDebitAccountHandler(w http.ResponseWriter, r *http.Request) {
	h.adminManualEntry(w, r, false)
}

func (h *LedgerHandlers) adminManualEntry(w http.ResponseWriter, r *http.Request, credit bool) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	var req manualEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var mutation *store.BalanceMutation
	if credit {
		mutation, err = h.service.CreditAccount(r.Context(), accountID, req.Amount, req.Kind, req.Source, req.Description)
	} else {
		mutation, err = h.service.DebitAccount(r.Context(), accountID, req.Amount, req.Kind, req.Source, req.Description)
	}
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAmount),
			errors.Is(err, app.ErrUnknownEntryKind),
			errors.Is(err, app.ErrUnknownEntrySource):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Account not found")
		case errors.Is(err, store.ErrAccountFrozen):
			h.writeError(w, http.StatusLocked, "Account is frozen pending review")
		case errors.Is(err, store.ErrInsufficientBalance):
			h.writeError(w, http.StatusUnprocessableEntity, "Insufficient coin balance")
		default:
			log.Printf("level=error component=api endpoint=admin_manual_entry msg=\"manual entry failed\" account_id=%s err=%v", accountID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to write ledger entry")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entry_id":    mutation.EntryID,
		"amount":      mutation.Amount,
		"new_balance": mutation.NewBalance,
	})
}

// AdminAdjustBalanceHandler moves an account to an absolute target balance via
// one compensating admin_adjustment entry. Used to repair reconciliation
// mismatches.
func (h *LedgerHandlers) AdminAdjustBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	var payload domain.AdjustBalancePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	mutation, err := h.service.AdjustBalance(r.Context(), accountID, payload)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrNegativeTarget):
			h.writeError(w, http.StatusBadRequest, "Target balance must not be negative")
		case errors.Is(err, app.ErrReasonRequired):
			h.writeError(w, http.StatusBadRequest, "An adjustment reason is required")
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Account not found")
		default:
			log.Printf("level=error component=api endpoint=admin_adjust msg=\"balance adjust failed\" account_id=%s err=%v", accountID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to adjust balance")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entry_id":    mutation.EntryID,
		"amount":      mutation.Amount,
		"new_balance": mutation.NewBalance,
	})
}

// AdminReconcileAccountHandler verifies one account's stored balance against
// its ledger entry sum, freezing the account on a mismatch.
func (h *LedgerHandlers) AdminReconcileAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	report, err := h.service.ReconcileAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=admin_reconcile msg=\"reconcile failed\" account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to reconcile account")
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// AdminUnfreezeAccountHandler clears the frozen flag once the ledger is
// consistent again. Fails if the mismatch is still present.
func (h *LedgerHandlers) AdminUnfreezeAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	if err := h.service.UnfreezeAccount(r.Context(), accountID); err != nil {
		switch {
		case errors.Is(err, app.ErrLedgerMismatch):
			h.writeError(w, http.StatusConflict, "Ledger mismatch is still present; repair the balance first")
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Account not found")
		default:
			log.Printf("level=error component=api endpoint=admin_unfreeze msg=\"unfreeze failed\" account_id=%s err=%v", accountID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to unfreeze account")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "unfrozen"})
}
