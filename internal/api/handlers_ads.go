/**
 * @description
 * HTTP handlers for the ad reward endpoints: listing available placements,
 * checking claim eligibility, and granting the reward after a completed watch.
 */

package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/dropstrike/ledger-service/internal/app"
	"github.com/dropstrike/ledger-service/internal/domain"
	"github.com/dropstrike/ledger-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ListAdRewardsHandler returns the active ad placements, optionally filtered by
// ad type via the {adType} URL param.
func (h *LedgerHandlers) ListAdRewardsHandler(w http.ResponseWriter, r *http.Request) {
	adType := chi.URLParam(r, "adType")

	configs, err := h.service.ListAdRewardConfigs(r.Context(), adType, true)
	if err != nil {
		if errors.Is(err, app.ErrInvalidAdType) {
			h.writeError(w, http.StatusBadRequest, "Unknown ad type")
			return
		}
		log.Printf("level=error component=api endpoint=list_ad_rewards msg=\"config list failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load ad rewards")
		return
	}
	if configs == nil {
		configs = []domain.AdRewardConfig{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"rewards": configs})
}

// GetAdEligibilityHandler answers whether the player can claim the reward for
// an ad unit right now, with a structured refusal reason when they cannot.
func (h *LedgerHandlers) GetAdEligibilityHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}
	adUnitID := chi.URLParam(r, "adUnitId")

	eligibility, err := h.service.CheckAdEligibility(r.Context(), accountID, adUnitID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=ad_eligibility msg=\"eligibility check failed\" account_id=%s ad_unit_id=%s err=%v", accountID, adUnitID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to check eligibility")
		return
	}
	h.writeJSON(w, http.StatusOK, eligibility)
}

// WatchAdHandler grants the reward for a completed ad watch. Policy refusals
// come back as 422 with the same structured reason shape the eligibility
// endpoint uses, so the client renders both identically.
func (h *LedgerHandlers) WatchAdHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}
	adUnitID := chi.URLParam(r, "adUnitId")

	grant, err := h.service.GrantAdReward(r.Context(), accountID, adUnitID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrRateLimited):
			h.writeError(w, http.StatusTooManyRequests, "Too many reward claims; slow down")
		case errors.Is(err, store.ErrAdUnitNotFound):
			h.writeIneligible(w, r, accountID, adUnitID, domain.IneligibleNotFound)
		case errors.Is(err, store.ErrRewardLevelTooLow):
			h.writeIneligible(w, r, accountID, adUnitID, domain.IneligibleLevelTooLow)
		case errors.Is(err, store.ErrRewardDailyLimit):
			h.writeIneligible(w, r, accountID, adUnitID, domain.IneligibleDailyLimitReached)
		case errors.Is(err, store.ErrRewardCooldown):
			h.writeIneligible(w, r, accountID, adUnitID, domain.IneligibleCooldownActive)
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Account not found")
		default:
			log.Printf("level=error component=api endpoint=watch_ad msg=\"reward grant failed\" account_id=%s ad_unit_id=%s err=%v", accountID, adUnitID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to grant reward")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, grant)
}

// writeIneligible re-runs the eligibility check to give the client the full
// structured refusal (reset times, limits) rather than just an error string.
func (h *LedgerHandlers) writeIneligible(w http.ResponseWriter, r *http.Request, accountID uuid.UUID, adUnitID string, fallbackReason string) {
	eligibility, err := h.service.CheckAdEligibility(r.Context(), accountID, adUnitID)
	if err != nil || eligibility.Eligible {
		eligibility = &domain.AdEligibility{Eligible: false, Reason: fallbackReason}
	}
	h.writeJSON(w, http.StatusUnprocessableEntity, eligibility)
}
