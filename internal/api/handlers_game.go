/**
 * @description
 * HTTP handlers for game sessions: starting a play session and completing it
 * with the coins it earned.
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

// StartGameSessionHandler opens a new active session for the player.
func (h *LedgerHandlers) StartGameSessionHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}

	session, err := h.service.StartGameSession(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=start_session msg=\"session create failed\" account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to start session")
		return
	}
	h.writeJSON(w, http.StatusCreated, session)
}

// CompleteGameSessionHandler finishes an active session and credits its coins.
func (h *LedgerHandlers) CompleteGameSessionHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.requireAccountID(w, r)
	if !ok {
		return
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	var payload domain.CompleteGameSessionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, mutation, err := h.service.CompleteGameSession(r.Context(), accountID, sessionID, payload)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidSessionReward):
			h.writeError(w, http.StatusBadRequest, "Session coin reward is out of range")
		case errors.Is(err, store.ErrSessionNotFound):
			h.writeError(w, http.StatusNotFound, "Session not found")
		case errors.Is(err, store.ErrSessionNotActive):
			h.writeError(w, http.StatusConflict, "Session is already finished")
		case errors.Is(err, store.ErrAccountFrozen):
			h.writeError(w, http.StatusLocked, "Account is frozen pending review")
		default:
			log.Printf("level=error component=api endpoint=complete_session msg=\"session complete failed\" session_id=%s err=%v", sessionID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to complete session")
		}
		return
	}

	response := map[string]interface{}{"session": session}
	if mutation != nil {
		response["entry_id"] = mutation.EntryID
		response["coins_earned"] = mutation.Amount
		response["new_balance"] = mutation.NewBalance
	}
	h.writeJSON(w, http.StatusOK, response)
}
