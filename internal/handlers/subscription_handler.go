package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"danceBack/internal/models"
	"danceBack/internal/services"
)

type SubscriptionHandler struct {
	Service *services.SubscriptionService
	Logger  *zap.Logger
}

func (h *SubscriptionHandler) Plans(w http.ResponseWriter, r *http.Request) {
	plans := h.Service.Plans()
	if plans == nil {
		plans = []models.Plan{}
	}
	writeSuccess(w, http.StatusOK, map[string]any{"plans": plans})
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	subs, err := h.Service.List(r.Context(), user.ID)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (h *SubscriptionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req models.SubscriptionCheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Plan == "" {
		writeError(w, http.StatusBadRequest, "plan is required")
		return
	}
	cs, err := h.Service.Checkout(r.Context(), user, req)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"sessionId": cs.ID, "url": cs.URL})
}

func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subscription id")
		return
	}
	var req models.CancelSubscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sub, err := h.Service.Cancel(r.Context(), user, id, req.Reason)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"subscription": sub})
}

func (h *SubscriptionHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subscription id")
		return
	}
	sub, err := h.Service.Reactivate(r.Context(), user, id)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"subscription": sub})
}
