package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"danceBack/internal/auth"
	"danceBack/internal/services"
)

type OrderStream interface {
	Serve(w http.ResponseWriter, r *http.Request, userID int64)
}

// RealtimeHandler authenticates websocket clients from the token query
// parameter, since browsers cannot set headers on upgrade requests.
type RealtimeHandler struct {
	Verifier auth.Verifier
	Users    *services.UserService
	Stream   OrderStream
	Logger   *zap.Logger
}

func (h *RealtimeHandler) Orders(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "token is required")
		return
	}
	id, err := h.Verifier.VerifyIDToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	user, err := h.Users.Me(r.Context(), id.UID)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	h.Stream.Serve(w, r, user.ID)
}
