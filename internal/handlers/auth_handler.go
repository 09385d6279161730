package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"danceBack/internal/auth"
	"danceBack/internal/models"
	"danceBack/internal/services"
)

// CartTokenHeader carries the signed guest cart token.
const CartTokenHeader = "X-Cart-Token"

type AuthHandler struct {
	Service *services.UserService
	Logger  *zap.Logger
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		writeError(w, http.StatusBadRequest, "idToken is required")
		return
	}
	user, created, err := h.Service.Register(r.Context(), req.IDToken)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeSuccess(w, status, map[string]any{"user": user, "created": created})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		writeError(w, http.StatusBadRequest, "idToken is required")
		return
	}
	user, items, err := h.Service.Login(r.Context(), req.IDToken, r.Header.Get(CartTokenHeader))
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": user, "cart": cartBody(items)})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": user})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := h.Service.Logout(r.Context(), id.UID); err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

// PasswordReset always succeeds so that registered addresses cannot be probed.
func (h *AuthHandler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.Service.PasswordReset(r.Context(), req.Email)
	writeSuccess(w, http.StatusOK, nil)
}

func (h *AuthHandler) DeviceToken(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req models.DeviceTokenRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := h.Service.SetDeviceToken(r.Context(), user.ID, req.Token); err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}
