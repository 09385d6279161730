package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"danceBack/internal/auth"
	"danceBack/internal/cart"
	"danceBack/internal/models"
	"danceBack/internal/services"
)

type CartHandler struct {
	Service *services.CartService
	Logger  *zap.Logger
}

func cartBody(items []models.CartItem) map[string]any {
	if items == nil {
		items = []models.CartItem{}
	}
	return map[string]any{"items": items, "total": models.CartTotal(items)}
}

// resolve returns the account cart for signed-in callers and the guest
// cart named by the X-Cart-Token header otherwise.
func (h *CartHandler) resolve(w http.ResponseWriter, r *http.Request) (cart.Cart, bool) {
	var userID int64
	if user, ok := auth.UserFromContext(r.Context()); ok {
		userID = user.ID
	}
	c, err := h.Service.Resolve(userID, r.Header.Get(CartTokenHeader))
	if err != nil {
		respondError(w, h.Logger, r, err)
		return nil, false
	}
	return c, true
}

func (h *CartHandler) respondCart(w http.ResponseWriter, r *http.Request, c cart.Cart) {
	items, err := c.Get(r.Context())
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"cart": cartBody(items)})
}

func (h *CartHandler) IssueGuestToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.Service.IssueGuestToken()
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"cartToken": token})
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	h.respondCart(w, r, c)
}

func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req models.AddCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	items, err := h.Service.AddItem(r.Context(), c, req)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"cart": cartBody(items)})
}

func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.CartItemID) == "" {
		writeError(w, http.StatusBadRequest, "cartItemId is required")
		return
	}
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if err := c.SetQuantity(r.Context(), req.CartItemID, req.Quantity); err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	h.respondCart(w, r, c)
}

// Remove deletes one line, or clears the cart when no cartItemId is given.
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req models.RemoveCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CartItemID == "" {
		req.CartItemID = r.URL.Query().Get("cartItemId")
	}
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var err error
	if strings.TrimSpace(req.CartItemID) == "" {
		err = c.Clear(r.Context())
	} else {
		err = c.Remove(r.Context(), req.CartItemID)
	}
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	h.respondCart(w, r, c)
}

func (h *CartHandler) Merge(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	token := r.Header.Get(CartTokenHeader)
	if token == "" {
		writeError(w, http.StatusBadRequest, CartTokenHeader+" header is required")
		return
	}
	if _, err := h.Service.Guest(token); err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	items, err := h.Service.MergeGuest(r.Context(), user.ID, token)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"cart": cartBody(items)})
}
