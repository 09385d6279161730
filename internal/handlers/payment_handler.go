package handlers

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"danceBack/internal/models"
	"danceBack/internal/payments"
	"danceBack/internal/services"
)

const (
	maxWebhookBytes = 64 << 10
	signatureHeader = "Stripe-Signature"
)

type WebhookObserver interface {
	ObserveWebhook(eventType, outcome string)
}

type PaymentHandler struct {
	Orders   *services.OrderService
	Webhooks *services.WebhookService
	Metrics  WebhookObserver
	Logger   *zap.Logger
}

func (h *PaymentHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req models.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.Orders.CreatePaymentIntent(r.Context(), user, req)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"orderId":      res.OrderID,
		"clientSecret": res.ClientSecret,
		"total":        res.Total,
		"currency":     res.Currency,
	})
}

func (h *PaymentHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req models.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.Orders.CreateCheckoutSession(r.Context(), user, req)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"orderId": res.OrderID, "sessionId": res.SessionID, "url": res.URL})
}

// ConfirmOrder reports the processor's view of a checkout session. Order
// status is only ever changed by the webhook.
func (h *PaymentHandler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req models.ConfirmOrderRequest
	if err := decodeJSON(w, r, &req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	order, paid, err := h.Orders.Confirm(r.Context(), user, req.SessionID)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"order": order, "paid": paid})
}

func (h *PaymentHandler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset, ok := parsePaging(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid paging")
		return
	}
	orders, err := h.Orders.History(r.Context(), user.ID, limit, offset)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"orders": orders, "limit": limit, "offset": offset})
}

func (h *PaymentHandler) AdminOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePaging(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid paging")
		return
	}
	orders, err := h.Orders.Recent(r.Context(), limit, offset)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"orders": orders, "limit": limit, "offset": offset})
}

func (h *PaymentHandler) Enrollments(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	enrollments, err := h.Orders.Enrollments(r.Context(), user.ID)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"enrollments": enrollments})
}

func (h *PaymentHandler) DownloadResource(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}
	dl, err := h.Orders.Download(r.Context(), user, id)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"url": dl.URL, "expiresAt": dl.ExpiresAt})
}

// StripeWebhook verifies and applies a processor callback. Signature
// failures are rejected before any state is read or written.
func (h *PaymentHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	res, err := h.Webhooks.Handle(r.Context(), payload, r.Header.Get(signatureHeader))
	switch {
	case errors.Is(err, payments.ErrInvalidSignature):
		h.observe("", "invalid_signature")
		h.Logger.Warn("webhook signature rejected", zap.String("remote", r.RemoteAddr))
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	case err != nil:
		h.observe(res.EventType, "error")
		respondError(w, h.Logger, r, err)
		return
	}

	h.observe(res.EventType, res.Outcome)
	if res.Outcome == services.OutcomeDuplicate {
		writeSuccess(w, http.StatusOK, map[string]any{"duplicate": true})
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"received": true})
}

func (h *PaymentHandler) observe(eventType, outcome string) {
	if h.Metrics != nil {
		h.Metrics.ObserveWebhook(eventType, outcome)
	}
}
