package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"danceBack/internal/models"
	"danceBack/internal/payments"
	"danceBack/internal/services"
)

const testSecret = "whsec_handler_test"

type memLedger struct{ events map[string]string }

func (l *memLedger) Exists(_ context.Context, id string) (bool, error) {
	_, ok := l.events[id]
	return ok, nil
}

func (l *memLedger) MarkProcessed(_ context.Context, id, typ string) error {
	l.events[id] = typ
	return nil
}

func (l *memLedger) PruneBefore(context.Context, time.Time) (int64, error) { return 0, nil }

// memOrders holds orders by id and counts status writes.
type memOrders struct {
	orders map[int64]models.Order
	writes int
}

func (o *memOrders) Create(context.Context, models.Order) (models.Order, error) {
	o.writes++
	return models.Order{}, nil
}

func (o *memOrders) MarkPending(context.Context, int64, string, string) error {
	o.writes++
	return nil
}

func (o *memOrders) Transition(_ context.Context, id int64, from, to string, _ time.Time) error {
	ord, ok := o.orders[id]
	if !ok || ord.Status != from {
		return models.ErrStatusConflict
	}
	o.writes++
	ord.Status = to
	o.orders[id] = ord
	return nil
}

func (o *memOrders) GetByID(_ context.Context, id int64) (models.Order, error) {
	ord, ok := o.orders[id]
	if !ok {
		return models.Order{}, models.ErrOrderNotFound
	}
	return ord, nil
}

func (o *memOrders) GetByCheckoutSessionID(context.Context, string) (models.Order, error) {
	return models.Order{}, models.ErrOrderNotFound
}

func (o *memOrders) ListByUser(context.Context, int64, int, int) ([]models.Order, error) {
	return nil, nil
}

func (o *memOrders) ListRecent(context.Context, int, int) ([]models.Order, error) { return nil, nil }

func (o *memOrders) DeleteAbandoned(context.Context, time.Time) (int64, error) { return 0, nil }

func (o *memOrders) HasPurchased(context.Context, int64, string, int64) (bool, error) {
	return false, nil
}

type countingObserver struct{ outcomes []string }

func (c *countingObserver) ObserveWebhook(_, outcome string) { c.outcomes = append(c.outcomes, outcome) }

func newWebhookHandler(orders *memOrders, ledger *memLedger, obs *countingObserver) *PaymentHandler {
	processor := payments.NewStripe(payments.StripeConfig{SecretKey: "sk_test", WebhookSecret: testSecret})
	return &PaymentHandler{
		Webhooks: services.NewWebhookService(services.WebhookServiceDeps{
			Processor: processor,
			Ledger:    ledger,
			Orders:    orders,
			Logger:    zap.NewNop(),
		}),
		Metrics: obs,
		Logger:  zap.NewNop(),
	}
}

func webhookRequest(payload []byte, signature string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/stripe-webhook", bytes.NewReader(payload))
	r.Header.Set(signatureHeader, signature)
	return r
}

func sign(payload []byte, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func intentPayload(eventID, orderID string) []byte {
	return []byte(`{"id":"` + eventID + `","object":"event","api_version":"2023-10-16","type":"payment_intent.succeeded",` +
		`"data":{"object":{"id":"pi_1","object":"payment_intent","status":"succeeded","metadata":{"order_id":"` + orderID + `"}}}}`)
}

func TestStripeWebhookRejectsTamperedBody(t *testing.T) {
	orders := &memOrders{orders: map[int64]models.Order{10: {ID: 10, UserID: 1, Status: models.OrderStatusPending}}}
	ledger := &memLedger{events: map[string]string{}}
	obs := &countingObserver{}
	h := newWebhookHandler(orders, ledger, obs)

	payload := intentPayload("evt_1", "10")
	signature := sign(payload, testSecret)
	tampered := bytes.Replace(payload, []byte(`"10"`), []byte(`"11"`), 1)

	for _, tc := range []struct {
		name      string
		body      []byte
		signature string
	}{
		{"tampered body", tampered, signature},
		{"wrong secret", payload, sign(payload, "whsec_other")},
		{"missing header", payload, ""},
	} {
		rec := httptest.NewRecorder()
		h.StripeWebhook(rec, webhookRequest(tc.body, tc.signature))
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.name)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body["error"], tc.name)
	}

	assert.Equal(t, models.OrderStatusPending, orders.orders[10].Status)
	assert.Zero(t, orders.writes)
	assert.Empty(t, ledger.events)
	assert.Equal(t, []string{"invalid_signature", "invalid_signature", "invalid_signature"}, obs.outcomes)
}

func TestStripeWebhookUnknownOrderAcknowledged(t *testing.T) {
	orders := &memOrders{orders: map[int64]models.Order{}}
	ledger := &memLedger{events: map[string]string{}}
	h := newWebhookHandler(orders, ledger, &countingObserver{})

	payload := intentPayload("evt_2", "404")
	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, webhookRequest(payload, sign(payload, testSecret)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"received":true}`, rec.Body.String())
	assert.Contains(t, ledger.events, "evt_2")
}

func TestStripeWebhookDuplicateDelivery(t *testing.T) {
	orders := &memOrders{orders: map[int64]models.Order{}}
	ledger := &memLedger{events: map[string]string{"evt_3": payments.EventPaymentSucceeded}}
	h := newWebhookHandler(orders, ledger, &countingObserver{})

	payload := intentPayload("evt_3", "1")
	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, webhookRequest(payload, sign(payload, testSecret)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"duplicate":true}`, rec.Body.String())
}

func TestStripeWebhookTerminalOrderUnchanged(t *testing.T) {
	orders := &memOrders{orders: map[int64]models.Order{5: {ID: 5, UserID: 1, Status: models.OrderStatusFailed}}}
	ledger := &memLedger{events: map[string]string{}}
	h := newWebhookHandler(orders, ledger, &countingObserver{})

	payload := intentPayload("evt_4", "5")
	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, webhookRequest(payload, sign(payload, testSecret)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.OrderStatusFailed, orders.orders[5].Status)
	assert.Zero(t, orders.writes)
}

func TestStripeWebhookUndecodableObjectAcknowledged(t *testing.T) {
	orders := &memOrders{orders: map[int64]models.Order{10: {ID: 10, UserID: 1, Status: models.OrderStatusPending}}}
	ledger := &memLedger{events: map[string]string{}}
	obs := &countingObserver{}
	h := newWebhookHandler(orders, ledger, obs)

	payload := []byte(`{"id":"evt_5","object":"event","api_version":"2023-10-16","type":"payment_intent.succeeded",` +
		`"data":{"object":{"id":"pi_1","object":"payment_intent","amount":"lots","metadata":{"order_id":"10"}}}}`)
	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, webhookRequest(payload, sign(payload, testSecret)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"received":true}`, rec.Body.String())
	assert.Contains(t, ledger.events, "evt_5")
	assert.Equal(t, models.OrderStatusPending, orders.orders[10].Status)
	assert.Zero(t, orders.writes)
	assert.Equal(t, []string{services.OutcomeIgnored}, obs.outcomes)
}
