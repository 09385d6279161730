package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"danceBack/internal/models"
	"danceBack/internal/payments"
)

type OrderServiceDeps struct {
	Orders      OrderStore
	Enrollments EnrollmentStore
	Catalog     *CatalogService
	Carts       *CartService
	Processor   payments.Processor
	Storage     Presigner
	Currency    string
	FrontendURL string
	Logger      *zap.Logger
}

func (d OrderServiceDeps) Validate() error {
	var missing []string
	if d.Orders == nil {
		missing = append(missing, "Orders")
	}
	if d.Enrollments == nil {
		missing = append(missing, "Enrollments")
	}
	if d.Catalog == nil {
		missing = append(missing, "Catalog")
	}
	if d.Carts == nil {
		missing = append(missing, "Carts")
	}
	if d.Processor == nil {
		missing = append(missing, "Processor")
	}
	if d.Logger == nil {
		missing = append(missing, "Logger")
	}
	if len(missing) > 0 {
		return fmt.Errorf("order service: missing deps: %s", strings.Join(missing, ", "))
	}
	return nil
}

// OrderService turns carts into orders and hands them to the processor.
// It never moves an order past pending; settlement happens in the webhook.
type OrderService struct {
	orders      OrderStore
	enrollments EnrollmentStore
	catalog     *CatalogService
	carts       *CartService
	processor   payments.Processor
	storage     Presigner
	currency    string
	frontendURL string
	logger      *zap.Logger
}

func NewOrderService(deps OrderServiceDeps) (*OrderService, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	currency := deps.Currency
	if currency == "" {
		currency = "usd"
	}
	return &OrderService{
		orders:      deps.Orders,
		enrollments: deps.Enrollments,
		catalog:     deps.Catalog,
		carts:       deps.Carts,
		processor:   deps.Processor,
		storage:     deps.Storage,
		currency:    currency,
		frontendURL: strings.TrimRight(deps.FrontendURL, "/"),
		logger:      deps.Logger.Named("orders"),
	}, nil
}

type PaymentIntentResult struct {
	OrderID      int64           `json:"orderId"`
	ClientSecret string          `json:"clientSecret"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
}

type CheckoutResult struct {
	OrderID   int64  `json:"orderId"`
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// buildOrder prices the requested lines from the catalog. With no lines the
// caller's account cart is used.
func (s *OrderService) buildOrder(ctx context.Context, userID int64, lines []models.LineRequest) (models.Order, error) {
	if len(lines) == 0 {
		items, err := s.carts.Account(userID).Get(ctx)
		if err != nil {
			return models.Order{}, fmt.Errorf("load cart: %w", err)
		}
		for _, it := range items {
			lines = append(lines, models.LineRequest{ItemType: it.ItemType, ItemID: it.ItemID, Quantity: it.Quantity})
		}
	}
	if len(lines) == 0 {
		return models.Order{}, models.ErrEmptyOrder
	}

	order := models.Order{UserID: userID, Currency: s.currency, Total: decimal.Zero}
	for _, l := range lines {
		if !models.ValidItemType(l.ItemType) {
			return models.Order{}, models.ErrInvalidItemType
		}
		qty := l.Quantity
		if qty == 0 {
			qty = 1
		}
		if qty < 0 {
			return models.Order{}, models.ErrInvalidQuantity
		}
		title, price, err := s.catalog.Price(ctx, l.ItemType, l.ItemID)
		if err != nil {
			return models.Order{}, err
		}
		item := models.OrderItem{ItemType: l.ItemType, ItemID: l.ItemID, Title: title, Quantity: qty, UnitPrice: price}
		order.Items = append(order.Items, item)
		order.Total = order.Total.Add(item.Subtotal())
	}
	return order, nil
}

// CreatePaymentIntent persists a created order, opens a payment intent for
// it and moves the order to pending.
func (s *OrderService) CreatePaymentIntent(ctx context.Context, user models.User, req models.CheckoutRequest) (PaymentIntentResult, error) {
	order, err := s.buildOrder(ctx, user.ID, req.Items)
	if err != nil {
		return PaymentIntentResult{}, err
	}
	order, err = s.orders.Create(ctx, order)
	if err != nil {
		return PaymentIntentResult{}, fmt.Errorf("create order: %w", err)
	}

	pi, err := s.processor.CreatePaymentIntent(ctx, payments.PaymentIntentParams{
		OrderID:     order.ID,
		UserID:      user.ID,
		Amount:      order.Total,
		Currency:    order.Currency,
		CustomerID:  user.StripeCustomerID,
		Email:       user.Email,
		Description: orderDescription(order),
	})
	if err != nil {
		s.logger.Error("create payment intent", zap.Int64("order_id", order.ID), zap.Error(err))
		return PaymentIntentResult{}, err
	}
	if err := s.orders.MarkPending(ctx, order.ID, pi.ID, ""); err != nil {
		return PaymentIntentResult{}, fmt.Errorf("mark order pending: %w", err)
	}
	s.logger.Info("payment intent created", zap.Int64("order_id", order.ID), zap.String("payment_intent", pi.ID))

	return PaymentIntentResult{
		OrderID:      order.ID,
		ClientSecret: pi.ClientSecret,
		Total:        order.Total,
		Currency:     order.Currency,
	}, nil
}

// CreateCheckoutSession is CreatePaymentIntent through a hosted checkout page.
func (s *OrderService) CreateCheckoutSession(ctx context.Context, user models.User, req models.CheckoutRequest) (CheckoutResult, error) {
	order, err := s.buildOrder(ctx, user.ID, req.Items)
	if err != nil {
		return CheckoutResult{}, err
	}
	order, err = s.orders.Create(ctx, order)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("create order: %w", err)
	}

	lines := make([]payments.CheckoutLine, 0, len(order.Items))
	for _, it := range order.Items {
		lines = append(lines, payments.CheckoutLine{Name: it.Title, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	orderID := strconv.FormatInt(order.ID, 10)
	cs, err := s.processor.CreateCheckoutSession(ctx, payments.CheckoutParams{
		Mode:       payments.ModePayment,
		Currency:   order.Currency,
		Lines:      lines,
		CustomerID: user.StripeCustomerID,
		Email:      user.Email,
		SuccessURL: s.frontendURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.frontendURL + "/cart",
		Metadata: map[string]string{
			payments.MetaOrderID: orderID,
			payments.MetaUserID:  strconv.FormatInt(user.ID, 10),
		},
	})
	if err != nil {
		s.logger.Error("create checkout session", zap.Int64("order_id", order.ID), zap.Error(err))
		return CheckoutResult{}, err
	}
	if err := s.orders.MarkPending(ctx, order.ID, "", cs.ID); err != nil {
		return CheckoutResult{}, fmt.Errorf("mark order pending: %w", err)
	}
	return CheckoutResult{OrderID: order.ID, SessionID: cs.ID, URL: cs.URL}, nil
}

// Confirm re-reads the checkout session from the processor and reports
// whether it is paid. The order itself is left untouched.
func (s *OrderService) Confirm(ctx context.Context, user models.User, sessionID string) (models.Order, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return models.Order{}, false, models.ErrOrderNotFound
	}
	order, err := s.orders.GetByCheckoutSessionID(ctx, sessionID)
	if err != nil {
		return models.Order{}, false, err
	}
	if order.UserID != user.ID {
		return models.Order{}, false, models.ErrOrderNotFound
	}
	cs, err := s.processor.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return models.Order{}, false, err
	}
	if cs.Metadata[payments.MetaOrderID] != strconv.FormatInt(order.ID, 10) {
		s.logger.Warn("checkout session does not match order",
			zap.String("session_id", sessionID), zap.Int64("order_id", order.ID))
		return models.Order{}, false, models.ErrOrderNotFound
	}
	return order, cs.Paid(), nil
}

func (s *OrderService) History(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error) {
	return s.orders.ListByUser(ctx, userID, limit, offset)
}

func (s *OrderService) Recent(ctx context.Context, limit, offset int) ([]models.Order, error) {
	return s.orders.ListRecent(ctx, limit, offset)
}

func (s *OrderService) Enrollments(ctx context.Context, userID int64) ([]models.Enrollment, error) {
	return s.enrollments.ListByUser(ctx, userID)
}

type Download struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Download presigns the resource file for buyers and admins.
func (s *OrderService) Download(ctx context.Context, user models.User, resourceID int64) (Download, error) {
	if s.storage == nil {
		return Download{}, errors.New("object storage not configured")
	}
	res, err := s.catalog.Resource(ctx, resourceID)
	if err != nil {
		return Download{}, err
	}
	if !user.HasAnyRole() {
		owned, err := s.orders.HasPurchased(ctx, user.ID, models.ItemTypeResource, resourceID)
		if err != nil {
			return Download{}, fmt.Errorf("check purchase: %w", err)
		}
		if !owned {
			return Download{}, models.ErrForbidden
		}
	}
	if res.FileKey == "" {
		return Download{}, models.ErrResourceNotFound
	}
	url, expires, err := s.storage.PresignDownload(res.FileKey, downloadName(res))
	if err != nil {
		return Download{}, fmt.Errorf("presign download: %w", err)
	}
	return Download{URL: url, ExpiresAt: expires}, nil
}

// PurgeAbandoned deletes orders that never reached the processor.
func (s *OrderService) PurgeAbandoned(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.orders.DeleteAbandoned(ctx, time.Now().Add(-olderThan))
}

func orderDescription(order models.Order) string {
	if len(order.Items) == 1 {
		return order.Items[0].Title
	}
	return fmt.Sprintf("Order #%d (%d items)", order.ID, len(order.Items))
}

var fileNameStrip = strings.NewReplacer("/", "-", "\\", "-", "\"", "", "\n", " ")

func downloadName(res models.Resource) string {
	name := strings.TrimSpace(fileNameStrip.Replace(res.Title))
	if name == "" {
		name = "resource-" + strconv.FormatInt(res.ID, 10)
	}
	return name + path.Ext(res.FileKey)
}
