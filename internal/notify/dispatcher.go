package notify

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"danceBack/internal/models"
)

const sendTimeout = 15 * time.Second

// Publisher pushes realtime events to a user's open connections.
type Publisher interface {
	PublishToUser(userID int64, payload any)
}

// OrderEvent is the realtime payload sent when an order changes status.
type OrderEvent struct {
	Type    string `json:"type"`
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// Dispatcher fans transactional notifications out to mail, push and
// websocket. Failures are logged and never returned.
type Dispatcher struct {
	renderer    *Renderer
	mailer      Mailer
	pusher      Pusher
	publisher   Publisher
	logger      *zap.Logger
	frontendURL string
}

type DispatcherDeps struct {
	Renderer    *Renderer
	Mailer      Mailer
	Pusher      Pusher
	Publisher   Publisher
	Logger      *zap.Logger
	FrontendURL string
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		renderer:    deps.Renderer,
		mailer:      deps.Mailer,
		pusher:      deps.Pusher,
		publisher:   deps.Publisher,
		logger:      logger.Named("notify"),
		frontendURL: deps.FrontendURL,
	}
}

func (d *Dispatcher) Welcome(ctx context.Context, user models.User) {
	d.mail(ctx, TemplateWelcome, user.Email, map[string]any{
		"Name":        displayName(user),
		"Username":    user.Username,
		"FrontendURL": d.frontendURL,
	})
}

func (d *Dispatcher) PurchaseConfirmation(ctx context.Context, user models.User, order models.Order) {
	d.mail(ctx, TemplatePurchase, user.Email, map[string]any{
		"Name":        displayName(user),
		"OrderID":     order.ID,
		"Items":       order.Items,
		"Total":       order.Total.StringFixed(2),
		"Currency":    order.Currency,
		"FrontendURL": d.frontendURL,
	})
	d.push(ctx, user, "Purchase confirmed", "Order #"+strconv.FormatInt(order.ID, 10)+" is ready in your library.", map[string]string{
		"type":     "order",
		"order_id": strconv.FormatInt(order.ID, 10),
	})
}

func (d *Dispatcher) PasswordReset(ctx context.Context, email, link string) {
	d.mail(ctx, TemplatePasswordReset, email, map[string]any{"Link": link})
}

func (d *Dispatcher) CancellationScheduled(ctx context.Context, user models.User, sub models.Subscription) {
	periodEnd := "the end of the current period"
	if sub.CurrentPeriodEnd != nil {
		periodEnd = sub.CurrentPeriodEnd.Format("January 2, 2006")
	}
	d.mail(ctx, TemplateCancellation, user.Email, map[string]any{
		"Name":        displayName(user),
		"Plan":        sub.PlanSlug,
		"PeriodEnd":   periodEnd,
		"FrontendURL": d.frontendURL,
	})
}

// OrderStatusChanged publishes the new status to the owner's open sockets.
func (d *Dispatcher) OrderStatusChanged(order models.Order) {
	if d.publisher == nil {
		return
	}
	d.publisher.PublishToUser(order.UserID, OrderEvent{
		Type:    "order.status",
		OrderID: order.ID,
		Status:  order.Status,
	})
}

func (d *Dispatcher) mail(ctx context.Context, template, to string, data map[string]any) {
	if d.mailer == nil || d.renderer == nil {
		d.logger.Debug("mail disabled, skipping", zap.String("template", template))
		return
	}
	if to == "" {
		d.logger.Warn("mail skipped, no recipient", zap.String("template", template))
		return
	}
	msg, err := d.renderer.Render(template, to, data)
	if err != nil {
		d.logger.Error("render mail", zap.String("template", template), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := d.mailer.Send(ctx, msg); err != nil {
		d.logger.Error("send mail", zap.String("template", template), zap.String("to", to), zap.Error(err))
	}
}

func (d *Dispatcher) push(ctx context.Context, user models.User, title, body string, data map[string]string) {
	if d.pusher == nil || user.FCMToken == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := d.pusher.Push(ctx, user.FCMToken, title, body, data); err != nil {
		d.logger.Warn("push notification", zap.Int64("user_id", user.ID), zap.Error(err))
	}
}

func displayName(user models.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.Username
}

