package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"

	"danceBack/internal/models"
)

func (app *application) routes() http.Handler {
	baseMiddleware := alice.New(app.recoverPanic, app.metrics.Middleware, app.logRequest, secureHeaders)
	standardMiddleware := baseMiddleware.Append(makeResponseJSON)
	guestMiddleware := standardMiddleware.Append(app.optionalUser)
	identityMiddleware := standardMiddleware.Append(app.authenticate)
	authMiddleware := identityMiddleware.Append(app.requireRoles())
	adminMiddleware := identityMiddleware.Append(app.requireRoles(models.RoleAdmin))

	mux := pat.New()

	// Account
	mux.Post("/register", standardMiddleware.ThenFunc(app.authHandler.Register))
	mux.Post("/login", standardMiddleware.ThenFunc(app.authHandler.Login))
	mux.Get("/me", authMiddleware.ThenFunc(app.authHandler.Me))
	mux.Post("/me/device-token", authMiddleware.ThenFunc(app.authHandler.DeviceToken))
	mux.Post("/logout", identityMiddleware.ThenFunc(app.authHandler.Logout))
	mux.Post("/password-reset", standardMiddleware.ThenFunc(app.authHandler.PasswordReset))

	// Cart
	mux.Post("/cart/guest", standardMiddleware.ThenFunc(app.cartHandler.IssueGuestToken))
	mux.Post("/cart/merge", authMiddleware.ThenFunc(app.cartHandler.Merge))
	mux.Get("/cart", guestMiddleware.ThenFunc(app.cartHandler.Get))
	mux.Post("/cart", guestMiddleware.ThenFunc(app.cartHandler.Add))
	mux.Patch("/cart", guestMiddleware.ThenFunc(app.cartHandler.Update))
	mux.Del("/cart", guestMiddleware.ThenFunc(app.cartHandler.Remove))

	// Orders and payments
	mux.Post("/create-payment-intent", authMiddleware.ThenFunc(app.paymentHandler.CreatePaymentIntent))
	mux.Post("/checkout/session", authMiddleware.ThenFunc(app.paymentHandler.CreateCheckoutSession))
	mux.Post("/orders/confirm", authMiddleware.ThenFunc(app.paymentHandler.ConfirmOrder))
	mux.Get("/payment-history", authMiddleware.ThenFunc(app.paymentHandler.PaymentHistory))
	mux.Get("/enrollments", authMiddleware.ThenFunc(app.paymentHandler.Enrollments))
	mux.Post("/stripe-webhook", standardMiddleware.ThenFunc(app.paymentHandler.StripeWebhook))

	// Subscriptions
	mux.Get("/subscriptions/plans", standardMiddleware.ThenFunc(app.subscriptionHandler.Plans))
	mux.Get("/subscriptions", authMiddleware.ThenFunc(app.subscriptionHandler.List))
	mux.Post("/subscriptions/checkout", authMiddleware.ThenFunc(app.subscriptionHandler.Checkout))
	mux.Post("/subscriptions/:id/cancel", authMiddleware.ThenFunc(app.subscriptionHandler.Cancel))
	mux.Post("/subscriptions/:id/reactivate", authMiddleware.ThenFunc(app.subscriptionHandler.Reactivate))

	// Catalog
	mux.Get("/courses", standardMiddleware.ThenFunc(app.catalogHandler.ListCourses))
	mux.Get("/courses/:id", standardMiddleware.ThenFunc(app.catalogHandler.GetCourse))
	mux.Get("/resources", standardMiddleware.ThenFunc(app.catalogHandler.ListResources))
	mux.Get("/resources/:id/download", authMiddleware.ThenFunc(app.paymentHandler.DownloadResource))
	mux.Get("/resources/:id", standardMiddleware.ThenFunc(app.catalogHandler.GetResource))
	mux.Get("/certificates", authMiddleware.ThenFunc(app.catalogHandler.MyCertificates))
	mux.Get("/certificates/verify/:code", standardMiddleware.ThenFunc(app.catalogHandler.VerifyCertificate))

	// Admin
	mux.Get("/admin/orders", adminMiddleware.ThenFunc(app.paymentHandler.AdminOrders))

	// Realtime and ops
	mux.Get("/ws/orders", alice.New(app.recoverPanic).ThenFunc(app.realtimeHandler.Orders))
	mux.Get("/metrics", baseMiddleware.Then(app.metrics.Handler()))
	mux.Get("/healthz", standardMiddleware.ThenFunc(app.healthz))

	return mux
}

func (app *application) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"db": "ok", "redis": "ok"}
	status := http.StatusOK
	if app.db != nil {
		if err := app.db.PingContext(ctx); err != nil {
			checks["db"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if app.rdb != nil {
		if err := app.rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": status == http.StatusOK, "checks": checks})
}
