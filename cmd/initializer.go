package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"danceBack/internal/auth"
	"danceBack/internal/cart"
	"danceBack/internal/config"
	"danceBack/internal/handlers"
	"danceBack/internal/metrics"
	"danceBack/internal/notify"
	"danceBack/internal/payments"
	"danceBack/internal/repositories"
	"danceBack/internal/services"
	"danceBack/internal/ws"
	"danceBack/utils"
)

const (
	catalogCacheSize = 256
	catalogCacheTTL  = 5 * time.Minute
)

type application struct {
	logger   *zap.Logger
	verifier auth.Verifier
	users    userLookup
	metrics  *metrics.Metrics
	hub      *ws.Hub
	db       *sql.DB
	rdb      *redis.Client

	authHandler         *handlers.AuthHandler
	cartHandler         *handlers.CartHandler
	paymentHandler      *handlers.PaymentHandler
	subscriptionHandler *handlers.SubscriptionHandler
	catalogHandler      *handlers.CatalogHandler
	realtimeHandler     *handlers.RealtimeHandler

	userService         *services.UserService
	orderService        *services.OrderService
	subscriptionService *services.SubscriptionService
	webhookService      *services.WebhookService
}

// infra holds the external clients built in main.
type infra struct {
	cfg       config.Config
	logger    *zap.Logger
	db        *sql.DB
	rdb       *redis.Client
	identity  auth.Provider
	processor payments.Processor
	mailer    notify.Mailer
	pusher    notify.Pusher
	storage   services.Presigner
}

func initializeApp(in infra) (*application, error) {
	cfg, logger := in.cfg, in.logger

	// Repositories
	userRepo := &repositories.UserRepository{DB: in.db}
	orderRepo := repositories.NewOrderRepository(in.db)
	subscriptionRepo := &repositories.SubscriptionRepository{DB: in.db}
	cartRepo := &repositories.CartRepository{DB: in.db}
	catalogRepo := &repositories.CatalogRepository{DB: in.db}
	certificateRepo := &repositories.CertificateRepository{DB: in.db}
	enrollmentRepo := &repositories.EnrollmentRepository{DB: in.db}
	ledger := &repositories.WebhookEventRepository{DB: in.db}

	tokens, err := utils.NewManager(cfg.GuestTokenKey, cfg.Redis.GuestTTL)
	if err != nil {
		return nil, fmt.Errorf("guest tokens: %w", err)
	}
	renderer, err := notify.NewRenderer()
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(logger.Named("ws").Sugar(), cfg.Server.AllowedOrigins)
	dispatcher := notify.NewDispatcher(notify.DispatcherDeps{
		Renderer:    renderer,
		Mailer:      in.mailer,
		Pusher:      in.pusher,
		Publisher:   hub,
		Logger:      logger,
		FrontendURL: cfg.FrontendURL,
	})

	// Services
	catalogService := services.NewCatalogService(catalogRepo, catalogCacheSize, catalogCacheTTL)
	cartService := services.NewCartService(cart.NewGuestStore(in.rdb, cfg.Redis.GuestTTL), cartRepo, tokens, catalogService, logger)
	userService := services.NewUserService(userRepo, in.identity, cartService, dispatcher, logger)
	certificateService := services.NewCertificateService(certificateRepo)
	subscriptionService := services.NewSubscriptionService(subscriptionRepo, userRepo, in.processor, dispatcher, cfg.Plans, cfg.FrontendURL, logger)
	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      orderRepo,
		Enrollments: enrollmentRepo,
		Catalog:     catalogService,
		Carts:       cartService,
		Processor:   in.processor,
		Storage:     in.storage,
		Currency:    cfg.Stripe.Currency,
		FrontendURL: cfg.FrontendURL,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	webhookService := services.NewWebhookService(services.WebhookServiceDeps{
		Processor:     in.processor,
		Ledger:        ledger,
		Orders:        orderRepo,
		Users:         userRepo,
		Enrollments:   enrollmentRepo,
		Carts:         cartService,
		Subscriptions: subscriptionService,
		Notifier:      dispatcher,
		Logger:        logger,
	})

	m := metrics.New()

	return &application{
		logger:   logger,
		verifier: in.identity,
		users:    userService,
		metrics:  m,
		hub:      hub,
		db:       in.db,
		rdb:      in.rdb,

		authHandler: &handlers.AuthHandler{Service: userService, Logger: logger},
		cartHandler: &handlers.CartHandler{Service: cartService, Logger: logger},
		paymentHandler: &handlers.PaymentHandler{
			Orders:   orderService,
			Webhooks: webhookService,
			Metrics:  m,
			Logger:   logger,
		},
		subscriptionHandler: &handlers.SubscriptionHandler{Service: subscriptionService, Logger: logger},
		catalogHandler: &handlers.CatalogHandler{
			Catalog:      catalogService,
			Certificates: certificateService,
			Logger:       logger,
		},
		realtimeHandler: &handlers.RealtimeHandler{
			Verifier: in.identity,
			Users:    userService,
			Stream:   hub,
			Logger:   logger,
		},

		userService:         userService,
		orderService:        orderService,
		subscriptionService: subscriptionService,
		webhookService:      webhookService,
	}, nil
}

func openDB(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	db.SetMaxIdleConns(35)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
