package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tableside/api/internal/config"
	"github.com/tableside/api/internal/database"
	"github.com/tableside/api/internal/gateway"
	"github.com/tableside/api/internal/handler"
	mw "github.com/tableside/api/internal/middleware"
	"github.com/tableside/api/internal/service"
	"github.com/tableside/api/internal/ws"
)

// Deps are the long-lived collaborators built by main.
type Deps struct {
	Log      *zap.Logger
	Pool     *pgxpool.Pool
	Hub      *ws.Hub
	Notifier service.Notifier
	Gateway  gateway.Gateway
	Deduper  service.EventDeduper // optional
}

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, deps Deps) chi.Router {
	log := deps.Log
	queries := database.New(deps.Pool)

	// --- Services ---
	sessions := service.NewSessionService(deps.Pool, func(db database.DBTX) service.SessionStore {
		return database.New(db)
	})

	var orderOpts []service.OrderOption
	if cfg.PriceGuard {
		orderOpts = append(orderOpts, service.WithPriceGuard())
	}
	orders := service.NewOrderService(deps.Pool, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}, deps.Notifier, orderOpts...)

	var paymentOpts []service.PaymentOption
	for provider, secret := range cfg.PaymentWebhookSecrets {
		if secret == "" {
			continue
		}
		paymentOpts = append(paymentOpts, service.WithWebhookVerifier(provider, gateway.NewVerifier(secret)))
	}
	if deps.Deduper != nil {
		paymentOpts = append(paymentOpts, service.WithDeduper(deps.Deduper))
	}
	payments := service.NewPaymentService(deps.Pool, func(db database.DBTX) service.PaymentStore {
		return database.New(db)
	}, deps.Gateway, deps.Notifier, paymentOpts...)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", gateway.SignatureHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	handler.NewAuthHandler(queries, cfg.JWTSecret, log).RegisterRoutes(r)
	handler.NewMenuHandler(queries, log).RegisterRoutes(r)
	handler.NewSessionHandler(sessions, log).RegisterRoutes(r)

	orderHandler := handler.NewOrderHandler(orders, log)
	orderHandler.RegisterGuestRoutes(r)
	paymentHandler := handler.NewPaymentHandler(payments, log)
	paymentHandler.RegisterGuestRoutes(r)

	// WebSocket routes (staff auth via query param, guest rooms via session id)
	r.Get("/ws/staff", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeStaffWS(deps.Hub, cfg.JWTSecret, w, r)
	})
	lookup := func(ctx context.Context, id uuid.UUID) error {
		_, err := sessions.GetSession(ctx, id)
		return err
	}
	r.Get("/ws/sessions/{sid}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeSessionWS(deps.Hub, lookup, w, r)
	})

	// Staff routes (require authentication; roles are checked per route)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		orderHandler.RegisterStaffRoutes(r)
		paymentHandler.RegisterStaffRoutes(r)
	})

	log.Info("router initialized", zap.Bool("price_guard", cfg.PriceGuard), zap.Int("webhook_providers", len(cfg.PaymentWebhookSecrets)))
	return r
}
