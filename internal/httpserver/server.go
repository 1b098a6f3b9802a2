package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/PortNumber53/tryout-admin/backend/internal/config"
	"github.com/PortNumber53/tryout-admin/backend/internal/handlers"
	"github.com/PortNumber53/tryout-admin/backend/internal/worker"
)

// Deps are the collaborators the routes are served from. Worker and Jobs are
// optional; without them the job and webhook routes are not mounted. Metrics
// is mounted at /metrics when set.
type Deps struct {
	DB                handlers.Pinger
	Transactions      handlers.TransactionStore
	SubscriptionTypes handlers.SubscriptionTypeStore
	Subscriptions     handlers.UserSubscriptionLister
	Activator         handlers.StatusApplier
	Jobs              handlers.JobStore
	Worker            *worker.Worker
	Metrics           http.Handler
}

// Server wraps an http.Server with convenience helpers for startup/shutdown.
type Server struct {
	httpServer *http.Server
	worker     *worker.Worker
}

// New constructs an HTTP server using the provided configuration and dependencies.
func New(cfg config.Config, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/healthz", handlers.Health(deps.DB))
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	router.Route("/api", func(r chi.Router) {
		r.Post("/transactions", handlers.CreateTransaction(deps.Transactions, deps.SubscriptionTypes))
		r.Get("/transactions", handlers.ListTransactions(deps.Transactions))
		r.Get("/transactions/{id}", handlers.GetTransaction(deps.Transactions))
		r.Patch("/transactions/{id}/status", handlers.UpdateTransactionStatus(deps.Activator, cfg.ConflictRetries))
		r.Get("/transactions/{id}/events", handlers.TransactionEvents(deps.Transactions))

		r.Post("/subscription-types", handlers.CreateSubscriptionType(deps.SubscriptionTypes))
		r.Get("/subscription-types/{id}", handlers.GetSubscriptionType(deps.SubscriptionTypes))

		r.Get("/users/{userID}/subscriptions", handlers.UserSubscriptions(deps.Subscriptions))

		if deps.Worker != nil && deps.Jobs != nil {
			r.Post("/webhooks/payments", handlers.PaymentWebhook(deps.Worker))

			r.Get("/jobs", handlers.ListJobs(deps.Jobs))
			r.Get("/jobs/stats", handlers.GetJobStats(deps.Jobs))
			r.Get("/jobs/{id}", handlers.GetJob(deps.Jobs))
			r.Post("/jobs/{id}/cancel", handlers.CancelJob(deps.Jobs, deps.Worker))
		}
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, worker: deps.Worker}
}

// Start begins serving HTTP traffic and starts the worker.
func (s *Server) Start(ctx context.Context) error {
	if s.worker != nil {
		log.Println("[server] Starting job worker...")
		s.worker.Start(ctx)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and worker.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.worker != nil {
		log.Println("[server] Shutting down job worker...")
		if err := s.worker.Stop(ctx); err != nil {
			log.Printf("[server] Worker shutdown error: %v", err)
		}
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
