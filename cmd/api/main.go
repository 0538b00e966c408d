package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/mysafehouse/access-api/internal/http/handlers"
	httpmw "github.com/mysafehouse/access-api/internal/http/middleware"
	"github.com/mysafehouse/access-api/internal/notify"
	"github.com/mysafehouse/access-api/internal/platform/idempotency"
	"github.com/mysafehouse/access-api/internal/platform/mailer"
	"github.com/mysafehouse/access-api/internal/platform/sms"
	"github.com/mysafehouse/access-api/internal/repo/postgres"
	"github.com/mysafehouse/access-api/internal/service"
	"github.com/mysafehouse/access-api/pkg/config"
	"github.com/mysafehouse/access-api/pkg/database"
	"github.com/mysafehouse/access-api/pkg/events"
	"github.com/mysafehouse/access-api/pkg/logger"
	mw "github.com/mysafehouse/access-api/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Repositories
	propertyRepo := postgres.NewPropertyRepo(pool)
	contactRepo := postgres.NewContactRepo(pool)
	accessCodeRepo := postgres.NewAccessCodeRepo(pool)
	accessRequestRepo := postgres.NewAccessRequestRepo(pool)
	verificationRepo := postgres.NewVerificationRepo(pool)
	domainRuleRepo := postgres.NewDomainRuleRepo(pool)
	accessLogRepo := postgres.NewAccessLogRepo(pool)

	// Services
	registry := service.NewCodeRegistry(accessCodeRepo, propertyRepo, accessLogRepo, cfg)
	verifier := service.NewVerifier(verificationRepo, cfg)
	policy := service.NewDomainPolicy(domainRuleRepo)
	engine := service.NewRequestEngine(
		accessRequestRepo, accessCodeRepo, propertyRepo, accessLogRepo,
		registry, verifier, policy, eventBus, cfg,
	)

	// Notification dispatcher
	dispatcher := notify.NewDispatcher(propertyRepo, contactRepo, accessRequestRepo, buildMailer(cfg), buildSMS(cfg), cfg)
	if err := dispatcher.Subscribe(eventBus); err != nil {
		logger.Error("Failed to subscribe notification dispatcher", "error", err)
		os.Exit(1)
	}

	h := handlers.New(engine, registry, policy, accessLogRepo, propertyRepo, cfg)

	// Rate limit public request creation by client IP
	createLimiter := httpmw.NewRateLimiter(pool, httpmw.RateLimitConfig{
		Requests: cfg.Access.RateLimitRequests,
		Window:   cfg.Access.RateLimitWindow,
		KeyFunc:  httpmw.AccessRequestKeyFunc,
	})

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("access-api"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", mw.MetricsHandler())

	// Browser-facing decision links from notification emails
	r.Get("/access-requests/{id}/action", h.OwnerAction)

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Group(func(r chi.Router) {
			r.Use(createLimiter.Middleware())
			r.With(idempotencyMiddleware(cfg)).Post("/access-requests", h.CreateAccessRequest)
		})
		r.Post("/access-requests/verify", h.VerifyAccessRequest)
		r.Post("/access-codes/validate", h.ValidateAccessCode)
		r.Post("/domains/check", h.CheckDomain)

		// Owner endpoints
		r.Group(func(r chi.Router) {
			r.Use(httpmw.RequireJWT("owner", "admin"))
			r.Post("/access-requests/{id}/decide", h.DecideAccessRequest)
			r.Get("/access-requests/pending", h.ListPendingRequests)
			r.Post("/access-codes", h.GenerateAccessCode)
			r.Get("/properties/{id}/access-codes", h.ListAccessCodes)
			r.Get("/properties/{id}/access-codes/active", h.GetActiveAccessCode)
			r.Get("/properties/{id}/access-logs", h.ListAccessLogs)
		})

		// Admin endpoints
		r.Route("/admin/domains", func(r chi.Router) {
			r.Use(httpmw.RequireJWT("admin"))
			r.Get("/allowed", h.ListAllowedDomains)
			r.Post("/allowed", h.AddAllowedDomain)
			r.Put("/allowed/{id}", h.UpdateAllowedDomain)
			r.Delete("/allowed/{id}", h.DeleteAllowedDomain)
			r.Get("/blocked", h.ListBlockedDomains)
			r.Post("/blocked", h.AddBlockedDomain)
			r.Put("/blocked/{id}", h.UpdateBlockedDomain)
			r.Delete("/blocked/{id}", h.DeleteBlockedDomain)
		})
	})

	// Sweep pending requests past their deadline; reads also expire lazily,
	// this keeps listings and notifications honest.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepExpired(sweepCtx, engine)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down access-api...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Shutdown error", "error", err)
		}
	}()

	logger.Info("Starting access-api", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func buildMailer(cfg *config.Config) mailer.Service {
	if cfg.Email.DevMode {
		return mailer.NewDevMailer()
	}
	if cfg.Email.MailerSendKey != "" {
		return mailer.NewMailer(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
	}
	return mailer.NewSMTPMailer(
		cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom,
		cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS,
	)
}

func buildSMS(cfg *config.Config) sms.Sender {
	if s := sms.NewTwilioSender(cfg.SMS.TwilioAccountSID, cfg.SMS.TwilioAuthToken, cfg.SMS.TwilioFromNumber); s != nil {
		return s
	}
	return sms.NewDevSender()
}

// idempotencyMiddleware wires the Redis-backed store when Redis is
// reachable; otherwise creation runs unprotected rather than not at all.
func idempotencyMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	store, err := idempotency.NewRedisStore(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Idempotency store unavailable, continuing without it", "error", err)
		return func(next http.Handler) http.Handler { return next }
	}
	return mw.Idempotency(store)
}

func sweepExpired(ctx context.Context, engine service.RequestEngine) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := engine.ExpireStale(ctx)
			if err != nil {
				logger.Error("Failed to expire stale requests", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("Expired stale access requests", "count", n)
			}
		}
	}
}
