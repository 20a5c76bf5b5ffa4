package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/trustflowpay/internal/app"
	"github.com/noah-isme/trustflowpay/internal/auth"
	"github.com/noah-isme/trustflowpay/internal/common"
	"github.com/noah-isme/trustflowpay/internal/config"
	"github.com/noah-isme/trustflowpay/internal/health"
	"github.com/noah-isme/trustflowpay/internal/obs"
	"github.com/noah-isme/trustflowpay/internal/order"
	"github.com/noah-isme/trustflowpay/internal/payment"
	"github.com/noah-isme/trustflowpay/internal/queue"
	"github.com/noah-isme/trustflowpay/internal/ratelimit"
	"github.com/noah-isme/trustflowpay/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("service", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	deps, err := app.Open(startCtx, cfg, logger, app.Options{Service: "api", Migrate: true})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close(context.Background())

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.AdminTokenTTL)
	if err != nil {
		logger.Warn().Err(err).Msg("bearer tokens disabled for admin routes")
	}
	if tokens == nil && cfg.AdminAPIKeyHash == "" {
		logger.Warn().Msg("no admin credentials configured, admin routes will reject every request")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(cfg, deps, tokens, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Bool("test_mode", cfg.TestMode).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func newRouter(cfg *config.Config, deps *app.Dependencies, tokens *auth.Tokens, logger zerolog.Logger) http.Handler {
	settings := deps.Settings
	paymentLog := deps.PaymentLogger()
	reconciler := deps.Reconciler()
	authn := deps.Authenticator()
	enquirer := deps.Enquirer()

	paymentHandler := &payment.Handler{
		Builder:  &payment.RequestBuilder{Settings: settings, Store: deps.Orders, Logger: paymentLog},
		Enquirer: enquirer,
		Store:    deps.Orders,
		Settings: settings,
		View:     payment.NewCheckoutView(),
		Logger:   paymentLog,
	}
	returnHandler := payment.ReturnHandler{Auth: authn, Reconciler: reconciler}
	webhookHandler := payment.Webhook{Auth: authn, Reconciler: reconciler, Replay: deps.Redis, ReplayTTL: cfg.ReplayTTL}
	orderHandler := &order.Handler{Store: deps.Orders}
	orderAdmin := &order.AdminHandler{Store: deps.Orders}

	guard := auth.AdminGuard{Tokens: tokens, APIKeyHash: cfg.AdminAPIKeyHash}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	bodyLimit := security.BodyLimit{Max: cfg.BodyLimitBytes}

	publicLimit := ratelimit.Handler{OnError: func(err error) {
		logger.Warn().Err(err).Msg("rate limiter unavailable")
	}}
	if store, err := ratelimit.NewRedisStore(deps.Redis, "ratelimit:trustflowpay"); err != nil {
		logger.Error().Err(err).Msg("public rate limiting disabled")
	} else {
		publicLimit.Limiter = ratelimit.NewFixedWindow(store, cfg.RateLimitWindow, cfg.RateLimitMax)
		publicLimit.Key = ratelimit.ByClientIP("ip:")
	}
	enquiryLimit := ratelimit.Handler{
		Limiter: ratelimit.SlidingWindow{Client: deps.Redis, Prefix: "ratelimit:enquiry:", Window: cfg.EnquiryRateWindow, Max: cfg.EnquiryRateMax},
		Key:     ratelimit.ByURLParam("order:", "orderId"),
		OnError: publicLimit.OnError,
	}

	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), deps.Registry)
	headers := security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.HSTSEnabled}
	checkoutHeaders := headers
	checkoutHeaders.ContentSecurityPolicy = security.CheckoutPolicy(settings.Sandbox.BaseURL, settings.Production.BaseURL)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(obs.TracingMiddleware)
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.APIKeyHeader, common.IdempotencyHeader},
		ExposedHeaders:   []string{"X-Request-Id", "X-Total-Count"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry}))
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}

	healthHandler := health.Handler{Probes: map[string]health.Probe{
		"db":    health.Postgres(deps.DB),
		"redis": health.Redis(deps.Redis),
	}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Group(func(g chi.Router) {
		g.Use(headers.Middleware)
		g.Use(publicLimit.Middleware)
		g.Use(bodyLimit.Middleware)
		g.Get(payment.ReturnRoute, returnHandler.Handle)
		g.Post(payment.ReturnRoute, returnHandler.Handle)
		g.Post(payment.WebhookRoute, webhookHandler.Handle)
	})
	r.With(checkoutHeaders.Middleware).Get(payment.CheckoutRoute+"{orderId}", paymentHandler.Checkout)

	r.Route("/api/v1/admin", func(admin chi.Router) {
		admin.Use(headers.Middleware)
		admin.Use(bodyLimit.Middleware)
		admin.Use(guard.Middleware)
		admin.Get("/orders", orderHandler.List)
		admin.Get("/orders/{orderId}", orderHandler.Get)
		admin.Patch("/orders/{orderId}/status", orderAdmin.PatchStatus)
		admin.With(idem.Middleware).Post("/orders/{orderId}/payment-request", paymentHandler.CreateRequest)
		admin.With(enquiryLimit.Middleware).Post("/orders/{orderId}/status-enquiry", paymentHandler.StatusEnquiry)
		admin.Get("/orders/{orderId}/payment", paymentHandler.Snapshot)
		admin.Post("/orders/{orderId}/status-enquiry/schedule", scheduleEnquiry(cfg, deps, logger))
	})
	return r
}

// scheduleEnquiry queues a background enquiry for the worker instead of
// polling the gateway inline.
func scheduleEnquiry(cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger) http.HandlerFunc {
	client := asynq.NewClientFromRedisClient(deps.Redis)
	enqueuer := queue.Enqueuer{Client: client, Queue: cfg.QueueName, MaxAttempts: cfg.QueueMaxAttempts, Timeout: cfg.EnquiryTimeout + 10*time.Second}
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderId")
		o, err := deps.Orders.Get(r.Context(), orderID)
		if errors.Is(err, order.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
			return
		}
		if !payment.EnquiryAllowed(o) {
			common.JSONError(w, http.StatusConflict, "ENQUIRY_NOT_ALLOWED", "status enquiry is only available for pending or on-hold orders", nil)
			return
		}
		task, err := payment.NewStatusEnquiryTask(o.ID)
		if err == nil {
			err = enqueuer.Enqueue(r.Context(), task, payment.EnquiryTaskKey(o))
		}
		if err != nil {
			logger.Error().Err(err).Str("order_id", o.ID).Msg("schedule status enquiry")
			common.JSONError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "could not schedule enquiry", nil)
			return
		}
		common.JSON(w, http.StatusAccepted, map[string]any{"orderId": o.ID, "scheduled": true})
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
