package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/trustflowpay/internal/config"
	"github.com/noah-isme/trustflowpay/internal/obs"
	"github.com/noah-isme/trustflowpay/internal/order"
	"github.com/noah-isme/trustflowpay/internal/payment"
	"github.com/noah-isme/trustflowpay/internal/queue"
	"github.com/noah-isme/trustflowpay/internal/resilience"
)

// Dependencies holds the infrastructure shared by the API and the worker.
type Dependencies struct {
	Config   *config.Config
	Logger   zerolog.Logger
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Orders   *order.PGStore
	Registry *prometheus.Registry
	Settings payment.Settings

	shutdownTracer func(context.Context) error
}

// Options tunes what Open sets up.
type Options struct {
	Service string
	// Migrate applies the embedded order schema before the pool is opened.
	Migrate bool
}

// Open connects to Postgres and Redis, installs tracing and builds the
// metrics registry. Close releases everything Open acquired.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Logger: logger, Settings: cfg.PaymentSettings()}

	shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   cfg.OTelServiceName + "-" + opts.Service,
		Endpoint:      cfg.OTelEndpoint,
		Exporter:      cfg.OTelExporter,
		SamplingRatio: cfg.OTelSampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	d.shutdownTracer = shutdown

	if opts.Migrate {
		if err := order.Migrate(cfg.DatabaseURL); err != nil {
			d.Close(ctx)
			return nil, err
		}
		logger.Info().Msg("order schema up to date")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		d.Close(ctx)
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns > 0 {
		poolCfg.MinConns = cfg.DBMinConns
	}
	poolCfg.ConnConfig.Tracer = obs.PGXTracer{}
	d.DB, err = pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		d.Close(ctx)
		return nil, fmt.Errorf("open database: %w", err)
	}
	d.Orders = order.NewPGStore(d.DB)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		d.Close(ctx)
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	d.Redis = redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(d.Redis); err != nil {
		logger.Warn().Err(err).Msg("redis tracing not installed")
	}

	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, d.Registry)
	resilience.RegisterMetrics(d.Registry)
	if err := queue.RegisterMetrics(d.Registry); err != nil {
		d.Close(ctx)
		return nil, fmt.Errorf("register queue metrics: %w", err)
	}
	return d, nil
}

// PaymentLogger is the payment component logger, at debug level when
// TFP_DEBUG is set.
func (d *Dependencies) PaymentLogger() zerolog.Logger {
	return obs.Component(d.Logger, "payment", d.Config.Debug)
}

// Reconciler builds the outcome reconciler over the order store.
func (d *Dependencies) Reconciler() *payment.Reconciler {
	return &payment.Reconciler{Store: d.Orders, SuccessStatus: d.Settings.SuccessStatus, Logger: d.PaymentLogger()}
}

// Authenticator builds the inbound message authenticator.
func (d *Dependencies) Authenticator() payment.Authenticator {
	return payment.Authenticator{Settings: d.Settings, Store: d.Orders, Logger: d.PaymentLogger()}
}

// Enquirer builds the status enquiry client behind a circuit breaker.
func (d *Dependencies) Enquirer() *payment.StatusEnquirer {
	breaker := resilience.NewBreaker(d.Config.BreakerMinRequests, d.Config.BreakerFailureRatio, d.Config.BreakerOpenFor).
		WithTarget("trustflowpay_status_enquiry").
		WithLogger(d.Logger)
	return &payment.StatusEnquirer{
		Auth:       d.Authenticator(),
		Reconciler: d.Reconciler(),
		Client:     resilience.NewHTTPClient(d.Config.EnquiryTimeout, breaker),
	}
}

// Close releases connections and flushes spans.
func (d *Dependencies) Close(ctx context.Context) {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			d.Logger.Warn().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	if d.shutdownTracer != nil {
		if err := d.shutdownTracer(ctx); err != nil {
			d.Logger.Warn().Err(err).Msg("shutdown tracer")
		}
	}
}
