package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/trustflowpay/internal/order"
	"github.com/noah-isme/trustflowpay/internal/payment"
)

// Gateway holds one TrustFlowPay credential set.
type Gateway struct {
	BaseURL      string `validate:"omitempty,url"`
	AppID        string
	SecretKey    string
	CurrencyCode string `validate:"omitempty,numeric,len=3"`
}

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string `validate:"required"`
	Port               string
	DatabaseURL        string `validate:"required"`
	RedisURL           string `validate:"required"`
	JWTSecret          string
	AdminAPIKeyHash    string
	CORSAllowedOrigins []string
	LogFormat          string `validate:"omitempty,oneof=json console text"`
	LogLevel           string

	TestMode         bool
	Sandbox          Gateway
	Production       Gateway
	SuccessStatus    string `validate:"oneof=processing completed"`
	DisplayMode      string `validate:"oneof=redirect iframe"`
	Debug            bool
	ReferencePrefix  string `validate:"max=20"`
	StoreName        string
	PublicBaseURL    string        `validate:"required,url"`
	EnquiryTimeout   time.Duration `validate:"gt=0"`
	ReplayTTL        time.Duration
	RequireHash      bool
	CheckoutPage     string
	ConfirmationPage string
	PayPage          string
	CancelPage       string

	BreakerMinRequests  int
	BreakerFailureRatio float64 `validate:"gte=0,lte=1"`
	BreakerOpenFor      time.Duration

	RateLimitWindow   time.Duration `validate:"gt=0"`
	RateLimitMax      int64         `validate:"gt=0"`
	EnquiryRateWindow time.Duration
	EnquiryRateMax    int
	BodyLimitBytes    int64 `validate:"gt=0"`
	IdempotencyTTL    time.Duration
	AdminTokenTTL     time.Duration
	PprofEnabled      bool
	PprofUser         string
	PprofPass         string
	SecurityHeaders   bool
	HSTSEnabled       bool

	WorkerSweepInterval time.Duration `validate:"gt=0"`
	WorkerBatchSize     int           `validate:"gt=0"`
	WorkerMinAge        time.Duration
	LockTTL             time.Duration `validate:"gt=0"`
	LockRetryBackoff    time.Duration
	QueueName           string `validate:"required"`
	QueueConcurrency    int    `validate:"gt=0"`
	QueueMaxAttempts    int    `validate:"gt=0"`
	WorkerMetricsAddr   string

	DBMaxConns int32
	DBMinConns int32

	OTelExporter     string `validate:"omitempty,oneof=otlp none off"`
	OTelEndpoint     string
	OTelSampleRatio  float64 `validate:"gte=0,lte=1"`
	OTelServiceName  string
	MetricsNamespace string
	MetricsBuckets   string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	publicBase := strings.TrimRight(strings.TrimSpace(k.String("TFP_PUBLIC_BASE_URL")), "/")
	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		AdminAPIKeyHash:    strings.TrimSpace(k.String("ADMIN_API_KEY_HASH")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		LogFormat:          strings.ToLower(valueOrDefault(k.String("OBS_LOG_FORMAT"), "json")),
		LogLevel:           valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),

		TestMode:         parseBool(k.String("TFP_TESTMODE"), true),
		Sandbox:          gateway(k, "TFP_SANDBOX_"),
		Production:       gateway(k, "TFP_PRODUCTION_"),
		SuccessStatus:    strings.ToLower(valueOrDefault(k.String("TFP_ORDER_SUCCESS_STATUS"), "processing")),
		DisplayMode:      strings.ToLower(valueOrDefault(k.String("TFP_CHECKOUT_DISPLAY_MODE"), "redirect")),
		Debug:            parseBool(k.String("TFP_DEBUG"), false),
		ReferencePrefix:  valueOrDefault(k.String("TFP_REFERENCE_PREFIX"), "TFP"),
		StoreName:        valueOrDefault(k.String("TFP_STORE_NAME"), "Store"),
		PublicBaseURL:    publicBase,
		EnquiryTimeout:   parseDuration(k.String("TFP_ENQUIRY_TIMEOUT"), "30s"),
		ReplayTTL:        parseDuration(k.String("TFP_WEBHOOK_REPLAY_TTL"), "24h"),
		RequireHash:      parseBool(k.String("TFP_REQUIRE_HASH"), false),
		CheckoutPage:     valueOrDefault(k.String("TFP_CHECKOUT_PAGE_URL"), publicBase+"/checkout"),
		ConfirmationPage: valueOrDefault(k.String("TFP_CONFIRMATION_PAGE_URL"), publicBase+"/checkout/order-received/{order_id}"),
		PayPage:          valueOrDefault(k.String("TFP_PAY_PAGE_URL"), publicBase+"/checkout/order-pay/{order_id}"),
		CancelPage:       valueOrDefault(k.String("TFP_CANCEL_PAGE_URL"), publicBase+"/cart"),

		BreakerMinRequests:  parseInt(k.String("TFP_BREAKER_MIN_REQUESTS"), 10),
		BreakerFailureRatio: parseFloat(k.String("TFP_BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("TFP_BREAKER_OPEN_FOR"), "30s"),

		RateLimitWindow:   parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:      int64(parseInt(k.String("RATE_LIMIT_MAX"), 60)),
		EnquiryRateWindow: parseDuration(k.String("ENQUIRY_RATE_WINDOW"), "1m"),
		EnquiryRateMax:    parseInt(k.String("ENQUIRY_RATE_MAX"), 6),
		BodyLimitBytes:    int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		AdminTokenTTL:     parseDuration(k.String("ADMIN_TOKEN_TTL"), "1h"),
		PprofEnabled:      parseBool(k.String("OBS_ENABLE_PPROF"), false),
		PprofUser:         strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:         k.String("SECURE_PPROF_BASIC_AUTH_PASS"),
		SecurityHeaders:   parseBool(k.String("SECURITY_HEADERS_ENABLED"), true),
		HSTSEnabled:       parseBool(k.String("SECURITY_HSTS_ENABLED"), false),

		WorkerSweepInterval: parseDuration(k.String("WORKER_SWEEP_INTERVAL"), "5m"),
		WorkerBatchSize:     parseInt(k.String("WORKER_BATCH_SIZE"), 50),
		WorkerMinAge:        parseDuration(k.String("WORKER_MIN_AGE"), "2m"),
		LockTTL:             parseDuration(k.String("LOCK_TTL"), "1m"),
		LockRetryBackoff:    parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		QueueName:           valueOrDefault(k.String("QUEUE_NAME"), "payments"),
		QueueConcurrency:    parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		QueueMaxAttempts:    parseInt(k.String("QUEUE_MAX_ATTEMPTS"), 5),
		WorkerMetricsAddr:   valueOrDefault(k.String("WORKER_METRICS_ADDR"), ":9091"),

		DBMaxConns: int32(parseInt(k.String("DB_MAX_CONNS"), 10)),
		DBMinConns: int32(parseInt(k.String("DB_MIN_CONNS"), 1)),

		OTelExporter:     strings.ToLower(valueOrDefault(k.String("OTEL_EXPORTER"), "none")),
		OTelEndpoint:     k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTelSampleRatio:  parseFloat(k.String("OTEL_TRACES_SAMPLER_ARG"), 1),
		OTelServiceName:  valueOrDefault(k.String("OTEL_SERVICE_NAME"), "trustflowpay"),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "trustflowpay"),
		MetricsBuckets:   k.String("OBS_HTTP_BUCKETS_MS"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	active := cfg.Credentials()
	if active.BaseURL == "" || active.AppID == "" || active.SecretKey == "" {
		return nil, fmt.Errorf("%s credentials require BASE_URL, APP_ID and SECRET_KEY", active.Environment)
	}
	return cfg, nil
}

func gateway(k *koanf.Koanf, prefix string) Gateway {
	return Gateway{
		BaseURL:      strings.TrimRight(strings.TrimSpace(k.String(prefix+"BASE_URL")), "/"),
		AppID:        strings.TrimSpace(k.String(prefix + "APP_ID")),
		SecretKey:    k.String(prefix + "SECRET_KEY"),
		CurrencyCode: valueOrDefault(k.String(prefix+"CURRENCY_CODE"), "356"),
	}
}

// Credentials returns the credential set selected by TFP_TESTMODE.
func (c *Config) Credentials() payment.Credentials {
	return c.PaymentSettings().Active()
}

// PaymentSettings assembles the merchant settings passed to the payment
// components.
func (c *Config) PaymentSettings() payment.Settings {
	return payment.Settings{
		TestMode:        c.TestMode,
		Sandbox:         c.Sandbox.credentials(payment.EnvSandbox),
		Production:      c.Production.credentials(payment.EnvProduction),
		SuccessStatus:   order.Status(c.SuccessStatus),
		DisplayMode:     payment.DisplayMode(c.DisplayMode),
		ReferencePrefix: c.ReferencePrefix,
		StoreName:       c.StoreName,
		PublicBaseURL:   c.PublicBaseURL,
		RequireHash:     c.RequireHash,
		Pages: payment.Pages{
			Checkout:     c.CheckoutPage,
			Confirmation: c.ConfirmationPage,
			Pay:          c.PayPage,
			Cancel:       c.CancelPage,
		},
	}
}

func (g Gateway) credentials(envName payment.Environment) payment.Credentials {
	return payment.Credentials{
		Environment:  envName,
		BaseURL:      g.BaseURL,
		AppID:        g.AppID,
		SecretKey:    g.SecretKey,
		CurrencyCode: g.CurrencyCode,
	}
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func parseInt(value string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return n
}

func parseFloat(value string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return def
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
