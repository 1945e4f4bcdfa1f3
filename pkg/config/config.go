package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Shipping     ShippingConfig
	Checkout     CheckoutConfig
	Payments     PaymentsConfig
	PayOS        PayOSConfig
	Square       SquareConfig
	Cron         CronConfig
	PushGateway  PushGatewayConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Shipping.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARTSPLIT_APP_ENV" required:"true"`
	Port         string `envconfig:"CARTSPLIT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CARTSPLIT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"CARTSPLIT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"CARTSPLIT_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"CARTSPLIT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	// WebhookRateLimit caps webhook deliveries per client IP per minute.
	WebhookRateLimit int `envconfig:"CARTSPLIT_WEBHOOK_RATE_LIMIT" default:"120"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CARTSPLIT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"CARTSPLIT_DB_DSN"`

	LegacyHost     string `envconfig:"CARTSPLIT_DB_HOST"`
	LegacyPort     int    `envconfig:"CARTSPLIT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARTSPLIT_DB_USER"`
	LegacyPassword string `envconfig:"CARTSPLIT_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARTSPLIT_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARTSPLIT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARTSPLIT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARTSPLIT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARTSPLIT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARTSPLIT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"CARTSPLIT_DB_SLOW_QUERY" default:"500ms"`
	ConnectTimeout  time.Duration `envconfig:"CARTSPLIT_DB_CONNECT_TIMEOUT" default:"10s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CARTSPLIT_REDIS_URL"`
	Address      string        `envconfig:"CARTSPLIT_REDIS_ADDR"`
	Password     string        `envconfig:"CARTSPLIT_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARTSPLIT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARTSPLIT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARTSPLIT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARTSPLIT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARTSPLIT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARTSPLIT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CARTSPLIT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CARTSPLIT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CARTSPLIT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CARTSPLIT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"CARTSPLIT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"CARTSPLIT_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	// ConsumerLease bounds how long a crashed consumer blocks redelivery of an event it claimed.
	ConsumerLease time.Duration `envconfig:"CARTSPLIT_EVENTING_CONSUMER_LEASE" default:"2m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CARTSPLIT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CARTSPLIT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CARTSPLIT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic           string `envconfig:"CARTSPLIT_PUBSUB_ORDERS_TOPIC" default:"cs-order-events"`
	NotificationTopic     string `envconfig:"CARTSPLIT_PUBSUB_NOTIFICATION_TOPIC" default:"cs-notification-events"`
	AnalyticsTopic        string `envconfig:"CARTSPLIT_PUBSUB_ANALYTICS_TOPIC"`
	AnalyticsSubscription string `envconfig:"CARTSPLIT_PUBSUB_ANALYTICS_SUBSCRIPTION"`
}

// Subscriptions lists the configured subscription names.
func (p PubSubConfig) Subscriptions() []string {
	names := []string{}
	if trimmed := strings.TrimSpace(p.AnalyticsSubscription); trimmed != "" {
		names = append(names, trimmed)
	}
	return names
}

type BigQueryConfig struct {
	Dataset                string `envconfig:"CARTSPLIT_BIGQUERY_DATASET" default:"cartsplit"`
	FulfillmentEventsTable string `envconfig:"CARTSPLIT_BIGQUERY_FULFILLMENT_TABLE" default:"fulfillment_events"`
	// CreateMissing creates absent tables from the row schema instead of failing at boot.
	CreateMissing bool `envconfig:"CARTSPLIT_BIGQUERY_CREATE_MISSING" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CARTSPLIT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CARTSPLIT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CARTSPLIT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// Published rows and the DLQ are pruned by the cron worker.
	Retention    time.Duration `envconfig:"CARTSPLIT_OUTBOX_RETENTION" default:"720h"`
	DLQRetention time.Duration `envconfig:"CARTSPLIT_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

// ShippingConfig holds the fixed fee tiers and rush pricing parameters.
// Amounts are in the store currency's minor unit.
type ShippingConfig struct {
	StandardInRegion  int64   `envconfig:"CARTSPLIT_SHIPPING_STANDARD_IN_REGION" default:"20000"`
	StandardOutRegion int64   `envconfig:"CARTSPLIT_SHIPPING_STANDARD_OUT_REGION" default:"35000"`
	ExpressInRegion   int64   `envconfig:"CARTSPLIT_SHIPPING_EXPRESS_IN_REGION" default:"35000"`
	ExpressOutRegion  int64   `envconfig:"CARTSPLIT_SHIPPING_EXPRESS_OUT_REGION" default:"55000"`
	RegionThresholdKm float64 `envconfig:"CARTSPLIT_SHIPPING_REGION_THRESHOLD_KM" default:"30"`

	RushBase       int64   `envconfig:"CARTSPLIT_SHIPPING_RUSH_BASE" default:"25000"`
	RushIncludedKm float64 `envconfig:"CARTSPLIT_SHIPPING_RUSH_INCLUDED_KM" default:"2"`
	RushPerKm      int64   `envconfig:"CARTSPLIT_SHIPPING_RUSH_PER_KM" default:"5000"`
	RushMinKm      float64 `envconfig:"CARTSPLIT_SHIPPING_RUSH_MIN_KM" default:"1"`
	RushMaxKm      float64 `envconfig:"CARTSPLIT_SHIPPING_RUSH_MAX_KM" default:"30"`
	RushFallbackKm float64 `envconfig:"CARTSPLIT_SHIPPING_RUSH_FALLBACK_KM" default:"5"`
}

func (s ShippingConfig) validate() error {
	if s.RushMinKm < 0 || s.RushMaxKm < s.RushMinKm {
		return fmt.Errorf("rush distance bounds invalid: min=%v max=%v", s.RushMinKm, s.RushMaxKm)
	}
	if s.RegionThresholdKm <= 0 {
		return fmt.Errorf("region threshold must be positive")
	}
	return nil
}

type CheckoutConfig struct {
	PaymentDeadline time.Duration `envconfig:"CARTSPLIT_CHECKOUT_PAYMENT_DEADLINE" default:"24h"`
}

type PaymentsConfig struct {
	RetryWindow     time.Duration `envconfig:"CARTSPLIT_PAYMENTS_RETRY_WINDOW" default:"10h"`
	MaxLinkAttempts int           `envconfig:"CARTSPLIT_PAYMENTS_MAX_LINK_ATTEMPTS" default:"3"`
	LinkTTL         time.Duration `envconfig:"CARTSPLIT_PAYMENTS_LINK_TTL" default:"15m"`
	ReturnURL       string        `envconfig:"CARTSPLIT_PAYMENTS_RETURN_URL"`
	CancelURL       string        `envconfig:"CARTSPLIT_PAYMENTS_CANCEL_URL"`
	SyncLookback    time.Duration `envconfig:"CARTSPLIT_PAYMENTS_SYNC_LOOKBACK" default:"10h"`
	SyncBatchSize   int           `envconfig:"CARTSPLIT_PAYMENTS_SYNC_BATCH_SIZE" default:"100"`
}

type PayOSConfig struct {
	BaseURL     string `envconfig:"CARTSPLIT_PAYOS_BASE_URL" default:"https://api-merchant.payos.vn"`
	ClientID    string `envconfig:"CARTSPLIT_PAYOS_CLIENT_ID"`
	APIKey      string `envconfig:"CARTSPLIT_PAYOS_API_KEY"`
	ChecksumKey string `envconfig:"CARTSPLIT_PAYOS_CHECKSUM_KEY"`
}

// Enabled reports whether bank-transfer links can be issued.
func (p PayOSConfig) Enabled() bool {
	return strings.TrimSpace(p.ClientID) != "" && strings.TrimSpace(p.APIKey) != "" && strings.TrimSpace(p.ChecksumKey) != ""
}

type SquareConfig struct {
	AccessToken         string `envconfig:"CARTSPLIT_SQUARE_ACCESS_TOKEN"`
	LocationID          string `envconfig:"CARTSPLIT_SQUARE_LOCATION_ID"`
	WebhookSignatureKey string `envconfig:"CARTSPLIT_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	NotificationURL     string `envconfig:"CARTSPLIT_SQUARE_NOTIFICATION_URL"`
	Currency            string `envconfig:"CARTSPLIT_SQUARE_CURRENCY" default:"VND"`
	Env                 string `envconfig:"CARTSPLIT_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Enabled reports whether card payments can be charged.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"CARTSPLIT_CRON_INTERVAL" default:"5m"`
	JobTimeout time.Duration `envconfig:"CARTSPLIT_CRON_JOB_TIMEOUT" default:"2m"`
	LockTTL    time.Duration `envconfig:"CARTSPLIT_CRON_LOCK_TTL" default:"10m"`
}

type PushGatewayConfig struct {
	Port           string   `envconfig:"CARTSPLIT_PUSH_GATEWAY_PORT" default:"8088"`
	AllowedOrigins []string `envconfig:"CARTSPLIT_PUSH_GATEWAY_ALLOWED_ORIGINS"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
