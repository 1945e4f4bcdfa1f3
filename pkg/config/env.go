package config

// EnvPrefix is passed to envconfig; every field also declares its full variable name.
const EnvPrefix = "CARTSPLIT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "CARTSPLIT_APP_ENV"
	EnvPort         = "CARTSPLIT_APP_PORT"
	EnvLogLevel     = "CARTSPLIT_LOG_LEVEL"
	EnvDBDSN        = "CARTSPLIT_DB_DSN"
	EnvDBHost       = "CARTSPLIT_DB_HOST"
	EnvDBUser       = "CARTSPLIT_DB_USER"
	EnvDBName       = "CARTSPLIT_DB_NAME"
	EnvRedisURL     = "CARTSPLIT_REDIS_URL"
	EnvJWTSecret    = "CARTSPLIT_JWT_SECRET"
	EnvJWTIssuer    = "CARTSPLIT_JWT_ISSUER"
	EnvJWTExpMins   = "CARTSPLIT_JWT_EXPIRATION_MINUTES"
	EnvGCPProjectID = "CARTSPLIT_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic           = "CARTSPLIT_PUBSUB_ORDERS_TOPIC"
	EnvPubSubNotificationTopic     = "CARTSPLIT_PUBSUB_NOTIFICATION_TOPIC"
	EnvPubSubAnalyticsTopic        = "CARTSPLIT_PUBSUB_ANALYTICS_TOPIC"
	EnvPubSubAnalyticsSubscription = "CARTSPLIT_PUBSUB_ANALYTICS_SUBSCRIPTION"

	EnvShippingStandardInRegion = "CARTSPLIT_SHIPPING_STANDARD_IN_REGION"
	EnvShippingRushPerKm        = "CARTSPLIT_SHIPPING_RUSH_PER_KM"
	EnvPaymentsMaxLinkAttempts  = "CARTSPLIT_PAYMENTS_MAX_LINK_ATTEMPTS"
	EnvPayOSChecksumKey         = "CARTSPLIT_PAYOS_CHECKSUM_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
