package config

const (
	EnvPrefix = "GEH"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "GEH_APP_ENV"
	EnvPort     = "GEH_APP_PORT"
	EnvLogLevel = "GEH_LOG_LEVEL"

	EnvDBDSN    = "GEH_DB_DSN"
	EnvDBDriver = "GEH_DB_DRIVER"
	EnvDBHost   = "GEH_DB_HOST"
	EnvDBUser   = "GEH_DB_USER"
	EnvDBName   = "GEH_DB_NAME"

	EnvRedisURL = "GEH_REDIS_URL"

	EnvJWTSecret = "GEH_JWT_SECRET"
	EnvJWTIssuer = "GEH_JWT_ISSUER"

	EnvStripeAPIKey = "GEH_STRIPE_API_KEY"
	EnvStripeSecret = "GEH_STRIPE_WEBHOOK_SECRET"

	EnvSilverYearlyPriceID = "GEH_STRIPE_SILVER_YEARLY_PRICE_ID"

	EnvReconcileSweepLimit   = "GEH_RECONCILE_SWEEP_LIMIT"
	EnvReconcileMaxLimit     = "GEH_RECONCILE_MAX_LIMIT"
	EnvReconcileEventTimeout = "GEH_RECONCILE_EVENT_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
