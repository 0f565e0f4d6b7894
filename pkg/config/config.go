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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Plans        PlansConfig
	Reconcile    ReconcileConfig
	Eventing     EventingConfig
	FeatureFlags FeatureFlagsConfig
	CORS         CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Reconcile.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GEH_APP_ENV" required:"true"`
	Port         string `envconfig:"GEH_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GEH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GEH_LOG_WARN_STACK" default:"false"`
	// PublicURL is the web origin checkout redirects return to.
	PublicURL string `envconfig:"GEH_APP_PUBLIC_URL" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"GEH_DB_DSN"`
	Driver string `envconfig:"GEH_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GEH_DB_HOST"`
	LegacyPort     int    `envconfig:"GEH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GEH_DB_USER"`
	LegacyPassword string `envconfig:"GEH_DB_PASSWORD"`
	LegacyName     string `envconfig:"GEH_DB_NAME"`
	LegacySSLMode  string `envconfig:"GEH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GEH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GEH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GEH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GEH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// UsesSQLite reports whether the store should be opened with the sqlite driver.
func (db DBConfig) UsesSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"GEH_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GEH_REDIS_ADDR"`
	Password     string        `envconfig:"GEH_REDIS_PASSWORD"`
	DB           int           `envconfig:"GEH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GEH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GEH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GEH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GEH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GEH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the tokens minted by the external auth provider.
type JWTConfig struct {
	Secret    string        `envconfig:"GEH_JWT_SECRET" required:"true"`
	Issuer    string        `envconfig:"GEH_JWT_ISSUER" required:"true"`
	AdminRole string        `envconfig:"GEH_JWT_ADMIN_ROLE" default:"admin"`
	Leeway    time.Duration `envconfig:"GEH_JWT_LEEWAY" default:"30s"`
}

type StripeConfig struct {
	APIKey string `envconfig:"GEH_STRIPE_API_KEY"`
	Secret string `envconfig:"GEH_STRIPE_WEBHOOK_SECRET"`
	Env    string `envconfig:"GEH_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// PlansConfig carries the listing tiers sold through checkout. Amounts are in minor units.
type PlansConfig struct {
	BronzeName           string `envconfig:"GEH_PLAN_BRONZE_NAME" default:"Bronze Listing (Basic)"`
	BronzeYearlyPriceID  string `envconfig:"GEH_STRIPE_BRONZE_YEARLY_PRICE_ID"`
	BronzeMonthlyPriceID string `envconfig:"GEH_STRIPE_BRONZE_MONTHLY_PRICE_ID"`
	BronzeYearlyAmount   int64  `envconfig:"GEH_PLAN_BRONZE_YEARLY_AMOUNT" default:"9999"`
	BronzeMonthlyAmount  int64  `envconfig:"GEH_PLAN_BRONZE_MONTHLY_AMOUNT" default:"999"`

	SilverName           string `envconfig:"GEH_PLAN_SILVER_NAME" default:"Silver Listing (Premium)"`
	SilverYearlyPriceID  string `envconfig:"GEH_STRIPE_SILVER_YEARLY_PRICE_ID"`
	SilverMonthlyPriceID string `envconfig:"GEH_STRIPE_SILVER_MONTHLY_PRICE_ID"`
	SilverYearlyAmount   int64  `envconfig:"GEH_PLAN_SILVER_YEARLY_AMOUNT" default:"14999"`
	SilverMonthlyAmount  int64  `envconfig:"GEH_PLAN_SILVER_MONTHLY_AMOUNT" default:"1499"`

	GoldName           string `envconfig:"GEH_PLAN_GOLD_NAME" default:"Gold Listing (Enterprise)"`
	GoldYearlyPriceID  string `envconfig:"GEH_STRIPE_GOLD_YEARLY_PRICE_ID"`
	GoldMonthlyPriceID string `envconfig:"GEH_STRIPE_GOLD_MONTHLY_PRICE_ID"`
	GoldYearlyAmount   int64  `envconfig:"GEH_PLAN_GOLD_YEARLY_AMOUNT" default:"19999"`
	GoldMonthlyAmount  int64  `envconfig:"GEH_PLAN_GOLD_MONTHLY_AMOUNT" default:"1999"`

	Currency string `envconfig:"GEH_PLAN_CURRENCY" default:"gbp"`
}

type ReconcileConfig struct {
	SweepLimit   int           `envconfig:"GEH_RECONCILE_SWEEP_LIMIT" default:"50"`
	MaxLimit     int           `envconfig:"GEH_RECONCILE_MAX_LIMIT" default:"100"`
	EventTimeout time.Duration `envconfig:"GEH_RECONCILE_EVENT_TIMEOUT" default:"15s"`
	Interval     time.Duration `envconfig:"GEH_RECONCILE_INTERVAL" default:"1h"`
}

func (r ReconcileConfig) validate() error {
	if r.SweepLimit <= 0 {
		return fmt.Errorf("%s must be positive", EnvReconcileSweepLimit)
	}
	if r.MaxLimit < r.SweepLimit {
		return fmt.Errorf("%s must be >= %s", EnvReconcileMaxLimit, EnvReconcileSweepLimit)
	}
	if r.EventTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvReconcileEventTimeout)
	}
	return nil
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"GEH_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"GEH_AUTO_MIGRATE" default:"false"`
	CronEnabled bool `envconfig:"GEH_CRON_ENABLED" default:"true"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"GEH_CORS_ALLOWED_ORIGINS" default:"*"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.UsesSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
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
