package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	Service    ServiceConfig
	DB         DBConfig
	Redis      RedisConfig
	Gateway    GatewayConfig
	Settlement SettlementConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"NOVAMART_APP_ENV" required:"true"`
	Port         string `envconfig:"NOVAMART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"NOVAMART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NOVAMART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"NOVAMART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"NOVAMART_DB_DSN"`
	Driver string `envconfig:"NOVAMART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"NOVAMART_DB_HOST"`
	LegacyPort     int    `envconfig:"NOVAMART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NOVAMART_DB_USER"`
	LegacyPassword string `envconfig:"NOVAMART_DB_PASSWORD"`
	LegacyName     string `envconfig:"NOVAMART_DB_NAME"`
	LegacySSLMode  string `envconfig:"NOVAMART_DB_SSLMODE" default:"disable"`

	AutoMigrate bool `envconfig:"NOVAMART_DB_AUTO_MIGRATE" default:"false"`

	MaxOpenConns    int           `envconfig:"NOVAMART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NOVAMART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NOVAMART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NOVAMART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"NOVAMART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NOVAMART_REDIS_ADDR"`
	Password     string        `envconfig:"NOVAMART_REDIS_PASSWORD"`
	DB           int           `envconfig:"NOVAMART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NOVAMART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NOVAMART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NOVAMART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NOVAMART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NOVAMART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// GatewayConfig holds credentials for the external crypto payment gateway.
type GatewayConfig struct {
	BaseURL     string        `envconfig:"NOVAMART_GATEWAY_BASE_URL"`
	APIKey      string        `envconfig:"NOVAMART_GATEWAY_API_KEY"`
	IPNSecret   string        `envconfig:"NOVAMART_GATEWAY_IPN_SECRET"`
	PayCurrency string        `envconfig:"NOVAMART_GATEWAY_PAY_CURRENCY" default:"btc"`
	HTTPTimeout time.Duration `envconfig:"NOVAMART_GATEWAY_HTTP_TIMEOUT" default:"10s"`
}

// SettlementConfig tunes the order settlement core.
type SettlementConfig struct {
	PaymentWindow           time.Duration `envconfig:"NOVAMART_SETTLEMENT_PAYMENT_WINDOW" default:"30m"`
	SweepInterval           time.Duration `envconfig:"NOVAMART_SETTLEMENT_SWEEP_INTERVAL" default:"5m"`
	DefaultWarehouseCode    string        `envconfig:"NOVAMART_SETTLEMENT_DEFAULT_WAREHOUSE" default:"main"`
	ReconciliationBatchSize int           `envconfig:"NOVAMART_SETTLEMENT_RECONCILE_BATCH" default:"100"`
	WebhookIdempotencyTTL   time.Duration `envconfig:"NOVAMART_SETTLEMENT_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	TimeoutSweepBatchSize   int           `envconfig:"NOVAMART_SETTLEMENT_SWEEP_BATCH" default:"200"`
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
