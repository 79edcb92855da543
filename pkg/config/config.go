package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Fulfillment  FulfillmentConfig
	Lifecycle    LifecycleConfig
	Scheduler    SchedulerConfig
	Alerts       AlertsConfig
	Telegram     TelegramConfig
	CountCache   CountCacheConfig
	RateLimit    RateLimitConfig
	Admin        AdminConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Lifecycle.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CREDSTOCK_APP_ENV" required:"true"`
	Port         string `envconfig:"CREDSTOCK_APP_PORT" default:"3000"`
	LogLevel     string `envconfig:"CREDSTOCK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CREDSTOCK_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"CREDSTOCK_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CREDSTOCK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CREDSTOCK_DB_DSN"`
	Driver string `envconfig:"CREDSTOCK_DB_DRIVER" default:"sqlite"`
	Path   string `envconfig:"CREDSTOCK_DB_PATH" default:"data/credstock.db"`

	MaxOpenConns    int           `envconfig:"CREDSTOCK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CREDSTOCK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CREDSTOCK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CREDSTOCK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"CREDSTOCK_DB_SLOW_QUERY" default:"250ms"`
}

// IsSQLite reports whether the store runs on the embedded SQLite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"CREDSTOCK_REDIS_URL"`
	Address      string        `envconfig:"CREDSTOCK_REDIS_ADDR"`
	Password     string        `envconfig:"CREDSTOCK_REDIS_PASSWORD"`
	DB           int           `envconfig:"CREDSTOCK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CREDSTOCK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CREDSTOCK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CREDSTOCK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CREDSTOCK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CREDSTOCK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FulfillmentConfig struct {
	MaxQuantity         int           `envconfig:"CREDSTOCK_FULFILLMENT_MAX_QUANTITY" default:"100"`
	NotificationTimeout time.Duration `envconfig:"CREDSTOCK_FULFILLMENT_NOTIFICATION_TIMEOUT" default:"10s"`
}

type LifecycleConfig struct {
	Interval               time.Duration `envconfig:"CREDSTOCK_LIFECYCLE_INTERVAL" default:"1h"`
	MigrationAge           time.Duration `envconfig:"CREDSTOCK_LIFECYCLE_MIGRATION_AGE" default:"72h"`
	ExpiryAge              time.Duration `envconfig:"CREDSTOCK_LIFECYCLE_EXPIRY_AGE" default:"240h"`
	SourceInventoryID      int64         `envconfig:"CREDSTOCK_LIFECYCLE_SOURCE_INVENTORY_ID" default:"1"`
	DestinationInventoryID int64         `envconfig:"CREDSTOCK_LIFECYCLE_DESTINATION_INVENTORY_ID" default:"3"`
	BatchSize              int           `envconfig:"CREDSTOCK_LIFECYCLE_BATCH_SIZE" default:"500"`
}

func (l LifecycleConfig) validate() error {
	if l.SourceInventoryID <= 0 || l.DestinationInventoryID <= 0 {
		return fmt.Errorf("%s and %s must be positive", EnvLifecycleSource, EnvLifecycleDestination)
	}
	if l.SourceInventoryID == l.DestinationInventoryID {
		return fmt.Errorf("%s must differ from %s", EnvLifecycleSource, EnvLifecycleDestination)
	}
	if l.MigrationAge <= 0 {
		return fmt.Errorf("%s must be positive", EnvLifecycleMigrationAge)
	}
	if l.ExpiryAge <= 0 {
		return fmt.Errorf("%s must be positive", EnvLifecycleExpiryAge)
	}
	return nil
}

type SchedulerConfig struct {
	Enabled bool `envconfig:"CREDSTOCK_SCHEDULER_ENABLED" default:"true"`
}

type AlertsConfig struct {
	Threshold   int64 `envconfig:"CREDSTOCK_ALERTS_THRESHOLD" default:"10"`
	InventoryID int64 `envconfig:"CREDSTOCK_ALERTS_INVENTORY_ID" default:"1"`
}

// Bucket returns the watched inventory, or nil when every inventory is counted.
func (a AlertsConfig) Bucket() *int64 {
	if a.InventoryID <= 0 {
		return nil
	}
	id := a.InventoryID
	return &id
}

type TelegramConfig struct {
	BotToken   string `envconfig:"CREDSTOCK_TELEGRAM_BOT_TOKEN"`
	ChatID     string `envconfig:"CREDSTOCK_TELEGRAM_CHAT_ID"`
	Enabled    bool   `envconfig:"CREDSTOCK_TELEGRAM_ENABLED" default:"false"`
	Header     string `envconfig:"CREDSTOCK_TELEGRAM_HEADER"`
	Footer     string `envconfig:"CREDSTOCK_TELEGRAM_FOOTER"`
	Timezone   string `envconfig:"CREDSTOCK_TELEGRAM_TIMEZONE" default:"Asia/Bangkok"`
	BaseURL    string `envconfig:"CREDSTOCK_TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	MaxRetries int    `envconfig:"CREDSTOCK_TELEGRAM_MAX_RETRIES" default:"2"`
}

type CountCacheConfig struct {
	TTL time.Duration `envconfig:"CREDSTOCK_COUNT_CACHE_TTL" default:"30s"`
}

type RateLimitConfig struct {
	Window time.Duration `envconfig:"CREDSTOCK_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"CREDSTOCK_RATE_LIMIT_LIMIT" default:"100"`

	AdminWindow time.Duration `envconfig:"CREDSTOCK_RATE_LIMIT_ADMIN_WINDOW" default:"1m"`
	AdminLimit  int           `envconfig:"CREDSTOCK_RATE_LIMIT_ADMIN_LIMIT" default:"60"`
}

type AdminConfig struct {
	TokenHash        string `envconfig:"CREDSTOCK_ADMIN_TOKEN_HASH"`
	ArgonMemoryKB    int    `envconfig:"CREDSTOCK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int    `envconfig:"CREDSTOCK_ARGON_TIME" default:"3"`
	ArgonParallelism int    `envconfig:"CREDSTOCK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int    `envconfig:"CREDSTOCK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int    `envconfig:"CREDSTOCK_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CREDSTOCK_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if !db.IsSQLite() {
		return fmt.Errorf("%s is required for driver %q", EnvDBDSN, db.Driver)
	}
	if strings.TrimSpace(db.Path) == "" {
		return fmt.Errorf("either %s or %s is required", EnvDBDSN, EnvDBPath)
	}
	db.DSN = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", db.Path)
	return nil
}
