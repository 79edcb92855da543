package config

const (
	EnvPrefix = "CREDSTOCK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"
)

const (
	EnvAppEnv   = "CREDSTOCK_APP_ENV"
	EnvPort     = "CREDSTOCK_APP_PORT"
	EnvLogLevel = "CREDSTOCK_LOG_LEVEL"

	EnvDBDSN    = "CREDSTOCK_DB_DSN"
	EnvDBDriver = "CREDSTOCK_DB_DRIVER"
	EnvDBPath   = "CREDSTOCK_DB_PATH"

	EnvRedisURL  = "CREDSTOCK_REDIS_URL"
	EnvRedisAddr = "CREDSTOCK_REDIS_ADDR"

	EnvFulfillmentMaxQuantity = "CREDSTOCK_FULFILLMENT_MAX_QUANTITY"

	EnvLifecycleInterval     = "CREDSTOCK_LIFECYCLE_INTERVAL"
	EnvLifecycleMigrationAge = "CREDSTOCK_LIFECYCLE_MIGRATION_AGE"
	EnvLifecycleExpiryAge    = "CREDSTOCK_LIFECYCLE_EXPIRY_AGE"
	EnvLifecycleSource       = "CREDSTOCK_LIFECYCLE_SOURCE_INVENTORY_ID"
	EnvLifecycleDestination  = "CREDSTOCK_LIFECYCLE_DESTINATION_INVENTORY_ID"

	EnvSchedulerEnabled = "CREDSTOCK_SCHEDULER_ENABLED"

	EnvAlertsThreshold   = "CREDSTOCK_ALERTS_THRESHOLD"
	EnvAlertsInventoryID = "CREDSTOCK_ALERTS_INVENTORY_ID"

	EnvTelegramBotToken = "CREDSTOCK_TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID   = "CREDSTOCK_TELEGRAM_CHAT_ID"
	EnvTelegramEnabled  = "CREDSTOCK_TELEGRAM_ENABLED"

	EnvAdminTokenHash = "CREDSTOCK_ADMIN_TOKEN_HASH"

	EnvRateLimitAdminWindow = "CREDSTOCK_RATE_LIMIT_ADMIN_WINDOW"
	EnvRateLimitAdminLimit  = "CREDSTOCK_RATE_LIMIT_ADMIN_LIMIT"
)
