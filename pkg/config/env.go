package config

const (
	EnvPrefix = "LABSTOCK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "LABSTOCK_APP_ENV"
	EnvPort         = "LABSTOCK_APP_PORT"
	EnvLogLevel     = "LABSTOCK_LOG_LEVEL"
	EnvLogWarnStack = "LABSTOCK_LOG_WARN_STACK"

	EnvDBDriver   = "LABSTOCK_DB_DRIVER"
	EnvDBDSN      = "LABSTOCK_DB_DSN"
	EnvDBHost     = "LABSTOCK_DB_HOST"
	EnvDBPort     = "LABSTOCK_DB_PORT"
	EnvDBUser     = "LABSTOCK_DB_USER"
	EnvDBPassword = "LABSTOCK_DB_PASSWORD"
	EnvDBName     = "LABSTOCK_DB_NAME"
	EnvDBSSLMode  = "LABSTOCK_DB_SSLMODE"

	EnvRedisURL = "LABSTOCK_REDIS_URL"

	EnvJWTSecret              = "LABSTOCK_JWT_SECRET"
	EnvJWTIssuer              = "LABSTOCK_JWT_ISSUER"
	EnvJWTExpMins             = "LABSTOCK_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "LABSTOCK_REFRESH_TOKEN_TTL_MINUTES"

	EnvAdminDefaultUsername = "LABSTOCK_ADMIN_DEFAULT_USERNAME"
	EnvAdminDefaultPassword = "LABSTOCK_ADMIN_DEFAULT_PASSWORD"

	EnvHTTPMaxBodyBytes   = "LABSTOCK_HTTP_MAX_BODY_BYTES"
	EnvHTTPAllowedOrigins = "LABSTOCK_HTTP_ALLOWED_ORIGINS"

	EnvAutoMigrate = "LABSTOCK_AUTO_MIGRATE"
)

// legacyDBEnvVars must all be present when no DSN is configured for postgres.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
