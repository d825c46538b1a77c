package config

// EnvPrefix is passed to envconfig; individual fields carry explicit names.
const EnvPrefix = "NOVAMART"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "NOVAMART_APP_ENV"
	EnvPort     = "NOVAMART_APP_PORT"
	EnvDBDSN    = "NOVAMART_DB_DSN"
	EnvDBHost   = "NOVAMART_DB_HOST"
	EnvDBUser   = "NOVAMART_DB_USER"
	EnvDBName   = "NOVAMART_DB_NAME"
	EnvRedisURL = "NOVAMART_REDIS_URL"

	EnvGatewayBaseURL = "NOVAMART_GATEWAY_BASE_URL"
	EnvGatewayAPIKey  = "NOVAMART_GATEWAY_API_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
