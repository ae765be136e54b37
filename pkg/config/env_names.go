package config

const (
	EnvPrefix = "libraria"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv   = "LIBRARIA_APP_ENV"
	EnvPort     = "LIBRARIA_APP_PORT"
	EnvDBDSN    = "LIBRARIA_DB_DSN"
	EnvDBHost   = "LIBRARIA_DB_HOST"
	EnvDBUser   = "LIBRARIA_DB_USER"
	EnvDBName   = "LIBRARIA_DB_NAME"
	EnvRedisURL = "LIBRARIA_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
