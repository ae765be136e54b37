package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Circulation  CirculationConfig
	FeatureFlags FeatureFlagsConfig
	Cron         CronConfig
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
	Env          string `envconfig:"LIBRARIA_APP_ENV" required:"true"`
	Port         string `envconfig:"LIBRARIA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LIBRARIA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LIBRARIA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LIBRARIA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LIBRARIA_DB_DSN"`
	Driver string `envconfig:"LIBRARIA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LIBRARIA_DB_HOST"`
	LegacyPort     int    `envconfig:"LIBRARIA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LIBRARIA_DB_USER"`
	LegacyPassword string `envconfig:"LIBRARIA_DB_PASSWORD"`
	LegacyName     string `envconfig:"LIBRARIA_DB_NAME"`
	LegacySSLMode  string `envconfig:"LIBRARIA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LIBRARIA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LIBRARIA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LIBRARIA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LIBRARIA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LIBRARIA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LIBRARIA_REDIS_ADDR"`
	Password     string        `envconfig:"LIBRARIA_REDIS_PASSWORD"`
	DB           int           `envconfig:"LIBRARIA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LIBRARIA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LIBRARIA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LIBRARIA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LIBRARIA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LIBRARIA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CirculationConfig carries the lending policy constants consulted by the
// loan, reservation, and fine services.
type CirculationConfig struct {
	LoanPeriodDays     int             `envconfig:"LIBRARIA_LOAN_PERIOD_DAYS" default:"14"`
	MaxRenewals        int             `envconfig:"LIBRARIA_MAX_RENEWALS" default:"2"`
	PickupWindowDays   int             `envconfig:"LIBRARIA_PICKUP_WINDOW_DAYS" default:"3"`
	ReservationTTLDays int             `envconfig:"LIBRARIA_RESERVATION_TTL_DAYS" default:"30"`
	DailyFineRate      decimal.Decimal `envconfig:"LIBRARIA_DAILY_FINE_RATE" default:"1.00"`
	MaxFine            decimal.Decimal `envconfig:"LIBRARIA_MAX_FINE" default:"25.00"`
	LossProcessingFee  decimal.Decimal `envconfig:"LIBRARIA_LOSS_PROCESSING_FEE" default:"5.00"`
	FineBlockThreshold decimal.Decimal `envconfig:"LIBRARIA_FINE_BLOCK_THRESHOLD" default:"10.00"`
}

// LoanPeriod returns the configured loan period as a duration.
func (c CirculationConfig) LoanPeriod() time.Duration {
	return time.Duration(c.LoanPeriodDays) * 24 * time.Hour
}

// PickupWindow returns how long a fulfilled reservation holds its copy.
func (c CirculationConfig) PickupWindow() time.Duration {
	return time.Duration(c.PickupWindowDays) * 24 * time.Hour
}

// ReservationTTL returns how long a pending reservation waits before it lapses.
func (c CirculationConfig) ReservationTTL() time.Duration {
	return time.Duration(c.ReservationTTLDays) * 24 * time.Hour
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LIBRARIA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LIBRARIA_AUTO_MIGRATE" default:"false"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LIBRARIA_CRON_INTERVAL" default:"1h"`
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
