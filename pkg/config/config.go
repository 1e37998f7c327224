package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	Admin         AdminConfig
	HTTP          HTTPConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if cfg.JWT.ExpirationMinutes <= 0 {
		return nil, fmt.Errorf("%s must be positive", EnvJWTExpMins)
	}
	if strings.TrimSpace(cfg.Admin.DefaultUsername) == "" || cfg.Admin.DefaultPassword == "" {
		return nil, fmt.Errorf("%s and %s must not be blank", EnvAdminDefaultUsername, EnvAdminDefaultPassword)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LABSTOCK_APP_ENV" required:"true"`
	Port         string `envconfig:"LABSTOCK_APP_PORT" default:"3000"`
	LogLevel     string `envconfig:"LABSTOCK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LABSTOCK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DBConfig struct {
	Driver string `envconfig:"LABSTOCK_DB_DRIVER" default:"postgres"`
	DSN    string `envconfig:"LABSTOCK_DB_DSN"`

	Host     string `envconfig:"LABSTOCK_DB_HOST"`
	Port     int    `envconfig:"LABSTOCK_DB_PORT" default:"5432"`
	User     string `envconfig:"LABSTOCK_DB_USER"`
	Password string `envconfig:"LABSTOCK_DB_PASSWORD"`
	Name     string `envconfig:"LABSTOCK_DB_NAME"`
	SSLMode  string `envconfig:"LABSTOCK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LABSTOCK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LABSTOCK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LABSTOCK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LABSTOCK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"LABSTOCK_REDIS_URL"`
	Address      string        `envconfig:"LABSTOCK_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"LABSTOCK_REDIS_PASSWORD"`
	DB           int           `envconfig:"LABSTOCK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LABSTOCK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LABSTOCK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LABSTOCK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LABSTOCK_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"LABSTOCK_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"LABSTOCK_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"LABSTOCK_JWT_ISSUER" default:"labstock"`
	ExpirationMinutes      int    `envconfig:"LABSTOCK_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"LABSTOCK_REFRESH_TOKEN_TTL_MINUTES" default:"10080"`
}

func (j JWTConfig) AccessTokenTTL() time.Duration {
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"LABSTOCK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"LABSTOCK_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"LABSTOCK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"LABSTOCK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"LABSTOCK_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"LABSTOCK_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginUsernameLimit int           `envconfig:"LABSTOCK_AUTH_RATE_LIMIT_LOGIN_USERNAME_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"LABSTOCK_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

// AdminConfig seeds the first admin account when the admins table is empty.
type AdminConfig struct {
	DefaultUsername string `envconfig:"LABSTOCK_ADMIN_DEFAULT_USERNAME" default:"admin"`
	DefaultPassword string `envconfig:"LABSTOCK_ADMIN_DEFAULT_PASSWORD" default:"admin123"`
}

type HTTPConfig struct {
	MaxBodyBytes   int64         `envconfig:"LABSTOCK_HTTP_MAX_BODY_BYTES" default:"10485760"`
	AllowedOrigins []string      `envconfig:"LABSTOCK_HTTP_ALLOWED_ORIGINS" default:"*"`
	IdempotencyTTL time.Duration `envconfig:"LABSTOCK_HTTP_IDEMPOTENCY_TTL" default:"24h"`
	ShutdownGrace  time.Duration `envconfig:"LABSTOCK_HTTP_SHUTDOWN_GRACE" default:"10s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LABSTOCK_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	switch strings.ToLower(strings.TrimSpace(db.Driver)) {
	case DriverSQLite:
		if db.DSN == "" {
			db.DSN = "file:labstock.db?_foreign_keys=on"
		}
		return nil
	case DriverPostgres, "":
		db.Driver = DriverPostgres
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvDBDriver, DriverPostgres, DriverSQLite, db.Driver)
	}

	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range legacyDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
