package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers understood by docstore.Open.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	StoreDriver      string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	MongoURI         string        `mapstructure:"MONGO_URI"`
	MongoDatabase    string        `mapstructure:"MONGO_DATABASE"`
	SQLitePath       string        `mapstructure:"SQLITE_PATH"`
	IdentityAPIKey   string        `mapstructure:"IDENTITY_API_KEY"`
	IdentityEndpoint string        `mapstructure:"IDENTITY_ENDPOINT"`
	IdentityTimeout  time.Duration `mapstructure:"IDENTITY_TIMEOUT"`
	SessionSecret    string        `mapstructure:"SESSION_SECRET"`
	SessionTTL       time.Duration `mapstructure:"SESSION_TTL"`
	SessionCookie    string        `mapstructure:"SESSION_COOKIE"`
	UsersCollection  string        `mapstructure:"USERS_COLLECTION"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	MetricsEnabled   bool          `mapstructure:"METRICS_ENABLED"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	AuditCollection  string        `mapstructure:"AUDIT_COLLECTION"`
	TrustProxy       bool          `mapstructure:"TRUST_PROXY"`
}

var envKeys = []string{
	"PORT", "ENV", "STORE_DRIVER",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MONGO_URI", "MONGO_DATABASE", "SQLITE_PATH",
	"IDENTITY_API_KEY", "IDENTITY_ENDPOINT", "IDENTITY_TIMEOUT",
	"SESSION_SECRET", "SESSION_TTL", "SESSION_COOKIE",
	"USERS_COLLECTION", "CORS_ORIGINS", "METRICS_ENABLED", "BODY_LIMIT",
	"REQUEST_TIMEOUT", "AUDIT_COLLECTION", "TRUST_PROXY",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MONGO_DATABASE", "hospital")
	v.SetDefault("SQLITE_PATH", "medadmin.db")
	v.SetDefault("IDENTITY_ENDPOINT", "https://identitytoolkit.googleapis.com/v1")
	v.SetDefault("IDENTITY_TIMEOUT", "10s")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("SESSION_COOKIE", "medadmin_session")
	v.SetDefault("USERS_COLLECTION", "users")
	v.SetDefault("CORS_ORIGINS", "http://localhost:8000")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("AUDIT_COLLECTION", "audit_log")
	v.SetDefault("TRUST_PROXY", false)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Session cookies are not marked Secure and a random")
		log.Println("WARNING: session secret is used when SESSION_SECRET is unset.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the selected store driver has its connection settings
// and that secrets required outside development are present.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER is %q", DriverMongo)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is %q", DriverSQLite)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of postgres, mongo, sqlite, memory; got %q", c.StoreDriver)
	}

	if c.IsDev() {
		return nil
	}
	if c.IdentityAPIKey == "" {
		return fmt.Errorf("IDENTITY_API_KEY is required outside development")
	}
	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes outside development, got %d", len(c.SessionSecret))
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}
