package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the roster service.
type Config struct {
	AppName                 string
	AppEnv                  string
	AppPort                 string
	LogLevel                string
	DatabaseDriver          string
	DatabaseURL             string
	SQLitePath              string
	DatabaseMaxOpenConns    int
	DatabaseMaxIdleConns    int
	DatabaseConnMaxLifetime time.Duration
	RedisURL                string
	NATSURL                 string
	NATSSubject             string
	CacheTTL                time.Duration
	MaxUploadMB             int
	InsertBatchSize         int
	MaxRejectionSamples     int
	StrictScoreBounds       bool
	DefaultPageLimit        int
	MaxPageLimit            int
	GenerationRetention     time.Duration
	UploadsPerMinute        int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ROSTER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Grade Roster API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "5000")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sqlite_path", "roster.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("nats.subject", "roster")
	v.SetDefault("cache.ttl", "2m")
	v.SetDefault("ingest.max_upload_mb", 10)
	v.SetDefault("ingest.insert_batch_size", 500)
	v.SetDefault("ingest.max_rejection_samples", 20)
	v.SetDefault("ingest.strict_score_bounds", false)
	v.SetDefault("query.default_limit", 50)
	v.SetDefault("query.max_limit", 500)
	v.SetDefault("store.generation_retention", "1m")
	v.SetDefault("rate_limit.uploads_per_minute", 10)

	cacheTTL, err := parseDuration(v, "cache.ttl")
	if err != nil {
		return Config{}, err
	}
	retention, err := parseDuration(v, "store.generation_retention")
	if err != nil {
		return Config{}, err
	}
	connLifetime, err := parseDuration(v, "database.conn_max_lifetime")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                 v.GetString("app.name"),
		AppEnv:                  v.GetString("app.env"),
		AppPort:                 v.GetString("app.port"),
		LogLevel:                strings.ToLower(v.GetString("log.level")),
		DatabaseDriver:          strings.ToLower(v.GetString("database.driver")),
		DatabaseURL:             v.GetString("database.url"),
		SQLitePath:              v.GetString("database.sqlite_path"),
		DatabaseMaxOpenConns:    v.GetInt("database.max_open_conns"),
		DatabaseMaxIdleConns:    v.GetInt("database.max_idle_conns"),
		DatabaseConnMaxLifetime: connLifetime,
		RedisURL:                v.GetString("redis.url"),
		NATSURL:                 v.GetString("nats.url"),
		NATSSubject:             v.GetString("nats.subject"),
		CacheTTL:                cacheTTL,
		MaxUploadMB:             v.GetInt("ingest.max_upload_mb"),
		InsertBatchSize:         v.GetInt("ingest.insert_batch_size"),
		MaxRejectionSamples:     v.GetInt("ingest.max_rejection_samples"),
		StrictScoreBounds:       v.GetBool("ingest.strict_score_bounds"),
		DefaultPageLimit:        v.GetInt("query.default_limit"),
		MaxPageLimit:            v.GetInt("query.max_limit"),
		GenerationRetention:     retention,
		UploadsPerMinute:        v.GetInt("rate_limit.uploads_per_minute"),
	}

	switch cfg.DatabaseDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("database url must be provided for the postgres driver")
		}
	case "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 10
	}

	if cfg.DefaultPageLimit <= 0 {
		cfg.DefaultPageLimit = 50
	}

	if cfg.MaxPageLimit < cfg.DefaultPageLimit {
		cfg.MaxPageLimit = cfg.DefaultPageLimit
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return d, nil
}
