package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Metabase    MetabaseConfig
	AnalyticsDB AnalyticsDBConfig
	RateLimit   RateLimitConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	Enabled  bool
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

// MetabaseConfig carries both URLs the system needs: URL is where the backend
// reaches Metabase (often an internal Docker hostname), PublicURL is where
// browsers load iframe embeds from.
type MetabaseConfig struct {
	URL             string
	PublicURL       string
	AdminEmail      string
	AdminPassword   string
	EmbeddingSecret string
	EmbedExpiryMins int
}

// AnalyticsDBConfig describes the warehouse Metabase should query. The backend
// registers it with Metabase at startup but never connects to it directly.
type AnalyticsDBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (m *MetabaseConfig) EmbedExpiry() time.Duration {
	return time.Duration(m.EmbedExpiryMins) * time.Minute
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "embedash")
	v.SetDefault("DATABASE_PASSWORD", "embedash_secret")
	v.SetDefault("DATABASE_NAME", "embedash")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("METABASE_URL", "http://localhost:3000")
	v.SetDefault("METABASE_PUBLIC_URL", "")
	v.SetDefault("METABASE_EMBED_EXPIRY_MINUTES", 60)
	v.SetDefault("ANALYTICS_DB_HOST", "localhost")
	v.SetDefault("ANALYTICS_DB_PORT", 5432)
	v.SetDefault("ANALYTICS_DB_NAME", "analytics")
	v.SetDefault("ANALYTICS_DB_USER", "analytics")
	v.SetDefault("ANALYTICS_DB_PASSWORD", "")
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
			Env:  v.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			Enabled:  v.GetBool("REDIS_ENABLED"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Metabase: MetabaseConfig{
			URL:             v.GetString("METABASE_URL"),
			PublicURL:       v.GetString("METABASE_PUBLIC_URL"),
			AdminEmail:      v.GetString("METABASE_ADMIN_EMAIL"),
			AdminPassword:   v.GetString("METABASE_ADMIN_PASSWORD"),
			EmbeddingSecret: v.GetString("METABASE_EMBEDDING_SECRET"),
			EmbedExpiryMins: v.GetInt("METABASE_EMBED_EXPIRY_MINUTES"),
		},
		AnalyticsDB: AnalyticsDBConfig{
			Host:     v.GetString("ANALYTICS_DB_HOST"),
			Port:     v.GetInt("ANALYTICS_DB_PORT"),
			Name:     v.GetString("ANALYTICS_DB_NAME"),
			User:     v.GetString("ANALYTICS_DB_USER"),
			Password: v.GetString("ANALYTICS_DB_PASSWORD"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	if cfg.Metabase.PublicURL == "" {
		cfg.Metabase.PublicURL = cfg.Metabase.URL
	}

	return cfg, nil
}
