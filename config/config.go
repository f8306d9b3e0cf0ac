package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Rates     RatesConfig     `mapstructure:"rates"`
	Escrow    EscrowConfig    `mapstructure:"escrow"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Enabled bool     `mapstructure:"enabled"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// ProvidersConfig holds external payment provider endpoints and credentials.
type ProvidersConfig struct {
	Stripe  ProviderConfig `mapstructure:"stripe"`
	PayPal  ProviderConfig `mapstructure:"paypal"`
	Timeout time.Duration  `mapstructure:"timeout"`
	// WebhookSecret signs and verifies provider confirmation callbacks.
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// RatesConfig configures the exchange-rate refresh job.
type RatesConfig struct {
	APIURL          string        `mapstructure:"api_url"`
	BaseCurrency    string        `mapstructure:"base_currency"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// EscrowConfig holds escrow business parameters.
type EscrowConfig struct {
	AutoReleaseHours  int     `mapstructure:"auto_release_hours"`
	CommissionPercent float64 `mapstructure:"commission_percent"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: MKE_ (Marketplace Escrow).
// Nested keys use underscore: MKE_DATABASE_HOST, MKE_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "marketplace_escrow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "marketplace.notifications")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "marketplace-escrow")
	v.SetDefault("providers.stripe.base_url", "https://api.stripe.com/v1")
	v.SetDefault("providers.stripe.api_key", "")
	v.SetDefault("providers.paypal.base_url", "https://api-m.paypal.com/v2")
	v.SetDefault("providers.paypal.api_key", "")
	v.SetDefault("providers.timeout", "10s")
	v.SetDefault("providers.webhook_secret", "")
	v.SetDefault("rates.api_url", "https://api.exchangerate-api.com/v4")
	v.SetDefault("rates.base_currency", "USD")
	v.SetDefault("rates.refresh_interval", "1h")
	v.SetDefault("escrow.auto_release_hours", 72)
	v.SetDefault("escrow.commission_percent", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: MKE_DATABASE_HOST -> database.host
	v.SetEnvPrefix("MKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
