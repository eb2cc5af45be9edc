package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds every setting of the ledger service. Values come from the
// environment or an optional .env file.
type Config struct {
	ServerPort         string        `mapstructure:"SERVER_PORT"`
	HTTPRequestTimeout time.Duration `mapstructure:"HTTP_REQUEST_TIMEOUT"`
	CORSAllowedOrigins string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`

	StoreDriver       string `mapstructure:"LEDGER_STORE"`
	SeedDemoData      bool   `mapstructure:"LEDGER_SEED_DEMO_DATA"`
	AllowSelfTransfer bool   `mapstructure:"LEDGER_ALLOW_SELF_TRANSFER"`

	DBHost              string        `mapstructure:"DB_HOST"`
	DBPort              int           `mapstructure:"DB_PORT"`
	DBUser              string        `mapstructure:"DB_USER"`
	DBPassword          string        `mapstructure:"DB_PASSWORD"`
	DBName              string        `mapstructure:"DB_NAME"`
	DBSSLMode           string        `mapstructure:"DB_SSLMODE"`
	DBConnectRetries    int           `mapstructure:"DB_CONNECT_RETRIES"`
	DBConnectRetryDelay time.Duration `mapstructure:"DB_CONNECT_RETRY_DELAY"`
	MigrationsDir       string        `mapstructure:"MIGRATIONS_DIR"`

	KafkaEnabled             bool   `mapstructure:"KAFKA_ENABLED"`
	KafkaBrokerURL           string `mapstructure:"KAFKA_BROKER_URL"`
	KafkaTransferEventsTopic string `mapstructure:"KAFKA_TRANSFER_EVENTS_TOPIC"`

	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboxPollTimeout  time.Duration `mapstructure:"OUTBOX_POLL_TIMEOUT"`
	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE"`
}

var defaults = map[string]any{
	"SERVER_PORT":                 "8080",
	"HTTP_REQUEST_TIMEOUT":        "30s",
	"CORS_ALLOWED_ORIGINS":        "http://localhost:5173",
	"LOG_LEVEL":                   "info",
	"LEDGER_STORE":                StoreDriverPostgres,
	"LEDGER_SEED_DEMO_DATA":       true,
	"LEDGER_ALLOW_SELF_TRANSFER":  true,
	"DB_HOST":                     "localhost",
	"DB_PORT":                     5432,
	"DB_USER":                     "user",
	"DB_PASSWORD":                 "password",
	"DB_NAME":                     "ledger_db",
	"DB_SSLMODE":                  "disable",
	"DB_CONNECT_RETRIES":          10,
	"DB_CONNECT_RETRY_DELAY":      "5s",
	"MIGRATIONS_DIR":              "migrations",
	"KAFKA_ENABLED":               false,
	"KAFKA_BROKER_URL":            "localhost:9092",
	"KAFKA_TRANSFER_EVENTS_TOPIC": "ledger_transfer_events",
	"OUTBOX_POLL_INTERVAL":        "1s",
	"OUTBOX_POLL_TIMEOUT":         "5s",
	"OUTBOX_BATCH_SIZE":           10,
}

// LoadConfig reads configuration from the environment and from an optional
// .env file in path. Environment variables win over the file.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range defaults {
		viper.SetDefault(key, value)
		_ = viper.BindEnv(key)
	}

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return config, fmt.Errorf("failed to read config file: %w", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode configuration: %w", err)
	}

	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	if config.StoreDriver != StoreDriverPostgres && config.StoreDriver != StoreDriverMemory {
		return config, fmt.Errorf("unsupported LEDGER_STORE %q (want %q or %q)", config.StoreDriver, StoreDriverPostgres, StoreDriverMemory)
	}
	if config.OutboxBatchSize <= 0 {
		config.OutboxBatchSize = 10
	}
	if config.DBConnectRetries <= 0 {
		config.DBConnectRetries = 1
	}

	return config, nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}
	return u.String()
}

func (c *Config) GetKafkaBrokers() []string {
	return splitList(c.KafkaBrokerURL)
}

func (c *Config) GetCORSAllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
