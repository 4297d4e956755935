package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	LogLevel string
	HTTP     HTTPConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
	Chain    ChainConfig
	Telegram TelegramConfig
}

// HTTPConfig holds the health/ops HTTP listener configuration
type HTTPConfig struct {
	ListenAddr string
	Timeout    time.Duration
}

// KafkaConfig holds Kafka configuration for lifecycle events
type KafkaConfig struct {
	BrokerAddress string
	Topic         string
	Enabled       bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ChainConfig holds the EVM chain and token contract configuration.
// Confirmations and ToleranceBps are verification policy, tunable
// without a code change.
type ChainConfig struct {
	RpcEndpoint     string
	ApiKey          string
	ChainID         int64
	TokenAddress    string
	Confirmations   uint64
	ToleranceBps    int64
	RateLimit       float64
	MaxRetries      int
	RetryDelay      time.Duration
	VerifyTimeout   time.Duration
	ExplorerBaseURL string
}

// TelegramConfig holds the notification bot configuration
type TelegramConfig struct {
	BotToken     string
	APIBaseURL   string
	ClaimBaseURL string
	PollInterval time.Duration
}

// Load loads configuration from environment variables. Every value
// has a default, so loading always succeeds.
func Load() *Config {
	// A missing .env file is fine, env vars may be set externally.
	_ = godotenv.Load()

	config := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTP: HTTPConfig{
			ListenAddr: getEnv("HTTP_LISTEN_ADDR", ":8080"),
			Timeout:    time.Duration(getEnvAsInt("HTTP_TIMEOUT", 30)) * time.Second,
		},
		Kafka: KafkaConfig{
			BrokerAddress: getEnv("KAFKA_BROKER_ADDRESS", "localhost:9092"),
			Topic:         getEnv("KAFKA_TOPIC", "transfer-events"),
			Enabled:       getEnvAsBool("KAFKA_ENABLED", false),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "pingpay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Chain: ChainConfig{
			RpcEndpoint:     getEnv("CHAIN_RPC_ENDPOINT", "https://sepolia-rollup.arbitrum.io/rpc"),
			ApiKey:          getEnv("CHAIN_API_KEY", ""),
			ChainID:         int64(getEnvAsInt("CHAIN_ID", 421614)),
			TokenAddress:    getEnv("TOKEN_ADDRESS", "0x0050EAB3c59C945aE92858121c88752e8871185D"),
			Confirmations:   uint64(getEnvAsInt("CHAIN_CONFIRMATIONS", 1)),
			ToleranceBps:    int64(getEnvAsInt("AMOUNT_TOLERANCE_BPS", 100)),
			RateLimit:       getEnvAsFloat("CHAIN_RATE_LIMIT", 4),
			MaxRetries:      getEnvAsInt("CHAIN_MAX_RETRIES", 10),
			RetryDelay:      time.Duration(getEnvAsInt("CHAIN_RETRY_DELAY", 2)) * time.Second,
			VerifyTimeout:   time.Duration(getEnvAsInt("CHAIN_VERIFY_TIMEOUT", 120)) * time.Second,
			ExplorerBaseURL: getEnv("EXPLORER_BASE_URL", "https://sepolia.arbiscan.io/tx/"),
		},
		Telegram: TelegramConfig{
			BotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
			APIBaseURL:   getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
			ClaimBaseURL: getEnv("CLAIM_BASE_URL", "http://localhost:5173/receive"),
			PollInterval: time.Duration(getEnvAsInt("TELEGRAM_POLL_INTERVAL", 2)) * time.Second,
		},
	}

	return config
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as float64 or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
