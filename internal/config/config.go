// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"orderpay/pkg/db" // Import db package for its Config struct
)

// GatewayConfig holds the endpoints and client knobs for downstream services.
type GatewayConfig struct {
	PaymentEndpoint      string
	WalletEndpoint       string
	CartEndpoint         string
	LMSEndpoint          string
	NotificationEndpoint string
	Timeout              time.Duration
	RetryCount           int
	RetryWait            time.Duration
}

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort string
	DB         db.Config
	Gateway    GatewayConfig
}

// LoadConfig loads configuration from environment variables.
// It returns an AppConfig instance or an error if any required variable is missing or invalid.
func LoadConfig() (*AppConfig, error) {
	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080" // Default port
	}

	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost" // Default to localhost for local development
	}
	dbPortStr := os.Getenv("DB_PORT")
	if dbPortStr == "" {
		dbPortStr = "5432" // Default PostgreSQL port
	}
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		dbUser = "user" // Default user for local development
	}
	dbPassword := os.Getenv("DB_PASSWORD")
	if dbPassword == "" {
		dbPassword = "password" // Default password for local development
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "orderpaydb" // Default database name for local development
	}
	dbSSLMode := os.Getenv("DB_SSLMODE")
	if dbSSLMode == "" {
		dbSSLMode = "disable" // Default to disable for local development
	}

	gateway, err := loadGatewayConfig()
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		ServerPort: serverPort,
		DB: db.Config{
			Host:     dbHost,
			Port:     dbPort,
			User:     dbUser,
			Password: dbPassword,
			DBName:   dbName,
			SSLMode:  dbSSLMode,
		},
		Gateway: gateway,
	}, nil
}

func loadGatewayConfig() (GatewayConfig, error) {
	timeoutStr := os.Getenv("GATEWAY_TIMEOUT_MS")
	if timeoutStr == "" {
		timeoutStr = "5000"
	}
	timeoutMS, err := strconv.Atoi(timeoutStr)
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("invalid GATEWAY_TIMEOUT_MS: %w", err)
	}

	retryCountStr := os.Getenv("GATEWAY_RETRY_COUNT")
	if retryCountStr == "" {
		retryCountStr = "2"
	}
	retryCount, err := strconv.Atoi(retryCountStr)
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("invalid GATEWAY_RETRY_COUNT: %w", err)
	}

	retryWaitStr := os.Getenv("GATEWAY_RETRY_WAIT_MS")
	if retryWaitStr == "" {
		retryWaitStr = "200"
	}
	retryWaitMS, err := strconv.Atoi(retryWaitStr)
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("invalid GATEWAY_RETRY_WAIT_MS: %w", err)
	}

	return GatewayConfig{
		PaymentEndpoint:      envOrDefault("PAYMENT_ENDPOINT", "http://localhost:8081"),
		WalletEndpoint:       envOrDefault("WALLET_ENDPOINT", "http://localhost:8082"),
		CartEndpoint:         envOrDefault("CART_ENDPOINT", "http://localhost:8083/cart"),
		LMSEndpoint:          envOrDefault("LMS_ENDPOINT", "http://localhost:8084"),
		NotificationEndpoint: envOrDefault("NOTIFICATION_ENDPOINT", "http://localhost:8085"),
		Timeout:              time.Duration(timeoutMS) * time.Millisecond,
		RetryCount:           retryCount,
		RetryWait:            time.Duration(retryWaitMS) * time.Millisecond,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
