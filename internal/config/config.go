package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

type Config struct {
	Mode     string
	Server   ServerConfig
	DynamoDB DynamoDBConfig
	Redis    RedisConfig
	SMTP     SMTPConfig
	JWT      JWTConfig
	Reset    ResetConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type JWTConfig struct {
	SecretKey    string
	AccessExpiry time.Duration
}

type ResetConfig struct {
	CodeExpiry      time.Duration
	MaxAttempts     int
	DeliveryTimeout time.Duration
	ResendCooldown  time.Duration
	Store           string // "memory" or "redis"
}

func Load() (*Config, error) {
	cfg := &Config{
		Mode: getEnv("APP_MODE", ModeDevelopment),
		Server: ServerConfig{
			Port:         getEnv("PORT", "3001"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "MarketloopTable"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
			FromName: getEnv("SMTP_FROM_NAME", "Marketloop"),
		},
		JWT: JWTConfig{
			SecretKey:    getEnv("JWT_SECRET_KEY", ""),
			AccessExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		},
		Reset: ResetConfig{
			CodeExpiry:      getEnvAsDuration("RESET_CODE_EXPIRY", 10*time.Minute),
			MaxAttempts:     getEnvAsInt("RESET_MAX_ATTEMPTS", 3),
			DeliveryTimeout: getEnvAsDuration("RESET_DELIVERY_TIMEOUT", 5*time.Second),
			ResendCooldown:  getEnvAsDuration("RESET_RESEND_COOLDOWN", 60*time.Second),
			Store:           getEnv("RESET_STORE", "memory"),
		},
	}

	if cfg.Mode != ModeDevelopment && cfg.Mode != ModeProduction {
		return nil, fmt.Errorf("APP_MODE must be %q or %q, got %q", ModeDevelopment, ModeProduction, cfg.Mode)
	}

	if cfg.Reset.Store != "memory" && cfg.Reset.Store != "redis" {
		return nil, fmt.Errorf("RESET_STORE must be \"memory\" or \"redis\", got %q", cfg.Reset.Store)
	}

	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	if len(cfg.JWT.SecretKey) < 32 {
		return nil, fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	// Production never echoes codes, so it must be able to deliver them.
	if cfg.Mode == ModeProduction && cfg.SMTP.Host == "" {
		return nil, fmt.Errorf("SMTP_HOST is required in production mode")
	}

	return cfg, nil
}

// IsDevelopment reports whether the server runs in development mode, where
// reset codes are echoed in API responses and delivery failures are ignored.
func (c *Config) IsDevelopment() bool {
	return c.Mode == ModeDevelopment
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
