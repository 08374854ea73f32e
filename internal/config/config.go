/**
 * @description
 * This package handles configuration management for the escrow service. It uses
 * the Viper library to read configuration from environment variables (and an
 * optional .env file), providing a centralized way to manage settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the escrow service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string        `mapstructure:"SERVER_PORT"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	RabbitMQURL          string        `mapstructure:"RABBITMQ_URL"`
	NotificationExchange string        `mapstructure:"NOTIFICATION_EXCHANGE"`
	PaymentAPIBaseURL    string        `mapstructure:"PAYMENT_API_BASE_URL"`
	PaymentAPIKey        string        `mapstructure:"PAYMENT_API_KEY"`
	CodeHostAPIBaseURL   string        `mapstructure:"CODE_HOST_API_BASE_URL"`
	CodeHostAPIToken     string        `mapstructure:"CODE_HOST_API_TOKEN"`
	CronTriggerSecret    string        `mapstructure:"CRON_TRIGGER_SECRET"`
	ReleaseBatchLimit    int           `mapstructure:"RELEASE_BATCH_LIMIT"`
	TransferBatchLimit   int           `mapstructure:"TRANSFER_BATCH_LIMIT"`
	StuckTransferGrace   time.Duration `mapstructure:"STUCK_TRANSFER_GRACE"`
	JobLockTTL           time.Duration `mapstructure:"JOB_LOCK_TTL"`
	ReleaseEscrowCron    string        `mapstructure:"RELEASE_ESCROW_CRON"`
	ProcessTransfersCron string        `mapstructure:"PROCESS_TRANSFERS_CRON"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("NOTIFICATION_EXCHANGE", "codesalvage.notifications")
	viper.SetDefault("RELEASE_BATCH_LIMIT", 50)
	viper.SetDefault("TRANSFER_BATCH_LIMIT", 50)
	viper.SetDefault("STUCK_TRANSFER_GRACE", "30m")
	viper.SetDefault("JOB_LOCK_TTL", "10m")
	viper.SetDefault("RELEASE_ESCROW_CRON", "*/15 * * * *") // Every 15 minutes.
	viper.SetDefault("PROCESS_TRANSFERS_CRON", "5 * * * *") // Hourly, offset from release job.

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("NOTIFICATION_EXCHANGE")
	_ = viper.BindEnv("PAYMENT_API_BASE_URL")
	_ = viper.BindEnv("PAYMENT_API_KEY")
	_ = viper.BindEnv("CODE_HOST_API_BASE_URL")
	_ = viper.BindEnv("CODE_HOST_API_TOKEN")
	_ = viper.BindEnv("CRON_TRIGGER_SECRET")
	_ = viper.BindEnv("RELEASE_BATCH_LIMIT")
	_ = viper.BindEnv("TRANSFER_BATCH_LIMIT")
	_ = viper.BindEnv("STUCK_TRANSFER_GRACE")
	_ = viper.BindEnv("JOB_LOCK_TTL")
	_ = viper.BindEnv("RELEASE_ESCROW_CRON")
	_ = viper.BindEnv("PROCESS_TRANSFERS_CRON")

	// The .env file is optional; environment variables alone are fine.
	if err = viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if config.DatabaseURL == "" {
		return config, errors.New("config: DATABASE_URL is required")
	}
	if config.CronTriggerSecret == "" {
		return config, errors.New("config: CRON_TRIGGER_SECRET is required")
	}
	if config.ReleaseBatchLimit <= 0 {
		config.ReleaseBatchLimit = 50
	}
	if config.TransferBatchLimit <= 0 {
		config.TransferBatchLimit = 50
	}

	return
}
