/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	JWTSecret            string `mapstructure:"JWT_SECRET"`

	PayPalAPIBaseURL string `mapstructure:"PAYPAL_API_BASE_URL"`
	PayPalClientID   string `mapstructure:"PAYPAL_CLIENT_ID"`
	PayPalSecret     string `mapstructure:"PAYPAL_SECRET"`

	ConversionRate     float64 `mapstructure:"CONVERSION_RATE"` // USD per coin
	PlatformFeeRate    float64 `mapstructure:"PLATFORM_FEE_RATE"`
	GatewayFeeRate     float64 `mapstructure:"GATEWAY_FEE_RATE"`
	GatewayFeeMinCents int64   `mapstructure:"GATEWAY_FEE_MIN_CENTS"`
	GatewayFeeMaxCents int64   `mapstructure:"GATEWAY_FEE_MAX_CENTS"`
	MinPayoutCents     int64   `mapstructure:"MIN_PAYOUT_CENTS"`
	MaxPayoutCents     int64   `mapstructure:"MAX_PAYOUT_CENTS"`

	AdWatchRateLimitPerMinute int   `mapstructure:"AD_WATCH_RATE_LIMIT_PER_MINUTE"`
	MaxSessionCoins           int64 `mapstructure:"MAX_SESSION_COINS"`

	ReconcileSchedule  string `mapstructure:"RECONCILE_SCHEDULE"`
	PayoutPollSchedule string `mapstructure:"PAYOUT_POLL_SCHEDULE"`
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
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "dropstrike:ad_claim")
	viper.SetDefault("PAYPAL_API_BASE_URL", "https://api-m.sandbox.paypal.com")
	viper.SetDefault("CONVERSION_RATE", 0.001) // 1000 coins per USD
	viper.SetDefault("PLATFORM_FEE_RATE", 0.05)
	viper.SetDefault("GATEWAY_FEE_RATE", 0.02)
	viper.SetDefault("GATEWAY_FEE_MIN_CENTS", 25)
	viper.SetDefault("GATEWAY_FEE_MAX_CENTS", 2000)
	viper.SetDefault("MIN_PAYOUT_CENTS", 100)
	viper.SetDefault("MAX_PAYOUT_CENTS", 1000000)
	viper.SetDefault("AD_WATCH_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("MAX_SESSION_COINS", 10000)
	viper.SetDefault("RECONCILE_SCHEDULE", "0 3 * * *")
	viper.SetDefault("PAYOUT_POLL_SCHEDULE", "*/15 * * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("PAYPAL_API_BASE_URL")
	_ = viper.BindEnv("PAYPAL_CLIENT_ID")
	_ = viper.BindEnv("PAYPAL_SECRET")
	_ = viper.BindEnv("CONVERSION_RATE")
	_ = viper.BindEnv("COINS_PER_DOLLAR")
	_ = viper.BindEnv("PLATFORM_FEE_RATE")
	_ = viper.BindEnv("PLATFORM_FEE_PERCENT")
	_ = viper.BindEnv("GATEWAY_FEE_RATE")
	_ = viper.BindEnv("GATEWAY_FEE_MIN_CENTS")
	_ = viper.BindEnv("GATEWAY_FEE_MAX_CENTS")
	_ = viper.BindEnv("MIN_PAYOUT_CENTS")
	_ = viper.BindEnv("MAX_PAYOUT_CENTS")
	_ = viper.BindEnv("AD_WATCH_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("MAX_SESSION_COINS")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("PAYOUT_POLL_SCHEDULE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "dropstrike:ad_claim"
	}

	// Allow specifying the conversion as whole coins per dollar via COINS_PER_DOLLAR.
	if viper.IsSet("COINS_PER_DOLLAR") {
		coinsStr := strings.TrimSpace(viper.GetString("COINS_PER_DOLLAR"))
		if coinsStr != "" {
			coinsValue, parseErr := strconv.ParseFloat(coinsStr, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid COINS_PER_DOLLAR\" value=%q err=%v", coinsStr, parseErr)
			} else if coinsValue <= 0 {
				log.Printf("level=warn component=config msg=\"COINS_PER_DOLLAR must be positive; ignoring\" value=%q", coinsStr)
			} else {
				config.ConversionRate = 1.0 / coinsValue
			}
		}
	}
	if config.ConversionRate <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive conversion rate configured; using default\" rate=%f", config.ConversionRate)
		config.ConversionRate = 0.001
	}

	// Allow specifying the platform fee as a percentage via PLATFORM_FEE_PERCENT.
	if viper.IsSet("PLATFORM_FEE_PERCENT") {
		percentStr := strings.TrimSpace(viper.GetString("PLATFORM_FEE_PERCENT"))
		if percentStr != "" {
			percentValue, parseErr := strconv.ParseFloat(percentStr, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid PLATFORM_FEE_PERCENT\" value=%q err=%v", percentStr, parseErr)
			} else {
				config.PlatformFeeRate = percentValue / 100
			}
		}
	}
	if config.PlatformFeeRate < 0 {
		log.Printf("level=warn component=config msg=\"negative platform fee rate configured; coercing to zero\" rate=%f", config.PlatformFeeRate)
		config.PlatformFeeRate = 0
	}
	if config.PlatformFeeRate > 1 {
		log.Printf("level=warn component=config msg=\"platform fee rate above 100%%; capping\" rate=%f", config.PlatformFeeRate)
		config.PlatformFeeRate = 1
	}

	if config.GatewayFeeRate < 0 {
		log.Printf("level=warn component=config msg=\"negative gateway fee rate configured; coercing to zero\" rate=%f", config.GatewayFeeRate)
		config.GatewayFeeRate = 0
	}
	if config.GatewayFeeMinCents < 0 {
		config.GatewayFeeMinCents = 0
	}
	if config.GatewayFeeMaxCents < config.GatewayFeeMinCents {
		log.Printf("level=warn component=config msg=\"gateway fee max below min; raising to min\" min=%d max=%d", config.GatewayFeeMinCents, config.GatewayFeeMaxCents)
		config.GatewayFeeMaxCents = config.GatewayFeeMinCents
	}

	if config.MinPayoutCents <= 0 {
		config.MinPayoutCents = 100
	}
	if config.MaxPayoutCents < config.MinPayoutCents {
		log.Printf("level=warn component=config msg=\"max payout below min; raising to min\" min=%d max=%d", config.MinPayoutCents, config.MaxPayoutCents)
		config.MaxPayoutCents = config.MinPayoutCents
	}

	if config.AdWatchRateLimitPerMinute <= 0 {
		config.AdWatchRateLimitPerMinute = 10
	}
	if config.MaxSessionCoins <= 0 {
		config.MaxSessionCoins = 10000
	}

	return
}
