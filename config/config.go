package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds process-level configuration: listeners, storage and
// signing material. Tenant and client policy live in MongoDB, not here.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`

	// RedisAddr enables the Redis-backed assertion replay cache. Empty means
	// the in-process cache is used.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// SigningKeyID and SigningKeyPEM configure the default token signing key.
	SigningKeyID  string `mapstructure:"SIGNING_KEY_ID"`
	SigningKeyPEM string `mapstructure:"SIGNING_KEY_PEM"`

	// NotificationTimeoutSec bounds CIBA ping/push deliveries.
	NotificationTimeoutSec int `mapstructure:"NOTIFICATION_TIMEOUT_SEC"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/idp-server/")
	v.AddConfigPath("$HOME/.idp-server")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/idp_server_dev")
	v.SetDefault("MONGO_DB_NAME", "idp_server_dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SIGNING_KEY_ID", "default")
	v.SetDefault("NOTIFICATION_TIMEOUT_SEC", 10)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, env vars and defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
