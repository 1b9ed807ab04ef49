package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SecurityConfig
	StoreConfig
	TelemetryConfig
	Validate() error
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetLogPretty() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars   `mapstructure:",squash"`
	Cors      `mapstructure:"cors"`
	Tokens    `mapstructure:"jwt"`
	Security  `mapstructure:"security"`
	Store     `mapstructure:"store"`
	Telemetry `mapstructure:"otel"`
}

var _ Config = (*mainConfig)(nil)

// envBindings maps config keys onto the environment variable names used by
// existing deployments.
var envBindings = map[string]string{
	"port":                          "PORT",
	"app_name":                      "APP_NAME",
	"env":                           "ENV",
	"log_level":                     "LOG_LEVEL",
	"log_pretty":                    "LOG_PRETTY",
	"jwt.access.secret":             "JWT_ACCESS_TOKEN_SECRET",
	"jwt.access.ttl":                "JWT_ACCESS_TOKEN_EXPIRATION",
	"jwt.refresh.secret":            "JWT_REFRESH_TOKEN_SECRET",
	"jwt.refresh.ttl":               "JWT_REFRESH_TOKEN_EXPIRATION",
	"jwt.challenge.secret":          "JWT_CHALLENGE_TOKEN_SECRET",
	"jwt.challenge.ttl":             "JWT_CHALLENGE_TOKEN_EXPIRATION",
	"jwt.step_up.secret":            "JWT_TWO_FACTOR_TOKEN_SECRET",
	"jwt.step_up.ttl":               "JWT_TWO_FACTOR_TOKEN_EXPIRATION",
	"security.password_hash_rounds": "AUTH_PASSWORD_HASH_ROUNDS",
	"store.database_url":            "DATABASE_URL",
	"store.redis.addr":              "REDIS_ADDR",
	"store.redis.password":          "REDIS_PASSWORD",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("app_name", "Session Auth")
	v.SetDefault("env", "DEV")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)

	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("cors.allowed_methods", "GET, POST, OPTIONS")
	v.SetDefault("cors.allowed_headers", "Content-Type, Authorization")

	v.SetDefault("jwt.access.ttl", "15m")
	v.SetDefault("jwt.refresh.ttl", "168h")
	v.SetDefault("jwt.challenge.ttl", "5m")

	v.SetDefault("security.password_hash_rounds", 10)
	v.SetDefault("security.password_profile", "")
	v.SetDefault("security.cookie_secure", false)
	v.SetDefault("security.request_timeout", "10s")

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.query_timeout", "3s")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.auto_migrate", false)
	v.SetDefault("store.challenge_backend", BackendMemory)
	v.SetDefault("store.redis.db", 0)

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.sample_ratio", 1.0)
}

// Load reads an optional YAML file at path and overlays environment variables.
// An empty path loads from the environment only. The result is validated.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("[config Load] read %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("[config Load] bind %s: %w", env, err)
		}
	}

	var c mainConfig
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("[config Load] unmarshal: %w", err)
	}
	c.Cors.normalise()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate returns every configuration problem found, each as a *ConfigError.
func (c *mainConfig) Validate() error {
	return errors.Join(
		c.Tokens.validate(),
		c.Security.validate(),
		c.Store.validate(),
	)
}
