package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/gommon/bytes"
	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	AuthSecret         string        `mapstructure:"AUTH_SECRET"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit          string        `mapstructure:"BODY_LIMIT"`
	PHPAPIURL          string        `mapstructure:"PHP_API_URL"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	PubNubPublishKey   string        `mapstructure:"PUBNUB_PUBLISH_KEY"`
	PubNubSubscribeKey string        `mapstructure:"PUBNUB_SUBSCRIBE_KEY"`
	PubNubSecretKey    string        `mapstructure:"PUBNUB_SECRET_KEY"`
	PubNubUserID       string        `mapstructure:"PUBNUB_USER_ID"`
}

var envKeys = []string{
	"PORT",
	"ENV",
	"LOG_LEVEL",
	"CORS_ORIGINS",
	"AUTH_SECRET",
	"AUTH_ISSUER",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT",
	"BODY_LIMIT",
	"PHP_API_URL",
	"REDIS_URL",
	"PUBNUB_PUBLISH_KEY",
	"PUBNUB_SUBSCRIBE_KEY",
	"PUBNUB_SECRET_KEY",
	"PUBNUB_USER_ID",
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "64K")
	v.SetDefault("PUBNUB_USER_ID", "medq-server")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 0 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RedisEnabled reports whether queue events are mirrored to Redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// PubNubEnabled reports whether patient push notifications are configured.
func (c *Config) PubNubEnabled() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}

// Validate checks that the configuration is safe to run. Outside
// development AUTH_SECRET must be set so that bearer tokens are verified.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required when ENV=%q; refusing to start without token verification", c.Env)
	}

	if c.PHPAPIURL != "" {
		u, err := url.Parse(c.PHPAPIURL)
		if err != nil {
			return fmt.Errorf("PHP_API_URL is not a valid URL: %w", err)
		}
		if !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("PHP_API_URL must be an absolute URL, got %q", c.PHPAPIURL)
		}
	}

	if (c.PubNubPublishKey == "") != (c.PubNubSubscribeKey == "") {
		return fmt.Errorf("PUBNUB_PUBLISH_KEY and PUBNUB_SUBSCRIBE_KEY must be set together")
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}

	if n, err := bytes.Parse(strings.TrimSpace(c.BodyLimit)); err != nil || n <= 0 {
		return fmt.Errorf("BODY_LIMIT must be a positive size such as 64K, got %q", c.BodyLimit)
	}

	return nil
}
