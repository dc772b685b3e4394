// Package config loads CLI and server settings from flags, WANIKANI_*
// environment variables and config.yaml, in that order of precedence.
// The API token is never part of the loaded configuration; only the name of
// the environment variable holding it is.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/wanikani-client/pkg/client"
	"github.com/Sternrassler/wanikani-client/pkg/query"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Keys of every setting.
const (
	KeyBaseURL     = "api.base_url"
	KeyTokenEnv    = "api.token_env"
	KeyRevision    = "api.revision"
	KeyTimeout     = "api.timeout"
	KeyUserAgent   = "api.user_agent"
	KeyLogLevel    = "log.level"
	KeyLogPretty   = "log.pretty"
	KeyRateLimit   = "ratelimit.enabled"
	KeyRedisAddr   = "ratelimit.redis_addr"
	KeyMinSRSStage = "vocab.min_srs_stage"
	KeyCumulative  = "vocab.cumulative"
	KeyMaxPages    = "vocab.max_pages"
	KeyRetries     = "vocab.retries"
	KeyServerAddr  = "server.addr"
)

// EnvPrefix prefixes every environment variable, e.g. WANIKANI_API_BASE_URL.
const EnvPrefix = "WANIKANI"

// Config holds all application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Vocab     VocabConfig     `mapstructure:"vocab"`
	Server    ServerConfig    `mapstructure:"server"`
}

// APIConfig configures the transport.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	TokenEnv  string        `mapstructure:"token_env" validate:"required"`
	Revision  string        `mapstructure:"revision"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gte=0"`
	UserAgent string        `mapstructure:"user_agent" validate:"required"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Pretty bool   `mapstructure:"pretty"`
}

// RateLimitConfig configures pacing. RedisAddr selects the shared store.
type RateLimitConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	RedisAddr string `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
}

// VocabConfig configures vocabulary assembly.
type VocabConfig struct {
	MinSRSStage int  `mapstructure:"min_srs_stage" validate:"gte=0,lte=9"`
	Cumulative  bool `mapstructure:"cumulative"`
	MaxPages    int  `mapstructure:"max_pages" validate:"gte=0"`
	// Retries is the number of attempts per listing; 1 disables retrying.
	Retries int `mapstructure:"retries" validate:"gte=1,lte=10"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New returns a viper instance with defaults, environment binding and
// config file search paths set up. Flags are bound by the caller.
func New() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range []string{"/etc/wanikani", "$HOME/.wanikani", "."} {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyBaseURL, client.DefaultBaseURL)
	v.SetDefault(KeyTokenEnv, client.DefaultTokenEnv)
	v.SetDefault(KeyRevision, client.DefaultRevision)
	v.SetDefault(KeyTimeout, client.DefaultTimeout)
	v.SetDefault(KeyUserAgent, client.DefaultUserAgent)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogPretty, false)
	v.SetDefault(KeyRateLimit, true)
	v.SetDefault(KeyRedisAddr, "")
	v.SetDefault(KeyMinSRSStage, query.DefaultMinSRSStage)
	v.SetDefault(KeyCumulative, true)
	v.SetDefault(KeyMaxPages, 0)
	v.SetDefault(KeyRetries, 1)
	v.SetDefault(KeyServerAddr, ":8080")

	return v
}

// Load reads the config file if one exists, then decodes and validates v.
// A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ClientConfig maps the API settings onto a transport configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.BaseURL = c.API.BaseURL
	cfg.Token = client.EnvToken(c.API.TokenEnv)
	cfg.Revision = c.API.Revision
	cfg.Timeout = c.API.Timeout
	cfg.UserAgent = c.API.UserAgent
	return cfg
}
