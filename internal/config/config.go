// Package config loads application configuration from a YAML file and
// NOTIFY_AGENT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys are joined
// with a double underscore: NOTIFY_AGENT_REMOTE__BASE_URL sets remote.base_url.
const EnvPrefix = "NOTIFY_AGENT_"

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Remote   RemoteConfig   `koanf:"remote"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Push     PushConfig     `koanf:"push"`
	Cache    CacheConfig    `koanf:"cache"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
}

// ServerConfig contains local API server configuration.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required,numeric"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required,numeric"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// APIToken protects /api/v1 when set.
	APIToken string `koanf:"api_token"`
}

// RemoteConfig contains notifications server client configuration.
type RemoteConfig struct {
	BaseURL   string        `koanf:"base_url" validate:"required,url"`
	Token     string        `koanf:"token"`
	Timeout   time.Duration `koanf:"timeout" validate:"gt=0"`
	RateLimit float64       `koanf:"rate_limit" validate:"gt=0"`
	Burst     int           `koanf:"burst" validate:"gt=0"`
	AppScope  string        `koanf:"app_scope" validate:"required,startswith=/"`
	// FeedBaseURL is where RSS feed URLs point. Defaults to BaseURL.
	FeedBaseURL string `koanf:"feed_base_url" validate:"omitempty,url"`
}

// RealtimeConfig contains websocket channel configuration.
type RealtimeConfig struct {
	Enabled bool `koanf:"enabled"`
	// URL overrides the websocket URL derived from remote.base_url.
	URL              string        `koanf:"url" validate:"omitempty,url"`
	ReconnectDelay   time.Duration `koanf:"reconnect_delay" validate:"gt=0"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout" validate:"gt=0"`
}

// PushConfig contains browser push configuration.
type PushConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Policy     string `koanf:"policy" validate:"oneof=granted denied prompt"`
	ServiceURL string `koanf:"service_url" validate:"omitempty,url"`
	Label      string `koanf:"label" validate:"max=100"`
}

// CacheConfig contains query cache configuration.
type CacheConfig struct {
	StaleTime time.Duration `koanf:"stale_time" validate:"gte=0"`
	GCTime    time.Duration `koanf:"gc_time" validate:"gt=0"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// Default returns the configuration used for every unset key.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Remote: RemoteConfig{
			Timeout:   15 * time.Second,
			RateLimit: 20,
			Burst:     10,
			AppScope:  "/notifications",
		},
		Realtime: RealtimeConfig{
			Enabled:          true,
			ReconnectDelay:   3 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
		Push: PushConfig{
			Enabled: false,
			Policy:  "prompt",
			Label:   "Browser",
		},
		Cache: CacheConfig{
			StaleTime: 30 * time.Second,
			GCTime:    10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path (optional) and the environment.
// Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration using the file named by
// NOTIFY_AGENT_CONFIG, if any.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv(EnvPrefix + "CONFIG"))
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", e.Namespace(), e.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	base, err := url.Parse(c.Remote.BaseURL)
	if err != nil {
		return fmt.Errorf("remote.base_url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return errors.New("remote.base_url: scheme must be http or https")
	}
	if c.Push.Enabled && c.Push.ServiceURL == "" {
		return errors.New("push.service_url: required when push is enabled")
	}
	return nil
}

// FeedBase returns the base URL RSS feed links are built on.
func (c *Config) FeedBase() (*url.URL, error) {
	raw := c.Remote.FeedBaseURL
	if raw == "" {
		raw = c.Remote.BaseURL
	}
	return url.Parse(raw)
}
