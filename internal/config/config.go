package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/soochol/salesconnect/internal/integration"
	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Logging   LoggingConfig             `yaml:"logging"`
	Database  DatabaseConfig            `yaml:"database"`
	Auth      AuthConfig                `yaml:"auth"`
	OAuth     OAuthConfig               `yaml:"oauth"`
	Providers map[string]ProviderConfig `yaml:"providers" validate:"dive"`
	Audit     AuditConfig               `yaml:"audit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// DatabaseConfig selects the record store. An empty URL keeps records in
// memory.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=postgres sqlite"`
	URL    string `yaml:"url"`
}

type AuthConfig struct {
	SessionSecret     string        `yaml:"session_secret" validate:"required"`
	Issuer            string        `yaml:"issuer"`
	ExtensionTokenTTL time.Duration `yaml:"extension_token_ttl" validate:"gt=0"`
}

// OAuthConfig holds settings shared by all providers.
type OAuthConfig struct {
	// RedirectBaseURL is joined with /integrations/<provider>/callback when a
	// provider does not set its own redirect URL.
	RedirectBaseURL string `yaml:"redirect_base_url" validate:"omitempty,url"`
	// StateKey is a hex-encoded 32-byte key. When set, state parameters are
	// sealed instead of sent as "<user>:<org>".
	StateKey string        `yaml:"state_key" validate:"omitempty,hexadecimal,len=64"`
	StateTTL time.Duration `yaml:"state_ttl"`
}

// ProviderConfig holds OAuth client settings for one provider.
type ProviderConfig struct {
	ClientID     string            `yaml:"client_id" validate:"required"`
	ClientSecret string            `yaml:"client_secret"`
	Scopes       []string          `yaml:"scopes"`
	AuthURL      string            `yaml:"auth_url" validate:"omitempty,url"`
	TokenURL     string            `yaml:"token_url" validate:"omitempty,url"`
	RedirectURL  string            `yaml:"redirect_url" validate:"omitempty,url"`
	AuthParams   map[string]string `yaml:"auth_params"`
}

type AuditConfig struct {
	BufferSize      int           `yaml:"buffer_size" validate:"gte=0"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	// MaxRetries bounds redelivery to a sink failing with a transient error.
	MaxRetries int `yaml:"max_retries" validate:"gte=0,lte=10"`
	// Store writes events to the audit_events table when a database is
	// configured.
	Store             bool            `yaml:"store"`
	RetentionDays     int             `yaml:"retention_days" validate:"gte=0"`
	RetentionSchedule string          `yaml:"retention_schedule"`
	Slack             *SlackConfig    `yaml:"slack"`
	Telegram          *TelegramConfig `yaml:"telegram"`
	Kafka             *KafkaConfig    `yaml:"kafka"`
}

type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" validate:"required,url"`
	Channel    string `yaml:"channel"`
}

type TelegramConfig struct {
	Token  string `yaml:"token" validate:"required"`
	ChatID string `yaml:"chat_id" validate:"required"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" validate:"required,min=1,dive,required"`
	Topic   string   `yaml:"topic" validate:"required"`
}

// Environment variables that override file values.
const (
	EnvDatabaseURL   = "SALESCONNECT_DATABASE_URL"
	EnvSessionSecret = "SALESCONNECT_SESSION_SECRET"
	EnvStateKey      = "SALESCONNECT_STATE_KEY"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Driver: "postgres",
		},
		Auth: AuthConfig{
			Issuer:            "salesconnect",
			ExtensionTokenTTL: 24 * time.Hour,
		},
		OAuth: OAuthConfig{
			StateTTL: 10 * time.Minute,
		},
		Providers: map[string]ProviderConfig{},
		Audit: AuditConfig{
			BufferSize:        256,
			DeliveryTimeout:   5 * time.Second,
			MaxRetries:        2,
			RetentionSchedule: "0 3 * * *",
		},
	}
}

// Load reads a YAML configuration file at path and returns a validated
// Config. ${VAR} references in the file are expanded from the environment,
// which is first populated from a .env file when one exists.
func Load(path string) (*Config, error) {
	loadDotEnv()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Ensure Providers map is never nil even if YAML has "providers: {}" or omits it.
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	return finish(cfg)
}

// LoadDefault tries to load "config.yaml" from the current directory.
// If the file does not exist, it returns defaults with environment
// overrides applied.
// Any other error (e.g. permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return finish(defaults())
		}
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "config: ignoring .env: %v\n", err)
	}
}

func finish(cfg *Config) (*Config, error) {
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv(EnvSessionSecret); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv(EnvStateKey); v != "" {
		cfg.OAuth.StateKey = v
	}
}

// Validate checks field constraints and that every configured provider is
// one the service knows.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name := range c.Providers {
		if _, ok := integration.LookupProvider(name); !ok {
			return fmt.Errorf("invalid config: unknown provider %q", name)
		}
	}
	return nil
}

// RedirectURL returns the callback URL for a provider.
func (c *Config) RedirectURL(providerName string) string {
	if p, ok := c.Providers[providerName]; ok && p.RedirectURL != "" {
		return p.RedirectURL
	}
	if c.OAuth.RedirectBaseURL == "" {
		return ""
	}
	return strings.TrimRight(c.OAuth.RedirectBaseURL, "/") + "/integrations/" + providerName + "/callback"
}
