package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	PublicBaseURL   string        `mapstructure:"PUBLIC_BASE_URL"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir   string        `mapstructure:"MIGRATIONS_DIR"`
	AuthSigningKey  string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer      string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience    string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	SecretsKey      string        `mapstructure:"SECRETS_KEY"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
	MediaAPIURL     string        `mapstructure:"MEDIA_API_URL"`
	MediaAPIKey     string        `mapstructure:"MEDIA_API_KEY"`
	AIAPIURL        string        `mapstructure:"AI_API_URL"`
	AIAPIKey        string        `mapstructure:"AI_API_KEY"`
	AIModel         string        `mapstructure:"AI_MODEL"`
	KafkaBrokers    []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic      string        `mapstructure:"KAFKA_TOPIC"`
	FirebaseCreds   string        `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	ReportPollSpec  string        `mapstructure:"REPORT_POLL_SPEC"`
	ReminderSpec    string        `mapstructure:"REMINDER_POLL_SPEC"`
	ReminderWindow  time.Duration `mapstructure:"REMINDER_WINDOW"`
}

var envKeys = []string{
	"PORT", "ENV", "PUBLIC_BASE_URL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MIGRATIONS_DIR", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "CORS_ORIGINS",
	"SECRETS_KEY", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "MEDIA_API_URL", "MEDIA_API_KEY",
	"AI_API_URL", "AI_API_KEY", "AI_MODEL", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"FIREBASE_CREDENTIALS_FILE", "REPORT_POLL_SPEC", "REMINDER_POLL_SPEC", "REMINDER_WINDOW",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:3000")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("AI_API_URL", "https://api.openai.com/v1")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("KAFKA_TOPIC", "carelink.events")
	v.SetDefault("REPORT_POLL_SPEC", "@every 1m")
	v.SetDefault("REMINDER_POLL_SPEC", "@every 5m")
	v.SetDefault("REMINDER_WINDOW", "24h")

	for _, k := range envKeys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// splitList handles comma-separated env values, which viper leaves as a
// single element.
func splitList(parsed []string, raw string) []string {
	if len(parsed) > 1 {
		return parsed
	}
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SecretsKeyBytes decodes SECRETS_KEY. It returns nil when the key is unset.
func (c *Config) SecretsKeyBytes() ([]byte, error) {
	if c.SecretsKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.SecretsKey)
	if err != nil {
		return nil, fmt.Errorf("SECRETS_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("SECRETS_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// Validate checks that the configuration is safe to run. Outside development
// a signing key is mandatory, and production additionally requires the
// secrets key used for stored SMTP credentials.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters")
	}
	if c.IsProduction() && c.SecretsKey == "" {
		return fmt.Errorf("SECRETS_KEY is required in production")
	}
	if _, err := c.SecretsKeyBytes(); err != nil {
		return err
	}
	if c.ReminderWindow <= 0 {
		return fmt.Errorf("REMINDER_WINDOW must be positive")
	}
	return nil
}
