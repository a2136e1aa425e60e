package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds service configuration.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"esante-monitoring"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Storage     string `env:"STORAGE" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	PGDSN       string `env:"PG_DSN"`
	Migrate     bool   `env:"DB_MIGRATE" envDefault:"true"`

	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL" envDefault:"notifications.broadcast"`

	MQTT   MQTTConfig   `envPrefix:"MQTT_"`
	Notify NotifyConfig `envPrefix:"NOTIFY_"`
	Stream StreamConfig `envPrefix:"STREAM_"`

	Channels ChannelsConfig
}

// MQTTConfig configures the device ingestion consumer.
type MQTTConfig struct {
	BrokerURL string `env:"BROKER_URL"`
	ClientID  string `env:"CLIENT_ID" envDefault:"esante-monitoring"`
	Username  string `env:"USERNAME"`
	Password  string `env:"PASSWORD"`
	Topic     string `env:"TOPIC" envDefault:"esante/patient/+/vitals/+"`
	QoS       byte   `env:"QOS" envDefault:"1"`
}

// NotifyConfig configures the dispatcher. A zero timeout disables the bound.
type NotifyConfig struct {
	SendTimeout time.Duration `env:"SEND_TIMEOUT"`
}

// StreamConfig configures live streams. Zero timeouts disable the bound.
type StreamConfig struct {
	Buffer       int           `env:"BUFFER" envDefault:"16"`
	SendTimeout  time.Duration `env:"SEND_TIMEOUT"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT"`
}

// ChannelsConfig configures external delivery providers.
type ChannelsConfig struct {
	Email EmailConfig `yaml:"email"`
	SMS   SMSConfig   `yaml:"sms"`
	Push  PushConfig  `yaml:"push"`
}

// EmailConfig configures the Postmark channel.
type EmailConfig struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN" yaml:"server_token"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN" yaml:"account_token"`
	From         string `env:"EMAIL_FROM" yaml:"from"`
}

// SMSConfig configures the SMS gateway channel.
type SMSConfig struct {
	GatewayURL string `env:"SMS_GATEWAY_URL" yaml:"gateway_url"`
	Token      string `env:"SMS_GATEWAY_TOKEN" yaml:"token"`
	Sender     string `env:"SMS_SENDER" yaml:"sender"`
}

// PushConfig configures the push provider channel.
type PushConfig struct {
	ProviderURL string        `env:"PUSH_PROVIDER_URL" yaml:"provider_url"`
	Secret      string        `env:"PUSH_PROVIDER_SECRET" yaml:"secret"`
	TokenTTL    time.Duration `env:"PUSH_TOKEN_TTL" envDefault:"5m" yaml:"token_ttl"`
}

type fileConfig struct {
	Channels ChannelsConfig `yaml:"channels"`
}

// Load reads .env (if present), the process environment and the optional
// YAML file named by MONITORING_CONFIG. Environment values win.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("config: parse env: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = cfg.PGDSN
	}

	if path := os.Getenv("MONITORING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		var file fileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.Channels = mergeChannels(cfg.Channels, file.Channels)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL or PG_DSN is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("config: unknown storage %q", c.Storage)
	}
	if c.Notify.SendTimeout < 0 || c.Stream.SendTimeout < 0 || c.Stream.WriteTimeout < 0 {
		return errors.New("config: timeouts must not be negative")
	}
	if c.Stream.Buffer < 1 {
		return errors.New("config: STREAM_BUFFER must be positive")
	}
	return nil
}

func mergeChannels(base, file ChannelsConfig) ChannelsConfig {
	base.Email.ServerToken = firstNonEmpty(base.Email.ServerToken, file.Email.ServerToken)
	base.Email.AccountToken = firstNonEmpty(base.Email.AccountToken, file.Email.AccountToken)
	base.Email.From = firstNonEmpty(base.Email.From, file.Email.From)
	base.SMS.GatewayURL = firstNonEmpty(base.SMS.GatewayURL, file.SMS.GatewayURL)
	base.SMS.Token = firstNonEmpty(base.SMS.Token, file.SMS.Token)
	base.SMS.Sender = firstNonEmpty(base.SMS.Sender, file.SMS.Sender)
	base.Push.ProviderURL = firstNonEmpty(base.Push.ProviderURL, file.Push.ProviderURL)
	base.Push.Secret = firstNonEmpty(base.Push.Secret, file.Push.Secret)
	if _, set := os.LookupEnv("PUSH_TOKEN_TTL"); !set && file.Push.TokenTTL > 0 {
		base.Push.TokenTTL = file.Push.TokenTTL
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
