package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// TwilioConfig holds WhatsApp delivery credentials. An empty AccountSID
// disables real delivery; notifications are then logged only.
type TwilioConfig struct {
	AccountSID   string `yaml:"account_sid"`
	AuthToken    string `yaml:"auth_token"`
	WhatsAppFrom string `yaml:"whatsapp_from"`
	BaseURL      string `yaml:"base_url"`
}

// Config defines service configuration.
type Config struct {
	DatabaseURL       string        `yaml:"database_url"`
	HTTPAddr          string        `yaml:"http_addr"`
	JWTSecret         string        `yaml:"jwt_secret"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	SampleLogInterval time.Duration `yaml:"sample_log_interval"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	NotifyWorkers     int           `yaml:"notify_workers"`
	NotifyQueueSize   int           `yaml:"notify_queue_size"`
	NotifyTimeout     time.Duration `yaml:"notify_timeout"`
	Twilio            TwilioConfig  `yaml:"twilio"`
}

// Load builds configuration from defaults, an optional yaml file
// (FIELDWATCH_CONFIG) and environment overrides, in that order. Callers that
// need the full server config run Validate; tools that only need the
// database URL check it themselves.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:          ":8080",
		HeartbeatTimeout:  90 * time.Second,
		SampleLogInterval: 15 * time.Minute,
		SweepInterval:     time.Minute,
		NotifyWorkers:     4,
		NotifyQueueSize:   64,
		NotifyTimeout:     10 * time.Second,
		Twilio: TwilioConfig{
			BaseURL: "https://api.twilio.com",
		},
	}

	if path := os.Getenv("FIELDWATCH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.DatabaseURL = getenvDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", cfg.JWTSecret)
	cfg.HeartbeatTimeout = getenvDuration("HEARTBEAT_TIMEOUT", cfg.HeartbeatTimeout)
	cfg.SampleLogInterval = getenvDuration("SAMPLE_LOG_INTERVAL", cfg.SampleLogInterval)
	cfg.SweepInterval = getenvDuration("SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.NotifyWorkers = getenvIntDefault("NOTIFY_WORKERS", cfg.NotifyWorkers)
	cfg.NotifyQueueSize = getenvIntDefault("NOTIFY_QUEUE_SIZE", cfg.NotifyQueueSize)
	cfg.NotifyTimeout = getenvDuration("NOTIFY_TIMEOUT", cfg.NotifyTimeout)
	cfg.Twilio.AccountSID = getenvDefault("TWILIO_ACCOUNT_SID", cfg.Twilio.AccountSID)
	cfg.Twilio.AuthToken = getenvDefault("TWILIO_AUTH_TOKEN", cfg.Twilio.AuthToken)
	cfg.Twilio.WhatsAppFrom = getenvDefault("TWILIO_WHATSAPP_FROM", cfg.Twilio.WhatsAppFrom)
	cfg.Twilio.BaseURL = getenvDefault("TWILIO_BASE_URL", cfg.Twilio.BaseURL)

	return cfg, nil
}

// Validate checks required settings and bounds.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET is required")
	}
	if c.HeartbeatTimeout <= 0 {
		return errors.New("config: heartbeat timeout must be positive")
	}
	if c.SampleLogInterval <= 0 {
		return errors.New("config: sample log interval must be positive")
	}
	if c.NotifyWorkers <= 0 {
		return errors.New("config: notify workers must be positive")
	}
	if c.NotifyQueueSize <= 0 {
		return errors.New("config: notify queue size must be positive")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
