// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverBunt     = "bunt"

	MailerDriverAPI  = "api"
	MailerDriverSMTP = "smtp"
)

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

type Config struct {
	Port       string
	APIPrefix  string
	BackendURL string

	StoreDriver string
	BuntPath    string
	DB          DBConfig

	AMQPURL       string
	DispatchQueue string

	MailerDriver  string
	EmailAPIURL   string
	MailerTimeout time.Duration
	AttachmentDir string

	CloneTimeout   time.Duration
	CloneUserAgent string

	SendRate      float64
	DispatchLease time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then resolves every setting from the
// environment, falling back to defaults.
func Load() (*Config, bool, error) {
	// A missing .env is not an error; the caller logs it.
	envLoaded := godotenv.Load() == nil

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("BACKEND_URL", "http://localhost:8080")
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("BUNT_PATH", ":memory:")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DISPATCH_QUEUE", "campaign_dispatch")
	v.SetDefault("MAILER_DRIVER", MailerDriverAPI)
	v.SetDefault("EMAIL_API_URL", "http://localhost:8001/send")
	v.SetDefault("MAILER_TIMEOUT", "60s")
	v.SetDefault("ATTACHMENT_DIR", "")
	v.SetDefault("CLONE_TIMEOUT", "10s")
	v.SetDefault("SEND_RATE", 0)
	v.SetDefault("DISPATCH_LEASE", "30m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	cfg := &Config{
		Port:       v.GetString("PORT"),
		APIPrefix:  "/" + strings.Trim(v.GetString("API_PREFIX"), "/"),
		BackendURL: strings.TrimRight(v.GetString("BACKEND_URL"), "/"),

		StoreDriver: strings.ToLower(v.GetString("STORE_DRIVER")),
		BuntPath:    v.GetString("BUNT_PATH"),
		DB: DBConfig{
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},

		AMQPURL:       v.GetString("AMQP_URL"),
		DispatchQueue: v.GetString("DISPATCH_QUEUE"),

		MailerDriver:  strings.ToLower(v.GetString("MAILER_DRIVER")),
		EmailAPIURL:   v.GetString("EMAIL_API_URL"),
		MailerTimeout: v.GetDuration("MAILER_TIMEOUT"),
		AttachmentDir: v.GetString("ATTACHMENT_DIR"),

		CloneTimeout:   v.GetDuration("CLONE_TIMEOUT"),
		CloneUserAgent: v.GetString("CLONE_USER_AGENT"),

		SendRate:      v.GetFloat64("SEND_RATE"),
		DispatchLease: v.GetDuration("DISPATCH_LEASE"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}

	if cfg.APIPrefix == "/" {
		cfg.APIPrefix = ""
	}

	return cfg, envLoaded, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverBunt:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.MailerDriver {
	case MailerDriverAPI, MailerDriverSMTP:
	default:
		return fmt.Errorf("unsupported MAILER_DRIVER %q", c.MailerDriver)
	}
	if c.MailerTimeout <= 0 || c.CloneTimeout <= 0 {
		return fmt.Errorf("MAILER_TIMEOUT and CLONE_TIMEOUT must be positive")
	}
	if c.SendRate < 0 {
		return fmt.Errorf("SEND_RATE cannot be negative")
	}
	return nil
}

// DSN builds the Postgres connection string the same way for every binary.
func (d DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}
