package config

import (
	"fmt"
	"strings"
	"time"

	"notifyrouter/internal/service/channel"
	"notifyrouter/pkg/circuitbreaker"
	pkgconfig "notifyrouter/pkg/config"
	"notifyrouter/pkg/otel"
	"notifyrouter/pkg/workerpool"
)

const (
	MailProviderSMTP     = "smtp"
	MailProviderPostmark = "postmark"
	MailProviderLog      = "log"
)

type Config struct {
	Log      LogConfig              `yaml:"log"`
	Server   pkgconfig.ServerConfig `yaml:"server"`
	DB       pkgconfig.DBConfig     `yaml:"db"`
	MQ       pkgconfig.MQConfig     `yaml:"mq"`
	Redis    pkgconfig.RedisConfig  `yaml:"redis"`
	Mail     MailConfig             `yaml:"mail"`
	Dispatch workerpool.Config      `yaml:"dispatch"`
	Consumer ConsumerConfig         `yaml:"consumer"`
	Tracing  otel.Config            `yaml:"tracing"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

type MailConfig struct {
	Provider string                 `yaml:"provider" env:"MAIL_PROVIDER"`
	From     string                 `yaml:"from" env:"MAIL_FROM"`
	SMTP     channel.SMTPConfig     `yaml:"smtp"`
	Postmark channel.PostmarkConfig `yaml:"postmark"`
	Breaker  BreakerConfig          `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker in front of the mail transport.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"MAIL_BREAKER_FAILURE_THRESHOLD"`
	SuccessThreshold int           `yaml:"success_threshold" env:"MAIL_BREAKER_SUCCESS_THRESHOLD"`
	OpenTimeout      time.Duration `yaml:"open_timeout" env:"MAIL_BREAKER_OPEN_TIMEOUT"`
}

func (b BreakerConfig) CircuitBreaker() circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold: b.FailureThreshold,
		SuccessThreshold: b.SuccessThreshold,
		Timeout:          b.OpenTimeout,
	}
}

type ConsumerConfig struct {
	Enabled    bool  `yaml:"enabled" env:"CONSUMER_ENABLED"`
	MaxRetries int64 `yaml:"max_retries" env:"CONSUMER_MAX_RETRIES"`
}

// Load reads base.yaml and <env>.yaml from dir, then applies environment overrides.
func Load(env, dir string) (*Config, error) {
	cfgMap, err := pkgconfig.LoadLayers(env, dir)
	if err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := pkgconfig.Decode(cfgMap, cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	if err := pkgconfig.OverrideFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Log:    LogConfig{Level: "info"},
		Server: pkgconfig.ServerConfig{Port: ":8080", ShutdownTimeout: 30 * time.Second},
		DB:     pkgconfig.DBConfig{Driver: pkgconfig.DriverPostgres, Port: 5432},
		Mail: MailConfig{
			Provider: MailProviderLog,
			From:     channel.DefaultFromAddress,
		},
		Dispatch: workerpool.Config{Workers: 4, QueueSize: 256},
		Consumer: ConsumerConfig{Enabled: true, MaxRetries: 3},
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.DB.Driver) {
	case pkgconfig.DriverPostgres, pkgconfig.DriverSQLite:
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}

	c.Mail.Provider = strings.ToLower(c.Mail.Provider)
	switch c.Mail.Provider {
	case MailProviderSMTP:
		if c.Mail.SMTP.Host == "" {
			return fmt.Errorf("mail.smtp.host is required for the smtp provider")
		}
	case MailProviderPostmark, MailProviderLog:
	default:
		return fmt.Errorf("unsupported mail.provider %q", c.Mail.Provider)
	}
	return nil
}
