package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DBConfig 数据库配置
type DBConfig struct {
	Driver             string        `yaml:"driver" env:"DB_DRIVER"`
	Host               string        `yaml:"host" env:"DB_HOST"`
	Port               int           `yaml:"port" env:"DB_PORT"`
	User               string        `yaml:"user" env:"DB_USER"`
	Password           string        `yaml:"password" env:"DB_PASSWORD"`
	Name               string        `yaml:"name" env:"DB_NAME"`
	Path               string        `yaml:"path" env:"DB_PATH"` // sqlite only
	MaxConns           int32         `yaml:"max_conns" env:"DB_MAX_CONNS"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" env:"DB_SLOW_QUERY_THRESHOLD"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DSN returns the postgres connection string for the configured server.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// IsSQLite reports whether the audit store runs on the embedded sqlite driver.
func (c DBConfig) IsSQLite() bool {
	return strings.EqualFold(c.Driver, DriverSQLite)
}

// MQConfig 消息队列配置. An empty URL means no broker is deployed.
type MQConfig struct {
	URL string `yaml:"url" env:"MQ_URL"`
}

// Enabled reports whether a broker URL has been configured.
func (c MQConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// Enabled reports whether a Redis address has been configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            string        `yaml:"port" env:"SERVER_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// OverrideFromEnv 从环境变量覆盖配置. Only variables that are set replace values
// already loaded from YAML.
func OverrideFromEnv(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}
