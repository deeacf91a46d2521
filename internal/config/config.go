package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Polling   PollingConfig   `mapstructure:"polling"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Provision ProvisionConfig `mapstructure:"provision"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv           string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL         time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL        time.Duration `mapstructure:"refresh_token_ttl"`
	MaxFailedLoginAttempts int           `mapstructure:"max_failed_login_attempts"`
	AccountLockDuration    time.Duration `mapstructure:"account_lock_duration"`
}

// PollingConfig drives the acquisition cycle. The interval here is the
// authoritative server-side cadence; dashboard.refresh_interval only
// controls how often clients re-fetch.
type PollingConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	DeviceTimeout time.Duration `mapstructure:"device_timeout"`
	MaxWorkers    int           `mapstructure:"max_workers"`
}

type DashboardConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type ProvisionConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

type NotifyConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig points alarm mail at a relay. The password comes from an
// environment variable, same as the JWT secret.
type SMTPConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	Username    string   `mapstructure:"username"`
	PasswordEnv string   `mapstructure:"password_env"`
	From        string   `mapstructure:"from"`
	To          []string `mapstructure:"to"`
}

func (s *SMTPConfig) Password() string {
	envVar := s.PasswordEnv
	if envVar == "" {
		envVar = "SMTP_PASSWORD"
	}
	return os.Getenv(envVar)
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.shutdown_timeout", "30s")

	viper.SetDefault("polling.interval", "5s")
	viper.SetDefault("polling.device_timeout", "1s")
	viper.SetDefault("polling.max_workers", 8)

	viper.SetDefault("dashboard.refresh_interval", "3s")

	viper.SetDefault("notify.smtp.enabled", false)
	viper.SetDefault("notify.smtp.port", 587)
	viper.SetDefault("notify.smtp.password_env", "SMTP_PASSWORD")

	// Auth Defaults
	viper.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	viper.SetDefault("auth.access_token_ttl", "60m")
	viper.SetDefault("auth.refresh_token_ttl", "168h")
	viper.SetDefault("auth.max_failed_login_attempts", 5)
	viper.SetDefault("auth.account_lock_duration", "15m")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MBMON")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// JWT Secret is read from an environment variable, never from the
// config file itself.
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development fallback only.
		return "dev-secret-change-in-production-min-32-chars"
	}
	return secret
}

func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != "dev-secret-change-in-production-min-32-chars" && len(secret) >= 32
}
