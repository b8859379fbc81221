package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Email    EmailConfig
	Push     PushConfig
	Engine   EngineConfig
	Outbox   OutboxRelayConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	HTTPPort    int           `mapstructure:"http_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	BaseURL     string        `mapstructure:"base_url"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Password    string   `mapstructure:"password"`
	DB          int      `mapstructure:"db"`
	PoolSize    int      `mapstructure:"pool_size"`
	ClusterMode bool     `mapstructure:"cluster_mode"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	CronSecret string        `mapstructure:"cron_secret"`
}

type EmailConfig struct {
	APIKey       string `mapstructure:"api_key"`
	APIEndpoint  string `mapstructure:"api_endpoint"`
	FromAddress  string `mapstructure:"from_address"`
	AlertAddress string `mapstructure:"alert_address"`
}

type PushConfig struct {
	VAPIDSubject    string `mapstructure:"vapid_subject"`
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
}

type EngineConfig struct {
	WelcomeLookbackDays int           `mapstructure:"welcome_lookback_days"`
	DefaultInactiveDays int           `mapstructure:"default_inactive_days"`
	WinBackCooldownDays int           `mapstructure:"win_back_cooldown_days"`
	ItemTimeout         time.Duration `mapstructure:"item_timeout"`
	TickBatchSize       int           `mapstructure:"tick_batch_size"`
	TickInterval        time.Duration `mapstructure:"tick_interval"`
}

type OutboxRelayConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/perkflow/")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("PERKFLOW")
	viper.AutomaticEnv()

	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.base_url", "http://localhost:8080")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("redis.pool_size", 100)
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("email.api_endpoint", "https://api.resend.com/emails")
	viper.SetDefault("engine.welcome_lookback_days", 3)
	viper.SetDefault("engine.default_inactive_days", 30)
	viper.SetDefault("engine.win_back_cooldown_days", 90)
	viper.SetDefault("engine.item_timeout", "15s")
	viper.SetDefault("engine.tick_batch_size", 500)
	viper.SetDefault("engine.tick_interval", "1m")
	viper.SetDefault("outbox.poll_interval", "5s")
	viper.SetDefault("outbox.batch_size", 100)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
