package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the support service and its clients
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Client   ClientConfig   `mapstructure:"client"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	AdminToken string `mapstructure:"admin_token"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ClientConfig holds the embedded client configuration
type ClientConfig struct {
	APIURL      string `mapstructure:"api_url"`
	RealtimeURL string `mapstructure:"realtime_url"`
	PageSize    int    `mapstructure:"page_size"`
}

// RealtimeConfig holds realtime channel tuning
type RealtimeConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("CDW")
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("auth.admin_token", "")

	v.SetDefault("database.path", "./data/support.db")

	v.SetDefault("client.api_url", "http://localhost:8080")
	v.SetDefault("client.realtime_url", "ws://localhost:8080/ws")
	v.SetDefault("client.page_size", 50)

	v.SetDefault("realtime.heartbeat_interval", "4s")
	v.SetDefault("realtime.reconnect_delay", "5s")
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
