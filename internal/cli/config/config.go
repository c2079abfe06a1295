// Package config loads the registry configuration from sdmxreg.yml and the
// environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the registry configuration.
type Config struct {
	// SenderID identifies this registry in response message headers.
	SenderID string `mapstructure:"sender_id"`

	// Languages are the response languages for translated texts, in
	// preference order.
	Languages []string `mapstructure:"languages"`

	// StructureURLBase prefixes the structureURL attribute on rendered
	// stubs.
	StructureURLBase string `mapstructure:"structure_url_base"`

	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// DatabaseConfig selects the backing database.
type DatabaseConfig struct {
	// Driver is "pgx" or "sqlite3".
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// ServerConfig holds the HTTP listen settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig configures the render cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Addr returns the server listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads sdmxreg.yml (or .yaml) from the current directory, then
// applies SDMXREG_* environment overrides. A missing config file is fine;
// defaults apply.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("sender_id", "SDMXREG")
	v.SetDefault("languages", []string{"en"})
	v.SetDefault("structure_url_base", "http://localhost:8080/sdmx/structure")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "sdmxreg.db")
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.ttl", 5*time.Minute)

	v.SetConfigName("sdmxreg")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SDMXREG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// DATABASE_URL wins over both file and prefixed environment.
	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.URL = url
	}

	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "pgx", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be pgx or sqlite3, got %q", cfg.Database.Driver)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if len(cfg.Languages) == 0 {
		return fmt.Errorf("languages must not be empty")
	}
	return nil
}
