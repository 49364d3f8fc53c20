package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "ROOMCHAT"

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("database_path", "roomchat.db")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("history_limit", 50)
	v.SetDefault("cache_ttl", time.Hour)
	v.SetDefault("default_rooms", []string{"general"})
	v.SetDefault("send_queue_size", 256)
	v.SetDefault("ping_interval", 25*time.Second)
	v.SetDefault("pong_wait", 60*time.Second)
	v.SetDefault("write_wait", 10*time.Second)
	v.SetDefault("max_message_bytes", 8192)
	v.SetDefault("rate_limit.per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("persist.workers", 4)
	v.SetDefault("persist.queue_size", 1024)
	v.SetDefault("persist.write_timeout", 5*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)
}

// ReadConfig reads the configuration from the JSON file at configPath.
// An empty path reads defaults and ROOMCHAT_* environment variables only.
func ReadConfig(configPath string) (Config, error) {
	var cfg Config

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be positive, got %d", c.HistoryLimit)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("send_queue_size must be positive, got %d", c.SendQueueSize)
	}
	if c.Persist.Workers <= 0 || c.Persist.QueueSize <= 0 {
		return fmt.Errorf("persist workers and queue_size must be positive")
	}
	return nil
}
