package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Presence PresenceConfig `yaml:"presence"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	SecretKey string `yaml:"secret_key"`
}

type PresenceConfig struct {
	// SessionTTL bounds how long session and socket-set keys survive
	// without a refresh (crash recovery).
	SessionTTL time.Duration `yaml:"-"`
	// ReconcileSchedule is a cron expression for the online-set sweep.
	// Empty disables the job.
	ReconcileSchedule string `yaml:"reconcile_schedule"`
	// EventChannel is the pub/sub channel presence events are broadcast on.
	EventChannel string `yaml:"event_channel"`
}

// UnmarshalYAML accepts session_ttl as a Go duration string ("24h").
func (p *PresenceConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		SessionTTL        string  `yaml:"session_ttl"`
		ReconcileSchedule *string `yaml:"reconcile_schedule"`
		EventChannel      string  `yaml:"event_channel"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	if raw.SessionTTL != "" {
		d, err := time.ParseDuration(raw.SessionTTL)
		if err != nil {
			return fmt.Errorf("invalid session_ttl %q: %w", raw.SessionTTL, err)
		}
		p.SessionTTL = d
	}
	// An explicitly empty schedule disables the sweep, so absent and
	// empty must stay distinguishable here.
	if raw.ReconcileSchedule != nil {
		p.ReconcileSchedule = *raw.ReconcileSchedule
	}
	if raw.EventChannel != "" {
		p.EventChannel = raw.EventChannel
	}
	return nil
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     8004,
			BasePath: "/api/presence",
			Env:      "dev",
			LogLevel: "debug",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			DB:   0,
		},
		Presence: PresenceConfig{
			SessionTTL:        24 * time.Hour,
			ReconcileSchedule: "*/5 * * * *",
			EventChannel:      "presence:events",
		},
	}

	// Load from yaml file if exists
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override with environment variables
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if basePath := os.Getenv("SERVER_BASE_PATH"); basePath != "" {
		cfg.Server.BasePath = basePath
	}
	if env := os.Getenv("ENV"); env != "" {
		cfg.Server.Env = env
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		cfg.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		if p, err := strconv.Atoi(redisPort); err == nil {
			cfg.Redis.Port = p
		}
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}
	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		if d, err := strconv.Atoi(redisDB); err == nil {
			cfg.Redis.DB = d
		}
	}
	if secretKey := os.Getenv("SECRET_KEY"); secretKey != "" {
		cfg.Auth.SecretKey = secretKey
	}
	if ttl := os.Getenv("PRESENCE_SESSION_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			cfg.Presence.SessionTTL = d
		}
	}
	if sched, ok := os.LookupEnv("PRESENCE_RECONCILE_SCHEDULE"); ok {
		cfg.Presence.ReconcileSchedule = sched
	}

	return cfg, nil
}
