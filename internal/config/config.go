package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "COLLAB"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabasePath        = "collab.db"
	defaultLogLevel            = "info"
	defaultMaxRoomParticipants = 50
	defaultSnapshotTTL         = 30 * 24 * time.Hour
	defaultEvictionInterval    = 5 * time.Minute
	defaultIdleEvictionAfter   = 30 * time.Minute
	defaultKafkaTopic          = "doc-ops"
	defaultTokenIssuer         = "collab-api"
	defaultTokenAudience       = "collab-clients"
)

// AppConfig captures runtime configuration for the collaboration server.
type AppConfig struct {
	HTTPAddress         string
	DatabasePath        string
	LogLevel            string
	SigningSecret       string
	TokenIssuer         string
	TokenAudience       string
	RedisAddress        string
	RedisPassword       string
	MaxRoomParticipants int
	SnapshotTTL         time.Duration
	EvictionInterval    time.Duration
	IdleEvictionAfter   time.Duration
	KafkaBrokers        []string
	KafkaTopic          string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("room.max_participants", defaultMaxRoomParticipants)
	configViper.SetDefault("document.snapshot_ttl", defaultSnapshotTTL)
	configViper.SetDefault("document.eviction_interval", defaultEvictionInterval)
	configViper.SetDefault("document.idle_eviction_after", defaultIdleEvictionAfter)
	configViper.SetDefault("kafka.topic", defaultKafkaTopic)
}

// Load parses runtime configuration from viper. Redis and Kafka are
// optional; leaving their addresses empty selects in-process fallbacks.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		SigningSecret:       configViper.GetString("auth.signing_secret"),
		TokenIssuer:         configViper.GetString("auth.issuer"),
		TokenAudience:       configViper.GetString("auth.audience"),
		RedisAddress:        configViper.GetString("redis.address"),
		RedisPassword:       configViper.GetString("redis.password"),
		MaxRoomParticipants: configViper.GetInt("room.max_participants"),
		SnapshotTTL:         configViper.GetDuration("document.snapshot_ttl"),
		EvictionInterval:    configViper.GetDuration("document.eviction_interval"),
		IdleEvictionAfter:   configViper.GetDuration("document.idle_eviction_after"),
		KafkaBrokers:        splitList(configViper.GetString("kafka.brokers")),
		KafkaTopic:          configViper.GetString("kafka.topic"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.MaxRoomParticipants <= 0 {
		return fmt.Errorf("room.max_participants must be positive")
	}
	if c.EvictionInterval <= 0 || c.IdleEvictionAfter <= 0 {
		return fmt.Errorf("document eviction intervals must be positive")
	}
	return nil
}
