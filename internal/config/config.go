package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	Identity IdentityConfig `envPrefix:"IDENTITY_"`
	Limits   LimitsConfig   `envPrefix:"LIMITS_"`
	Session  SessionConfig  `envPrefix:"SESSION_"`
	Spam     SpamConfig     `envPrefix:"SPAM_"`
}

type ServerConfig struct {
	Port       string `env:"PORT" envDefault:"8080"`
	Host       string `env:"HOST" envDefault:"0.0.0.0"`
	AdminToken string `env:"ADMIN_TOKEN"`
}

type DatabaseConfig struct {
	Hosts    []string `env:"HOSTS" envDefault:"localhost:27017"`
	Database string   `env:"DATABASE" envDefault:"messenger"`
	Username string   `env:"USERNAME"`
	Password string   `env:"PASSWORD"`
	AuthDB   string   `env:"AUTH_DB" envDefault:"admin"`
	Direct   bool     `env:"DIRECT" envDefault:"true"`
}

type KafkaConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"true"`
	Brokers []string `env:"BROKERS" envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"messenger-feed"`
	GroupID string   `env:"GROUP_ID" envDefault:"messenger-core"`
}

type IdentityConfig struct {
	BaseURL string `env:"BASE_URL,required"`
	Token   string `env:"TOKEN"`
}

// LimitsConfig carries the rate-limit and escalation windows. Defaults
// match the portal's production values.
type LimitsConfig struct {
	MessageWindow time.Duration `env:"MESSAGE_WINDOW" envDefault:"8s"`
	MessageMax    int           `env:"MESSAGE_MAX" envDefault:"5"`

	CommentCooldown    time.Duration `env:"COMMENT_COOLDOWN" envDefault:"30s"`
	CommentBurstWindow time.Duration `env:"COMMENT_BURST_WINDOW" envDefault:"10m"`
	CommentBurstMax    int           `env:"COMMENT_BURST_MAX" envDefault:"3"`
	TargetRestriction  time.Duration `env:"TARGET_RESTRICTION" envDefault:"1h"`
	GlobalRestriction  time.Duration `env:"GLOBAL_RESTRICTION" envDefault:"6h"`
	SpamTargetCount    int           `env:"SPAM_TARGET_COUNT" envDefault:"3"`
}

type SessionConfig struct {
	ListPollInterval     time.Duration `env:"LIST_POLL_INTERVAL" envDefault:"5s"`
	TimelinePollInterval time.Duration `env:"TIMELINE_POLL_INTERVAL" envDefault:"3s"`
	PresenceStaleness    time.Duration `env:"PRESENCE_STALENESS" envDefault:"5m"`
	KeepAliveInterval    time.Duration `env:"KEEP_ALIVE_INTERVAL" envDefault:"30s"`
}

type SpamConfig struct {
	MaxMessageLength  int           `env:"MAX_MESSAGE_LENGTH" envDefault:"1000"`
	RepetitionHorizon time.Duration `env:"REPETITION_HORIZON" envDefault:"30s"`
	RepetitionDepth   int           `env:"REPETITION_DEPTH" envDefault:"3"`
	MaxCharRun        int           `env:"MAX_CHAR_RUN" envDefault:"12"`
	DenyPatterns      []string      `env:"DENY_PATTERNS" envSeparator:"|"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
