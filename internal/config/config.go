package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Replay   ReplayConfig   `mapstructure:"replay"`
}

// ServerConfig holds transport settings.
type ServerConfig struct {
	WebSocket      WebSocketConfig `mapstructure:"websocket"`
	GRPC           GRPCConfig      `mapstructure:"grpc"`
	ConnectTimeout time.Duration   `mapstructure:"connect_timeout"`
	AckTimeout     time.Duration   `mapstructure:"ack_timeout"`
}

// WebSocketConfig configures the match sync endpoint.
type WebSocketConfig struct {
	Address         string `mapstructure:"address"`
	Path            string `mapstructure:"path"`
	MaxMessageBytes int64  `mapstructure:"max_message_bytes"`
	// CompactSnapshots strips catalog fields from cards in outbound
	// states; peers restore them from their own catalog.
	CompactSnapshots bool `mapstructure:"compact_snapshots"`
}

// GRPCConfig configures the admin endpoint.
type GRPCConfig struct {
	Address              string `mapstructure:"address"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig configures the Postgres store. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// CatalogConfig points at the card catalog source.
type CatalogConfig struct {
	Path         string `mapstructure:"path"`
	FromDatabase bool   `mapstructure:"from_database"`
}

// RulesConfig holds the baseline game constants.
type RulesConfig struct {
	StartingHealth    int  `mapstructure:"starting_health"`
	MaxMana           int  `mapstructure:"max_mana"`
	FieldCapacity     int  `mapstructure:"field_capacity"`
	HandCapacity      int  `mapstructure:"hand_capacity"`
	FirstHandSize     int  `mapstructure:"first_hand_size"`
	SecondHandSize    int  `mapstructure:"second_hand_size"`
	MinDeckSize       int  `mapstructure:"min_deck_size"`
	MaxDeckSize       int  `mapstructure:"max_deck_size"`
	MaxCopies         int  `mapstructure:"max_copies"`
	SweepIterationCap int  `mapstructure:"sweep_iteration_cap"`
	ShuffleDecks      bool `mapstructure:"shuffle_decks"`
}

// ReplayConfig controls replay recording.
type ReplayConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

// DefaultRules returns the baseline rule constants.
func DefaultRules() RulesConfig {
	return RulesConfig{
		StartingHealth:    30,
		MaxMana:           10,
		FieldCapacity:     7,
		HandCapacity:      10,
		FirstHandSize:     3,
		SecondHandSize:    4,
		MinDeckSize:       20,
		MaxDeckSize:       40,
		MaxCopies:         2,
		SweepIterationCap: 5,
		ShuffleDecks:      true,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.path", "/ws")
	v.SetDefault("server.websocket.max_message_bytes", 1<<20)
	v.SetDefault("server.websocket.compact_snapshots", true)
	v.SetDefault("server.grpc.address", ":9090")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)
	v.SetDefault("server.connect_timeout", 5*time.Second)
	v.SetDefault("server.ack_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.max_conns", 10)

	v.SetDefault("catalog.path", "config/cards.yaml")

	rules := DefaultRules()
	v.SetDefault("rules.starting_health", rules.StartingHealth)
	v.SetDefault("rules.max_mana", rules.MaxMana)
	v.SetDefault("rules.field_capacity", rules.FieldCapacity)
	v.SetDefault("rules.hand_capacity", rules.HandCapacity)
	v.SetDefault("rules.first_hand_size", rules.FirstHandSize)
	v.SetDefault("rules.second_hand_size", rules.SecondHandSize)
	v.SetDefault("rules.min_deck_size", rules.MinDeckSize)
	v.SetDefault("rules.max_deck_size", rules.MaxDeckSize)
	v.SetDefault("rules.max_copies", rules.MaxCopies)
	v.SetDefault("rules.sweep_iteration_cap", rules.SweepIterationCap)
	v.SetDefault("rules.shuffle_decks", rules.ShuffleDecks)

	v.SetDefault("replay.enabled", false)
	v.SetDefault("replay.directory", "replays")
}

// Load reads configuration from path (optional) and MYSTIC_* environment
// variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MYSTIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	r := c.Rules
	switch {
	case r.StartingHealth <= 0:
		return fmt.Errorf("rules.starting_health must be positive")
	case r.MaxMana <= 0:
		return fmt.Errorf("rules.max_mana must be positive")
	case r.FieldCapacity <= 0 || r.HandCapacity <= 0:
		return fmt.Errorf("rules field and hand capacity must be positive")
	case r.MinDeckSize > r.MaxDeckSize:
		return fmt.Errorf("rules.min_deck_size %d exceeds max_deck_size %d", r.MinDeckSize, r.MaxDeckSize)
	case r.SweepIterationCap <= 0:
		return fmt.Errorf("rules.sweep_iteration_cap must be positive")
	}
	if c.Server.AckTimeout <= 0 || c.Server.ConnectTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
