package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/lessonpulse/notify/internal/domain"
)

// Config is the full server configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Engine      EngineConfig      `mapstructure:"engine"`
	EventStream EventStreamConfig `mapstructure:"event_stream"`
	Push        PushConfig        `mapstructure:"push"`
	Preferences PreferencesConfig `mapstructure:"preferences"`

	// ConfigFile records which file was actually loaded
	ConfigFile string `mapstructure:"-"`
}

// ServerConfig configures the REST listener
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
}

// EngineConfig tunes the delivery engine
type EngineConfig struct {
	// MaxVisibleAlerts bounds simultaneous in-app alerts; overflow queues FIFO
	MaxVisibleAlerts int `mapstructure:"max_visible_alerts"`

	// ExitTransition is how long an alert lingers in the closing state
	ExitTransition time.Duration `mapstructure:"exit_transition"`

	// GroupingInterval is how long batched notifications wait before a
	// grouped flush if no later admission merges them first
	GroupingInterval time.Duration `mapstructure:"grouping_interval"`

	// DisplayDurations maps category name to the default in-app alert
	// duration. Categories absent from the map use DefaultDisplayDuration.
	DisplayDurations       map[string]time.Duration `mapstructure:"display_durations"`
	DefaultDisplayDuration time.Duration            `mapstructure:"default_display_duration"`
}

// DisplayDuration returns the configured in-app duration for a category
func (e EngineConfig) DisplayDuration(category domain.Category) time.Duration {
	if d, ok := e.DisplayDurations[string(category)]; ok {
		return d
	}
	return e.DefaultDisplayDuration
}

// Validate checks the engine knobs
func (e EngineConfig) Validate() error {
	if e.MaxVisibleAlerts <= 0 {
		return errors.New("engine.max_visible_alerts must be positive")
	}
	if e.GroupingInterval <= 0 {
		return errors.New("engine.grouping_interval must be positive")
	}
	return nil
}

// EventStreamConfig configures the inbound websocket event listener
type EventStreamConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	BackoffMin time.Duration `mapstructure:"backoff_min"`
	BackoffMax time.Duration `mapstructure:"backoff_max"`
}

// Validate checks the stream settings
func (s EventStreamConfig) Validate() error {
	if s.Enabled && s.URL == "" {
		return errors.New("event_stream.url is required when the stream is enabled")
	}
	if s.BackoffMin > s.BackoffMax {
		return errors.New("event_stream.backoff_min must not exceed backoff_max")
	}
	return nil
}

// PushConfig configures the webhook-backed push provider used by the server
// binary. A host embedding the engine supplies its own provider instead.
type PushConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
}

// Validate checks the push settings
func (p PushConfig) Validate() error {
	if p.Enabled && p.URL == "" {
		return errors.New("push.url is required when push is enabled")
	}
	return nil
}

// PreferencesConfig locates the persisted preference file
type PreferencesConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads configuration from the given file, falling back to
// ./config.yaml, with NOTIFY_-prefixed environment overrides.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/notify")
	}

	v.SetEnvPrefix("NOTIFY")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No file is fine, defaults and env cover everything
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EventStream.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Push.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output_path", "stdout")

	v.SetDefault("engine.max_visible_alerts", 3)
	v.SetDefault("engine.exit_transition", 300*time.Millisecond)
	v.SetDefault("engine.grouping_interval", 5*time.Second)
	v.SetDefault("engine.default_display_duration", 5*time.Second)
	v.SetDefault("engine.display_durations", map[string]time.Duration{
		string(domain.CategoryError):       8 * time.Second,
		string(domain.CategoryWarning):     6 * time.Second,
		string(domain.CategoryAchievement): 7 * time.Second,
		string(domain.CategoryProgress):    3 * time.Second,
	})

	v.SetDefault("event_stream.enabled", false)
	v.SetDefault("event_stream.backoff_min", time.Second)
	v.SetDefault("event_stream.backoff_max", 30*time.Second)

	v.SetDefault("push.enabled", false)

	v.SetDefault("preferences.path", "preferences.json")
}

// Sanitize returns a copy safe for startup logging, with secrets redacted
func (c *Config) Sanitize() Config {
	out := *c
	if out.Push.Token != "" {
		out.Push.Token = "***"
	}
	return out
}
