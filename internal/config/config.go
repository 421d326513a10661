// ABOUTME: Configuration loading and parsing for chat-bridge
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chat-bridge configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Messenger MessengerConfig `yaml:"messenger"`
	GuestChat GuestChatConfig `yaml:"guestchat"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the webhook/health HTTP server configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// MessengerConfig holds customer messaging platform credentials and timing
type MessengerConfig struct {
	APIBase string `yaml:"api_base"`
	KeyID   string `yaml:"key_id"`
	Secret  string `yaml:"secret"`

	TypingStopDelay time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TypingStopDelayRaw string `yaml:"typing_stop_delay"`
}

// GuestChatConfig holds contact-center guest chat deployment configuration
type GuestChatConfig struct {
	APIBase      string `yaml:"api_base"`
	OrgID        string `yaml:"org_id"`
	DeploymentID string `yaml:"deployment_id"`
	QueueName    string `yaml:"queue_name"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultTypingStopDelay is used when messenger.typing_stop_delay is not set.
const DefaultTypingStopDelay = 5 * time.Second

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Messenger.APIBase == "" {
		return fmt.Errorf("messenger.api_base is required")
	}
	if c.Messenger.KeyID == "" {
		return fmt.Errorf("messenger.key_id is required")
	}
	if c.Messenger.Secret == "" {
		return fmt.Errorf("messenger.secret is required")
	}

	if c.GuestChat.APIBase == "" {
		return fmt.Errorf("guestchat.api_base is required")
	}
	if c.GuestChat.OrgID == "" {
		return fmt.Errorf("guestchat.org_id is required")
	}
	if c.GuestChat.DeploymentID == "" {
		return fmt.Errorf("guestchat.deployment_id is required")
	}
	if c.GuestChat.QueueName == "" {
		return fmt.Errorf("guestchat.queue_name is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Messenger.TypingStopDelayRaw == "" {
		cfg.Messenger.TypingStopDelay = DefaultTypingStopDelay
		return nil
	}

	d, err := time.ParseDuration(cfg.Messenger.TypingStopDelayRaw)
	if err != nil {
		return fmt.Errorf("parsing typing_stop_delay %q: %w", cfg.Messenger.TypingStopDelayRaw, err)
	}
	if d <= 0 {
		return fmt.Errorf("typing_stop_delay must be positive, got %q", cfg.Messenger.TypingStopDelayRaw)
	}
	cfg.Messenger.TypingStopDelay = d
	return nil
}
