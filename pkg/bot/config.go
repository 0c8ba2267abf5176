// Copyright 2024-2026 Aiku AI

package bot

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// MattermostConfig holds the chat backend connection settings.
type MattermostConfig struct {
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token"`
	Botname   string `yaml:"botname"`
}

// OpenAIConfig holds the AI service settings.
type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	APIBase     string  `yaml:"api_base"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// BotConfig holds the dispatch and capability settings.
type BotConfig struct {
	// Plugins lists the capability names to load, in order.
	Plugins []string `yaml:"plugins"`
	// ContextTurns bounds the per-user conversation history.
	ContextTurns int    `yaml:"context_turns"`
	Instruction  string `yaml:"instruction"`

	ChatService  string `yaml:"chat_service"`
	ImageService string `yaml:"image_service"`
	AudioService string `yaml:"audio_service"`

	// ReconnectSeconds is the fixed delay between reconnect attempts.
	ReconnectSeconds int `yaml:"reconnect_seconds"`
	// RequestTimeoutSeconds bounds the dispatch of a single event,
	// including outbound AI calls. Zero disables the bound.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// Config is the full process configuration. It is read once at startup
// and immutable for the process lifetime: values come from an optional
// YAML file, overridden by environment variables.
type Config struct {
	Mattermost MattermostConfig `yaml:"mattermost"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Bot        BotConfig        `yaml:"bot"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Mattermost: MattermostConfig{
			Botname: "@chatgpt-bot",
		},
		OpenAI: OpenAIConfig{
			APIBase:     "https://api.openai.com/v1",
			Model:       "gpt-4o",
			MaxTokens:   2000,
			Temperature: 0.7,
		},
		Bot: BotConfig{
			Plugins:               []string{"chat", "image", "audio"},
			ContextTurns:          50,
			Instruction:           "You are a helpful assistant.",
			ChatService:           "openai",
			ImageService:          "dalle",
			AudioService:          "openai",
			ReconnectSeconds:      5,
			RequestTimeoutSeconds: 120,
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML
// file at path, and environment variable overrides, then validates it.
// A missing file is not an error; env vars alone are a valid deployment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the environment variable surface onto the config.
func (c *Config) applyEnv() error {
	setStr(&c.Mattermost.ServerURL, "MATTERMOST_URL")
	setStr(&c.Mattermost.Token, "MATTERMOST_TOKEN")
	setStr(&c.Mattermost.Botname, "MATTERMOST_BOTNAME")

	setStr(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setStr(&c.OpenAI.APIBase, "OPENAI_API_BASE")
	setStr(&c.OpenAI.Model, "OPENAI_MODEL_NAME")
	if err := setInt(&c.OpenAI.MaxTokens, "OPENAI_MAX_TOKENS"); err != nil {
		return err
	}
	if err := setFloat(&c.OpenAI.Temperature, "OPENAI_TEMPERATURE"); err != nil {
		return err
	}

	if v := os.Getenv("PLUGINS"); v != "" {
		var names []string
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				names = append(names, name)
			}
		}
		c.Bot.Plugins = names
	}
	if err := setInt(&c.Bot.ContextTurns, "BOT_CONTEXT_MSG"); err != nil {
		return err
	}
	setStr(&c.Bot.Instruction, "BOT_INSTRUCTION")
	setStr(&c.Bot.ChatService, "CHAT_SERVICE")
	setStr(&c.Bot.ImageService, "IMAGE_SERVICE")
	setStr(&c.Bot.AudioService, "AUDIO_SERVICE")
	if err := setInt(&c.Bot.ReconnectSeconds, "BOT_RECONNECT_SECONDS"); err != nil {
		return err
	}
	if err := setInt(&c.Bot.RequestTimeoutSeconds, "BOT_REQUEST_TIMEOUT"); err != nil {
		return err
	}
	return nil
}

// Validate checks the settings the process cannot run without.
func (c *Config) Validate() error {
	if c.Mattermost.ServerURL == "" {
		return fmt.Errorf("MATTERMOST_URL is not set")
	}
	if c.Mattermost.Token == "" {
		return fmt.Errorf("MATTERMOST_TOKEN is not set")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if c.Bot.ContextTurns < 0 {
		return fmt.Errorf("context turns must not be negative")
	}
	return nil
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid number %q", key, v)
	}
	*dst = f
	return nil
}
