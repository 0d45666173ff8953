package fimlet

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	defaults "github.com/Paranoid-AF/fimlet/default"
	"github.com/Paranoid-AF/fimlet/prompt"
)

// Config represents the user's fimlet configuration.
type Config struct {
	Version    int              `json:"version"`
	Completion CompletionConfig `json:"completion"`
	Generation GenerationConfig `json:"generation"`
	Redaction  RedactionConfig  `json:"redaction"`
	Session    SessionConfig    `json:"session"`
}

// CompletionConfig holds the debounce, context window and multiline settings.
type CompletionConfig struct {
	DebounceMs     int    `json:"debounce_ms"`
	Multiline      bool   `json:"multiline"`
	MaxLinesAbove  int    `json:"max_lines_above"`
	MaxLinesBelow  int    `json:"max_lines_below"`
	PromptTemplate string `json:"prompt_template,omitempty"`
}

// GenerationConfig holds settings for the completion API.
type GenerationConfig struct {
	BaseURL           string  `json:"base_url"`
	APIKey            string  `json:"api_key"`
	APIType           string  `json:"api_type"`
	Model             string  `json:"model"`
	MaxTokens         int     `json:"max_tokens,omitempty"`
	Temperature       float64 `json:"temperature"`
	Seed              *int    `json:"seed,omitempty"`
	TimeoutSeconds    int     `json:"timeout_seconds,omitempty"`
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
}

// RedactionConfig controls secret redaction in prompt context.
type RedactionConfig struct {
	Shell *bool `json:"shell,omitempty"`
}

// SessionConfig controls per-session state kept by the daemon.
type SessionConfig struct {
	IdleTTLMinutes int `json:"idle_ttl_minutes"`
}

// ConfigDir returns the config directory path.
// Resolution order: $FIMLET_CONFIG_DIR > $XDG_CONFIG_HOME/fimlet > ~/.config/fimlet
func ConfigDir() string {
	if dir := os.Getenv("FIMLET_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "fimlet")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "fimlet-config")
	}
	return filepath.Join(home, ".config", "fimlet")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// PromptPath returns the custom prompt template file path.
func PromptPath() string {
	return filepath.Join(ConfigDir(), "prompt.txt")
}

// DefaultConfig returns the default configuration from the embedded default_config.json.
func DefaultConfig() *Config {
	var cfg Config
	if err := json.Unmarshal(defaults.DefaultConfigJSON, &cfg); err != nil {
		panic("fimlet: invalid embedded default_config.json: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes a config file over the defaults. Keys absent from the
// file keep their default value; keys present, zeros included, override it.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	if cfg.Completion.DebounceMs < 0 {
		warnings = append(warnings, "debounce_ms is negative; completions will fire without delay")
	}
	if cfg.Completion.MaxLinesAbove < 0 || cfg.Completion.MaxLinesBelow < 0 {
		warnings = append(warnings, "max_lines_above/max_lines_below are negative; context will not be truncated")
	}
	if cfg.Session.IdleTTLMinutes < 0 {
		warnings = append(warnings, "idle_ttl_minutes is negative; idle sessions will never expire")
	}
	switch cfg.Generation.APIType {
	case "completions", "chat_completions":
	default:
		warnings = append(warnings, "unknown api_type "+cfg.Generation.APIType+"; falling back to completions")
	}
	if cfg.Completion.Multiline && cfg.Generation.MaxTokens > 0 && cfg.Generation.MaxTokens < 16 {
		warnings = append(warnings, "multiline is enabled but max_tokens is below 16; completions will be cut short")
	}
	above, below := prompt.HasPlaceholders(ResolvePromptTemplate(cfg))
	if !above {
		warnings = append(warnings, "prompt template has no "+prompt.PlaceholderAbove+" placeholder; the model will not see the code above the cursor")
	}
	if !below {
		warnings = append(warnings, "prompt template has no "+prompt.PlaceholderBelow+" placeholder")
	}
	return warnings
}

// ResolvePromptTemplate returns the prompt template.
// Priority: prompt.txt in the config dir > config value > embedded default.
func ResolvePromptTemplate(cfg *Config) string {
	if data, err := os.ReadFile(PromptPath()); err == nil && strings.TrimSpace(string(data)) != "" {
		return strings.TrimRight(string(data), "\n")
	}
	if cfg != nil && cfg.Completion.PromptTemplate != "" {
		return cfg.Completion.PromptTemplate
	}
	return defaults.DefaultPrompt
}

// ResolveGenerationBaseURL returns the generation API base URL.
// Priority: $FIMLET_GENERATION_API_BASE_URL env > config value.
func ResolveGenerationBaseURL(cfg *Config) string {
	if url := os.Getenv("FIMLET_GENERATION_API_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Generation.BaseURL
	}
	return ""
}

// ResolveGenerationAPIKey returns the generation API key.
// Priority: $FIMLET_GENERATION_API_KEY env > config value.
func ResolveGenerationAPIKey(cfg *Config) string {
	if key := os.Getenv("FIMLET_GENERATION_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Generation.APIKey
	}
	return ""
}

// ResolveGenerationModel returns the generation model name.
// Priority: $FIMLET_GENERATION_MODEL env > config value.
func ResolveGenerationModel(cfg *Config) string {
	if model := os.Getenv("FIMLET_GENERATION_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Generation.Model
	}
	return ""
}

// ShellRedactionEnabled returns whether shell documents get secret redaction.
func ShellRedactionEnabled(cfg *Config) bool {
	if cfg == nil || cfg.Redaction.Shell == nil {
		return true // default true
	}
	return *cfg.Redaction.Shell
}

// Debounce returns the debounce interval.
func (c *Config) Debounce() time.Duration {
	if c.Completion.DebounceMs < 0 {
		return 0
	}
	return time.Duration(c.Completion.DebounceMs) * time.Millisecond
}

// SessionTTL returns how long an idle session is kept. Zero or less keeps
// sessions until they are ended explicitly.
func (c *Config) SessionTTL() time.Duration {
	if c.Session.IdleTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Session.IdleTTLMinutes) * time.Minute
}
