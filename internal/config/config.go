package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	APIStyleOpenAI = "openai"
	APIStyleGemini = "gemini"
)

const defaultRequestTimeout = 60 * time.Second

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProvidersConfig catalogues configured upstream providers. At least one
// must be present.
type ProvidersConfig struct {
	OpenAI *ProviderConfig `yaml:"openai"`
	Gemini *ProviderConfig `yaml:"gemini"`
}

// ProviderConfig captures authentication and routing info for a provider.
type ProviderConfig struct {
	APIKey  string            `yaml:"api_key"`
	BaseURL string            `yaml:"base_url"`
	Models  []ModelConfig     `yaml:"models"`
	Headers Headers           `yaml:"headers"`
	Aliases map[string]string `yaml:"aliases"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// ModelConfig describes a model exposed by a provider.
type ModelConfig struct {
	ID       string `yaml:"id"`
	APIStyle string `yaml:"api_style"`
}

// Load reads YAML configuration from disk, expands ${VAR} references and
// validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config file %q: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) expandEnv() {
	for _, p := range c.Providers.All() {
		p.Config.APIKey = strings.TrimSpace(os.ExpandEnv(p.Config.APIKey))
		p.Config.BaseURL = strings.TrimSpace(os.ExpandEnv(p.Config.BaseURL))
	}
}

func (c *Config) applyDefaults() {
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = defaultRequestTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// NamedProvider pairs a provider config with its key in the file.
type NamedProvider struct {
	Name   string
	Style  string
	Config *ProviderConfig
}

// All returns the configured providers in a fixed order.
func (p ProvidersConfig) All() []NamedProvider {
	var out []NamedProvider
	if p.OpenAI != nil {
		out = append(out, NamedProvider{Name: "openai", Style: APIStyleOpenAI, Config: p.OpenAI})
	}
	if p.Gemini != nil {
		out = append(out, NamedProvider{Name: "gemini", Style: APIStyleGemini, Config: p.Gemini})
	}
	return out
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	// zero leaves the port unset; only serve needs one
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout must not be negative, got %s", c.Server.RequestTimeout)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q must be one of text or json", c.Log.Format)
	}

	providers := c.Providers.All()
	if len(providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	for _, p := range providers {
		if err := validateProvider(p); err != nil {
			return err
		}
	}

	return nil
}

func validateProvider(p NamedProvider) error {
	name, provider := p.Name, p.Config
	if provider.APIKey == "" {
		return fmt.Errorf("provider %s: api_key must be provided", name)
	}
	// gemini falls back to the SDK default endpoint
	if p.Style == APIStyleOpenAI && provider.BaseURL == "" {
		return fmt.Errorf("provider %s: base_url must be provided", name)
	}
	if len(provider.Models) == 0 {
		return fmt.Errorf("provider %s: at least one model must be configured", name)
	}

	for _, model := range provider.Models {
		if strings.TrimSpace(model.ID) == "" {
			return fmt.Errorf("provider %s: model id must not be empty", name)
		}
		if model.APIStyle != "" && model.APIStyle != p.Style {
			return fmt.Errorf("provider %s: model %q api_style %q must be %q", name, model.ID, model.APIStyle, p.Style)
		}
	}

	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}

	for alias, target := range provider.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("provider %s: alias name must not be empty", name)
		}
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("provider %s: alias %q target must not be empty", name, alias)
		}
	}

	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
