package voiceai

import (
	"fmt"
	"os"
	"strings"

	"github.com/ankit-yadav1234/voiceai/shared"
	"github.com/goccy/go-yaml"
)

// Environment variable keys
const (
	EnvURL       = "LIVEKIT_URL"
	EnvAPIKey    = "LIVEKIT_API_KEY"
	EnvAPISecret = "LIVEKIT_API_SECRET"
)

// Config carries the three values every upstream call needs. It is built
// once at process start and passed by reference into each handler; nothing
// reads the environment at request time. An incomplete Config is legal to
// hold; Validate turns the gaps into a typed error per request.
type Config struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// ConfigFromEnv builds the config from the LIVEKIT_* variables. Missing
// values are kept empty rather than failing here, so each request can fail
// on its own with a ConfigurationError.
func ConfigFromEnv() *Config {
	return &Config{
		URL:       shared.MustGetenv(shared.GetenvString, EnvURL, false, ""),
		APIKey:    shared.MustGetenv(shared.GetenvString, EnvAPIKey, false, ""),
		APISecret: shared.MustGetenv(shared.GetenvString, EnvAPISecret, false, ""),
	}
}

// LoadConfigFile reads a YAML config. Values present in the environment win
// over the file, so deployments can override a checked-in default.
func LoadConfigFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := new(Config)
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	env := ConfigFromEnv()
	if env.URL != "" {
		cfg.URL = env.URL
	}
	if env.APIKey != "" {
		cfg.APIKey = env.APIKey
	}
	if env.APISecret != "" {
		cfg.APISecret = env.APISecret
	}
	return cfg, nil
}

// Validate reports every missing value at once.
func (c *Config) Validate() error {
	var missing []string
	if c.URL == "" {
		missing = append(missing, EnvURL)
	}
	if c.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if c.APISecret == "" {
		missing = append(missing, EnvAPISecret)
	}
	if len(missing) > 0 {
		return &shared.ConfigurationError{Missing: missing}
	}
	return nil
}

// DispatchHost rewrites the websocket service URL to the HTTP host the
// dispatch API speaks to.
func (c *Config) DispatchHost() string {
	switch {
	case strings.HasPrefix(c.URL, "wss://"):
		return "https://" + strings.TrimPrefix(c.URL, "wss://")
	case strings.HasPrefix(c.URL, "ws://"):
		return "http://" + strings.TrimPrefix(c.URL, "ws://")
	default:
		return c.URL
	}
}
