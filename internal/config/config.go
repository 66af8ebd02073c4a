package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models cardtime.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	DB struct {
		Path string `yaml:"path"`
	} `yaml:"db"`
	Auth struct {
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
		Demo          struct {
			Enabled  bool   `yaml:"enabled"`
			TrelloID string `yaml:"trello_id"`
		} `yaml:"demo"`
	} `yaml:"auth"`
	Billing struct {
		Currency string             `yaml:"currency"`
		Tiers    map[string]TierCap `yaml:"tiers"`
	} `yaml:"billing"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// TierCap bounds a subscription tier. MonthlyHours 0 means unlimited.
type TierCap struct {
	MonthlyHours float64 `yaml:"monthly_hours"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Types          []string `yaml:"types"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with cardtime config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.DB.Path == "" {
		return fmt.Errorf("config.db.path is required")
	}
	if !c.Auth.Demo.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("config.auth.jwt_secret is required unless demo auth is enabled")
	}
	if c.Auth.TokenTTLHours < 0 {
		return fmt.Errorf("config.auth.token_ttl_hours must not be negative")
	}
	if c.Auth.Demo.Enabled && c.Auth.Demo.TrelloID == "" {
		return fmt.Errorf("config.auth.demo.trello_id is required when demo auth is enabled")
	}
	for tier, tc := range c.Billing.Tiers {
		if tier == "" {
			return fmt.Errorf("config.billing.tiers contains empty tier name")
		}
		if tc.MonthlyHours < 0 {
			return fmt.Errorf("tier %s has negative monthly_hours", tier)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

// TokenTTL returns the configured token lifetime or the default.
func (c *Config) TokenTTL() time.Duration {
	if c.Auth.TokenTTLHours > 0 {
		return time.Duration(c.Auth.TokenTTLHours) * time.Hour
	}
	return 7 * 24 * time.Hour
}

// MonthlyCap returns the tracked-hours cap for a tier, 0 for unlimited.
func (c *Config) MonthlyCap(tier string) float64 {
	if tc, ok := c.Billing.Tiers[tier]; ok {
		return tc.MonthlyHours
	}
	return 0
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "cardtime.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(dbPath string) string {
	return fmt.Sprintf(defaultTemplate, dbPath)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default(dbPath string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, dbPath))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8400
  base_path: /api/v1

db:
  path: %s

auth:
  jwt_secret: ""
  token_ttl_hours: 168
  demo:
    enabled: true
    trello_id: demo_user_123

billing:
  currency: USD
  tiers:
    free:
      monthly_hours: 40
    pro:
      monthly_hours: 0
    enterprise:
      monthly_hours: 0
`
