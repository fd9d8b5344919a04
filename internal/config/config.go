// Package config provides configuration management for the AI pipeline
// service. Values load from an optional YAML file with environment
// overrides; provider API keys come from the environment only.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Donggull/ea-plan-05-sub006/internal/quota"
	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// Default values.
const (
	DefaultListenAddr = ":8600"
	DefaultDBPath     = "data/eaplan.db"
)

// Config is the complete runtime configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	DBPath      string `yaml:"db_path"`
	RedisAddr   string `yaml:"redis_addr"`
	PricingPath string `yaml:"pricing_path"`
	LogLevel    string `yaml:"log_level"`

	// Quotas maps role name to request ceilings. Unlimited is -1.
	Quotas        map[string]RoleQuota `yaml:"quotas"`
	DefaultQuotas RoleQuota            `yaml:"default_quotas"`

	// Keys are provider API keys, environment only.
	Keys map[models.Provider]string `yaml:"-"`
}

// RoleQuota is the per-role request ceiling pair.
type RoleQuota struct {
	Daily   int `yaml:"daily"`
	Monthly int `yaml:"monthly"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		ListenAddr: DefaultListenAddr,
		DBPath:     DefaultDBPath,
		LogLevel:   "info",
		Quotas: map[string]RoleQuota{
			"admin":  {Daily: quota.Unlimited, Monthly: quota.Unlimited},
			"member": {Daily: 50, Monthly: 1000},
			"viewer": {Daily: 10, Monthly: 100},
		},
		DefaultQuotas: RoleQuota{Daily: 10, Monthly: 100},
		Keys:          map[models.Provider]string{},
	}
}

// Load reads configuration from path (optional), then applies environment
// overrides and collects provider keys.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// keyEnv maps a provider to its API key environment variable.
var keyEnv = map[models.Provider]string{
	models.ProviderOpenAI:    "OPENAI_API_KEY",
	models.ProviderAnthropic: "ANTHROPIC_API_KEY",
	models.ProviderGoogle:    "GOOGLE_AI_API_KEY",
}

// keyPrefix is the expected key format per provider.
var keyPrefix = map[models.Provider]string{
	models.ProviderOpenAI:    "sk-",
	models.ProviderAnthropic: "sk-ant-",
	models.ProviderGoogle:    "AIza",
}

func (c *Config) applyEnv() {
	if v := os.Getenv("EAPLAN_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("EAPLAN_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("EAPLAN_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("EAPLAN_PRICING_PATH"); v != "" {
		c.PricingPath = v
	}
	if v := os.Getenv("EAPLAN_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("EAPLAN_DEFAULT_DAILY_QUOTA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultQuotas.Daily = n
		}
	}
	if c.Keys == nil {
		c.Keys = map[models.Provider]string{}
	}
	for p, env := range keyEnv {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			c.Keys[p] = v
		}
	}
}

// ValidateKey checks that a provider's key is present and matches its
// expected prefix.
func (c *Config) ValidateKey(p models.Provider) error {
	key, ok := c.Keys[p]
	if !ok || key == "" {
		return fmt.Errorf("config: no API key for provider %s (set %s)", p, keyEnv[p])
	}
	if prefix := keyPrefix[p]; !strings.HasPrefix(key, prefix) {
		return fmt.Errorf("config: API key for provider %s has unexpected format (want %s... prefix)", p, prefix)
	}
	return nil
}

// ConfiguredProviders returns the providers whose keys are present and
// well-formed.
func (c *Config) ConfiguredProviders() []models.Provider {
	var out []models.Provider
	for _, p := range []models.Provider{models.ProviderOpenAI, models.ProviderAnthropic, models.ProviderGoogle} {
		if c.ValidateKey(p) == nil {
			out = append(out, p)
		}
	}
	return out
}

// QuotaLimits converts the role table into governor limits.
func (c *Config) QuotaLimits() (map[string]quota.Limits, quota.Limits) {
	roles := make(map[string]quota.Limits, len(c.Quotas))
	for role, q := range c.Quotas {
		roles[role] = quota.Limits{Daily: q.Daily, Monthly: q.Monthly}
	}
	return roles, quota.Limits{Daily: c.DefaultQuotas.Daily, Monthly: c.DefaultQuotas.Monthly}
}
