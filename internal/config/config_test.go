package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/Donggull/ea-plan-05-sub006/internal/quota"
	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir string
	saved   map[string]string
}

var envVars = []string{
	"EAPLAN_LISTEN_ADDR", "EAPLAN_DB_PATH", "EAPLAN_REDIS_ADDR",
	"EAPLAN_PRICING_PATH", "EAPLAN_LOG_LEVEL", "EAPLAN_DEFAULT_DAILY_QUOTA",
	"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_AI_API_KEY",
}

func (s *ConfigSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
	s.saved = map[string]string{}
	for _, k := range envVars {
		s.saved[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
}

func (s *ConfigSuite) TearDownTest() {
	for k, v := range s.saved {
		if v == "" {
			os.Unsetenv(k)
		} else {
			os.Setenv(k, v)
		}
	}
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultListenAddr, cfg.ListenAddr)
	s.Equal(DefaultDBPath, cfg.DBPath)
	s.Equal("info", cfg.LogLevel)
	s.Equal(quota.Unlimited, cfg.Quotas["admin"].Daily)
	s.Equal(50, cfg.Quotas["member"].Daily)
	s.Equal(10, cfg.DefaultQuotas.Daily)
}

func (s *ConfigSuite) TestLoadYAMLAndEnvOverride() {
	path := filepath.Join(s.tempDir, "config.yaml")
	body := "listen_addr: \":9000\"\ndb_path: custom.db\nquotas:\n  member:\n    daily: 75\n    monthly: 1500\n"
	s.Require().NoError(os.WriteFile(path, []byte(body), 0o644))
	os.Setenv("EAPLAN_LISTEN_ADDR", ":7000")

	cfg, err := Load(path)
	s.Require().NoError(err)
	s.Equal(":7000", cfg.ListenAddr, "env wins over file")
	s.Equal("custom.db", cfg.DBPath)
	s.Equal(75, cfg.Quotas["member"].Daily)
}

func (s *ConfigSuite) TestLoadMissingFile() {
	_, err := Load(filepath.Join(s.tempDir, "absent.yaml"))
	s.Error(err)
}

func (s *ConfigSuite) TestKeysFromEnv() {
	os.Setenv("OPENAI_API_KEY", "sk-test123")
	os.Setenv("ANTHROPIC_API_KEY", "sk-ant-test456")
	os.Setenv("GOOGLE_AI_API_KEY", "AIzaTest789")

	cfg, err := Load("")
	s.Require().NoError(err)
	s.NoError(cfg.ValidateKey(models.ProviderOpenAI))
	s.NoError(cfg.ValidateKey(models.ProviderAnthropic))
	s.NoError(cfg.ValidateKey(models.ProviderGoogle))
	s.Len(cfg.ConfiguredProviders(), 3)
}

func (s *ConfigSuite) TestValidateKeyMissing() {
	cfg, err := Load("")
	s.Require().NoError(err)
	err = cfg.ValidateKey(models.ProviderOpenAI)
	s.Error(err)
	s.Contains(err.Error(), "OPENAI_API_KEY")
}

func (s *ConfigSuite) TestValidateKeyBadPrefix() {
	os.Setenv("ANTHROPIC_API_KEY", "sk-wrongfamily")
	cfg, err := Load("")
	s.Require().NoError(err)
	s.Error(cfg.ValidateKey(models.ProviderAnthropic))
	s.Empty(cfg.ConfiguredProviders())
}

func (s *ConfigSuite) TestQuotaLimits() {
	cfg := Default()
	roles, defaults := cfg.QuotaLimits()
	s.Equal(quota.Unlimited, roles["admin"].Monthly)
	s.Equal(quota.Limits{Daily: 10, Monthly: 100}, defaults)
}
