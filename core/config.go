package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Agent names used as keys in the agents file and in cron routes.
const (
	AgentJobFunctions     = "job_functions"
	AgentInvestorProfiles = "investor_profiles"
	AgentATSDiscovery     = "ats_discovery"
)

type Config struct {
	Environment string
	Port        string
	UIDomain    string

	IngestSecret string
	CronSecret   string

	LLM LLMConfig

	RedisURL           string
	RateLimitPerMinute int

	// PollInterval repeats the poll command's drain; zero drains once.
	PollInterval time.Duration

	Agents map[string]AgentConfig `yaml:"agents"`
	Driver DriverConfig           `yaml:"driver"`
}

type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// AgentConfig tunes one enrichment agent. Delay is the pause between two
// classifier calls; Budget bounds one cron invocation.
type AgentConfig struct {
	Delay  time.Duration `yaml:"delay"`
	Budget time.Duration `yaml:"budget"`
	Batch  int           `yaml:"batch"`
}

type DriverConfig struct {
	Budget            time.Duration `yaml:"budget"`
	MaxDetectAttempts int           `yaml:"max_detect_attempts"`
	SyncInterval      time.Duration `yaml:"sync_interval"`
}

func defaultConfig() Config {
	return Config{
		Port:               "8080",
		RateLimitPerMinute: 60,
		LLM: LLMConfig{
			Model:   "sonar",
			BaseURL: "https://api.perplexity.ai",
		},
		Agents: map[string]AgentConfig{
			AgentJobFunctions:     {Delay: 200 * time.Millisecond, Budget: 50 * time.Second, Batch: 50},
			AgentInvestorProfiles: {Delay: 1500 * time.Millisecond, Budget: 50 * time.Second, Batch: 20},
			AgentATSDiscovery:     {Delay: time.Second, Budget: 50 * time.Second, Batch: 20},
		},
		Driver: DriverConfig{
			Budget:            55 * time.Second,
			MaxDetectAttempts: 2,
			SyncInterval:      24 * time.Hour,
		},
	}
}

// LoadConfig reads the environment (after godotenv has populated it) and
// merges AGENTS_FILE on top of the defaults when it is set.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()

	cfg.Environment = os.Getenv("ENVIRONMENT")
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	cfg.UIDomain = os.Getenv("UI_DOMAIN")
	cfg.IngestSecret = os.Getenv("INGEST_SECRET")
	cfg.CronSecret = os.Getenv("CRON_SECRET")
	cfg.LLM.APIKey = os.Getenv("PERPLEXITY_API_KEY")
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RateLimitPerMinute = n
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}

	if path := os.Getenv("AGENTS_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read agents file: %w", err)
	}

	var file struct {
		Agents map[string]AgentConfig `yaml:"agents"`
		Driver DriverConfig           `yaml:"driver"`
	}
	if err := yaml.Unmarshal(b, &file); err != nil {
		return fmt.Errorf("parse agents file: %w", err)
	}

	for name, override := range file.Agents {
		base := c.Agents[name]
		if override.Delay > 0 {
			base.Delay = override.Delay
		}
		if override.Budget > 0 {
			base.Budget = override.Budget
		}
		if override.Batch > 0 {
			base.Batch = override.Batch
		}
		c.Agents[name] = base
	}

	if file.Driver.Budget > 0 {
		c.Driver.Budget = file.Driver.Budget
	}
	if file.Driver.MaxDetectAttempts > 0 {
		c.Driver.MaxDetectAttempts = file.Driver.MaxDetectAttempts
	}
	if file.Driver.SyncInterval > 0 {
		c.Driver.SyncInterval = file.Driver.SyncInterval
	}

	return nil
}

// Agent returns the settings for name, falling back to zero values the
// runner knows how to default.
func (c Config) Agent(name string) AgentConfig {
	return c.Agents[name]
}

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

func (v Validation) OK() bool { return len(v.Errors) == 0 }

// Validate reports every problem at once. Missing secrets are warnings: the
// affected endpoints answer 500 until they are configured.
func (c Config) Validate() Validation {
	var res Validation

	if strings.TrimSpace(c.IngestSecret) == "" {
		res.addWarn("INGEST_SECRET is not set: ingestion endpoints will refuse requests")
	}
	if strings.TrimSpace(c.CronSecret) == "" {
		res.addWarn("CRON_SECRET is not set: cron endpoints will refuse requests")
	}
	if c.LLM.APIKey == "" {
		res.addWarn("PERPLEXITY_API_KEY is not set: detection and enrichment cannot call the classifier")
	}
	if c.RateLimitPerMinute <= 0 {
		res.addErr("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimitPerMinute)
	}
	if c.Driver.Budget <= 0 {
		res.addErr("driver budget must be positive")
	}
	if c.Driver.MaxDetectAttempts <= 0 {
		res.addErr("driver max_detect_attempts must be positive")
	}
	for name, a := range c.Agents {
		if a.Delay < 0 {
			res.addErr("agent %s: delay must not be negative", name)
		}
		if a.Budget <= 0 {
			res.addErr("agent %s: budget must be positive", name)
		}
		if a.Batch <= 0 {
			res.addWarn("agent %s: batch not set, the runner default applies", name)
		}
	}

	return res
}
