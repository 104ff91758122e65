package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Paths     PathsConfig     `koanf:"paths"`
	GitHub    GitHubConfig    `koanf:"github"`
	Slack     SlackConfig     `koanf:"slack"`
	Pass      PassConfig      `koanf:"pass"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// PathsConfig locates every file artifact the engine owns.
type PathsConfig struct {
	TokenLedger   string `koanf:"token_ledger"`
	AgentLedger   string `koanf:"agent_ledger"`
	ProductLedger string `koanf:"product_ledger"`
	Policy        string `koanf:"policy"`
	OpsDir        string `koanf:"ops_dir"`
	ReportsDir    string `koanf:"reports_dir"`
	WorkflowsDir  string `koanf:"workflows_dir"`
	AlertLog      string `koanf:"alert_log"`
}

type GitHubConfig struct {
	Org     string        `koanf:"org"`
	Token   string        `koanf:"token"`
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
	// RateLimitRPS caps calls against the org; the authorization API is
	// the shared bottleneck of every pass.
	RateLimitRPS int `koanf:"rate_limit_rps"`
	BurstSize    int `koanf:"burst_size"`
}

type SlackConfig struct {
	WebhookURL string        `koanf:"webhook_url"`
	Timeout    time.Duration `koanf:"timeout"`
}

type PassConfig struct {
	// Workers bounds the scoring fan-out.
	Workers int `koanf:"workers"`
	// Approver is recorded on unattended reconciliations.
	Approver string `koanf:"approver"`
	// Interval drives scheduled mode; zero means run once.
	Interval    time.Duration `koanf:"interval"`
	MetricsAddr string        `koanf:"metrics_addr"`
}

type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Paths: PathsConfig{
			TokenLedger:   "security/token-ledger.yml",
			AgentLedger:   "agents/agent-ledger.yml",
			ProductLedger: "products/product-ledger.yml",
			Policy:        "security/autoheal-policy.yml",
			OpsDir:        "ops/autoheal",
			ReportsDir:    "reports",
			WorkflowsDir:  ".github/workflows",
			AlertLog:      "logs/alerts.log",
		},
		GitHub: GitHubConfig{
			BaseURL:      "https://api.github.com",
			Timeout:      30 * time.Second,
			RateLimitRPS: 5,
			BurstSize:    10,
		},
		Slack: SlackConfig{
			Timeout: 10 * time.Second,
		},
		Pass: PassConfig{
			Workers:     4,
			Approver:    "auto-heal-bot",
			MetricsAddr: ":9090",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional; environment variables win over it.
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	} else {
		_ = k.Load(file.Provider("configs/config.yaml"), yaml.Parser())
	}

	if err := k.Load(env.Provider("SRV_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "SRV_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
