package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL    = "http://localhost:5000"
	DefaultBaseURLEnv = "LIGHTNING_GUARD_API_URL"

	StrategyRemote    = "remote"
	StrategyHeuristic = "heuristic"
)

// Config holds Lightning Guard configuration.
type Config struct {
	API         APIConfig        `yaml:"api"`
	Analyzer    AnalyzerConfig   `yaml:"analyzer"`
	Attachments AttachmentConfig `yaml:"attachments"`
	Logging     LoggingConfig    `yaml:"logging"`
	Notify      NotifyConfig     `yaml:"notify"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	MockServer  MockServerConfig `yaml:"mock_server"`
}

type APIConfig struct {
	BaseURL          string        `yaml:"base_url"`     // e.g. "http://localhost:5000"
	BaseURLEnv       string        `yaml:"base_url_env"` // env var that overrides base_url
	Timeout          time.Duration `yaml:"timeout"`
	MaxResponseBytes int64         `yaml:"max_response_bytes"`
}

type AnalyzerConfig struct {
	Strategy string `yaml:"strategy"` // remote | heuristic
}

type AttachmentConfig struct {
	Max            int    `yaml:"max"`
	PreviewDir     string `yaml:"preview_dir"`
	ClearOnSuccess bool   `yaml:"clear_on_success"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
	File   string `yaml:"file"`   // TUI log destination
}

type NotifyConfig struct {
	QueueSize       int             `yaml:"queue_size"`
	Workers         int             `yaml:"workers"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	Webhooks        []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`
	MinLevel string            `yaml:"min_level"` // info | warning | error
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

type MockServerConfig struct {
	Addr    string        `yaml:"addr"`
	Delay   time.Duration `yaml:"delay"`
	Verbose bool          `yaml:"verbose"`
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
// The base URL environment override is applied in both cases.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultConfig()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	return &cfg, nil
}

// Default returns the built-in configuration with env overrides applied.
func Default() *Config {
	cfg := defaultConfig()
	applyEnv(cfg)
	return cfg
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.API.BaseURLEnv == "" {
		cfg.API.BaseURLEnv = DefaultBaseURLEnv
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 60 * time.Second
	}
	if cfg.API.MaxResponseBytes <= 0 {
		cfg.API.MaxResponseBytes = 4 * 1024 * 1024
	}

	if cfg.Analyzer.Strategy == "" {
		cfg.Analyzer.Strategy = StrategyRemote
	}

	if cfg.Attachments.Max <= 0 {
		cfg.Attachments.Max = 8
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Notify.QueueSize <= 0 {
		cfg.Notify.QueueSize = 64
	}
	if cfg.Notify.Workers <= 0 {
		cfg.Notify.Workers = 1
	}
	if cfg.Notify.ShutdownTimeout <= 0 {
		cfg.Notify.ShutdownTimeout = 2 * time.Second
	}
	for i := range cfg.Notify.Webhooks {
		if cfg.Notify.Webhooks[i].Timeout <= 0 {
			cfg.Notify.Webhooks[i].Timeout = 2 * time.Second
		}
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}

	if cfg.MockServer.Addr == "" {
		cfg.MockServer.Addr = "127.0.0.1:5000"
	}
}

func applyEnv(cfg *Config) {
	name := strings.TrimSpace(cfg.API.BaseURLEnv)
	if name == "" {
		return
	}
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		cfg.API.BaseURL = v
	}
}
