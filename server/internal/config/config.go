package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pgilab/pgilab/server/internal/chart"
	"github.com/pgilab/pgilab/server/internal/checks"
	"github.com/pgilab/pgilab/server/internal/compute"
	"github.com/pgilab/pgilab/server/internal/dataset"
)

// Default values for the configuration.
const (
	DefaultHTTPPort          = 8080
	DefaultBroadcastInterval = 5 * time.Second
	DefaultDatasetPath       = "measurements.csv"
	DefaultReportTitle       = "PGI% Report"
)

// Config is the full configuration parsed from pgilab.yaml.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Dataset DatasetConfig `yaml:"dataset"`
	Report  ReportConfig  `yaml:"report"`

	// Checks replaces the default rule set when present. An explicit empty
	// list disables checks.
	Checks []checks.Rule `yaml:"checks"`

	// Webhooks receive an event whenever a check starts or stops matching
	// after a dataset change.
	Webhooks []checks.Webhook `yaml:"webhooks"`

	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, /metrics and the WebSocket hub
	// listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// BroadcastInterval is how often the hub pushes the dataset summary to
	// connected UI clients (default 5s).
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig controls API key authentication on /api/.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// DatasetConfig binds the store to a file on disk.
type DatasetConfig struct {
	// Path is loaded at startup and saved on shutdown.
	Path string `yaml:"path"`

	// Delimiter is "," (default), ";", "|" or "\t".
	Delimiter string `yaml:"delimiter"`

	// Autosave writes Path after every mutation.
	Autosave bool `yaml:"autosave"`

	// Watch reloads Path when another program changes it.
	Watch bool `yaml:"watch"`
}

// Comma returns the parsed delimiter. validate has already rejected bad values.
func (d DatasetConfig) Comma() rune {
	r, _ := dataset.ParseDelimiter(d.Delimiter)
	return r
}

// ReportConfig holds defaults for charts and reports.
type ReportConfig struct {
	Title   string `yaml:"title"`
	GroupBy string `yaml:"group_by"` // isolate | fungus | pair
	Chart   string `yaml:"chart"`    // bar | box | scatter | hist | grouped
}

// Grouping returns the parsed group_by value.
func (r ReportConfig) Grouping() compute.GroupBy {
	g, _ := compute.ParseGroupBy(r.GroupBy)
	return g
}

// ChartKind returns the parsed chart value.
func (r ReportConfig) ChartKind() chart.Kind {
	k, _ := chart.ParseKind(r.Chart)
	return k
}

// LoggingConfig sets the minimum log level.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// SlogLevel returns the parsed level, or info when unset.
func (l LoggingConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
		},
		Dataset: DatasetConfig{
			Path:      DefaultDatasetPath,
			Delimiter: ",",
			Autosave:  true,
		},
		Report: ReportConfig{
			Title:   DefaultReportTitle,
			GroupBy: compute.ByIsolate.String(),
			Chart:   chart.KindBar.String(),
		},
		Checks:  checks.DefaultRules(),
		Logging: LoggingConfig{Level: "info"},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}
	switch cfg.Server.Auth.Mode {
	case "apikey":
		if cfg.Server.Auth.KeyEnv == "" {
			return fmt.Errorf("server.auth.key_env is required when mode is apikey")
		}
	case "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}

	if cfg.Dataset.Path == "" {
		return fmt.Errorf("dataset.path must not be empty")
	}
	if _, err := dataset.ParseDelimiter(cfg.Dataset.Delimiter); err != nil {
		return fmt.Errorf("dataset.delimiter: %w", err)
	}

	if _, err := compute.ParseGroupBy(cfg.Report.GroupBy); err != nil {
		return fmt.Errorf("report.group_by: %w", err)
	}
	if _, err := chart.ParseKind(cfg.Report.Chart); err != nil {
		return fmt.Errorf("report.chart: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Checks))
	for i, r := range cfg.Checks {
		if r.Name == "" {
			return fmt.Errorf("checks[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("checks[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		switch r.Severity {
		case checks.SeverityInfo, checks.SeverityWarning, "":
		default:
			return fmt.Errorf("checks[%d] %q: severity %q unknown: want info|warning", i, r.Name, r.Severity)
		}
		if _, err := checks.ParseCondition(r.Condition); err != nil {
			return fmt.Errorf("checks[%d] %q: %w", i, r.Name, err)
		}
	}

	for i, wh := range cfg.Webhooks {
		switch wh.Type {
		case checks.WebhookSlack, checks.WebhookTeams, checks.WebhookHTTP:
		default:
			return fmt.Errorf("webhooks[%d]: type %q unknown: want slack|teams|http", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("webhooks[%d]: url_env is required", i)
		}
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return fmt.Errorf("logging.level %q unknown: want debug|info|warn|error", cfg.Logging.Level)
	}
	return nil
}
