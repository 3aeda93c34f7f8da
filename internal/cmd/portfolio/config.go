// Package portfolio parses stockfolio command configuration and runs its
// subcommands against the configured storage backend.
package portfolio

import (
	"flag"
	"fmt"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/stockfolio/internal/platform/cmd"
	"github.com/louisbranch/stockfolio/internal/platform/logging"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/engine"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/projection"
	"golang.org/x/text/language"
)

// Event log backends.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bbolt"
	BackendMemory = "memory"
)

// Config holds stockfolio command configuration.
//
// Durations are strings in time.ParseDuration form so the TOML file, the
// environment and flags share one syntax.
type Config struct {
	Backend         string         `toml:"backend" env:"STOCKFOLIO_BACKEND"`
	EventsPath      string         `toml:"events_path" env:"STOCKFOLIO_EVENTS_PATH"`
	ProjectionsPath string         `toml:"projections_path" env:"STOCKFOLIO_PROJECTIONS_PATH"`
	MaxAttempts     int            `toml:"max_attempts" env:"STOCKFOLIO_MAX_ATTEMPTS"`
	InitialBackoff  string         `toml:"initial_backoff" env:"STOCKFOLIO_INITIAL_BACKOFF"`
	MaxBackoff      string         `toml:"max_backoff" env:"STOCKFOLIO_MAX_BACKOFF"`
	PollInterval    string         `toml:"poll_interval" env:"STOCKFOLIO_POLL_INTERVAL"`
	BatchSize       int            `toml:"batch_size" env:"STOCKFOLIO_BATCH_SIZE"`
	Locale          string         `toml:"locale" env:"STOCKFOLIO_LOCALE"`
	Log             logging.Config `toml:"log"`

	// Args are the subcommand and its arguments.
	Args []string `toml:"-" env:"-"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Backend:         BackendSQLite,
		EventsPath:      "data/events.sqlite",
		ProjectionsPath: "data/projections.sqlite",
		MaxAttempts:     engine.DefaultMaxAttempts,
		InitialBackoff:  engine.DefaultInitialBackoff.String(),
		MaxBackoff:      engine.DefaultMaxBackoff.String(),
		PollInterval:    projection.DefaultPollInterval.String(),
		BatchSize:       projection.DefaultBatchSize,
		Locale:          "en-US",
		Log:             logging.Config{Level: "info", Format: logging.FormatConsole},
	}
}

// ParseConfig layers defaults, the optional -config TOML file, environment
// variables and flags, in that order of precedence.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := DefaultConfig()
	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to a TOML config file")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Event log backend: sqlite, bbolt or memory")
	fs.StringVar(&cfg.EventsPath, "events", cfg.EventsPath, "Event log database path")
	fs.StringVar(&cfg.ProjectionsPath, "projections", cfg.ProjectionsPath, "Projections database path")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Attempts per command before giving up on conflicts")
	fs.StringVar(&cfg.InitialBackoff, "initial-backoff", cfg.InitialBackoff, "Wait before the first conflict retry")
	fs.StringVar(&cfg.MaxBackoff, "max-backoff", cfg.MaxBackoff, "Maximum wait between conflict retries")
	fs.StringVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Minimum time between projection batches")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Feed records per projection batch")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "Locale used to format amounts")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level")
	logFormat := string(cfg.Log.Format)
	fs.StringVar(&logFormat, "log-format", logFormat, "Log format: json or console")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}

	explicit := map[string]string{}
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			explicit[f.Name] = f.Value.String()
		}
	})

	// Flags are bound to cfg fields, so resetting cfg and replaying the
	// explicit flags puts them above the file and the environment.
	cfg = DefaultConfig()
	if err := entrypoint.ParseConfig(&cfg, configPath); err != nil {
		return Config{}, err
	}
	logFormat = string(cfg.Log.Format)
	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return Config{}, fmt.Errorf("apply flag -%s: %w", name, err)
		}
	}
	cfg.Log.Format = logging.Format(logFormat)
	cfg.Args = fs.Args()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks option values.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend != BackendMemory {
		if strings.TrimSpace(c.EventsPath) == "" {
			return fmt.Errorf("events path is required")
		}
		if strings.TrimSpace(c.ProjectionsPath) == "" {
			return fmt.Errorf("projections path is required")
		}
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	for name, value := range map[string]string{
		"initial backoff": c.InitialBackoff,
		"max backoff":     c.MaxBackoff,
		"poll interval":   c.PollInterval,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if _, err := language.Parse(c.Locale); err != nil {
		return fmt.Errorf("parse locale: %w", err)
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// GetInitialBackoff returns the parsed initial retry wait.
func (c Config) GetInitialBackoff() time.Duration {
	return parseDuration(c.InitialBackoff, engine.DefaultInitialBackoff)
}

// GetMaxBackoff returns the parsed maximum retry wait.
func (c Config) GetMaxBackoff() time.Duration {
	return parseDuration(c.MaxBackoff, engine.DefaultMaxBackoff)
}

// GetPollInterval returns the parsed projection poll interval.
func (c Config) GetPollInterval() time.Duration {
	return parseDuration(c.PollInterval, projection.DefaultPollInterval)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
