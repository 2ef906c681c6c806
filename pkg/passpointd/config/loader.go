// Package config loads the passpointd YAML configuration.
//
// The file path comes from the --config flag, else PASSPOINTD_CONFIG_PATH,
// else /etc/passpointd/passpointd.yml.
//
//	interface: wlan0
//	throttle:
//	  min_escape: 1s
//	  max_exponent: 6
//	pending:
//	  timeout: 30s
//	  reap_interval: 10s
//	watch:
//	  - bssid: "aa:bb:cc:dd:ee:ff"
//	    interval: 60s
//	    roaming_consortium: true
//	    release2: true
//	output:
//	  path: /var/log/passpointd/anqp.json
//	  max_bytes: 10485760
//	  max_backups: 5
//	  pretty: false
//	metrics:
//	  listen: ":9108"
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultPath         = "/etc/passpointd/passpointd.yml"
	DefaultInterface    = "wlan0"
	DefaultMinEscape    = time.Second
	DefaultMaxExponent  = 6
	DefaultReapInterval = 10 * time.Second
	DefaultWatchEvery   = 60 * time.Second

	// maxExponent bounds throttle.max_exponent so the backoff window cannot
	// overflow time.Duration.
	maxExponent = 20
)

// PathFromEnv returns PASSPOINTD_CONFIG_PATH, or DefaultPath when it is unset
// or empty.
func PathFromEnv() string {
	return envOr("PASSPOINTD_CONFIG_PATH", DefaultPath)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the fully resolved configuration.
type Config struct {
	Interface string         `yaml:"interface"`
	Throttle  ThrottleConfig `yaml:"throttle"`
	Pending   PendingConfig  `yaml:"pending"`
	Watch     []WatchEntry   `yaml:"watch"`
	Output    OutputConfig   `yaml:"output"`
	Metrics   MetricsConfig  `yaml:"metrics"`
}

// ThrottleConfig controls per-BSSID backoff.
type ThrottleConfig struct {
	MinEscape   time.Duration `yaml:"min_escape"`
	MaxExponent int           `yaml:"max_exponent"`
}

// PendingConfig controls expiry of unanswered requests. A zero Timeout keeps
// them until answered.
type PendingConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	ReapInterval time.Duration `yaml:"reap_interval"`
}

// WatchEntry is one access point queried on a fixed interval.
type WatchEntry struct {
	BSSID             string        `yaml:"bssid"`
	Interval          time.Duration `yaml:"interval"`
	RoamingConsortium bool          `yaml:"roaming_consortium"`
	Release2          bool          `yaml:"release2"`
}

// OutputConfig selects where events are written. An empty Path or "-"
// writes to stdout.
type OutputConfig struct {
	Path       string `yaml:"path"`
	MaxBytes   int64  `yaml:"max_bytes"`
	MaxBackups int    `yaml:"max_backups"`
	Pretty     bool   `yaml:"pretty"`
}

// Stdout reports whether events go to standard output.
func (o OutputConfig) Stdout() bool {
	return o.Path == "" || o.Path == "-"
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Interface) == "" {
		c.Interface = DefaultInterface
	}
	if c.Throttle.MinEscape == 0 {
		c.Throttle.MinEscape = DefaultMinEscape
	}
	if c.Throttle.MaxExponent == 0 {
		c.Throttle.MaxExponent = DefaultMaxExponent
	}
	if c.Pending.ReapInterval == 0 {
		c.Pending.ReapInterval = DefaultReapInterval
	}
	for i := range c.Watch {
		if c.Watch[i].Interval == 0 {
			c.Watch[i].Interval = DefaultWatchEvery
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load reads the YAML file at path, applies defaults and validates the
// result. Validation errors are accumulated and returned together. A missing
// file yields the defaults.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	cfg := &Config{}
	if err := decodeFile(path, cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		logger.Warn("config: file not found, using defaults", "file", path)
	} else {
		logger.Debug("config: loaded", "file", path)
	}

	cfg.applyDefaults()

	if errs := cfg.validate(); len(errs) > 0 {
		return nil, fmt.Errorf("config: %d error(s):\n  %s", len(errs), strings.Join(errs, "\n  "))
	}

	logger.Info("config: ready",
		"interface", cfg.Interface,
		"watch", len(cfg.Watch),
		"pending_timeout", cfg.Pending.Timeout,
	)
	return cfg, nil
}

// validate returns every problem found, one line each.
func (c *Config) validate() []string {
	var errs []string

	if c.Throttle.MinEscape < 0 {
		errs = append(errs, fmt.Sprintf("throttle.min_escape: %s is negative", c.Throttle.MinEscape))
	}
	if c.Throttle.MaxExponent < 0 || c.Throttle.MaxExponent > maxExponent {
		errs = append(errs, fmt.Sprintf("throttle.max_exponent: %d outside 1..%d", c.Throttle.MaxExponent, maxExponent))
	}
	if c.Pending.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("pending.timeout: %s is negative", c.Pending.Timeout))
	}
	if c.Pending.ReapInterval < 0 {
		errs = append(errs, fmt.Sprintf("pending.reap_interval: %s is negative", c.Pending.ReapInterval))
	}

	seen := make(map[string]int, len(c.Watch))
	for i, w := range c.Watch {
		hw, err := net.ParseMAC(w.BSSID)
		if err != nil || len(hw) != 6 {
			errs = append(errs, fmt.Sprintf("watch[%d].bssid: %q is not a 6-octet MAC address", i, w.BSSID))
		} else {
			key := hw.String()
			if prev, dup := seen[key]; dup {
				errs = append(errs, fmt.Sprintf("watch[%d].bssid: %s duplicates watch[%d]", i, key, prev))
			} else {
				seen[key] = i
			}
		}
		if w.Interval < 0 {
			errs = append(errs, fmt.Sprintf("watch[%d].interval: %s is negative", i, w.Interval))
		}
	}

	if c.Output.MaxBytes < 0 {
		errs = append(errs, fmt.Sprintf("output.max_bytes: %d is negative", c.Output.MaxBytes))
	}
	if c.Output.MaxBackups < 0 {
		errs = append(errs, fmt.Sprintf("output.max_backups: %d is negative", c.Output.MaxBackups))
	}
	if c.Output.Stdout() && c.Output.MaxBytes > 0 {
		errs = append(errs, "output.max_bytes: rotation requires output.path")
	}
	return errs
}

func decodeFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false) // unknown keys are ignored
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
