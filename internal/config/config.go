// Package config loads voltrack settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"voltrack/internal/notify"
	"voltrack/internal/volume"
)

// Config is the resolved runtime configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`
	// DBPath defaults to voltrack.db under DataDir.
	DBPath string `yaml:"db_path"`
	// DeviceID overrides the generated device identity.
	DeviceID string `yaml:"device_id"`
	Listen   string `yaml:"listen"`
	// RateLimit caps mutating API requests per client per minute; 0 disables.
	RateLimit int `yaml:"rate_limit"`
	// TrustedProxies lists addresses or CIDRs allowed to set forwarding
	// headers.
	TrustedProxies []string `yaml:"trusted_proxies"`
	// Library names the library volumes are tracked into by default.
	Library string `yaml:"library"`

	RefreshInterval time.Duration `yaml:"refresh_interval"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	Workers         int           `yaml:"workers"`
	EnhanceWorkers  int           `yaml:"enhance_workers"`

	Detection volume.DetectionConfig `yaml:"detection"`
	// Classifier replaces the built-in path heuristics when set.
	Classifier *volume.ClassifierPolicy `yaml:"classifier"`

	Notifications []notify.Service `yaml:"notifications"`

	Log LogConfig `yaml:"log"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level string `yaml:"level"`
	// Format is auto, console or json.
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:         defaultDataDir(),
		Listen:          "127.0.0.1:9180",
		RateLimit:       120,
		Library:         "Default",
		RefreshInterval: 30 * time.Second,
		ProbeTimeout:    5 * time.Second,
		Workers:         8,
		EnhanceWorkers:  4,
		Detection:       volume.DefaultDetectionConfig(),
		Log:             LogConfig{Level: "info", Format: "auto"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides and validates the result. An empty path falls back to
// VOLTRACK_CONFIG.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = getEnv("VOLTRACK_CONFIG", "")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "voltrack.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DataDir = getEnv("VOLTRACK_DATA_DIR", c.DataDir)
	c.DBPath = getEnv("VOLTRACK_DB_PATH", c.DBPath)
	c.DeviceID = getEnv("VOLTRACK_DEVICE_ID", c.DeviceID)
	c.Listen = getEnv("VOLTRACK_LISTEN", c.Listen)
	c.Library = getEnv("VOLTRACK_LIBRARY", c.Library)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	var err error
	if c.RefreshInterval, err = getEnvDuration("VOLTRACK_REFRESH_INTERVAL", c.RefreshInterval); err != nil {
		return err
	}
	if c.ProbeTimeout, err = getEnvDuration("VOLTRACK_PROBE_TIMEOUT", c.ProbeTimeout); err != nil {
		return err
	}
	if c.Workers, err = getEnvInt("VOLTRACK_WORKERS", c.Workers); err != nil {
		return err
	}
	if c.RateLimit, err = getEnvInt("VOLTRACK_RATE_LIMIT", c.RateLimit); err != nil {
		return err
	}
	if v := getEnv("VOLTRACK_TRUSTED_PROXIES", ""); v != "" {
		c.TrustedProxies = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.TrustedProxies = append(c.TrustedProxies, p)
			}
		}
	}
	return nil
}

// Validate rejects settings the runtime cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("refresh_interval must be positive, got %s", c.RefreshInterval))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("probe_timeout must be positive, got %s", c.ProbeTimeout))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.EnhanceWorkers <= 0 {
		errs = append(errs, fmt.Errorf("enhance_workers must be positive, got %d", c.EnhanceWorkers))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit must not be negative, got %d", c.RateLimit))
	}
	if c.DeviceID != "" {
		if _, err := uuid.Parse(c.DeviceID); err != nil {
			errs = append(errs, fmt.Errorf("device_id: %w", err))
		}
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "auto", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be auto, console or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Policy returns the classifier policy in effect.
func (c *Config) Policy() volume.ClassifierPolicy {
	if c.Classifier != nil && !c.Classifier.IsZero() {
		return *c.Classifier
	}
	return volume.DefaultPolicy(runtime.GOOS)
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is a single-host
// prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, s := range c.TrustedProxies {
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("trusted_proxies: %w", err)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".voltrack")
	}
	return ".voltrack"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
