package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"freeslots/internal/slots"
)

// FeedConfig is one ICS subscription of a person.
type FeedConfig struct {
	// ID is used for logging and cache bookkeeping. Defaults to the URL.
	ID  string `yaml:"id" json:"id"`
	URL string `yaml:"url" json:"url"`
}

// PersonConfig describes one participant. Busy entries are fixed daily
// bookings in "HH:MM-HH:MM" form, applied to every requested day.
type PersonConfig struct {
	ID   int          `yaml:"id" json:"id"`
	Name string       `yaml:"name" json:"name"`
	Busy []string     `yaml:"busy" json:"busy"`
	ICS  []FeedConfig `yaml:"ics" json:"ics"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that defines "the day" for every input.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// MeetingMinutes is the default minimum meeting length.
	MeetingMinutes int `yaml:"meeting_minutes" json:"meeting_minutes"`

	// WorkStart / WorkEnd optionally restrict the search window ("09:00", "18:00").
	// Both empty means the whole day.
	WorkStart string `yaml:"work_start,omitempty" json:"work_start,omitempty"`
	WorkEnd   string `yaml:"work_end,omitempty" json:"work_end,omitempty"`

	// Refresh is a cron spec for prefetching ICS feeds.
	Refresh string `yaml:"refresh" json:"refresh"`

	// CacheDir stores fetched ICS bodies.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// CacheSize is the number of (date, length) results kept in memory.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// RateLimit is requests per second allowed on /api; Burst defaults to twice that.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	Burst     int     `yaml:"burst" json:"burst"`

	People []PersonConfig `yaml:"people" json:"people"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in zero values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MeetingMinutes <= 0 {
		c.MeetingMinutes = 30
	}
	if c.Refresh == "" {
		c.Refresh = "*/15 * * * *"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/ics-cache"
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 128
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.Burst <= 0 {
		c.Burst = max(1, int(math.Ceil(2*c.RateLimit)))
	}
	if c.People == nil {
		c.People = []PersonConfig{}
	}
	for i := range c.People {
		for j := range c.People[i].ICS {
			if c.People[i].ICS[j].ID == "" {
				c.People[i].ICS[j].ID = c.People[i].ICS[j].URL
			}
		}
	}
}

// Validate reports configuration errors that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := c.Window(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.Refresh); err != nil {
		return fmt.Errorf("refresh %q: %w", c.Refresh, err)
	}

	seen := make(map[int]bool, len(c.People))
	for _, p := range c.People {
		if seen[p.ID] {
			return fmt.Errorf("person id %d is duplicated", p.ID)
		}
		seen[p.ID] = true
		busy, err := p.BusyIntervals()
		if err != nil {
			return err
		}
		if err := slots.Validate([]slots.Person{{ID: p.ID, Busy: busy}}); err != nil {
			return fmt.Errorf("busy: %w", err)
		}
	}
	return nil
}

// Window returns the configured search window, or the whole day.
func (c *Config) Window() (slots.Window, error) {
	if c.WorkStart == "" && c.WorkEnd == "" {
		return slots.Day, nil
	}
	w := slots.Day
	var err error
	if c.WorkStart != "" {
		if w.Start, err = slots.ParseTimeOfDay(c.WorkStart); err != nil {
			return w, fmt.Errorf("work_start: %w", err)
		}
	}
	if c.WorkEnd != "" {
		if w.End, err = slots.ParseTimeOfDay(c.WorkEnd); err != nil {
			return w, fmt.Errorf("work_end: %w", err)
		}
	}
	if w.End <= w.Start {
		return w, fmt.Errorf("work_end %s is not after work_start %s: %w", w.End, w.Start, slots.ErrInvalidWindow)
	}
	return w, nil
}

// BusyIntervals parses the person's fixed daily bookings.
func (p PersonConfig) BusyIntervals() ([]slots.Interval, error) {
	out := make([]slots.Interval, 0, len(p.Busy))
	for _, s := range p.Busy {
		iv, err := slots.ParseInterval(s)
		if err != nil {
			return nil, fmt.Errorf("person %d: %w", p.ID, err)
		}
		out = append(out, iv)
	}
	return out, nil
}

// Load reads configuration from path. If the file does not exist a default
// config is written there (0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			return cfg, Save(path, cfg)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".freeslots-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
