package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyPath = errors.New("config path is empty")
	ErrNilConfig = errors.New("config is nil")
)

// FeedConfig describes a single ICS feed. One feed becomes one calendar.
type FeedConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is the calendar label shown next to its events.
	Name string `yaml:"name" json:"name"`
	// Color is passed through to the presentation layer untouched.
	Color string `yaml:"color" json:"color"`
}

// FriendConfig is a friend whose calendars can be overlaid.
type FriendConfig struct {
	ID        string       `yaml:"id" json:"id"`
	Name      string       `yaml:"name" json:"name"`
	Calendars []FeedConfig `yaml:"calendars" json:"calendars"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone every event is expressed in before the
	// availability engine sees it (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir holds the per-feed HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// RefreshCron re-fetches the current week (cron syntax, e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// ClockCron advances the "now" marker. It never triggers a refetch.
	ClockCron string `yaml:"clock" json:"clock"`

	// MinFreeMinutes drops free gaps shorter than this.
	MinFreeMinutes int `yaml:"min_free_minutes" json:"min_free_minutes"`

	// FreeWithoutFriend controls free time when no friend is selected:
	// true computes it from the user's own calendars, false (the default)
	// reports none until a friend is selected.
	FreeWithoutFriend *bool `yaml:"free_without_friend,omitempty" json:"free_without_friend,omitempty"`

	// MemoSize bounds the per-day view memo.
	MemoSize int `yaml:"memo_size" json:"memo_size"`

	// Calendars are the user's own feeds.
	Calendars []FeedConfig `yaml:"calendars" json:"calendars"`

	// Friends are the people available for comparison.
	Friends []FriendConfig `yaml:"friends" json:"friends"`

	// BasicAuth, if set, protects all endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen         = "127.0.0.1:8080"
	defaultTimezone       = "Local"
	defaultLogLevel       = "info"
	defaultCacheDir       = "./var/feed-cache"
	defaultRefreshCron    = "*/15 * * * *"
	defaultClockCron      = "@every 1m"
	defaultMinFreeMinutes = 60
	defaultMemoSize       = 64
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values so partially-filled files still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.ClockCron == "" {
		c.ClockCron = defaultClockCron
	}
	if c.MinFreeMinutes <= 0 {
		c.MinFreeMinutes = defaultMinFreeMinutes
	}
	if c.FreeWithoutFriend == nil {
		v := false
		c.FreeWithoutFriend = &v
	}
	if c.MemoSize <= 0 {
		c.MemoSize = defaultMemoSize
	}
	if c.Calendars == nil {
		c.Calendars = []FeedConfig{}
	}
	if c.Friends == nil {
		c.Friends = []FriendConfig{}
	}
	for i := range c.Calendars {
		c.Calendars[i].normalize()
	}
	for i := range c.Friends {
		for j := range c.Friends[i].Calendars {
			c.Friends[i].Calendars[j].normalize()
		}
	}
}

// normalize derives a stable ID from Name or URL when none is set.
func (f *FeedConfig) normalize() {
	if f.ID != "" {
		return
	}
	if f.Name != "" {
		f.ID = f.Name
		return
	}
	f.ID = f.URL
}

// Friend looks up a configured friend by ID.
func (c *Config) Friend(id string) (FriendConfig, bool) {
	for _, fr := range c.Friends {
		if fr.ID == id {
			return fr, true
		}
	}
	return FriendConfig{}, false
}

// Location resolves Timezone. "Local" or an empty value yield time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshaled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// ApplyEnv overlays FREECAL_* variables on c. A .env file at envFile is
// loaded first if present; variables already set in the process win.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	if v := os.Getenv("FREECAL_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("FREECAL_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("FREECAL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("FREECAL_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("FREECAL_MIN_FREE_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: FREECAL_MIN_FREE_MINUTES=%q is not a positive integer", v)
		}
		c.MinFreeMinutes = n
	}
	return nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return ErrNilConfig
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

	tmp, err := os.CreateTemp(dir, ".freecal-config-*.tmp")
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

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
