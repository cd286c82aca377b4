package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

const DefaultPath = "/etc/notifyd/config.toml"

// Session dispatch policies.
const (
	SessionPolicyAll    = "all"
	SessionPolicyRecent = "recent"
)

// Config is the validated daemon configuration. It is immutable for the
// daemon's lifetime; every knob the pipeline consults lives here.
type Config struct {
	MinUID          uint32        `mapstructure:"min_uid"`
	Threshold       time.Duration `mapstructure:"threshold"`
	Ignore          []string      `mapstructure:"ignore"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	HistoryCapacity int           `mapstructure:"history_capacity"`
	DispatchQueue   int           `mapstructure:"dispatch_queue"`
	SessionPolicy   string        `mapstructure:"session_policy"`
	TrackOrphans    bool          `mapstructure:"track_orphans"`
	RetryAttempts   uint          `mapstructure:"retry_attempts"`
	Socket          string        `mapstructure:"socket"`
	DBPath          string        `mapstructure:"db_path"`
	Debug           bool          `mapstructure:"debug"`
}

func Default() Config {
	return Config{
		MinUID:          1000,
		Threshold:       10 * time.Second,
		Ignore:          defaultIgnore(),
		StaleAfter:      24 * time.Hour,
		SweepInterval:   time.Hour,
		HistoryCapacity: 1000,
		DispatchQueue:   64,
		SessionPolicy:   SessionPolicyAll,
		TrackOrphans:    false,
		RetryAttempts:   3,
		Socket:          "/run/notifyd.sock",
	}
}

// defaultIgnore covers commands that are interactive or too short-lived to
// ever be worth a notification.
func defaultIgnore() []string {
	return []string{
		// Editors and pagers.
		"vim", "nvim", "nano", "less", "more", "man",
		// Shells.
		"bash", "zsh", "fish", "sh",
		// Interactive tools.
		"ssh", "tmux", "screen", "htop", "top",
		// Very short-lived commands.
		"ls", "cat", "grep", "find", "pwd", "cd", "echo", "printf", "test", "[",
	}
}

// Load reads the system config file and applies defaults for anything the
// file leaves out. A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}

	def := Default()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetDefault("min_uid", def.MinUID)
	v.SetDefault("threshold", def.Threshold)
	v.SetDefault("ignore", def.Ignore)
	v.SetDefault("stale_after", def.StaleAfter)
	v.SetDefault("sweep_interval", def.SweepInterval)
	v.SetDefault("history_capacity", def.HistoryCapacity)
	v.SetDefault("dispatch_queue", def.DispatchQueue)
	v.SetDefault("session_policy", def.SessionPolicy)
	v.SetDefault("track_orphans", def.TrackOrphans)
	v.SetDefault("retry_attempts", def.RetryAttempts)
	v.SetDefault("socket", def.Socket)
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("debug", def.Debug)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Threshold < 0 {
		return fmt.Errorf("threshold must not be negative")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale_after must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("history_capacity must be positive")
	}
	if c.DispatchQueue <= 0 {
		return fmt.Errorf("dispatch_queue must be positive")
	}
	if c.SessionPolicy != SessionPolicyAll && c.SessionPolicy != SessionPolicyRecent {
		return fmt.Errorf("session_policy must be %q or %q", SessionPolicyAll, SessionPolicyRecent)
	}
	if c.Socket == "" {
		return fmt.Errorf("socket must not be empty")
	}
	return nil
}

// UserConfig overrides the system policy for one user. Loaded from
// <home>/.config/notifyd/config.toml.
type UserConfig struct {
	Threshold    *time.Duration `mapstructure:"threshold"`
	Ignore       []string       `mapstructure:"ignore"`
	AlwaysNotify []string       `mapstructure:"always_notify"`
	Disabled     bool           `mapstructure:"disabled"`
}

// LoadUserConfig returns nil without error when the user has no config
// file. The daemon caches results per uid and clears the cache on sweep.
func LoadUserConfig(uid uint32) (*UserConfig, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return nil, fmt.Errorf("lookup uid %d: %w", uid, err)
	}
	return loadUserConfigFile(filepath.Join(u.HomeDir, ".config", "notifyd", "config.toml"))
}

func loadUserConfigFile(path string) (*UserConfig, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read user config %s: %w", path, err)
	}
	var uc UserConfig
	if err := v.Unmarshal(&uc); err != nil {
		return nil, fmt.Errorf("decode user config %s: %w", path, err)
	}
	return &uc, nil
}
