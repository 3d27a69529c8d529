// Package config loads slate settings from slate.toml, SLATE_* environment
// variables and an optional .env file.
//
// Precedence, highest first: environment, config file, defaults. A .env file
// only fills variables that are not already set.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the config file name searched for in each config path.
const FileName = "slate.toml"

// EnvPrefix prefixes every environment override, e.g. SLATE_SYNC_INTERVAL.
const EnvPrefix = "SLATE"

// Config is the full set of client and server settings.
type Config struct {
	DataDir string       `mapstructure:"data_dir" yaml:"data_dir"`
	Editor  string       `mapstructure:"editor" yaml:"editor"`
	Remote  RemoteConfig `mapstructure:"remote" yaml:"remote"`
	Sync    SyncConfig   `mapstructure:"sync" yaml:"sync"`
	Log     LogConfig    `mapstructure:"log" yaml:"log"`
	Server  ServerConfig `mapstructure:"server" yaml:"server"`
}

// RemoteConfig points the client at a server.
type RemoteConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SyncConfig controls the background sync.
type SyncConfig struct {
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	PushTimeout time.Duration `mapstructure:"push_timeout" yaml:"push_timeout"`
	Notify      bool          `mapstructure:"notify" yaml:"notify"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// ServerConfig configures `slate serve`.
type ServerConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
	AuthToken   string `mapstructure:"auth_token" yaml:"auth_token"`
	ReplicaPath string `mapstructure:"replica_path" yaml:"replica_path"`
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
}

// DBPath is the local store location inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "slate.db")
}

// Validate checks settings that would otherwise fail later and less clearly.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %v", c.Sync.Interval)
	}
	if c.Remote.URL != "" {
		u, err := url.Parse(c.Remote.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("remote.url must be an http(s) URL, got %q", c.Remote.URL)
		}
	}
	return nil
}

// DefaultHome returns $SLATE_HOME, or the slate directory under the user's
// config directory.
func DefaultHome() string {
	if home := os.Getenv("SLATE_HOME"); home != "" {
		return home
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".slate")
	}
	return filepath.Join(dir, "slate")
}

// Defaults returns the built-in settings rooted at DefaultHome.
func Defaults() *Config {
	return defaultsFor(DefaultHome())
}

func defaultsFor(home string) *Config {
	return &Config{
		DataDir: home,
		Editor:  "vi",
		Remote: RemoteConfig{
			Timeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			Interval:    30 * time.Second,
			PushTimeout: time.Minute,
			Notify:      true,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			DatabaseURL: filepath.Join(home, "server.db"),
		},
	}
}

// Options tells a Loader where to look.
type Options struct {
	// File is an explicit config file. It must exist when set.
	File string

	// Home overrides DefaultHome as the first search path.
	Home string

	// EnvFile is a dotenv file to load. Empty means ".env" in the working
	// directory and in Home, if present.
	EnvFile string

	Logger *log.Logger
}

// Loader reads configuration through its own viper instance.
type Loader struct {
	v      *viper.Viper
	opts   Options
	logger *log.Logger
}

// NewLoader creates a Loader with every key defaulted.
func NewLoader(opts Options) *Loader {
	if opts.Home == "" {
		opts.Home = DefaultHome()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[config] ", log.LstdFlags)
	}

	v := viper.New()
	v.SetConfigType("toml")
	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.AddConfigPath(opts.Home)
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, defaultsFor(opts.Home))

	return &Loader{v: v, opts: opts, logger: logger}
}

func setDefaults(v *viper.Viper, d *Config) {
	for key, value := range flatten(d) {
		v.SetDefault(key, value)
	}
}

// flatten maps every dotted key to its value in c.
func flatten(c *Config) map[string]any {
	return map[string]any{
		"data_dir":            c.DataDir,
		"editor":              c.Editor,
		"remote.url":          c.Remote.URL,
		"remote.api_key":      c.Remote.APIKey,
		"remote.timeout":      c.Remote.Timeout,
		"sync.interval":       c.Sync.Interval,
		"sync.push_timeout":   c.Sync.PushTimeout,
		"sync.notify":         c.Sync.Notify,
		"log.file":            c.Log.File,
		"log.max_size_mb":     c.Log.MaxSizeMB,
		"log.max_backups":     c.Log.MaxBackups,
		"log.max_age_days":    c.Log.MaxAgeDays,
		"server.addr":         c.Server.Addr,
		"server.database_url": c.Server.DatabaseURL,
		"server.auth_token":   c.Server.AuthToken,
		"server.replica_path": c.Server.ReplicaPath,
		"server.api_key":      c.Server.APIKey,
	}
}

// Load reads the dotenv file and the config file, then decodes the result.
// A missing config file is fine unless Options.File named it.
func (l *Loader) Load() (*Config, error) {
	l.loadEnvFile()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) loadEnvFile() {
	files := []string{l.opts.EnvFile}
	if l.opts.EnvFile == "" {
		files = []string{".env", filepath.Join(l.opts.Home, ".env")}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			l.logger.Printf("Warning: failed to load %s: %v", f, err)
		}
	}
}

// ConfigFileUsed returns the file Load read, or "" if none was found.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set overrides a key, e.g. from a command-line flag.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Watch calls fn with the reloaded config each time the config file changes.
// Reloads that fail to decode are logged and skipped. Watch is a no-op when
// no config file was read.
func (l *Loader) Watch(fn func(*Config, fsnotify.Event)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			l.logger.Printf("Warning: ignoring config change (%s): %v", e.Op, err)
			return
		}
		fn(cfg, e)
	})
	l.v.WatchConfig()
}
