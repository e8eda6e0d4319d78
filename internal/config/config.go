package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/emilianohg/cvsbrowse/internal/changes"
)

// dirEnv overrides the ~/.cvsbrowse directory.
const dirEnv = "CVSBROWSE_HOME"

type Config struct {
	CvsBinary      string `toml:"cvs_binary"`
	ChangeWindow   string `toml:"change_window"`
	LogLevel       string `toml:"log_level"`
	CacheEnabled   bool   `toml:"cache_enabled"`
	CacheSize      int    `toml:"cache_size"`
	MaxConcurrency int    `toml:"max_concurrency"`
	DefaultSince   string `toml:"default_since"`
	WorkDir        string `toml:"work_dir"`
}

func DefaultConfig() *Config {
	return &Config{
		CvsBinary:      "cvs",
		ChangeWindow:   changes.DefaultWindow.String(),
		LogLevel:       "info",
		CacheEnabled:   true,
		CacheSize:      64,
		MaxConcurrency: 4,
	}
}

func Dir() (string, error) {
	if dir := os.Getenv(dirEnv); dir != "" {
		return expandPath(dir), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cvsbrowse"), nil
}

func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func DatabasePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "db", "cvsbrowse.sqlite"), nil
}

func ErrorLogPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "errors.log"), nil
}

func EnsureDirectories() error {
	dir, err := Dir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Create db subdirectory
	dbDir := filepath.Join(dir, "db")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return err
	}

	return nil
}

func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	// If config file doesn't exist, create it with defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := EnsureDirectories(); err != nil {
			return nil, err
		}
		if err := Save(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, err
	}

	cfg.CvsBinary = expandPath(cfg.CvsBinary)
	cfg.WorkDir = expandPath(cfg.WorkDir)

	return cfg, nil
}

func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Window returns the change window, falling back to the default when the
// configured value is missing or invalid.
func (c *Config) Window() time.Duration {
	d, err := time.ParseDuration(c.ChangeWindow)
	if err != nil || d <= 0 {
		return changes.DefaultWindow
	}
	return d
}

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// Since parses DefaultSince (YYYY-MM-DD). Empty or invalid values yield the
// zero time so the filter floor applies.
func (c *Config) Since() time.Time {
	if c.DefaultSince == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", c.DefaultSince)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (c *Config) Concurrency() int {
	if c.MaxConcurrency < 1 {
		return 1
	}
	return c.MaxConcurrency
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
