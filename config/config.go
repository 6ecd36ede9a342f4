// Package config loads the toolkit's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"repl-toolkit/log"
)

const (
	ConfigFileName  = "config.yaml"
	HistoryFileName = "history"

	// ConfigEnv names a config file that overrides the default location.
	ConfigEnv = "REPL_TOOLKIT_CONFIG"
)

// ErrConfigNotFound is returned by LoadConfig when the file does not exist.
var ErrConfigNotFound = errors.New("config not found")

// Config holds the toolkit settings.
type Config struct {
	// Prefix starts every command.
	Prefix string `yaml:"prefix"`
	// Prompt is shown before the input area.
	Prompt string `yaml:"prompt"`
	// SendCommand flushes the buffer in headless mode.
	SendCommand string `yaml:"send_command"`
	// HistoryFile stores interactive input history. Empty disables persistence.
	HistoryFile string `yaml:"history_file"`

	CancelGrace      time.Duration `yaml:"cancel_grace"`
	ShellTimeout     time.Duration `yaml:"shell_timeout"`
	ExpansionTimeout time.Duration `yaml:"expansion_timeout"`

	// AutoFormat renders HTML-like tags and passes ANSI through when printing.
	AutoFormat bool `yaml:"auto_format"`

	Log LogSettings `yaml:"log"`
}

// LogSettings mirrors log.LogConfig in YAML form.
type LogSettings struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir,omitempty"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxFiles    int    `yaml:"max_files"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	Compress    bool   `yaml:"compress"`
	SessionLogs bool   `yaml:"session_logs"`
	Debug       bool   `yaml:"debug"`
}

// LogConfig converts the settings for log.Initialize.
func (s LogSettings) LogConfig() *log.LogConfig {
	return &log.LogConfig{
		LogsEnabled:    s.Enabled,
		LogsDir:        s.Dir,
		LogMaxSize:     s.MaxSizeMB,
		LogMaxFiles:    s.MaxFiles,
		LogMaxAge:      s.MaxAgeDays,
		LogCompress:    s.Compress,
		UseSessionLogs: s.SessionLogs,
		Debug:          s.Debug,
	}
}

// GetConfigDir returns the path to the toolkit's configuration directory
func GetConfigDir() (string, error) {
	return log.GetConfigDir()
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	historyFile := ""
	if dir, err := GetConfigDir(); err != nil {
		log.WarningLog.Printf("failed to get config directory: %v", err)
	} else {
		historyFile = filepath.Join(dir, HistoryFileName)
	}

	lc := log.DefaultLogConfig()
	return &Config{
		Prefix:           "/",
		Prompt:           "User: ",
		SendCommand:      "/send",
		HistoryFile:      historyFile,
		CancelGrace:      5 * time.Second,
		ShellTimeout:     30 * time.Second,
		ExpansionTimeout: 2 * time.Second,
		AutoFormat:       true,
		Log: LogSettings{
			Enabled:     lc.LogsEnabled,
			Dir:         lc.LogsDir,
			MaxSizeMB:   lc.LogMaxSize,
			MaxFiles:    lc.LogMaxFiles,
			MaxAgeDays:  lc.LogMaxAge,
			Compress:    lc.LogCompress,
			SessionLogs: lc.UseSessionLogs,
			Debug:       lc.Debug,
		},
	}
}

// DefaultConfigPath returns ~/.repl-toolkit/config.yaml, or the bare file name when
// the home directory is unknown.
func DefaultConfigPath() string {
	dir, err := GetConfigDir()
	if err != nil {
		return ConfigFileName
	}
	return filepath.Join(dir, ConfigFileName)
}

// ResolveConfigPath picks the explicit path, then $REPL_TOOLKIT_CONFIG, then the
// default. The bool reports whether the chosen file was named explicitly or exists.
func ResolveConfigPath(explicit string) (string, bool) {
	if strings.TrimSpace(explicit) != "" {
		return ExpandUserPath(explicit), true
	}
	if env := strings.TrimSpace(os.Getenv(ConfigEnv)); env != "" {
		return ExpandUserPath(env), true
	}
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	return path, false
}

// ExpandUserPath replaces a leading "~/" with the home directory.
func ExpandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return path
}

// LoadConfig reads path on top of the defaults. Fields missing from the file keep
// their default values.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, ErrConfigNotFound
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), err
	}
	cfg.HistoryFile = ExpandUserPath(cfg.HistoryFile)
	return cfg, nil
}

// Validate rejects settings the sessions cannot work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Prefix) == "" || strings.ContainsAny(c.Prefix, " \t\r\n") {
		return fmt.Errorf("invalid command prefix %q", c.Prefix)
	}
	if c.SendCommand != "" && !strings.HasPrefix(c.SendCommand, c.Prefix) {
		return fmt.Errorf("send command %q must start with prefix %q", c.SendCommand, c.Prefix)
	}
	if c.CancelGrace < 0 || c.ShellTimeout < 0 || c.ExpansionTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}
	return nil
}

// SaveConfig writes cfg to path, creating its directory.
func SaveConfig(path string, cfg *Config) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to atomically update config file: %w", err)
	}
	return nil
}
