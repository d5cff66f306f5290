package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	// RecordsDir holds one ChangeSpec file per project.
	RecordsDir string `toml:"records_dir"`
	// LogDir receives daemon logs, the PID file, and the JSON exports.
	LogDir string `toml:"log_dir"`
	// StateDir holds the check cache database.
	StateDir string `toml:"state_dir"`
}

// Scheduler contains cadence intervals and capacity limits, all in
// seconds unless noted.
type Scheduler struct {
	FullCheckInterval  int    `toml:"full_check_interval"`
	HookInterval       int    `toml:"hook_interval"`
	StatusInterval     int    `toml:"status_interval"`
	MetricsInterval    int    `toml:"metrics_interval"`
	ErrorRetryInterval int    `toml:"error_retry_interval"`
	MaxRunners         int    `toml:"max_runners"`
	ZombieTimeout      int    `toml:"zombie_timeout"`
	QueryFilter        string `toml:"query_filter"`
}

// Locking controls record-file lock acquisition.
type Locking struct {
	TimeoutSeconds int `toml:"timeout"`
	RetryDelayMS   int `toml:"retry_delay_ms"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for shepherd.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Scheduler Scheduler `toml:"scheduler"`
	Locking   Locking   `toml:"locking"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/shepherd/config.toml")
}

// Load locates, parses, and validates a configuration file. The third
// return value reports whether a config file was actually found.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("shepherd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RecordsDir, c.Paths.LogDir, c.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PIDFilePath is where the running daemon records its PID.
func (c *Config) PIDFilePath() string {
	return filepath.Join(c.Paths.LogDir, "shepherdd.pid")
}

// LockFilePath guards single-instance daemon execution.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.LogDir, "shepherdd.lock")
}

// StatusFilePath is the atomic status snapshot read by external viewers.
func (c *Config) StatusFilePath() string {
	return filepath.Join(c.Paths.LogDir, "status.json")
}

// MetricsFilePath is the atomic metrics snapshot.
func (c *Config) MetricsFilePath() string {
	return filepath.Join(c.Paths.LogDir, "metrics.json")
}

// RecentErrorsFilePath is the bounded error log snapshot.
func (c *Config) RecentErrorsFilePath() string {
	return filepath.Join(c.Paths.LogDir, "recent_errors.json")
}

// CheckCachePath is the sqlite database holding last-checked timestamps.
func (c *Config) CheckCachePath() string {
	return filepath.Join(c.Paths.StateDir, "shepherd.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
