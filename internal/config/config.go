package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/loykin/procwatch/internal/detector"
	"github.com/loykin/procwatch/internal/health"
	"github.com/loykin/procwatch/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PROCWATCH_TARGET_MAX_IDLE=20m.
const EnvPrefix = "PROCWATCH"

// Config is the complete watchdog configuration. It is built once and
// passed to the monitor; nothing reads package-level state.
type Config struct {
	Target  TargetConfig  `mapstructure:"target"`
	Probe   ProbeConfig   `mapstructure:"probe"`
	Launch  LaunchConfig  `mapstructure:"launch"`
	State   StateConfig   `mapstructure:"state"`
	Log     logger.Config `mapstructure:"log"`
	History HistoryConfig `mapstructure:"history"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Server  ServerConfig  `mapstructure:"server"`
}

// TargetConfig names the watched process and its activity log.
type TargetConfig struct {
	Name        string        `mapstructure:"name"`
	Pattern     string        `mapstructure:"pattern"`
	WorkDir     string        `mapstructure:"workdir"`
	ActivityLog string        `mapstructure:"activity_log"`
	MaxIdle     time.Duration `mapstructure:"max_idle"`
}

type ProbeConfig struct {
	Method    string        `mapstructure:"method"` // procfs | pgrep
	KillGrace time.Duration `mapstructure:"kill_grace"`
}

// LaunchConfig describes the launch fallback chain. Relative paths are
// resolved against Target.WorkDir.
type LaunchConfig struct {
	Script      string   `mapstructure:"script"`
	Shell       string   `mapstructure:"shell"`
	ScriptArgs  []string `mapstructure:"script_args"`
	Candidates  []string `mapstructure:"candidates"`
	Interpreter string   `mapstructure:"interpreter"`
	PathEnvVar  string   `mapstructure:"path_env_var"`
	PIDFile     string   `mapstructure:"pid_file"`
}

type StateConfig struct {
	File string `mapstructure:"file"`
}

// HistoryConfig enables the per-pass history sink. DSN selects the backend,
// see history/factory.
type HistoryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	DSN     string        `mapstructure:"dsn"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MetricsConfig controls how pass metrics leave the process: a node
// exporter textfile, a Pushgateway, or both.
type MetricsConfig struct {
	Textfile       string        `mapstructure:"textfile"`
	PushgatewayURL string        `mapstructure:"pushgateway_url"`
	Job            string        `mapstructure:"job"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

// setDefaults registers every key so env overrides apply even without a file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("target.name", "hyperliquid_bot")
	v.SetDefault("target.pattern", "hyperliquid.*trading")
	v.SetDefault("target.workdir", ".")
	v.SetDefault("target.activity_log", "trading_bot.log")
	v.SetDefault("target.max_idle", health.DefaultMaxIdle)

	v.SetDefault("probe.method", detector.MethodProcfs)
	v.SetDefault("probe.kill_grace", 2*time.Second)

	v.SetDefault("launch.script", "run.sh")
	v.SetDefault("launch.shell", "bash")
	v.SetDefault("launch.script_args", []string{"aggressive", "--paper"})
	v.SetDefault("launch.candidates", []string{"trading_bot.py", "bot.py", "main.py", "hyperliquid*.py"})
	v.SetDefault("launch.interpreter", "python3")
	v.SetDefault("launch.path_env_var", "PYTHONPATH")
	v.SetDefault("launch.pid_file", ".bot.pid")

	v.SetDefault("state.file", "bot_state.json")

	v.SetDefault("log.slog.level", logger.LevelInfo)
	v.SetDefault("log.slog.format", logger.FormatText)
	v.SetDefault("log.slog.color", false)
	v.SetDefault("log.slog.timestamps", true)
	v.SetDefault("log.slog.source", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.timeout", 5*time.Second)

	v.SetDefault("metrics.textfile", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "procwatch")
	v.SetDefault("metrics.timeout", 5*time.Second)

	v.SetDefault("server.listen", "127.0.0.1:9105")
	v.SetDefault("server.base_path", "")
}

// Default returns the built-in configuration with paths resolved.
func Default() (Config, error) { return Load("") }

// Load reads the TOML file at path (optional), applies PROCWATCH_* env
// overrides, resolves relative paths against the target workdir and
// validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(filepath.Clean(path))
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.resolvePaths(); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) resolvePaths() error {
	wd, err := filepath.Abs(c.Target.WorkDir)
	if err != nil {
		return fmt.Errorf("resolve workdir: %w", err)
	}
	c.Target.WorkDir = wd
	c.Target.ActivityLog = c.resolve(c.Target.ActivityLog)
	c.Launch.Script = c.resolve(c.Launch.Script)
	c.Launch.PIDFile = c.resolve(c.Launch.PIDFile)
	c.State.File = c.resolve(c.State.File)
	return nil
}

// resolve makes p absolute relative to the workdir; "" stays "".
func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Target.WorkDir, p)
}

// Validate checks fields the monitor cannot run without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Target.Name) == "" {
		errs = append(errs, errors.New("target.name is required"))
	}
	if c.Target.Pattern == "" {
		errs = append(errs, errors.New("target.pattern is required"))
	} else if _, err := regexp.Compile(c.Target.Pattern); err != nil {
		errs = append(errs, fmt.Errorf("target.pattern: %w", err))
	}
	if c.Target.ActivityLog == "" {
		errs = append(errs, errors.New("target.activity_log is required"))
	}
	if c.Target.MaxIdle <= 0 {
		errs = append(errs, errors.New("target.max_idle must be positive"))
	}
	switch c.Probe.Method {
	case detector.MethodProcfs, detector.MethodPgrep:
	default:
		errs = append(errs, fmt.Errorf("probe.method must be %q or %q, got %q", detector.MethodProcfs, detector.MethodPgrep, c.Probe.Method))
	}
	if c.State.File == "" {
		errs = append(errs, errors.New("state.file is required"))
	}
	if c.History.Enabled && strings.TrimSpace(c.History.DSN) == "" {
		errs = append(errs, errors.New("history.dsn is required when history is enabled"))
	}
	return errors.Join(errs...)
}
