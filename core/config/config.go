package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/tristendillon/pytrace/core/logger"
	"github.com/tristendillon/pytrace/core/manifest"
)

const EnvPrefix = "PYTRACE_"

var FileNames = []string{"pytrace.yaml", "pytrace.yml"}

type Config struct {
	Verbose      bool          `koanf:"verbose" yaml:"verbose"`
	LogFile      string        `koanf:"log_file" yaml:"log_file"`
	Color        string        `koanf:"color" yaml:"color"`
	Python       string        `koanf:"python" yaml:"python"`
	StdlibDir    string        `koanf:"stdlib_dir" yaml:"stdlib_dir"`
	SitePackages []string      `koanf:"site_packages" yaml:"site_packages"`
	Workers      int           `koanf:"workers" yaml:"workers"`
	CacheSize    int           `koanf:"cache_size" yaml:"cache_size"`
	Exclude      []string      `koanf:"exclude" yaml:"exclude"`
	IPCEnv       string        `koanf:"ipc_env" yaml:"ipc_env"`
	Debounce     time.Duration `koanf:"debounce" yaml:"debounce"`
	WatchExclude []string      `koanf:"watch_exclude" yaml:"watch_exclude"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-" yaml:"-"`
}

func Default() *Config {
	return &Config{
		Color:        string(logger.ColorAuto),
		Workers:      4,
		CacheSize:    4096,
		IPCEnv:       manifest.DefaultIPCEnv,
		Debounce:     500 * time.Millisecond,
		WatchExclude: []string{".git", "__pycache__", ".venv", "venv", "node_modules"},
	}
}

func defaults() map[string]interface{} {
	d := Default()
	return map[string]interface{}{
		"verbose":       d.Verbose,
		"color":         d.Color,
		"workers":       d.Workers,
		"cache_size":    d.CacheSize,
		"ipc_env":       d.IPCEnv,
		"debounce":      d.Debounce,
		"watch_exclude": d.WatchExclude,
	}
}

// flagKeys maps flag names whose config key differs from the snake_case name.
var flagKeys = map[string]string{
	"logfile": "log_file",
	"config":  "",
}

// Load merges defaults, the config file, .env, PYTRACE_* variables and the
// flags that were explicitly set, in increasing order of precedence. The
// config file is configPath when given, otherwise pytrace.yaml or
// pytrace.yml inside root.
func Load(root, configPath string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path, err := findFile(root, configPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
		logger.Debug("Config file found: %s", path)
	}

	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded .env from working directory")
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[f.Name]; ok {
				key = mapped
			}
			if key == "" {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("Config: %+v", cfg)
	return &cfg, nil
}

func findFile(root, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}
	if root == "" {
		return "", nil
	}
	for _, name := range FileNames {
		candidate := filepath.Join(root, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", nil
}

// envValue turns PYTRACE_SITE_PACKAGES into site_packages. List keys are
// split on the OS path list separator for paths and on commas for globs.
func envValue(name, value string) (string, interface{}) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	switch key {
	case "site_packages":
		return key, splitList(value, string(os.PathListSeparator))
	case "exclude", "watch_exclude":
		return key, splitList(value, ",")
	}
	return key, value
}

func splitList(value, sep string) []string {
	var out []string
	for _, part := range strings.Split(value, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch logger.ColorMode(c.Color) {
	case logger.ColorAuto, logger.ColorAlways, logger.ColorNever:
	default:
		return fmt.Errorf("invalid color %q: want auto, always or never", c.Color)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache_size must be at least 1, got %d", c.CacheSize)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %s", c.Debounce)
	}
	for _, pattern := range c.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yamlv3.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return out, nil
}
