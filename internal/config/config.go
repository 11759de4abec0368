// Package config loads settings from defaults, an optional YAML file and
// VIGIL_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Detect      DetectConfig      `yaml:"detect"`
	Worker      WorkerConfig      `yaml:"worker"`
	Scraper     ScraperConfig     `yaml:"scraper"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type DetectConfig struct {
	// LexiconPath points to a YAML file of extra categories merged over
	// the built-in lexicon. Empty means built-ins only.
	LexiconPath string `yaml:"lexicon_path"`
}

type WorkerConfig struct {
	QueueSize    int    `yaml:"queue_size"`
	PollInterval string `yaml:"poll_interval"`
	// JobTimeout bounds a single job. "0" disables the bound.
	JobTimeout string `yaml:"job_timeout"`
}

type ScraperConfig struct {
	Headless   bool   `yaml:"headless"`
	NavTimeout string `yaml:"nav_timeout"`
}

type TranscriberConfig struct {
	// BaseURL of a local transcription server. Empty disables
	// transcription analysis.
	BaseURL string `yaml:"base_url"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 5000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Worker: WorkerConfig{
			QueueSize:    100,
			PollInterval: "500ms",
			JobTimeout:   "0",
		},
		Scraper: ScraperConfig{
			Headless:   true,
			NavTimeout: "30s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "vigil")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "vigil-data"
	}
	return filepath.Join(home, ".local", "share", "vigil")
}

// DefaultPath returns the config file location:
// $XDG_CONFIG_HOME/vigil/config.yml or ~/.config/vigil/config.yml.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "vigil", "config.yml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yml"
	}
	return filepath.Join(home, ".config", "vigil", "config.yml")
}

// Load reads the config file at path (DefaultPath() when empty). A missing
// file is not an error; env overrides apply either way.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus env only.
	case err != nil:
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	setInt := func(env string, dst *int) {
		raw := os.Getenv(env)
		if raw == "" {
			return
		}
		if i, err := strconv.Atoi(raw); err == nil {
			*dst = i
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using configured value.\n", env, raw, err)
		}
	}
	setBool := func(env string, dst *bool) {
		raw := os.Getenv(env)
		if raw == "" {
			return
		}
		if b, err := strconv.ParseBool(raw); err == nil {
			*dst = b
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using configured value.\n", env, raw, err)
		}
	}

	setInt("VIGIL_PORT", &cfg.Server.Port)
	setString("VIGIL_TOKEN", &cfg.Server.Token)
	setString("VIGIL_DATA_DIR", &cfg.Storage.DataDir)
	setString("VIGIL_LEXICON_PATH", &cfg.Detect.LexiconPath)
	setInt("VIGIL_QUEUE_SIZE", &cfg.Worker.QueueSize)
	setString("VIGIL_POLL_INTERVAL", &cfg.Worker.PollInterval)
	setString("VIGIL_JOB_TIMEOUT", &cfg.Worker.JobTimeout)
	setBool("VIGIL_HEADLESS", &cfg.Scraper.Headless)
	setString("VIGIL_NAV_TIMEOUT", &cfg.Scraper.NavTimeout)
	setString("VIGIL_TRANSCRIBER_URL", &cfg.Transcriber.BaseURL)
	setString("VIGIL_LOG_LEVEL", &cfg.Log.Level)
}

func (c Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Worker.QueueSize < 1 {
		return fmt.Errorf("invalid queue size %d", c.Worker.QueueSize)
	}
	for name, raw := range map[string]string{
		"worker.poll_interval": c.Worker.PollInterval,
		"worker.job_timeout":   c.Worker.JobTimeout,
		"scraper.nav_timeout":  c.Scraper.NavTimeout,
	} {
		if _, err := parseDuration(raw); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// PollDuration returns the parsed worker poll interval.
func (c WorkerConfig) PollDuration() time.Duration {
	d, _ := parseDuration(c.PollInterval)
	return d
}

// JobTimeoutDuration returns the parsed per-job timeout, 0 for none.
func (c WorkerConfig) JobTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.JobTimeout)
	return d
}

// NavTimeoutDuration returns the parsed navigation timeout.
func (c ScraperConfig) NavTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.NavTimeout)
	return d
}

// parseDuration accepts time.ParseDuration syntax plus bare "0".
func parseDuration(raw string) (time.Duration, error) {
	if raw == "" || raw == "0" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
