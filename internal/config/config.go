package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/libkeeper/libkeeper/internal/branding"
	"github.com/libkeeper/libkeeper/internal/record"
)

const (
	fileName = "config"
	fileType = "yaml"

	libDirName = "lib"

	defaultCheckInterval   = 24 * time.Hour
	defaultFetchTimeout    = 30 * time.Second
	defaultDownloadTimeout = 60 * time.Second
	defaultLogLevel        = "info"
)

// Config carries every tunable the updater needs. It is built once at
// startup and passed explicitly to the components that need it.
type Config struct {
	// LibDir holds the managed library and its version record.
	LibDir string `mapstructure:"lib_dir"`
	// Endpoint is the release-metadata URL queried for the latest version.
	Endpoint string `mapstructure:"endpoint"`
	// CheckInterval is the minimum time between feed checks.
	CheckInterval time.Duration `mapstructure:"check_interval"`
	// FetchTimeout bounds a single metadata request.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// DownloadTimeout bounds an artifact download.
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	// LogLevel is a logrus level name.
	LogLevel string `mapstructure:"log_level"`
}

// LibraryPath returns the destination path of the named artifact inside
// LibDir.
func (c *Config) LibraryPath(filename string) string {
	return filepath.Join(c.LibDir, filename)
}

// RecordPath returns the version record path inside LibDir.
func (c *Config) RecordPath() string {
	return filepath.Join(c.LibDir, record.FileName)
}

// Dir returns the path to the libkeeper home directory (~/.libkeeper).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.libkeeper/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// DefaultEndpoint returns the latest-release URL for the branded upstream
// repository.
func DefaultEndpoint() string {
	return fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", branding.UpstreamRepo())
}

func defaultLibDir() string {
	if dir := os.Getenv(branding.EnvVar("LIB_DIR")); dir != "" {
		return dir
	}
	return filepath.Join(Dir(), libDirName)
}

// Default returns the built-in configuration: the library lives under
// ~/.libkeeper/lib and the feed is the branded upstream repository.
func Default() *Config {
	return &Config{
		LibDir:          defaultLibDir(),
		Endpoint:        DefaultEndpoint(),
		CheckInterval:   defaultCheckInterval,
		FetchTimeout:    defaultFetchTimeout,
		DownloadTimeout: defaultDownloadTimeout,
		LogLevel:        defaultLogLevel,
	}
}

// Load builds the effective configuration. A missing config file is fine;
// a malformed or schema-invalid one returns the default configuration
// alongside the error so callers can warn and keep going.
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("lib_dir", defaultLibDir())
	v.SetDefault("endpoint", DefaultEndpoint())
	v.SetDefault("check_interval", defaultCheckInterval.String())
	v.SetDefault("fetch_timeout", defaultFetchTimeout.String())
	v.SetDefault("download_timeout", defaultDownloadTimeout.String())
	v.SetDefault("log_level", defaultLogLevel)

	v.SetEnvPrefix(branding.EnvPrefix())
	v.AutomaticEnv()

	path := FilePath()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		result, verr := Validate(data)
		if verr != nil {
			return Default(), fmt.Errorf("reading config file %s: %w", path, verr)
		}
		if !result.Valid {
			return Default(), fmt.Errorf("config file %s is invalid: %s", path, formatIssues(result.Issues))
		}
		v.SetConfigType(fileType)
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return Default(), fmt.Errorf("reading config file %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return Default(), fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return Default(), fmt.Errorf("parsing configuration: %w", err)
	}
	return cfg, nil
}

func formatIssues(issues []Issue) string {
	msgs := make([]string, len(issues))
	for i, issue := range issues {
		if issue.Path == "" {
			msgs[i] = issue.Message
			continue
		}
		msgs[i] = issue.Path + ": " + issue.Message
	}
	return strings.Join(msgs, "; ")
}

// Get returns the effective value for key, resolved the same way Load
// resolves it.
func Get(key string) (string, error) {
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	switch key {
	case "lib_dir":
		return cfg.LibDir, nil
	case "endpoint":
		return cfg.Endpoint, nil
	case "check_interval":
		return cfg.CheckInterval.String(), nil
	case "fetch_timeout":
		return cfg.FetchTimeout.String(), nil
	case "download_timeout":
		return cfg.DownloadTimeout.String(), nil
	case "log_level":
		return cfg.LogLevel, nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}

// Set writes one key into the config file, creating the file if needed. The
// updated document must still satisfy the schema, so unknown keys and bad
// values are rejected before anything is written.
func Set(key, value string) error {
	v := viper.New()
	v.SetConfigFile(FilePath())
	v.SetConfigType(fileType)
	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	v.Set(key, value)

	out, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("serializing configuration: %w", err)
	}
	result, err := Validate(out)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("rejected: %s", formatIssues(result.Issues))
	}

	if err := os.MkdirAll(Dir(), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(FilePath(), out, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
