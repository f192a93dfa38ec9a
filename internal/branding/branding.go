// Package branding provides compile-time identity values for the CLI.
//
// Forkers pointing the updater at a different upstream library edit
// branding.yaml in this package; Go's //go:embed bakes it into the binary.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName        string `yaml:"cli_name"`
	DisplayName    string `yaml:"display_name"`
	Description    string `yaml:"description"`
	HomeDir        string `yaml:"home_dir"`
	EnvPrefix      string `yaml:"env_prefix"`
	UpstreamRepo   string `yaml:"upstream_repo"`
	ArtifactPrefix string `yaml:"artifact_prefix"`
	UserAgent      string `yaml:"user_agent"`
}

func load() {
	once.Do(func() {
		// Set hard defaults in case the embedded file is missing/empty.
		defaults = brand{
			CLIName:        "libkeeper",
			DisplayName:    "LibKeeper",
			Description:    "Keeps a native shared library in sync with its upstream releases",
			HomeDir:        ".libkeeper",
			EnvPrefix:      "LIBKEEPER",
			UpstreamRepo:   "bogdanfinn/tls-client",
			ArtifactPrefix: "tls-client",
			UserAgent:      "libkeeper-updater",
		}
		// Overlay with embedded YAML values.
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "libkeeper").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name (e.g., "LibKeeper").
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME (e.g., ".libkeeper").
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix (e.g., "LIBKEEPER").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// UpstreamRepo returns the "owner/repo" string of the release feed
// (e.g., "bogdanfinn/tls-client").
func UpstreamRepo() string { load(); return defaults.UpstreamRepo }

// ArtifactPrefix returns the filename prefix shared by all published
// library artifacts (e.g., "tls-client").
func ArtifactPrefix() string { load(); return defaults.ArtifactPrefix }

// UserAgent returns the User-Agent header value sent on upstream requests.
func UserAgent() string { load(); return defaults.UserAgent }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("LIB_DIR") → "LIBKEEPER_LIB_DIR".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
