// Package config builds the runtime configuration from defaults, the
// optional ~/.libkeeper/config.yaml file (validated against an embedded
// schema), and LIBKEEPER_* environment variables, in increasing precedence.
package config
