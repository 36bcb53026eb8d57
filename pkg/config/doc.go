// Package config defines the YAML configuration schema for the gateway,
// along with defaulting, validation, and environment variable overrides.
//
// Configuration is loaded from a YAML file, defaults are applied for any
// omitted fields, POLARIS_* environment variables are layered on top, and
// the final result is validated before any component starts.
package config
