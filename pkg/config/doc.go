// Package config loads the daemon configuration from HUBCAP_* environment
// variables with sensible defaults and startup validation.
package config
