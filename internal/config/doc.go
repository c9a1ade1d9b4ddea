// Package config loads, normalizes, and validates the TOML configuration for
// waggletag. Load applies defaults first, then overlays the config file, so a
// missing file still yields a usable configuration.
package config
