// Package config loads and validates marquee configuration.
//
// Configuration is a TOML file (default ~/.config/marquee/config.toml or a
// marquee.toml in the working directory) with environment variable
// overrides applied after parsing (prefix MARQUEE_). All path fields are
// expanded and normalized before validation.
package config
