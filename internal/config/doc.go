// Package config loads, validates, and normalizes shepherd's TOML
// configuration.
//
// Load resolves the config file (explicit path, then the user config
// directory, then a project-local shepherd.toml), decodes it over the
// defaults, expands ~ in paths, and validates the result. Derived file
// locations (PID file, status exports, check cache) hang off the config
// so every component agrees on where daemon state lives.
package config
