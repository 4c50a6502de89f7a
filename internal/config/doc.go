// Package config loads echo settings from TOML. Keys are normalized by
// tomlkeys, so sections, dotted keys, case and underscores are
// interchangeable.
package config
