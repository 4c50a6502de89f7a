package echo

import "embed"

// EmbeddedConfigFS provides the built-in settings.
//
//go:embed config
var EmbeddedConfigFS embed.FS

// DefaultsPath is the location of the default settings inside EmbeddedConfigFS.
const DefaultsPath = "config/defaults.toml"
