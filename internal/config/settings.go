package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"echo/internal/config/tomlkeys"
)

const (
	TransportNATS     = "nats"
	TransportEmbedded = "embedded"
	TransportMemory   = "memory"
)

type Settings struct {
	Transport TransportSettings
	Watch     WatchSettings
	Watchers  []map[string]any
	Spec      SpecSettings
	HTTP      HTTPSettings
	Log       LogSettings

	// FileKeys holds the normalized keys set by the TOML file.
	FileKeys map[string]bool
}

type TransportSettings struct {
	Mode string
	Host string
	Port string
}

type WatchSettings struct {
	Paths          []string
	LogCapacity    int64
	CreateMissing  bool
	QueueSize      int64
	ReportInterval time.Duration
}

type SpecSettings struct {
	Default string
}

type HTTPSettings struct {
	Addr string
}

type LogSettings struct {
	Level string
}

// FromFile reports whether key was set by the settings file.
func (s Settings) FromFile(key string) bool {
	return s.FileKeys[tomlkeys.NormalizeKey(key)]
}

// LoadSettings layers the TOML file at path over the embedded defaults and
// then applies overrides. A missing file is not an error.
func LoadSettings(path string, defaultsPayload []byte, overrides map[string]any) (Settings, error) {
	defaultsStore, err := tomlkeys.Decode(defaultsPayload)
	if err != nil {
		return Settings{}, fmt.Errorf("decode default settings: %w", err)
	}
	defaults := defaultsStore.Flat()
	values := defaultsStore.Flat()
	fileKeys := make(map[string]bool)

	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Settings{}, err
			}
		} else {
			store, err := tomlkeys.Decode(payload)
			if err != nil {
				return Settings{}, fmt.Errorf("decode %s: %w", path, err)
			}
			for key, value := range store.Flat() {
				values[key] = value
				fileKeys[key] = true
			}
		}
	}

	for key, value := range overrides {
		normalized := tomlkeys.NormalizeKey(key)
		if normalized == "" {
			continue
		}
		values[normalized] = value
	}

	settings := Settings{FileKeys: fileKeys}

	settings.Transport.Mode = strings.ToLower(stringSetting(values, "transport.mode", TransportNATS))
	settings.Transport.Host = stringSetting(values, "transport.host", "")
	settings.Transport.Port = portSetting(values, "transport.port")
	settings.Watch.Paths = stringsSetting(values, "watch.paths")
	settings.Watch.LogCapacity = intSetting(values, "watch.log-capacity", 0)
	settings.Watch.CreateMissing = boolSetting(values, "watch.create-missing", boolSetting(defaults, "watch.create-missing", true))
	settings.Watch.QueueSize = intSetting(values, "watch.queue-size", 0)
	settings.Watch.ReportInterval, err = durationSetting(values, "watch.report-interval")
	if err != nil {
		return Settings{}, err
	}
	if tables, ok := tomlkeys.AsTables(values["watchers"]); ok {
		settings.Watchers = tables
	}
	settings.Spec.Default = stringSetting(values, "spec.default", "")
	settings.HTTP.Addr = stringSetting(values, "http.addr", "")
	settings.Log.Level = stringSetting(values, "log.level", "")

	if err := validateSettings(settings); err != nil {
		return Settings{}, err
	}
	return normalizeSettings(settings, defaults), nil
}

func validateSettings(settings Settings) error {
	switch settings.Transport.Mode {
	case TransportNATS, TransportEmbedded, TransportMemory:
	default:
		return fmt.Errorf("invalid transport.mode %q: expected nats, embedded or memory", settings.Transport.Mode)
	}
	return nil
}

func normalizeSettings(settings Settings, defaults map[string]any) Settings {
	if settings.Watch.LogCapacity <= 0 {
		settings.Watch.LogCapacity = intSetting(defaults, "watch.log-capacity", 100)
	}
	if settings.Watch.QueueSize <= 0 {
		settings.Watch.QueueSize = intSetting(defaults, "watch.queue-size", 256)
	}
	if settings.Watch.ReportInterval < 0 {
		settings.Watch.ReportInterval = 0
	}
	return settings
}

func intSetting(values map[string]any, key string, fallback int64) int64 {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := tomlkeys.AsInt64(value); ok {
		return parsed
	}
	return fallback
}

func stringSetting(values map[string]any, key string, fallback string) string {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := value.(string); ok {
		return strings.TrimSpace(parsed)
	}
	return fallback
}

func boolSetting(values map[string]any, key string, fallback bool) bool {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return fallback
	}
	if parsed, ok := value.(bool); ok {
		return parsed
	}
	return fallback
}

func stringsSetting(values map[string]any, key string) []string {
	parsed, ok := tomlkeys.AsStrings(values[tomlkeys.NormalizeKey(key)])
	if !ok {
		return nil
	}
	out := parsed[:0]
	for _, item := range parsed {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// portSetting accepts the port as a TOML integer or string.
func portSetting(values map[string]any, key string) string {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return ""
	}
	if parsed, ok := tomlkeys.AsInt64(value); ok {
		if parsed <= 0 {
			return ""
		}
		return fmt.Sprint(parsed)
	}
	if parsed, ok := value.(string); ok {
		return strings.TrimSpace(parsed)
	}
	return ""
}

// durationSetting accepts a Go duration string or a number of seconds.
func durationSetting(values map[string]any, key string) (time.Duration, error) {
	value, ok := values[tomlkeys.NormalizeKey(key)]
	if !ok {
		return 0, nil
	}
	if seconds, ok := tomlkeys.AsInt64(value); ok {
		return time.Duration(seconds) * time.Second, nil
	}
	if text, ok := value.(string); ok {
		text = strings.TrimSpace(text)
		if text == "" {
			return 0, nil
		}
		parsed, err := time.ParseDuration(text)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return parsed, nil
	}
	return 0, fmt.Errorf("invalid %s: expected duration", key)
}
