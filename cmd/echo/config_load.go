package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"echo"
	"echo/internal/cli"
	"echo/internal/config"
	"echo/internal/logging"
)

const (
	defaultConfigPath = "echo.toml"
	defaultEnvFile    = ".env"
)

type Config struct {
	ConfigPath  string
	EnvFile     string
	Settings    config.Settings
	AuthToken   string
	LogLevel    logging.Level
	ShowVersion bool
	Sources     map[string]configSource
}

type configSource string

const (
	sourceDefault configSource = "default"
	sourceFile    configSource = "file"
	sourceEnv     configSource = "env"
	sourceFlag    configSource = "flag"
)

// settingKeys lists the keys whose source is reported in Config.Sources.
var settingKeys = []string{
	"transport.mode",
	"transport.host",
	"transport.port",
	"watch.paths",
	"watch.log-capacity",
	"watch.queue-size",
	"watch.report-interval",
	"watch.create-missing",
	"spec.default",
	"http.addr",
}

type flagValues struct {
	ConfigPath     string
	EnvFile        string
	Transport      string
	NATSHost       string
	NATSPort       string
	Watch          stringList
	LogCapacity    int
	QueueSize      int
	ReportInterval time.Duration
	CreateMissing  bool
	Spec           string
	HTTPAddr       string
	Token          string
	Verbosity      *cli.VerbosityFlags
	Help           bool
	Version        bool
	Set            map[string]bool
}

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *stringList) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("value cannot be empty")
	}
	*l = append(*l, value)
	return nil
}

type helpOption struct {
	Name string
	Desc string
}

// envOverride maps an environment variable (first non-empty wins) onto a
// settings key.
type envOverride struct {
	key   string
	names []string
}

var envOverrides = []envOverride{
	{key: "transport.mode", names: []string{"ECHO_TRANSPORT"}},
	{key: "transport.host", names: []string{"ECHO_NATS_HOST", "NATS_BASE_URL"}},
	{key: "transport.port", names: []string{"ECHO_NATS_PORT", "NATS_PORT"}},
	{key: "spec.default", names: []string{"ECHO_DEFAULT_SPEC"}},
	{key: "http.addr", names: []string{"ECHO_HTTP_ADDR"}},
}

func defaultSettings() (config.Settings, error) {
	payload, err := defaultsPayload()
	if err != nil {
		return config.Settings{}, err
	}
	return config.LoadSettings("", payload, nil)
}

func defaultsPayload() ([]byte, error) {
	payload, err := fs.ReadFile(echo.EmbeddedConfigFS, echo.DefaultsPath)
	if err != nil {
		return nil, fmt.Errorf("read embedded defaults: %w", err)
	}
	return payload, nil
}

func loadConfig(args []string) (Config, error) {
	defaults, err := defaultSettings()
	if err != nil {
		return Config{}, err
	}
	flags, err := parseFlags(args, defaults)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		EnvFile:     defaultEnvFile,
		ShowVersion: flags.Version,
		Sources:     make(map[string]configSource),
	}
	if flags.Set["env-file"] {
		cfg.EnvFile = strings.TrimSpace(flags.EnvFile)
	}
	if cfg.EnvFile != "" {
		// Variables already in the environment win over the file.
		if err := godotenv.Load(cfg.EnvFile); err != nil && flags.Set["env-file"] {
			return Config{}, fmt.Errorf("load env file %s: %w", cfg.EnvFile, err)
		}
	}

	cfg.ConfigPath = defaultConfigPath
	cfg.Sources["config"] = sourceDefault
	if rawPath := strings.TrimSpace(os.Getenv("ECHO_CONFIG")); rawPath != "" {
		cfg.ConfigPath = rawPath
		cfg.Sources["config"] = sourceEnv
	}
	if flags.Set["config"] {
		trimmed := strings.TrimSpace(flags.ConfigPath)
		if trimmed == "" {
			return Config{}, fmt.Errorf("invalid --config: value cannot be empty")
		}
		cfg.ConfigPath = trimmed
		cfg.Sources["config"] = sourceFlag
	}

	overrides := make(map[string]any)
	overrideSources := make(map[string]configSource)
	setOverride := func(key string, value any, source configSource) {
		overrides[key] = value
		overrideSources[key] = source
	}

	for _, override := range envOverrides {
		for _, name := range override.names {
			if value := strings.TrimSpace(os.Getenv(name)); value != "" {
				setOverride(override.key, value, sourceEnv)
				break
			}
		}
	}
	if rawPaths := os.Getenv("ECHO_WATCH_PATHS"); strings.TrimSpace(rawPaths) != "" {
		if paths := splitList(rawPaths); len(paths) > 0 {
			setOverride("watch.paths", paths, sourceEnv)
		}
	}

	if flags.Set["transport"] {
		setOverride("transport.mode", strings.TrimSpace(flags.Transport), sourceFlag)
	}
	if flags.Set["nats-host"] {
		setOverride("transport.host", strings.TrimSpace(flags.NATSHost), sourceFlag)
	}
	if flags.Set["nats-port"] {
		port := strings.TrimSpace(flags.NATSPort)
		if parsed, err := strconv.Atoi(port); err != nil || parsed <= 0 {
			return Config{}, fmt.Errorf("invalid --nats-port: must be > 0")
		}
		setOverride("transport.port", port, sourceFlag)
	}
	if flags.Set["watch"] {
		setOverride("watch.paths", []string(flags.Watch), sourceFlag)
	}
	if flags.Set["log-capacity"] {
		if flags.LogCapacity <= 0 {
			return Config{}, fmt.Errorf("invalid --log-capacity: must be > 0")
		}
		setOverride("watch.log-capacity", int64(flags.LogCapacity), sourceFlag)
	}
	if flags.Set["queue-size"] {
		if flags.QueueSize <= 0 {
			return Config{}, fmt.Errorf("invalid --queue-size: must be > 0")
		}
		setOverride("watch.queue-size", int64(flags.QueueSize), sourceFlag)
	}
	if flags.Set["report-interval"] {
		if flags.ReportInterval < 0 {
			return Config{}, fmt.Errorf("invalid --report-interval: must be >= 0")
		}
		setOverride("watch.report-interval", flags.ReportInterval.String(), sourceFlag)
	}
	if flags.Set["create-missing"] {
		setOverride("watch.create-missing", flags.CreateMissing, sourceFlag)
	}
	if flags.Set["spec"] {
		setOverride("spec.default", strings.TrimSpace(flags.Spec), sourceFlag)
	}
	if flags.Set["http"] {
		setOverride("http.addr", strings.TrimSpace(flags.HTTPAddr), sourceFlag)
	}

	payload, err := defaultsPayload()
	if err != nil {
		return Config{}, err
	}
	settings, err := config.LoadSettings(cfg.ConfigPath, payload, overrides)
	if err != nil {
		return Config{}, err
	}
	cfg.Settings = settings

	for _, key := range settingKeys {
		switch {
		case overrideSources[key] != "":
			cfg.Sources[key] = overrideSources[key]
		case settings.FromFile(key):
			cfg.Sources[key] = sourceFile
		default:
			cfg.Sources[key] = sourceDefault
		}
	}

	cfg.AuthToken = os.Getenv("ECHO_TOKEN")
	cfg.Sources["token"] = sourceDefault
	if cfg.AuthToken != "" {
		cfg.Sources["token"] = sourceEnv
	}
	if flags.Set["token"] {
		cfg.AuthToken = flags.Token
		cfg.Sources["token"] = sourceFlag
	}

	cfg.LogLevel = flags.Verbosity.Level(settings.Log.Level)
	return cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseFlags(args []string, defaults config.Settings) (flagValues, error) {
	fs := flag.NewFlagSet("echo", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	flags := flagValues{}
	fs.StringVar(&flags.ConfigPath, "config", defaultConfigPath, "Settings file")
	fs.StringVar(&flags.EnvFile, "env-file", defaultEnvFile, "Environment file")
	fs.StringVar(&flags.Transport, "transport", defaults.Transport.Mode, "Transport mode")
	fs.StringVar(&flags.NATSHost, "nats-host", defaults.Transport.Host, "NATS host or URL")
	fs.StringVar(&flags.NATSPort, "nats-port", defaults.Transport.Port, "NATS port")
	fs.Var(&flags.Watch, "watch", "Watch path (repeatable)")
	fs.IntVar(&flags.LogCapacity, "log-capacity", int(defaults.Watch.LogCapacity), "Log entries kept per watcher")
	fs.IntVar(&flags.QueueSize, "queue-size", int(defaults.Watch.QueueSize), "Dispatch queue size")
	fs.DurationVar(&flags.ReportInterval, "report-interval", defaults.Watch.ReportInterval, "Active watcher report interval")
	fs.BoolVar(&flags.CreateMissing, "create-missing", defaults.Watch.CreateMissing, "Create missing watch roots")
	fs.StringVar(&flags.Spec, "spec", defaults.Spec.Default, "Spec loaded at startup")
	fs.StringVar(&flags.HTTPAddr, "http", defaults.HTTP.Addr, "Status API listen address")
	fs.StringVar(&flags.Token, "token", "", "Auth token for REST/WS")
	flags.Verbosity = cli.AddVerbosityFlags(fs)
	helpVersion := cli.AddHelpVersionFlags(fs, "Show help", "Print version and exit")

	fs.Usage = func() {
		printHelp(fs.Output(), defaults)
	}

	if err := fs.Parse(args); err != nil {
		return flagValues{}, err
	}
	if fs.NArg() > 0 {
		return flagValues{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	set := make(map[string]bool)
	fs.Visit(func(flag *flag.Flag) {
		set[flag.Name] = true
	})
	flags.Help = helpVersion.Help
	flags.Version = helpVersion.Version
	flags.Set = set

	if flags.Help {
		set["help"] = true
		fs.SetOutput(os.Stdout)
		fs.Usage()
		return flags, flag.ErrHelp
	}
	return flags, nil
}

func printHelp(out io.Writer, defaults config.Settings) {
	fmt.Fprintln(out, "Usage: echo [serve] [options]")
	fmt.Fprintln(out, "       echo validate FILE...")
	fmt.Fprintln(out, "       echo schema")
	fmt.Fprintln(out, "       echo hash --name NAME --source SOURCE [--payload JSON] [--timestamp RFC3339]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Watches directories and publishes file events over NATS")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")

	writeOptionGroup(out, "Settings", []helpOption{
		{
			Name: "--config FILE",
			Desc: fmt.Sprintf("Settings file (env: ECHO_CONFIG, default: %s)", defaultConfigPath),
		},
		{
			Name: "--env-file FILE",
			Desc: fmt.Sprintf("Environment file loaded at startup (default: %s)", defaultEnvFile),
		},
	})

	writeOptionGroup(out, "Transport", []helpOption{
		{
			Name: "--transport MODE",
			Desc: fmt.Sprintf("nats, embedded or memory (env: ECHO_TRANSPORT, default: %s)", defaults.Transport.Mode),
		},
		{
			Name: "--nats-host HOST",
			Desc: "NATS host or URL (env: ECHO_NATS_HOST, NATS_BASE_URL)",
		},
		{
			Name: "--nats-port PORT",
			Desc: fmt.Sprintf("NATS port (env: ECHO_NATS_PORT, NATS_PORT, default: %s)", defaults.Transport.Port),
		},
	})

	writeOptionGroup(out, "Watchers", []helpOption{
		{
			Name: "--watch PATH",
			Desc: fmt.Sprintf("Watch path, repeatable (env: ECHO_WATCH_PATHS, default: %s)", strings.Join(defaults.Watch.Paths, ",")),
		},
		{
			Name: "--log-capacity N",
			Desc: fmt.Sprintf("Log entries kept per watcher (default: %d)", defaults.Watch.LogCapacity),
		},
		{
			Name: "--queue-size N",
			Desc: fmt.Sprintf("Dispatch queue size (default: %d)", defaults.Watch.QueueSize),
		},
		{
			Name: "--report-interval D",
			Desc: fmt.Sprintf("Active watcher report interval, 0 disables (default: %s)", defaults.Watch.ReportInterval),
		},
		{
			Name: "--create-missing",
			Desc: fmt.Sprintf("Create missing watch roots (default: %t)", defaults.Watch.CreateMissing),
		},
		{
			Name: "--spec FILE",
			Desc: "Spec loaded at startup (env: ECHO_DEFAULT_SPEC)",
		},
	})

	writeOptionGroup(out, "API", []helpOption{
		{
			Name: "--http ADDR",
			Desc: "Status API listen address, empty disables (env: ECHO_HTTP_ADDR)",
		},
		{
			Name: "--token TOKEN",
			Desc: "Auth token for REST/WS (env: ECHO_TOKEN, default: none)",
		},
	})

	writeOptionGroup(out, "Logging", []helpOption{
		{
			Name: "--verbose",
			Desc: "Enable verbose logging",
		},
		{
			Name: "--quiet",
			Desc: "Reduce logging to warnings",
		},
	})

	writeOptionGroup(out, "General", []helpOption{
		{
			Name: "--help, -h",
			Desc: "Show help",
		},
		{
			Name: "--version, -v",
			Desc: "Print version and exit",
		},
	})
}

func writeOptionGroup(out io.Writer, title string, options []helpOption) {
	if len(options) == 0 {
		return
	}
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, title+":")
	for _, option := range options {
		fmt.Fprintf(out, "  %-24s %s\n", option.Name, option.Desc)
	}
}

// logConfigSources reports every setting that did not come from the
// defaults.
func logConfigSources(logger *logging.Logger, cfg Config) {
	if logger == nil {
		return
	}
	keys := make([]string, 0, len(cfg.Sources))
	for key, source := range cfg.Sources {
		if source != sourceDefault {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		logger.Debug("config override", map[string]string{
			"key":    key,
			"source": string(cfg.Sources[key]),
		})
	}
}
