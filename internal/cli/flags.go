// Package cli holds the flags every echo command shares.
package cli

import (
	"flag"
	"os"
	"strings"

	"echo/internal/logging"
)

const (
	defaultHelpDesc    = "Show help"
	defaultVersionDesc = "Print version and exit"
)

type HelpVersionFlags struct {
	Help    bool
	Version bool
}

func AddHelpVersionFlags(fs *flag.FlagSet, helpDesc, versionDesc string) *HelpVersionFlags {
	if fs == nil {
		return &HelpVersionFlags{}
	}
	if helpDesc == "" {
		helpDesc = defaultHelpDesc
	}
	if versionDesc == "" {
		versionDesc = defaultVersionDesc
	}
	flags := &HelpVersionFlags{}
	fs.BoolVar(&flags.Help, "help", false, helpDesc)
	fs.BoolVar(&flags.Help, "h", false, helpDesc)
	fs.BoolVar(&flags.Version, "version", false, versionDesc)
	fs.BoolVar(&flags.Version, "v", false, versionDesc)
	return flags
}

type VerbosityFlags struct {
	Verbose bool
	Quiet   bool
}

func AddVerbosityFlags(fs *flag.FlagSet) *VerbosityFlags {
	flags := &VerbosityFlags{}
	if fs == nil {
		return flags
	}
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.Quiet, "quiet", false, "Reduce logging to warnings")
	return flags
}

// Level resolves the log level: flags, then ECHO_LOG_LEVEL, then fallback
// (the log.level setting), then info.
func (f *VerbosityFlags) Level(fallback string) logging.Level {
	verbose := f != nil && f.Verbose
	quiet := f != nil && f.Quiet
	if verbose || quiet || strings.TrimSpace(os.Getenv(logging.LevelEnvVar)) != "" {
		return logging.ResolveLevel(verbose, quiet)
	}
	if parsed, ok := logging.ParseLevel(fallback); ok {
		return parsed
	}
	return logging.LevelInfo
}
