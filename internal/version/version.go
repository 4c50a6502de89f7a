package version

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Version values are set at build time using -ldflags.
var Version = "dev"
var Major = "0"
var Minor = "0"
var Patch = "0"
var Built = ""
var GitCommit = ""

type VersionInfo struct {
	Version   string `json:"version"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Patch     int    `json:"patch"`
	Built     string `json:"built,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version"`
}

func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		Major:     parseInt(Major),
		Minor:     parseInt(Minor),
		Patch:     parseInt(Patch),
		Built:     Built,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
	}
}

// String renders the one-line form printed by --version.
func (info VersionInfo) String() string {
	var extra []string
	if info.GitCommit != "" {
		extra = append(extra, "commit "+info.GitCommit)
	}
	if info.Built != "" {
		extra = append(extra, "built "+info.Built)
	}
	extra = append(extra, info.GoVersion)
	return fmt.Sprintf("echo %s (%s)", info.Version, strings.Join(extra, ", "))
}

func parseInt(value string) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
