package watcher

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewConfigRequiresName(t *testing.T) {
	if _, err := NewConfig("  ", "/tmp", 0); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewConfig("a/b", "/tmp", 0); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for separator, got %v", err)
	}
}

func TestConfigLogsAreBounded(t *testing.T) {
	config, err := NewConfig("echoes", "/tmp/echoes", 3)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	for i := 0; i < 3+4; i++ {
		config.AppendLog(fmt.Sprintf("line %d", i))
	}
	logs := config.Logs()
	if len(logs) != 3 {
		t.Fatalf("expected 3 logs, got %d", len(logs))
	}
	if logs[0] != "line 4" || logs[2] != "line 6" {
		t.Fatalf("expected most recent lines, got %v", logs)
	}
}

func TestConfigDefaultCapacity(t *testing.T) {
	config, err := NewConfig("echoes", "", 0)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if config.LogCapacity() != DefaultLogCapacity {
		t.Fatalf("expected capacity %d, got %d", DefaultLogCapacity, config.LogCapacity())
	}
	status := config.Status()
	if status.Active || status.Logs == nil || len(status.Logs) != 0 {
		t.Fatalf("unexpected fresh status %+v", status)
	}
}

func TestNameForPath(t *testing.T) {
	cases := map[string]string{
		"./echoes":       "echoes",
		"/data/specs/":   "specs",
		"/data/specs///": "specs",
		"relative/dir":   "dir",
		"/":              "",
		"":               "",
	}
	for input, want := range cases {
		if got := NameForPath(input); got != want {
			t.Fatalf("NameForPath(%q): expected %q, got %q", input, want, got)
		}
	}
}

func TestIsWithinPath(t *testing.T) {
	cases := []struct {
		parent string
		child  string
		want   bool
	}{
		{"/data", "/data", true},
		{"/data", "/data/a.yaml", true},
		{"/data", "/data/sub/a.yaml", true},
		{"/data", "/database/a.yaml", false},
		{"/data/sub", "/data/a.yaml", false},
		{"data", "data/a.yaml", true},
	}
	for _, tc := range cases {
		if got := isWithinPath(tc.parent, tc.child); got != tc.want {
			t.Fatalf("isWithinPath(%q, %q): expected %v, got %v", tc.parent, tc.child, tc.want, got)
		}
	}
}

func TestSpellUnderKeepsRegisteredRoot(t *testing.T) {
	cases := []struct {
		root string
		path string
		want string
	}{
		{"./echoes", "echoes/a.yaml", "./echoes/a.yaml"},
		{"./echoes/", "echoes/sub/a.yaml", "./echoes/sub/a.yaml"},
		{"./echoes", "echoes", "./echoes"},
		{"/data", "/data/a.yaml", "/data/a.yaml"},
		{"/", "/a.yaml", "/a.yaml"},
	}
	for _, tc := range cases {
		if got := spellUnder(tc.root, tc.path); got != tc.want {
			t.Fatalf("spellUnder(%q, %q): expected %q, got %q", tc.root, tc.path, tc.want, got)
		}
	}
}

func TestNewConfigKeepsWatchPathSpelling(t *testing.T) {
	config, err := NewConfig("echoes", " ./echoes ", 0)
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if config.WatchPath != "./echoes" {
		t.Fatalf("expected ./echoes, got %q", config.WatchPath)
	}
}
