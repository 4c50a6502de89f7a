package spec

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"echo/internal/metrics"
)

const validSpec = `version: "1"
capability: summarize-repo
description: Clone a repository and summarize it
inputs:
  repo:
    type: string
    description: repository URL
    required: true
permissions:
  network: github.com only
  filesystem: ephemeral
  tools: [git.clone, llm.summarize]
returns:
  summary: ${{ summarize.output }}
plan:
  - id: clone
    use: git.clone
    with:
      url: ${{ inputs.repo }}
    output: checkout
  - id: summarize
    use: llm.summarize
`

func writeSpec(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return path
}

func TestLoadValidSpec(t *testing.T) {
	registry := &metrics.Registry{}
	loader := NewLoader(nil, registry)
	path := writeSpec(t, "summarize.yaml", validSpec)

	doc, err := loader.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Path != path {
		t.Fatalf("expected path %s, got %s", path, doc.Path)
	}
	if doc.Spec.Capability != "summarize-repo" {
		t.Fatalf("unexpected capability %q", doc.Spec.Capability)
	}
	if !doc.Spec.Inputs["repo"].Required {
		t.Fatal("expected repo input to be required")
	}
	if len(doc.Spec.Permissions.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %v", doc.Spec.Permissions.Tools)
	}
	if len(doc.Spec.Plan) != 2 || doc.Spec.Plan[0].With["url"] != "${{ inputs.repo }}" {
		t.Fatalf("unexpected plan %+v", doc.Spec.Plan)
	}
	if doc.Raw["capability"] != "summarize-repo" {
		t.Fatalf("expected raw document, got %v", doc.Raw)
	}
	if loaded, invalid := registry.SpecLoads(); loaded != 1 || invalid != 0 {
		t.Fatalf("expected 1 valid load, got %d valid and %d invalid", loaded, invalid)
	}
}

func TestLoadRejectsExtension(t *testing.T) {
	path := writeSpec(t, "spec.json", "{}")
	if _, err := NewLoader(nil, nil).Load(path); !errors.Is(err, ErrUnsupportedExtension) {
		t.Fatalf("expected ErrUnsupportedExtension, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yml")
	if _, err := NewLoader(nil, nil).Load(path); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeSpec(t, "broken.yaml", "version: [1\n")
	if _, err := NewLoader(nil, nil).Load(path); !errors.Is(err, ErrInvalidYAML) {
		t.Fatalf("expected ErrInvalidYAML, got %v", err)
	}
}

func TestLoadReportsEveryViolation(t *testing.T) {
	registry := &metrics.Registry{}
	body := strings.Replace(validSpec, "capability: summarize-repo\n", "", 1)
	body = strings.Replace(body, "id: clone", "id: clone repo", 1)
	path := writeSpec(t, "invalid.yaml", body)

	_, err := NewLoader(nil, registry).Load(path)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if validation.Path != path {
		t.Fatalf("expected path %s, got %s", path, validation.Path)
	}
	if len(validation.Problems) < 2 {
		t.Fatalf("expected at least 2 problems, got %v", validation.Problems)
	}
	joined := strings.Join(validation.Problems, "\n")
	if !strings.Contains(joined, "capability") {
		t.Fatalf("expected missing capability in %q", joined)
	}
	if _, invalid := registry.SpecLoads(); invalid != 1 {
		t.Fatalf("expected 1 invalid load, got %d", invalid)
	}
}

func TestParseRejectsNonMappings(t *testing.T) {
	for _, body := range []string{"", "- a\n- b\n", "just text\n"} {
		if _, err := Parse([]byte(body)); !errors.Is(err, ErrValidation) {
			t.Fatalf("body %q: expected ErrValidation, got %v", body, err)
		}
	}
}

func TestParseAcceptsJSON(t *testing.T) {
	doc := map[string]any{
		"version":     "1",
		"capability":  "noop",
		"description": "does nothing",
		"permissions": map[string]any{"network": "none", "filesystem": "none", "tools": []string{}},
		"returns":     map[string]string{},
	}
	data, _ := json.Marshal(doc)
	if _, err := Parse(data); err != nil {
		t.Fatalf("parse json: %v", err)
	}
}

func TestLoadOrNil(t *testing.T) {
	registry := &metrics.Registry{}
	loader := NewLoader(nil, registry)
	if doc := loader.LoadOrNil(filepath.Join(t.TempDir(), "missing.yaml")); doc != nil {
		t.Fatalf("expected nil document, got %+v", doc)
	}
	if doc := loader.LoadOrNil(writeSpec(t, "ok.yml", validSpec)); doc == nil {
		t.Fatal("expected document")
	}
}

func TestHasExtension(t *testing.T) {
	for path, want := range map[string]bool{
		"a.yaml":     true,
		"a.YML":      true,
		"a.yaml.tmp": false,
		"a.json":     false,
		"yaml":       false,
	} {
		if got := HasExtension(path); got != want {
			t.Fatalf("HasExtension(%q): expected %v, got %v", path, want, got)
		}
	}
}

func TestSchemaJSON(t *testing.T) {
	data, err := SchemaJSON()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("schema is not json: %v", err)
	}
	required, _ := decoded["required"].([]any)
	names := map[string]bool{}
	for _, name := range required {
		names[name.(string)] = true
	}
	for _, want := range []string{"version", "capability", "description", "permissions", "returns"} {
		if !names[want] {
			t.Fatalf("expected %s to be required, got %v", want, required)
		}
	}
	if names["plan"] || names["inputs"] {
		t.Fatalf("expected plan and inputs to be optional, got %v", required)
	}
}
