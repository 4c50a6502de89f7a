package spec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"echo/internal/logging"
	"echo/internal/metrics"
)

var (
	ErrUnsupportedExtension = errors.New("spec path must end with .yaml or .yml")
	ErrNotFound             = errors.New("spec file not found")
	ErrInvalidYAML          = errors.New("invalid YAML syntax")
	ErrValidation           = errors.New("spec validation failed")
)

// ValidationError lists every schema violation of a document.
type ValidationError struct {
	Path     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Path, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// HasExtension reports whether path names a YAML document.
func HasExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

type Loader struct {
	logger  *logging.Logger
	metrics *metrics.Registry
}

func NewLoader(logger *logging.Logger, registry *metrics.Registry) *Loader {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loader{logger: logger.Named("spec"), metrics: registry}
}

// Load reads, parses and validates the spec at path.
func (l *Loader) Load(path string) (*Document, error) {
	doc, err := load(path)
	l.metrics.RecordSpecLoad(err)
	return doc, err
}

// LoadOrNil is Load for callers that treat any failure as "no document".
// Failures are logged with every validation problem.
func (l *Loader) LoadOrNil(path string) *Document {
	doc, err := l.Load(path)
	if err == nil {
		return doc
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		for _, problem := range validation.Problems {
			l.logger.Warn("spec validation problem", map[string]string{
				logging.FieldPath: path,
				"problem":         problem,
			})
		}
	}
	l.logger.Error("spec load failed", map[string]string{
		logging.FieldPath:  path,
		logging.FieldError: err.Error(),
	})
	return nil
}

func load(path string) (*Document, error) {
	if !HasExtension(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read spec %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		var validation *ValidationError
		if errors.As(err, &validation) {
			validation.Path = path
		}
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// Parse validates YAML (or JSON) bytes against the spec schema.
func Parse(data []byte) (*Document, error) {
	object, err := decodeYAMLObject(data)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(object)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile spec schema: %w", err)
	}
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("validate spec: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, &ValidationError{Path: "<input>", Problems: problems}
	}

	var parsed Spec
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, &ValidationError{Path: "<input>", Problems: []string{err.Error()}}
	}
	return &Document{Spec: parsed, Raw: object}, nil
}

func decodeYAMLObject(data []byte) (map[string]any, error) {
	var raw any
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ValidationError{Path: "<input>", Problems: []string{"document is empty"}}
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	object, ok := normalizeYAML(raw).(map[string]any)
	if !ok {
		return nil, &ValidationError{Path: "<input>", Problems: []string{"document must be a mapping"}}
	}
	return object, nil
}

// normalizeYAML converts mappings with non-string keys so the value can be
// encoded as JSON.
func normalizeYAML(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[fmt.Sprint(key)] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for idx, item := range typed {
			out[idx] = normalizeYAML(item)
		}
		return out
	default:
		return value
	}
}
