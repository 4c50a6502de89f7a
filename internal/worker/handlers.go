package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"echo/internal/event"
	"echo/internal/logging"
	"echo/internal/otel"
	"echo/internal/pipeline"
	"echo/internal/spec"
)

// ErrNoPath is returned when an event payload names no file.
var ErrNoPath = errors.New("event payload has no path")

// Options configures a SpecWorker.
type Options struct {
	Loader  *spec.Loader
	Catalog *Catalog
	Logger  *logging.Logger
	Now     func() time.Time
}

// SpecWorker loads spec files named by file events.
type SpecWorker struct {
	loader  *spec.Loader
	catalog *Catalog
	logger  *logging.Logger
	now     func() time.Time
}

func NewSpecWorker(opts Options) *SpecWorker {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	loader := opts.Loader
	if loader == nil {
		loader = spec.NewLoader(logger, nil)
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = NewCatalog()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SpecWorker{
		loader:  loader,
		catalog: catalog,
		logger:  logger.Named("worker"),
		now:     now,
	}
}

func (w *SpecWorker) Catalog() *Catalog {
	return w.catalog
}

// Handlers returns the file.created and file.modified handlers.
func (w *SpecWorker) Handlers() pipeline.DefaultHandlers {
	return pipeline.DefaultHandlers{
		Created:  w.HandleCreated,
		Modified: w.HandleModified,
	}
}

func (w *SpecWorker) HandleCreated(ctx context.Context, echo event.Echo) error {
	return w.handle(ctx, echo, "loaded new file")
}

func (w *SpecWorker) HandleModified(ctx context.Context, echo event.Echo) error {
	return w.handle(ctx, echo, "reloaded modified file")
}

func (w *SpecWorker) handle(ctx context.Context, echo event.Echo, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, ok := eventPath(echo)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPath, echo.Name())
	}
	if reason := skipReason(path); reason != "" {
		w.logger.Debug("ignoring file", map[string]string{
			logging.FieldPath: path,
			"reason":          reason,
		})
		otel.RecordSpanEvent(ctx, "spec.skipped", attribute.String("path", path), attribute.String("reason", reason))
		return nil
	}

	doc, err := w.loader.Load(path)
	entry := w.catalog.record(path, doc, err, w.now(), echo.Hash())
	if err != nil {
		otel.RecordSpanEvent(ctx, "spec.invalid", attribute.String("path", path))
		w.logProblems(path, err)
		return err
	}
	otel.RecordSpanEvent(ctx, "spec.loaded",
		attribute.String("path", path),
		attribute.String("capability", doc.Spec.Capability),
	)
	w.logger.Info(message, map[string]string{
		logging.FieldPath: path,
		"capability":      doc.Spec.Capability,
		logging.FieldHash: echo.ShortHash(),
		"loads":           fmt.Sprint(entry.Loads),
	})
	return nil
}

func (w *SpecWorker) logProblems(path string, err error) {
	var validation *spec.ValidationError
	if !errors.As(err, &validation) {
		return
	}
	for _, problem := range validation.Problems {
		w.logger.Warn("spec validation problem", map[string]string{
			logging.FieldPath: path,
			"problem":         problem,
		})
	}
}

func eventPath(echo event.Echo) (string, bool) {
	for _, key := range []string{"path", event.PayloadSource} {
		if value, ok := echo.PayloadString(key); ok && strings.TrimSpace(value) != "" {
			return value, true
		}
	}
	return "", false
}

// skipReason reports why path is not a spec worth loading, or "" when it is.
func skipReason(path string) string {
	base := filepath.Base(path)
	if strings.HasSuffix(base, "~") || strings.HasPrefix(base, ".#") {
		return "editor backup"
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".tmp", ".swp", ".swx":
		return "temporary file"
	}
	if !spec.HasExtension(path) {
		return "not a yaml file"
	}
	info, err := os.Stat(path)
	if err != nil {
		return "missing"
	}
	if !info.Mode().IsRegular() {
		return "not a regular file"
	}
	return ""
}
