package api

import (
	"errors"
	"net/http"

	"echo/internal/watcher"
)

// Error codes returned in the code field of JSON error bodies.
const (
	codeInvalidLimit      = "invalid_limit"
	codeInvalidLogLevel   = "invalid_log_level"
	codeMissingWatcher    = "missing_watcher_name"
	codeUnknownWatcher    = "unknown_watcher"
	codeUnauthorized      = "unauthorized"
	codeMethodNotAllowed  = "method_not_allowed"
	codeSourceUnavailable = "source_unavailable"
	codeMetricsFailed     = "metrics_write_failed"
	codeInternal          = "internal_error"
)

// unavailable reports a component the server was started without.
func unavailable(source string) *apiError {
	return &apiError{
		Status:  http.StatusServiceUnavailable,
		Message: source + " unavailable",
		Code:    codeSourceUnavailable,
	}
}

func watcherError(err error) *apiError {
	if errors.Is(err, watcher.ErrUnknownWatcher) {
		return &apiError{Status: http.StatusNotFound, Message: err.Error(), Code: codeUnknownWatcher}
	}
	return &apiError{Status: http.StatusInternalServerError, Message: err.Error(), Code: codeInternal}
}

func errorCode(err *apiError) string {
	if err.Code != "" {
		return err.Code
	}
	switch {
	case err.Status == http.StatusUnauthorized:
		return codeUnauthorized
	case err.Status == http.StatusMethodNotAllowed:
		return codeMethodNotAllowed
	case err.Status == http.StatusServiceUnavailable:
		return codeSourceUnavailable
	case err.Status >= http.StatusInternalServerError:
		return codeInternal
	}
	return ""
}
