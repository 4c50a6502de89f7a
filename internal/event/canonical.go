package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

const canonicalTimeLayout = "2006-01-02T15:04:05.000"

// CanonicalTimestamp renders ts in UTC truncated to milliseconds with an
// explicit +00:00 offset, e.g. 2024-01-01T00:00:00.000+00:00.
func CanonicalTimestamp(ts time.Time) string {
	return ts.UTC().Format(canonicalTimeLayout) + "+00:00"
}

// CanonicalPayload encodes payload as compact JSON with sorted keys, HTML
// characters left as-is and every rune outside printable ASCII escaped as
// \uXXXX. Floats keep a fractional part (1.0, not 1) and switch to exponent
// form below 1e-4 and from 1e16 up. A nil payload encodes to the empty string.
func CanonicalPayload(payload map[string]any) (string, error) {
	if payload == nil {
		return "", nil
	}

	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(canonicalValue(payload)); err != nil {
		return "", err
	}
	return escapeNonASCII(strings.TrimSuffix(buffer.String(), "\n")), nil
}

func escapeNonASCII(value string) string {
	ascii := true
	for i := 0; i < len(value); i++ {
		if value[i] >= 0x7f {
			ascii = false
			break
		}
	}
	if ascii {
		return value
	}

	var builder strings.Builder
	builder.Grow(len(value) + 16)
	for _, r := range value {
		switch {
		case r < 0x7f:
			builder.WriteRune(r)
		case r > 0xFFFF:
			high, low := utf16.EncodeRune(r)
			fmt.Fprintf(&builder, "\\u%04x\\u%04x", high, low)
		default:
			fmt.Fprintf(&builder, "\\u%04x", r)
		}
	}
	return builder.String()
}

// canonicalValue copies value with every float64 replaced by its
// fixed-spelling json.Number. Non-finite floats are left for the encoder to
// reject.
func canonicalValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = canonicalValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = canonicalValue(item)
		}
		return out
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return typed
		}
		return json.Number(formatFloat(typed))
	default:
		return value
	}
}

func formatFloat(value float64) string {
	exponential := strconv.FormatFloat(value, 'e', -1, 64)
	exp, err := strconv.Atoi(exponential[strings.IndexByte(exponential, 'e')+1:])
	if err != nil || exp < -4 || exp >= 16 {
		return exponential
	}
	fixed := strconv.FormatFloat(value, 'f', -1, 64)
	if !strings.Contains(fixed, ".") {
		fixed += ".0"
	}
	return fixed
}
