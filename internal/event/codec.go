package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrDecode = errors.New("decode echo")

const wireTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// naive timestamps are read as UTC
var naiveTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

type wireEcho struct {
	Name      string         `json:"name"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash,omitempty"`
}

// MarshalJSON writes the transport form, including the derived hash.
func (e Echo) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEcho{
		Name:      e.name,
		Source:    e.source,
		Payload:   e.payload,
		Timestamp: e.timestamp.UTC().Format(wireTimeLayout),
		Hash:      e.Hash(),
	})
}

// Decode parses a transport payload. The returned claimed hash is whatever
// the sender attached; the event's own Hash is always recomputed.
func Decode(data []byte) (Echo, string, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var wire wireEcho
	if err := decoder.Decode(&wire); err != nil {
		return Echo{}, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	options := []Option{WithPayload(wire.Payload)}
	if strings.TrimSpace(wire.Timestamp) != "" {
		timestamp, err := parseTimestamp(wire.Timestamp)
		if err != nil {
			return Echo{}, "", fmt.Errorf("%w: %v", ErrDecode, err)
		}
		options = append(options, WithTimestamp(timestamp))
	}

	echo, err := New(wire.Name, wire.Source, options...)
	if err != nil {
		return Echo{}, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return echo, wire.Hash, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed.UTC(), nil
	}
	for _, layout := range naiveTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", raw)
}
