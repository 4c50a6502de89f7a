package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"echo/internal/event"
)

// runHash prints the canonical string and SHA-256 identity of an event
// built from the flags.
func runHash(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("echo hash", flag.ContinueOnError)
	fs.SetOutput(errOut)
	name := fs.String("name", "", "Event name")
	source := fs.String("source", "", "Event source")
	payload := fs.String("payload", "", "Payload as a JSON object")
	timestamp := fs.String("timestamp", "", "RFC3339 timestamp (default: now)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	options := []event.Option{}
	if strings.TrimSpace(*payload) != "" {
		decoded, err := decodePayload(*payload)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --payload: %v\n", err)
			return 1
		}
		options = append(options, event.WithPayload(decoded))
	}
	if strings.TrimSpace(*timestamp) != "" {
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(*timestamp))
		if err != nil {
			fmt.Fprintf(errOut, "invalid --timestamp: %v\n", err)
			return 1
		}
		options = append(options, event.WithTimestamp(parsed))
	}

	echo, err := event.New(*name, *source, options...)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, echo.CanonicalString())
	fmt.Fprintln(out, echo.Hash())
	return 0
}

func decodePayload(raw string) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()
	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("expected a JSON object")
	}
	return payload, nil
}
