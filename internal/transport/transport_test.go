package transport

import (
	"errors"
	"testing"
)

func TestEndpointURL(t *testing.T) {
	cases := []struct {
		endpoint Endpoint
		want     string
	}{
		{Endpoint{Host: "localhost", Port: 4222}, "nats://localhost:4222"},
		{Endpoint{Host: "nats://broker", Port: 4223}, "nats://broker:4223"},
		{Endpoint{Host: "nats://broker:5000", Port: 4222}, "nats://broker:5000"},
		{Endpoint{Host: "::1", Port: 4222}, "nats://[::1]:4222"},
	}
	for _, tc := range cases {
		got, err := tc.endpoint.URL()
		if err != nil {
			t.Fatalf("%+v: unexpected error %v", tc.endpoint, err)
		}
		if got != tc.want {
			t.Fatalf("%+v: expected %s, got %s", tc.endpoint, tc.want, got)
		}
	}
}

func TestEndpointMissing(t *testing.T) {
	for _, endpoint := range []Endpoint{{}, {Host: "localhost"}, {Port: 4222}, {Host: "h", Port: 70000}} {
		if _, err := endpoint.URL(); !errors.Is(err, ErrMissingEndpoint) {
			t.Fatalf("%+v: expected ErrMissingEndpoint, got %v", endpoint, err)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, err := ParseEndpoint(" localhost ", "4222")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if endpoint.Host != "localhost" || endpoint.Port != 4222 {
		t.Fatalf("unexpected endpoint %+v", endpoint)
	}
	if _, err := ParseEndpoint("localhost", "abc"); !errors.Is(err, ErrMissingEndpoint) {
		t.Fatalf("expected ErrMissingEndpoint for bad port, got %v", err)
	}
	if _, err := ParseEndpoint("", ""); !errors.Is(err, ErrMissingEndpoint) {
		t.Fatalf("expected ErrMissingEndpoint for empty, got %v", err)
	}
}

func TestSubjectMatches(t *testing.T) {
	cases := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"file.created", "file.created", true},
		{"file.created", "file.modified", false},
		{"file.*", "file.created", true},
		{"file.*", "file.created.extra", false},
		{"*.created", "file.created", true},
		{"file.>", "file.created", true},
		{"file.>", "file.created.extra", true},
		{"file.>", "file", false},
		{">", "anything.at.all", true},
		{"a.>.b", "a.x.b", false},
	}
	for _, tc := range cases {
		if got := subjectMatches(tc.pattern, tc.subject); got != tc.want {
			t.Fatalf("subjectMatches(%q, %q): expected %v, got %v", tc.pattern, tc.subject, tc.want, got)
		}
	}
}
