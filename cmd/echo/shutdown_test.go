package main

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"echo/internal/logging"
)

func TestShutdownCoordinatorRunsInOrder(t *testing.T) {
	coordinator := newShutdownCoordinator(nil)
	order := []string{}

	coordinator.Add("watchers", func(context.Context) error {
		order = append(order, "watchers")
		return nil
	})
	coordinator.Add("subscriptions", func(context.Context) error {
		order = append(order, "subscriptions")
		return errors.New("fail")
	})
	coordinator.Add("transport", func(context.Context) error {
		order = append(order, "transport")
		return nil
	})

	if err := coordinator.Run(context.Background()); err == nil {
		t.Fatalf("expected shutdown error")
	}
	expected := []string{"watchers", "subscriptions", "transport"}
	if !reflect.DeepEqual(order, expected) {
		t.Fatalf("expected order %v, got %v", expected, order)
	}
}

func TestShutdownCoordinatorRunsOnce(t *testing.T) {
	logBuffer := logging.NewLogBuffer(10)
	coordinator := newShutdownCoordinator(logging.NewLoggerWithOutput(logBuffer, logging.LevelInfo, nil))
	calls := 0
	coordinator.Add("events", func(context.Context) error {
		calls++
		return errors.New("closed twice")
	})
	coordinator.Add("nil", nil)

	first := coordinator.Run(context.Background())
	second := coordinator.Run(context.Background())
	if first == nil || second != nil {
		t.Fatalf("expected only the first run to report, got %v and %v", first, second)
	}
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
	entries := logBuffer.List()
	if len(entries) != 1 || !strings.Contains(entries[0].Message, "shutdown phase failed") {
		t.Fatalf("expected one failure entry, got %+v", entries)
	}
}

func TestWatchShutdownSignalsCancelsOnce(t *testing.T) {
	logBuffer := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(logBuffer, logging.LevelInfo, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 3)
	stop := watchShutdownSignals(logger, cancel, signalCh)
	defer stop()

	signalCh <- os.Interrupt
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected cancel on first signal")
	}
	signalCh <- os.Interrupt
	signalCh <- os.Interrupt

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(logBuffer.List()) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	entries := logBuffer.List()
	if len(entries) != 2 {
		t.Fatalf("expected received and one repeat entry, got %d", len(entries))
	}
	if entries[0].Context["signal"] != os.Interrupt.String() {
		t.Fatalf("expected signal field, got %v", entries[0].Context)
	}
}

func TestWatchShutdownSignalsNilChannel(t *testing.T) {
	stop := watchShutdownSignals(nil, nil, nil)
	stop()
}
