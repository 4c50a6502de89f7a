package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newMemoryBus(t *testing.T) (*Bus, *MemoryNetwork) {
	t.Helper()
	network := NewMemoryNetwork()
	bus := NewBus(BusOptions{Dialer: network})
	if err := bus.Connect(context.Background(), Endpoint{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })
	return bus, network
}

func TestBusRequiresConnect(t *testing.T) {
	bus := NewBus(BusOptions{Dialer: NewMemoryNetwork()})

	if err := bus.Publish("file.created", []byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected on publish, got %v", err)
	}
	if err := bus.Subscribe("file.created", func(Message) {}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected on subscribe, got %v", err)
	}
	if err := bus.Unsubscribe("file.created"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected on unsubscribe, got %v", err)
	}
	if bus.Connected() {
		t.Fatal("expected bus to be disconnected")
	}
}

func TestBusConnectTwice(t *testing.T) {
	bus, _ := newMemoryBus(t)
	if err := bus.Connect(context.Background(), Endpoint{}); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestBusConnectFailureIsReported(t *testing.T) {
	boom := errors.New("unreachable")
	bus := NewBus(BusOptions{Dialer: DialerFunc(func(context.Context, Endpoint) (Conn, error) {
		return nil, boom
	})})
	if err := bus.Connect(context.Background(), Endpoint{Host: "x", Port: 1}); !errors.Is(err, boom) {
		t.Fatalf("expected dial error, got %v", err)
	}
	if bus.Connected() {
		t.Fatal("expected bus to stay disconnected")
	}

	noDialer := NewBus(BusOptions{})
	if err := noDialer.Connect(context.Background(), Endpoint{}); !errors.Is(err, ErrMissingEndpoint) {
		t.Fatalf("expected ErrMissingEndpoint, got %v", err)
	}
}

func TestBusRejectsDuplicateSubscription(t *testing.T) {
	bus, _ := newMemoryBus(t)

	received := make(chan string, 4)
	first := func(Message) { received <- "first" }
	second := func(Message) { received <- "second" }

	if err := bus.Subscribe("file.created", first); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Subscribe("file.created", second); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}
	if got := bus.Subjects(); len(got) != 1 || got[0].Subject != "file.created" {
		t.Fatalf("expected single subscription, got %+v", got)
	}

	if err := bus.Publish("file.created", []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := waitString(t, received); got != "first" {
		t.Fatalf("expected first handler, got %s", got)
	}
	select {
	case extra := <-received:
		t.Fatalf("unexpected delivery to %s", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusUnsubscribeUnknown(t *testing.T) {
	bus, _ := newMemoryBus(t)
	if err := bus.Subscribe("file.modified", func(Message) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Unsubscribe("never.subscribed"); !errors.Is(err, ErrNotSubscribed) {
		t.Fatalf("expected ErrNotSubscribed, got %v", err)
	}
	if got := bus.Subjects(); len(got) != 1 {
		t.Fatalf("expected registry unchanged, got %+v", got)
	}
}

func TestBusEmptySubject(t *testing.T) {
	bus, _ := newMemoryBus(t)
	for _, subject := range []string{"", "   "} {
		if err := bus.Subscribe(subject, func(Message) {}); !errors.Is(err, ErrEmptySubject) {
			t.Fatalf("subscribe %q: expected ErrEmptySubject, got %v", subject, err)
		}
		if err := bus.Publish(subject, nil); !errors.Is(err, ErrEmptySubject) {
			t.Fatalf("publish %q: expected ErrEmptySubject, got %v", subject, err)
		}
		if err := bus.Unsubscribe(subject); !errors.Is(err, ErrEmptySubject) {
			t.Fatalf("unsubscribe %q: expected ErrEmptySubject, got %v", subject, err)
		}
	}
}

func TestBusSubjectIsTrimmed(t *testing.T) {
	bus, _ := newMemoryBus(t)
	if err := bus.Subscribe(" file.created ", func(Message) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !bus.IsSubscribed("file.created") {
		t.Fatal("expected trimmed subject to be registered")
	}
	if err := bus.Unsubscribe("file.created"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
}

func TestBusResubscribeAfterUnsubscribe(t *testing.T) {
	bus, _ := newMemoryBus(t)
	if err := bus.Subscribe("file.created", func(Message) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Unsubscribe("file.created"); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if err := bus.Unsubscribe("file.created"); !errors.Is(err, ErrNotSubscribed) {
		t.Fatalf("expected ErrNotSubscribed, got %v", err)
	}
	received := make(chan string, 1)
	if err := bus.Subscribe("file.created", func(msg Message) { received <- string(msg.Data) }); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if err := bus.Publish("file.created", []byte("again")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := waitString(t, received); got != "again" {
		t.Fatalf("expected again, got %s", got)
	}
}

func TestBusObserveIsIdempotent(t *testing.T) {
	bus, _ := newMemoryBus(t)
	received := make(chan string, 8)
	handler := func(msg Message) { received <- msg.Subject }

	if err := bus.Observe("file.>", handler); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if err := bus.Observe("file.>", handler); err != nil {
		t.Fatalf("second observe should be a no-op, got %v", err)
	}
	infos := bus.Subjects()
	if len(infos) != 1 || !infos[0].Observed || !infos[0].Wildcard {
		t.Fatalf("unexpected subscriptions %+v", infos)
	}

	if err := bus.Publish("file.created", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := waitString(t, received); got != "file.created" {
		t.Fatalf("expected file.created, got %s", got)
	}
	select {
	case extra := <-received:
		t.Fatalf("expected one delivery, got extra %s", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusUnsubscribeAll(t *testing.T) {
	bus, _ := newMemoryBus(t)
	for _, subject := range []string{"a", "b", "c.>"} {
		if err := bus.Subscribe(subject, func(Message) {}); err != nil {
			t.Fatalf("subscribe %s: %v", subject, err)
		}
	}
	if failed := bus.UnsubscribeAll(); failed != 0 {
		t.Fatalf("expected no failures, got %d", failed)
	}
	if got := bus.Subjects(); len(got) != 0 {
		t.Fatalf("expected empty registry, got %+v", got)
	}
	if failed := bus.UnsubscribeAll(); failed != 0 {
		t.Fatalf("expected no failures on empty registry, got %d", failed)
	}
}

func TestBusUnsubscribeAllContinuesPastFailures(t *testing.T) {
	conn := &stubConn{failUnsubscribe: map[string]bool{"b": true}}
	bus := NewBus(BusOptions{Dialer: DialerFunc(func(context.Context, Endpoint) (Conn, error) {
		return conn, nil
	})})
	if err := bus.Connect(context.Background(), Endpoint{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	for _, subject := range []string{"a", "b", "c"} {
		if err := bus.Subscribe(subject, func(Message) {}); err != nil {
			t.Fatalf("subscribe %s: %v", subject, err)
		}
	}
	if failed := bus.UnsubscribeAll(); failed != 1 {
		t.Fatalf("expected 1 failure, got %d", failed)
	}
	if got := conn.unsubscribed(); got != 2 {
		t.Fatalf("expected 2 successful unsubscribes, got %d", got)
	}
	if got := bus.Subjects(); len(got) != 0 {
		t.Fatalf("expected registry cleared, got %+v", got)
	}
}

func TestBusConcurrentSubscribeSameSubject(t *testing.T) {
	bus, _ := newMemoryBus(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bus.Subscribe("file.created", func(Message) {}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("expected exactly one successful subscribe, got %d", successes)
	}
}

func TestBusSubscribeTransportFailureReleasesReservation(t *testing.T) {
	conn := &stubConn{failSubscribe: true}
	bus := NewBus(BusOptions{Dialer: DialerFunc(func(context.Context, Endpoint) (Conn, error) {
		return conn, nil
	})})
	if err := bus.Connect(context.Background(), Endpoint{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := bus.Subscribe("a", func(Message) {}); err == nil {
		t.Fatal("expected subscribe failure")
	}
	if bus.IsSubscribed("a") {
		t.Fatal("expected failed subscribe to leave no entry")
	}
	conn.failSubscribe = false
	if err := bus.Subscribe("a", func(Message) {}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestBusCloseAllowsReconnect(t *testing.T) {
	network := NewMemoryNetwork()
	bus := NewBus(BusOptions{Dialer: network})
	if err := bus.Connect(context.Background(), Endpoint{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := bus.Subscribe("a", func(Message) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if bus.Connected() || len(bus.Subjects()) != 0 {
		t.Fatal("expected closed bus to be empty and disconnected")
	}
	if err := bus.Connect(context.Background(), Endpoint{}); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	_ = bus.Close()
}

func waitString(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case value := <-ch:
		return value
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return ""
	}
}

type stubConn struct {
	mu              sync.Mutex
	failSubscribe   bool
	failUnsubscribe map[string]bool
	unsubscribes    int
}

func (c *stubConn) Publish(string, []byte) error { return nil }

func (c *stubConn) Subscribe(subject string, _ MessageHandler) (Subscription, error) {
	if c.failSubscribe {
		return nil, errors.New("subscribe refused")
	}
	return &stubSubscription{conn: c, subject: subject}, nil
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) unsubscribed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubscribes
}

type stubSubscription struct {
	conn    *stubConn
	subject string
}

func (s *stubSubscription) Unsubscribe() error {
	if s.conn.failUnsubscribe[s.subject] {
		return errors.New("unsubscribe refused")
	}
	s.conn.mu.Lock()
	s.conn.unsubscribes++
	s.conn.mu.Unlock()
	return nil
}
