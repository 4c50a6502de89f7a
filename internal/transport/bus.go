package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"echo/internal/logging"
)

type BusOptions struct {
	Logger *logging.Logger
	Dialer Dialer
}

// Bus tracks at most one subscription per subject over a single Conn.
// Registry mutations are serialized; reads may run concurrently.
type Bus struct {
	mu     sync.RWMutex
	conn   Conn
	subs   map[string]*busEntry
	dialer Dialer
	logger *logging.Logger
}

type busEntry struct {
	subject  string
	sub      Subscription
	observed bool
}

// SubscriptionInfo describes one registry entry.
type SubscriptionInfo struct {
	Subject  string `json:"subject"`
	Observed bool   `json:"observed"`
	Wildcard bool   `json:"wildcard"`
}

func NewBus(opts BusOptions) *Bus {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Bus{
		subs:   make(map[string]*busEntry),
		dialer: opts.Dialer,
		logger: logger.Named("transport"),
	}
}

// Connect dials the transport. It must succeed before any other operation.
func (b *Bus) Connect(ctx context.Context, endpoint Endpoint) error {
	if ctx == nil {
		ctx = context.Background()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return ErrAlreadyConnected
	}
	if b.dialer == nil {
		return fmt.Errorf("%w: no dialer", ErrMissingEndpoint)
	}
	conn, err := b.dialer.Dial(ctx, endpoint)
	if err != nil {
		b.logger.Error("transport connect failed", map[string]string{
			"endpoint":         endpoint.String(),
			logging.FieldError: err.Error(),
		})
		return err
	}
	b.conn = conn
	return nil
}

func (b *Bus) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn != nil
}

// Publish sends data without waiting for any acknowledgment.
func (b *Bus) Publish(subject string, data []byte) error {
	subject, err := normalizeSubject(subject)
	if err != nil {
		return err
	}
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers handler for subject. A subject can hold only one
// subscription; failures are logged as well as returned.
func (b *Bus) Subscribe(subject string, handler MessageHandler) error {
	err := b.subscribe(subject, handler, false)
	if err != nil {
		b.logger.Warn("subscribe failed", map[string]string{
			logging.FieldSubject: subject,
			logging.FieldError:   err.Error(),
		})
	}
	return err
}

// Observe is Subscribe for patterns that may already be observed: a repeat
// call is a no-op.
func (b *Bus) Observe(pattern string, handler MessageHandler) error {
	err := b.subscribe(pattern, handler, true)
	if err != nil {
		b.logger.Warn("observe failed", map[string]string{
			logging.FieldSubject: pattern,
			logging.FieldError:   err.Error(),
		})
	}
	return err
}

func (b *Bus) subscribe(subject string, handler MessageHandler, observe bool) error {
	subject, err := normalizeSubject(subject)
	if err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("subscribe %s: handler is required", subject)
	}

	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return ErrNotConnected
	}
	if _, exists := b.subs[subject]; exists {
		b.mu.Unlock()
		if observe {
			b.logger.Info("already observing", map[string]string{logging.FieldSubject: subject})
			return nil
		}
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, subject)
	}
	// Reserve the subject so concurrent callers see it as taken while the
	// transport call runs without the lock.
	b.subs[subject] = nil
	b.mu.Unlock()

	sub, err := conn.Subscribe(subject, handler)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		delete(b.subs, subject)
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	b.subs[subject] = &busEntry{subject: subject, sub: sub, observed: observe}
	verb := "subscribed"
	if observe {
		verb = "observing"
	}
	b.logger.Info(verb, map[string]string{logging.FieldSubject: subject})
	return nil
}

// Unsubscribe releases the subscription for subject.
func (b *Bus) Unsubscribe(subject string) error {
	subject, err := normalizeSubject(subject)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.conn == nil {
		b.mu.Unlock()
		return ErrNotConnected
	}
	entry, ok := b.subs[subject]
	if !ok || entry == nil {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotSubscribed, subject)
	}
	delete(b.subs, subject)
	b.mu.Unlock()

	if err := entry.sub.Unsubscribe(); err != nil {
		b.logger.Warn("unsubscribe failed", map[string]string{
			logging.FieldSubject: subject,
			logging.FieldError:   err.Error(),
		})
		return fmt.Errorf("unsubscribe %s: %w", subject, err)
	}
	b.logger.Info("unsubscribed", map[string]string{logging.FieldSubject: subject})
	return nil
}

// UnsubscribeAll tears down every subscription. Individual failures are
// logged and teardown continues; it returns how many failed.
func (b *Bus) UnsubscribeAll() int {
	b.mu.Lock()
	entries := make([]*busEntry, 0, len(b.subs))
	for subject, entry := range b.subs {
		if entry == nil {
			continue
		}
		entries = append(entries, entry)
		delete(b.subs, subject)
	}
	b.mu.Unlock()

	failed := 0
	for _, entry := range entries {
		if err := entry.sub.Unsubscribe(); err != nil {
			failed++
			b.logger.Warn("unsubscribe failed", map[string]string{
				logging.FieldSubject: entry.subject,
				logging.FieldError:   err.Error(),
			})
		}
	}
	b.logger.Info("unsubscribed all", map[string]string{
		"count":  fmt.Sprint(len(entries)),
		"failed": fmt.Sprint(failed),
	})
	return failed
}

func (b *Bus) IsSubscribed(subject string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.subs[subject]
	return ok && entry != nil
}

// Subjects lists active subscriptions, sorted.
func (b *Bus) Subjects() []SubscriptionInfo {
	b.mu.RLock()
	infos := make([]SubscriptionInfo, 0, len(b.subs))
	for subject, entry := range b.subs {
		if entry == nil {
			continue
		}
		infos = append(infos, SubscriptionInfo{
			Subject:  subject,
			Observed: entry.observed,
			Wildcard: isWildcard(subject),
		})
	}
	b.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Subject < infos[j].Subject })
	return infos
}

// Close unsubscribes everything and closes the connection. The Bus may be
// connected again afterwards.
func (b *Bus) Close() error {
	b.UnsubscribeAll()

	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
