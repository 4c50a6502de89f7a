package transport

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultMemoryQueueSize = 1024

// MemoryNetwork is an in-process broker. Every Conn dialed from the same
// network sees the same subjects. Delivery is asynchronous and a full
// subscriber queue drops messages, as a slow NATS consumer would.
type MemoryNetwork struct {
	mu        sync.RWMutex
	subs      map[uint64]*memorySubscription
	nextID    uint64
	queueSize int
	dropped   atomic.Int64
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		subs:      make(map[uint64]*memorySubscription),
		queueSize: defaultMemoryQueueSize,
	}
}

// Dial ignores the endpoint.
func (n *MemoryNetwork) Dial(ctx context.Context, _ Endpoint) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryConn{network: n, subs: make(map[uint64]*memorySubscription)}, nil
}

// Dropped reports messages lost to full subscriber queues.
func (n *MemoryNetwork) Dropped() int64 {
	return n.dropped.Load()
}

func (n *MemoryNetwork) publish(subject string, data []byte) {
	n.mu.RLock()
	targets := make([]*memorySubscription, 0, len(n.subs))
	for _, sub := range n.subs {
		if subjectMatches(sub.subject, subject) {
			targets = append(targets, sub)
		}
	}
	n.mu.RUnlock()

	for _, sub := range targets {
		payload := append([]byte(nil), data...)
		if !sub.enqueue(Message{Subject: subject, Data: payload}) {
			n.dropped.Add(1)
		}
	}
}

func (n *MemoryNetwork) add(sub *memorySubscription) {
	n.mu.Lock()
	n.nextID++
	sub.id = n.nextID
	n.subs[sub.id] = sub
	n.mu.Unlock()
}

func (n *MemoryNetwork) remove(id uint64) {
	n.mu.Lock()
	delete(n.subs, id)
	n.mu.Unlock()
}

type memoryConn struct {
	network *MemoryNetwork
	mu      sync.Mutex
	subs    map[uint64]*memorySubscription
	closed  bool
}

func (c *memoryConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	c.network.publish(subject, data)
	return nil
}

func (c *memoryConn) Subscribe(subject string, handler MessageHandler) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	sub := &memorySubscription{
		conn:    c,
		subject: subject,
		handler: handler,
		queue:   make(chan Message, c.network.queueSize),
		done:    make(chan struct{}),
	}
	c.network.add(sub)
	c.subs[sub.id] = sub
	go sub.run()
	return sub, nil
}

func (c *memoryConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[uint64]*memorySubscription)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.shutdown()
	}
	return nil
}

type memorySubscription struct {
	id      uint64
	conn    *memoryConn
	subject string
	handler MessageHandler
	queue   chan Message
	done    chan struct{}
	once    sync.Once
}

func (s *memorySubscription) enqueue(msg Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- msg:
		return true
	default:
		return false
	}
}

func (s *memorySubscription) run() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			s.handler(msg)
		}
	}
}

func (s *memorySubscription) Unsubscribe() error {
	s.conn.mu.Lock()
	if _, ok := s.conn.subs[s.id]; !ok {
		s.conn.mu.Unlock()
		return ErrNotSubscribed
	}
	delete(s.conn.subs, s.id)
	s.conn.mu.Unlock()

	s.shutdown()
	return nil
}

// shutdown stops delivery. It does not wait for an in-flight handler, so a
// handler may unsubscribe itself.
func (s *memorySubscription) shutdown() {
	s.once.Do(func() {
		s.conn.network.remove(s.id)
		close(s.done)
	})
}
