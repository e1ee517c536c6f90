package canbus

import (
	"context"
	"sync"
)

// FrameFilter decides whether a frame should be delivered to a subscriber.
type FrameFilter func(Frame) bool

// Mux multiplexes frames from a Bus to any number of subscribers via filters.
//
// It owns receiving on the provided Bus and runs a single background
// goroutine that fans frames out to subscribers, so higher layers (the ToF
// batch subscriber, a recorder, a debug dump) never compete for Receive.
//
// Send is not proxied; callers keep using the original Bus to Send.
type Mux struct {
	bus    Bus
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	next    uint64
	dropped uint64
	err     error
}

type subscriber struct {
	filter FrameFilter
	ch     chan Frame
}

// NewMux creates and starts a multiplexer bound to the given Bus.
func NewMux(bus Bus) *Mux {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mux{
		bus:    bus,
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[uint64]*subscriber),
	}
	go m.run(ctx)
	return m
}

// Close stops the background reader and closes all subscriber channels.
// The underlying Bus is left open.
func (m *Mux) Close() error {
	m.cancel()
	<-m.done
	return nil
}

// Err returns the receive error that stopped the mux, if any.
func (m *Mux) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Dropped reports how many frames were discarded because a subscriber's
// channel was full.
func (m *Mux) Dropped() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropped
}

// Subscribe registers a new subscriber with the provided filter and channel
// buffer. A nil filter receives every frame. The cancel function closes the
// channel; it is safe to call more than once.
func (m *Mux) Subscribe(filter FrameFilter, buffer int) (<-chan Frame, func()) {
	if buffer < 0 {
		buffer = 0
	}
	s := &subscriber{filter: filter, ch: make(chan Frame, buffer)}
	m.mu.Lock()
	select {
	case <-m.done:
		m.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	default:
	}
	id := m.next
	m.next++
	m.subs[id] = s
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if cur, ok := m.subs[id]; ok && cur == s {
			close(cur.ch)
			delete(m.subs, id)
		}
		m.mu.Unlock()
	}
	return s.ch, cancel
}

func (m *Mux) run(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		for id, s := range m.subs {
			close(s.ch)
			delete(m.subs, id)
		}
		close(m.done)
		m.mu.Unlock()
	}()
	for {
		f, err := m.bus.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.mu.Lock()
				m.err = err
				m.mu.Unlock()
			}
			return
		}
		m.mu.RLock()
		var dropped uint64
		for _, s := range m.subs {
			if s.filter != nil && !s.filter(f) {
				continue
			}
			select {
			case s.ch <- f:
			default:
				dropped++
			}
		}
		m.mu.RUnlock()
		if dropped > 0 {
			m.mu.Lock()
			m.dropped += dropped
			m.mu.Unlock()
		}
	}
}
