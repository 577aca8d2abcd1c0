package worker

import "sync"

// mailbox is an unbounded FIFO of requests with a single consumer.
type mailbox struct {
	mu     sync.Mutex
	queue  []Request
	ready  chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

// put appends r. It reports false once the mailbox is closed.
func (m *mailbox) put(r Request) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.queue = append(m.queue, r)
	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// take blocks for the next request. It reports false when the mailbox is closed and drained.
func (m *mailbox) take() (Request, bool) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			r := m.queue[0]
			m.queue[0] = nil
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return r, true
		}
		if m.closed {
			m.mu.Unlock()
			return nil, false
		}
		m.mu.Unlock()
		<-m.ready
	}
}

// close stops accepting requests and returns the ones never taken.
func (m *mailbox) close() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	rest := m.queue
	m.queue = nil
	close(m.ready)
	return rest
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
