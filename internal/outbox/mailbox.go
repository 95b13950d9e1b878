package outbox

import (
	"encoding/json"
	"sync"

	"github.com/roach88/cadstore/internal/model"
)

// Envelope is one delivery: an update message from an open file.
type Envelope struct {
	File    string
	Message model.UpdateMessage
}

// MarshalJSON encodes the envelope as {"file": ..., "message": {...}}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	msg, err := model.MarshalMessage(e.Message)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		File    string          `json:"file"`
		Message json.RawMessage `json:"message"`
	}{File: e.File, Message: msg})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		File    string          `json:"file"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	msg, err := model.UnmarshalMessage(raw.Message)
	if err != nil {
		return err
	}
	e.File, e.Message = raw.File, msg
	return nil
}

// Mailbox is a bounded FIFO of envelopes for one user.
//
// The signal channel (buffer 1) coalesces wake-ups so readers can select on
// Wait alongside a context.
type Mailbox struct {
	mu       sync.Mutex
	queue    []Envelope
	capacity int
	dropped  uint64
	closed   bool
	signal   chan struct{}
}

func newMailbox(capacity int) *Mailbox {
	return &Mailbox{
		queue:    make([]Envelope, 0, min(capacity, 64)),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// Push appends env, dropping the oldest envelope when full. It reports
// whether an envelope was dropped. Pushing to a closed mailbox is a no-op.
func (m *Mailbox) Push(env Envelope) (dropped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if len(m.queue) >= m.capacity {
		m.queue[0] = Envelope{}
		m.queue = m.queue[1:]
		m.dropped++
		dropped = true
	}
	m.queue = append(m.queue, env)
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return dropped
}

// TryPop removes the front envelope without blocking.
func (m *Mailbox) TryPop() (Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Envelope{}, false
	}
	env := m.queue[0]
	m.queue[0] = Envelope{}
	if len(m.queue) == 1 {
		m.queue = m.queue[:0]
	} else {
		m.queue = m.queue[1:]
	}
	return env, true
}

// Drain removes and returns every queued envelope.
func (m *Mailbox) Drain() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Envelope, len(m.queue))
	copy(out, m.queue)
	clear(m.queue)
	m.queue = m.queue[:0]
	return out
}

// Wait returns a channel signalled when envelopes may be available. It is
// closed when the mailbox closes.
func (m *Mailbox) Wait() <-chan struct{} {
	return m.signal
}

// Len returns the number of queued envelopes.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Dropped returns how many envelopes overflow has discarded.
func (m *Mailbox) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close stops accepting envelopes and wakes waiters.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.signal)
}
