package outbox

import (
	"slices"
	"sync"

	"github.com/roach88/cadstore/internal/model"
)

// DefaultCapacity is the per-user mailbox size used when New is given n <= 0.
const DefaultCapacity = 1024

// Observer receives delivery counts.
type Observer interface {
	Delivered(n int)
	Dropped(n int)
}

type nopObserver struct{}

func (nopObserver) Delivered(int) {}
func (nopObserver) Dropped(int)   {}

// Outbox holds one mailbox per connected user.
type Outbox struct {
	mu       sync.RWMutex
	boxes    map[model.UserID]*Mailbox
	capacity int
	observer Observer
}

// New returns an outbox whose mailboxes hold capacity envelopes each.
func New(capacity int) *Outbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Outbox{
		boxes:    make(map[model.UserID]*Mailbox),
		capacity: capacity,
		observer: nopObserver{},
	}
}

// SetObserver reports deliveries to obs.
func (o *Outbox) SetObserver(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if obs == nil {
		obs = nopObserver{}
	}
	o.observer = obs
}

// Register returns user's mailbox, creating it if needed.
func (o *Outbox) Register(user model.UserID) *Mailbox {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m, ok := o.boxes[user]; ok {
		return m
	}
	m := newMailbox(o.capacity)
	o.boxes[user] = m
	return m
}

// Claim creates user's mailbox. It reports false, leaving the existing
// mailbox untouched, if user is already registered.
func (o *Outbox) Claim(user model.UserID) (*Mailbox, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.boxes[user]; ok {
		return nil, false
	}
	m := newMailbox(o.capacity)
	o.boxes[user] = m
	return m, true
}

// Unregister closes and forgets user's mailbox.
func (o *Outbox) Unregister(user model.UserID) {
	o.mu.Lock()
	m, ok := o.boxes[user]
	delete(o.boxes, user)
	o.mu.Unlock()
	if ok {
		m.Close()
	}
}

// Mailbox returns user's mailbox.
func (o *Outbox) Mailbox(user model.UserID) (*Mailbox, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	m, ok := o.boxes[user]
	if !ok {
		return nil, model.UserNotFound(user)
	}
	return m, nil
}

// Users lists registered users in ascending order.
func (o *Outbox) Users() []model.UserID {
	o.mu.RLock()
	out := make([]model.UserID, 0, len(o.boxes))
	for u := range o.boxes {
		out = append(out, u)
	}
	o.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.UserID) int { return slices.Compare(a[:], b[:]) })
	return out
}

// Deliver pushes env to user's mailbox.
func (o *Outbox) Deliver(user model.UserID, env Envelope) error {
	o.mu.RLock()
	m, ok := o.boxes[user]
	obs := o.observer
	o.mu.RUnlock()
	if !ok {
		return model.UserNotFound(user)
	}
	if m.Push(env) {
		obs.Dropped(1)
	}
	obs.Delivered(1)
	return nil
}

// DeliverAll pushes env to every registered mailbox.
func (o *Outbox) DeliverAll(env Envelope) {
	for _, u := range o.Users() {
		// A user unregistering concurrently is not an error here.
		_ = o.Deliver(u, env)
	}
}
