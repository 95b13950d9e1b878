package outbox

import (
	"slices"
	"sync"

	"github.com/roach88/cadstore/internal/model"
)

// Group delivers the messages of one open file to the users who have it
// open. It satisfies the engine's broadcaster contract.
type Group struct {
	outbox *Outbox

	mu    sync.RWMutex
	file  string
	users map[model.UserID]struct{}
}

// NewGroup returns an empty group for file.
func NewGroup(o *Outbox, file string) *Group {
	return &Group{outbox: o, file: file, users: make(map[model.UserID]struct{})}
}

// File returns the path stamped on deliveries.
func (g *Group) File() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.file
}

// Rename changes the path stamped on deliveries.
func (g *Group) Rename(file string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.file = file
}

// Join adds user. The user must be registered with the outbox.
func (g *Group) Join(user model.UserID) error {
	if _, err := g.outbox.Mailbox(user); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users[user] = struct{}{}
	return nil
}

// Leave removes user and returns how many users remain.
func (g *Group) Leave(user model.UserID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.users, user)
	return len(g.users)
}

// Contains reports whether user is in the group.
func (g *Group) Contains(user model.UserID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.users[user]
	return ok
}

// Users lists members in ascending order.
func (g *Group) Users() []model.UserID {
	g.mu.RLock()
	out := make([]model.UserID, 0, len(g.users))
	for u := range g.users {
		out = append(out, u)
	}
	g.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.UserID) int { return slices.Compare(a[:], b[:]) })
	return out
}

// Send delivers msg to one member.
func (g *Group) Send(user model.UserID, msg model.UpdateMessage) error {
	if !g.Contains(user) {
		return model.UserNotFound(user)
	}
	return g.outbox.Deliver(user, Envelope{File: g.File(), Message: msg})
}

// SendAll delivers msg to every member.
func (g *Group) SendAll(msg model.UpdateMessage) {
	env := Envelope{File: g.File(), Message: msg}
	for _, u := range g.Users() {
		_ = g.outbox.Deliver(u, env)
	}
}
