package testutil

import (
	"slices"
	"sync"

	"github.com/roach88/cadstore/internal/model"
)

// Sent is one recorded message. User is nil for broadcasts.
type Sent struct {
	User    model.UserID
	Message model.UpdateMessage
}

// Recorder is a broadcaster that keeps every message in order.
//
// Send to a user not registered with Join fails with USER_NOT_FOUND, unless
// no user has joined at all.
type Recorder struct {
	mu    sync.Mutex
	sent  []Sent
	users map[model.UserID]bool
}

// NewRecorder creates a recorder with users joined.
func NewRecorder(users ...model.UserID) *Recorder {
	r := &Recorder{users: make(map[model.UserID]bool)}
	for _, u := range users {
		r.users[u] = true
	}
	return r
}

// Send records msg for user.
func (r *Recorder) Send(user model.UserID, msg model.UpdateMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.users) > 0 && !r.users[user] {
		return model.UserNotFound(user)
	}
	r.sent = append(r.sent, Sent{User: user, Message: msg})
	return nil
}

// SendAll records msg as a broadcast.
func (r *Recorder) SendAll(msg model.UpdateMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{Message: msg})
}

// All returns a copy of every recorded message.
func (r *Recorder) All() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sent)
}

// Messages returns the recorded messages without recipients.
func (r *Recorder) Messages() []model.UpdateMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.UpdateMessage, len(r.sent))
	for i, s := range r.sent {
		out[i] = s.Message
	}
	return out
}

// Deleted returns the ids of every recorded Delete message, in order.
func (r *Recorder) Deleted() []model.ObjectID {
	var out []model.ObjectID
	for _, m := range r.Messages() {
		if d, ok := m.(model.DeleteMsg); ok {
			out = append(out, d.ID)
		}
	}
	return out
}

// Rendered counts the Mesh and Other messages recorded for id. Other
// messages count when their data map carries id under "id".
func (r *Recorder) Rendered(id model.ObjectID) int {
	n := 0
	for _, m := range r.Messages() {
		switch v := m.(type) {
		case model.MeshMsg:
			if v.ID == id {
				n++
			}
		case model.OtherMsg:
			if data, ok := v.Data.(map[string]any); ok && data["id"] == id {
				n++
			}
		}
	}
	return n
}

// Reset drops every recorded message.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
