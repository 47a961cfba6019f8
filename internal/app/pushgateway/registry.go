// Package pushgateway forwards notification.dispatch messages to the
// recipient's open event stream.
package pushgateway

import (
	"context"
	"sync"
)

const defaultBuffer = 16

type lease struct {
	id     string
	ch     chan []byte
	cancel context.CancelFunc
}

// Registry maps a user to their single active stream. Opening a second
// stream for the same user closes the first.
type Registry struct {
	mu     sync.Mutex
	byUser map[string]lease
	buffer int
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]lease), buffer: defaultBuffer}
}

// Replace installs a new stream for userID and cancels the previous one.
func (r *Registry) Replace(userID, streamID string, cancel context.CancelFunc) <-chan []byte {
	ch := make(chan []byte, r.buffer)
	r.mu.Lock()
	prev, had := r.byUser[userID]
	r.byUser[userID] = lease{id: streamID, ch: ch, cancel: cancel}
	r.mu.Unlock()

	if had && prev.cancel != nil {
		prev.cancel()
	}
	return ch
}

// Release removes the stream if it is still the user's current one.
func (r *Registry) Release(userID, streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byUser[userID]
	if !ok || current.id != streamID {
		return
	}
	delete(r.byUser, userID)
}

// Deliver hands payload to the user's stream without blocking. It reports
// false when the user has no stream or the stream is backed up.
func (r *Registry) Deliver(userID string, payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byUser[userID]
	if !ok {
		return false
	}
	select {
	case current.ch <- payload:
		return true
	default:
		return false
	}
}

func (r *Registry) Connected(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byUser[userID]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// CloseAll cancels every stream, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	leases := r.byUser
	r.byUser = make(map[string]lease)
	r.mu.Unlock()

	for _, l := range leases {
		if l.cancel != nil {
			l.cancel()
		}
	}
}
