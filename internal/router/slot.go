package router

import "sync"

// Slot enforces a single-client, mutually-exclusive token: at most one
// client may be connected at a time. An explicit acquire/release pair
// the router calls around a connection's lifetime, generalized from a
// simple peer-connection pointer swap.
type Slot struct {
	mu       sync.Mutex
	occupant string // deviceId of the currently connected client, "" if free
}

func NewSlot() *Slot { return &Slot{} }

// TryAcquire claims the slot for deviceID. Returns false if another
// client already holds it; re-acquiring with the same deviceID (a
// client reconnecting before its prior connection's teardown observed
// the release) is also rejected — the caller must wait for the release.
func (s *Slot) TryAcquire(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occupant != "" {
		return false
	}
	s.occupant = deviceID
	return true
}

// Release frees the slot iff deviceID is the current occupant.
func (s *Slot) Release(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occupant == deviceID {
		s.occupant = ""
	}
}

func (s *Slot) Occupant() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupant
}
