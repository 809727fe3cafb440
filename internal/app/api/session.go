package api

import "sync"

// Session holds the active owner identity the external auth collaborator has
// reported. It is the single source the store and mirror gate consult.
type Session struct {
	mu      sync.RWMutex
	ownerID string
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Set(ownerID string) {
	s.mu.Lock()
	s.ownerID = ownerID
	s.mu.Unlock()
}

func (s *Session) Clear() {
	s.Set("")
}

// OwnerID returns the active owner id, or "" when signed out.
func (s *Session) OwnerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownerID
}
