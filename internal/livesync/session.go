package livesync

import (
	"context"
	"sync"
)

// Session holds the single live subscription of one signed-in client.
type Session struct {
	hub *Hub

	mu  sync.Mutex
	sub *Subscription
}

func NewSession(hub *Hub) *Session {
	return &Session{hub: hub}
}

// Bind subscribes the session to userID. Binding the same user again returns
// the open subscription; binding another user closes the previous one first.
func (s *Session) Bind(ctx context.Context, userID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		if s.sub.UserID() == userID && !s.sub.isClosed() {
			return s.sub, nil
		}
		s.sub.Close()
		s.sub = nil
	}
	sub, err := s.hub.Subscribe(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.sub = sub
	return sub, nil
}

// Current returns the open subscription, or nil.
func (s *Session) Current() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil || s.sub.isClosed() {
		return nil
	}
	return s.sub
}

// End releases the subscription. Safe to call repeatedly.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
}
