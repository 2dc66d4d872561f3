package session

import (
	"sort"
	"sync"
	"time"
)

// Subscription is an outstanding market data request.
type Subscription struct {
	ReqID  string
	Symbol string
	Kind   SubscriptionKind
	SentAt time.Time
}

// Subscriptions maps request ids to the symbols they were sent for.
type Subscriptions struct {
	mu   sync.RWMutex
	subs map[string]Subscription
}

// NewSubscriptions creates an empty map.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{subs: make(map[string]Subscription)}
}

// Add records a request.
func (s *Subscriptions) Add(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ReqID] = sub
}

// Resolve looks up a request id.
func (s *Subscriptions) Resolve(reqID string) (Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[reqID]
	return sub, ok
}

// Remove deletes and returns a request.
func (s *Subscriptions) Remove(reqID string) (Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[reqID]
	if ok {
		delete(s.subs, reqID)
	}
	return sub, ok
}

// Len returns the number of outstanding requests.
func (s *Subscriptions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// List returns outstanding requests ordered by send time.
func (s *Subscriptions) List() []Subscription {
	s.mu.RLock()
	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].ReqID < out[j].ReqID
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out
}

// Clear drops every request.
func (s *Subscriptions) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = make(map[string]Subscription)
}
