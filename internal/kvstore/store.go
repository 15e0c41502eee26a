// Package kvstore is a small in-process key-value store with per-key change
// subscriptions. It is handed to consumers by dependency injection so tests
// can instantiate independent stores instead of sharing ambient state.
package kvstore

import "sync"

type subscriber struct {
	id int
	fn func(value string)
}

// Store maps string keys to string values and notifies key subscribers on
// every Set.
type Store struct {
	mu     sync.Mutex
	values map[string]string
	subs   map[string][]subscriber
	nextID int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		values: make(map[string]string),
		subs:   make(map[string][]subscriber),
	}
}

// Get returns the value for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key and notifies subscribers of that key.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	s.values[key] = value
	subs := append([]subscriber(nil), s.subs[key]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(value)
	}
}

// Subscribe registers fn for changes to key and returns an unsubscribe
// function. fn is not called for the current value, only for later Sets.
func (s *Store) Subscribe(key string, fn func(value string)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[key] = append(s.subs[key], subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[key]
		for i, sub := range subs {
			if sub.id == id {
				s.subs[key] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}
