package repository

import (
	"sync"
)

type observer[T any] struct {
	id int
	fn func(T)
}

// Subject broadcasts the latest value to its observers. A new observer
// receives the current value immediately.
type Subject[T any] struct {
	mu        sync.Mutex
	value     T
	observers []observer[T]
	nextID    int
}

func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{value: initial}
}

func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Publish stores value and calls every observer synchronously, in
// subscription order. Observers must not call back into the subject.
func (s *Subject[T]) Publish(value T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = value
	for _, o := range s.observers {
		o.fn(value)
	}
}

// Subscribe returns a function that removes the observer.
func (s *Subject[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, observer[T]{id: id, fn: fn})
	fn(s.value)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}
