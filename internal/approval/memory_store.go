package approval

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.RWMutex
	requests map[string]Request
}

// NewMemoryStore builds an in-memory approval store for tests and local runs.
func NewMemoryStore() Store {
	return &memoryStore{requests: make(map[string]Request)}
}

func (s *memoryStore) Insert(_ context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.TransactionID]; exists {
		return ErrDuplicateID
	}
	req.Status = StatusPending
	req.ApprovedAt = nil
	s.requests[req.TransactionID] = req
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (s *memoryStore) Approve(_ context.Context, id string, at time.Time) (Request, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return Request{}, false, ErrNotFound
	}
	if req.Status == StatusApproved {
		return req, true, nil
	}
	if at.After(req.ExpiresAt) {
		return Request{}, false, ErrExpired
	}
	approvedAt := at.UTC()
	req.Status = StatusApproved
	req.ApprovedAt = &approvedAt
	s.requests[id] = req
	return req, false, nil
}

func (s *memoryStore) Expire(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	if req.Status == StatusApproved {
		return ErrAlreadyApproved
	}
	if at.Before(req.ExpiresAt) {
		req.ExpiresAt = at.UTC()
		s.requests[id] = req
	}
	return nil
}

func (s *memoryStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, req := range s.requests {
		if req.ExpiresAt.Before(before) {
			delete(s.requests, id)
			n++
		}
	}
	return n, nil
}
