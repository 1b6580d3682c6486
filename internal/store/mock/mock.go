// Package mock provides an in-memory request store for testing.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/daro-kh/leavegate/internal/store"
)

// MockRequestStore is an in-memory implementation of store.RequestStore.
type MockRequestStore struct {
	mu    sync.RWMutex
	leave map[string]*store.LeaveRequest
	out   map[string]*store.OutRequest

	// Error injection
	CreateLeaveError  error
	CreateOutError    error
	GetOutError       error
	MarkReturnedError error
	ListLeaveError    error
	ListOutError      error
}

var _ store.RequestStore = (*MockRequestStore)(nil)

// NewMockRequestStore creates an empty mock store.
func NewMockRequestStore() *MockRequestStore {
	return &MockRequestStore{
		leave: make(map[string]*store.LeaveRequest),
		out:   make(map[string]*store.OutRequest),
	}
}

// AddOutRequest seeds the store with an out request.
func (m *MockRequestStore) AddOutRequest(req store.OutRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out[req.ID] = &req
}

// CreateLeaveRequest stores a leave request.
func (m *MockRequestStore) CreateLeaveRequest(ctx context.Context, req *store.LeaveRequest) error {
	if m.CreateLeaveError != nil {
		return m.CreateLeaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.leave[req.ID] = &cp
	return nil
}

// CreateOutRequest stores an out request.
func (m *MockRequestStore) CreateOutRequest(ctx context.Context, req *store.OutRequest) error {
	if m.CreateOutError != nil {
		return m.CreateOutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.out[req.ID] = &cp
	return nil
}

// GetOutRequest returns a copy of an out request.
func (m *MockRequestStore) GetOutRequest(ctx context.Context, id string) (*store.OutRequest, error) {
	if m.GetOutError != nil {
		return nil, m.GetOutError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.out[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// MarkReturned updates the return fields of an out request.
func (m *MockRequestStore) MarkReturned(ctx context.Context, id, returnStatus, returnedAt string) error {
	if m.MarkReturnedError != nil {
		return m.MarkReturnedError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.out[id]
	if !ok {
		return store.ErrNotFound
	}
	req.ReturnStatus = returnStatus
	req.ReturnedAt = returnedAt
	return nil
}

// ListLeaveRequestsByUser returns a user's leave requests, newest first.
func (m *MockRequestStore) ListLeaveRequestsByUser(ctx context.Context, userID string) ([]store.LeaveRequest, error) {
	if m.ListLeaveError != nil {
		return nil, m.ListLeaveError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []store.LeaveRequest
	for _, req := range m.leave {
		if req.UserID == userID {
			list = append(list, *req)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].RequestedAt.After(list[j].RequestedAt)
	})
	return list, nil
}

// ListOutRequestsByUser returns a user's out requests, newest first.
func (m *MockRequestStore) ListOutRequestsByUser(ctx context.Context, userID string) ([]store.OutRequest, error) {
	if m.ListOutError != nil {
		return nil, m.ListOutError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []store.OutRequest
	for _, req := range m.out {
		if req.UserID == userID {
			list = append(list, *req)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].RequestedAt.After(list[j].RequestedAt)
	})
	return list, nil
}
