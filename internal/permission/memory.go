package permission

import (
	"context"
	"fmt"
	"sync"

	"github.com/congo-pay/deposit_ledger/internal/key"
)

type group struct {
	members []key.Key
}

// Memory is an in-process Authority.
type Memory struct {
	mu          sync.Mutex
	groups      map[key.Key]group
	permissions map[key.Key]Request
}

// NewMemory creates an empty access control service.
func NewMemory() *Memory {
	return &Memory{groups: make(map[key.Key]group), permissions: make(map[key.Key]Request)}
}

func (m *Memory) CreateGroup(_ context.Context, id key.Key, members []key.Key) error {
	if len(members) == 0 {
		return ErrEmptyGroup
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; ok {
		return fmt.Errorf("%w: %s", ErrGroupExists, id)
	}
	m.groups[id] = group{members: append([]key.Key(nil), members...)}
	return nil
}

func (m *Memory) DeleteGroup(_ context.Context, id key.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, id)
	}
	delete(m.groups, id)
	return nil
}

func (m *Memory) CreatePermission(_ context.Context, req Request) error {
	if !req.Capability.Authorizes(req.Account) || !req.Capability.Authorizes(req.Owner) {
		return ErrNotAuthorized
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[req.Group]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGroup, req.Group)
	}
	if _, ok := m.permissions[req.Account]; ok {
		return fmt.Errorf("%w: %s", ErrPermissionExists, req.Account)
	}
	m.permissions[req.Account] = req
	return nil
}

// HasGroup reports whether id exists.
func (m *Memory) HasGroup(id key.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.groups[id]
	return ok
}

// PermissionOf returns the permission bound to account, if any.
func (m *Memory) PermissionOf(account key.Key) (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.permissions[account]
	return req, ok
}
