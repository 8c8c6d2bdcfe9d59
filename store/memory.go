package store

import (
	"context"
	"sync"
)

// Memory is an in-process [TokenStore]. State does not survive a restart;
// intended for tests and ephemeral clients.
type Memory struct {
	mu    sync.RWMutex
	state *State
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Save describes the save operation and its observable behavior.
func (m *Memory) Save(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = cloneState(state)
	return nil
}

// Load describes the load operation and its observable behavior.
func (m *Memory) Load(_ context.Context) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.state.Complete() {
		return nil, nil
	}
	return cloneState(*m.state), nil
}

// Clear describes the clear operation and its observable behavior.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nil
	return nil
}
