// Package embcache stores embedding vectors keyed by the content hash of their text
// (domain.ContentHash).
package embcache

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process cache. Once a key is written its vector never changes.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]float32)}
}

// Get returns a copy of the cached vector.
func (m *Memory) Get(_ context.Context, key string) ([]float32, bool) {
	m.mu.RLock()
	vec, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return slices.Clone(vec), true
}

// Put stores vec under key unless the key is already present and returns
// a copy of the vector that the cache holds for key afterwards.
func (m *Memory) Put(_ context.Context, key string, vec []float32) []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.entries[key]; ok {
		return slices.Clone(stored)
	}
	m.entries[key] = slices.Clone(vec)
	return slices.Clone(vec)
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
