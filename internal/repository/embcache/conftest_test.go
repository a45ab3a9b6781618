package embcache

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/db"
)

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	getFn   func(ctx context.Context, key string) ([]byte, error)
	setNXFn func(ctx context.Context, key string, value []byte) (bool, error)
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	if m.setNXFn != nil {
		return m.setNXFn(ctx, key, value)
	}
	return true, nil
}

func newTestKV(t *testing.T) (*KV, *mockKVStore) {
	t.Helper()
	ms := &mockKVStore{}
	return NewKV(ms, "docingest:", zap.NewNop()), ms
}
