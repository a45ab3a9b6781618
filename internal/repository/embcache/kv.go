package embcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docingest/internal/db"
)

// KeyPrefix namespaces cache entries in a shared key-value store.
const KeyPrefix = "emb_cache:"

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
}

// KV keeps embeddings in Redis/Valkey so they survive restarts and are shared between workers.
// Store failures degrade to cache misses.
type KV struct {
	store   store
	prefix  string
	logger  *zap.Logger
	written atomic.Int64
}

// NewKV creates a store-backed cache. prefix is prepended to KeyPrefix.
func NewKV(s store, prefix string, logger *zap.Logger) *KV {
	return &KV{
		store:  s,
		prefix: prefix + KeyPrefix,
		logger: logger,
	}
}

// Put stores vec under key with SET NX and returns the vector the store holds for key.
// When another writer got there first its vector is read back; on store errors vec is returned.
func (c *KV) Put(ctx context.Context, key string, vec []float32) []float32 {
	ok, err := c.store.SetNX(ctx, c.prefix+key, vectorToCacheBytes(vec))
	if err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
		return vec
	}
	if ok {
		c.written.Add(1)
		return vec
	}
	if stored, found := c.Get(ctx, key); found {
		return stored
	}
	return vec
}

// Len returns the number of entries this process has written.
func (c *KV) Len() int {
	return int(c.written.Load())
}

// Get returns the cached vector for key.
func (c *KV) Get(ctx context.Context, key string) ([]float32, bool) {
	key = c.prefix + key
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
