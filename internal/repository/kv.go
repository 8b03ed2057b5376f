// Package repository persists engine state in a key/value store. Values are
// opaque blobs; the attempt history is the only structured value.
package repository

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/stemsi/exstem-engine/internal/model"
)

// KV is a string-keyed blob store. Get returns model.ErrBlobNotFound for
// missing keys.
type KV interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// MemoryKV keeps blobs in process memory. Contents are lost on restart.
type MemoryKV struct {
	m *xsync.MapOf[string, []byte]
}

// NewMemoryKV creates an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{m: xsync.NewMapOf[string, []byte]()}
}

func (s *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	s.m.Store(key, buf)
	return nil
}

func (s *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.m.Load(key)
	if !ok {
		return nil, model.ErrBlobNotFound
	}
	buf := make([]byte, len(v))
	copy(buf, v)
	return buf, nil
}
