// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import (
	"context"
	"sync"
)

// MemoryBackend keeps the snapshot in process. It is used for dry runs and
// tests.
type MemoryBackend struct {
	mu    sync.Mutex
	snap  Snapshot
	saves int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load(_ context.Context) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap.Clone(), nil
}

func (b *MemoryBackend) Save(_ context.Context, s Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap = s.Clone()
	b.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func (b *MemoryBackend) Close() error { return nil }
