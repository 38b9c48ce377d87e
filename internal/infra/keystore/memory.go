package keystore

import (
	"context"
	"sync"
)

// MemoryStore 仅在进程内保存 slot，进程退出即丢失。
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]string
}

// NewMemoryStore 构造空的内存 store。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]string)}
}

func (m *MemoryStore) Get(ctx context.Context, slot string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.slots[slot]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(ctx context.Context, slot, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkSlot(slot); err != nil {
		return err
	}
	m.mu.Lock()
	m.slots[slot] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, slot string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.slots, slot)
	m.mu.Unlock()
	return nil
}
