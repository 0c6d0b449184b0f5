package draft

import (
	"context"
	"fmt"
	"sync"

	"github.com/Veraticus/wedding-ledger/internal/common"
)

// MemorySlots is a process-local service.SlotStore.
type MemorySlots struct {
	slots map[string][]byte
	mu    sync.RWMutex
}

// NewMemorySlots creates an empty slot store.
func NewMemorySlots() *MemorySlots {
	return &MemorySlots{slots: make(map[string][]byte)}
}

// SaveSlot overwrites key.
func (m *MemorySlots) SaveSlot(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[key] = append([]byte(nil), data...)
	return nil
}

// LoadSlot returns a copy of key's record.
func (m *MemorySlots) LoadSlot(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.slots[key]
	if !ok {
		return nil, fmt.Errorf("slot %s: %w", key, common.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// DeleteSlot removes key. Deleting a missing key is not an error.
func (m *MemorySlots) DeleteSlot(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, key)
	return nil
}
