// Package keystore persists PTM215B security keys learned from
// commissioning telegrams.
package keystore

import (
	"sync"

	"github.com/majkrzak/esphome-ptm215b/pkg/advertisement"
	"github.com/majkrzak/esphome-ptm215b/pkg/telegram"
)

// Key is a switch security key.
type Key = [telegram.KeySize]byte

// Store loads and saves switch security keys by address.
type Store interface {
	// LoadKey returns the stored key for addr. ok is false when no key is stored.
	LoadKey(addr advertisement.Address) (key Key, ok bool, err error)

	// SaveKey stores key for addr, replacing any previous key.
	SaveKey(addr advertisement.Address, key Key) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[advertisement.Address]Key
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[advertisement.Address]Key)}
}

// LoadKey implements Store.
func (s *MemoryStore) LoadKey(addr advertisement.Address) (Key, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[addr]
	return k, ok, nil
}

// SaveKey implements Store.
func (s *MemoryStore) SaveKey(addr advertisement.Address, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[addr] = key
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
