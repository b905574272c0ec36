// Copyright © 2018 The ELPS authors

// Package storage holds contract storage for debug sessions: an in-memory
// key/value store per contract that can be seeded from launch settings and
// saved to or restored from a checkpoint file.
package storage

import (
	"bytes"
	"sort"
	"sync"

	"github.com/neo-project/neo-debugger-sub000/neovm"
)

// Entry is a single storage key/value pair.
type Entry struct {
	Key   []byte `msgpack:"key"`
	Value []byte `msgpack:"value"`
}

// MemoryStore is an in-memory contract storage. It satisfies
// neovm.Storage.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[neovm.Hash160]map[string][]byte
}

var _ neovm.Storage = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[neovm.Hash160]map[string][]byte)}
}

// Get returns the value stored under key for contract.
func (s *MemoryStore) Get(contract neovm.Hash160, key []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[contract][string(key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Put stores value under key for contract.
func (s *MemoryStore) Put(contract neovm.Hash160, key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.data[contract]
	if !ok {
		m = make(map[string][]byte)
		s.data[contract] = m
	}
	m[string(key)] = append([]byte(nil), value...)
}

// Delete removes key from contract storage.
func (s *MemoryStore) Delete(contract neovm.Hash160, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.data[contract]; ok {
		delete(m, string(key))
		if len(m) == 0 {
			delete(s.data, contract)
		}
	}
}

// Seed stores every entry for contract.
func (s *MemoryStore) Seed(contract neovm.Hash160, entries []Entry) {
	for _, e := range entries {
		s.Put(contract, e.Key, e.Value)
	}
}

// Entries returns the storage of contract ordered by key.
func (s *MemoryStore) Entries(contract neovm.Hash160) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.data[contract]
	out := make([]Entry, 0, len(m))
	for k, v := range m {
		out = append(out, Entry{Key: []byte(k), Value: append([]byte(nil), v...)})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out
}

// Contracts returns every contract holding storage, in hash order.
func (s *MemoryStore) Contracts() []neovm.Hash160 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]neovm.Hash160, 0, len(s.data))
	for h := range s.data {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}
