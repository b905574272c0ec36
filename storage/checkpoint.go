// Copyright © 2018 The ELPS authors

package storage

import (
	"fmt"
	"os"

	"github.com/neo-project/neo-debugger-sub000/neovm"
	"github.com/vmihailenco/msgpack/v5"
)

// CheckpointVersion is the checkpoint file format written by SaveCheckpoint.
const CheckpointVersion = 1

type checkpointContract struct {
	Hash    []byte  `msgpack:"hash"`
	Entries []Entry `msgpack:"entries"`
}

type checkpointFile struct {
	Version   int                  `msgpack:"version"`
	Contracts []checkpointContract `msgpack:"contracts"`
}

// MarshalCheckpoint encodes the whole store.
func (s *MemoryStore) MarshalCheckpoint() ([]byte, error) {
	f := checkpointFile{Version: CheckpointVersion}
	for _, h := range s.Contracts() {
		f.Contracts = append(f.Contracts, checkpointContract{Hash: h.Bytes(), Entries: s.Entries(h)})
	}
	return msgpack.Marshal(&f)
}

// UnmarshalCheckpoint adds the contents of an encoded checkpoint to the
// store.
func (s *MemoryStore) UnmarshalCheckpoint(b []byte) error {
	var f checkpointFile
	if err := msgpack.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("decode checkpoint: %w", err)
	}
	if f.Version != CheckpointVersion {
		return fmt.Errorf("unsupported checkpoint version %d", f.Version)
	}
	for _, c := range f.Contracts {
		h, ok := neovm.Hash160FromBytes(c.Hash)
		if !ok {
			return fmt.Errorf("checkpoint contract hash has %d bytes", len(c.Hash))
		}
		s.Seed(h, c.Entries)
	}
	return nil
}

// SaveCheckpoint writes the store to path.
func (s *MemoryStore) SaveCheckpoint(path string) error {
	b, err := s.MarshalCheckpoint()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644) //nolint:gosec
}

// LoadCheckpoint reads a checkpoint file into a new store.
func LoadCheckpoint(path string) (*MemoryStore, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := NewMemoryStore()
	if err := s.UnmarshalCheckpoint(b); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
