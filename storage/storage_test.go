package storage

import (
	"path/filepath"
	"testing"

	"github.com/neo-project/neo-debugger-sub000/neovm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	a := neovm.HashScript([]byte("a"))
	b := neovm.HashScript([]byte("b"))

	s.Put(a, []byte("z"), []byte("1"))
	s.Put(a, []byte("m"), []byte("2"))
	s.Put(b, []byte("k"), []byte("3"))

	v, ok := s.Get(a, []byte("m"))
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)

	entries := s.Entries(a)
	require.Len(t, entries, 2)
	assert.Equal(t, []byte("m"), entries[0].Key)
	assert.Equal(t, []byte("z"), entries[1].Key)

	s.Delete(b, []byte("k"))
	_, ok = s.Get(b, []byte("k"))
	assert.False(t, ok)
	assert.Equal(t, []neovm.Hash160{a}, s.Contracts())

	// Stored values are copies.
	val := []byte("orig")
	s.Put(a, []byte("c"), val)
	val[0] = 'X'
	got, _ := s.Get(a, []byte("c"))
	assert.Equal(t, []byte("orig"), got)
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	a := neovm.HashScript([]byte("a"))
	s.Seed(a, []Entry{{Key: []byte{0x01}, Value: []byte("one")}, {Key: []byte{0x02}, Value: []byte("two")}})

	path := filepath.Join(t.TempDir(), "state.neo-checkpoint")
	require.NoError(t, s.SaveCheckpoint(path))

	loaded, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, s.Entries(a), loaded.Entries(a))

	err = NewMemoryStore().UnmarshalCheckpoint([]byte{0xC1})
	assert.Error(t, err)
}
