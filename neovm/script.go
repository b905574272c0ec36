// Copyright © 2018 The ELPS authors

package neovm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // Neo script hashes are RIPEMD160(SHA256)
)

// Hash160 is a 20-byte script hash stored in little-endian order, the way
// NeoVM pushes it. Its string form is the conventional big-endian 0x hex.
type Hash160 [20]byte

// HashScript computes the script hash (RIPEMD160 of SHA256) of b.
func HashScript(b []byte) Hash160 {
	sum := sha256.Sum256(b)
	r := ripemd160.New()
	r.Write(sum[:]) //nolint:errcheck // hash writes never fail
	var h Hash160
	copy(h[:], r.Sum(nil))
	return h
}

// String returns the big-endian hex form with a 0x prefix.
func (h Hash160) String() string {
	be := make([]byte, len(h))
	for i := range h {
		be[len(h)-1-i] = h[i]
	}
	return "0x" + hex.EncodeToString(be)
}

// Bytes returns the little-endian bytes of h.
func (h Hash160) Bytes() []byte {
	b := make([]byte, len(h))
	copy(b, h[:])
	return b
}

// IsZero reports whether h is the all-zero hash.
func (h Hash160) IsZero() bool {
	return h == Hash160{}
}

// ParseHash160 parses a big-endian hex script hash, with or without the 0x
// prefix.
func ParseHash160(s string) (Hash160, error) {
	var h Hash160
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*len(h) {
		return h, fmt.Errorf("invalid script hash %q: want %d hex digits", s, 2*len(h))
	}
	be, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid script hash %q: %w", s, err)
	}
	for i := range be {
		h[len(h)-1-i] = be[i]
	}
	return h, nil
}

// Hash160FromBytes converts a 20-byte little-endian slice to a Hash160.
func Hash160FromBytes(b []byte) (Hash160, bool) {
	var h Hash160
	if len(b) != len(h) {
		return h, false
	}
	copy(h[:], b)
	return h, true
}

// Script is an immutable NeoVM bytecode script.
type Script struct {
	b []byte

	once sync.Once
	hash Hash160
}

// NewScript wraps a copy of b.
func NewScript(b []byte) *Script {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Script{b: cp}
}

// Len returns the script length in bytes.
func (s *Script) Len() int {
	return len(s.b)
}

// Bytes returns a copy of the script bytes.
func (s *Script) Bytes() []byte {
	cp := make([]byte, len(s.b))
	copy(cp, s.b)
	return cp
}

// Hash returns the script identity.
func (s *Script) Hash() Hash160 {
	s.once.Do(func() {
		s.hash = HashScript(s.b)
	})
	return s.hash
}

// InstructionAt decodes the instruction at ip. An ip equal to the script
// length yields the implicit terminal RET.
func (s *Script) InstructionAt(ip int) (Instruction, error) {
	return decodeInstruction(s.b, ip)
}

// Instructions decodes the whole script sequentially from offset zero.
// The implicit RET past the end is not included.
func (s *Script) Instructions() ([]Instruction, error) {
	var out []Instruction
	for ip := 0; ip < len(s.b); {
		ins, err := decodeInstruction(s.b, ip)
		if err != nil {
			return out, err
		}
		out = append(out, ins)
		ip = ins.Next()
	}
	return out, nil
}
