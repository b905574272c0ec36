// Copyright © 2018 The ELPS authors

package neovm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// NEFMagic is the little-endian magic number of a NEF3 file ("NEF3").
const NEFMagic uint32 = 0x3346454E

const nefCompilerSize = 64

// ErrInvalidNEF is returned for files that are not well-formed NEF3 files.
var ErrInvalidNEF = errors.New("invalid NEF file")

// MethodToken describes a static call target referenced by CALLT.
type MethodToken struct {
	Hash            Hash160
	Method          string
	ParametersCount uint16
	HasReturnValue  bool
	CallFlags       byte
}

// NEF is a compiled contract file.
type NEF struct {
	Compiler string
	Source   string
	Tokens   []MethodToken
	Script   []byte
	Checksum uint32
}

// LoadNEF reads and verifies a NEF file from disk.
func LoadNEF(path string) (*NEF, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	nef, err := ParseNEF(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nef, nil
}

// ParseNEF decodes b and verifies its checksum.
func ParseNEF(b []byte) (*NEF, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: too short", ErrInvalidNEF)
	}
	r := &binReader{r: bytes.NewReader(b)}
	if magic := r.u32(); magic != NEFMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrInvalidNEF, magic)
	}
	nef := &NEF{}
	compiler := r.fixed(nefCompilerSize)
	nef.Compiler = strings.TrimRight(string(compiler), "\x00")
	nef.Source = string(r.varBytes(256))
	if r.u8() != 0 {
		r.fail("reserved byte is not zero")
	}
	n := r.varUint()
	if n > 128 {
		r.fail("too many method tokens")
	}
	for i := uint64(0); i < n && r.err == nil; i++ {
		var tok MethodToken
		copy(tok.Hash[:], r.fixed(len(tok.Hash)))
		tok.Method = string(r.varBytes(32))
		tok.ParametersCount = r.u16()
		tok.HasReturnValue = r.u8() != 0
		tok.CallFlags = r.u8()
		nef.Tokens = append(nef.Tokens, tok)
	}
	if r.u16() != 0 {
		r.fail("reserved field is not zero")
	}
	nef.Script = r.varBytes(512 * 1024)
	if r.err == nil && len(nef.Script) == 0 {
		r.fail("empty script")
	}
	body := len(b) - r.r.Len()
	nef.Checksum = r.u32()
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNEF, r.err)
	}
	if r.r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidNEF, r.r.Len())
	}
	if sum := nefChecksum(b[:body]); sum != nef.Checksum {
		return nil, fmt.Errorf("%w: checksum 0x%08x does not match 0x%08x", ErrInvalidNEF, nef.Checksum, sum)
	}
	return nef, nil
}

// Bytes serializes the NEF, recomputing its checksum.
func (nef *NEF) Bytes() []byte {
	var buf bytes.Buffer
	w := &binWriter{w: &buf}
	w.u32(NEFMagic)
	compiler := make([]byte, nefCompilerSize)
	copy(compiler, nef.Compiler)
	buf.Write(compiler)
	w.varBytes([]byte(nef.Source))
	buf.WriteByte(0)
	w.varUint(uint64(len(nef.Tokens)))
	for _, tok := range nef.Tokens {
		buf.Write(tok.Hash[:])
		w.varBytes([]byte(tok.Method))
		w.u16(tok.ParametersCount)
		if tok.HasReturnValue {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		buf.WriteByte(tok.CallFlags)
	}
	w.u16(0)
	w.varBytes(nef.Script)
	nef.Checksum = nefChecksum(buf.Bytes())
	w.u32(nef.Checksum)
	return buf.Bytes()
}

func nefChecksum(b []byte) uint32 {
	return binary.LittleEndian.Uint32(checksum(b))
}

type binReader struct {
	r   *bytes.Reader
	err error
}

func (r *binReader) fail(msg string) {
	if r.err == nil {
		r.err = errors.New(msg)
	}
}

func (r *binReader) fixed(n int) []byte {
	if r.err != nil {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		r.err = err
		return nil
	}
	return b
}

func (r *binReader) u8() byte {
	b := r.fixed(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *binReader) u16() uint16 {
	b := r.fixed(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *binReader) u32() uint32 {
	b := r.fixed(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *binReader) varUint() uint64 {
	switch p := r.u8(); p {
	case 0xFD:
		return uint64(r.u16())
	case 0xFE:
		return uint64(r.u32())
	case 0xFF:
		b := r.fixed(8)
		if b == nil {
			return 0
		}
		return binary.LittleEndian.Uint64(b)
	default:
		return uint64(p)
	}
}

func (r *binReader) varBytes(limit int) []byte {
	n := r.varUint()
	if r.err != nil {
		return nil
	}
	if n > uint64(limit) {
		r.fail(fmt.Sprintf("length %d exceeds %d", n, limit))
		return nil
	}
	return r.fixed(int(n))
}

type binWriter struct {
	w *bytes.Buffer
}

func (w *binWriter) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.w.Write(b[:])
}

func (w *binWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.w.Write(b[:])
}

func (w *binWriter) varUint(n uint64) {
	switch {
	case n < 0xFD:
		w.w.WriteByte(byte(n))
	case n <= 0xFFFF:
		w.w.WriteByte(0xFD)
		w.u16(uint16(n))
	case n <= 0xFFFFFFFF:
		w.w.WriteByte(0xFE)
		w.u32(uint32(n))
	default:
		w.w.WriteByte(0xFF)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], n)
		w.w.Write(b[:])
	}
}

func (w *binWriter) varBytes(b []byte) {
	w.varUint(uint64(len(b)))
	w.w.Write(b)
}
