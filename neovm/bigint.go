// Copyright © 2018 The ELPS authors

package neovm

import "math/big"

// MaxIntegerSize is the largest integer, in bytes, the VM accepts.
const MaxIntegerSize = 32

// BytesToInt decodes a little-endian two's complement integer.
func BytesToInt(b []byte) *big.Int {
	n := new(big.Int)
	if len(b) == 0 {
		return n
	}
	be := make([]byte, len(b))
	for i := range b {
		be[len(b)-1-i] = b[i]
	}
	n.SetBytes(be)
	if b[len(b)-1]&0x80 != 0 {
		// Negative: subtract 2^(8*len).
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(8*len(b))))
	}
	return n
}

// IntToBytes encodes n as a minimal little-endian two's complement integer.
// Zero encodes to an empty slice.
func IntToBytes(n *big.Int) []byte {
	if n.Sign() == 0 {
		return []byte{}
	}
	var be []byte
	if n.Sign() > 0 {
		be = n.Bytes()
		if be[0]&0x80 != 0 {
			be = append([]byte{0}, be...)
		}
	} else {
		// Two's complement of |n| in the smallest width that keeps the sign.
		width := len(n.Bytes())
		if width == 0 {
			width = 1
		}
		for {
			mod := new(big.Int).Lsh(big.NewInt(1), uint(8*width))
			v := new(big.Int).Add(mod, n)
			be = v.Bytes()
			for len(be) < width {
				be = append([]byte{0}, be...)
			}
			if be[0]&0x80 != 0 {
				break
			}
			width++
		}
	}
	le := make([]byte, len(be))
	for i := range be {
		le[len(be)-1-i] = be[i]
	}
	return le
}
