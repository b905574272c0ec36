// Copyright © 2018 The ELPS authors

package neovm

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressVersion is the Neo N3 address version byte.
const AddressVersion byte = 0x35

// ToAddress returns the base58check address of h.
func (h Hash160) ToAddress() string {
	payload := make([]byte, 0, 1+len(h)+4)
	payload = append(payload, AddressVersion)
	payload = append(payload, h[:]...)
	payload = append(payload, checksum(payload)...)
	return base58.Encode(payload)
}

// ParseAddress decodes a base58check Neo address into a script hash.
func ParseAddress(addr string) (Hash160, error) {
	var h Hash160
	raw, err := base58.Decode(addr)
	if err != nil {
		return h, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if len(raw) != 1+len(h)+4 {
		return h, fmt.Errorf("invalid address %q: bad length %d", addr, len(raw))
	}
	if raw[0] != AddressVersion {
		return h, fmt.Errorf("invalid address %q: version 0x%02x", addr, raw[0])
	}
	body, sum := raw[:1+len(h)], raw[1+len(h):]
	if !bytes.Equal(checksum(body), sum) {
		return h, fmt.Errorf("invalid address %q: checksum mismatch", addr)
	}
	copy(h[:], body[1:])
	return h, nil
}

func checksum(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:4]
}
