// Copyright 2025 Shadow Atlas Project

package hash

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Field elements serialize little-endian internally (leaf arrays, Merkle
// levels, the snapshot file) and big-endian in external hex interchange
// (golden vectors, RPC payloads, on-chain calldata). This file is the
// only place byte order is ever reinterpreted; every conversion here has
// an adversarial round-trip test in encoding_test.go.

// ToLE returns the 32-byte little-endian internal encoding of e.
func ToLE(e Element) [32]byte {
	be := e.Bytes()
	var le [32]byte
	for i := 0; i < 32; i++ {
		le[i] = be[31-i]
	}
	return le
}

// FromLE parses a 32-byte little-endian internal encoding back into a
// field element.
func FromLE(le [32]byte) Element {
	var be [32]byte
	for i := 0; i < 32; i++ {
		be[i] = le[31-i]
	}
	var e Element
	e.SetBytes(be[:])
	return e
}

// ToHexBE returns e in big-endian hex interchange form, "0x"-prefixed.
func ToHexBE(e Element) string {
	b := e.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// FromHexBE parses a big-endian hex interchange string (with or without
// "0x" prefix) into a field element.
func FromHexBE(s string) (Element, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Element{}, fmt.Errorf("hash: decode hex element: %w", err)
	}
	var e Element
	e.SetBytes(b)
	return e, nil
}
