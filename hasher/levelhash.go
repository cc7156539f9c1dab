// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

package hasher

import (
	"crypto/sha256"
	"fmt"
)

// LevelHashFn compresses a whole tree level of adjacent 64-byte sibling
// pairs into 32-byte parent digests in a single call. input holds the
// concatenated pairs and must be a multiple of 64 bytes; dst receives
// len(input)/2 bytes of parents. dst may alias input.
type LevelHashFn func(dst []byte, input []byte) error

// fastLevelHash is the active SHA-256 level backend. The portable default
// hashes pairwise with the stdlib; a cgo build swaps in the SIMD hashtree
// implementation via init.
var fastLevelHash LevelHashFn = sha256LevelHash

// FastLevelHash returns the active whole-level SHA-256 backend. Output is
// bit-identical to hashing each 64-byte pair with SHA-256 individually.
func FastLevelHash() LevelHashFn {
	return fastLevelHash
}

func sha256LevelHash(dst []byte, input []byte) error {
	if len(input)%64 != 0 {
		return fmt.Errorf("level input not a multiple of 64 bytes")
	}
	if len(dst) < len(input)/2 {
		return fmt.Errorf("level output needs %d bytes, got %d", len(input)/2, len(dst))
	}
	for i := 0; i < len(input); i += 64 {
		digest := sha256.Sum256(input[i : i+64])
		copy(dst[i/2:], digest[:])
	}
	return nil
}
