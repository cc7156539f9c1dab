// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.
//go:build cgo
// +build cgo

package cgo

import (
	"fmt"
	"unsafe"

	hashtree "github.com/pk910/hashtree-bindings"
)

// HashtreeLevelHash compresses a level of 64-byte sibling pairs into
// 32-byte parents using the SIMD hashtree implementation.
func HashtreeLevelHash(dst []byte, input []byte) error {
	if len(input) == 0 {
		return nil
	}
	if len(input)%64 != 0 {
		return fmt.Errorf("level input not a multiple of 64 bytes")
	}
	if len(dst)%32 != 0 {
		return fmt.Errorf("level output not a multiple of 32 bytes")
	}
	if len(dst) < len(input)/2 {
		return fmt.Errorf("not enough output length, need at least %d, got %d", len(input)/2, len(dst))
	}
	// We use an unsafe pointer to cast []byte to [][32]byte. The length and
	// capacity of the slice need to be divided accordingly by 32.
	sizeChunks := (len(input) >> 5)
	chunkedChunks := unsafe.Slice((*[32]byte)(unsafe.Pointer(&input[0])), sizeChunks)

	sizeDigests := (len(dst) >> 5)
	chunkedDigests := unsafe.Slice((*[32]byte)(unsafe.Pointer(&dst[0])), sizeDigests)

	hashtree.Hash(chunkedDigests, chunkedChunks)

	return nil
}
