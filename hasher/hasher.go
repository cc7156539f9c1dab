// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

// Package hasher provides the hash abstraction used throughout the merkle
// tree library, the three bundled algorithms, and a fast whole-level
// hashing backend for SHA-256 trees.
package hasher

import (
	"crypto/sha256"
	"crypto/sha512"
	"sync"

	"lukechampine.com/blake3"
)

// Algorithm names as reported by the bundled Hash implementations. The
// names are compared byte for byte when checking cache compatibility.
const (
	SHA256Name = "SHA-256"
	SHA512Name = "SHA-512"
	BLAKE3Name = "BLAKE3"
)

// Hash names a digest algorithm, reports its fixed digest size and computes
// digests over contiguous byte slices. Implementations must be
// deterministic and pure; the library accepts any user-supplied
// implementation alongside the bundled ones.
//
// Parent digests are always computed as Hash(left || right) over two
// digests of equal length. No length prefixing or domain separation is
// applied.
type Hash interface {
	// Name returns the algorithm identifier, e.g. "SHA-256".
	Name() string

	// DigestSize returns the fixed digest length in bytes.
	DigestSize() int

	// Hash computes the digest of data. The returned slice has exactly
	// DigestSize bytes and is owned by the caller.
	Hash(data []byte) []byte
}

type sha256Hash struct{}

// NewSHA256 returns the bundled SHA-256 hash (32-byte digests).
func NewSHA256() Hash { return sha256Hash{} }

func (sha256Hash) Name() string    { return SHA256Name }
func (sha256Hash) DigestSize() int { return sha256.Size }
func (sha256Hash) Hash(data []byte) []byte {
	d := sha256.Sum256(data)
	return d[:]
}

type sha512Hash struct{}

// NewSHA512 returns the bundled SHA-512 hash (64-byte digests).
func NewSHA512() Hash { return sha512Hash{} }

func (sha512Hash) Name() string    { return SHA512Name }
func (sha512Hash) DigestSize() int { return sha512.Size }
func (sha512Hash) Hash(data []byte) []byte {
	d := sha512.Sum512(data)
	return d[:]
}

type blake3Hash struct{}

// NewBLAKE3 returns the bundled BLAKE3 hash (32-byte digests).
func NewBLAKE3() Hash { return blake3Hash{} }

func (blake3Hash) Name() string    { return BLAKE3Name }
func (blake3Hash) DigestSize() int { return 32 }
func (blake3Hash) Hash(data []byte) []byte {
	d := blake3.Sum256(data)
	return d[:]
}

// pairBufPool recycles the scratch buffers used to concatenate sibling
// digests before rehashing.
var pairBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 2*sha512.Size)
		return &buf
	},
}

// HashPair computes h(left || right), the parent digest of two siblings.
func HashPair(h Hash, left, right []byte) []byte {
	bufPtr := pairBufPool.Get().(*[]byte)
	buf := append((*bufPtr)[:0], left...)
	buf = append(buf, right...)
	digest := h.Hash(buf)
	*bufPtr = buf
	pairBufPool.Put(bufPtr)
	return digest
}

// IsFastSHA256 reports whether h is the bundled SHA-256 implementation,
// for which the whole-level fast path applies.
func IsFastSHA256(h Hash) bool {
	_, ok := h.(sha256Hash)
	return ok
}
