// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

package mtutils

import "fmt"

var (
	// ErrZeroLeaves is returned when a tree is built from an empty leaf set.
	// A zero-leaf tree is not representable.
	ErrZeroLeaves = fmt.Errorf("tree requires at least one leaf")

	// ErrNilLeaf is returned when a leaf payload is nil.
	ErrNilLeaf = fmt.Errorf("nil leaf payload")

	// ErrIndexOutOfRange is returned when a leaf index is >= the leaf count.
	ErrIndexOutOfRange = fmt.Errorf("leaf index out of range")

	// ErrInvalidCacheBand is returned when a cache level band does not fit
	// within the tree, or end < start.
	ErrInvalidCacheBand = fmt.Errorf("invalid cache level band")

	// ErrNoCache is returned by cache accessors when no cache is present.
	ErrNoCache = fmt.Errorf("no cache present")

	// ErrEndOfLeaves signals that a LeafSource has been drained.
	ErrEndOfLeaves = fmt.Errorf("end of leaf stream")

	ErrInvalidMagic       = fmt.Errorf("invalid magic bytes")
	ErrUnsupportedVersion = fmt.Errorf("unsupported format version")
	ErrUnexpectedEOF      = fmt.Errorf("unexpected end of input")
	ErrChecksumMismatch   = fmt.Errorf("checksum mismatch")

	// ErrHashMismatch is returned when a cache was written with a different
	// hash algorithm than the one it is loaded or used with.
	ErrHashMismatch = fmt.Errorf("hash algorithm mismatch")

	// ErrLeafCountMismatch is returned when a cache describes a different
	// leaf set than the one it is consulted for.
	ErrLeafCountMismatch = fmt.Errorf("cache leaf count mismatch")
)
