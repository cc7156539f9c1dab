// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

package mtutils

import "context"

// LeafSource yields leaf payloads one at a time. Next returns ErrEndOfLeaves
// once the source is drained. Next may block; implementations should honor
// ctx cancellation while blocked.
type LeafSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// RestartableLeafSource is a LeafSource that can be rewound to its first
// leaf. Each traversal must yield the identical sequence.
type RestartableLeafSource interface {
	LeafSource
	Restart()
}

// SliceSource is a restartable LeafSource backed by an in-memory slice.
type SliceSource struct {
	leaves [][]byte
	pos    int
}

// NewSliceSource returns a SliceSource over leaves. The slice is not copied.
func NewSliceSource(leaves [][]byte) *SliceSource {
	return &SliceSource{leaves: leaves}
}

func (s *SliceSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.leaves) {
		return nil, ErrEndOfLeaves
	}
	leaf := s.leaves[s.pos]
	s.pos++
	return leaf, nil
}

// Restart rewinds the source to the first leaf.
func (s *SliceSource) Restart() {
	s.pos = 0
}
