// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

// Package merkletree provides deterministic Merkle tree construction,
// membership proof generation and proof verification over arbitrarily
// large leaf datasets.
//
// Two builders produce bit-identical roots: the in-memory Tree retains
// every level for O(height) proof extraction, and the StreamBuilder spills
// levels to scratch files so peak memory stays constant in the leaf count.
// A partial-tree Cache of the top levels bridges the two, accelerating
// proof generation from streamed data without re-hashing the full dataset.
//
// Trees pair adjacent nodes level by level; a level with an odd node count
// pairs its last node with itself (duplication padding). Hashing is
// pluggable through the hasher.Hash interface; SHA-256, SHA-512 and BLAKE3
// are bundled.
package merkletree

import (
	"fmt"

	"github.com/runcodedad/merkletree/hasher"
	"github.com/runcodedad/merkletree/mtutils"
)

// Metadata identifies a fully built tree: its root digest, height and
// leaf count.
type Metadata struct {
	Root      []byte
	Height    uint32
	LeafCount uint64
}

// Tree is an immutable in-memory Merkle tree. Every level is materialized
// during construction as a flat digest arena, so proofs are O(height)
// reads with no rehashing.
//
// A Tree is safe for concurrent reads after construction.
type Tree struct {
	hash      hasher.Hash
	leaves    [][]byte
	levels    [][]byte // levels[k] holds LevelSize(leafCount, k) digests back to back
	leafCount uint64
	height    uint32
	cache     *Cache
}

// New builds a tree over leaves using h. The leaf slices are retained by
// reference and must not be mutated afterwards. At least one leaf is
// required; individual leaves may be empty but not nil.
//
// When a cache option is present, every digest of the configured level
// band is retained in a Cache alongside the tree.
func New(leaves [][]byte, h hasher.Hash, options ...TreeOption) (*Tree, error) {
	if h == nil {
		return nil, fmt.Errorf("merkletree: nil hash")
	}
	if len(leaves) == 0 {
		return nil, fmt.Errorf("merkletree: %w", mtutils.ErrZeroLeaves)
	}

	opts := &treeOptions{}
	for _, option := range options {
		option(opts)
	}

	leafCount := uint64(len(leaves))
	height := TreeHeight(leafCount)
	ds := h.DigestSize()

	t := &Tree{
		hash:      h,
		leaves:    leaves,
		levels:    make([][]byte, height+1),
		leafCount: leafCount,
		height:    height,
	}

	// level 0: leaf digests. The spare digest of capacity keeps the odd
	// level duplication append in place.
	level := make([]byte, 0, (leafCount+1)*uint64(ds))
	for i, leaf := range leaves {
		if leaf == nil {
			return nil, fmt.Errorf("merkletree: leaf %d: %w", i, mtutils.ErrNilLeaf)
		}
		level = append(level, h.Hash(leaf)...)
	}
	t.levels[0] = level

	fast := hasher.IsFastSHA256(h) && !opts.noFastHash
	for k := uint32(0); k < height; k++ {
		next, err := t.buildLevel(t.levels[k], ds, fast)
		if err != nil {
			return nil, fmt.Errorf("merkletree: level %d: %w", k+1, err)
		}
		t.levels[k+1] = next
		if opts.logCb != nil {
			opts.logCb("built level %d: %d nodes\n", k+1, len(next)/ds)
		}
	}

	if opts.cacheCfg != nil {
		cache, err := t.buildCache(*opts.cacheCfg)
		if err != nil {
			return nil, err
		}
		t.cache = cache
	}

	return t, nil
}

// buildLevel compresses one level of digests into its parent level,
// duplicating the last digest when the level has an odd node count.
func (t *Tree) buildLevel(level []byte, ds int, fast bool) ([]byte, error) {
	input := level
	if count := len(level) / ds; count%2 == 1 {
		// pair the unpaired last node with itself; capacity reserved at
		// allocation keeps this in place
		input = append(level, level[len(level)-ds:]...)
	}

	pairs := len(input) / (2 * ds)
	next := make([]byte, pairs*ds, (pairs+1)*ds)

	if fast {
		if err := hasher.FastLevelHash()(next, input); err != nil {
			return nil, err
		}
		return next, nil
	}

	for i := 0; i < pairs; i++ {
		off := i * 2 * ds
		digest := hasher.HashPair(t.hash, input[off:off+ds], input[off+ds:off+2*ds])
		copy(next[i*ds:], digest)
	}
	return next, nil
}

// buildCache populates a Cache with every node in the resolved band,
// sharing the tree's level arenas.
func (t *Tree) buildCache(cfg CacheConfig) (*Cache, error) {
	start, end, err := cfg.resolve(t.height, t.leafCount)
	if err != nil {
		return nil, err
	}
	ds := t.hash.DigestSize()
	cache := newCache(CacheMetadata{
		HashName:   t.hash.Name(),
		DigestSize: uint32(ds),
		TreeHeight: t.height,
		LeafCount:  t.leafCount,
		StartLevel: start,
		EndLevel:   end,
	})
	for level := start; level <= end; level++ {
		size := LevelSize(t.leafCount, level)
		cache.setLevel(level, t.levels[level][:size*uint64(ds)])
	}
	cache.state = cacheReady
	return cache, nil
}

// Root returns a copy of the root digest.
func (t *Tree) Root() []byte {
	return t.digestAt(t.height, 0)
}

// Metadata returns the tree's root digest, height and leaf count.
func (t *Tree) Metadata() Metadata {
	return Metadata{Root: t.Root(), Height: t.height, LeafCount: t.leafCount}
}

// Height returns the tree height: 0 for a single leaf.
func (t *Tree) Height() uint32 {
	return t.height
}

// LeafCount returns the number of leaves the tree was built from.
func (t *Tree) LeafCount() uint64 {
	return t.leafCount
}

// Hash returns the hash the tree was built with.
func (t *Tree) Hash() hasher.Hash {
	return t.hash
}

// digestAt copies the digest of the node at (level, index) out of the
// level arena.
func (t *Tree) digestAt(level uint32, index uint64) []byte {
	ds := uint64(t.hash.DigestSize())
	digest := make([]byte, ds)
	copy(digest, t.levels[level][index*ds:])
	return digest
}

// Proof extracts the membership proof for the leaf at index: the sibling
// digest and orientation at every level from the leaves to just below the
// root, applying duplication padding where a sibling does not exist.
func (t *Tree) Proof(index uint64) (*Proof, error) {
	if index >= t.leafCount {
		return nil, fmt.Errorf("merkletree: proof index %d of %d leaves: %w", index, t.leafCount, mtutils.ErrIndexOutOfRange)
	}

	proof := &Proof{
		Leaf:           t.leaves[index],
		LeafIndex:      index,
		TreeHeight:     t.height,
		Siblings:       make([][]byte, 0, t.height),
		SiblingOnRight: make([]bool, 0, t.height),
	}

	i := index
	for k := uint32(0); k < t.height; k++ {
		size := LevelSize(t.leafCount, k)
		sibling := SiblingIndex(i)
		if sibling >= size {
			sibling = i
		}
		proof.Siblings = append(proof.Siblings, t.digestAt(k, sibling))
		proof.SiblingOnRight = append(proof.SiblingOnRight, SiblingOnRight(i))
		i >>= 1
	}

	return proof, nil
}

// HasCache reports whether the tree carries a partial-tree cache.
func (t *Tree) HasCache() bool {
	return t.cache != nil
}

// Cache returns the tree's cache, or nil when none was configured.
func (t *Tree) Cache() *Cache {
	return t.cache
}

// CacheMetadata returns the cache header, or ErrNoCache when the tree was
// built without one.
func (t *Tree) CacheMetadata() (CacheMetadata, error) {
	if t.cache == nil {
		return CacheMetadata{}, fmt.Errorf("merkletree: %w", mtutils.ErrNoCache)
	}
	return t.cache.Metadata(), nil
}

// CacheStats returns the cache's lookup counters, or ErrNoCache when the
// tree was built without one.
func (t *Tree) CacheStats() (CacheStats, error) {
	if t.cache == nil {
		return CacheStats{}, fmt.Errorf("merkletree: %w", mtutils.ErrNoCache)
	}
	return t.cache.Stats(), nil
}

// SaveCache writes the tree's cache to a file at path. It fails with
// ErrNoCache when the tree was built without one.
func (t *Tree) SaveCache(path string) error {
	if t.cache == nil {
		return fmt.Errorf("merkletree: %w", mtutils.ErrNoCache)
	}
	return t.cache.Save(path)
}
