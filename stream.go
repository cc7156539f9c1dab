// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

package merkletree

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/runcodedad/merkletree/hasher"
	"github.com/runcodedad/merkletree/mtutils"
)

// maxLevelFrame bounds a single digest frame read back from a scratch
// file; user-defined hashes stay far below this.
const maxLevelFrame = 1 << 20

// StreamBuilder constructs Merkle trees from lazy leaf producers with O(1)
// peak memory in the leaf count. Each level is spilled to a scratch file
// of length-prefixed digest frames under a per-build directory; the
// directory is removed on every exit path.
//
// Builds honor ctx cancellation at every suspension point: pulling a leaf,
// writing a frame, reading a frame.
type StreamBuilder struct {
	hash hasher.Hash
	opts *streamOptions
}

// NewStreamBuilder returns a builder hashing with h.
func NewStreamBuilder(h hasher.Hash, options ...StreamOption) *StreamBuilder {
	opts := &streamOptions{}
	for _, option := range options {
		option(opts)
	}
	return &StreamBuilder{hash: h, opts: opts}
}

// Build consumes every leaf from src and returns the tree metadata. The
// full tree is never held in memory. A source that yields no leaves fails
// with ErrZeroLeaves.
func (b *StreamBuilder) Build(ctx context.Context, src mtutils.LeafSource) (Metadata, error) {
	meta, _, err := b.build(ctx, src, nil)
	return meta, err
}

// BuildWithCache is Build, additionally retaining every digest of the
// configured level band in a Cache. The returned cache is mutable: proof
// generation against it may insert recomputed digests.
func (b *StreamBuilder) BuildWithCache(ctx context.Context, src mtutils.LeafSource, cfg CacheConfig) (Metadata, *Cache, error) {
	return b.build(ctx, src, &cfg)
}

func (b *StreamBuilder) build(ctx context.Context, src mtutils.LeafSource, cacheCfg *CacheConfig) (Metadata, *Cache, error) {
	scratch, err := b.scratchDir()
	if err != nil {
		return Metadata{}, nil, err
	}
	// cleanup failures must not mask the primary error
	defer os.RemoveAll(scratch)

	cur := levelPath(scratch, 0)
	count, _, err := b.writeLeafLevel(ctx, src, cur, -1)
	if err != nil {
		return Metadata{}, nil, err
	}
	height := TreeHeight(count)

	var cache *Cache
	if cacheCfg != nil {
		start, end, err := cacheCfg.resolve(height, count)
		if err != nil {
			return Metadata{}, nil, err
		}
		cache = newCache(CacheMetadata{
			HashName:   b.hash.Name(),
			DigestSize: uint32(b.hash.DigestSize()),
			TreeHeight: height,
			LeafCount:  count,
			StartLevel: start,
			EndLevel:   end,
		})
		cache.mutable = true
		if start == 0 {
			data, err := b.readLevel(ctx, cur, count)
			if err != nil {
				return Metadata{}, nil, err
			}
			cache.setLevel(0, data)
		}
	}

	size := count
	for level := uint32(0); size > 1; level++ {
		next := levelPath(scratch, level+1)
		var collect *bytes.Buffer
		if cache != nil && cache.Covers(level+1) {
			collect = &bytes.Buffer{}
		}
		if _, err := b.compressLevel(ctx, cur, next, size, -1, collect); err != nil {
			return Metadata{}, nil, err
		}
		os.Remove(cur)
		cur = next
		size = (size + 1) / 2
		if collect != nil {
			cache.setLevel(level+1, collect.Bytes())
		}
		if b.opts.logCb != nil {
			b.opts.logCb("built level %d: %d nodes\n", level+1, size)
		}
	}

	root, err := b.readRoot(cur)
	if err != nil {
		return Metadata{}, nil, err
	}
	if cache != nil {
		cache.state = cacheReady
	}
	return Metadata{Root: root, Height: height, LeafCount: count}, cache, nil
}

// BuildProof generates the membership proof for the leaf at index without
// materializing the full tree: levels are recomputed bottom-up through
// scratch files, capturing only the sibling digests along the proof path.
//
// When cache is non-nil it is consulted before recomputing: once every
// remaining proof level is cache-resident, level recomputation stops.
// Misses fall back to recomputation, and recomputed siblings are inserted
// when the cache is mutable.
func (b *StreamBuilder) BuildProof(ctx context.Context, src mtutils.LeafSource, index uint64, cache *Cache) (*Proof, Metadata, error) {
	scratch, err := b.scratchDir()
	if err != nil {
		return nil, Metadata{}, err
	}
	defer os.RemoveAll(scratch)

	cur := levelPath(scratch, 0)
	count, leaf, err := b.writeLeafLevel(ctx, src, cur, int64(index))
	if err != nil {
		return nil, Metadata{}, err
	}
	if index >= count {
		return nil, Metadata{}, fmt.Errorf("stream: proof index %d of %d leaves: %w", index, count, mtutils.ErrIndexOutOfRange)
	}
	height := TreeHeight(count)

	if cache != nil {
		if err := b.checkCache(cache, count); err != nil {
			return nil, Metadata{}, err
		}
	}

	proof := &Proof{
		Leaf:           leaf,
		LeafIndex:      index,
		TreeHeight:     height,
		Siblings:       make([][]byte, 0, height),
		SiblingOnRight: make([]bool, 0, height),
	}

	var root []byte
	i := index
	size := count
	for level := uint32(0); size > 1; level++ {
		// once the rest of the path is cache-resident, stop recomputing
		if cache != nil && level >= cache.meta.StartLevel && height-1 <= cache.meta.EndLevel {
			if siblings, orientations, ok := remainingFromCache(cache, level, i, count, height); ok {
				proof.Siblings = append(proof.Siblings, siblings...)
				proof.SiblingOnRight = append(proof.SiblingOnRight, orientations...)
				if root, err = b.rootFromCache(cache, height); err != nil {
					return nil, Metadata{}, err
				}
				break
			}
		}

		sibling := SiblingIndex(i)
		if sibling >= size {
			sibling = i
		}
		next := levelPath(scratch, level+1)
		captured, err := b.compressLevel(ctx, cur, next, size, int64(sibling), nil)
		if err != nil {
			return nil, Metadata{}, err
		}
		proof.Siblings = append(proof.Siblings, captured)
		proof.SiblingOnRight = append(proof.SiblingOnRight, SiblingOnRight(i))
		if cache != nil {
			cache.insert(level, sibling, captured)
		}
		os.Remove(cur)
		cur = next
		i >>= 1
		size = (size + 1) / 2
	}

	if root == nil {
		if root, err = b.readRoot(cur); err != nil {
			return nil, Metadata{}, err
		}
	}
	return proof, Metadata{Root: root, Height: height, LeafCount: count}, nil
}

// scratchDir creates the per-build scratch directory.
func (b *StreamBuilder) scratchDir() (string, error) {
	dir, err := os.MkdirTemp(b.opts.scratchDir, "merkletree-")
	if err != nil {
		return "", fmt.Errorf("stream: creating scratch directory: %w", err)
	}
	return dir, nil
}

func levelPath(scratch string, level uint32) string {
	return filepath.Join(scratch, fmt.Sprintf("level_%d.hash", level))
}

// writeLeafLevel drains src, hashing each leaf and appending the digest to
// the level 0 scratch file. When captureIndex is >= 0, the raw payload of
// that leaf is copied and returned.
func (b *StreamBuilder) writeLeafLevel(ctx context.Context, src mtutils.LeafSource, path string, captureIndex int64) (uint64, []byte, error) {
	if src == nil {
		return 0, nil, fmt.Errorf("stream: nil leaf source")
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, nil, fmt.Errorf("stream: creating level 0 file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	var count uint64
	var captured []byte
	for {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		leaf, err := src.Next(ctx)
		if errors.Is(err, mtutils.ErrEndOfLeaves) {
			break
		}
		if err != nil {
			return 0, nil, fmt.Errorf("stream: pulling leaf %d: %w", count, err)
		}
		if leaf == nil {
			return 0, nil, fmt.Errorf("stream: leaf %d: %w", count, mtutils.ErrNilLeaf)
		}
		if int64(count) == captureIndex {
			captured = make([]byte, len(leaf))
			copy(captured, leaf)
		}
		if err := mtutils.WriteFrame(w, b.hash.Hash(leaf)); err != nil {
			return 0, nil, fmt.Errorf("stream: writing leaf digest %d: %w", count, err)
		}
		count++
	}
	if count == 0 {
		return 0, nil, fmt.Errorf("stream: %w", mtutils.ErrZeroLeaves)
	}
	if err := w.Flush(); err != nil {
		return 0, nil, fmt.Errorf("stream: flushing level 0 file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, nil, fmt.Errorf("stream: closing level 0 file: %w", err)
	}
	return count, captured, nil
}

// compressLevel reads the level file at cur two digests at a time and
// writes the parent digests to next, duplicating an unpaired last digest.
// When captureIndex is >= 0 the digest at that index of the current level
// is returned; when collect is non-nil every parent digest is appended to
// it.
func (b *StreamBuilder) compressLevel(ctx context.Context, cur, next string, size uint64, captureIndex int64, collect *bytes.Buffer) ([]byte, error) {
	in, err := os.Open(cur)
	if err != nil {
		return nil, fmt.Errorf("stream: opening level file: %w", err)
	}
	defer in.Close()
	r := bufio.NewReader(in)

	out, err := os.Create(next)
	if err != nil {
		return nil, fmt.Errorf("stream: creating level file: %w", err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	var captured []byte
	for i := uint64(0); i < size; i += 2 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		left, err := mtutils.ReadFrame(r, maxLevelFrame)
		if err != nil {
			return nil, fmt.Errorf("stream: reading digest %d: %w", i, frameErr(err))
		}
		right := left
		if i+1 < size {
			if right, err = mtutils.ReadFrame(r, maxLevelFrame); err != nil {
				return nil, fmt.Errorf("stream: reading digest %d: %w", i+1, frameErr(err))
			}
		}

		if uint64(captureIndex) == i {
			captured = left
		} else if uint64(captureIndex) == i+1 && i+1 < size {
			captured = right
		}

		parent := hasher.HashPair(b.hash, left, right)
		if err := mtutils.WriteFrame(w, parent); err != nil {
			return nil, fmt.Errorf("stream: writing parent digest: %w", err)
		}
		if collect != nil {
			collect.Write(parent)
		}
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("stream: flushing level file: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("stream: closing level file: %w", err)
	}
	return captured, nil
}

// readLevel reads back a whole level file as one dense digest array.
func (b *StreamBuilder) readLevel(ctx context.Context, path string, size uint64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stream: opening level file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	data := make([]byte, 0, size*uint64(b.hash.DigestSize()))
	for i := uint64(0); i < size; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		digest, err := mtutils.ReadFrame(r, maxLevelFrame)
		if err != nil {
			return nil, fmt.Errorf("stream: reading digest %d: %w", i, frameErr(err))
		}
		data = append(data, digest...)
	}
	return data, nil
}

// readRoot reads the single digest left in the last level file.
func (b *StreamBuilder) readRoot(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stream: opening root file: %w", err)
	}
	defer f.Close()

	root, err := mtutils.ReadFrame(bufio.NewReader(f), maxLevelFrame)
	if err != nil {
		return nil, fmt.Errorf("stream: reading root digest: %w", frameErr(err))
	}
	return root, nil
}

// checkCache validates a supplied cache against this build's hash and the
// observed leaf count.
func (b *StreamBuilder) checkCache(cache *Cache, leafCount uint64) error {
	meta := cache.Metadata()
	if meta.HashName != b.hash.Name() {
		return fmt.Errorf("stream: cache written with %q, building with %q: %w", meta.HashName, b.hash.Name(), mtutils.ErrHashMismatch)
	}
	if int(meta.DigestSize) != b.hash.DigestSize() {
		return fmt.Errorf("stream: cache digest size %d, hash has %d: %w", meta.DigestSize, b.hash.DigestSize(), mtutils.ErrHashMismatch)
	}
	if meta.LeafCount != leafCount {
		return fmt.Errorf("stream: cache built over %d leaves, source yields %d: %w", meta.LeafCount, leafCount, mtutils.ErrLeafCountMismatch)
	}
	return nil
}

// remainingFromCache resolves every sibling from level upward out of the
// cache. It returns ok=false as soon as one lookup misses; hits and misses
// both count toward the cache statistics.
func remainingFromCache(cache *Cache, level uint32, pathIndex uint64, leafCount uint64, height uint32) ([][]byte, []bool, bool) {
	siblings := make([][]byte, 0, height-level)
	orientations := make([]bool, 0, height-level)
	i := pathIndex
	for k := level; k < height; k++ {
		size := LevelSize(leafCount, k)
		sibling := SiblingIndex(i)
		if sibling >= size {
			sibling = i
		}
		digest, ok := cache.Lookup(k, sibling)
		if !ok {
			return nil, nil, false
		}
		siblings = append(siblings, digest)
		orientations = append(orientations, SiblingOnRight(i))
		i >>= 1
	}
	return siblings, orientations, true
}

// rootFromCache recombines the root from the two nodes directly below it.
// Only called when the cache band reaches height-1, which always holds
// exactly two nodes.
func (b *StreamBuilder) rootFromCache(cache *Cache, height uint32) ([]byte, error) {
	left := cache.get(height-1, 0)
	right := cache.get(height-1, 1)
	if left == nil || right == nil {
		return nil, fmt.Errorf("stream: cache level %d incomplete: %w", height-1, mtutils.ErrInvalidCacheBand)
	}
	return hasher.HashPair(b.hash, left, right), nil
}

// frameErr maps a clean io.EOF from a level file onto the truncation
// error; level files always hold the expected number of frames.
func frameErr(err error) error {
	if err == io.EOF {
		return mtutils.ErrUnexpectedEOF
	}
	return err
}
