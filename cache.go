// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

package merkletree

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync/atomic"

	"github.com/runcodedad/merkletree/hasher"
	"github.com/runcodedad/merkletree/mtutils"
)

// Cache wire format constants.
const (
	cacheMagic         = "MTCACHE\x00"
	cacheFormatVersion = 1

	// maxCacheHashName bounds the hash name field on load; no real
	// algorithm identifier comes close.
	maxCacheHashName = 1024
)

// CacheConfig selects the level band retained by a partial-tree cache.
// Construct one with CacheBand, TopLevels or CacheBandExpr; the zero value
// is invalid.
type CacheConfig struct {
	start, end         uint32
	topLevels          uint32
	startExpr, endExpr string
	form               cacheConfigForm
}

type cacheConfigForm uint8

const (
	cacheConfigNone cacheConfigForm = iota
	cacheConfigBand
	cacheConfigTop
	cacheConfigExpr
)

// CacheBand selects the explicit inclusive level band [start, end].
func CacheBand(start, end uint32) CacheConfig {
	return CacheConfig{form: cacheConfigBand, start: start, end: end}
}

// TopLevels selects the top k levels below the root, resolving to the band
// [height-k, height-1].
func TopLevels(k uint32) CacheConfig {
	return CacheConfig{form: cacheConfigTop, topLevels: k}
}

// CacheBandExpr selects a band given as arithmetic expressions over the
// tree parameters height and leaf_count, e.g. ("height-3", "height-1").
func CacheBandExpr(startExpr, endExpr string) CacheConfig {
	return CacheConfig{form: cacheConfigExpr, startExpr: startExpr, endExpr: endExpr}
}

// resolve maps the configured form onto a concrete [start, end] band and
// validates it against the tree dimensions. The root level is excluded
// from the band.
func (c CacheConfig) resolve(height uint32, leafCount uint64) (uint32, uint32, error) {
	var start, end uint32
	switch c.form {
	case cacheConfigBand:
		start, end = c.start, c.end
	case cacheConfigTop:
		if c.topLevels == 0 || c.topLevels > height {
			return 0, 0, fmt.Errorf("top levels %d of height %d: %w", c.topLevels, height, mtutils.ErrInvalidCacheBand)
		}
		start, end = height-c.topLevels, height-1
	case cacheConfigExpr:
		var err error
		if start, err = resolveBandExpr(c.startExpr, height, leafCount); err != nil {
			return 0, 0, err
		}
		if end, err = resolveBandExpr(c.endExpr, height, leafCount); err != nil {
			return 0, 0, err
		}
	default:
		return 0, 0, fmt.Errorf("empty cache config: %w", mtutils.ErrInvalidCacheBand)
	}

	if end < start || height == 0 || end > height-1 {
		return 0, 0, fmt.Errorf("band [%d, %d] of height %d: %w", start, end, height, mtutils.ErrInvalidCacheBand)
	}
	return start, end, nil
}

// CacheMetadata describes the tree a cache belongs to and the level band
// it retains. Both band bounds are inclusive.
type CacheMetadata struct {
	HashName   string
	DigestSize uint32
	TreeHeight uint32
	LeafCount  uint64
	StartLevel uint32
	EndLevel   uint32
}

// CacheStats carries the lookup counters of a cache. Counters are mutable
// even on otherwise-immutable caches and are not part of the persisted
// format.
type CacheStats struct {
	Hits         uint64
	Misses       uint64
	TotalLookups uint64
	HitRate      float64
}

type cacheState uint8

const (
	cacheBuilding cacheState = iota + 1
	cacheReady
	cacheLoaded
)

// Cache is a partial-tree cache: a dense (level, index) -> digest mapping
// for a contiguous band of upper tree levels. It accelerates proof
// generation from streamed data by replacing recomputation of the upper
// proof path with O(1) lookups.
//
// The dense band data is immutable once the cache is ready or loaded.
// Afterwards the statistics counters change, and on a mutable cache (as
// returned by StreamBuilder.BuildWithCache) proof generation also inserts
// digests into an overlay map. Counters are atomic; overlay inserts are not
// synchronized with lookups, so concurrent use is race-free only for a
// cache that is not mutable.
type Cache struct {
	meta   CacheMetadata
	levels [][]byte // dense digest arrays, levels[0] holds StartLevel
	state  cacheState

	// overlay holds digests inserted after construction on mutable
	// caches, outside the dense band.
	overlay map[cacheKey][]byte
	mutable bool

	hits   atomic.Uint64
	misses atomic.Uint64
}

type cacheKey struct {
	level uint32
	index uint64
}

func newCache(meta CacheMetadata) *Cache {
	return &Cache{
		meta:   meta,
		levels: make([][]byte, meta.EndLevel-meta.StartLevel+1),
		state:  cacheBuilding,
	}
}

// Metadata returns the cache header: hash name, tree dimensions and the
// retained level band.
func (c *Cache) Metadata() CacheMetadata {
	return c.meta
}

// Covers reports whether level lies within the cache's retained band.
func (c *Cache) Covers(level uint32) bool {
	return level >= c.meta.StartLevel && level <= c.meta.EndLevel
}

// Lookup returns the digest of the node at (level, index) if the cache
// holds it. Every call counts toward the statistics.
func (c *Cache) Lookup(level uint32, index uint64) ([]byte, bool) {
	if d := c.get(level, index); d != nil {
		c.hits.Add(1)
		return d, true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *Cache) get(level uint32, index uint64) []byte {
	if c.Covers(level) {
		data := c.levels[level-c.meta.StartLevel]
		ds := uint64(c.meta.DigestSize)
		if off := index * ds; off+ds <= uint64(len(data)) {
			digest := make([]byte, ds)
			copy(digest, data[off:off+ds])
			return digest
		}
		return nil
	}
	if d, ok := c.overlay[cacheKey{level, index}]; ok {
		digest := make([]byte, len(d))
		copy(digest, d)
		return digest
	}
	return nil
}

// insert stores a recomputed digest on a mutable cache. Digests inside the
// dense band are already present; everything else lands in the overlay.
func (c *Cache) insert(level uint32, index uint64, digest []byte) {
	if !c.mutable || c.Covers(level) {
		return
	}
	if c.overlay == nil {
		c.overlay = make(map[cacheKey][]byte)
	}
	d := make([]byte, len(digest))
	copy(d, digest)
	c.overlay[cacheKey{level, index}] = d
}

// setLevel installs the dense digest array for a band level during
// construction. data is not copied.
func (c *Cache) setLevel(level uint32, data []byte) {
	c.levels[level-c.meta.StartLevel] = data
}

// Stats returns a snapshot of the lookup counters.
func (c *Cache) Stats() CacheStats {
	stats := CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	stats.TotalLookups = stats.Hits + stats.Misses
	if stats.TotalLookups > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalLookups) * 100
	}
	return stats
}

// ResetStats zeroes the lookup counters.
func (c *Cache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// WriteTo serializes the cache in its bytewise-defined file format: header,
// one dense digest array per band level, and a CRC-32 trailer over all
// prior bytes. Statistics are not persisted.
func (c *Cache) WriteTo(w io.Writer) (int64, error) {
	var body bytes.Buffer
	body.WriteString(cacheMagic)
	mtutils.WriteUint32(&body, cacheFormatVersion)
	mtutils.WriteUint32(&body, uint32(len(c.meta.HashName)))
	body.WriteString(c.meta.HashName)
	mtutils.WriteUint32(&body, c.meta.DigestSize)
	mtutils.WriteUint32(&body, c.meta.TreeHeight)
	mtutils.WriteUint64(&body, c.meta.LeafCount)
	mtutils.WriteUint32(&body, c.meta.StartLevel)
	mtutils.WriteUint32(&body, c.meta.EndLevel)

	for level := c.meta.StartLevel; level <= c.meta.EndLevel; level++ {
		data := c.levels[level-c.meta.StartLevel]
		mtutils.WriteUint32(&body, level)
		mtutils.WriteUint64(&body, uint64(len(data))/uint64(c.meta.DigestSize))
		body.Write(data)
	}

	// trailer covers everything before it and is excluded from itself
	mtutils.WriteUint32(&body, crc32.ChecksumIEEE(body.Bytes()))

	n, err := w.Write(body.Bytes())
	return int64(n), err
}

// Save writes the cache to a file at path.
func (c *Cache) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	if _, err := c.WriteTo(f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("closing cache file: %w", err)
	}
	return nil
}

// LoadCache reads a cache file written by Save and validates it against
// the given hash. Statistics counters load as zero.
func LoadCache(path string, h hasher.Hash) (*Cache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cache file: %w", err)
	}
	return ReadCache(bytes.NewReader(data), h)
}

// ReadCache parses a serialized cache from r. It validates the magic, the
// format version, the CRC-32 trailer, the structural sanity of every level
// entry, and that the cache's hash name matches h.
func ReadCache(r io.Reader, h hasher.Hash) (*Cache, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	if len(data) < len(cacheMagic)+4 {
		return nil, fmt.Errorf("cache truncated at %d bytes: %w", len(data), mtutils.ErrUnexpectedEOF)
	}

	body, trailer := data[:len(data)-4], data[len(data)-4:]
	var sum uint32
	if sum, err = mtutils.ReadUint32(bytes.NewReader(trailer)); err != nil {
		return nil, err
	}
	if computed := crc32.ChecksumIEEE(body); computed != sum {
		return nil, fmt.Errorf("cache crc32 %08x, expected %08x: %w", computed, sum, mtutils.ErrChecksumMismatch)
	}

	br := bytes.NewReader(body)

	magic := make([]byte, len(cacheMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("cache magic: %w", mtutils.ErrUnexpectedEOF)
	}
	if string(magic) != cacheMagic {
		return nil, fmt.Errorf("cache magic %q: %w", magic, mtutils.ErrInvalidMagic)
	}

	version, err := mtutils.ReadUint32(br)
	if err != nil {
		return nil, fmt.Errorf("cache version: %w", err)
	}
	if version != cacheFormatVersion {
		return nil, fmt.Errorf("cache version %d: %w", version, mtutils.ErrUnsupportedVersion)
	}

	nameLen, err := mtutils.ReadUint32(br)
	if err != nil {
		return nil, fmt.Errorf("cache hash name length: %w", err)
	}
	if nameLen > maxCacheHashName {
		return nil, fmt.Errorf("cache hash name length %d: %w", nameLen, mtutils.ErrUnexpectedEOF)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(br, name); err != nil {
		return nil, fmt.Errorf("cache hash name: %w", mtutils.ErrUnexpectedEOF)
	}

	meta := CacheMetadata{HashName: string(name)}
	if meta.DigestSize, err = mtutils.ReadUint32(br); err != nil {
		return nil, fmt.Errorf("cache digest size: %w", err)
	}
	if meta.TreeHeight, err = mtutils.ReadUint32(br); err != nil {
		return nil, fmt.Errorf("cache tree height: %w", err)
	}
	if meta.LeafCount, err = mtutils.ReadUint64(br); err != nil {
		return nil, fmt.Errorf("cache leaf count: %w", err)
	}
	if meta.StartLevel, err = mtutils.ReadUint32(br); err != nil {
		return nil, fmt.Errorf("cache start level: %w", err)
	}
	if meta.EndLevel, err = mtutils.ReadUint32(br); err != nil {
		return nil, fmt.Errorf("cache end level: %w", err)
	}

	if meta.HashName != h.Name() {
		return nil, fmt.Errorf("cache written with %q, loading with %q: %w", meta.HashName, h.Name(), mtutils.ErrHashMismatch)
	}
	if int(meta.DigestSize) != h.DigestSize() {
		return nil, fmt.Errorf("cache digest size %d, hash has %d: %w", meta.DigestSize, h.DigestSize(), mtutils.ErrHashMismatch)
	}
	if meta.LeafCount == 0 {
		return nil, fmt.Errorf("cache leaf count 0: %w", mtutils.ErrZeroLeaves)
	}
	height := TreeHeight(meta.LeafCount)
	if meta.TreeHeight != height {
		return nil, fmt.Errorf("cache height %d, %d leaves imply %d: %w", meta.TreeHeight, meta.LeafCount, height, mtutils.ErrInvalidCacheBand)
	}
	if meta.EndLevel < meta.StartLevel || height == 0 || meta.EndLevel > height-1 {
		return nil, fmt.Errorf("cache band [%d, %d] of height %d: %w", meta.StartLevel, meta.EndLevel, height, mtutils.ErrInvalidCacheBand)
	}

	cache := newCache(meta)
	for level := meta.StartLevel; level <= meta.EndLevel; level++ {
		levelIndex, err := mtutils.ReadUint32(br)
		if err != nil {
			return nil, fmt.Errorf("cache level index: %w", err)
		}
		if levelIndex != level {
			return nil, fmt.Errorf("cache level index %d, expected %d: %w", levelIndex, level, mtutils.ErrInvalidCacheBand)
		}
		nodeCount, err := mtutils.ReadUint64(br)
		if err != nil {
			return nil, fmt.Errorf("cache node count: %w", err)
		}
		if want := LevelSize(meta.LeafCount, level); nodeCount != want {
			return nil, fmt.Errorf("cache level %d has %d nodes, expected %d: %w", level, nodeCount, want, mtutils.ErrInvalidCacheBand)
		}
		digests := make([]byte, nodeCount*uint64(meta.DigestSize))
		if _, err := io.ReadFull(br, digests); err != nil {
			return nil, fmt.Errorf("cache level %d digests: %w", level, mtutils.ErrUnexpectedEOF)
		}
		cache.setLevel(level, digests)
	}

	if br.Len() != 0 {
		return nil, fmt.Errorf("cache has %d trailing bytes: %w", br.Len(), mtutils.ErrInvalidCacheBand)
	}

	cache.state = cacheLoaded
	return cache, nil
}
