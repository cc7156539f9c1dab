// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

package merkletree

// TreeOption configures in-memory tree construction.
type TreeOption func(*treeOptions)

type treeOptions struct {
	cacheCfg   *CacheConfig
	noFastHash bool
	logCb      func(format string, args ...any)
}

// WithCache enables the partial-tree cache for the configured level band.
func WithCache(cfg CacheConfig) TreeOption {
	return func(opts *treeOptions) {
		opts.cacheCfg = &cfg
	}
}

// WithCacheBand enables the cache for the explicit inclusive level band
// [start, end].
func WithCacheBand(start, end uint32) TreeOption {
	return WithCache(CacheBand(start, end))
}

// WithTopLevelsCached enables the cache for the top k levels below the
// root, i.e. the band [height-k, height-1].
func WithTopLevelsCached(k uint32) TreeOption {
	return WithCache(TopLevels(k))
}

// WithCacheBandExpr enables the cache for a band given as arithmetic
// expressions over the tree parameters, e.g. ("height-3", "height-1").
func WithCacheBandExpr(startExpr, endExpr string) TreeOption {
	return WithCache(CacheBandExpr(startExpr, endExpr))
}

// WithoutFastHash disables the whole-level SHA-256 fast path and forces
// the generic per-pair hashing used for every other algorithm.
func WithoutFastHash() TreeOption {
	return func(opts *treeOptions) {
		opts.noFastHash = true
	}
}

// WithLogCb installs a logging callback for verbose build output.
func WithLogCb(logCb func(format string, args ...any)) TreeOption {
	return func(opts *treeOptions) {
		opts.logCb = logCb
	}
}

// StreamOption configures a StreamBuilder.
type StreamOption func(*streamOptions)

type streamOptions struct {
	scratchDir string
	logCb      func(format string, args ...any)
}

// WithScratchDir places the builder's per-build scratch directories under
// dir instead of the system temp directory.
func WithScratchDir(dir string) StreamOption {
	return func(opts *streamOptions) {
		opts.scratchDir = dir
	}
}

// WithStreamLogCb installs a logging callback for verbose build output.
func WithStreamLogCb(logCb func(format string, args ...any)) StreamOption {
	return func(opts *streamOptions) {
		opts.logCb = logCb
	}
}
