// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

package merkletree

import (
	"fmt"
	"sync"

	"github.com/casbin/govaluate"

	"github.com/runcodedad/merkletree/mtutils"
)

// Cache bands may be configured as arithmetic expressions over the tree
// parameters, e.g. "height-3" or "leaf_count/2". Parsed expressions are
// cached so repeated builds with the same configuration do not re-parse.

var bandExprCache sync.Map // expr string -> *govaluate.EvaluableExpression

func resolveBandExpr(expr string, height uint32, leafCount uint64) (uint32, error) {
	var expression *govaluate.EvaluableExpression
	if cached, ok := bandExprCache.Load(expr); ok {
		expression = cached.(*govaluate.EvaluableExpression)
	} else {
		parsed, err := govaluate.NewEvaluableExpression(expr)
		if err != nil {
			return 0, fmt.Errorf("parsing cache band expression %q: %w", expr, err)
		}
		bandExprCache.Store(expr, parsed)
		expression = parsed
	}

	result, err := expression.Evaluate(map[string]any{
		"height":     float64(height),
		"leaf_count": float64(leafCount),
	})
	if err != nil {
		return 0, fmt.Errorf("evaluating cache band expression %q: %w", expr, err)
	}

	value, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("cache band expression %q is not numeric: %w", expr, mtutils.ErrInvalidCacheBand)
	}
	if value < 0 {
		return 0, fmt.Errorf("cache band expression %q resolves to %v: %w", expr, value, mtutils.ErrInvalidCacheBand)
	}
	level := uint32(value)
	if float64(level) < value {
		// fractional levels round up, partial levels cannot be cached
		level++
	}
	return level, nil
}
