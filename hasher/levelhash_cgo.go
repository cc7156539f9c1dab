// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.
//go:build cgo
// +build cgo

package hasher

import (
	"github.com/runcodedad/merkletree/hasher/cgo"
)

func init() {
	fastLevelHash = cgo.HashtreeLevelHash
}
