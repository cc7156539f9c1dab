// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

package mtutils

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestSliceSource(t *testing.T) {
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	src := NewSliceSource(leaves)
	ctx := context.Background()

	for pass := 0; pass < 2; pass++ {
		for i, want := range leaves {
			got, err := src.Next(ctx)
			if err != nil {
				t.Fatalf("pass %d leaf %d: %v", pass, i, err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("pass %d leaf %d = %q, want %q", pass, i, got, want)
			}
		}
		if _, err := src.Next(ctx); !errors.Is(err, ErrEndOfLeaves) {
			t.Fatalf("pass %d: err = %v, want ErrEndOfLeaves", pass, err)
		}
		src.Restart()
	}
}

func TestSliceSourceCancellation(t *testing.T) {
	src := NewSliceSource([][]byte{[]byte("a")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
