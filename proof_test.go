// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

package merkletree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/runcodedad/merkletree/hasher"
	"github.com/runcodedad/merkletree/mtutils"
)

func buildProof(t *testing.T, n int, index uint64) (*Proof, []byte, hasher.Hash) {
	t.Helper()
	h := hasher.NewSHA256()
	tree, err := New(genLeaves("leaf_", n), h)
	if err != nil {
		t.Fatalf("building tree: %v", err)
	}
	proof, err := tree.Proof(index)
	if err != nil {
		t.Fatalf("generating proof: %v", err)
	}
	return proof, tree.Root(), h
}

func TestProofRoundTrip(t *testing.T) {
	proof, root, h := buildProof(t, 5, 2)

	data, err := proof.MarshalBinary()
	if err != nil {
		t.Fatalf("marshaling: %v", err)
	}
	if string(data[:4]) != "MPRF" {
		t.Errorf("serialized proof starts with %q, want MPRF", data[:4])
	}

	var decoded Proof
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if !decoded.Equal(proof) {
		t.Fatal("decoded proof differs from original")
	}
	if !bytes.Equal(decoded.Leaf, []byte("leaf_2")) {
		t.Errorf("decoded leaf = %q", decoded.Leaf)
	}
	if decoded.LeafIndex != 2 {
		t.Errorf("decoded index = %d, want 2", decoded.LeafIndex)
	}
	for i := range proof.Siblings {
		if !bytes.Equal(decoded.Siblings[i], proof.Siblings[i]) {
			t.Errorf("sibling %d differs after round trip", i)
		}
	}
	if !Verify(&decoded, root, h) {
		t.Error("decoded proof does not verify against the original root")
	}
}

func TestProofRoundTripSingleLeaf(t *testing.T) {
	proof, root, h := buildProof(t, 1, 0)

	data, err := proof.MarshalBinary()
	if err != nil {
		t.Fatalf("marshaling: %v", err)
	}
	var decoded Proof
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if len(decoded.Siblings) != 0 || decoded.TreeHeight != 0 {
		t.Errorf("decoded = %+v, want empty sibling path", decoded)
	}
	if !Verify(&decoded, root, h) {
		t.Error("decoded proof does not verify")
	}
}

func TestProofMarshalRejectsInconsistent(t *testing.T) {
	proof, _, _ := buildProof(t, 5, 2)
	proof.TreeHeight++
	if _, err := proof.MarshalBinary(); err == nil {
		t.Error("expected error for sibling count / height mismatch")
	}
}

func TestProofUnmarshalErrors(t *testing.T) {
	proof, _, _ := buildProof(t, 5, 2)
	valid, err := proof.MarshalBinary()
	if err != nil {
		t.Fatalf("marshaling: %v", err)
	}

	mutate := func(fn func(b []byte)) []byte {
		b := append([]byte{}, valid...)
		fn(b)
		return b
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{
			name: "bad magic",
			data: mutate(func(b []byte) { b[0] = 'X' }),
			want: mtutils.ErrInvalidMagic,
		},
		{
			name: "bad version",
			data: mutate(func(b []byte) { b[4] = 99 }),
			want: mtutils.ErrUnsupportedVersion,
		},
		{
			name: "sibling count height mismatch",
			// tree_height sits after magic, version and leaf_index
			data: mutate(func(b []byte) { binary.LittleEndian.PutUint32(b[13:], 7) }),
			want: mtutils.ErrUnexpectedEOF,
		},
		{
			name: "truncated",
			data: valid[:len(valid)-3],
			want: mtutils.ErrUnexpectedEOF,
		},
		{
			name: "trailing garbage",
			data: append(append([]byte{}, valid...), 0xff),
			want: mtutils.ErrUnexpectedEOF,
		},
		{
			name: "empty",
			data: nil,
			want: mtutils.ErrUnexpectedEOF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var decoded Proof
			if err := decoded.UnmarshalBinary(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	proof, root, h := buildProof(t, 7, 3)

	if !Verify(proof, root, h) {
		t.Fatal("untampered proof does not verify")
	}

	tamperedRoot := append([]byte{}, root...)
	tamperedRoot[0] ^= 1
	if Verify(proof, tamperedRoot, h) {
		t.Error("proof verified against a tampered root")
	}

	tamperedLeaf := *proof
	tamperedLeaf.Leaf = []byte("leaf_X")
	if Verify(&tamperedLeaf, root, h) {
		t.Error("proof with a tampered leaf verified")
	}

	tamperedSibling := *proof
	tamperedSibling.Siblings = append([][]byte{}, proof.Siblings...)
	tamperedSibling.Siblings[1] = append([]byte{}, proof.Siblings[1]...)
	tamperedSibling.Siblings[1][0] ^= 1
	if Verify(&tamperedSibling, root, h) {
		t.Error("proof with a tampered sibling verified")
	}

	flippedOrientation := *proof
	flippedOrientation.SiblingOnRight = append([]bool{}, proof.SiblingOnRight...)
	flippedOrientation.SiblingOnRight[0] = !flippedOrientation.SiblingOnRight[0]
	if Verify(&flippedOrientation, root, h) {
		t.Error("proof with a flipped orientation verified")
	}

	if Verify(nil, root, h) {
		t.Error("nil proof verified")
	}
	short := *proof
	short.Siblings = short.Siblings[:1]
	if Verify(&short, root, h) {
		t.Error("proof with missing siblings verified")
	}
}

func TestVerifyIdempotent(t *testing.T) {
	proof, root, h := buildProof(t, 9, 4)
	for i := 0; i < 3; i++ {
		if !Verify(proof, root, h) {
			t.Fatalf("verification %d failed", i)
		}
	}
}
