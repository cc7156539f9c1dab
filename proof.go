// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

package merkletree

import (
	"bytes"
	"fmt"
	"io"

	"github.com/runcodedad/merkletree/hasher"
	"github.com/runcodedad/merkletree/mtutils"
)

// Proof wire format constants.
const (
	proofMagic         = "MPRF"
	proofFormatVersion = 1

	// maxProofSibling bounds a single sibling frame on deserialization.
	maxProofSibling = 1 << 20
	// maxProofLeaf bounds the leaf payload on deserialization.
	maxProofLeaf = 1 << 30
)

// Proof is a membership proof for a single leaf: the leaf payload, its
// position, the tree height, and the ordered sibling path from the leaf
// level to just below the root. SiblingOnRight[k] reports whether, at
// level k, the sibling sits to the right of the proof path.
//
// Both slices have exactly TreeHeight entries; a single-leaf tree proves
// with empty arrays.
type Proof struct {
	Leaf           []byte
	LeafIndex      uint64
	TreeHeight     uint32
	Siblings       [][]byte
	SiblingOnRight []bool
}

// Verify recomputes the root committed to by p and compares it with root.
// It is pure and stateless: hashing the leaf, then folding in each sibling
// in path order, left or right as recorded.
func Verify(p *Proof, root []byte, h hasher.Hash) bool {
	if p == nil || h == nil {
		return false
	}
	if len(p.Siblings) != int(p.TreeHeight) || len(p.SiblingOnRight) != int(p.TreeHeight) {
		return false
	}

	ds := h.DigestSize()
	node := h.Hash(p.Leaf)
	tmp := make([]byte, 2*ds)
	for k, sibling := range p.Siblings {
		if len(sibling) != ds {
			return false
		}
		if p.SiblingOnRight[k] {
			copy(tmp[:ds], node)
			copy(tmp[ds:], sibling)
		} else {
			copy(tmp[:ds], sibling)
			copy(tmp[ds:], node)
		}
		node = h.Hash(tmp)
	}

	return bytes.Equal(node, root)
}

// Equal reports whether two proofs are byte-for-byte identical.
func (p *Proof) Equal(o *Proof) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.LeafIndex != o.LeafIndex || p.TreeHeight != o.TreeHeight ||
		!bytes.Equal(p.Leaf, o.Leaf) ||
		len(p.Siblings) != len(o.Siblings) || len(p.SiblingOnRight) != len(o.SiblingOnRight) {
		return false
	}
	for i := range p.Siblings {
		if !bytes.Equal(p.Siblings[i], o.Siblings[i]) || p.SiblingOnRight[i] != o.SiblingOnRight[i] {
			return false
		}
	}
	return true
}

// MarshalBinary serializes the proof in its wire format: "MPRF" magic, a
// version byte, the leaf index, tree height, length-prefixed leaf payload
// and the sibling path with per-step orientation bytes. All integers are
// little endian.
func (p *Proof) MarshalBinary() ([]byte, error) {
	if len(p.Siblings) != int(p.TreeHeight) || len(p.SiblingOnRight) != int(p.TreeHeight) {
		return nil, fmt.Errorf("proof has %d siblings and %d orientations for height %d",
			len(p.Siblings), len(p.SiblingOnRight), p.TreeHeight)
	}

	var buf bytes.Buffer
	buf.WriteString(proofMagic)
	mtutils.WriteUint8(&buf, proofFormatVersion)
	mtutils.WriteUint64(&buf, p.LeafIndex)
	mtutils.WriteUint32(&buf, p.TreeHeight)
	mtutils.WriteFrame(&buf, p.Leaf)
	mtutils.WriteUint32(&buf, uint32(len(p.Siblings)))
	for k, sibling := range p.Siblings {
		mtutils.WriteFrame(&buf, sibling)
		if p.SiblingOnRight[k] {
			mtutils.WriteUint8(&buf, 1)
		} else {
			mtutils.WriteUint8(&buf, 0)
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary parses a proof from its wire format, validating the
// magic, the version, that the sibling count equals the tree height, and
// that all sibling digests share one length.
func (p *Proof) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)

	magic := make([]byte, len(proofMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("proof magic: %w", mtutils.ErrUnexpectedEOF)
	}
	if string(magic) != proofMagic {
		return fmt.Errorf("proof magic %q: %w", magic, mtutils.ErrInvalidMagic)
	}

	version, err := mtutils.ReadUint8(r)
	if err != nil {
		return fmt.Errorf("proof version: %w", err)
	}
	if version != proofFormatVersion {
		return fmt.Errorf("proof version %d: %w", version, mtutils.ErrUnsupportedVersion)
	}

	var parsed Proof
	if parsed.LeafIndex, err = mtutils.ReadUint64(r); err != nil {
		return fmt.Errorf("proof leaf index: %w", err)
	}
	if parsed.TreeHeight, err = mtutils.ReadUint32(r); err != nil {
		return fmt.Errorf("proof tree height: %w", err)
	}
	if parsed.Leaf, err = mtutils.ReadFrame(r, maxProofLeaf); err != nil {
		return fmt.Errorf("proof leaf: %w", trimEOF(err))
	}

	siblingCount, err := mtutils.ReadUint32(r)
	if err != nil {
		return fmt.Errorf("proof sibling count: %w", err)
	}
	if siblingCount != parsed.TreeHeight {
		return fmt.Errorf("proof has %d siblings for height %d: %w",
			siblingCount, parsed.TreeHeight, mtutils.ErrUnexpectedEOF)
	}

	parsed.Siblings = make([][]byte, 0, siblingCount)
	parsed.SiblingOnRight = make([]bool, 0, siblingCount)
	for k := uint32(0); k < siblingCount; k++ {
		sibling, err := mtutils.ReadFrame(r, maxProofSibling)
		if err != nil {
			return fmt.Errorf("proof sibling %d: %w", k, trimEOF(err))
		}
		if k > 0 && len(sibling) != len(parsed.Siblings[0]) {
			return fmt.Errorf("proof sibling %d has %d bytes, sibling 0 has %d: %w",
				k, len(sibling), len(parsed.Siblings[0]), mtutils.ErrUnexpectedEOF)
		}
		orientation, err := mtutils.ReadUint8(r)
		if err != nil {
			return fmt.Errorf("proof orientation %d: %w", k, err)
		}
		parsed.Siblings = append(parsed.Siblings, sibling)
		parsed.SiblingOnRight = append(parsed.SiblingOnRight, orientation == 1)
	}

	if r.Len() != 0 {
		return fmt.Errorf("proof has %d trailing bytes: %w", r.Len(), mtutils.ErrUnexpectedEOF)
	}

	*p = parsed
	return nil
}

// trimEOF maps a clean io.EOF from frame reading onto the format error
// taxonomy; inside a fixed structure it is always a truncation.
func trimEOF(err error) error {
	if err == io.EOF {
		return mtutils.ErrUnexpectedEOF
	}
	return err
}
