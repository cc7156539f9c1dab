// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

package mtutils

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Little-endian integer and frame plumbing shared by the proof and cache
// wire formats and the streaming builder's scratch files.

// WriteUint32 writes a little endian uint32 to the writer.
func WriteUint32(w io.Writer, i uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], i)
	_, err := w.Write(buf[:])
	return err
}

// WriteUint64 writes a little endian uint64 to the writer.
func WriteUint64(w io.Writer, i uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], i)
	_, err := w.Write(buf[:])
	return err
}

// WriteUint8 writes a single byte to the writer.
func WriteUint8(w io.Writer, i uint8) error {
	var buf [1]byte
	buf[0] = i
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads a little endian uint32 from the reader. Any truncation,
// including a clean EOF, maps to ErrUnexpectedEOF.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, truncErr(err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadUint64 reads a little endian uint64 from the reader.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, truncErr(err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadUint8 reads a single byte from the reader.
func ReadUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, truncErr(err)
	}
	return buf[0], nil
}

// WriteFrame writes a length-prefixed frame: a little endian uint32 length
// followed by the frame bytes.
func WriteFrame(w io.Writer, b []byte) error {
	if err := WriteUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadFrame reads a length-prefixed frame. A clean io.EOF before the length
// prefix is returned as io.EOF so callers can detect the end of a frame
// sequence; truncation anywhere else maps to ErrUnexpectedEOF. Frames longer
// than maxLen are rejected.
func ReadFrame(r io.Reader, maxLen uint32) ([]byte, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, truncErr(err)
	}
	length := binary.LittleEndian.Uint32(buf[:])
	if length > maxLen {
		return nil, fmt.Errorf("frame length %d exceeds limit %d: %w", length, maxLen, ErrUnexpectedEOF)
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, fmt.Errorf("frame body: %w", ErrUnexpectedEOF)
	}
	return frame, nil
}

func truncErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrUnexpectedEOF
	}
	return err
}
