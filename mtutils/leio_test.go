// Copyright (c) 2025 runcodedad
// SPDX-License-Identifier: Apache-2.0
// This file is part of the merkletree library.

package mtutils

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestUintRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteUint32(&buf, 0xdeadbeef); err != nil {
		t.Fatalf("writing uint32: %v", err)
	}
	if err := WriteUint64(&buf, 0x1122334455667788); err != nil {
		t.Fatalf("writing uint64: %v", err)
	}
	if err := WriteUint8(&buf, 7); err != nil {
		t.Fatalf("writing uint8: %v", err)
	}

	// little endian layout
	if !bytes.Equal(buf.Bytes()[:4], []byte{0xef, 0xbe, 0xad, 0xde}) {
		t.Errorf("uint32 bytes = %x", buf.Bytes()[:4])
	}

	r := bytes.NewReader(buf.Bytes())
	if v, err := ReadUint32(r); err != nil || v != 0xdeadbeef {
		t.Errorf("ReadUint32 = %x, %v", v, err)
	}
	if v, err := ReadUint64(r); err != nil || v != 0x1122334455667788 {
		t.Errorf("ReadUint64 = %x, %v", v, err)
	}
	if v, err := ReadUint8(r); err != nil || v != 7 {
		t.Errorf("ReadUint8 = %d, %v", v, err)
	}
	if _, err := ReadUint8(r); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("read past end: err = %v, want ErrUnexpectedEOF", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	frames := [][]byte{[]byte("first"), {}, []byte("third frame")}
	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("writing frame: %v", err)
		}
	}

	r := bytes.NewReader(buf.Bytes())
	for i, want := range frames {
		got, err := ReadFrame(r, 1024)
		if err != nil {
			t.Fatalf("reading frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %q, want %q", i, got, want)
		}
	}

	// clean end of the sequence reads as io.EOF
	if _, err := ReadFrame(r, 1024); err != io.EOF {
		t.Errorf("end of frames: err = %v, want io.EOF", err)
	}
}

func TestFrameErrors(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("payload")); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
	full := buf.Bytes()

	// truncated length prefix
	if _, err := ReadFrame(bytes.NewReader(full[:2]), 1024); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("truncated prefix: err = %v, want ErrUnexpectedEOF", err)
	}
	// truncated body
	if _, err := ReadFrame(bytes.NewReader(full[:6]), 1024); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("truncated body: err = %v, want ErrUnexpectedEOF", err)
	}
	// oversized frame
	if _, err := ReadFrame(bytes.NewReader(full), 3); !errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("oversized frame: err = %v, want ErrUnexpectedEOF", err)
	}
}
