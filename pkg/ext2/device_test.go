package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"testing"
)

func TestReadWriteBlockRoundTrip(t *testing.T) {
	dev := NewMemDevice("test", 100)
	blockSize := int64(2048) // 4 sectors

	data := bytes.Repeat([]byte{0xAB}, int(blockSize))
	if err := WriteBlock(dev, 3, blockSize, data); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	got, err := ReadBlock(dev, 3, blockSize, nil)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read block does not match written block")
	}

	// a neighbouring block must be untouched.
	neighbor, err := ReadBlock(dev, 2, blockSize, nil)
	if err != nil {
		t.Fatalf("ReadBlock neighbor: %v", err)
	}
	if !bytes.Equal(neighbor, make([]byte, blockSize)) {
		t.Fatalf("writing block 3 must not touch block 2")
	}
}

func TestReadBlockRejectsBadBlockSize(t *testing.T) {
	dev := NewMemDevice("test", 10)
	if _, err := ReadBlock(dev, 0, 500, nil); err == nil {
		t.Fatalf("ReadBlock with a non-sector-multiple block size should fail")
	}
}

func TestFileDeviceSectorRoundTrip(t *testing.T) {
	backing := newMemReaderWriterAt(4096)
	dev := NewFileDevice("test.img", backing, 8)

	buf := bytes.Repeat([]byte{0x7E}, SectorSize)
	if err := dev.WriteSector(2, buf); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	got := make([]byte, SectorSize)
	if err := dev.ReadSector(2, got); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if !bytes.Equal(got, buf) {
		t.Fatalf("FileDevice read does not match write")
	}
}

// memReaderWriterAt is a minimal io.ReaderAt+io.WriterAt over a byte slice,
// standing in for an *os.File in tests.
type memReaderWriterAt struct {
	data []byte
}

func newMemReaderWriterAt(size int) *memReaderWriterAt {
	return &memReaderWriterAt{data: make([]byte, size)}
}

func (m *memReaderWriterAt) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.data[off:])
	return n, nil
}

func (m *memReaderWriterAt) WriteAt(p []byte, off int64) (int, error) {
	n := copy(m.data[off:], p)
	return n, nil
}
