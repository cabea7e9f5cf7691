package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"io"
	"sync"
)

// Handle is an open file: a device reference (via fs), the originating
// directory entry (for inode-number writeback addressing), an inode
// snapshot, a byte position, and a mutex serialising every public
// operation. Grounded on struct file / file_read / file_write /
// file_truncate / file_seek in the original file.c.
type Handle struct {
	fs     *Filesystem
	dirent Dirent
	inode  Inode
	pos    int64

	mu sync.Mutex
}

// Read reads up to len(buf) bytes starting at the handle's current
// position and advances it by the number of bytes actually read.
func (h *Handle) Read(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.fs.ReadAt(&h.inode, buf, h.pos)
	h.pos += int64(n)
	return n, err
}

// ReadAt reads up to len(buf) bytes at offset without touching the
// handle's position.
func (h *Handle) ReadAt(buf []byte, offset int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fs.ReadAt(&h.inode, buf, offset)
}

// Write writes buf at the handle's current position, advances the
// position, and persists the inode record.
func (h *Handle) Write(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.fs.WriteAt(&h.inode, buf, h.pos)
	h.pos += int64(n)
	if werr := h.fs.writeInode(h.dirent.Inode, &h.inode); werr != nil && err == nil {
		err = werr
	}
	return n, err
}

// WriteAt writes buf at offset without touching the handle's position,
// and persists the inode record.
func (h *Handle) WriteAt(buf []byte, offset int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.fs.WriteAt(&h.inode, buf, offset)
	if werr := h.fs.writeInode(h.dirent.Inode, &h.inode); werr != nil && err == nil {
		err = werr
	}
	return n, err
}

// Seek repositions the handle relative to the start, the current position,
// or the end of the file (io.SeekStart/SeekCurrent/SeekEnd). A resulting
// negative position is clamped to 0 rather than reported as an error.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = h.pos + offset
	case io.SeekEnd:
		abs = int64(h.inode.Size()) + offset
	default:
		return 0, ErrCorrupt
	}
	if abs < 0 {
		abs = 0
	}
	h.pos = abs
	return abs, nil
}

// Tell returns the handle's current position.
func (h *Handle) Tell() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

// Length returns the file's current byte size.
func (h *Handle) Length() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int64(h.inode.Size())
}

// Truncate resizes the file to size bytes and clamps the handle's position
// into range. The original clamps an over-range position to size-1, which
// underflows to UINT32_MAX when size is 0 (§9's documented bug); this
// clamps to size instead.
func (h *Handle) Truncate(size int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.fs.Resize(&h.inode, uint32(size)); err != nil {
		return err
	}
	if h.pos >= size {
		h.pos = size
	}
	return h.fs.writeInode(h.dirent.Inode, &h.inode)
}

// Close persists nothing further — the inode snapshot it owned is simply
// dropped, matching the original's "free the owned inode and directory
// copies" with Go's GC standing in for the explicit kfree calls.
func (h *Handle) Close() error {
	return nil
}

// Reopen returns an independent handle on the same file, sharing no state
// with h except the filesystem — a fresh inode snapshot and its own
// position and mutex.
func (h *Handle) Reopen() (*Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fresh, err := h.fs.readInode(h.dirent.Inode)
	if err != nil {
		return nil, err
	}
	return &Handle{fs: h.fs, dirent: h.dirent, inode: *fresh}, nil
}
