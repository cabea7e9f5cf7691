package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import "testing"

// Shared test scaffolding: a small formatted MemDevice filesystem, reused by
// every _test.go file in this package.

func newTestFS(t *testing.T, totalBlocks uint32) *Filesystem {
	t.Helper()
	dev := NewMemDevice("test", int64(totalBlocks)*2) // 1024-byte blocks = 2 sectors
	fs, err := Format(dev, FormatParams{TotalBlocks: totalBlocks, LogBlockSize: 0}, nil)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	return fs
}
