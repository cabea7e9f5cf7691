package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import "testing"

func TestAllocBlocksSkipsGroupZeroWhenMultipleGroups(t *testing.T) {
	// 4096 blocks at the default group size (8*1024 blocks/group, clamped
	// to the device) gives exactly one group, so bump BlocksPerGroup down
	// to force at least two groups.
	dev := NewMemDevice("test", 4096*2)
	fs, err := Format(dev, FormatParams{TotalBlocks: 4096, BlocksPerGroup: 512}, nil)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if len(fs.groups) < 2 {
		t.Fatalf("expected multiple groups, got %d", len(fs.groups))
	}

	blockID, err := fs.AllocBlocks(1, false)
	if err != nil {
		t.Fatalf("AllocBlocks: %v", err)
	}
	g, _ := fs.blockGroup(blockID)
	if g == 0 {
		t.Errorf("group 0 should be skipped while other groups have space, got group %d", g)
	}
}

func TestAllocBlocksUsesGroupZeroWhenItIsTheOnlyGroup(t *testing.T) {
	fs := newTestFS(t, 64) // small enough to stay a single group
	if len(fs.groups) != 1 {
		t.Fatalf("expected exactly one group, got %d", len(fs.groups))
	}

	blockID, err := fs.AllocBlocks(1, false)
	if err != nil {
		t.Fatalf("AllocBlocks: %v", err)
	}
	g, _ := fs.blockGroup(blockID)
	if g != 0 {
		t.Errorf("the sole group must serve allocations, got group %d", g)
	}
}

func TestAllocFreeBlocksRoundTripsFreeCounters(t *testing.T) {
	fs := newTestFS(t, 4096)

	before := fs.sb.FreeBlocks
	blockID, err := fs.AllocBlocks(4, false)
	if err != nil {
		t.Fatalf("AllocBlocks: %v", err)
	}
	if fs.sb.FreeBlocks != before-4 {
		t.Fatalf("FreeBlocks after alloc = %d, want %d", fs.sb.FreeBlocks, before-4)
	}

	if err := fs.FreeBlocks(blockID, 4); err != nil {
		t.Fatalf("FreeBlocks: %v", err)
	}
	if fs.sb.FreeBlocks != before {
		t.Fatalf("FreeBlocks after free = %d, want %d", fs.sb.FreeBlocks, before)
	}
}

func TestFreeBlocksOnAlreadyFreeBlockPanics(t *testing.T) {
	fs := newTestFS(t, 4096)
	blockID, err := fs.AllocBlocks(1, false)
	if err != nil {
		t.Fatalf("AllocBlocks: %v", err)
	}
	if err := fs.FreeBlocks(blockID, 1); err != nil {
		t.Fatalf("FreeBlocks: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Errorf("freeing an already-free block should panic")
		}
	}()
	fs.FreeBlocks(blockID, 1) //nolint:errcheck
}

func TestAllocFreeInodeRoundTrip(t *testing.T) {
	fs := newTestFS(t, 4096)

	before := fs.sb.FreeInodes
	num, err := fs.AllocInode()
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	if fs.sb.FreeInodes != before-1 {
		t.Fatalf("FreeInodes after alloc = %d, want %d", fs.sb.FreeInodes, before-1)
	}

	if err := fs.FreeInode(num); err != nil {
		t.Fatalf("FreeInode: %v", err)
	}
	if fs.sb.FreeInodes != before {
		t.Fatalf("FreeInodes after free = %d, want %d", fs.sb.FreeInodes, before)
	}
}

func TestAllocBlocksExhaustion(t *testing.T) {
	fs := newTestFS(t, 64)
	total := int64(fs.sb.FreeBlocks)

	for i := int64(0); i < total; i++ {
		if _, err := fs.AllocBlocks(1, false); err != nil {
			t.Fatalf("AllocBlocks %d/%d: %v", i, total, err)
		}
	}
	if _, err := fs.AllocBlocks(1, false); err != ErrNoSpace {
		t.Fatalf("AllocBlocks past exhaustion = %v, want ErrNoSpace", err)
	}
}
