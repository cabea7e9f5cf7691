package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import "testing"

func TestBitmapSetTest(t *testing.T) {
	buf := make([]byte, 4)
	bm := NewBitmap(buf, 32)

	bm.Set(0, true)
	bm.Set(9, true)
	bm.Set(31, true)

	for _, i := range []int64{0, 9, 31} {
		if !bm.Test(i) {
			t.Errorf("bit %d expected set", i)
		}
	}
	for _, i := range []int64{1, 8, 10, 30} {
		if bm.Test(i) {
			t.Errorf("bit %d expected clear", i)
		}
	}

	bm.Set(9, false)
	if bm.Test(9) {
		t.Errorf("bit 9 expected clear after unset")
	}
}

func TestBitmapSetRangeAndTestAllInRange(t *testing.T) {
	buf := make([]byte, 8)
	bm := NewBitmap(buf, 64)

	bm.SetRange(10, 20, true)
	if !bm.TestAllInRange(10, 20, true) {
		t.Errorf("range [10,30) expected fully set")
	}
	if bm.Test(9) || bm.Test(30) {
		t.Errorf("bits surrounding the range must stay clear")
	}

	bm.SetRange(15, 5, false)
	if bm.TestAllInRange(10, 20, true) {
		t.Errorf("range should no longer be fully set")
	}
	if !bm.TestAllInRange(10, 5, true) || !bm.TestAllInRange(20, 10, true) {
		t.Errorf("untouched sub-ranges should remain set")
	}
}

func TestBitmapScanFindsFirstRun(t *testing.T) {
	buf := make([]byte, 4)
	bm := NewBitmap(buf, 32)
	bm.SetRange(0, 10, true)

	idx := bm.Scan(0, 5, false)
	if idx != 10 {
		t.Fatalf("Scan = %d, want 10", idx)
	}

	idx = bm.Scan(0, 100, false)
	if idx != notFound {
		t.Fatalf("Scan with cnt beyond bitmap length should fail, got %d", idx)
	}
}

func TestBitmapScanAndFlipMutatesOnlyOnSuccess(t *testing.T) {
	buf := make([]byte, 4)
	bm := NewBitmap(buf, 32)
	bm.SetRange(0, 32, true)

	idx := bm.ScanAndFlip(0, 4, false)
	if idx != notFound {
		t.Fatalf("ScanAndFlip on a full bitmap should fail, got %d", idx)
	}
	if !bm.TestAllInRange(0, 32, true) {
		t.Errorf("failed ScanAndFlip must not mutate the bitmap")
	}

	bm.Set(5, false)
	bm.Set(6, false)
	idx = bm.ScanAndFlip(0, 2, false)
	if idx != 5 {
		t.Fatalf("ScanAndFlip = %d, want 5", idx)
	}
	if !bm.TestAllInRange(5, 2, true) {
		t.Errorf("ScanAndFlip must flip the run it found")
	}
}
