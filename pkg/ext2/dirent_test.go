package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import "testing"

func TestEncodeDecodeDirentRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	want := Dirent{Inode: 42, RecLen: 24, NameLen: 8, FileType: FileTypeReg, Name: "test.txt"}
	encodeDirent(buf, 0, want)

	got, err := decodeDirent(buf, 0)
	if err != nil {
		t.Fatalf("decodeDirent: %v", err)
	}
	if got != want {
		t.Fatalf("decodeDirent = %+v, want %+v", got, want)
	}
}

func TestMinDirentLenAligns(t *testing.T) {
	cases := []struct {
		nameLen int
		want    int64
	}{
		{1, 12}, // 8 + 1 -> align to 4 -> 12
		{4, 12},
		{5, 16},
		{8, 16},
	}
	for _, c := range cases {
		got := minDirentLen(c.nameLen)
		if got != c.want {
			t.Errorf("minDirentLen(%d) = %d, want %d", c.nameLen, got, c.want)
		}
	}
}

func TestDecodeDirentRejectsTruncatedBuffer(t *testing.T) {
	buf := make([]byte, 4)
	if _, err := decodeDirent(buf, 0); err != ErrCorrupt {
		t.Fatalf("decodeDirent on a too-short buffer = %v, want ErrCorrupt", err)
	}
}

func TestFileTypeFor(t *testing.T) {
	if fileTypeFor(KindDirectory) != FileTypeDir {
		t.Errorf("fileTypeFor(KindDirectory) should be FileTypeDir")
	}
	if fileTypeFor(KindRegular) != FileTypeReg {
		t.Errorf("fileTypeFor(KindRegular) should be FileTypeReg")
	}
}
