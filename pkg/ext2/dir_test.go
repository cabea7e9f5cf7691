package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import "testing"

func TestInsertEntryPreservesEarlierEntries(t *testing.T) {
	blockSize := int64(1024)
	buf := make([]byte, blockSize)
	dotLen := minDirentLen(1)
	encodeDirent(buf, 0, Dirent{Inode: RootInode, NameLen: 1, FileType: FileTypeDir, Name: ".", RecLen: uint16(dotLen)})
	encodeDirent(buf, dotLen, Dirent{Inode: RootInode, NameLen: 2, FileType: FileTypeDir, Name: "..", RecLen: uint16(blockSize - dotLen)})

	if err := insertEntry(buf, 11, "hello.txt", KindRegular); err != nil {
		t.Fatalf("insertEntry: %v", err)
	}

	dot, ok, err := lookupInDir(buf, ".")
	if err != nil || !ok || dot.Inode != RootInode {
		t.Fatalf(". entry disturbed by insert: ok=%v err=%v entry=%+v", ok, err, dot)
	}
	dotdot, ok, err := lookupInDir(buf, "..")
	if err != nil || !ok || dotdot.Inode != RootInode {
		t.Fatalf(".. entry disturbed by insert: ok=%v err=%v entry=%+v", ok, err, dotdot)
	}
	newEntry, ok, err := lookupInDir(buf, "hello.txt")
	if err != nil || !ok || newEntry.Inode != 11 {
		t.Fatalf("new entry not found after insert: ok=%v err=%v entry=%+v", ok, err, newEntry)
	}
}

func TestRemoveEntryCollapsesRecord(t *testing.T) {
	blockSize := int64(1024)
	buf := make([]byte, blockSize)
	dotLen := minDirentLen(1)
	encodeDirent(buf, 0, Dirent{Inode: RootInode, NameLen: 1, FileType: FileTypeDir, Name: ".", RecLen: uint16(dotLen)})
	dotdotLen := minDirentLen(2)
	encodeDirent(buf, dotLen, Dirent{Inode: RootInode, NameLen: 2, FileType: FileTypeDir, Name: "..", RecLen: uint16(dotdotLen)})
	if err := insertEntry(buf, 11, "a.txt", KindRegular); err != nil {
		t.Fatalf("insertEntry: %v", err)
	}
	if err := insertEntry(buf, 12, "b.txt", KindRegular); err != nil {
		t.Fatalf("insertEntry: %v", err)
	}

	removed, err := removeEntry(buf, "a.txt")
	if err != nil {
		t.Fatalf("removeEntry: %v", err)
	}
	if removed.Inode != 11 {
		t.Fatalf("removed wrong entry: %+v", removed)
	}

	if _, ok, _ := lookupInDir(buf, "a.txt"); ok {
		t.Fatalf("a.txt should no longer be found")
	}
	entry, ok, err := lookupInDir(buf, "b.txt")
	if err != nil || !ok || entry.Inode != 12 {
		t.Fatalf("b.txt should survive removal of a.txt: ok=%v err=%v entry=%+v", ok, err, entry)
	}

	// the preceding entry's rec_len must now reach across the freed slot.
	dd, err := decodeDirent(buf, dotLen)
	if err != nil {
		t.Fatalf("decodeDirent(..): %v", err)
	}
	next, err := decodeDirent(buf, dotLen+int64(dd.RecLen))
	if err != nil {
		t.Fatalf("decodeDirent after collapsed record: %v", err)
	}
	if next.Name != "b.txt" {
		t.Fatalf("collapsed rec_len should walk straight to b.txt, got %q", next.Name)
	}
}

func TestLookupInDirExactNameLengthMatch(t *testing.T) {
	blockSize := int64(1024)
	buf := make([]byte, blockSize)
	nameLen := minDirentLen(2)
	encodeDirent(buf, 0, Dirent{Inode: 5, NameLen: 2, FileType: FileTypeReg, Name: "ab", RecLen: uint16(blockSize - nameLen + nameLen)})
	encodeDirent(buf, 0, Dirent{Inode: 5, NameLen: 2, FileType: FileTypeReg, Name: "ab", RecLen: uint16(blockSize)})

	if _, ok, _ := lookupInDir(buf, "a"); ok {
		t.Fatalf("a prefix of ab must not match")
	}
	entry, ok, err := lookupInDir(buf, "ab")
	if err != nil || !ok || entry.Inode != 5 {
		t.Fatalf("exact match ab should be found: ok=%v err=%v", ok, err)
	}
}

func TestSplitParentChild(t *testing.T) {
	cases := []struct{ path, parent, name string }{
		{"/a", "/", "a"},
		{"/a/b/c", "/a/b", "c"},
		{"/", "/", ""},
	}
	for _, c := range cases {
		parent, name := splitParentChild(c.path)
		if parent != c.parent || name != c.name {
			t.Errorf("splitParentChild(%q) = (%q, %q), want (%q, %q)", c.path, parent, name, c.parent, c.name)
		}
	}
}
