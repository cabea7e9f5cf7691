package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import "strings"

// The directory walker: path lookup rooted at inode 2, plus the entry
// creation/removal primitives the facade builds Create/Remove out of.
// Grounded on dir_lookup/dir_lookup_current/dir_get_next in directory.c
// and the directory-rewrite sequences in filesys_create/filesys_remove.

// readDirData loads a directory inode's entire data into memory — callers
// mutate the returned buffer and hand it back to writeDirData as a whole.
func (fs *Filesystem) readDirData(inode *Inode) ([]byte, error) {
	buf := make([]byte, inode.Size())
	if _, err := fs.ReadAt(inode, buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// writeDirData rewrites a directory's entire data in one pass.
func (fs *Filesystem) writeDirData(inode *Inode, buf []byte) error {
	_, err := fs.WriteAt(inode, buf, 0)
	return err
}

// lookupInDir scans a single directory's buffer for an entry named name,
// comparing exactly NameLen bytes and requiring an exact length match —
// the original's dir_lookup_current does an unterminated memcmp here,
// which can false-match on a name that's merely a prefix (§9's documented
// bug); this fixes that instead of reproducing it.
func lookupInDir(buf []byte, name string) (Dirent, bool, error) {
	pos := int64(0)
	for pos < int64(len(buf)) {
		entry, err := decodeDirent(buf, pos)
		if err != nil {
			return Dirent{}, false, err
		}
		if entry.Inode == 0 {
			break
		}
		if int(entry.NameLen) == len(name) && entry.Name == name {
			return entry, true, nil
		}
		pos += int64(entry.RecLen)
	}
	return Dirent{}, false, nil
}

// lookup resolves a '/'-separated path rooted at inode 2, returning the
// final path component's entry and its inode number.
func (fs *Filesystem) lookup(p string) (Dirent, error) {
	components := splitComponents(p)

	curNum := uint32(RootInode)
	curInode, err := fs.readInode(curNum)
	if err != nil {
		return Dirent{}, err
	}

	if len(components) == 0 {
		return Dirent{Inode: RootInode, FileType: FileTypeDir, Name: "."}, nil
	}

	var entry Dirent
	for i, name := range components {
		if !curInode.IsDir() {
			return Dirent{}, ErrNotDirectory
		}
		buf, err := fs.readDirData(curInode)
		if err != nil {
			return Dirent{}, err
		}
		found, ok, err := lookupInDir(buf, name)
		if err != nil {
			return Dirent{}, err
		}
		if !ok {
			return Dirent{}, ErrNotFound
		}
		entry = found

		if i < len(components)-1 {
			if entry.FileType != FileTypeDir {
				return Dirent{}, ErrNotDirectory
			}
			curNum = entry.Inode
			curInode, err = fs.readInode(curNum)
			if err != nil {
				return Dirent{}, err
			}
		}
	}
	return entry, nil
}

// splitComponents splits an absolute, '/'-separated path into its
// non-empty components. "/" and "" both map to the root (zero components).
func splitComponents(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, c := range parts {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// splitParentChild splits an absolute path into its parent directory path
// and final component name, e.g. "/a/b/c" -> ("/a/b", "c"), "/x" -> ("/", "x").
func splitParentChild(p string) (parent, name string) {
	components := splitComponents(p)
	if len(components) == 0 {
		return "/", ""
	}
	name = components[len(components)-1]
	if len(components) == 1 {
		return "/", name
	}
	return "/" + strings.Join(components[:len(components)-1], "/"), name
}

// findLastDirEntry walks buf's rec_len chain to the entry that terminates
// the chain — either because its own rec_len reaches the end of buf (the
// normal "last live entry"), or because it's a tombstone. Grounded on
// filesys_create's last-entry walk.
func findLastDirEntry(buf []byte) (int64, Dirent, error) {
	pos := int64(0)
	for {
		cur, err := decodeDirent(buf, pos)
		if err != nil {
			return 0, Dirent{}, err
		}
		pos += int64(cur.RecLen)
		if pos >= int64(len(buf)) {
			return 0, Dirent{}, corruptDirNoRoom()
		}
		next, err := decodeDirent(buf, pos)
		if err != nil {
			return 0, Dirent{}, err
		}
		if next.Inode == 0 {
			return pos, next, nil
		}
		if pos+int64(next.RecLen) >= int64(len(buf)) {
			return pos, next, nil
		}
	}
}

func corruptDirNoRoom() error {
	return ErrCorrupt
}

// insertEntry places a new entry for (inodeNum, name, kind) into a
// directory buffer already holding at least one entry, reusing or
// shrinking the current last entry exactly as filesys_create does. buf is
// mutated in place.
func insertEntry(buf []byte, inodeNum uint32, name string, kind FileKind) error {
	lastPos, lastEntry, err := findLastDirEntry(buf)
	if err != nil {
		return err
	}

	newPos := lastPos
	if lastEntry.Inode != 0 {
		lastEntry.RecLen = uint16(minDirentLen(int(lastEntry.NameLen)))
		encodeDirent(buf, lastPos, lastEntry)
		newPos = lastPos + int64(lastEntry.RecLen)
		if newPos >= int64(len(buf)) {
			return ErrNoSpace
		}
	}

	nameLen := len(name)
	if nameLen > 255 {
		nameLen = 255
	}
	entry := Dirent{
		Inode:    inodeNum,
		NameLen:  uint8(nameLen),
		FileType: fileTypeFor(kind),
		Name:     name[:nameLen],
		RecLen:   uint16(int64(len(buf)) - newPos),
	}
	encodeDirent(buf, newPos, entry)
	return nil
}

// removeEntry locates the entry named name, absorbs its rec_len into the
// entry immediately preceding it (so iteration skips straight over the
// freed slot), and returns the removed entry.
func removeEntry(buf []byte, name string) (Dirent, error) {
	pos := int64(0)
	prevPos := int64(-1)

	for {
		entry, err := decodeDirent(buf, pos)
		if err != nil {
			return Dirent{}, err
		}
		if int(entry.NameLen) == len(name) && entry.Name == name {
			if prevPos >= 0 {
				prev, err := decodeDirent(buf, prevPos)
				if err != nil {
					return Dirent{}, err
				}
				if prev.Inode != 0 {
					prev.RecLen += entry.RecLen
					encodeDirent(buf, prevPos, prev)
				}
			}
			return entry, nil
		}
		next := pos + int64(entry.RecLen)
		if next >= int64(len(buf)) {
			return Dirent{}, ErrNotFound
		}
		prevPos = pos
		pos = next
	}
}
