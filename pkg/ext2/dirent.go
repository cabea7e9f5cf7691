package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// Directory entries are variable-length, so they're abstracted through a
// cursor that reads inode/rec_len/name_len/type/name by field offset
// directly off the directory's byte buffer — never through a fixed-size
// struct view, since the maximum name length doesn't fit one (the
// original's `name[UINT8_MAX]` trick isn't portable, per §9).

// Dirent is one decoded directory entry.
type Dirent struct {
	Inode    uint32
	RecLen   uint16
	NameLen  uint8
	FileType uint8
	Name     string
}

// minDirentLen returns the smallest 4-byte-aligned rec_len that can hold a
// name of length n.
func minDirentLen(n int) int64 {
	return align(int64(dentryHeaderSize+n), dentryNameAlignment)
}

// decodeDirent reads one entry at byte offset off of buf.
func decodeDirent(buf []byte, off int64) (Dirent, error) {
	if off < 0 || off+dentryHeaderSize > int64(len(buf)) {
		return Dirent{}, ErrCorrupt
	}
	var d Dirent
	d.Inode = leUint32(buf[off:])
	d.RecLen = uint16(buf[off+4]) | uint16(buf[off+5])<<8
	d.NameLen = buf[off+6]
	d.FileType = buf[off+7]

	if d.Inode == 0 && d.RecLen == 0 {
		// never-written space past the live entry chain, not a corrupt
		// record — callers treat Inode == 0 as the chain's stopping point.
		return d, nil
	}

	nameEnd := off + dentryHeaderSize + int64(d.NameLen)
	if d.RecLen < dentryHeaderSize || nameEnd > int64(len(buf)) {
		return Dirent{}, ErrCorrupt
	}
	d.Name = string(buf[off+dentryHeaderSize : nameEnd])
	return d, nil
}

// encodeDirent writes d at byte offset off of buf. buf must already be
// sized to hold the entry's header plus name.
func encodeDirent(buf []byte, off int64, d Dirent) {
	putLeUint32(buf[off:], d.Inode)
	buf[off+4] = byte(d.RecLen)
	buf[off+5] = byte(d.RecLen >> 8)
	buf[off+6] = d.NameLen
	buf[off+7] = d.FileType
	copy(buf[off+dentryHeaderSize:off+dentryHeaderSize+int64(d.NameLen)], d.Name)
}

// fileTypeFor maps a FileKind to its on-disk directory-entry file type.
func fileTypeFor(kind FileKind) uint8 {
	switch kind {
	case KindDirectory:
		return FileTypeDir
	default:
		return FileTypeReg
	}
}
