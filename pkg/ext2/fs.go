package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// The filesystem facade: Open/Create/Remove by path, on top of the
// directory walker and the per-handle operations in handle.go. Grounded on
// filesys_open/filesys_create/filesys_remove in filesys.c.

// formatRoot populates the fixed root inode (2), already reserved in the
// inode bitmap by Format, with a single block containing "." and ".."
// entries, both pointing at itself. Called once, at the end of Format.
func (fs *Filesystem) formatRoot() error {
	var root Inode
	root.Mode = ModeTypeDir | DefaultPerm
	root.LinksCount = 2

	blockSize := fs.sb.BlockSize()
	if err := fs.Resize(&root, uint32(blockSize)); err != nil {
		return err
	}

	buf := make([]byte, blockSize)
	dotLen := minDirentLen(1)
	encodeDirent(buf, 0, Dirent{Inode: RootInode, NameLen: 1, FileType: FileTypeDir, Name: ".", RecLen: uint16(dotLen)})
	encodeDirent(buf, dotLen, Dirent{Inode: RootInode, NameLen: 2, FileType: FileTypeDir, Name: "..", RecLen: uint16(blockSize - dotLen)})

	if _, err := fs.WriteAt(&root, buf, 0); err != nil {
		return err
	}
	return fs.writeInode(RootInode, &root)
}

// ReadDir resolves path to a directory and returns its live entries (those
// with a nonzero inode number), skipping "." and "..". Grounded on the
// directory-walking loop shared by dir_lookup/dir_get_next in directory.c,
// applied here to enumerate rather than search.
func (fs *Filesystem) ReadDir(path string) ([]Dirent, error) {
	entry, err := fs.lookup(path)
	if err != nil {
		return nil, err
	}
	if entry.FileType != FileTypeDir {
		return nil, ErrNotDirectory
	}
	inode, err := fs.readInode(entry.Inode)
	if err != nil {
		return nil, err
	}
	buf, err := fs.readDirData(inode)
	if err != nil {
		return nil, err
	}

	var out []Dirent
	pos := int64(0)
	for pos < int64(len(buf)) {
		e, err := decodeDirent(buf, pos)
		if err != nil {
			return nil, err
		}
		if e.Inode != 0 && e.Name != "." && e.Name != ".." {
			out = append(out, e)
		}
		pos += int64(e.RecLen)
	}
	return out, nil
}

// Open resolves path and returns a handle on the inode it names.
func (fs *Filesystem) Open(path string) (*Handle, error) {
	entry, err := fs.lookup(path)
	if err != nil {
		return nil, err
	}
	inode, err := fs.readInode(entry.Inode)
	if err != nil {
		return nil, err
	}
	return &Handle{fs: fs, dirent: entry, inode: *inode}, nil
}

// Create makes a new regular file or directory at path, sized to
// initialSize bytes (directories ignore initialSize and are sized to one
// block so they can hold "." and ".."), and returns a handle on it. It
// rejects a path that already exists.
func (fs *Filesystem) Create(path string, initialSize uint32, kind FileKind, perm uint16) (*Handle, error) {
	if _, err := fs.lookup(path); err == nil {
		return nil, ErrExists
	} else if err != ErrNotFound {
		return nil, err
	}

	parentPath, name := splitParentChild(path)
	if name == "" {
		return nil, ErrExists // attempting to (re-)create the root
	}

	parentEntry, err := fs.lookup(parentPath)
	if err != nil {
		return nil, err
	}
	if parentEntry.FileType != FileTypeDir {
		return nil, ErrNotDirectory
	}

	parentInode, err := fs.readInode(parentEntry.Inode)
	if err != nil {
		return nil, err
	}
	buf, err := fs.readDirData(parentInode)
	if err != nil {
		return nil, err
	}

	inodeNum, err := fs.AllocInode()
	if err != nil {
		return nil, err
	}

	if err := insertEntry(buf, inodeNum, name, kind); err != nil {
		fs.FreeInode(inodeNum) //nolint:errcheck // best-effort unwind of the inode we just grabbed
		return nil, err
	}

	var newInode Inode
	mode := uint16(perm) & ModePermMask
	if kind == KindDirectory {
		mode |= ModeTypeDir
	} else {
		mode |= ModeTypeReg
	}
	newInode.Mode = mode
	newInode.LinksCount = 1

	size := initialSize
	if kind == KindDirectory {
		size = uint32(fs.sb.BlockSize())
	}
	if err := fs.Resize(&newInode, size); err != nil {
		return nil, err
	}

	if kind == KindDirectory {
		newInode.LinksCount = 2
		dirBuf := make([]byte, size)
		dotLen := minDirentLen(1)
		encodeDirent(dirBuf, 0, Dirent{Inode: inodeNum, NameLen: 1, FileType: FileTypeDir, Name: ".", RecLen: uint16(dotLen)})
		encodeDirent(dirBuf, dotLen, Dirent{Inode: parentEntry.Inode, NameLen: 2, FileType: FileTypeDir, Name: "..", RecLen: uint16(int64(size) - dotLen)})
		if _, err := fs.WriteAt(&newInode, dirBuf, 0); err != nil {
			return nil, err
		}
	}

	if err := fs.writeInode(inodeNum, &newInode); err != nil {
		return nil, err
	}
	if err := fs.writeDirData(parentInode, buf); err != nil {
		return nil, err
	}

	entry := Dirent{Inode: inodeNum, FileType: fileTypeFor(kind), Name: name}
	return &Handle{fs: fs, dirent: entry, inode: newInode}, nil
}

// Remove deletes the regular file at path: it frees every data and
// indirect block the file owns, zeroes its inode record, frees the inode
// number, and collapses its directory entry into the one before it.
func (fs *Filesystem) Remove(path string) error {
	entry, err := fs.lookup(path)
	if err != nil {
		return err
	}
	if entry.FileType != FileTypeReg {
		return ErrNotRegular
	}

	parentPath, name := splitParentChild(path)
	parentEntry, err := fs.lookup(parentPath)
	if err != nil {
		return err
	}
	parentInode, err := fs.readInode(parentEntry.Inode)
	if err != nil {
		return err
	}
	buf, err := fs.readDirData(parentInode)
	if err != nil {
		return err
	}

	removed, err := removeEntry(buf, name)
	if err != nil {
		return err
	}

	fileInode, err := fs.readInode(removed.Inode)
	if err != nil {
		return err
	}
	if err := fs.Resize(fileInode, 0); err != nil {
		return err
	}
	if err := fs.writeInode(removed.Inode, &Inode{}); err != nil {
		return err
	}
	if err := fs.FreeInode(removed.Inode); err != nil {
		return err
	}

	return fs.writeDirData(parentInode, buf)
}
