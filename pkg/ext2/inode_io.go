package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// Byte-level inode I/O: read/write at an arbitrary byte offset, bridging
// the file's flat byte-address space onto the block-indexed address tree,
// via a lazily-allocated bounce buffer for partial blocks. Grounded
// directly on inode_read_at/inode_write_at in the original inode.c.

// ReadAt reads up to len(buf) bytes from inode starting at offset and
// returns the number of bytes actually read. A short read (fewer bytes
// than requested) is not itself an error — it happens naturally at EOF.
func (fs *Filesystem) ReadAt(inode *Inode, buf []byte, offset int64) (int, error) {
	blockSize := fs.sb.BlockSize()
	var bounce []byte
	read := 0
	remaining := int64(len(buf))

	for remaining > 0 {
		blockIdx := offset / blockSize
		blockOfs := offset % blockSize

		blockID, err := fs.GetDataBlock(inode, blockIdx)
		if err != nil {
			return read, err
		}

		inodeLeft := int64(inode.Size()) - offset
		blockLeft := blockSize - blockOfs
		minLeft := inodeLeft
		if blockLeft < minLeft {
			minLeft = blockLeft
		}
		chunk := remaining
		if minLeft < chunk {
			chunk = minLeft
		}
		if chunk <= 0 {
			break
		}

		if blockOfs == 0 && chunk == blockSize {
			if _, err := ReadBlock(fs.dev, blockID, blockSize, buf[read:read+int(chunk)]); err != nil {
				return read, err
			}
		} else {
			if bounce == nil {
				bounce = make([]byte, blockSize)
			}
			if _, err := ReadBlock(fs.dev, blockID, blockSize, bounce); err != nil {
				return read, err
			}
			copy(buf[read:read+int(chunk)], bounce[blockOfs:blockOfs+chunk])
		}

		remaining -= chunk
		offset += chunk
		read += int(chunk)
	}

	return read, nil
}

// WriteAt grows inode, if necessary, so it can hold offset+len(buf) bytes,
// then writes buf at offset, returning the number of bytes actually
// written. A write that doesn't reach the current end of file never
// shrinks it. The caller is responsible for persisting the inode record
// afterward.
func (fs *Filesystem) WriteAt(inode *Inode, buf []byte, offset int64) (int, error) {
	need := offset + int64(len(buf))
	if need > int64(inode.Size()) {
		if err := fs.Resize(inode, uint32(need)); err != nil {
			return 0, err
		}
	}

	blockSize := fs.sb.BlockSize()
	var bounce []byte
	written := 0
	remaining := int64(len(buf))

	for remaining > 0 {
		blockIdx := offset / blockSize
		blockOfs := offset % blockSize

		blockID, err := fs.GetDataBlock(inode, blockIdx)
		if err != nil {
			return written, err
		}

		inodeLeft := int64(inode.Size()) - offset
		blockLeft := blockSize - blockOfs
		minLeft := inodeLeft
		if blockLeft < minLeft {
			minLeft = blockLeft
		}
		chunk := remaining
		if minLeft < chunk {
			chunk = minLeft
		}
		if chunk <= 0 {
			break
		}

		if blockOfs == 0 && chunk == blockSize {
			if err := WriteBlock(fs.dev, blockID, blockSize, buf[written:written+int(chunk)]); err != nil {
				return written, err
			}
		} else {
			if bounce == nil {
				bounce = make([]byte, blockSize)
			}
			if _, err := ReadBlock(fs.dev, blockID, blockSize, bounce); err != nil {
				return written, err
			}
			copy(bounce[blockOfs:blockOfs+chunk], buf[written:written+int(chunk)])
			if err := WriteBlock(fs.dev, blockID, blockSize, bounce); err != nil {
				return written, err
			}
		}

		remaining -= chunk
		offset += chunk
		written += int(chunk)
	}

	return written, nil
}
