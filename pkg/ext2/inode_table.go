package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// readInode fetches a fresh copy of the 1-based inode record. The result is
// a transient snapshot — there is deliberately no shared inode cache, so
// callers must call writeInode explicitly after any mutation.
func (fs *Filesystem) readInode(inodeNum uint32) (*Inode, error) {
	if inodeNum == 0 {
		return nil, fmt.Errorf("ext2: inode 0 does not exist")
	}
	group, local := fs.inodeLocation(inodeNum)
	if group < 0 || group >= int64(len(fs.groups)) {
		corrupt("inode %d maps to out-of-range group %d", inodeNum, group)
	}

	blockSize := fs.sb.BlockSize()
	inodesPerBlock := blockSize / InodeSize
	block := int64(fs.groups[group].InodeTable) + local/inodesPerBlock
	offset := (local % inodesPerBlock) * InodeSize

	buf := make([]byte, blockSize)
	if _, err := ReadBlock(fs.dev, block, blockSize, buf); err != nil {
		return nil, fmt.Errorf("ext2: reading inode table block for inode %d: %w", inodeNum, err)
	}

	var ino Inode
	if err := binary.Read(bytes.NewReader(buf[offset:offset+InodeSize]), binary.LittleEndian, &ino); err != nil {
		return nil, fmt.Errorf("ext2: decoding inode %d: %w", inodeNum, err)
	}
	return &ino, nil
}

// writeInode persists ino as the record for the given 1-based inode
// number, read-modify-write against the containing inode-table block.
func (fs *Filesystem) writeInode(inodeNum uint32, ino *Inode) error {
	if inodeNum == 0 {
		return fmt.Errorf("ext2: cannot write inode 0")
	}
	group, local := fs.inodeLocation(inodeNum)
	if group < 0 || group >= int64(len(fs.groups)) {
		corrupt("inode %d maps to out-of-range group %d", inodeNum, group)
	}

	blockSize := fs.sb.BlockSize()
	inodesPerBlock := blockSize / InodeSize
	block := int64(fs.groups[group].InodeTable) + local/inodesPerBlock
	offset := (local % inodesPerBlock) * InodeSize

	buf := make([]byte, blockSize)
	if _, err := ReadBlock(fs.dev, block, blockSize, buf); err != nil {
		return fmt.Errorf("ext2: reading inode table block for inode %d: %w", inodeNum, err)
	}

	var rec bytes.Buffer
	if err := binary.Write(&rec, binary.LittleEndian, ino); err != nil {
		return fmt.Errorf("ext2: encoding inode %d: %w", inodeNum, err)
	}
	copy(buf[offset:offset+InodeSize], rec.Bytes())

	if err := WriteBlock(fs.dev, block, blockSize, buf); err != nil {
		return fmt.Errorf("ext2: writing inode table block for inode %d: %w", inodeNum, err)
	}
	return nil
}
