package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// The free-space allocator. allocatorLock serialises every mutation of
// bitmaps, group counters, and the superblock — grounded directly in the
// original free-map's single freemap_lock guarding scan_and_flip plus the
// counter/bitmap/superblock/BGDT write-back sequence that follows it.

// blockGroup returns the group index and in-group bit position for an
// absolute block id.
func (fs *Filesystem) blockGroup(blockID int64) (group, local int64) {
	rel := blockID - int64(fs.sb.FirstDataBlock)
	return rel / int64(fs.sb.BlocksPerGroup), rel % int64(fs.sb.BlocksPerGroup)
}

// inodeLocation returns the group index and in-group bit position for a
// 1-based inode number.
func (fs *Filesystem) inodeLocation(inodeNum uint32) (group, local int64) {
	rel := int64(inodeNum) - 1
	return rel / int64(fs.sb.InodesPerGroup), rel % int64(fs.sb.InodesPerGroup)
}

func (fs *Filesystem) groupBlockBitmap(group int64) (*Bitmap, []byte, error) {
	blockSize := fs.sb.BlockSize()
	buf := make([]byte, blockSize)
	if _, err := ReadBlock(fs.dev, int64(fs.groups[group].BlockBitmap), blockSize, buf); err != nil {
		return nil, nil, err
	}
	return NewBitmap(buf, int64(fs.sb.BlocksPerGroup)), buf, nil
}

func (fs *Filesystem) groupInodeBitmap(group int64) (*Bitmap, []byte, error) {
	blockSize := fs.sb.BlockSize()
	buf := make([]byte, blockSize)
	if _, err := ReadBlock(fs.dev, int64(fs.groups[group].InodeBitmap), blockSize, buf); err != nil {
		return nil, nil, err
	}
	return NewBitmap(buf, int64(fs.sb.InodesPerGroup)), buf, nil
}

// AllocBlocks scans groups 1..G-1 for the first group with at least n free
// blocks (group 0 holds the superblock/BGDT metadata and is skipped —
// unless it is the filesystem's only group, in which case it must serve
// every allocation). On success it returns the id of the first of n
// contiguous newly-allocated blocks, optionally zero-filled.
func (fs *Filesystem) AllocBlocks(n int64, zero bool) (int64, error) {
	fs.allocatorLock.Lock()
	defer fs.allocatorLock.Unlock()

	groups := int64(len(fs.groups))
	startGroup := int64(1)
	if groups == 1 {
		startGroup = 0
	}

	for g := startGroup; g < groups; g++ {
		if int64(fs.groups[g].FreeBlocks) < n {
			continue
		}
		bm, buf, err := fs.groupBlockBitmap(g)
		if err != nil {
			return 0, err
		}
		local := bm.ScanAndFlip(0, n, false)
		if local == notFound {
			continue
		}

		blockSize := fs.sb.BlockSize()
		if err := WriteBlock(fs.dev, int64(fs.groups[g].BlockBitmap), blockSize, buf); err != nil {
			return 0, err
		}

		absolute := int64(fs.sb.FirstDataBlock) + g*int64(fs.sb.BlocksPerGroup) + local
		fs.groups[g].FreeBlocks -= uint16(n)
		fs.sb.FreeBlocks -= uint32(n)
		if err := fs.writeGroups(); err != nil {
			return 0, err
		}
		if err := fs.writeSuperblock(); err != nil {
			return 0, err
		}

		if zero {
			zeroBuf := make([]byte, blockSize)
			for i := int64(0); i < n; i++ {
				if err := WriteBlock(fs.dev, absolute+i, blockSize, zeroBuf); err != nil {
					return 0, err
				}
			}
		}

		fs.log.Debugf("ext2: alloc_blocks(n=%d, zero=%v) -> group %d, block %d", n, zero, g, absolute)
		return absolute, nil
	}

	return 0, ErrNoSpace
}

// FreeBlocks releases n contiguous blocks starting at blockID. Freeing an
// already-free block is a corruption-class bug, not a recoverable error —
// it means the bitmap and some inode's address tree have already
// diverged.
func (fs *Filesystem) FreeBlocks(blockID int64, n int64) error {
	fs.allocatorLock.Lock()
	defer fs.allocatorLock.Unlock()

	g, local := fs.blockGroup(blockID)
	bm, buf, err := fs.groupBlockBitmap(g)
	if err != nil {
		return err
	}
	if !bm.TestAllInRange(local, n, true) {
		corrupt("freeing block range [%d, %d) in group %d that is not fully allocated", local, local+n, g)
	}
	bm.SetRange(local, n, false)

	blockSize := fs.sb.BlockSize()
	if err := WriteBlock(fs.dev, int64(fs.groups[g].BlockBitmap), blockSize, buf); err != nil {
		return err
	}

	fs.groups[g].FreeBlocks += uint16(n)
	fs.sb.FreeBlocks += uint32(n)
	if err := fs.writeGroups(); err != nil {
		return err
	}
	if err := fs.writeSuperblock(); err != nil {
		return err
	}

	fs.log.Debugf("ext2: free_blocks(block=%d, n=%d) in group %d", blockID, n, g)
	return nil
}

// AllocInode scans groups 1..G-1 (with the same group-0 exception as
// AllocBlocks) for a free inode slot and returns its 1-based number.
func (fs *Filesystem) AllocInode() (uint32, error) {
	fs.allocatorLock.Lock()
	defer fs.allocatorLock.Unlock()

	groups := int64(len(fs.groups))
	startGroup := int64(1)
	if groups == 1 {
		startGroup = 0
	}

	for g := startGroup; g < groups; g++ {
		if fs.groups[g].FreeInodes == 0 {
			continue
		}
		bm, buf, err := fs.groupInodeBitmap(g)
		if err != nil {
			return 0, err
		}
		local := bm.ScanAndFlip(0, 1, false)
		if local == notFound {
			continue
		}

		blockSize := fs.sb.BlockSize()
		if err := WriteBlock(fs.dev, int64(fs.groups[g].InodeBitmap), blockSize, buf); err != nil {
			return 0, err
		}

		fs.groups[g].FreeInodes--
		fs.sb.FreeInodes--
		if err := fs.writeGroups(); err != nil {
			return 0, err
		}
		if err := fs.writeSuperblock(); err != nil {
			return 0, err
		}

		num := uint32(g*int64(fs.sb.InodesPerGroup)+local) + 1
		fs.log.Debugf("ext2: alloc_inode() -> group %d, inode %d", g, num)
		return num, nil
	}

	return 0, ErrNoSpace
}

// FreeInode releases a 1-based inode number.
func (fs *Filesystem) FreeInode(inodeNum uint32) error {
	fs.allocatorLock.Lock()
	defer fs.allocatorLock.Unlock()

	g, local := fs.inodeLocation(inodeNum)
	bm, buf, err := fs.groupInodeBitmap(g)
	if err != nil {
		return err
	}
	if !bm.Test(local) {
		corrupt("freeing inode %d that is already free", inodeNum)
	}
	bm.Set(local, false)

	blockSize := fs.sb.BlockSize()
	if err := WriteBlock(fs.dev, int64(fs.groups[g].InodeBitmap), blockSize, buf); err != nil {
		return err
	}

	fs.groups[g].FreeInodes++
	fs.sb.FreeInodes++
	if err := fs.writeGroups(); err != nil {
		return err
	}
	if err := fs.writeSuperblock(); err != nil {
		return err
	}

	fs.log.Debugf("ext2: free_inode(%d) in group %d", inodeNum, g)
	return nil
}
