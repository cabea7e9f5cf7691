package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// The address-tree engine: translating a linear file-block index into a
// physical device-block id through the direct + 1/2/3-level indirect
// trees, and growing or shrinking that tree in place. Grounded directly on
// inode_resize/inode_expand_range/inode_shrink_range/inode_range_compare in
// the original inode.c — this is the one component where the Go version
// keeps the original's control flow almost line for line, since the
// algorithm itself (not its expression) is the hard part.

// rangeFlags mirrors the original's `enum RANGE` bitset.
type rangeFlags int

const (
	rangeOverlap rangeFlags = 1 << iota
	rangeContains
	rangeContained
	rangeAhead
	rangeBehind
)

// rangeCompare reports how [start1, end1] relates to [start2, end2],
// both ranges inclusive.
func rangeCompare(start1, end1, start2, end2 int64) rangeFlags {
	if end1 < start2 {
		return rangeAhead
	}
	if end2 < start1 {
		return rangeBehind
	}
	r := rangeOverlap
	if start1 <= start2 && end1 >= end2 {
		r |= rangeContains
	}
	if start2 <= start1 && end2 >= end1 {
		r |= rangeContained
	}
	return r
}

// directBlockIdx returns the linear file-block index addressed by the
// (l0, l1, l2, l3) coordinate within the direct/indirect tree, where l0
// selects among direct (<12), single (12), double (13), or triple (14).
func directBlockIdx(itemsPerBlock, l0, l1, l2, l3 int64) int64 {
	switch {
	case l0 < DirectPointers:
		return l0
	case l0 == DirectPointers:
		return DirectPointers + l1
	case l0 == DirectPointers+1:
		return DirectPointers + itemsPerBlock + l1*itemsPerBlock + l2
	case l0 == DirectPointers+2:
		return DirectPointers + itemsPerBlock + itemsPerBlock*itemsPerBlock +
			l1*itemsPerBlock*itemsPerBlock + l2*itemsPerBlock + l3
	}
	corrupt("directBlockIdx: l0=%d out of range", l0)
	return 0
}

// indirectOverhead returns the number of index blocks required to address
// fsBlocks leaves, per the formula in spec §4.4.
func indirectOverhead(fsBlocks, itemsPerBlock int64) int64 {
	blocks := fsBlocks - DirectPointers
	overhead := int64(0)
	if blocks < 1 {
		return overhead
	}

	overhead++
	blocks -= itemsPerBlock
	if blocks < 1 {
		return overhead
	}

	overhead++
	if blocks <= itemsPerBlock*itemsPerBlock {
		overhead += divide(blocks, itemsPerBlock)
		return overhead
	}
	overhead += itemsPerBlock
	blocks -= itemsPerBlock * itemsPerBlock

	overhead++
	overhead += divide(blocks, itemsPerBlock*itemsPerBlock)
	overhead += divide(blocks, itemsPerBlock)
	return overhead
}

// readIndirect reads an index block as a slice of itemsPerBlock uint32
// entries.
func (fs *Filesystem) readIndirect(blockID int64, itemsPerBlock int64) ([]uint32, error) {
	raw, err := ReadBlock(fs.dev, blockID, itemsPerBlock*pointerSize, nil)
	if err != nil {
		return nil, err
	}
	entries := make([]uint32, itemsPerBlock)
	for i := int64(0); i < itemsPerBlock; i++ {
		entries[i] = leUint32(raw[i*pointerSize:])
	}
	return entries, nil
}

// writeIndirect persists entries back to blockID.
func (fs *Filesystem) writeIndirect(blockID int64, entries []uint32) error {
	itemsPerBlock := int64(len(entries))
	raw := make([]byte, itemsPerBlock*pointerSize)
	for i, v := range entries {
		putLeUint32(raw[int64(i)*pointerSize:], v)
	}
	return WriteBlock(fs.dev, blockID, itemsPerBlock*pointerSize, raw)
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLeUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// GetDataBlock follows the appropriate path of inode's address tree and
// returns the physical block id addressed by logical block index idx. An
// unallocated entry found mid-tree is treated as caller error, per §4.4 —
// it means the caller asked for a block index beyond what the inode has
// actually been resized to cover.
func (fs *Filesystem) GetDataBlock(inode *Inode, idx int64) (int64, error) {
	itemsPerBlock := fs.sb.ItemsPerBlock()

	remaining := idx
	if remaining < DirectPointers {
		return int64(inode.Block[remaining]), nil
	}
	remaining -= DirectPointers

	level := itemsPerBlock
	if remaining < level {
		return fs.traverseLinklist(int64(inode.Block[singleIndirectSlot]), remaining, 0)
	}
	remaining -= level

	level *= itemsPerBlock
	if remaining < level {
		return fs.traverseLinklist(int64(inode.Block[doubleIndirectSlot]), remaining, 1)
	}
	remaining -= level

	level *= itemsPerBlock
	if remaining < level {
		return fs.traverseLinklist(int64(inode.Block[tripleIndirectSlot]), remaining, 2)
	}

	corrupt("file block index %d exceeds the triple-indirect addressable range", idx)
	return 0, nil
}

// traverseLinklist walks `level` additional levels of indirection below
// blockID to find the idx-th leaf.
func (fs *Filesystem) traverseLinklist(blockID int64, idx int64, level int) (int64, error) {
	itemsPerBlock := fs.sb.ItemsPerBlock()

	idsPerEntry := int64(1)
	for i := 0; i < level; i++ {
		idsPerEntry *= itemsPerBlock
	}
	tableIdx := idx / idsPerEntry

	entries, err := fs.readIndirect(blockID, itemsPerBlock)
	if err != nil {
		return 0, err
	}
	next := int64(entries[tableIdx])

	if level > 0 {
		return fs.traverseLinklist(next, idx-tableIdx*idsPerEntry, level-1)
	}
	return next, nil
}

// Resize grows or shrinks inode's address tree so it can hold exactly
// newSize bytes, allocating or releasing data and index blocks as needed,
// and updates i_size/i_blocks to match. On mid-resize allocation failure,
// already-persisted bitmap mutations are NOT rolled back — see DESIGN.md's
// Open Question ledger for why this matches the original's behavior rather
// than adding transactional semantics the rest of the engine doesn't have.
func (fs *Filesystem) Resize(inode *Inode, newSize uint32) error {
	blockSize := fs.sb.BlockSize()
	itemsPerBlock := fs.sb.ItemsPerBlock()

	fsBlocks := divide(int64(newSize), blockSize)
	oldFsBlocks := divide(int64(inode.Size()), blockSize)
	overhead := indirectOverhead(fsBlocks, itemsPerBlock)

	if fsBlocks != oldFsBlocks {
		var err error
		if fsBlocks > oldFsBlocks {
			err = fs.expand(inode, oldFsBlocks, fsBlocks, itemsPerBlock)
		} else {
			err = fs.shrink(inode, fsBlocks, oldFsBlocks, itemsPerBlock)
		}
		if err != nil {
			// Allocation/free failures leave whatever bitmap mutations
			// already landed on disk in place — i_block entries set or
			// cleared so far stay in the inode, but i_size/i_blocks are
			// only updated below on the success path, matching the
			// original's behavior of skipping the "done" label on
			// early return.
			return err
		}
	}

	inode.SizeLo = newSize
	inode.Blocks = uint32((fsBlocks + overhead) * fs.sb.SectorsPerBlock())
	return nil
}

// expand grows the tree to cover logical blocks [oldFsBlocks, fsBlocks-1].
func (fs *Filesystem) expand(inode *Inode, oldFsBlocks, fsBlocks, itemsPerBlock int64) error {
	for i := oldFsBlocks; i < DirectPointers && i < fsBlocks; i++ {
		if inode.Block[i] == 0 {
			blockID, err := fs.AllocBlocks(1, false)
			if err != nil {
				return err
			}
			inode.Block[i] = uint32(blockID)
		}
	}

	for level := int64(0); level < 3; level++ {
		l0 := DirectPointers + level
		slot := singleIndirectSlot + level

		startIdx := directBlockIdx(itemsPerBlock, l0, 0, 0, 0)
		endIdx := directBlockIdx(itemsPerBlock, l0, itemsPerBlock-1, itemsPerBlock-1, itemsPerBlock-1)
		cmp := rangeCompare(oldFsBlocks, fsBlocks-1, startIdx, endIdx)

		if cmp&rangeOverlap != 0 {
			blockID := int64(inode.Block[slot])
			if blockID == 0 {
				var err error
				blockID, err = fs.AllocBlocks(1, true)
				if err != nil {
					return err
				}
				inode.Block[slot] = uint32(blockID)
			}
			if err := fs.expandRange(blockID, 1, oldFsBlocks, fsBlocks-1, itemsPerBlock, l0, 0, 0); err != nil {
				return err
			}
		} else if cmp&rangeAhead != 0 {
			return nil
		}
	}
	return nil
}

// expandRange recurses through one internal node of the indirect tree,
// allocating leaf/internal blocks whose sub-range overlaps [start, end].
// l0/l1/l2 fix the coordinate of the node being processed; level is 1 at
// the top-level index block and grows by one as the recursion descends
// toward leaves.
func (fs *Filesystem) expandRange(blockID int64, level int, start, end, itemsPerBlock, l0, l1, l2 int64) (err error) {
	entries, err := fs.readIndirect(blockID, itemsPerBlock)
	if err != nil {
		return err
	}

	// Persist whatever entries were filled in even when the loop below
	// returns early on an allocation error, mirroring inode_expand_range's
	// unconditional ext2_write_block after a break.
	defer func() {
		if werr := fs.writeIndirect(blockID, entries); err == nil {
			err = werr
		}
	}()

	for i := int64(0); i < itemsPerBlock; i++ {
		var itemStart, itemEnd int64
		switch level {
		case 1:
			itemStart = directBlockIdx(itemsPerBlock, l0, i, 0, 0)
			itemEnd = directBlockIdx(itemsPerBlock, l0, i, itemsPerBlock-1, itemsPerBlock-1)
		case 2:
			itemStart = directBlockIdx(itemsPerBlock, l0, l1, i, 0)
			itemEnd = directBlockIdx(itemsPerBlock, l0, l1, i, itemsPerBlock-1)
		default:
			itemStart = directBlockIdx(itemsPerBlock, l0, l1, l2, i)
			itemEnd = itemStart
		}

		cmp := rangeCompare(itemStart, itemEnd, start, end)
		if cmp&rangeOverlap != 0 {
			child := int64(entries[i])
			if child == 0 {
				leaf := itemStart == itemEnd
				var err error
				child, err = fs.AllocBlocks(1, !leaf)
				if err != nil {
					return err
				}
				entries[i] = uint32(child)
			}

			if itemStart == itemEnd {
				continue
			}
			switch level {
			case 1:
				if err := fs.expandRange(child, 2, start, end, itemsPerBlock, l0, i, 0); err != nil {
					return err
				}
			case 2:
				if err := fs.expandRange(child, 3, start, end, itemsPerBlock, l0, l1, i); err != nil {
					return err
				}
			default:
				corrupt("expandRange: unexpected recursion past level 3")
			}
		} else if cmp&rangeAhead != 0 {
			continue
		} else {
			break
		}
	}

	return nil
}

// shrink releases the tree's coverage of logical blocks
// [fsBlocks, oldFsBlocks-1].
func (fs *Filesystem) shrink(inode *Inode, fsBlocks, oldFsBlocks, itemsPerBlock int64) error {
	for i := fsBlocks; i < DirectPointers && i < oldFsBlocks; i++ {
		if inode.Block[i] != 0 {
			if err := fs.FreeBlocks(int64(inode.Block[i]), 1); err != nil {
				return err
			}
			inode.Block[i] = 0
		}
	}

	for level := int64(0); level < 3; level++ {
		l0 := DirectPointers + level
		slot := singleIndirectSlot + level

		startIdx := directBlockIdx(itemsPerBlock, l0, 0, 0, 0)
		endIdx := directBlockIdx(itemsPerBlock, l0, itemsPerBlock-1, itemsPerBlock-1, itemsPerBlock-1)
		cmp := rangeCompare(fsBlocks, oldFsBlocks-1, startIdx, endIdx)

		if cmp&rangeOverlap != 0 {
			blockID := int64(inode.Block[slot])
			if blockID != 0 {
				if err := fs.shrinkRange(blockID, 1, fsBlocks, oldFsBlocks-1, itemsPerBlock, l0, 0, 0); err != nil {
					return err
				}
				if fsBlocks <= startIdx {
					if err := fs.FreeBlocks(blockID, 1); err != nil {
						return err
					}
					inode.Block[slot] = 0
				}
			}
		} else if cmp&rangeAhead != 0 {
			return nil
		}
	}
	return nil
}

// shrinkRange is expandRange's mirror image: it recurses first, then frees
// an internal node once the target range fully covers its sub-range.
func (fs *Filesystem) shrinkRange(blockID int64, level int, start, end, itemsPerBlock, l0, l1, l2 int64) (err error) {
	entries, err := fs.readIndirect(blockID, itemsPerBlock)
	if err != nil {
		return err
	}

	// Persist whatever entries were cleared even when the loop below
	// returns early on a free error, mirroring inode_shrink_range's
	// unconditional ext2_write_block after a break.
	defer func() {
		if werr := fs.writeIndirect(blockID, entries); err == nil {
			err = werr
		}
	}()

	for i := int64(0); i < itemsPerBlock; i++ {
		var itemStart, itemEnd int64
		switch level {
		case 1:
			itemStart = directBlockIdx(itemsPerBlock, l0, i, 0, 0)
			itemEnd = directBlockIdx(itemsPerBlock, l0, i, itemsPerBlock-1, itemsPerBlock-1)
		case 2:
			itemStart = directBlockIdx(itemsPerBlock, l0, l1, i, 0)
			itemEnd = directBlockIdx(itemsPerBlock, l0, l1, i, itemsPerBlock-1)
		default:
			itemStart = directBlockIdx(itemsPerBlock, l0, l1, l2, i)
			itemEnd = itemStart
		}

		cmp := rangeCompare(itemStart, itemEnd, start, end)
		if cmp&rangeOverlap != 0 {
			child := int64(entries[i])
			if child == 0 {
				continue
			}

			if itemStart == itemEnd {
				if err := fs.FreeBlocks(child, 1); err != nil {
					return err
				}
				entries[i] = 0
				continue
			}

			switch level {
			case 1:
				if err := fs.shrinkRange(child, 2, start, end, itemsPerBlock, l0, i, 0); err != nil {
					return err
				}
			case 2:
				if err := fs.shrinkRange(child, 3, start, end, itemsPerBlock, l0, l1, i); err != nil {
					return err
				}
			default:
				corrupt("shrinkRange: unexpected recursion past level 3")
			}

			if start <= itemStart {
				if err := fs.FreeBlocks(child, 1); err != nil {
					return err
				}
				entries[i] = 0
			}
		} else if cmp&rangeAhead != 0 {
			continue
		} else {
			break
		}
	}

	return nil
}
