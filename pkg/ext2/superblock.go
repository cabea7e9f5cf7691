package ext2

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/vorteil/ext2go/pkg/elog"
)

// Filesystem is the mount-time registry: the parsed superblock, the
// block-group descriptor table, the device they describe, and the
// allocator lock that serialises every mutation of them. It is the Go
// analogue of the original's process-global fs_device / ext2_meta_data —
// encapsulated instead of static, constructed at Mount and discarded at
// unmount.
type Filesystem struct {
	dev    BlockDevice
	sb     Superblock
	groups []BlockGroupDescriptor
	log    elog.Logger

	allocatorLock sync.Mutex
}

// BlockSize returns the volume's block size in bytes.
func (fs *Filesystem) BlockSize() int64 { return fs.sb.BlockSize() }

// Superblock returns a copy of the volume's superblock record.
func (fs *Filesystem) Superblock() Superblock { return fs.sb }

// Groups returns a copy of the volume's block-group descriptor table.
func (fs *Filesystem) Groups() []BlockGroupDescriptor {
	out := make([]BlockGroupDescriptor, len(fs.groups))
	copy(out, fs.groups)
	return out
}

// Probe reads the superblock region of dev and reports whether it carries
// the ext2 magic number, without mutating any state. It is safe to call on
// a device that turns out not to be ext2 at all.
func Probe(dev BlockDevice) bool {
	raw := make([]byte, SectorSize*2)
	if err := dev.ReadSector(SuperblockOffset/SectorSize, raw[:SectorSize]); err != nil {
		return false
	}
	if err := dev.ReadSector(SuperblockOffset/SectorSize+1, raw[SectorSize:]); err != nil {
		return false
	}
	var sb Superblock
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &sb); err != nil {
		return false
	}
	return sb.Magic == Magic
}

// Mount reads the superblock and block-group descriptor table from dev and
// returns a ready-to-use Filesystem. logger may be nil, in which case
// logging is discarded.
func Mount(dev BlockDevice, logger elog.Logger) (*Filesystem, error) {
	if logger == nil {
		logger = elog.Discard{}
	}

	fs := &Filesystem{dev: dev, log: logger}

	raw := make([]byte, SectorSize*2)
	for i := 0; i < 2; i++ {
		if err := dev.ReadSector(SuperblockOffset/SectorSize+int64(i), raw[i*SectorSize:(i+1)*SectorSize]); err != nil {
			return nil, fmt.Errorf("ext2: reading superblock: %w", err)
		}
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &fs.sb); err != nil {
		return nil, fmt.Errorf("ext2: decoding superblock: %w", err)
	}
	if fs.sb.Magic != Magic {
		return nil, ErrNotFormatted
	}

	if err := fs.readGroups(); err != nil {
		return nil, err
	}

	logger.Infof("ext2go: mounted %q: %d blocks, %d inodes, %d groups", dev.Name(), fs.sb.TotalBlocks, fs.sb.TotalInodes, len(fs.groups))
	return fs, nil
}

func (fs *Filesystem) bgdtBlock() int64 {
	if fs.sb.BlockSize() == 1024 {
		return 2
	}
	return 1
}

func (fs *Filesystem) readGroups() error {
	g := fs.sb.Groups()
	entriesPerBlock := fs.sb.BlockSize() / BlockGroupDescriptorSize
	blocks := divide(g, entriesPerBlock)

	fs.groups = make([]BlockGroupDescriptor, g)
	buf := make([]byte, fs.sb.BlockSize())
	idx := int64(0)
	for b := int64(0); b < blocks && idx < g; b++ {
		if _, err := ReadBlock(fs.dev, fs.bgdtBlock()+b, fs.sb.BlockSize(), buf); err != nil {
			return fmt.Errorf("ext2: reading BGDT block %d: %w", b, err)
		}
		r := bytes.NewReader(buf)
		for e := int64(0); e < entriesPerBlock && idx < g; e++ {
			if err := binary.Read(r, binary.LittleEndian, &fs.groups[idx]); err != nil {
				return fmt.Errorf("ext2: decoding group descriptor %d: %w", idx, err)
			}
			idx++
		}
	}
	return nil
}

// writeSuperblock persists the in-memory superblock. Callers must hold
// allocatorLock.
func (fs *Filesystem) writeSuperblock() error {
	raw := make([]byte, SectorSize*2)
	buf := bytes.NewBuffer(raw[:0])
	if err := binary.Write(buf, binary.LittleEndian, &fs.sb); err != nil {
		return fmt.Errorf("ext2: encoding superblock: %w", err)
	}
	for i := 0; i < 2; i++ {
		if err := fs.dev.WriteSector(SuperblockOffset/SectorSize+int64(i), raw[i*SectorSize:(i+1)*SectorSize]); err != nil {
			return fmt.Errorf("ext2: writing superblock: %w", err)
		}
	}
	return nil
}

// writeGroups persists the full block-group descriptor table. Callers must
// hold allocatorLock.
func (fs *Filesystem) writeGroups() error {
	entriesPerBlock := fs.sb.BlockSize() / BlockGroupDescriptorSize
	blocks := divide(int64(len(fs.groups)), entriesPerBlock)

	idx := int64(0)
	for b := int64(0); b < blocks; b++ {
		buf := make([]byte, fs.sb.BlockSize())
		w := bytes.NewBuffer(buf[:0])
		for e := int64(0); e < entriesPerBlock && idx < int64(len(fs.groups)); e++ {
			if err := binary.Write(w, binary.LittleEndian, &fs.groups[idx]); err != nil {
				return fmt.Errorf("ext2: encoding group descriptor %d: %w", idx, err)
			}
			idx++
		}
		out := w.Bytes()
		out = out[:fs.sb.BlockSize()]
		if err := WriteBlock(fs.dev, fs.bgdtBlock()+b, fs.sb.BlockSize(), out); err != nil {
			return fmt.Errorf("ext2: writing BGDT block %d: %w", b, err)
		}
	}
	return nil
}

// FormatParams configures Format.
type FormatParams struct {
	TotalBlocks    uint32
	BlocksPerGroup uint32 // 0 selects a default of 8*BlockSize
	InodesPerGroup uint32 // 0 selects a default of BlocksPerGroup/4
	TotalInodes    uint32 // 0 selects a default of InodesPerGroup*Groups
	LogBlockSize   uint32 // block size = 1024 << LogBlockSize
}

// Format lays down a fresh superblock, BGDT, zeroed bitmaps with metadata
// blocks pre-marked used, an empty inode table, and a root directory inode
// (2) containing "." and ".." — giving Mount something to read back, so
// a volume can be created here instead of only pre-built elsewhere.
func Format(dev BlockDevice, params FormatParams, logger elog.Logger) (*Filesystem, error) {
	if logger == nil {
		logger = elog.Discard{}
	}

	blockSize := int64(1024) << params.LogBlockSize
	if params.TotalBlocks == 0 {
		params.TotalBlocks = uint32(dev.SectorCount() * SectorSize / blockSize)
	}
	firstDataBlock := int64(1)
	if blockSize > 1024 {
		firstDataBlock = 0
	}

	if params.BlocksPerGroup == 0 {
		params.BlocksPerGroup = uint32(blockSize * 8)
		// a device smaller than one default-sized group still needs to
		// format as a single, smaller group rather than overrun its own
		// bitmap/inode-table layout past the end of the device.
		if int64(params.BlocksPerGroup) > int64(params.TotalBlocks)-firstDataBlock {
			params.BlocksPerGroup = uint32(int64(params.TotalBlocks) - firstDataBlock)
		}
	}

	groups := divide(int64(params.TotalBlocks)-firstDataBlock, int64(params.BlocksPerGroup))
	if groups < 1 {
		return nil, fmt.Errorf("ext2: device too small to hold even one block group")
	}

	if params.InodesPerGroup == 0 {
		params.InodesPerGroup = params.BlocksPerGroup / 4
	}
	if params.TotalInodes == 0 {
		params.TotalInodes = params.InodesPerGroup * uint32(groups)
	}

	fs := &Filesystem{dev: dev, log: logger}
	fs.sb = Superblock{
		TotalInodes:    params.TotalInodes,
		TotalBlocks:    params.TotalBlocks,
		FirstDataBlock: uint32(firstDataBlock),
		LogBlockSize:   params.LogBlockSize,
		BlocksPerGroup: params.BlocksPerGroup,
		FragsPerGroup:  params.BlocksPerGroup,
		InodesPerGroup: params.InodesPerGroup,
		Magic:          Magic,
		State:          StateClean,
		ErrorPolicy:    ErrorsContinue,
		VersionMajor:   0,
		VersionMinor:   0,
	}

	bgdtBlocks := divide(groups*BlockGroupDescriptorSize, blockSize)
	inodeTableBlocks := divide(int64(params.InodesPerGroup)*InodeSize, blockSize)

	fs.groups = make([]BlockGroupDescriptor, groups)
	next := fs.bgdtBlock() + bgdtBlocks
	for g := int64(0); g < groups; g++ {
		fs.groups[g].BlockBitmap = uint32(next)
		next++
		fs.groups[g].InodeBitmap = uint32(next)
		next++
		fs.groups[g].InodeTable = uint32(next)
		next += inodeTableBlocks
	}

	// group 0 additionally carries the superblock and BGDT, followed by
	// every group's bitmaps and inode table laid out back to back, ahead of
	// the first usable data block — reserve that whole leading span in
	// group 0's block bitmap.
	metaEnd := next
	if metaEnd-firstDataBlock > int64(params.BlocksPerGroup) {
		return nil, fmt.Errorf("ext2: block group metadata does not fit in group 0")
	}

	for g := int64(0); g < groups; g++ {
		if err := fs.writeZeroedBitmap(fs.groups[g].BlockBitmap, params.BlocksPerGroup); err != nil {
			return nil, err
		}
		if err := fs.writeZeroedBitmap(fs.groups[g].InodeBitmap, params.InodesPerGroup); err != nil {
			return nil, err
		}
		tableBuf := make([]byte, blockSize)
		for b := int64(0); b < inodeTableBlocks; b++ {
			if err := WriteBlock(dev, int64(fs.groups[g].InodeTable)+b, blockSize, tableBuf); err != nil {
				return nil, fmt.Errorf("ext2: zeroing inode table: %w", err)
			}
		}
	}

	if err := fs.markBlockRangeUsed(0, firstDataBlock, metaEnd); err != nil {
		return nil, err
	}

	// inode 1 is reserved (there is no inode 0, and classic ext2 reserves
	// low inode numbers below the root), and inode 2 is always the root
	// directory; mark both used directly rather than through AllocInode,
	// whose group-0-skip would hand out the wrong number for a multi-group
	// volume.
	if err := fs.markInodeUsed(1); err != nil {
		return nil, err
	}
	if err := fs.markInodeUsed(RootInode); err != nil {
		return nil, err
	}

	// popcount every bitmap to derive the free counters rather than
	// tracking them incrementally through the layout math above.
	totalFreeBlocks, totalFreeInodes := uint32(0), uint32(0)
	for g := int64(0); g < groups; g++ {
		blkFree, err := fs.countFree(fs.groups[g].BlockBitmap, int64(params.BlocksPerGroup))
		if err != nil {
			return nil, err
		}
		inoFree, err := fs.countFree(fs.groups[g].InodeBitmap, int64(params.InodesPerGroup))
		if err != nil {
			return nil, err
		}
		fs.groups[g].FreeBlocks = uint16(blkFree)
		fs.groups[g].FreeInodes = uint16(inoFree)
		totalFreeBlocks += uint32(blkFree)
		totalFreeInodes += uint32(inoFree)
	}
	fs.sb.FreeBlocks = totalFreeBlocks
	fs.sb.FreeInodes = totalFreeInodes

	if err := fs.writeGroups(); err != nil {
		return nil, err
	}
	if err := fs.writeSuperblock(); err != nil {
		return nil, err
	}

	if err := fs.formatRoot(); err != nil {
		return nil, err
	}

	logger.Infof("ext2go: formatted %q: %d blocks, %d inodes, %d groups, block size %d", dev.Name(), fs.sb.TotalBlocks, fs.sb.TotalInodes, groups, blockSize)
	return fs, nil
}

func (fs *Filesystem) writeZeroedBitmap(blockID uint32, bitCount uint32) error {
	blockSize := fs.sb.BlockSize()
	buf := make([]byte, blockSize)
	bm := NewBitmap(buf, blockSize*8)
	// mark the tail beyond bitCount permanently used so scans never hand
	// out bits that don't correspond to a real block/inode.
	if int64(bitCount) < bm.Len() {
		bm.SetRange(int64(bitCount), bm.Len()-int64(bitCount), true)
	}
	return WriteBlock(fs.dev, int64(blockID), blockSize, buf)
}

// markBlockRangeUsed flags absolute blocks [firstDataBlock, to) as
// allocated in the given group's bitmap. Used only during Format to
// reserve the metadata region ahead of the first usable data block.
func (fs *Filesystem) markBlockRangeUsed(group int64, firstDataBlock, to int64) error {
	blockSize := fs.sb.BlockSize()
	buf := make([]byte, blockSize)
	if _, err := ReadBlock(fs.dev, int64(fs.groups[group].BlockBitmap), blockSize, buf); err != nil {
		return err
	}
	bm := NewBitmap(buf, int64(fs.sb.BlocksPerGroup))
	groupStart := firstDataBlock + group*int64(fs.sb.BlocksPerGroup)
	bm.SetRange(0, to-groupStart, true)
	return WriteBlock(fs.dev, int64(fs.groups[group].BlockBitmap), blockSize, buf)
}

// markInodeUsed flags a 1-based inode number as allocated in its group's
// inode bitmap, without going through the allocator (used only for the
// reserved inode 1 and the root inode 2 during Format).
func (fs *Filesystem) markInodeUsed(inodeNum uint32) error {
	group, local := fs.inodeLocation(inodeNum)
	blockSize := fs.sb.BlockSize()
	buf := make([]byte, blockSize)
	if _, err := ReadBlock(fs.dev, int64(fs.groups[group].InodeBitmap), blockSize, buf); err != nil {
		return err
	}
	bm := NewBitmap(buf, int64(fs.sb.InodesPerGroup))
	bm.Set(local, true)
	return WriteBlock(fs.dev, int64(fs.groups[group].InodeBitmap), blockSize, buf)
}

func (fs *Filesystem) countFree(bitmapBlock uint32, bitCount int64) (int64, error) {
	blockSize := fs.sb.BlockSize()
	buf := make([]byte, blockSize)
	if _, err := ReadBlock(fs.dev, int64(bitmapBlock), blockSize, buf); err != nil {
		return 0, err
	}
	bm := NewBitmap(buf, blockSize*8)
	free := int64(0)
	for i := int64(0); i < bitCount; i++ {
		if !bm.Test(i) {
			free++
		}
	}
	return free, nil
}
