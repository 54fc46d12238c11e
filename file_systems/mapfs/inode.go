package mapfs

import (
	"encoding/binary"
	"fmt"

	carve "github.com/carvefs/carve"
	"github.com/carvefs/carve/file_systems/common"
)

// Inode is the in-memory form of one inode record. An inode owns the block
// chain reachable through its direct references and, once TotalRefs exceeds
// DirectRefsPerInode, through the entries of its indirect block. The indirect
// block itself is not part of the chain: it is occupied in the bitmap but
// never counted in TotalRefs.
type Inode struct {
	Direct    [DirectRefsPerInode]common.PhysicalBlock
	Indirect  common.PhysicalBlock
	TotalRefs uint8
}

func (d *Driver) inodeLocation(inumber common.Inumber) (block uint, offset uint) {
	byteOffset := uint(inumber) * InodeSize
	block = uint(d.meta.Sectors[SectorInodes].Start) + byteOffset/uint(d.meta.BlockSize)
	offset = byteOffset % uint(d.meta.BlockSize)
	return block, offset
}

func (d *Driver) checkInumber(inumber common.Inumber) error {
	if uint32(inumber) >= d.meta.TotalInodes {
		return carve.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("inode %d not in range [0, %d)", inumber, d.meta.TotalInodes))
	}
	return nil
}

func (d *Driver) readInode(inumber common.Inumber) (Inode, error) {
	if err := d.checkInumber(inumber); err != nil {
		return Inode{}, err
	}

	blockIndex, offset := d.inodeLocation(inumber)
	block, err := d.image.Block(blockIndex)
	if err != nil {
		return Inode{}, err
	}

	record := block[offset : offset+InodeSize]
	var inode Inode
	for i := range inode.Direct {
		inode.Direct[i] = common.PhysicalBlock(binary.LittleEndian.Uint16(record[i*2:]))
	}
	inode.Indirect = common.PhysicalBlock(binary.LittleEndian.Uint16(record[DirectRefsPerInode*2:]))
	inode.TotalRefs = record[DirectRefsPerInode*2+2]
	return inode, nil
}

func (d *Driver) writeInode(inumber common.Inumber, inode Inode) error {
	if err := d.checkInumber(inumber); err != nil {
		return err
	}

	blockIndex, offset := d.inodeLocation(inumber)
	block, err := d.image.Block(blockIndex)
	if err != nil {
		return err
	}

	record := block[offset : offset+InodeSize]
	for i := range inode.Direct {
		binary.LittleEndian.PutUint16(record[i*2:], uint16(inode.Direct[i]))
	}
	binary.LittleEndian.PutUint16(record[DirectRefsPerInode*2:], uint16(inode.Indirect))
	record[DirectRefsPerInode*2+2] = inode.TotalRefs
	record[DirectRefsPerInode*2+3] = 0

	return d.image.MarkRangeDirty(blockIndex, 1)
}

// allocateInode claims the first unused inode slot. Slot 0 belongs to the
// root directory and is never handed out.
func (d *Driver) allocateInode() (common.Inumber, error) {
	for i := common.Inumber(1); uint32(i) < d.meta.TotalInodes; i++ {
		inode, err := d.readInode(i)
		if err != nil {
			return 0, err
		}
		if inode.TotalRefs == 0 {
			return i, nil
		}
	}
	return 0, carve.ErrNoSpaceOnDevice.WithMessage(
		fmt.Sprintf("all %d inodes are in use", d.meta.TotalInodes))
}

// maxChainRefs gives the longest block chain an inode can own on this image:
// the direct slots plus one indirect block of 16-bit entries, bounded by the
// width of the on-disk reference counter.
func (d *Driver) maxChainRefs() uint {
	limit := uint(DirectRefsPerInode) + uint(d.meta.BlockSize)/2
	if limit > MaxChainRefs {
		limit = MaxChainRefs
	}
	return limit
}

// chainBlock resolves position `position` of an inode's chain to a physical
// block: direct slots first, then entries of the indirect block. Every chain
// walk in the file system goes through this same addressing rule.
func (d *Driver) chainBlock(inode Inode, position common.LogicalBlock) (common.PhysicalBlock, error) {
	if uint(position) >= uint(inode.TotalRefs) {
		return 0, carve.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("chain position %d not in range [0, %d)", position, inode.TotalRefs))
	}

	if int(position) < DirectRefsPerInode {
		return inode.Direct[position], nil
	}

	indirect, err := d.image.Block(uint(inode.Indirect))
	if err != nil {
		return 0, err
	}
	entry := (int(position) - DirectRefsPerInode) * 2
	return common.PhysicalBlock(binary.LittleEndian.Uint16(indirect[entry:])), nil
}

// growChain extends the inode's chain by exactly one freshly zeroed data
// block and returns its index. On allocation failure nothing is mutated: any
// block claimed along the way is released again and the reference count is
// left alone.
func (d *Driver) growChain(inumber common.Inumber) (common.PhysicalBlock, error) {
	inode, err := d.readInode(inumber)
	if err != nil {
		return 0, err
	}

	if uint(inode.TotalRefs) >= d.maxChainRefs() {
		return 0, carve.ErrFileTooLarge.WithMessage(
			fmt.Sprintf("an inode can own at most %d blocks", d.maxChainRefs()))
	}

	block, err := d.allocateBlock()
	if err != nil {
		return 0, err
	}

	if int(inode.TotalRefs) < DirectRefsPerInode {
		inode.Direct[inode.TotalRefs] = block
	} else {
		if inode.Indirect == 0 {
			indirect, err := d.allocateBlock()
			if err != nil {
				d.markBlockFree(block)
				return 0, err
			}
			inode.Indirect = indirect
		}

		indirectData, err := d.image.Block(uint(inode.Indirect))
		if err != nil {
			d.markBlockFree(block)
			return 0, err
		}
		entry := (int(inode.TotalRefs) - DirectRefsPerInode) * 2
		binary.LittleEndian.PutUint16(indirectData[entry:], uint16(block))
		d.image.MarkRangeDirty(uint(inode.Indirect), 1)
	}

	// Fresh blocks start zeroed. Directory code depends on this: a new
	// directory block must scan as a run of free entry slots.
	data, err := d.image.Block(uint(block))
	if err != nil {
		d.markBlockFree(block)
		return 0, err
	}
	for i := range data {
		data[i] = 0
	}
	d.image.MarkRangeDirty(uint(block), 1)

	inode.TotalRefs++
	if err := d.writeInode(inumber, inode); err != nil {
		return 0, err
	}
	return block, nil
}

// freeChain releases every data block of the inode plus its indirect block,
// then zeroes the inode record itself.
func (d *Driver) freeChain(inumber common.Inumber) error {
	inode, err := d.readInode(inumber)
	if err != nil {
		return err
	}

	for position := common.LogicalBlock(0); uint(position) < uint(inode.TotalRefs); position++ {
		block, err := d.chainBlock(inode, position)
		if err != nil {
			return err
		}
		d.markBlockFree(block)
	}

	if inode.Indirect > 0 {
		d.markBlockFree(inode.Indirect)
	}

	return d.writeInode(inumber, Inode{})
}
