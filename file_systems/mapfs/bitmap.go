package mapfs

import (
	"fmt"

	carve "github.com/carvefs/carve"
	"github.com/carvefs/carve/file_systems/common"
)

// The free-block bitmap stores one bit per block in the image, LSB-first
// within each byte: block index n lives in byte n/8 at bit n%8. That matches
// the bit order of go-bitmap, so d.bits operates directly on the on-disk
// sector bytes.

func (d *Driver) markBlockUsed(block common.PhysicalBlock) {
	d.bits.Set(int(block), true)
	d.markBitmapDirty()
}

func (d *Driver) markBlockFree(block common.PhysicalBlock) {
	d.bits.Set(int(block), false)
	d.markBitmapDirty()
}

func (d *Driver) isBlockUsed(block common.PhysicalBlock) bool {
	return d.bits.Get(int(block))
}

func (d *Driver) markBitmapDirty() {
	sector := d.meta.Sectors[SectorBitmap]
	d.image.MarkRangeDirty(uint(sector.Start), uint(sector.Size))
}

// allocateBlock claims the first free block of the data sector and returns
// its index. The scan runs forward from the start of the data sector, so
// freed blocks are reused before untouched ones.
func (d *Driver) allocateBlock() (common.PhysicalBlock, error) {
	for i := d.meta.Sectors[SectorData].Start; i < d.meta.TotalBlocks; i++ {
		block := common.PhysicalBlock(i)
		if !d.isBlockUsed(block) {
			d.markBlockUsed(block)
			return block, nil
		}
	}
	return 0, carve.ErrNoSpaceOnDevice.WithMessage(
		fmt.Sprintf("all %d data blocks are in use", d.meta.Sectors[SectorData].Size))
}
