package mapfs

import (
	"fmt"

	carve "github.com/carvefs/carve"
	"github.com/carvefs/carve/file_systems/common"
)

// Format wipes the image and lays down a fresh, empty file system: the whole
// image is zeroed, the superblock is written, every block belonging to the
// superblock, bitmap and inode-table sectors is marked used, and the root
// directory is created. The driver is loaded and ready for use afterwards.
func (d *Driver) Format(geom Geometry) error {
	if err := geom.Validate(); err != nil {
		return err
	}
	if uint(geom.BlockSize) != d.image.BytesPerBlock() ||
		uint(geom.TotalBlocks) != d.image.TotalBlocks() {
		return carve.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"geometry describes %d blocks of %d bytes but the image has %d blocks of %d bytes",
				geom.TotalBlocks,
				geom.BlockSize,
				d.image.TotalBlocks(),
				d.image.BytesPerBlock(),
			),
		)
	}

	d.image.Zero()

	meta := Metadata{
		TotalBlocks: geom.TotalBlocks,
		TotalInodes: geom.TotalInodes,
		BlockSize:   geom.BlockSize,
		Sectors:     SetupSectors(geom.TotalBlocks, geom.TotalInodes, geom.BlockSize),
	}

	superblock, err := d.image.Block(0)
	if err != nil {
		return err
	}
	writeMetadata(superblock, meta)
	d.image.MarkRangeDirty(0, 1)

	if err := d.Load(); err != nil {
		return err
	}

	// The structural sectors are occupied for the lifetime of the image and
	// are never released.
	d.markBlockUsed(0)
	for _, id := range []SectorID{SectorBitmap, SectorInodes} {
		sector := meta.Sectors[id]
		for i := uint32(0); i < sector.Size; i++ {
			d.markBlockUsed(common.PhysicalBlock(sector.Start + i))
		}
	}

	return d.createRoot()
}

// createRoot gives inode 0 its first block and stores the "/" entry in it.
// The entry references inode 0 on purpose: tree walks treat entries with
// inode 0 as dead slots, which keeps the root from ever listing (or
// removing) itself.
func (d *Driver) createRoot() error {
	block, err := d.growChain(RootInumber)
	if err != nil {
		return err
	}

	return d.storeDirent(
		entryRef{block: block, offset: 0},
		Dirent{
			Name:  "/",
			Size:  0,
			Type:  carve.EntryTypeDirectory,
			Inode: RootInumber,
		},
	)
}
