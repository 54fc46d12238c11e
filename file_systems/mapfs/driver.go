package mapfs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/boljen/go-bitmap"
	carve "github.com/carvefs/carve"
	"github.com/carvefs/carve/file_systems/common"
	"github.com/carvefs/carve/file_systems/common/diskimage"
)

// RootInumber is the inode of the root directory. It is allocated by Format
// and never handed out again.
const RootInumber = common.Inumber(0)

// Driver manipulates one file system image. A zero Driver is not usable;
// create one with NewDriver and then call either Format (for a blank image)
// or Load (for an image that was formatted previously).
//
// A Driver assumes it is the only writer of its image. Concurrent use must be
// serialized by the caller.
type Driver struct {
	image *diskimage.Image
	meta  Metadata

	// bits aliases the bytes of the bitmap sector inside the image, so every
	// bit flip lands directly in the on-disk bitmap.
	bits   bitmap.Bitmap
	loaded bool
}

// Enforced here so the CLI can hold the driver through the carve interfaces.
var _ carve.FileSystem = (*Driver)(nil)

func NewDriver(image *diskimage.Image) *Driver {
	return &Driver{image: image}
}

// Load re-derives the in-memory section pointers from the metadata record of
// an already formatted image. It never modifies the image, and calling it
// more than once is harmless.
func (d *Driver) Load() error {
	superblock, err := d.image.Block(0)
	if err != nil {
		return err
	}
	meta := readMetadata(superblock)

	if uint(meta.BlockSize) != d.image.BytesPerBlock() ||
		uint(meta.TotalBlocks) != d.image.TotalBlocks() {
		return carve.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"superblock claims %d blocks of %d bytes but the image has %d blocks of %d bytes",
				meta.TotalBlocks,
				meta.BlockSize,
				d.image.TotalBlocks(),
				d.image.BytesPerBlock(),
			),
		)
	}

	geom := Geometry{
		TotalBlocks: meta.TotalBlocks,
		TotalInodes: meta.TotalInodes,
		BlockSize:   meta.BlockSize,
	}
	if err := geom.Validate(); err != nil {
		return carve.ErrFileSystemCorrupted.Wrap(err)
	}
	if meta.Sectors != SetupSectors(meta.TotalBlocks, meta.TotalInodes, meta.BlockSize) {
		return carve.ErrFileSystemCorrupted.WithMessage(
			"recorded sector table doesn't match the layout for this geometry")
	}

	bitmapSector := meta.Sectors[SectorBitmap]
	bitmapBytes, err := d.image.Slice(uint(bitmapSector.Start), uint(bitmapSector.Size))
	if err != nil {
		return err
	}

	d.meta = meta
	d.bits = bitmap.Bitmap(bitmapBytes)
	d.loaded = true
	return nil
}

// Flush writes all modified blocks back to the backing storage.
func (d *Driver) Flush() error {
	return d.image.Flush()
}

// FSStat reports usage statistics for the image.
func (d *Driver) FSStat() carve.FSStat {
	stat := carve.FSStat{
		TotalBlocks:   uint64(d.meta.TotalBlocks),
		TotalInodes:   uint64(d.meta.TotalInodes),
		BlockSize:     uint64(d.meta.BlockSize),
		MaxNameLength: NameSize - 1,
	}

	if !d.loaded {
		return stat
	}

	for i := d.meta.Sectors[SectorData].Start; i < d.meta.TotalBlocks; i++ {
		if !d.isBlockUsed(common.PhysicalBlock(i)) {
			stat.BlocksFree++
		}
	}
	for i := common.Inumber(1); i < common.Inumber(d.meta.TotalInodes); i++ {
		inode, err := d.readInode(i)
		if err == nil && inode.TotalRefs == 0 {
			stat.InodesFree++
		}
	}
	return stat
}

func (d *Driver) requireLoaded() error {
	if !d.loaded {
		return carve.ErrNotMounted.WithMessage("format or load the image first")
	}
	return nil
}

// ProbeGeometry reads the metadata record from the beginning of `stream` and
// returns the geometry it describes, so callers can size a [diskimage.Image]
// before constructing a driver. The stream position afterwards is unspecified.
func ProbeGeometry(stream io.ReadSeeker) (Geometry, error) {
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return Geometry{}, carve.ErrIOFailed.Wrap(err)
	}

	header := make([]byte, MetadataSize)
	if _, err := io.ReadFull(stream, header); err != nil {
		return Geometry{}, carve.ErrFileSystemCorrupted.WithMessage(
			"image is too small to hold a superblock").Wrap(err)
	}

	geom := Geometry{
		TotalBlocks: binary.LittleEndian.Uint32(header[0:]),
		TotalInodes: binary.LittleEndian.Uint32(header[4:]),
		BlockSize:   binary.LittleEndian.Uint32(header[8:]),
	}
	if err := geom.Validate(); err != nil {
		return Geometry{}, carve.ErrFileSystemCorrupted.Wrap(err)
	}
	return geom, nil
}
