package mapfs

import (
	"encoding/binary"
	"fmt"

	carve "github.com/carvefs/carve"
	"github.com/noxer/bytewriter"
)

const (
	// DirectRefsPerInode is the number of block references stored inline in
	// an inode before the indirect block takes over.
	DirectRefsPerInode = 6
	// InodeSize is the size of one inode record on disk, in bytes.
	InodeSize = 16
	// NameSize is the width of the name buffer in a directory entry. Names
	// are NUL-padded, so the longest usable name is one byte shorter.
	NameSize = 20
	// DirentSize is the size of one directory entry record on disk, in bytes.
	DirentSize = 32
	// MetadataSize is the serialized size of the superblock record, in bytes:
	// three uint32 totals plus four {start, size} sector descriptors.
	MetadataSize = 12 + 8*4

	// MaxTotalBlocks bounds the image size: block references on disk are 16
	// bits wide.
	MaxTotalBlocks = 1 << 16
	// MaxChainRefs bounds an inode's total reference count, which is stored
	// in a single byte.
	MaxChainRefs = 255
)

// SectorID identifies one of the four structural sectors of the image.
type SectorID int

const (
	SectorSuperblock SectorID = iota
	SectorBitmap
	SectorInodes
	SectorData
	SectorCount
)

// Sector describes a contiguous run of blocks reserved for one structural
// purpose.
type Sector struct {
	// Start is the index of the first block of the sector.
	Start uint32
	// Size is the number of blocks in the sector.
	Size uint32
}

// End returns the index of the first block past the sector.
func (s Sector) End() uint32 {
	return s.Start + s.Size
}

// Metadata is the superblock record stored at block 0 of the image. It is
// written once by Format and only ever re-read afterwards.
type Metadata struct {
	TotalBlocks uint32
	TotalInodes uint32
	BlockSize   uint32
	Sectors     [SectorCount]Sector
}

// Geometry is the set of parameters that determine the layout of a freshly
// formatted image.
type Geometry struct {
	TotalBlocks uint32
	TotalInodes uint32
	BlockSize   uint32
}

// TotalSizeBytes gives the size of the image the geometry describes.
func (geom Geometry) TotalSizeBytes() int64 {
	return int64(geom.TotalBlocks) * int64(geom.BlockSize)
}

// Validate checks that the geometry describes a layout the file system can
// actually use. The sector arithmetic truncates toward zero, so geometries
// whose truncated bitmap or inode sectors would be too small to cover every
// block bit or inode record are rejected rather than silently corrupted.
func (geom Geometry) Validate() error {
	if geom.BlockSize < MetadataSize || geom.BlockSize < DirentSize {
		return carve.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("block size must be at least %d bytes, got %d",
				max32(MetadataSize, DirentSize), geom.BlockSize),
		)
	}
	if geom.BlockSize%InodeSize != 0 || geom.BlockSize%DirentSize != 0 {
		return carve.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"block size must be a multiple of the inode size (%d B) and the entry size (%d B), got %d",
				InodeSize,
				DirentSize,
				geom.BlockSize,
			),
		)
	}
	if geom.TotalBlocks > MaxTotalBlocks {
		return carve.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("images can hold at most %d blocks, got %d",
				MaxTotalBlocks, geom.TotalBlocks),
		)
	}
	if geom.TotalInodes < 2 {
		return carve.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("need at least 2 inodes (one is reserved for the root), got %d",
				geom.TotalInodes),
		)
	}

	sectors := SetupSectors(geom.TotalBlocks, geom.TotalInodes, geom.BlockSize)

	bitmapBytes := sectors[SectorBitmap].Size * geom.BlockSize
	if bitmapBytes < (geom.TotalBlocks+7)/8 {
		return carve.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"bitmap sector holds %d bytes but %d blocks need %d; grow the image to a multiple of %d blocks",
				bitmapBytes,
				geom.TotalBlocks,
				(geom.TotalBlocks+7)/8,
				geom.BlockSize*8,
			),
		)
	}

	inodeSlots := sectors[SectorInodes].Size * (geom.BlockSize / InodeSize)
	if inodeSlots < geom.TotalInodes {
		return carve.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"inode sector holds %d records but %d were requested; the inode count must be a multiple of %d",
				inodeSlots,
				geom.TotalInodes,
				geom.BlockSize/InodeSize,
			),
		)
	}

	if sectors[SectorData].Start >= geom.TotalBlocks {
		return carve.ErrInvalidArgument.WithMessage(
			"layout leaves no blocks for the data sector")
	}
	return nil
}

// SetupSectors partitions an image into its four sectors. The bitmap and
// inode table sizes truncate toward zero; Geometry.Validate rejects
// geometries where the truncation would lose coverage, and accepted
// geometries always reproduce the same sector table on every reformat.
func SetupSectors(totalBlocks, totalInodes, blockSize uint32) [SectorCount]Sector {
	var sectors [SectorCount]Sector

	// The superblock always occupies block 0 alone.
	sectors[SectorSuperblock] = Sector{Start: 0, Size: 1}

	// One bit per block in the image.
	sectors[SectorBitmap] = Sector{
		Start: sectors[SectorSuperblock].End(),
		Size:  totalBlocks / 8 / blockSize,
	}

	sectors[SectorInodes] = Sector{
		Start: sectors[SectorBitmap].End(),
		Size:  totalInodes / (blockSize / InodeSize),
	}

	// Everything left over belongs to the data sector.
	dataStart := sectors[SectorInodes].End()
	sectors[SectorData] = Sector{
		Start: dataStart,
		Size:  totalBlocks - dataStart,
	}
	return sectors
}

// writeMetadata serializes the superblock record into `block`, which must be
// at least MetadataSize bytes.
func writeMetadata(block []byte, meta Metadata) {
	writer := bytewriter.New(block)

	binary.Write(writer, binary.LittleEndian, meta.TotalBlocks)
	binary.Write(writer, binary.LittleEndian, meta.TotalInodes)
	binary.Write(writer, binary.LittleEndian, meta.BlockSize)
	for _, sector := range meta.Sectors {
		binary.Write(writer, binary.LittleEndian, sector.Start)
		binary.Write(writer, binary.LittleEndian, sector.Size)
	}
}

// readMetadata deserializes the superblock record from `block`.
func readMetadata(block []byte) Metadata {
	meta := Metadata{
		TotalBlocks: binary.LittleEndian.Uint32(block[0:]),
		TotalInodes: binary.LittleEndian.Uint32(block[4:]),
		BlockSize:   binary.LittleEndian.Uint32(block[8:]),
	}
	for i := range meta.Sectors {
		offset := 12 + i*8
		meta.Sectors[i] = Sector{
			Start: binary.LittleEndian.Uint32(block[offset:]),
			Size:  binary.LittleEndian.Uint32(block[offset+4:]),
		}
	}
	return meta
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
