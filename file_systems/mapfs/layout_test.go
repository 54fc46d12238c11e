package mapfs

import (
	_ "embed"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/layouts.csv
var layoutsCSV []byte

type layoutFixture struct {
	TotalBlocks uint32 `csv:"total_blocks"`
	BlockSize   uint32 `csv:"block_size"`
	TotalInodes uint32 `csv:"total_inodes"`
	BitmapStart uint32 `csv:"bitmap_start"`
	BitmapSize  uint32 `csv:"bitmap_size"`
	InodeStart  uint32 `csv:"inode_start"`
	InodeSize   uint32 `csv:"inode_size"`
	DataStart   uint32 `csv:"data_start"`
	DataSize    uint32 `csv:"data_size"`
}

func TestSetupSectorsAgainstFixtures(t *testing.T) {
	var fixtures []layoutFixture
	require.NoError(t, gocsv.UnmarshalBytes(layoutsCSV, &fixtures))
	require.NotEmpty(t, fixtures, "fixture file is empty")

	for _, fixture := range fixtures {
		geom := Geometry{
			TotalBlocks: fixture.TotalBlocks,
			TotalInodes: fixture.TotalInodes,
			BlockSize:   fixture.BlockSize,
		}
		require.NoError(t, geom.Validate(), "fixture geometry %+v should be valid", geom)

		sectors := SetupSectors(fixture.TotalBlocks, fixture.TotalInodes, fixture.BlockSize)
		assert.Equal(t, Sector{Start: 0, Size: 1}, sectors[SectorSuperblock])
		assert.Equal(
			t,
			Sector{Start: fixture.BitmapStart, Size: fixture.BitmapSize},
			sectors[SectorBitmap],
			"bitmap sector is wrong for %+v", geom)
		assert.Equal(
			t,
			Sector{Start: fixture.InodeStart, Size: fixture.InodeSize},
			sectors[SectorInodes],
			"inode sector is wrong for %+v", geom)
		assert.Equal(
			t,
			Sector{Start: fixture.DataStart, Size: fixture.DataSize},
			sectors[SectorData],
			"data sector is wrong for %+v", geom)
	}
}

func TestSetupSectorsIsDeterministic(t *testing.T) {
	first := SetupSectors(8192, 128, 512)
	second := SetupSectors(8192, 128, 512)
	assert.Equal(t, first, second)
}

func TestGeometryValidateRejectsBadLayouts(t *testing.T) {
	cases := []struct {
		name string
		geom Geometry
	}{
		{"odd block size", Geometry{TotalBlocks: 8192, TotalInodes: 128, BlockSize: 100}},
		{"bitmap sector truncates to nothing", Geometry{TotalBlocks: 512, TotalInodes: 32, BlockSize: 512}},
		{"inode sector truncates to nothing", Geometry{TotalBlocks: 8192, TotalInodes: 10, BlockSize: 512}},
		{"single inode", Geometry{TotalBlocks: 8192, TotalInodes: 1, BlockSize: 512}},
		{"too many blocks for 16-bit references", Geometry{TotalBlocks: 1 << 17, TotalInodes: 128, BlockSize: 512}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.geom.Validate())
		})
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	meta := Metadata{
		TotalBlocks: 8192,
		TotalInodes: 128,
		BlockSize:   512,
		Sectors:     SetupSectors(8192, 128, 512),
	}

	block := make([]byte, 512)
	writeMetadata(block, meta)
	assert.Equal(t, meta, readMetadata(block))
}
