// Package testing provides shared fixtures for tests that need a formatted
// file system image.
package testing

import (
	"io"
	"testing"

	"github.com/carvefs/carve/file_systems/common/diskimage"
	"github.com/carvefs/carve/file_systems/mapfs"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// SmallGeometry is a deliberately tiny layout so exhaustion tests finish
// quickly: 1024 blocks of 128 bytes, 32 inodes, which leaves 1018 data
// blocks.
var SmallGeometry = mapfs.Geometry{
	TotalBlocks: 1024,
	TotalInodes: 32,
	BlockSize:   128,
}

// StandardGeometry matches the default CLI profile.
var StandardGeometry = mapfs.Geometry{
	TotalBlocks: 8192,
	TotalInodes: 128,
	BlockSize:   512,
}

// NewBlankStream returns an in-memory read/write/seek stream of exactly the
// size the geometry calls for, filled with null bytes.
func NewBlankStream(t *testing.T, geom mapfs.Geometry) io.ReadWriteSeeker {
	t.Helper()
	require.NoError(t, geom.Validate(), "test geometry is invalid")
	return bytesextra.NewReadWriteSeeker(make([]byte, geom.TotalSizeBytes()))
}

// NewBlankImage returns a blank in-memory image sized for the geometry,
// backed by a stream so Flush behavior is exercised too.
func NewBlankImage(t *testing.T, geom mapfs.Geometry) *diskimage.Image {
	t.Helper()

	image, err := diskimage.FromStream(
		NewBlankStream(t, geom), uint(geom.BlockSize), uint(geom.TotalBlocks))
	require.NoError(t, err, "failed to wrap blank stream")
	return image
}

// FormatDriver formats a blank image with the given geometry and returns a
// driver ready for use. It either succeeds or fails the test.
func FormatDriver(t *testing.T, geom mapfs.Geometry) *mapfs.Driver {
	t.Helper()

	driver := mapfs.NewDriver(NewBlankImage(t, geom))
	require.NoError(t, driver.Format(geom), "formatting failed")
	return driver
}
