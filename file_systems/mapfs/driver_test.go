package mapfs

import (
	"bytes"
	"strings"
	"testing"

	carve "github.com/carvefs/carve"
	"github.com/carvefs/carve/file_systems/common"
	"github.com/carvefs/carve/file_systems/common/diskimage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A tiny geometry so allocation exhaustion happens fast: 1024 blocks of
// 128 bytes leave 1018 data blocks, and 32 inodes fill a 4-block table.
var testGeometry = Geometry{TotalBlocks: 1024, TotalInodes: 32, BlockSize: 128}

func newTestDriver(t *testing.T) *Driver {
	t.Helper()

	image, err := diskimage.FromSlice(
		make([]byte, testGeometry.TotalSizeBytes()), uint(testGeometry.BlockSize))
	require.NoError(t, err)

	driver := NewDriver(image)
	require.NoError(t, driver.Format(testGeometry))
	return driver
}

// checkConsistency asserts the bitmap and the inode table agree: every block
// reachable through some inode's chain (plus its indirect block, plus the
// structural sectors) is marked used, and nothing else is.
func checkConsistency(t *testing.T, d *Driver) {
	t.Helper()

	expected := make(map[common.PhysicalBlock]bool)
	expected[0] = true
	for _, id := range []SectorID{SectorBitmap, SectorInodes} {
		sector := d.meta.Sectors[id]
		for i := uint32(0); i < sector.Size; i++ {
			expected[common.PhysicalBlock(sector.Start+i)] = true
		}
	}

	for i := common.Inumber(0); uint32(i) < d.meta.TotalInodes; i++ {
		inode, err := d.readInode(i)
		require.NoError(t, err)

		for position := common.LogicalBlock(0); uint(position) < uint(inode.TotalRefs); position++ {
			block, err := d.chainBlock(inode, position)
			require.NoError(t, err)
			assert.False(t, expected[block], "block %d owned twice", block)
			expected[block] = true
		}

		if inode.TotalRefs > DirectRefsPerInode {
			assert.NotZero(t, inode.Indirect, "inode %d overflowed without an indirect block", i)
		}
		if inode.Indirect != 0 {
			expected[inode.Indirect] = true
		}
	}

	for i := uint32(0); i < d.meta.TotalBlocks; i++ {
		block := common.PhysicalBlock(i)
		assert.Equal(
			t,
			expected[block],
			d.isBlockUsed(block),
			"bitmap disagrees with inode chains at block %d", i)
	}
}

func TestFormatMarksSystemBlocks(t *testing.T) {
	d := newTestDriver(t)

	// Superblock, one bitmap block, four inode blocks, plus the root
	// directory's first data block.
	for i := uint32(0); i < d.meta.Sectors[SectorData].Start; i++ {
		assert.True(t, d.isBlockUsed(common.PhysicalBlock(i)), "system block %d not marked", i)
	}
	assert.True(t, d.isBlockUsed(common.PhysicalBlock(d.meta.Sectors[SectorData].Start)),
		"root directory block not marked")

	checkConsistency(t, d)
}

func TestFormatThenLoadRoundTrips(t *testing.T) {
	d := newTestDriver(t)

	reloaded := NewDriver(d.image)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, d.meta, reloaded.meta)

	// Load must be idempotent.
	require.NoError(t, reloaded.Load())
	assert.Equal(t, d.meta, reloaded.meta)
}

func TestLoadRejectsGarbage(t *testing.T) {
	image, err := diskimage.FromSlice(
		make([]byte, testGeometry.TotalSizeBytes()), uint(testGeometry.BlockSize))
	require.NoError(t, err)

	err = NewDriver(image).Load()
	assert.ErrorIs(t, err, carve.ErrFileSystemCorrupted)
}

func TestGrowChainMovesToIndirectBlock(t *testing.T) {
	d := newTestDriver(t)

	inumber, err := d.allocateInode()
	require.NoError(t, err)
	require.NoError(t, d.writeInode(inumber, Inode{}))

	var blocks []common.PhysicalBlock
	for i := 0; i < DirectRefsPerInode+3; i++ {
		block, err := d.growChain(inumber)
		require.NoError(t, err)
		blocks = append(blocks, block)
	}

	inode, err := d.readInode(inumber)
	require.NoError(t, err)
	assert.EqualValues(t, DirectRefsPerInode+3, inode.TotalRefs)
	assert.NotZero(t, inode.Indirect, "indirect block was never allocated")

	// The same addressing rule must recover every block in order.
	for i, expected := range blocks {
		got, err := d.chainBlock(inode, common.LogicalBlock(i))
		require.NoError(t, err)
		assert.Equal(t, expected, got, "chain position %d resolves wrong", i)
	}

	checkConsistency(t, d)
}

func TestGrowChainFailureLeavesInodeUntouched(t *testing.T) {
	d := newTestDriver(t)

	// Claim every free data block directly in the bitmap.
	for i := d.meta.Sectors[SectorData].Start; i < d.meta.TotalBlocks; i++ {
		d.markBlockUsed(common.PhysicalBlock(i))
	}

	inumber := common.Inumber(5)
	require.NoError(t, d.writeInode(inumber, Inode{}))

	_, err := d.growChain(inumber)
	assert.ErrorIs(t, err, carve.ErrNoSpaceOnDevice)

	inode, err := d.readInode(inumber)
	require.NoError(t, err)
	assert.Zero(t, inode.TotalRefs, "failed growth must not change the reference count")
}

func TestAllocateInodeNeverReturnsRoot(t *testing.T) {
	d := newTestDriver(t)

	inumber, err := d.allocateInode()
	require.NoError(t, err)
	assert.NotEqual(t, RootInumber, inumber)
}

func TestFreeSlotReuse(t *testing.T) {
	d := newTestDriver(t)

	require.NoError(t, d.AddFile("keep.txt", strings.NewReader("one")))
	require.NoError(t, d.AddFile("victim.txt", strings.NewReader("two")))
	require.NoError(t, d.AddFile("other.txt", strings.NewReader("three")))

	rootInode, err := d.readInode(RootInumber)
	require.NoError(t, err)
	before, err := d.countLiveDirents(rootInode)
	require.NoError(t, err)

	require.NoError(t, d.Remove("victim.txt"))
	require.NoError(t, d.AddFile("fresh.txt", strings.NewReader("four")))

	rootInode, err = d.readInode(RootInumber)
	require.NoError(t, err)
	after, err := d.countLiveDirents(rootInode)
	require.NoError(t, err)

	assert.Equal(t, before, after, "live entry count should return to its old value")
	checkConsistency(t, d)
}

func TestConsistencyAfterMixedWorkload(t *testing.T) {
	d := newTestDriver(t)

	big := bytes.Repeat([]byte{0xA5}, int(testGeometry.BlockSize)*(DirectRefsPerInode+2))
	require.NoError(t, d.AddFile("a/b/big.bin", bytes.NewReader(big)))
	require.NoError(t, d.AddFile("a/small.txt", strings.NewReader("hi")))
	require.NoError(t, d.AddFile("c/d/e/deep.txt", strings.NewReader("deep")))
	checkConsistency(t, d)

	require.NoError(t, d.Remove("a/b/big.bin"))
	checkConsistency(t, d)

	require.NoError(t, d.Remove("c/d/e/deep.txt"))
	checkConsistency(t, d)
}
