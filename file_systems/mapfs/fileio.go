package mapfs

import (
	"io"

	carve "github.com/carvefs/carve"
	"github.com/carvefs/carve/file_systems/common"
)

// writeFileContents streams everything `source` yields into the entry's block
// chain, growing the chain one block at a time as each block fills up. The
// entry's recorded size always reflects the bytes actually stored, so a
// source failure or an allocation failure mid-write leaves a consistent (if
// truncated) file behind.
//
// The entry's inode must already own at least one block; entry creation
// guarantees that.
func (d *Driver) writeFileContents(ref entryRef, source io.Reader) error {
	ent, err := d.loadDirent(ref)
	if err != nil {
		return err
	}
	inode, err := d.readInode(ent.Inode)
	if err != nil {
		return err
	}

	blockSize := uint(d.meta.BlockSize)
	current, err := d.chainBlock(inode, 0)
	if err != nil {
		return err
	}
	data, err := d.image.Block(uint(current))
	if err != nil {
		return err
	}

	ent.Size = 0
	offset := uint(0)

	store := func() error {
		return d.storeDirent(ref, ent)
	}

	for {
		if offset == blockSize {
			block, err := d.growChain(ent.Inode)
			if err != nil {
				// Out of blocks; keep what was written so far.
				if storeErr := store(); storeErr != nil {
					return storeErr
				}
				return err
			}
			current = block
			offset = 0

			data, err = d.image.Block(uint(current))
			if err != nil {
				return err
			}
		}

		n, err := source.Read(data[offset:blockSize])
		if n > 0 {
			ent.Size += uint32(n)
			offset += uint(n)
			d.image.MarkRangeDirty(uint(current), 1)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if storeErr := store(); storeErr != nil {
				return storeErr
			}
			return carve.ErrIOFailed.WithMessage("reading from source failed").Wrap(err)
		}
		// A zero-byte read with no error means the source has nothing left.
		// Not every reader signals exhaustion with io.EOF.
		if n == 0 {
			break
		}
	}

	return store()
}

// readFileContents walks the entry's chain in order and writes exactly
// ent.Size bytes to `sink`; the final block contributes only the remainder,
// never its full length.
func (d *Driver) readFileContents(ent Dirent, sink io.Writer) error {
	inode, err := d.readInode(ent.Inode)
	if err != nil {
		return err
	}

	remaining := uint(ent.Size)
	blockSize := uint(d.meta.BlockSize)

	for position := common.LogicalBlock(0); uint(position) < uint(inode.TotalRefs); position++ {
		if remaining == 0 {
			break
		}

		block, err := d.chainBlock(inode, position)
		if err != nil {
			return err
		}
		data, err := d.image.Block(uint(block))
		if err != nil {
			return err
		}

		count := remaining
		if count > blockSize {
			count = blockSize
		}
		if _, err := sink.Write(data[:count]); err != nil {
			return carve.ErrIOFailed.WithMessage("writing to sink failed").Wrap(err)
		}
		remaining -= count
	}
	return nil
}

// truncateFile releases an existing entry's whole chain and gives its inode a
// single fresh block, returning the file to the state a newly created entry
// starts in.
func (d *Driver) truncateFile(ref entryRef) error {
	ent, err := d.loadDirent(ref)
	if err != nil {
		return err
	}
	if err := d.freeChain(ent.Inode); err != nil {
		return err
	}
	if _, err := d.growChain(ent.Inode); err != nil {
		return err
	}

	ent.Size = 0
	return d.storeDirent(ref, ent)
}
