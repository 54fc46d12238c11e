// Package diskimage provides byte-level access to a disk image held entirely
// in memory, the way a memory-mapped file would be. The image is addressed in
// fixed-size blocks; callers get mutable slices aliasing the image buffer and
// are responsible for marking the blocks they modify as dirty so that Flush
// only writes back what changed.
//
// All block indices begin at 0.
package diskimage

import (
	"fmt"
	"io"

	"github.com/boljen/go-bitmap"
	carve "github.com/carvefs/carve"
)

type Image struct {
	data          []byte
	dirtyBlocks   bitmap.Bitmap
	stream        io.ReadWriteSeeker
	bytesPerBlock uint
	totalBlocks   uint
}

// FromSlice wraps an existing buffer. The buffer is aliased, not copied, so
// mutations made through the image are visible to the owner of the slice and
// vice versa. `data` must be a non-zero multiple of `bytesPerBlock` long.
//
// Images created this way have no backing stream; Flush only resets the dirty
// map.
func FromSlice(data []byte, bytesPerBlock uint) (*Image, error) {
	if bytesPerBlock == 0 {
		return nil, carve.ErrInvalidArgument.WithMessage("block size can't be 0")
	}
	if len(data) == 0 || uint(len(data))%bytesPerBlock != 0 {
		return nil, carve.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"image size must be a non-zero multiple of the block size (%d B), got %d B",
				bytesPerBlock,
				len(data),
			),
		)
	}

	totalBlocks := uint(len(data)) / bytesPerBlock
	return &Image{
		data:          data,
		dirtyBlocks:   bitmap.New(int(totalBlocks)),
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}, nil
}

// FromStream reads `totalBlocks` blocks from the beginning of `stream` into
// memory. Flush writes dirty blocks back to the same stream.
func FromStream(stream io.ReadWriteSeeker, bytesPerBlock, totalBlocks uint) (*Image, error) {
	if bytesPerBlock == 0 || totalBlocks == 0 {
		return nil, carve.ErrInvalidArgument.WithMessage(
			"block size and block count must both be nonzero")
	}

	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, carve.ErrIOFailed.Wrap(err)
	}

	data := make([]byte, bytesPerBlock*totalBlocks)
	if _, err := io.ReadFull(stream, data); err != nil {
		return nil, carve.ErrIOFailed.WithMessage(
			fmt.Sprintf("can't read %d blocks of %d bytes from stream", totalBlocks, bytesPerBlock),
		).Wrap(err)
	}

	return &Image{
		data:          data,
		dirtyBlocks:   bitmap.New(int(totalBlocks)),
		stream:        stream,
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}, nil
}

// BytesPerBlock returns the size of a single block, in bytes.
func (img *Image) BytesPerBlock() uint {
	return img.bytesPerBlock
}

// TotalBlocks returns the size of the image, in blocks.
func (img *Image) TotalBlocks() uint {
	return img.totalBlocks
}

// Size gives the size of the image, in bytes (not blocks!).
func (img *Image) Size() int64 {
	return int64(img.bytesPerBlock) * int64(img.totalBlocks)
}

func (img *Image) checkBounds(start, count uint) error {
	if start+count > img.totalBlocks {
		return carve.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"can't access %d block(s) from block %d; range not in [0, %d)",
				count,
				start,
				img.totalBlocks,
			),
		)
	}
	return nil
}

// Block returns a mutable view of exactly one block. The slice aliases the
// image buffer; if it is modified the block MUST be marked dirty.
func (img *Image) Block(index uint) ([]byte, error) {
	return img.Slice(index, 1)
}

// Slice returns a mutable view of `count` consecutive blocks beginning at
// block `start`. The slice aliases the image buffer; modified blocks MUST be
// marked dirty.
func (img *Image) Slice(start, count uint) ([]byte, error) {
	if err := img.checkBounds(start, count); err != nil {
		return nil, err
	}

	startOffset := start * img.bytesPerBlock
	endOffset := startOffset + (count * img.bytesPerBlock)
	return img.data[startOffset:endOffset], nil
}

// Data returns the entire image buffer.
func (img *Image) Data() []byte {
	return img.data
}

// MarkRangeDirty records that `count` blocks beginning at `start` were
// modified, so the next Flush writes them out.
func (img *Image) MarkRangeDirty(start, count uint) error {
	if err := img.checkBounds(start, count); err != nil {
		return err
	}

	for i := uint(0); i < count; i++ {
		img.dirtyBlocks.Set(int(start+i), true)
	}
	return nil
}

// Zero overwrites the entire image with null bytes and marks every block
// dirty.
func (img *Image) Zero() {
	for i := range img.data {
		img.data[i] = 0
	}
	for i := uint(0); i < img.totalBlocks; i++ {
		img.dirtyBlocks.Set(int(i), true)
	}
}

// Flush writes every dirty block back to the backing stream and marks it
// clean. Images without a backing stream only reset their dirty map.
func (img *Image) Flush() error {
	for i := uint(0); i < img.totalBlocks; i++ {
		if !img.dirtyBlocks.Get(int(i)) {
			continue
		}

		if img.stream != nil {
			offset := int64(i) * int64(img.bytesPerBlock)
			if _, err := img.stream.Seek(offset, io.SeekStart); err != nil {
				return carve.ErrIOFailed.Wrap(err)
			}

			start := i * img.bytesPerBlock
			if _, err := img.stream.Write(img.data[start : start+img.bytesPerBlock]); err != nil {
				return carve.ErrIOFailed.WithMessage(
					fmt.Sprintf("failed to flush block %d to storage", i),
				).Wrap(err)
			}
		}

		img.dirtyBlocks.Set(int(i), false)
	}
	return nil
}
