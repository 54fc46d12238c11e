// Package common contains definitions of fundamental types shared by the
// file system implementation and its supporting packages.
package common

// PhysicalBlock is the index of a block in the disk image, counted from the
// start of the image. Block references stored inside inodes and indirect
// blocks are 16 bits wide, so an image can address at most 65536 blocks.
type PhysicalBlock uint16

// LogicalBlock is the position of a block within an inode's chain, counted
// from 0 regardless of where the underlying physical blocks live.
type LogicalBlock uint16

// Inumber is the index of an inode in the inode table. Inode 0 always belongs
// to the root directory.
type Inumber uint32

// Truncator is an interface for objects that support a Truncate() method
// behaving like [os.File.Truncate].
type Truncator interface {
	Truncate(size int64) error
}
