package carve

import "io"

// EntryType is the on-disk type tag of a directory entry.
type EntryType uint32

const (
	// EntryTypeFile marks an entry whose inode holds a raw byte stream.
	EntryTypeFile EntryType = iota
	// EntryTypeDirectory marks an entry whose inode holds packed directory
	// entry records.
	EntryTypeDirectory
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeFile:
		return "file"
	case EntryTypeDirectory:
		return "directory"
	}
	return "unknown"
}

// FSStat is a snapshot of the usage statistics of a mounted file system.
type FSStat struct {
	// TotalBlocks is the total number of blocks in the image, including the
	// blocks occupied by the superblock, bitmap and inode table.
	TotalBlocks uint64
	// BlocksFree is the number of unallocated blocks in the data sector.
	BlocksFree uint64
	// TotalInodes is the number of slots in the inode table.
	TotalInodes uint64
	// InodesFree is the number of unallocated inode slots. The root inode is
	// permanently allocated and never counts as free.
	InodesFree uint64
	// BlockSize is the size of a single block, in bytes.
	BlockSize uint64
	// MaxNameLength is the longest directory entry name the file system can
	// store, in bytes.
	MaxNameLength uint64
}

// FileSystem is the operation surface a formatted image exposes to callers
// such as the command line tool.
//
// Paths are slash-delimited and resolved from the root directory; leading,
// trailing and repeated slashes are ignored. File content enters through an
// io.Reader and leaves through an io.Writer; the file system never retains
// either beyond the duration of a single call.
type FileSystem interface {
	// AddFile creates the file at `path`, creating intermediate directories
	// as needed, and fills it with everything read from `source`.
	AddFile(path string, source io.Reader) error

	// Extract writes the content of the file at `path` to `sink`.
	Extract(path string, sink io.Writer) error

	// Remove deletes the entry at `path` and prunes every ancestor directory
	// the deletion leaves empty. The root directory itself is never removed.
	Remove(path string) error

	// List writes a recursive listing of the whole tree to `sink`, indented
	// one space per nesting level.
	List(sink io.Writer) error

	// DebugWalk follows `path` one component at a time, writing each
	// directory level visited and the target entry to `sink`.
	DebugWalk(path string, sink io.Writer) error

	// FSStat reports usage statistics for the image.
	FSStat() FSStat

	// Flush writes all modified blocks back to the backing storage.
	Flush() error
}
