/*
Package mapfs implements a single-file, inode-based file system designed to
live inside a fixed-size disk image, manipulated entirely in memory the way a
memory-mapped file would be.

The image is carved into four sectors, in this order: one superblock holding
the metadata record, a free-block bitmap with one bit per block, a packed
inode table, and the data region. Directories are inodes whose blocks hold
packed directory entry records; files are inodes whose blocks hold raw bytes,
with the authoritative length recorded in the owning directory entry. Each
inode addresses its blocks through six direct references plus one indirect
block of 16-bit references.

All integers on disk are little-endian.
*/
package mapfs
