package mapfs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	carve "github.com/carvefs/carve"
	"github.com/carvefs/carve/file_systems/common"
)

// Dirent is the in-memory form of one directory entry record. A record whose
// name is empty and whose inode is 0 is a free slot; the root directory's own
// entry ("/", inode 0) is deliberately shaped like one so tree walks skip it.
type Dirent struct {
	Name  string
	Size  uint32
	Type  carve.EntryType
	Inode common.Inumber
}

// IsFree reports whether the record denotes a reusable slot.
func (ent Dirent) IsFree() bool {
	return ent.Name == "" && ent.Inode == 0
}

// entryRef is the location of one directory entry record inside the image,
// so the record can be rewritten in place after it has been found.
type entryRef struct {
	block  common.PhysicalBlock
	offset uint
}

func decodeDirent(record []byte) Dirent {
	name := record[:NameSize]
	if end := bytes.IndexByte(name, 0); end >= 0 {
		name = name[:end]
	}
	return Dirent{
		Name:  string(name),
		Size:  binary.LittleEndian.Uint32(record[NameSize:]),
		Type:  carve.EntryType(binary.LittleEndian.Uint32(record[NameSize+4:])),
		Inode: common.Inumber(binary.LittleEndian.Uint32(record[NameSize+8:])),
	}
}

func encodeDirent(record []byte, ent Dirent) {
	for i := 0; i < NameSize; i++ {
		record[i] = 0
	}
	copy(record[:NameSize], ent.Name)
	binary.LittleEndian.PutUint32(record[NameSize:], ent.Size)
	binary.LittleEndian.PutUint32(record[NameSize+4:], uint32(ent.Type))
	binary.LittleEndian.PutUint32(record[NameSize+8:], uint32(ent.Inode))
}

func (d *Driver) loadDirent(ref entryRef) (Dirent, error) {
	block, err := d.image.Block(uint(ref.block))
	if err != nil {
		return Dirent{}, err
	}
	return decodeDirent(block[ref.offset : ref.offset+DirentSize]), nil
}

func (d *Driver) storeDirent(ref entryRef, ent Dirent) error {
	block, err := d.image.Block(uint(ref.block))
	if err != nil {
		return err
	}
	encodeDirent(block[ref.offset:ref.offset+DirentSize], ent)
	return d.image.MarkRangeDirty(uint(ref.block), 1)
}

// forEachDirent walks every entry slot in every block of a directory inode's
// chain, in chain order, and calls `fn` for each. Returning true from `fn`
// stops the walk.
func (d *Driver) forEachDirent(
	inode Inode,
	fn func(ref entryRef, ent Dirent) (stop bool, err error),
) error {
	entriesPerBlock := uint(d.meta.BlockSize) / DirentSize

	for position := common.LogicalBlock(0); uint(position) < uint(inode.TotalRefs); position++ {
		block, err := d.chainBlock(inode, position)
		if err != nil {
			return err
		}
		data, err := d.image.Block(uint(block))
		if err != nil {
			return err
		}

		for slot := uint(0); slot < entriesPerBlock; slot++ {
			offset := slot * DirentSize
			ref := entryRef{block: block, offset: offset}
			stop, err := fn(ref, decodeDirent(data[offset:offset+DirentSize]))
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}

// findDirent returns the first entry of the directory whose name matches
// exactly. Searching for "" finds a free slot.
func (d *Driver) findDirent(dirInode Inode, name string) (entryRef, Dirent, bool, error) {
	var foundRef entryRef
	var found Dirent
	matched := false

	err := d.forEachDirent(dirInode, func(ref entryRef, ent Dirent) (bool, error) {
		if ent.Name == name {
			foundRef, found, matched = ref, ent, true
			return true, nil
		}
		return false, nil
	})
	return foundRef, found, matched, err
}

// countLiveDirents returns the number of entries in the directory that point
// at an inode.
func (d *Driver) countLiveDirents(dirInode Inode) (int, error) {
	count := 0
	err := d.forEachDirent(dirInode, func(_ entryRef, ent Dirent) (bool, error) {
		if ent.Inode != 0 {
			count++
		}
		return false, nil
	})
	return count, err
}

// findOrCreateDirent returns the entry named `name` in the directory owned by
// `dirInumber`, creating it with the given type if it doesn't exist. A new
// entry claims a free slot (growing the directory's chain by one block when
// none is left), gets a fresh inode, and the inode gets one initial data
// block. `created` tells the caller which case happened; the type of an
// existing entry is never touched.
func (d *Driver) findOrCreateDirent(
	dirInumber common.Inumber,
	name string,
	entryType carve.EntryType,
) (ref entryRef, ent Dirent, created bool, err error) {
	if name == "" {
		return entryRef{}, Dirent{}, false,
			carve.ErrInvalidArgument.WithMessage("entry names can't be empty")
	}
	if len(name) > NameSize-1 {
		return entryRef{}, Dirent{}, false, carve.ErrNameTooLong.WithMessage(
			fmt.Sprintf("%q is longer than %d bytes", name, NameSize-1))
	}

	dirInode, err := d.readInode(dirInumber)
	if err != nil {
		return entryRef{}, Dirent{}, false, err
	}

	ref, ent, ok, err := d.findDirent(dirInode, name)
	if err != nil {
		return entryRef{}, Dirent{}, false, err
	}
	if ok {
		return ref, ent, false, nil
	}

	// No entry with that name; claim a free slot, growing the directory by
	// one block if every slot is taken.
	ref, _, ok, err = d.findDirent(dirInode, "")
	if err != nil {
		return entryRef{}, Dirent{}, false, err
	}
	if !ok {
		block, err := d.growChain(dirInumber)
		if err != nil {
			return entryRef{}, Dirent{}, false, err
		}
		ref = entryRef{block: block, offset: 0}
	}

	inumber, err := d.allocateInode()
	if err != nil {
		return entryRef{}, Dirent{}, false, err
	}
	if err := d.writeInode(inumber, Inode{}); err != nil {
		return entryRef{}, Dirent{}, false, err
	}
	if _, err := d.growChain(inumber); err != nil {
		return entryRef{}, Dirent{}, false, err
	}

	ent = Dirent{
		Name:  name,
		Size:  0,
		Type:  entryType,
		Inode: inumber,
	}
	if err := d.storeDirent(ref, ent); err != nil {
		return entryRef{}, Dirent{}, false, err
	}
	return ref, ent, true, nil
}

// removeDirent destroys an entry: the backing inode's whole chain is released
// and both the inode record and the entry record are zeroed, turning the slot
// back into a free one.
func (d *Driver) removeDirent(ref entryRef) error {
	ent, err := d.loadDirent(ref)
	if err != nil {
		return err
	}
	if err := d.freeChain(ent.Inode); err != nil {
		return err
	}
	return d.storeDirent(ref, Dirent{})
}
