package mapfs

import (
	"fmt"
	"io"
	"strings"

	carve "github.com/carvefs/carve"
	"github.com/carvefs/carve/file_systems/common"
)

// pathCursor iterates over the components of a slash-delimited path, left to
// right. The cursor is passed explicitly through the recursive tree
// operations so each level consumes exactly one component.
type pathCursor struct {
	components []string
	position   int
}

func newPathCursor(path string) *pathCursor {
	parts := strings.Split(path, "/")
	components := parts[:0]
	for _, part := range parts {
		if part != "" {
			components = append(components, part)
		}
	}
	return &pathCursor{components: components}
}

func (cursor *pathCursor) next() (string, bool) {
	if cursor.position >= len(cursor.components) {
		return "", false
	}
	component := cursor.components[cursor.position]
	cursor.position++
	return component, true
}

func (cursor *pathCursor) empty() bool {
	return len(cursor.components) == 0
}

// AddFile creates the file at `path` and fills it with everything read from
// `source`. Intermediate components are created as directories when missing;
// an intermediate component that exists as a file is a type conflict. Adding
// over an existing file replaces its content; adding over an existing
// directory fails.
func (d *Driver) AddFile(path string, source io.Reader) error {
	if err := d.requireLoaded(); err != nil {
		return err
	}

	cursor := newPathCursor(path)
	if cursor.empty() {
		return carve.ErrInvalidArgument.WithMessage("empty path")
	}

	dirInumber := RootInumber
	name, _ := cursor.next()
	for {
		rest, more := cursor.next()
		if !more {
			break
		}

		_, ent, _, err := d.findOrCreateDirent(dirInumber, name, carve.EntryTypeDirectory)
		if err != nil {
			return err
		}
		if ent.Type != carve.EntryTypeDirectory {
			return carve.ErrNotADirectory.WithMessage(
				fmt.Sprintf("can't descend through file '%s'", name))
		}
		dirInumber = ent.Inode
		name = rest
	}

	ref, ent, created, err := d.findOrCreateDirent(dirInumber, name, carve.EntryTypeFile)
	if err != nil {
		return err
	}
	if !created {
		if ent.Type == carve.EntryTypeDirectory {
			return carve.ErrIsADirectory.WithMessage(
				fmt.Sprintf("'%s' exists as a directory", name))
		}
		if err := d.truncateFile(ref); err != nil {
			return err
		}
	}
	return d.writeFileContents(ref, source)
}

// Extract resolves `path` and streams the resulting file's content to `sink`.
// Descent stops as soon as a file entry is reached; any path components after
// it are silently ignored.
func (d *Driver) Extract(path string, sink io.Writer) error {
	if err := d.requireLoaded(); err != nil {
		return err
	}

	cursor := newPathCursor(path)
	if cursor.empty() {
		return carve.ErrInvalidArgument.WithMessage("empty path")
	}

	dirInumber := RootInumber
	var target Dirent
	for {
		name, more := cursor.next()
		if !more {
			break
		}

		dirInode, err := d.readInode(dirInumber)
		if err != nil {
			return err
		}
		_, ent, found, err := d.findDirent(dirInode, name)
		if err != nil {
			return err
		}
		if !found {
			return carve.ErrNotFound.WithMessage(fmt.Sprintf("no entry named '%s'", name))
		}

		target = ent
		if ent.Type != carve.EntryTypeDirectory {
			break
		}
		dirInumber = ent.Inode
	}

	return d.readFileContents(target, sink)
}

// Remove deletes the entry at `path`, then prunes every directory on the way
// back up that the deletion left empty. The root directory itself is never
// pruned.
func (d *Driver) Remove(path string) error {
	if err := d.requireLoaded(); err != nil {
		return err
	}

	cursor := newPathCursor(path)
	if cursor.empty() {
		return carve.ErrInvalidArgument.WithMessage("empty path")
	}
	return d.removeAlongPath(RootInumber, cursor)
}

// removeAlongPath resolves one component at this directory level and recurses
// depth-first. Pruning is strictly post-order: a subdirectory is only
// considered for removal after the recursive call beneath it has returned,
// and it is removed only if it holds no live entries by then. A file is
// removed as soon as it is resolved, ignoring any leftover components.
func (d *Driver) removeAlongPath(dirInumber common.Inumber, cursor *pathCursor) error {
	name, more := cursor.next()
	if !more {
		return nil
	}

	dirInode, err := d.readInode(dirInumber)
	if err != nil {
		return err
	}
	ref, ent, found, err := d.findDirent(dirInode, name)
	if err != nil {
		return err
	}
	if !found {
		return carve.ErrNotFound.WithMessage(fmt.Sprintf("no entry named '%s'", name))
	}

	if ent.Type == carve.EntryTypeDirectory {
		if err := d.removeAlongPath(ent.Inode, cursor); err != nil {
			return err
		}

		childInode, err := d.readInode(ent.Inode)
		if err != nil {
			return err
		}
		live, err := d.countLiveDirents(childInode)
		if err != nil {
			return err
		}
		if live == 0 {
			return d.removeDirent(ref)
		}
		return nil
	}
	return d.removeDirent(ref)
}

// List writes a recursive listing of the whole tree to `sink`. Files print as
// 'NAME' SIZE and directories as directory 'NAME': followed by their
// children, indented one space per nesting level. The root's own "/" record
// carries inode 0 and is skipped like any free slot, so a freshly formatted
// image lists nothing.
func (d *Driver) List(sink io.Writer) error {
	if err := d.requireLoaded(); err != nil {
		return err
	}
	return d.listDirectory(RootInumber, 0, sink)
}

func (d *Driver) listDirectory(dirInumber common.Inumber, level int, sink io.Writer) error {
	dirInode, err := d.readInode(dirInumber)
	if err != nil {
		return err
	}

	return d.forEachDirent(dirInode, func(_ entryRef, ent Dirent) (bool, error) {
		if ent.Inode == 0 {
			return false, nil
		}

		indent := strings.Repeat(" ", level)
		switch ent.Type {
		case carve.EntryTypeFile:
			if _, err := fmt.Fprintf(sink, "%s'%s' %d\n", indent, ent.Name, ent.Size); err != nil {
				return false, carve.ErrIOFailed.Wrap(err)
			}
		case carve.EntryTypeDirectory:
			if _, err := fmt.Fprintf(sink, "%sdirectory '%s':\n", indent, ent.Name); err != nil {
				return false, carve.ErrIOFailed.Wrap(err)
			}
			if err := d.listDirectory(ent.Inode, level+1, sink); err != nil {
				return false, err
			}
		}
		return false, nil
	})
}

// DebugWalk follows `path` one component at a time from the root, writing
// every directory entry passed on the way down plus the target entry (with
// inode numbers) to `sink`.
func (d *Driver) DebugWalk(path string, sink io.Writer) error {
	if err := d.requireLoaded(); err != nil {
		return err
	}

	cursor := newPathCursor(path)
	name, more := cursor.next()
	if !more {
		return carve.ErrInvalidArgument.WithMessage("empty path")
	}
	return d.debugWalk(RootInumber, 0, name, cursor, sink)
}

func (d *Driver) debugWalk(
	dirInumber common.Inumber,
	indent int,
	name string,
	cursor *pathCursor,
	sink io.Writer,
) error {
	dirInode, err := d.readInode(dirInumber)
	if err != nil {
		return err
	}

	matched := false
	descend := common.Inumber(0)

	err = d.forEachDirent(dirInode, func(_ entryRef, ent Dirent) (bool, error) {
		if ent.Inode == 0 {
			return false, nil
		}

		prefix := strings.Repeat(" ", indent+1)
		switch ent.Type {
		case carve.EntryTypeFile:
			if ent.Name == name {
				_, err := fmt.Fprintf(
					sink, "%s'%s' %d inode=%d\n", prefix, ent.Name, ent.Size, ent.Inode)
				if err != nil {
					return false, carve.ErrIOFailed.Wrap(err)
				}
				matched = true
				return true, nil
			}
		case carve.EntryTypeDirectory:
			_, err := fmt.Fprintf(
				sink, "%sdirectory '%s' inode=%d:\n", prefix, ent.Name, ent.Inode)
			if err != nil {
				return false, carve.ErrIOFailed.Wrap(err)
			}
			if ent.Name == name {
				matched = true
				descend = ent.Inode
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if !matched {
		return carve.ErrNotFound.WithMessage(fmt.Sprintf("no entry named '%s'", name))
	}

	if descend != 0 {
		rest, more := cursor.next()
		if !more {
			return nil
		}
		return d.debugWalk(descend, indent+1, rest, cursor, sink)
	}
	return nil
}
