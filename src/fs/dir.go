package fs

import (
	"rvkernel/src/defs"
	"rvkernel/src/ustr"
)

// DirEntry is one 32-byte record of the flat root directory: a 27-byte
// NUL-padded name followed by a 4-byte little-endian inode id (spec
// §4.E), matching rCore easy-fs's DirEntry layout exactly.
const (
	NAME_LENGTH_LIMIT = 27
	DIRENT_SIZE       = 32
)

type DirEntry struct {
	Name [NAME_LENGTH_LIMIT]byte
	Ino  uint32
}

func (d *DirEntry) Encode(buf []byte) {
	copy(buf[0:NAME_LENGTH_LIMIT], d.Name[:])
	putLE32(buf[NAME_LENGTH_LIMIT:DIRENT_SIZE], d.Ino)
}

func DecodeDirEntry(buf []byte) *DirEntry {
	d := &DirEntry{}
	copy(d.Name[:], buf[0:NAME_LENGTH_LIMIT])
	d.Ino = le32(buf[NAME_LENGTH_LIMIT:DIRENT_SIZE])
	return d
}

// NameStr decodes the NUL-padded on-disk name field, reusing ustr's
// NUL-truncation rather than re-walking the bytes here.
func (d *DirEntry) NameStr() string {
	return ustr.MkUstrSlice(d.Name[:]).String()
}

func mkDirEntry(name string, ino uint32) (*DirEntry, defs.Err_t) {
	if len(name) > NAME_LENGTH_LIMIT {
		return nil, -defs.ENAMETOOLONG
	}
	d := &DirEntry{Ino: ino}
	copy(d.Name[:], name)
	return d, 0
}

/// entryCount returns how many 32-byte directory records the root
/// directory inode currently holds.
func (ino *Inode) entryCount() int {
	return ino.Size() / DIRENT_SIZE
}

/// Find looks up name in the root directory, returning an Inode handle
/// for its entry, matching rCore easy-fs's Inode::find.
func (ino *Inode) Find(name string) (*Inode, defs.Err_t) {
	n := ino.entryCount()
	buf := make([]byte, DIRENT_SIZE)
	for i := 0; i < n; i++ {
		ino.ReadAt(i*DIRENT_SIZE, buf)
		d := DecodeDirEntry(buf)
		if d.NameStr() == name {
			return ino.efs.inodeAt(d.Ino), 0
		}
	}
	return nil, -defs.ENOENT
}

/// Ls lists every entry name in the root directory.
func (ino *Inode) Ls() []string {
	n := ino.entryCount()
	buf := make([]byte, DIRENT_SIZE)
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ino.ReadAt(i*DIRENT_SIZE, buf)
		d := DecodeDirEntry(buf)
		names = append(names, d.NameStr())
	}
	return names
}

/// Create makes a new, empty file named name in the root directory and
/// returns a handle to it. Fails with EEXIST if the name is already
/// present, matching rCore easy-fs's Inode::create.
func (ino *Inode) Create(name string) (*Inode, defs.Err_t) {
	if existing, err := ino.Find(name); err == 0 {
		_ = existing
		return nil, -defs.EEXIST
	}
	id := ino.efs.allocInode()
	d, err := mkDirEntry(name, id)
	if err != 0 {
		return nil, err
	}
	buf := make([]byte, DIRENT_SIZE)
	d.Encode(buf)
	ino.WriteAt(ino.Size(), buf)
	return ino.efs.inodeAt(id), 0
}
