// Package osinode wraps an fs.Inode with an open-file offset and
// readable/writable flags so it can sit behind an fd.Fd_t, matching
// rCore's os/src/fs/inode.rs OSInode. Offset tracking lives here rather
// than in fs.Inode because one on-disk inode can be open under several
// fds (dup, fork) each at a different position.
package osinode

import (
	"sync"

	"rvkernel/src/defs"
	"rvkernel/src/fdops"
	"rvkernel/src/fs"
	"rvkernel/src/stat"
)

var (
	rootMu sync.Mutex
	root   *fs.Inode
)

/// Init records the filesystem's root inode for Open to resolve names
/// against, called once at boot after the Easy-FS volume is mounted.
func Init(efs *fs.EasyFileSystem) {
	rootMu.Lock()
	root = efs.Root()
	rootMu.Unlock()
}

/// Ls lists the root directory, following the teacher's list_apps idiom.
func Ls() []string {
	rootMu.Lock()
	defer rootMu.Unlock()
	return root.Ls()
}

// OSInode is an open file: an inode plus a private read/write cursor.
type OSInode struct {
	readable bool
	writable bool

	mu     sync.Mutex
	offset int
	inode  *fs.Inode
}

/// Open resolves name against the root directory and applies flags,
/// matching rCore's open_file: O_CREAT with no existing file creates
/// one; O_CREAT on an existing file truncates it; O_TRUNC alone also
/// truncates. Returns -defs.ENOENT if the file is absent and O_CREAT is
/// not set.
func Open(name string, flags int) (*OSInode, defs.Err_t) {
	rootMu.Lock()
	defer rootMu.Unlock()

	readable := flags&defs.O_WRONLY == 0
	writable := flags&defs.O_WRONLY != 0 || flags&defs.O_RDWR != 0

	ino, err := root.Find(name)
	if err != 0 {
		if flags&defs.O_CREAT == 0 {
			return nil, err
		}
		ino, err = root.Create(name)
		if err != 0 {
			return nil, err
		}
		return &OSInode{readable: readable, writable: writable, inode: ino}, 0
	}

	if flags&defs.O_CREAT != 0 || flags&defs.O_TRUNC != 0 {
		ino.Clear()
	}
	return &OSInode{readable: readable, writable: writable, inode: ino}, 0
}

func (f *OSInode) Readable() bool { return f.readable }
func (f *OSInode) Writable() bool { return f.writable }

/// Read drains src's inode bytes from the file's current offset into
/// dst, advancing the offset by what was actually read.
func (f *OSInode) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	buf := make([]byte, 512)
	for dst.Remain() > 0 {
		want := len(buf)
		if r := dst.Remain(); r < want {
			want = r
		}
		n := f.inode.ReadAt(f.offset, buf[:want])
		if n == 0 {
			break
		}
		wn, err := dst.Uiowrite(buf[:n])
		if err != 0 {
			return total, err
		}
		f.offset += n
		total += wn
		if wn < n {
			break
		}
	}
	return total, 0
}

/// Write copies src into the inode at the file's current offset,
/// advancing the offset by what was written.
func (f *OSInode) Write(src fdops.Userio_i) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	buf := make([]byte, 512)
	for src.Remain() > 0 {
		want := len(buf)
		if r := src.Remain(); r < want {
			want = r
		}
		rn, err := src.Uioread(buf[:want])
		if err != 0 {
			return total, err
		}
		if rn == 0 {
			break
		}
		n := f.inode.WriteAt(f.offset, buf[:rn])
		f.offset += n
		total += n
		if n < rn {
			break
		}
	}
	return total, 0
}

func (f *OSInode) Close() defs.Err_t  { return 0 }
func (f *OSInode) Reopen() defs.Err_t { return 0 }

/// Stat fills out the file's kind, size, and block count, matching
/// biscuit's Ufs_t.Stat adapted to this filesystem's single Inode type
/// (no separate directory/link encodings to branch on).
func (f *OSInode) Stat() stat.Stat_t {
	f.mu.Lock()
	defer f.mu.Unlock()

	var st stat.Stat_t
	st.Wino(uint(f.inode.ID()))
	if f.inode.IsDir() {
		st.Wmode(stat.S_IFDIR)
	} else {
		st.Wmode(stat.S_IFREG)
	}
	size := f.inode.Size()
	st.Wsize(uint(size))
	st.Wblocks(uint(fs.TotalBlocksForSize(uint32(size))))
	return st
}

/// ReadAll slurps the whole file from the start, used to load the
/// initproc ELF image at boot and exec's images, matching rCore's
/// OSInode::read_all.
func (f *OSInode) ReadAll() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var v []byte
	buf := make([]byte, 512)
	off := 0
	for {
		n := f.inode.ReadAt(off, buf)
		if n == 0 {
			break
		}
		off += n
		v = append(v, buf[:n]...)
	}
	return v
}
