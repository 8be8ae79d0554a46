package osinode

import (
	"testing"

	"rvkernel/src/defs"
	"rvkernel/src/fs"
	"rvkernel/src/stat"
)

type ramDisk struct {
	blocks [][fs.BSIZE]byte
}

func newRamDisk(n int) *ramDisk { return &ramDisk{blocks: make([][fs.BSIZE]byte, n)} }

func (r *ramDisk) ReadBlock(id int, buf *[fs.BSIZE]byte)  { *buf = r.blocks[id] }
func (r *ramDisk) WriteBlock(id int, buf *[fs.BSIZE]byte) { r.blocks[id] = *buf }

// byteSource is a fdops.Userio_i reading out of a fixed byte slice, used
// as the src a Write call drains.
type byteSource struct{ data []byte }

func (b *byteSource) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, b.data)
	b.data = b.data[n:]
	return n, 0
}
func (b *byteSource) Uiowrite(src []uint8) (int, defs.Err_t) { panic("not used") }
func (b *byteSource) Remain() int                            { return len(b.data) }
func (b *byteSource) Totalsz() int                           { return len(b.data) }

// byteSink is a fdops.Userio_i accumulating whatever a Read call copies
// into it; Remain reports the fixed capacity still open, not the bytes
// already collected.
type byteSink struct {
	data []byte
	cap  int
}

func (b *byteSink) Uioread(dst []uint8) (int, defs.Err_t) { panic("not used") }
func (b *byteSink) Uiowrite(src []uint8) (int, defs.Err_t) {
	n := len(src)
	if n > b.cap {
		n = b.cap
	}
	b.data = append(b.data, src[:n]...)
	b.cap -= n
	return n, 0
}
func (b *byteSink) Remain() int  { return b.cap }
func (b *byteSink) Totalsz() int { return b.cap }

func newByteSink(capacity int) *byteSink { return &byteSink{cap: capacity} }

const testTotalBlocks = 4096
const testInodeBitmapBlocks = 1

func mountFreshFS(t *testing.T) {
	t.Helper()
	dev := newRamDisk(testTotalBlocks)
	efs := fs.Create(dev, testTotalBlocks, testInodeBitmapBlocks)
	Init(efs)
}

func TestOpenMissingWithoutCreateReturnsENOENT(t *testing.T) {
	mountFreshFS(t)
	if _, err := Open("nope", 0); err == 0 {
		t.Fatalf("expected an error opening a missing file without O_CREAT")
	}
}

func TestCreateWriteReadAllRoundTrip(t *testing.T) {
	mountFreshFS(t)
	f, err := Open("greeting", defs.O_CREAT|defs.O_RDWR)
	if err != 0 {
		t.Fatalf("create: err %d", err)
	}
	msg := []byte("hello osinode")
	n, werr := f.Write(&byteSource{data: append([]byte{}, msg...)})
	if werr != 0 || n != len(msg) {
		t.Fatalf("write: n=%d err=%d", n, werr)
	}

	reopened, err := Open("greeting", 0)
	if err != 0 {
		t.Fatalf("reopen: err %d", err)
	}
	got := reopened.ReadAll()
	if string(got) != string(msg) {
		t.Fatalf("expected %q, got %q", msg, got)
	}
}

func TestOCreatOnExistingFileTruncates(t *testing.T) {
	mountFreshFS(t)
	f, _ := Open("f", defs.O_CREAT|defs.O_RDWR)
	f.Write(&byteSource{data: []byte("old content")})

	truncated, err := Open("f", defs.O_CREAT|defs.O_RDWR)
	if err != 0 {
		t.Fatalf("reopen with O_CREAT: err %d", err)
	}
	if got := truncated.ReadAll(); len(got) != 0 {
		t.Fatalf("expected truncated file to read empty, got %q", got)
	}
}

func TestReadCopiesFromCurrentOffset(t *testing.T) {
	mountFreshFS(t)
	f, _ := Open("f", defs.O_CREAT|defs.O_RDWR)
	f.Write(&byteSource{data: []byte("0123456789")})

	reopened, _ := Open("f", 0)
	sink := newByteSink(64)
	n, err := reopened.Read(sink)
	if err != 0 {
		t.Fatalf("read: err %d", err)
	}
	if n != 10 || string(sink.data) != "0123456789" {
		t.Fatalf("expected full 10-byte read, got n=%d data=%q", n, sink.data)
	}
}

func TestStatReflectsKindSizeAndBlocks(t *testing.T) {
	mountFreshFS(t)
	f, _ := Open("f", defs.O_CREAT|defs.O_RDWR)
	f.Write(&byteSource{data: []byte("0123456789")})

	st := f.Stat()
	if st.Mode() != stat.S_IFREG {
		t.Fatalf("expected a regular file, got mode %d", st.Mode())
	}
	if st.Size() != 10 {
		t.Fatalf("expected size 10, got %d", st.Size())
	}
	if st.Blocks() == 0 {
		t.Fatalf("expected at least one block occupied")
	}
}

func TestReadableWritableReflectFlags(t *testing.T) {
	mountFreshFS(t)
	f, _ := Open("f", defs.O_CREAT|defs.O_WRONLY)
	if f.Readable() {
		t.Fatalf("expected O_WRONLY file to not be readable")
	}
	if !f.Writable() {
		t.Fatalf("expected O_WRONLY file to be writable")
	}
}
