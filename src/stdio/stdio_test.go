package stdio

import (
	"testing"

	"rvkernel/src/defs"
	"rvkernel/src/sbi"
)

type fakeUserio struct{ buf []byte }

func (f *fakeUserio) Uioread(dst []uint8) (int, defs.Err_t)  { return 0, 0 }
func (f *fakeUserio) Uiowrite(src []uint8) (int, defs.Err_t) { f.buf = append(f.buf, src...); return len(src), 0 }
func (f *fakeUserio) Remain() int                            { return 0 }
func (f *fakeUserio) Totalsz() int                           { return 0 }

// readerUserio feeds fixed bytes back out via Uioread, for driving
// writeConsole.
type readerUserio struct{ data []byte }

func (r *readerUserio) Uioread(dst []uint8) (int, defs.Err_t) {
	if len(r.data) == 0 {
		return 0, 0
	}
	n := copy(dst, r.data)
	r.data = r.data[n:]
	return n, 0
}
func (r *readerUserio) Uiowrite(src []uint8) (int, defs.Err_t) { return 0, 0 }
func (r *readerUserio) Remain() int                            { return len(r.data) }
func (r *readerUserio) Totalsz() int                            { return len(r.data) }

func installConsoleStub(t *testing.T, in []byte) (putchars *[]byte) {
	t.Helper()
	pos := 0
	out := []byte{}
	sbi.SetSbiCall(func(ext, fid uint64, arg0, arg1, arg2 uint64) (int64, uint64) {
		switch ext {
		case 0x01: // legacy putchar
			out = append(out, byte(arg0))
			return 0, 0
		case 0x02: // legacy getchar
			if pos >= len(in) {
				return 0, uint64(int64(-1))
			}
			ch := in[pos]
			pos++
			return 0, uint64(ch)
		default:
			t.Fatalf("unexpected sbi extension %#x", ext)
			return 0, 0
		}
	})
	t.Cleanup(func() { sbi.SetSbiCall(func(ext, fid uint64, a0, a1, a2 uint64) (int64, uint64) {
		panic("sbi: sbiCall has no assembly backing in this build")
	}) })
	return &out
}

func TestStdinReadYieldsUntilCharAvailable(t *testing.T) {
	installConsoleStub(t, []byte{0, 0, 'z'})

	yields := 0
	Yield = func() { yields++ }
	defer func() { Yield = func() {} }()

	var dst fakeUserio
	n, err := Stdin{}.Read(&dst)
	if err != 0 || n != 1 || string(dst.buf) != "z" {
		t.Fatalf("unexpected read result n=%d err=%d buf=%q", n, err, dst.buf)
	}
	if yields != 2 {
		t.Fatalf("expected Read to yield twice while waiting, got %d yields", yields)
	}
}

func TestStdinWriteIsInvalid(t *testing.T) {
	if _, err := (Stdin{}).Write(&fakeUserio{}); err != -defs.EINVAL {
		t.Fatalf("expected EINVAL, got %d", err)
	}
}

func TestStdoutReadIsInvalid(t *testing.T) {
	if _, err := (Stdout{}).Read(&fakeUserio{}); err != -defs.EINVAL {
		t.Fatalf("expected EINVAL, got %d", err)
	}
}

func TestStdoutWriteDrainsToConsole(t *testing.T) {
	out := installConsoleStub(t, nil)

	src := &readerUserio{data: []byte("hi")}
	n, err := (Stdout{}).Write(src)
	if err != 0 || n != 2 {
		t.Fatalf("unexpected write result n=%d err=%d", n, err)
	}
	if string(*out) != "hi" {
		t.Fatalf("expected console to receive %q, got %q", "hi", *out)
	}
}

func TestStderrWriteDrainsToConsole(t *testing.T) {
	out := installConsoleStub(t, nil)

	src := &readerUserio{data: []byte("oh no")}
	if _, err := (Stderr{}).Write(src); err != 0 {
		t.Fatalf("unexpected error %d", err)
	}
	if string(*out) != "oh no" {
		t.Fatalf("expected console to receive %q, got %q", "oh no", *out)
	}
}

func TestCloseAndReopenAreNoOps(t *testing.T) {
	if err := (Stdin{}).Close(); err != 0 {
		t.Fatalf("expected Close to succeed, got %d", err)
	}
	if err := (Stdout{}).Reopen(); err != 0 {
		t.Fatalf("expected Reopen to succeed, got %d", err)
	}
}

func TestReadLineStopsAtNewlineAndScrubs(t *testing.T) {
	installConsoleStub(t, []byte{'o', 'k', 0xff, '\n', 'x'})
	Yield = func() {}
	defer func() { Yield = func() {} }()

	got := ReadLine(32)
	if len(got) < 2 || got[0] != 'o' || got[1] != 'k' {
		t.Fatalf("expected valid prefix preserved, got %q", got)
	}
}

func TestReadLineStopsAtMaxLen(t *testing.T) {
	installConsoleStub(t, []byte("abcdefgh"))
	Yield = func() {}
	defer func() { Yield = func() {} }()

	got := ReadLine(3)
	if got != "abc" {
		t.Fatalf("expected truncation at maxLen, got %q", got)
	}
}
