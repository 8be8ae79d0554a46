package pipe

import (
	"runtime"
	"testing"

	"rvkernel/src/defs"
	"rvkernel/src/limits"
)

// sliceSource is a fdops.Userio_i reading from a fixed byte slice.
type sliceSource struct{ data []byte }

func (s *sliceSource) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, s.data)
	s.data = s.data[n:]
	return n, 0
}
func (s *sliceSource) Uiowrite(src []uint8) (int, defs.Err_t) { panic("not used") }
func (s *sliceSource) Remain() int                            { return len(s.data) }
func (s *sliceSource) Totalsz() int                            { return len(s.data) }

// sliceSink is a fdops.Userio_i writing into a growable byte slice.
type sliceSink struct{ data []byte }

func (s *sliceSink) Uioread(dst []uint8) (int, defs.Err_t) { panic("not used") }
func (s *sliceSink) Uiowrite(src []uint8) (int, defs.Err_t) {
	s.data = append(s.data, src...)
	return len(src), 0
}
func (s *sliceSink) Remain() int   { return 1 << 20 }
func (s *sliceSink) Totalsz() int  { return 1 << 20 }

func TestWriteThenReadRoundTrip(t *testing.T) {
	r, w, perr := New()
	if perr != 0 {
		t.Fatalf("new: err %d", perr)
	}
	msg := []byte("hello pipe")
	n, err := w.Write(&sliceSource{data: msg})
	if err != 0 || n != len(msg) {
		t.Fatalf("write: n=%d err=%d", n, err)
	}
	sink := &sliceSink{}
	n, err = r.Read(sink)
	if err != 0 || n != len(msg) {
		t.Fatalf("read: n=%d err=%d", n, err)
	}
	if string(sink.data) != string(msg) {
		t.Fatalf("expected %q, got %q", msg, sink.data)
	}
}

func TestWriteBlocksWhenFullThenDrains(t *testing.T) {
	r, w, perr := New()
	if perr != 0 {
		t.Fatalf("new: err %d", perr)
	}
	full := make([]byte, PIPESIZE)
	for i := range full {
		full[i] = byte(i)
	}
	if n, err := w.Write(&sliceSource{data: full}); err != 0 || n != PIPESIZE {
		t.Fatalf("fill: n=%d err=%d", n, err)
	}

	extra := []byte{0xff}
	done := make(chan struct{})
	go func() {
		w.Write(&sliceSource{data: extra})
		close(done)
	}()
	runtime.Gosched()

	sink := &sliceSink{}
	if n, err := r.Read(sink); err != 0 || n != PIPESIZE {
		t.Fatalf("drain: n=%d err=%d", n, err)
	}
	<-done
}

func TestReadReturnsZeroOnceWriterGoneAndEmpty(t *testing.T) {
	r, w, perr := New()
	if perr != 0 {
		t.Fatalf("new: err %d", perr)
	}
	w.Close()
	w = nil // drop the only strong reference so rb.writer's weak pointer can fail to upgrade
	runtime.GC()
	sink := &sliceSink{}
	n, err := r.Read(sink)
	if err != 0 || n != 0 {
		t.Fatalf("expected (0, 0) reading from an abandoned empty pipe, got (%d, %d)", n, err)
	}
}

func TestReadOnClosedReadEndReturnsEBADF(t *testing.T) {
	r, _, perr := New()
	if perr != 0 {
		t.Fatalf("new: err %d", perr)
	}
	r.Close()
	sink := &sliceSink{}
	if _, err := r.Read(sink); err != -defs.EBADF {
		t.Fatalf("expected EBADF, got %d", err)
	}
}

func TestWriteOnClosedWriteEndReturnsEBADF(t *testing.T) {
	_, w, perr := New()
	if perr != 0 {
		t.Fatalf("new: err %d", perr)
	}
	w.Close()
	if _, err := w.Write(&sliceSource{data: []byte("x")}); err != -defs.EBADF {
		t.Fatalf("expected EBADF, got %d", err)
	}
}

func TestReadEndWriteIsInvalid(t *testing.T) {
	r, _, perr := New()
	if perr != 0 {
		t.Fatalf("new: err %d", perr)
	}
	if _, err := r.Write(&sliceSource{}); err != -defs.EINVAL {
		t.Fatalf("expected EINVAL, got %d", err)
	}
}

func TestNewFailsOncePipeCeilingExhaustedAndCloseGivesBack(t *testing.T) {
	saved := *limits.Syslimit
	defer func() { *limits.Syslimit = saved }()
	limits.Syslimit.Pipes = 1

	r, _, perr := New()
	if perr != 0 {
		t.Fatalf("expected the first pipe within the ceiling to succeed, got err %d", perr)
	}
	if _, _, perr := New(); perr != -defs.EMFILE {
		t.Fatalf("expected EMFILE once the pipe ceiling is exhausted, got %d", perr)
	}
	r.Close()
	if _, _, perr := New(); perr != 0 {
		t.Fatalf("expected closing the read end to give back a unit, got err %d", perr)
	}
}

func TestWriteEndReadIsInvalid(t *testing.T) {
	_, w, perr := New()
	if perr != 0 {
		t.Fatalf("new: err %d", perr)
	}
	if _, err := w.Read(&sliceSink{}); err != -defs.EINVAL {
		t.Fatalf("expected EINVAL, got %d", err)
	}
}
