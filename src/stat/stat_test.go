package stat

import (
	"testing"
	"unsafe"
)

func TestAccessorsRoundTrip(t *testing.T) {
	var st Stat_t
	st.Wino(7)
	st.Wmode(S_IFDIR)
	st.Wsize(4096)
	st.Wblocks(2)

	if st.Rino() != 7 || st.Mode() != S_IFDIR || st.Size() != 4096 || st.Blocks() != 2 {
		t.Fatalf("unexpected accessor values: %+v", st)
	}
}

func TestBytesLengthMatchesStructSize(t *testing.T) {
	var st Stat_t
	b := st.Bytes()
	if len(b) != int(unsafe.Sizeof(st)) {
		t.Fatalf("expected Bytes() to expose all %d bytes, got %d", unsafe.Sizeof(st), len(b))
	}
}

func TestBytesAliasesTheStructItWraps(t *testing.T) {
	var st Stat_t
	st.Wmode(S_IFDIR)
	b := st.Bytes()
	st.Wmode(S_IFREG)
	if st2 := (*Stat_t)(unsafe.Pointer(&b[0])); st2.Mode() != S_IFREG {
		t.Fatalf("expected Bytes() to alias live struct memory, mode=%d", st2.Mode())
	}
}
