package trap

import "testing"

func TestTrapContextMarshalRoundTrip(t *testing.T) {
	cx := AppInitContext(0x1000, 0x2000, 0x3000, 0x4000, 0x5000)
	cx.X[5] = 0xdeadbeef

	data := cx.Marshal()
	if len(data) != trapContextSize {
		t.Fatalf("expected %d bytes, got %d", trapContextSize, len(data))
	}

	got := UnmarshalTrapContext(data)
	if got.Sepc != cx.Sepc || got.X[2] != cx.X[2] || got.X[5] != cx.X[5] {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, cx)
	}
	if got.KernelSatp != 0x3000 || got.KernelSp != 0x4000 || got.TrapHandler != 0x5000 {
		t.Fatalf("kernel bookkeeping fields not preserved: %+v", got)
	}
}

func TestAppInitContextSetsSpAndClearsSPP(t *testing.T) {
	cx := AppInitContext(0x1000, 0x2000, 0, 0, 0)
	if cx.X[2] != 0x2000 {
		t.Fatalf("expected sp in x2, got %#x", cx.X[2])
	}
	if cx.Sstatus&sstatusSPP != 0 {
		t.Fatalf("expected SPP cleared for user mode, got sstatus=%#x", cx.Sstatus)
	}
}
