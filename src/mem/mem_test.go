package mem

import "testing"

func TestFrameAllocRecyclesBeforeBumping(t *testing.T) {
	Phys_init(10, 13) // 3 frames: ppn 10, 11, 12

	f1, err := Physmem.Frame_new()
	if err != nil {
		t.Fatalf("alloc 1: %v", err)
	}
	f2, err := Physmem.Frame_new()
	if err != nil {
		t.Fatalf("alloc 2: %v", err)
	}
	if f1.Ppn != 10 || f2.Ppn != 11 {
		t.Fatalf("expected bump order 10,11; got %v,%v", f1.Ppn, f2.Ppn)
	}

	f1.Free()

	f3, err := Physmem.Frame_new()
	if err != nil {
		t.Fatalf("alloc 3: %v", err)
	}
	if f3.Ppn != f1.Ppn {
		t.Fatalf("expected recycled ppn %v, got %v", f1.Ppn, f3.Ppn)
	}
}

func TestFrameAllocExhaustion(t *testing.T) {
	Phys_init(0, 1)
	if _, err := Physmem.Frame_new(); err != nil {
		t.Fatalf("first alloc should succeed: %v", err)
	}
	if _, err := Physmem.Frame_new(); err != ErrOOM {
		t.Fatalf("expected ErrOOM, got %v", err)
	}
}

func TestDoubleFreePanics(t *testing.T) {
	Phys_init(0, 2)
	f, err := Physmem.Frame_new()
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	f.Free()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on double free")
		}
	}()
	f.Free()
}

func TestFrameBytesZeroed(t *testing.T) {
	Phys_init(0, 1)
	f, err := Physmem.Frame_new()
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	pg := f.Bytes()
	for i, b := range pg {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %v", i, b)
		}
	}
}
