package idalloc

import "testing"

func TestZeroReserved(t *testing.T) {
	a := New(128)
	// New(128) hands out IDs 1..127: 127 allocations exhaust it.
	for i := 0; i < 127; i++ {
		id, err := a.Alloc()
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		if id == 0 {
			t.Fatal("ID 0 must never be allocated")
		}
	}
}

func TestAllocFreeReuse(t *testing.T) {
	a := New(64)
	ids := make(map[uint32]bool)
	for i := 0; i < 63; i++ {
		id, err := a.Alloc()
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		if ids[id] {
			t.Fatalf("duplicate ID %d", id)
		}
		ids[id] = true
	}
	if _, err := a.Alloc(); err == nil {
		t.Fatal("expected pool exhaustion")
	}
	for id := range ids {
		if err := a.Free(id); err != nil {
			t.Fatalf("Free(%d): %v", id, err)
		}
		break
	}
	if _, err := a.Alloc(); err != nil {
		t.Fatalf("expected reuse after free: %v", err)
	}
}

func TestDoubleFree(t *testing.T) {
	a := New(64)
	id, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := a.Free(id); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if err := a.Free(id); err == nil {
		t.Fatal("expected double-free error")
	}
}

func TestNewToken64Distinct(t *testing.T) {
	a, err := NewToken64()
	if err != nil {
		t.Fatalf("NewToken64: %v", err)
	}
	b, err := NewToken64()
	if err != nil {
		t.Fatalf("NewToken64: %v", err)
	}
	if a == b {
		t.Fatal("two consecutive tokens collided, extremely unlikely")
	}
}
