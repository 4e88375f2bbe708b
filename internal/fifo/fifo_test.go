package fifo

import "testing"

func TestRingWriteRead(t *testing.T) {
	r := NewRing(8)
	n := r.Write([]byte{1, 2, 3, 4, 5}, nil)
	if n != 5 {
		t.Fatalf("wrote %d, want 5", n)
	}
	if r.Occupied() != 5 {
		t.Fatalf("occupied = %d, want 5", r.Occupied())
	}
	out := make([]byte, 5)
	n = r.Read(out)
	if n != 5 {
		t.Fatalf("read %d, want 5", n)
	}
	for i, b := range []byte{1, 2, 3, 4, 5} {
		if out[i] != b {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], b)
		}
	}
	if r.Occupied() != 0 {
		t.Fatalf("occupied after drain = %d, want 0", r.Occupied())
	}
}

func TestRingWriteStopsWhenFull(t *testing.T) {
	r := NewRing(4) // holds 3 bytes at once
	n := r.Write([]byte{1, 2, 3, 4, 5}, nil)
	if n != 3 {
		t.Fatalf("wrote %d, want 3 (ring holds size-1 bytes)", n)
	}
	if r.Space() != 0 {
		t.Fatalf("space = %d, want 0", r.Space())
	}
}

func TestRingWraps(t *testing.T) {
	r := NewRing(4)
	r.Write([]byte{1, 2, 3}, nil)
	out := make([]byte, 2)
	r.Read(out)
	n := r.Write([]byte{4, 5}, nil)
	if n != 2 {
		t.Fatalf("wrote %d after wraparound, want 2", n)
	}
	rest := make([]byte, 3)
	got := r.Read(rest)
	if got != 3 {
		t.Fatalf("read %d after wraparound, want 3", got)
	}
	want := []byte{3, 4, 5}
	for i := range want {
		if rest[i] != want[i] {
			t.Fatalf("rest[%d] = %d, want %d", i, rest[i], want[i])
		}
	}
}

func TestRingSumCallback(t *testing.T) {
	r := NewRing(8)
	var sum int
	r.Write([]byte{1, 2, 3}, func(b byte) { sum += int(b) })
	if sum != 6 {
		t.Fatalf("sum = %d, want 6", sum)
	}
}
