package pdu

import "testing"

func TestNewBufferInitialState(t *testing.T) {
	b := NewBuffer(16)
	if b.Base != 0 || b.Scan != 0 || b.Append != 0 || b.Limit != 16 {
		t.Fatalf("unexpected initial cursors: %+v", b)
	}
	if b.Need != 1 {
		t.Fatalf("Need = %d, want 1", b.Need)
	}
	if !b.Invariant() {
		t.Fatal("invariant violated on fresh buffer")
	}
}

func TestAdvanceAndMarkScanned(t *testing.T) {
	b := NewBuffer(8)
	copy(b.Free(), []byte{1, 2, 3})
	b.Advance(3)
	if b.Append != 3 {
		t.Fatalf("append = %d, want 3", b.Append)
	}
	b.MarkScanned(2)
	if b.Scan != 2 {
		t.Fatalf("scan = %d, want 2", b.Scan)
	}
	if !b.Invariant() {
		t.Fatal("invariant violated")
	}
}

func TestAdvancePastLimitPanics(t *testing.T) {
	b := NewBuffer(4)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic advancing past limit")
		}
	}()
	b.Advance(5)
}

// TestOverflowNoSurplus covers the n <= L branch of spec §4.2: the
// decoded PDU consumes the whole buffer, so current_read is cleared
// (no successor buffer).
func TestOverflowNoSurplus(t *testing.T) {
	b := NewBuffer(16)
	copy(b.Free(), []byte{1, 2, 3, 4, 5})
	b.Advance(5)
	surplus := b.Overflow(5)
	if surplus != nil {
		t.Fatal("expected no surplus buffer when n == L")
	}
}

// TestOverflowWithSurplus covers the n > L branch: the trailing bytes
// of a second PDU already arrived in the same read and must move to a
// fresh buffer.
func TestOverflowWithSurplus(t *testing.T) {
	b := NewBuffer(16)
	copy(b.Free(), []byte{1, 2, 3, 4, 5, 6, 7})
	b.Advance(7)
	surplus := b.Overflow(5)
	if surplus == nil {
		t.Fatal("expected a surplus buffer when n > L")
	}
	if surplus.Len() != 2 {
		t.Fatalf("surplus.Len() = %d, want 2", surplus.Len())
	}
	want := []byte{6, 7}
	got := surplus.Bytes()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("surplus[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if b.Len() != 5 {
		t.Fatalf("trimmed buffer Len() = %d, want 5", b.Len())
	}
}

func TestLocalPoolAcquireRelease(t *testing.T) {
	global := NewGlobalPool(32)
	lp := NewLocalPool(global, 32)
	b1 := lp.Acquire()
	b1.Advance(4)
	lp.Release(b1)
	b2 := lp.Acquire()
	if b2 != b1 {
		t.Fatal("expected Acquire to reuse the released buffer")
	}
	if b2.Append != 0 {
		t.Fatalf("reused buffer was not reset: append = %d", b2.Append)
	}
}

func TestLocalPoolRefillsFromGlobal(t *testing.T) {
	global := NewGlobalPool(16)
	producer := NewLocalPool(global, 16)
	var bufs []*Buffer
	for i := 0; i < 40; i++ {
		bufs = append(bufs, producer.Acquire())
	}
	// Releasing more than four refill batches forces a hand-up to the
	// global pool.
	for _, b := range bufs {
		producer.Release(b)
	}
	for i := 0; i < 40; i++ {
		producer.Release(producer.Acquire())
	}
	consumer := NewLocalPool(global, 16)
	got := consumer.Acquire()
	if got == nil {
		t.Fatal("expected consumer to acquire a buffer refilled from the global pool")
	}
	handedUp := false
	for _, b := range bufs {
		if b == got {
			handedUp = true
		}
	}
	if !handedUp {
		t.Fatal("expected consumer to reuse a buffer the producer handed up to the global pool")
	}
}
