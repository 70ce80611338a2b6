package agent

import (
	"testing"
)

func TestRingBufferEvictsOldest(t *testing.T) {
	r := NewRingBuffer(3)

	for i, v := range []float64{1, 2, 3} {
		if _, evicted := r.Push(v); evicted {
			t.Fatalf("push %d evicted before buffer was full", i)
		}
	}
	if !r.Full() || r.Len() != 3 {
		t.Fatalf("expected full buffer of 3, got len %d", r.Len())
	}

	old, evicted := r.Push(4)
	if !evicted || old != 1 {
		t.Errorf("expected eviction of 1, got %v (%v)", old, evicted)
	}
	old, _ = r.Push(5)
	if old != 2 {
		t.Errorf("expected eviction of 2, got %v", old)
	}

	got := r.Values()
	want := []float64{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("values: expected %v, got %v", want, got)
		}
	}
	if r.Sum() != 12 || r.Mean() != 4 {
		t.Errorf("expected sum 12 mean 4, got %v / %v", r.Sum(), r.Mean())
	}
}

func TestRingBufferEmptyAndMinimumCapacity(t *testing.T) {
	r := NewRingBuffer(0)
	if r.Cap() != 1 {
		t.Fatalf("expected capacity clamped to 1, got %d", r.Cap())
	}
	if r.Mean() != 0 {
		t.Errorf("empty mean should be 0, got %v", r.Mean())
	}
	r.Push(7)
	if old, _ := r.Push(8); old != 7 {
		t.Errorf("expected 7 evicted, got %v", old)
	}
	if r.Mean() != 8 {
		t.Errorf("expected mean 8, got %v", r.Mean())
	}
}
