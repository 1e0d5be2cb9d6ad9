package random

import "testing"

func TestNewRandIsDeterministic(t *testing.T) {
	a := NewRand(42)
	b := NewRand(42)
	for i := 0; i < 16; i++ {
		if x, y := a.Float64(), b.Float64(); x != y {
			t.Fatalf("draw %d differs: %v != %v", i, x, y)
		}
	}
}

func TestNewSeededRand(t *testing.T) {
	r, err := NewSeededRand()
	if err != nil {
		t.Fatalf("new seeded rand: %v", err)
	}
	if v := r.Float64(); v < 0 || v >= 1 {
		t.Fatalf("Float64 out of range: %v", v)
	}
}
