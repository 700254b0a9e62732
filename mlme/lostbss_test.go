package mlme

import "testing"

func TestLostBSSCounterExhaustsAfterN(t *testing.T) {
	const n = 5
	c := NewLostBSSCounter(n)
	for i := 0; i < n-1; i++ {
		if c.Advance() {
			t.Fatalf("exhausted after %d ticks, want %d", i+1, n)
		}
	}
	if !c.Advance() {
		t.Fatalf("not exhausted after %d ticks", n)
	}
	if c.Advance() {
		t.Fatal("exhaustion reported twice")
	}
}

func TestLostBSSCounterResetRewindsFully(t *testing.T) {
	const n = 3
	c := NewLostBSSCounter(n)
	c.Advance()
	c.Advance()
	c.Reset()
	for i := 0; i < n-1; i++ {
		if c.Advance() {
			t.Fatalf("exhausted after %d ticks post reset, want %d", i+1, n)
		}
	}
	if !c.Advance() {
		t.Fatal("counter did not exhaust after full rewind")
	}
}

func TestLostBSSCounterResetAfterExhaustionReportsAgain(t *testing.T) {
	c := NewLostBSSCounter(1)
	if !c.Advance() {
		t.Fatal("counter with timeout 1 did not exhaust on first tick")
	}
	c.Reset()
	if !c.Advance() {
		t.Fatal("counter did not report exhaustion again after reset")
	}
}
