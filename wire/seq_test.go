package wire

import "testing"

func TestSeqManagerIndependentCounters(t *testing.T) {
	m := NewSeqManager()
	if got := m.Next(testBSSID); got != 1 {
		t.Errorf("first base seq = %d, want 1", got)
	}
	if got := m.Next(testBSSID); got != 2 {
		t.Errorf("second base seq = %d, want 2", got)
	}
	if got := m.NextQoS(testBSSID, 6); got != 1 {
		t.Errorf("first QoS seq = %d, want 1", got)
	}
	if got := m.NextQoS(testBSSID, 0); got != 1 {
		t.Errorf("TID 0 should not share TID 6's counter, got %d", got)
	}
	if got := m.Next(testSTA); got != 1 {
		t.Errorf("peers should not share counters, got %d", got)
	}
}

func TestSeqManagerWraps(t *testing.T) {
	m := NewSeqManager()
	var last uint16
	for i := 0; i < seqModulus; i++ {
		last = m.Next(testBSSID)
	}
	if last != 0 {
		t.Errorf("seq after %d frames = %d, want wrap to 0", seqModulus, last)
	}
}
