package mlme

// LostBSSCounter detects a silently lost BSS. It is seeded with the
// configured timeout in beacon counts; every status check tick advances
// it, and every beacon heard from the associated BSS rewinds it fully.
type LostBSSCounter struct {
	timeout   uint32
	remaining uint32
	reported  bool
}

func NewLostBSSCounter(timeoutBeaconCount uint32) *LostBSSCounter {
	if timeoutBeaconCount == 0 {
		timeoutBeaconCount = 1
	}
	return &LostBSSCounter{timeout: timeoutBeaconCount, remaining: timeoutBeaconCount}
}

// Reset rewinds the counter on a beacon from the associated BSS.
func (c *LostBSSCounter) Reset() {
	c.remaining = c.timeout
	c.reported = false
}

// Advance consumes one status check tick. It returns true exactly once
// when the counter exhausts; later ticks without a Reset return false.
func (c *LostBSSCounter) Advance() bool {
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 && !c.reported {
		c.reported = true
		return true
	}
	return false
}
