package nl80211

import "testing"

func TestChannelFreqRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		channel uint8
		freqMHz uint32
	}{
		{1, 2412},
		{6, 2437},
		{11, 2462},
		{13, 2472},
		{14, 2484},
		{36, 5180},
		{149, 5745},
	} {
		if got := ChannelToFreq(tc.channel); got != tc.freqMHz {
			t.Errorf("ChannelToFreq(%d) = %d, want %d", tc.channel, got, tc.freqMHz)
		}
		if got := FreqToChannel(tc.freqMHz); got != tc.channel {
			t.Errorf("FreqToChannel(%d) = %d, want %d", tc.freqMHz, got, tc.channel)
		}
	}
}

func TestChannelToFreqUnknown(t *testing.T) {
	for _, ch := range []uint8{0, 15, 35, 200} {
		if got := ChannelToFreq(ch); got != 0 {
			t.Errorf("ChannelToFreq(%d) = %d, want 0", ch, got)
		}
	}
	if got := FreqToChannel(900); got != 0 {
		t.Errorf("FreqToChannel(900) = %d, want 0", got)
	}
}
