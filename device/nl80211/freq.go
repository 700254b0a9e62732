package nl80211

// ChannelToFreq maps an IEEE channel number to its center frequency in
// MHz. Returns 0 for channels outside the 2.4 and 5 GHz bands.
func ChannelToFreq(channel uint8) uint32 {
	switch {
	case channel == 14:
		return 2484
	case channel >= 1 && channel <= 13:
		return 2407 + uint32(channel)*5
	case channel >= 36 && channel <= 177:
		return 5000 + uint32(channel)*5
	default:
		return 0
	}
}

// FreqToChannel maps a center frequency in MHz back to its IEEE channel
// number. Returns 0 for frequencies outside the known bands.
func FreqToChannel(freqMHz uint32) uint8 {
	switch {
	case freqMHz == 2484:
		return 14
	case freqMHz >= 2412 && freqMHz < 2484:
		return uint8((freqMHz - 2407) / 5)
	case freqMHz >= 5180 && freqMHz <= 5885:
		return uint8((freqMHz - 5000) / 5)
	default:
		return 0
	}
}
