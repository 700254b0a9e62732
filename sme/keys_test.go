package sme

import (
	"encoding/hex"
	"testing"
)

// Vectors from IEEE 802.11i Annex H.4.
func TestDerivePSK(t *testing.T) {
	for _, tc := range []struct {
		ssid       string
		passphrase string
		wantHex    string
	}{
		{"IEEE", "password", "f42c6fc52df0ebef9ebb4b90b38a5f902e83fe1b135a70e23aed762e9710a12e"},
		{"ThisIsASSID", "ThisIsAPassword", "0dc0d6eb90555ed6419756b9a15ec3e3209b63df707dd508d14581f8982721af"},
	} {
		got := hex.EncodeToString(DerivePSK([]byte(tc.ssid), []byte(tc.passphrase)))
		if got != tc.wantHex {
			t.Errorf("DerivePSK(%q, %q) = %s, want %s", tc.ssid, tc.passphrase, got, tc.wantHex)
		}
	}
}
