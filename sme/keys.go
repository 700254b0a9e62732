package sme

import (
	"crypto/sha1"

	"golang.org/x/crypto/pbkdf2"
)

// DerivePSK computes the 256-bit WPA pre-shared key from a passphrase
// and SSID. Key derivation stays on the SME side; the MLME never sees
// passphrases.
func DerivePSK(ssid, passphrase []byte) []byte {
	return pbkdf2.Key(passphrase, ssid, 4096, 32, sha1.New)
}
