//go:build linux
// +build linux

package main

import (
	"github.com/google/gopacket/layers"

	"github.com/boxwifi/mlme/device/nl80211"
	"github.com/boxwifi/mlme/sme"
	"github.com/boxwifi/mlme/wire"
)

// bssDescription converts one kernel BSS table entry into the SME's
// shape. Entries without an SSID element are dropped.
func bssDescription(b *nl80211.BSS) (sme.BSSDescription, bool) {
	els, err := wire.ParseElements(b.IEs)
	if err != nil {
		return sme.BSSDescription{}, false
	}
	ssid, ok := els.SSID()
	if !ok {
		return sme.BSSDescription{}, false
	}
	desc := sme.BSSDescription{
		BSSID:            b.BSSID,
		SSID:             ssid,
		BeaconIntervalTU: 100,
		Channel:          nl80211.FreqToChannel(b.FreqMHz),
		RSSIDBm:          b.SignalDBm,
		Rates:            els.Rates(),
	}
	if ch, ok := els.DSChannel(); ok {
		desc.Channel = ch
	}
	if rsne, ok := els.Raw(layers.Dot11InformationElementIDRSNInfo); ok {
		desc.RSNE = rsne
	}
	if ht, ok := els.HTCapabilities(); ok {
		desc.HTCapabilities = ht.Raw
	}
	if vht, ok := els.VHTCapabilities(); ok {
		desc.VHTCapabilities = vht.Raw
	}
	return desc, true
}
