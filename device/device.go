// Package device is the boundary between the MLME and a wireless
// driver. Implementations translate these calls into whatever the
// platform offers; the in-tree one speaks nl80211.
package device

import (
	"errors"
	"net"
)

// ErrNotSupported is returned for operations the underlying hardware
// cannot perform, such as hardware scan offload.
var ErrNotSupported = errors.New("device: operation not supported")

// TxFlags qualifies a frame handed to SendFrame.
type TxFlags uint32

const (
	// TxFlagFavorReliability asks the driver to prefer a robust rate
	// over throughput. Set for management and EAPOL frames.
	TxFlagFavorReliability TxFlags = 1 << 0
)

// ChannelWidth is the operating bandwidth of a channel.
type ChannelWidth uint8

const (
	ChannelWidth20 ChannelWidth = iota
	ChannelWidth40
	ChannelWidth80
)

// Channel identifies an operating channel by its IEEE number.
type Channel struct {
	Number uint8
	Width  ChannelWidth
}

// PHY is the modulation family a frame was received with.
type PHY uint8

const (
	PHYUnknown PHY = iota
	PHYDSSS
	PHYOFDM
	PHYHT
	PHYVHT
)

// RxInfo is per-frame receive metadata supplied by the driver.
type RxInfo struct {
	Channel uint8
	RSSIDBm int8
	PHY     PHY
}

// BSSConfig tells the driver which BSS the station is joined to so it
// can program filters and rate control. A nil config clears the join.
type BSSConfig struct {
	BSSID   net.HardwareAddr
	AID     uint16
	Channel Channel
}

// HWScanRequest describes a scan to be run by firmware.
type HWScanRequest struct {
	Passive  bool
	Channels []uint8
	SSIDs    [][]byte
}

// Capabilities reports what the hardware can do. Rates are in 0.5 Mbps
// units; HTCapabilities and VHTCapabilities are raw element bodies to
// copy into association requests.
type Capabilities struct {
	MACAddr         net.HardwareAddr
	SupportedRates  []byte
	HTCapabilities  []byte
	VHTCapabilities []byte
	HWScanOffload   bool
}

// Device is the driver seen from the MLME. Calls are made from the
// MLME's single event loop and must not be blocked on for long.
type Device interface {
	// SendFrame transmits one complete 802.11 frame, FCS excluded.
	SendFrame(frame []byte, flags TxFlags) error
	// SetChannel tunes the radio.
	SetChannel(ch Channel) error
	// ConfigureBSS programs or clears the joined BSS.
	ConfigureBSS(cfg *BSSConfig) error
	// DeliverEthernet hands a decapsulated frame to the netstack.
	DeliverEthernet(frame []byte) error
	// Capabilities describes the hardware.
	Capabilities() *Capabilities
	// StartHWScan begins a firmware-offloaded scan. Drivers without
	// offload return ErrNotSupported.
	StartHWScan(req *HWScanRequest) error
}
