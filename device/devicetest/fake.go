// Package devicetest provides a scripted device.Device for tests.
package devicetest

import (
	"net"

	"github.com/boxwifi/mlme/device"
)

// Fake records every call made against it and fails calls according to
// the scripted error fields.
type Fake struct {
	Caps *device.Capabilities

	SentFrames [][]byte
	SentFlags  []device.TxFlags
	Ethernet   [][]byte
	Channels   []device.Channel
	BSSConfigs []*device.BSSConfig
	HWScans    []*device.HWScanRequest

	SendFrameErr  error
	SetChannelErr error
	HWScanErr     error
}

// New returns a Fake with plausible station capabilities.
func New() *Fake {
	return &Fake{
		Caps: &device.Capabilities{
			MACAddr:        net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xAA, 0xBB},
			SupportedRates: []byte{0x82, 0x84, 0x8B, 0x96, 0x0C, 0x12, 0x18, 0x24},
		},
	}
}

func (f *Fake) SendFrame(frame []byte, flags device.TxFlags) error {
	if f.SendFrameErr != nil {
		return f.SendFrameErr
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.SentFrames = append(f.SentFrames, cp)
	f.SentFlags = append(f.SentFlags, flags)
	return nil
}

func (f *Fake) SetChannel(ch device.Channel) error {
	if f.SetChannelErr != nil {
		return f.SetChannelErr
	}
	f.Channels = append(f.Channels, ch)
	return nil
}

func (f *Fake) ConfigureBSS(cfg *device.BSSConfig) error {
	f.BSSConfigs = append(f.BSSConfigs, cfg)
	return nil
}

func (f *Fake) DeliverEthernet(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.Ethernet = append(f.Ethernet, cp)
	return nil
}

func (f *Fake) Capabilities() *device.Capabilities { return f.Caps }

func (f *Fake) StartHWScan(req *device.HWScanRequest) error {
	if f.HWScanErr != nil {
		return f.HWScanErr
	}
	if !f.Caps.HWScanOffload {
		return device.ErrNotSupported
	}
	f.HWScans = append(f.HWScans, req)
	return nil
}

// LastFrame returns the most recently sent frame, or nil.
func (f *Fake) LastFrame() []byte {
	if len(f.SentFrames) == 0 {
		return nil
	}
	return f.SentFrames[len(f.SentFrames)-1]
}

// Reset clears the recorded calls but keeps the scripted behavior.
func (f *Fake) Reset() {
	f.SentFrames = nil
	f.SentFlags = nil
	f.Ethernet = nil
	f.Channels = nil
	f.BSSConfigs = nil
	f.HWScans = nil
}
