//go:build linux
// +build linux

// Package nl80211 implements device.Device on top of generic netlink
// and nl80211. Management frames go out through NL80211_CMD_FRAME and
// come back in on the mlme multicast group; scans are offloaded to the
// kernel via TRIGGER_SCAN.
package nl80211

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/boxwifi/mlme/device"
)

// ErrInterfaceNotFound is returned by Dial when the named interface is
// not a known nl80211 interface.
var ErrInterfaceNotFound = errors.New("nl80211: interface not found")

// Config configures a Client.
type Config struct {
	// Interface is the station interface name, e.g. "wlan0".
	Interface string
	// EthernetSink receives decapsulated frames bound for the
	// netstack. Nil sinks drop them.
	EthernetSink func([]byte) error
	Logger       *zap.Logger
}

// Client is the Linux implementation of device.Device. One Client owns
// one genetlink connection and one station interface.
type Client struct {
	c             *genetlink.Conn
	familyID      uint16
	familyVersion uint8
	groups        []genetlink.MulticastGroup

	ifindex uint32
	mac     net.HardwareAddr
	caps    *device.Capabilities
	sink    func([]byte) error
	log     *zap.Logger

	// current operating frequency for frame TX
	freqMHz uint32
}

// Dial opens a generic netlink connection, resolves the nl80211 family
// and binds to the named interface.
func Dial(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	conn, err := genetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("nl80211: dial genetlink: %w", err)
	}

	// Best effort: strict options give better errors but are not
	// available on older kernels.
	for _, o := range []netlink.ConnOption{
		netlink.ExtendedAcknowledge,
		netlink.GetStrictCheck,
		netlink.NoENOBUFS,
	} {
		_ = conn.SetOption(o, true)
	}

	c, err := initClient(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func initClient(conn *genetlink.Conn, cfg Config) (*Client, error) {
	family, err := conn.GetFamily(unix.NL80211_GENL_NAME)
	if err != nil {
		return nil, fmt.Errorf("nl80211: resolve family: %w", err)
	}

	c := &Client{
		c:             conn,
		familyID:      family.ID,
		familyVersion: family.Version,
		groups:        family.Groups,
		sink:          cfg.EthernetSink,
		log:           cfg.Logger,
	}
	if err := c.bindInterface(cfg.Interface); err != nil {
		return nil, err
	}
	c.caps = &device.Capabilities{
		MACAddr: c.mac,
		// 802.11b/g basic set; refined from GET_WIPHY when available.
		SupportedRates: []byte{0x82, 0x84, 0x8B, 0x96, 0x0C, 0x12, 0x18, 0x24},
		HWScanOffload:  true,
	}
	return c, nil
}

func (c *Client) bindInterface(name string) error {
	msgs, err := c.execute(unix.NL80211_CMD_GET_INTERFACE, netlink.Dump, netlink.NewAttributeEncoder())
	if err != nil {
		return fmt.Errorf("nl80211: list interfaces: %w", err)
	}
	for _, m := range msgs {
		attrs, err := netlink.UnmarshalAttributes(m.Data)
		if err != nil {
			return err
		}
		var (
			idx     uint32
			ifName  string
			hwAddr  net.HardwareAddr
			station bool
		)
		for _, a := range attrs {
			switch a.Type {
			case unix.NL80211_ATTR_IFINDEX:
				idx = nlenc.Uint32(a.Data)
			case unix.NL80211_ATTR_IFNAME:
				ifName = nlenc.String(a.Data)
			case unix.NL80211_ATTR_MAC:
				hwAddr = net.HardwareAddr(a.Data)
			case unix.NL80211_ATTR_IFTYPE:
				station = nlenc.Uint32(a.Data) == unix.NL80211_IFTYPE_STATION
			}
		}
		if ifName != name {
			continue
		}
		if !station {
			return fmt.Errorf("nl80211: %s is not in station mode", name)
		}
		c.ifindex = idx
		c.mac = hwAddr
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInterfaceNotFound, name)
}

// Close closes the genetlink connection.
func (c *Client) Close() error { return c.c.Close() }

// get performs a request/response interaction with nl80211 against the
// bound interface.
func (c *Client) get(
	cmd uint8,
	flags netlink.HeaderFlags,
	params func(ae *netlink.AttributeEncoder),
) ([]genetlink.Message, error) {
	ae := netlink.NewAttributeEncoder()
	ae.Uint32(unix.NL80211_ATTR_IFINDEX, c.ifindex)
	if params != nil {
		params(ae)
	}
	return c.execute(cmd, flags, ae)
}

// execute executes the specified command with additional header flags
// and request attributes. The netlink.Request flag is always set.
func (c *Client) execute(
	cmd uint8,
	flags netlink.HeaderFlags,
	ae *netlink.AttributeEncoder,
) ([]genetlink.Message, error) {
	b, err := ae.Encode()
	if err != nil {
		return nil, err
	}
	return c.c.Execute(
		genetlink.Message{
			Header: genetlink.Header{
				Command: cmd,
				Version: c.familyVersion,
			},
			Data: b,
		},
		c.familyID,
		netlink.Request|flags,
	)
}

// SendFrame transmits one complete 802.11 frame on the current channel.
func (c *Client) SendFrame(frame []byte, flags device.TxFlags) error {
	_, err := c.get(
		unix.NL80211_CMD_FRAME,
		0,
		func(ae *netlink.AttributeEncoder) {
			if c.freqMHz != 0 {
				ae.Uint32(unix.NL80211_ATTR_WIPHY_FREQ, c.freqMHz)
			}
			ae.Bytes(unix.NL80211_ATTR_FRAME, frame)
		},
	)
	if err != nil {
		return fmt.Errorf("nl80211: send frame: %w", err)
	}
	return nil
}

// SetChannel tunes the radio via SET_WIPHY.
func (c *Client) SetChannel(ch device.Channel) error {
	freq := ChannelToFreq(ch.Number)
	if freq == 0 {
		return fmt.Errorf("nl80211: no frequency for channel %d", ch.Number)
	}
	width := uint32(unix.NL80211_CHAN_WIDTH_20)
	switch ch.Width {
	case device.ChannelWidth40:
		width = unix.NL80211_CHAN_WIDTH_40
	case device.ChannelWidth80:
		width = unix.NL80211_CHAN_WIDTH_80
	}
	_, err := c.get(
		unix.NL80211_CMD_SET_WIPHY,
		netlink.Acknowledge,
		func(ae *netlink.AttributeEncoder) {
			ae.Uint32(unix.NL80211_ATTR_WIPHY_FREQ, freq)
			ae.Uint32(unix.NL80211_ATTR_CHANNEL_WIDTH, width)
			ae.Uint32(unix.NL80211_ATTR_CENTER_FREQ1, freq)
		},
	)
	if err != nil {
		return fmt.Errorf("nl80211: set channel %d: %w", ch.Number, err)
	}
	c.freqMHz = freq
	return nil
}

// ConfigureBSS records the joined BSS and tunes to its channel. A nil
// config clears the join.
func (c *Client) ConfigureBSS(cfg *device.BSSConfig) error {
	if cfg == nil {
		return nil
	}
	return c.SetChannel(cfg.Channel)
}

// DeliverEthernet hands a decapsulated frame to the configured sink.
func (c *Client) DeliverEthernet(frame []byte) error {
	if c.sink == nil {
		return nil
	}
	return c.sink(frame)
}

// Capabilities describes the bound interface.
func (c *Client) Capabilities() *device.Capabilities { return c.caps }

// StartHWScan triggers a kernel-managed scan. Completion arrives as a
// ScanDone event on the multicast pump.
func (c *Client) StartHWScan(req *device.HWScanRequest) error {
	_, err := c.get(
		unix.NL80211_CMD_TRIGGER_SCAN,
		netlink.Acknowledge,
		func(ae *netlink.AttributeEncoder) {
			if len(req.Channels) > 0 {
				ae.Nested(unix.NL80211_ATTR_SCAN_FREQUENCIES, func(nae *netlink.AttributeEncoder) error {
					for i, ch := range req.Channels {
						freq := ChannelToFreq(ch)
						if freq == 0 {
							return fmt.Errorf("nl80211: no frequency for channel %d", ch)
						}
						nae.Uint32(uint16(i+1), freq)
					}
					return nil
				})
			}
			if !req.Passive {
				ae.Nested(unix.NL80211_ATTR_SCAN_SSIDS, func(nae *netlink.AttributeEncoder) error {
					if len(req.SSIDs) == 0 {
						// wildcard probe
						nae.Bytes(1, []byte{})
						return nil
					}
					for i, ssid := range req.SSIDs {
						nae.Bytes(uint16(i+1), ssid)
					}
					return nil
				})
			}
		},
	)
	if err != nil {
		return fmt.Errorf("nl80211: trigger scan: %w", err)
	}
	return nil
}

// RegisterMgmtFrames subscribes to the management subtypes the MLME
// consumes. frameTypes holds frame-control type/subtype values in wire
// byte 0 layout.
func (c *Client) RegisterMgmtFrames(frameTypes []uint16) error {
	for _, ft := range frameTypes {
		_, err := c.get(
			unix.NL80211_CMD_REGISTER_FRAME,
			netlink.Acknowledge,
			func(ae *netlink.AttributeEncoder) {
				ae.Uint16(unix.NL80211_ATTR_FRAME_TYPE, ft)
				ae.Bytes(unix.NL80211_ATTR_FRAME_MATCH, []byte{})
			},
		)
		if err != nil {
			return fmt.Errorf("nl80211: register frame type %#x: %w", ft, err)
		}
	}
	return nil
}

// JoinEventGroups subscribes the connection to the nl80211 multicast
// groups the event pump reads from.
func (c *Client) JoinEventGroups() error {
	for _, name := range []string{"mlme", "scan"} {
		joined := false
		for _, g := range c.groups {
			if g.Name == name {
				if err := c.c.JoinGroup(g.ID); err != nil {
					return fmt.Errorf("nl80211: join group %s: %w", name, err)
				}
				joined = true
			}
		}
		if !joined {
			return fmt.Errorf("nl80211: multicast group %s not advertised", name)
		}
	}
	return nil
}

// Event is one driver event from the multicast pump.
type Event interface {
	event()
}

// FrameEvent is a received management frame.
type FrameEvent struct {
	Frame []byte
	Info  device.RxInfo
}

func (*FrameEvent) event() {}

// ScanDoneEvent reports kernel scan completion or abort.
type ScanDoneEvent struct {
	Aborted bool
}

func (*ScanDoneEvent) event() {}

// Events starts the multicast pump and streams driver events until ctx
// is canceled.
func (c *Client) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			c.c.SetReadDeadline(time.Now().Add(10 * time.Second))
			select {
			case <-ctx.Done():
				return
			default:
			}
			msgs, _, err := c.c.Receive()
			if err != nil {
				var opErr *netlink.OpError
				if errors.As(err, &opErr) && opErr.Timeout() {
					continue
				}
				c.log.Warn("multicast receive failed", zap.Error(err))
				continue
			}
			for _, m := range msgs {
				ev, err := c.parseEvent(m)
				if err != nil {
					c.log.Debug("unparseable nl80211 event", zap.Error(err))
					continue
				}
				if ev == nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (c *Client) parseEvent(m genetlink.Message) (Event, error) {
	switch m.Header.Command {
	case unix.NL80211_CMD_FRAME:
		attrs, err := netlink.UnmarshalAttributes(m.Data)
		if err != nil {
			return nil, err
		}
		ev := &FrameEvent{}
		for _, a := range attrs {
			switch a.Type {
			case unix.NL80211_ATTR_FRAME:
				ev.Frame = a.Data
			case unix.NL80211_ATTR_RX_SIGNAL_DBM:
				ev.Info.RSSIDBm = int8(int32(nlenc.Uint32(a.Data)))
			case unix.NL80211_ATTR_WIPHY_FREQ:
				ev.Info.Channel = FreqToChannel(nlenc.Uint32(a.Data))
			}
		}
		if ev.Frame == nil {
			return nil, errors.New("nl80211: frame event without frame attribute")
		}
		return ev, nil
	case unix.NL80211_CMD_NEW_SCAN_RESULTS:
		return &ScanDoneEvent{}, nil
	case unix.NL80211_CMD_SCAN_ABORTED:
		return &ScanDoneEvent{Aborted: true}, nil
	default:
		return nil, nil
	}
}

// BSS is one scan result entry from the kernel's BSS table.
type BSS struct {
	BSSID     net.HardwareAddr
	FreqMHz   uint32
	SignalDBm int8
	IEs       []byte
}

// ScanResults dumps the kernel's BSS table after a hardware scan.
func (c *Client) ScanResults() ([]*BSS, error) {
	msgs, err := c.get(unix.NL80211_CMD_GET_SCAN, netlink.Dump, nil)
	if err != nil {
		return nil, fmt.Errorf("nl80211: get scan: %w", err)
	}
	var all []*BSS
	for _, m := range msgs {
		attrs, err := netlink.UnmarshalAttributes(m.Data)
		if err != nil {
			return nil, err
		}
		for _, a := range attrs {
			if a.Type != unix.NL80211_ATTR_BSS {
				continue
			}
			nattrs, err := netlink.UnmarshalAttributes(a.Data)
			if err != nil {
				return nil, err
			}
			bss := &BSS{}
			for _, na := range nattrs {
				switch na.Type {
				case unix.NL80211_BSS_BSSID:
					bss.BSSID = net.HardwareAddr(na.Data)
				case unix.NL80211_BSS_FREQUENCY:
					bss.FreqMHz = nlenc.Uint32(na.Data)
				case unix.NL80211_BSS_SIGNAL_MBM:
					// mBm to dBm
					bss.SignalDBm = int8(int32(nlenc.Uint32(na.Data)) / 100)
				case unix.NL80211_BSS_INFORMATION_ELEMENTS:
					bss.IEs = na.Data
				}
			}
			if bss.BSSID != nil {
				all = append(all, bss)
			}
		}
	}
	return all, nil
}
