package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket/layers"
)

var (
	ErrFrameTooShort = errors.New("wire: frame too short")
	ErrWrongSubtype  = errors.New("wire: unexpected frame subtype")
)

const (
	mgmtHeaderLen = 24
	macAddrLen    = 6
)

// BroadcastAddr returns the all-ones MAC address.
func BroadcastAddr() net.HardwareAddr {
	return net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
}

// MgmtHeader is the fixed MAC header shared by all management frames:
// frame control, duration, Addr1 (DA), Addr2 (SA), Addr3 (BSSID) and
// sequence control.
type MgmtHeader struct {
	Subtype  layers.Dot11Type
	Flags    layers.Dot11Flags
	Duration uint16
	DA       net.HardwareAddr
	SA       net.HardwareAddr
	BSSID    net.HardwareAddr
	Seq      uint16 // 12-bit sequence number
	Frag     uint8  // 4-bit fragment number
}

// appendMgmtHeader serializes h into dst. Frame control is little-endian:
// byte 0 carries protocol version, type and subtype, byte 1 the flags.
func appendMgmtHeader(dst []byte, h *MgmtHeader) []byte {
	var buf [mgmtHeaderLen]byte
	buf[0] = byte(h.Subtype) << 2
	buf[1] = byte(h.Flags)
	binary.LittleEndian.PutUint16(buf[2:4], h.Duration)
	copy(buf[4:10], h.DA)
	copy(buf[10:16], h.SA)
	copy(buf[16:22], h.BSSID)
	binary.LittleEndian.PutUint16(buf[22:24], h.Seq<<4|uint16(h.Frag)&0x0F)
	return append(dst, buf[:]...)
}

// FrameType reports the full type+subtype of a raw frame, in gopacket's
// Dot11Type encoding.
func FrameType(b []byte) (layers.Dot11Type, error) {
	if len(b) < 2 {
		return 0, ErrFrameTooShort
	}
	return layers.Dot11Type(b[0] >> 2), nil
}

// MgmtFrame is a parsed management frame header plus its unparsed body.
type MgmtFrame struct {
	MgmtHeader
	Body []byte
}

// ParseMgmtFrame decodes the 24-byte management MAC header. The body is
// left raw for the subtype-specific parsers.
func ParseMgmtFrame(b []byte) (*MgmtFrame, error) {
	if len(b) < mgmtHeaderLen {
		return nil, fmt.Errorf("%w: mgmt header needs %d bytes, have %d", ErrFrameTooShort, mgmtHeaderLen, len(b))
	}
	t := layers.Dot11Type(b[0] >> 2)
	if t.MainType() != layers.Dot11TypeMgmt {
		return nil, fmt.Errorf("%w: type %v is not management", ErrWrongSubtype, t)
	}
	seqCtrl := binary.LittleEndian.Uint16(b[22:24])
	f := &MgmtFrame{
		MgmtHeader: MgmtHeader{
			Subtype:  t,
			Flags:    layers.Dot11Flags(b[1]),
			Duration: binary.LittleEndian.Uint16(b[2:4]),
			DA:       net.HardwareAddr(b[4:10]),
			SA:       net.HardwareAddr(b[10:16]),
			BSSID:    net.HardwareAddr(b[16:22]),
			Seq:      seqCtrl >> 4,
			Frag:     uint8(seqCtrl & 0x0F),
		},
		Body: b[mgmtHeaderLen:],
	}
	return f, nil
}

// DataFrame is a parsed data frame. Addr4 and TID are present only for
// the 4-address and QoS variants respectively. Body is the MSDU,
// normally LLC/SNAP followed by the network payload.
type DataFrame struct {
	Subtype layers.Dot11Type
	Flags   layers.Dot11Flags
	Addr1   net.HardwareAddr
	Addr2   net.HardwareAddr
	Addr3   net.HardwareAddr
	Addr4   net.HardwareAddr
	Seq     uint16
	Frag    uint8
	TID     *uint8
	Body    []byte
}

// ParseDataFrame decodes a data frame header for every to-DS/from-DS
// combination, including the 4-address case, and the QoS control field
// when the subtype carries one.
func ParseDataFrame(b []byte) (*DataFrame, error) {
	if len(b) < mgmtHeaderLen {
		return nil, fmt.Errorf("%w: data header needs at least %d bytes, have %d", ErrFrameTooShort, mgmtHeaderLen, len(b))
	}
	t := layers.Dot11Type(b[0] >> 2)
	if t.MainType() != layers.Dot11TypeData {
		return nil, fmt.Errorf("%w: type %v is not data", ErrWrongSubtype, t)
	}
	flags := layers.Dot11Flags(b[1])
	seqCtrl := binary.LittleEndian.Uint16(b[22:24])
	f := &DataFrame{
		Subtype: t,
		Flags:   flags,
		Addr1:   net.HardwareAddr(b[4:10]),
		Addr2:   net.HardwareAddr(b[10:16]),
		Addr3:   net.HardwareAddr(b[16:22]),
		Seq:     seqCtrl >> 4,
		Frag:    uint8(seqCtrl & 0x0F),
	}
	offset := mgmtHeaderLen
	if flags.ToDS() && flags.FromDS() {
		if len(b) < offset+macAddrLen {
			return nil, fmt.Errorf("%w: missing Addr4", ErrFrameTooShort)
		}
		f.Addr4 = net.HardwareAddr(b[offset : offset+macAddrLen])
		offset += macAddrLen
	}
	if t.QOS() {
		if len(b) < offset+2 {
			return nil, fmt.Errorf("%w: missing QoS control", ErrFrameTooShort)
		}
		tid := b[offset] & 0x0F
		f.TID = &tid
		offset += 2
	}
	f.Body = b[offset:]
	return f, nil
}

// SrcDst derives the Ethernet source and destination addresses from the
// frame's address fields according to its to-DS/from-DS bits.
func (f *DataFrame) SrcDst() (src, dst net.HardwareAddr) {
	switch {
	case f.Flags.ToDS() && f.Flags.FromDS():
		return f.Addr4, f.Addr3
	case f.Flags.FromDS():
		return f.Addr3, f.Addr1
	case f.Flags.ToDS():
		return f.Addr2, f.Addr3
	default:
		return f.Addr2, f.Addr1
	}
}
