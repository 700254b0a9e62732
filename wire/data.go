package wire

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// EtherTypeEAPOL marks 802.1X authentication traffic, which bypasses the
// controlled port.
const EtherTypeEAPOL uint16 = 0x888E

// MaxEAPOLFrameSize bounds EAPOL frames accepted for transmission.
// Larger requests are rejected outright rather than truncated so the
// key handshake never sees a silently corrupted message.
const MaxEAPOLFrameSize = 2048

const ethHeaderLen = 14

// llcSNAP is the LLC header plus the zero OUI SNAP extension that
// precedes the EtherType in a converted data frame.
var llcSNAP = [6]byte{0xAA, 0xAA, 0x03, 0x00, 0x00, 0x00}

// EthernetII is an Ethernet II frame exchanged with the netstack.
type EthernetII struct {
	Dst       net.HardwareAddr
	Src       net.HardwareAddr
	EtherType uint16
	Payload   []byte
}

func ParseEthernet(b []byte) (*EthernetII, error) {
	if len(b) < ethHeaderLen {
		return nil, fmt.Errorf("%w: ethernet header needs %d bytes, have %d", ErrFrameTooShort, ethHeaderLen, len(b))
	}
	return &EthernetII{
		Dst:       net.HardwareAddr(b[0:6]),
		Src:       net.HardwareAddr(b[6:12]),
		EtherType: binary.BigEndian.Uint16(b[12:14]),
		Payload:   b[14:],
	}, nil
}

func (e *EthernetII) Serialize() []byte {
	b := make([]byte, ethHeaderLen, ethHeaderLen+len(e.Payload))
	copy(b[0:6], e.Dst)
	copy(b[6:12], e.Src)
	binary.BigEndian.PutUint16(b[12:14], e.EtherType)
	return append(b, e.Payload...)
}

// ConvertEthernet wraps an Ethernet II frame into an 802.11 data frame
// headed to the BSS. QoS data frames carry the TID in the QoS control
// field; associations without QoS use the plain data subtype.
func ConvertEthernet(e *EthernetII, bssid net.HardwareAddr, seq uint16, qos bool, tid uint8) []byte {
	subtype := layers.Dot11TypeData
	if qos {
		subtype = layers.Dot11TypeDataQOSData
	}
	headerLen := mgmtHeaderLen
	if qos {
		headerLen += 2
	}
	b := make([]byte, headerLen, headerLen+len(llcSNAP)+2+len(e.Payload))
	b[0] = byte(subtype) << 2
	b[1] = byte(layers.Dot11FlagsToDS)
	copy(b[4:10], bssid)   // Addr1: BSSID
	copy(b[10:16], e.Src)  // Addr2: SA
	copy(b[16:22], e.Dst)  // Addr3: DA
	binary.LittleEndian.PutUint16(b[22:24], seq<<4)
	if qos {
		b[24] = tid & 0x0F
	}
	b = append(b, llcSNAP[:]...)
	var et [2]byte
	binary.BigEndian.PutUint16(et[:], e.EtherType)
	b = append(b, et[:]...)
	return append(b, e.Payload...)
}

// ConvertDataFrame unwraps a received 802.11 data frame back into an
// Ethernet II frame. Null subtypes and frames without an LLC/SNAP
// header yield no Ethernet frame.
func ConvertDataFrame(f *DataFrame) (*EthernetII, error) {
	if f.Subtype == layers.Dot11TypeDataNull || f.Subtype == layers.Dot11TypeDataQOSNull {
		return nil, nil
	}
	packet := gopacket.NewPacket(f.Body, layers.LayerTypeLLC, gopacket.NoCopy)
	llc, _ := packet.Layer(layers.LayerTypeLLC).(*layers.LLC)
	snap, _ := packet.Layer(layers.LayerTypeSNAP).(*layers.SNAP)
	if llc == nil || snap == nil || llc.DSAP != 0xAA || llc.SSAP != 0xAA {
		return nil, fmt.Errorf("wire: data frame without LLC/SNAP encapsulation")
	}
	src, dst := f.SrcDst()
	return &EthernetII{
		Dst:       dst,
		Src:       src,
		EtherType: uint16(snap.Type),
		Payload:   snap.Payload,
	}, nil
}

// IsEAPOL reports whether a converted frame carries 802.1X traffic.
func (e *EthernetII) IsEAPOL() bool { return e.EtherType == EtherTypeEAPOL }

// NullData builds a null data keep-alive frame toward the BSS.
func NullData(bssid, sta net.HardwareAddr, seq uint16, powerSave bool) []byte {
	b := make([]byte, mgmtHeaderLen)
	b[0] = byte(layers.Dot11TypeDataNull) << 2
	flags := layers.Dot11FlagsToDS
	if powerSave {
		flags |= layers.Dot11FlagsPowerManagement
	}
	b[1] = byte(flags)
	copy(b[4:10], bssid)
	copy(b[10:16], sta)
	copy(b[16:22], bssid)
	binary.LittleEndian.PutUint16(b[22:24], seq<<4)
	return b
}

// TIDFromEthernet derives the user priority for a QoS data frame from
// the payload's DSCP field. Non-IP traffic maps to best effort.
func TIDFromEthernet(e *EthernetII) uint8 {
	var dscp uint8
	switch e.EtherType {
	case uint16(layers.EthernetTypeIPv4):
		if len(e.Payload) < 2 {
			return 0
		}
		dscp = e.Payload[1] >> 2
	case uint16(layers.EthernetTypeIPv6):
		if len(e.Payload) < 2 {
			return 0
		}
		dscp = (e.Payload[0]<<4 | e.Payload[1]>>4) >> 2
	default:
		return 0
	}
	return dscp >> 3
}
