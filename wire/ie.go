package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket/layers"
)

const maxElementLen = 255

// InfoElement is a single tagged information element. Data excludes the
// two-byte ID/length header.
type InfoElement struct {
	ID   layers.Dot11InformationElementID
	Data []byte
}

// ElementList preserves the on-air order of a frame's information
// elements.
type ElementList []InfoElement

// ParseElements splits an IE blob into its elements. A declared length
// that runs past the buffer is a parse error, not a truncation: these
// bytes come straight off the air.
func ParseElements(b []byte) (ElementList, error) {
	var els ElementList
	for len(b) > 0 {
		if len(b) < 2 {
			return nil, fmt.Errorf("%w: dangling element header", ErrFrameTooShort)
		}
		id := layers.Dot11InformationElementID(b[0])
		length := int(b[1])
		if len(b) < 2+length {
			return nil, fmt.Errorf("%w: element %d declares %d bytes, %d remain", ErrFrameTooShort, id, length, len(b)-2)
		}
		els = append(els, InfoElement{ID: id, Data: b[2 : 2+length]})
		b = b[2+length:]
	}
	return els, nil
}

// Get returns the first element with the given ID.
func (l ElementList) Get(id layers.Dot11InformationElementID) ([]byte, bool) {
	for _, el := range l {
		if el.ID == id {
			return el.Data, true
		}
	}
	return nil, false
}

// Raw returns the first element with the given ID as a full IE including
// the ID/length header, for fields that are carried verbatim (RSNE).
func (l ElementList) Raw(id layers.Dot11InformationElementID) ([]byte, bool) {
	data, ok := l.Get(id)
	if !ok {
		return nil, false
	}
	raw := make([]byte, 0, 2+len(data))
	raw = append(raw, byte(id), byte(len(data)))
	return append(raw, data...), true
}

// SSID returns the SSID element, distinguishing "absent" from the
// zero-length wildcard SSID.
func (l ElementList) SSID() ([]byte, bool) { return l.Get(layers.Dot11InformationElementIDSSID) }

// Rates concatenates the Supported Rates and Extended Supported Rates
// elements, in 0.5 Mbps units with the basic-rate bit preserved.
func (l ElementList) Rates() []byte {
	var rates []byte
	if r, ok := l.Get(layers.Dot11InformationElementIDRates); ok {
		rates = append(rates, r...)
	}
	if r, ok := l.Get(layers.Dot11InformationElementIDESRates); ok {
		rates = append(rates, r...)
	}
	return rates
}

// DSChannel returns the channel from the DS Parameter Set element.
func (l ElementList) DSChannel() (uint8, bool) {
	data, ok := l.Get(layers.Dot11InformationElementIDDSSet)
	if !ok || len(data) != 1 {
		return 0, false
	}
	return data[0], true
}

// appendElement writes one IE. Oversized data is a programming error in
// the builder, reported rather than silently split.
func appendElement(dst []byte, id layers.Dot11InformationElementID, data []byte) ([]byte, error) {
	if len(data) > maxElementLen {
		return dst, fmt.Errorf("wire: element %d length %d exceeds %d", id, len(data), maxElementLen)
	}
	dst = append(dst, byte(id), byte(len(data)))
	return append(dst, data...), nil
}

// appendRates writes a rate set as a Supported Rates element and, past
// eight rates, an Extended Supported Rates element.
func appendRates(dst []byte, rates []byte) ([]byte, error) {
	if len(rates) == 0 {
		return dst, nil
	}
	head := rates
	if len(head) > 8 {
		head = rates[:8]
	}
	dst, err := appendElement(dst, layers.Dot11InformationElementIDRates, head)
	if err != nil {
		return dst, err
	}
	if len(rates) > 8 {
		dst, err = appendElement(dst, layers.Dot11InformationElementIDESRates, rates[8:])
		if err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// ChannelSwitch is the parsed Channel Switch Announcement element.
type ChannelSwitch struct {
	Mode       uint8 // 1: stop transmitting until the switch
	NewChannel uint8
	Count      uint8 // beacons until the switch; 0 means imminent
}

// ChannelSwitch extracts a CSA element if present.
func (l ElementList) ChannelSwitch() (*ChannelSwitch, bool) {
	data, ok := l.Get(layers.Dot11InformationElementIDSwitchChannelAnnounce)
	if !ok || len(data) != 3 {
		return nil, false
	}
	return &ChannelSwitch{Mode: data[0], NewChannel: data[1], Count: data[2]}, true
}

// TIMHeader are the fixed fields of a Traffic Indication Map element.
type TIMHeader struct {
	DTIMCount  uint8
	DTIMPeriod uint8
}

// TIM returns the DTIM count and period from the TIM element.
func (l ElementList) TIM() (*TIMHeader, bool) {
	data, ok := l.Get(layers.Dot11InformationElementIDTIM)
	if !ok || len(data) < 3 {
		return nil, false
	}
	return &TIMHeader{DTIMCount: data[0], DTIMPeriod: data[1]}, true
}

// HTCapabilities is the 26-byte HT Capabilities element body, kept raw
// apart from the fields the client negotiates on.
type HTCapabilities struct {
	Info uint16
	Raw  []byte
}

// HTCapabilities parses the HT Capabilities element if present and well
// formed.
func (l ElementList) HTCapabilities() (*HTCapabilities, bool) {
	data, ok := l.Get(layers.Dot11InformationElementIDHTCapabilities)
	if !ok || len(data) < 26 {
		return nil, false
	}
	return &HTCapabilities{Info: binary.LittleEndian.Uint16(data[0:2]), Raw: data}, true
}

// VHTCapabilities is the 12-byte VHT Capabilities element body.
type VHTCapabilities struct {
	Info uint32
	Raw  []byte
}

// VHTCapabilities parses the VHT Capabilities element if present.
func (l ElementList) VHTCapabilities() (*VHTCapabilities, bool) {
	data, ok := l.Get(layers.Dot11InformationElementIDVHTCapabilities)
	if !ok || len(data) < 12 {
		return nil, false
	}
	return &VHTCapabilities{Info: binary.LittleEndian.Uint32(data[0:4]), Raw: data}, true
}

// Serialize re-encodes the element list in order.
func (l ElementList) Serialize() ([]byte, error) {
	var out []byte
	var err error
	for _, el := range l {
		out, err = appendElement(out, el.ID, el.Data)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
