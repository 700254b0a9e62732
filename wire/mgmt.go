package wire

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket/layers"
)

// AlgorithmSAE is the SAE authentication algorithm number. gopacket only
// names the two legacy algorithms.
const AlgorithmSAE layers.Dot11Algorithm = 3

// Capability Information bits a client station sets or mirrors.
const (
	CapESS               uint16 = 1 << 0
	CapIBSS              uint16 = 1 << 1
	CapPrivacy           uint16 = 1 << 4
	CapShortPreamble     uint16 = 1 << 5
	CapSpectrumMgmt      uint16 = 1 << 8
	CapQoS               uint16 = 1 << 9
	CapShortSlotTime     uint16 = 1 << 10
	CapRadioMeasure      uint16 = 1 << 12
	CapDelayedBlockAck   uint16 = 1 << 14
	CapImmediateBlockAck uint16 = 1 << 15
)

// Authentication is a management authentication frame. Fields carries
// any trailing fixed fields and IEs verbatim: the shared-key challenge,
// or the SAE commit/confirm body relayed for the SME.
type Authentication struct {
	MgmtHeader
	Algorithm      layers.Dot11Algorithm
	TransactionSeq uint16
	Status         layers.Dot11Status
	Fields         []byte
}

func (f *Authentication) Serialize() []byte {
	f.Subtype = layers.Dot11TypeMgmtAuthentication
	data := appendMgmtHeader(nil, &f.MgmtHeader)
	var fixed [6]byte
	binary.LittleEndian.PutUint16(fixed[0:2], uint16(f.Algorithm))
	binary.LittleEndian.PutUint16(fixed[2:4], f.TransactionSeq)
	binary.LittleEndian.PutUint16(fixed[4:6], uint16(f.Status))
	data = append(data, fixed[:]...)
	return append(data, f.Fields...)
}

// AuthenticationBody are the fixed fields of a received authentication
// frame plus any trailing bytes.
type AuthenticationBody struct {
	Algorithm      layers.Dot11Algorithm
	TransactionSeq uint16
	Status         layers.Dot11Status
	Fields         []byte
}

func ParseAuthentication(f *MgmtFrame) (*AuthenticationBody, error) {
	if f.Subtype != layers.Dot11TypeMgmtAuthentication {
		return nil, ErrWrongSubtype
	}
	if len(f.Body) < 6 {
		return nil, ErrFrameTooShort
	}
	return &AuthenticationBody{
		Algorithm:      layers.Dot11Algorithm(binary.LittleEndian.Uint16(f.Body[0:2])),
		TransactionSeq: binary.LittleEndian.Uint16(f.Body[2:4]),
		Status:         layers.Dot11Status(binary.LittleEndian.Uint16(f.Body[4:6])),
		Fields:         f.Body[6:],
	}, nil
}

// AssociationRequest is a management association request frame. RSNE is
// carried verbatim (full IE including header) since the MLME never
// interprets key-management selectors; HT/VHT bodies are element data
// without headers.
type AssociationRequest struct {
	MgmtHeader
	CapabilityInfo  uint16
	ListenInterval  uint16
	SSID            []byte
	Rates           []byte
	RSNE            []byte
	HTCapabilities  []byte
	VHTCapabilities []byte
}

func (f *AssociationRequest) Serialize() ([]byte, error) {
	f.Subtype = layers.Dot11TypeMgmtAssociationReq
	data := appendMgmtHeader(nil, &f.MgmtHeader)
	var fixed [4]byte
	binary.LittleEndian.PutUint16(fixed[0:2], f.CapabilityInfo)
	binary.LittleEndian.PutUint16(fixed[2:4], f.ListenInterval)
	data = append(data, fixed[:]...)

	var err error
	if data, err = appendElement(data, layers.Dot11InformationElementIDSSID, f.SSID); err != nil {
		return nil, err
	}
	if data, err = appendRates(data, f.Rates); err != nil {
		return nil, err
	}
	data = append(data, f.RSNE...)
	if len(f.HTCapabilities) > 0 {
		if data, err = appendElement(data, layers.Dot11InformationElementIDHTCapabilities, f.HTCapabilities); err != nil {
			return nil, err
		}
	}
	if len(f.VHTCapabilities) > 0 {
		if data, err = appendElement(data, layers.Dot11InformationElementIDVHTCapabilities, f.VHTCapabilities); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// AssociationRequestBody is the parsed counterpart of AssociationRequest,
// used by tests and by AP-side tooling.
type AssociationRequestBody struct {
	CapabilityInfo uint16
	ListenInterval uint16
	Elements       ElementList
}

func ParseAssociationRequest(f *MgmtFrame) (*AssociationRequestBody, error) {
	if f.Subtype != layers.Dot11TypeMgmtAssociationReq {
		return nil, ErrWrongSubtype
	}
	if len(f.Body) < 4 {
		return nil, ErrFrameTooShort
	}
	els, err := ParseElements(f.Body[4:])
	if err != nil {
		return nil, err
	}
	return &AssociationRequestBody{
		CapabilityInfo: binary.LittleEndian.Uint16(f.Body[0:2]),
		ListenInterval: binary.LittleEndian.Uint16(f.Body[2:4]),
		Elements:       els,
	}, nil
}

// AssociationResponseBody is a parsed association response. AID has the
// two reserved MSBs already stripped.
type AssociationResponseBody struct {
	CapabilityInfo uint16
	Status         layers.Dot11Status
	AID            uint16
	Elements       ElementList
}

func ParseAssociationResponse(f *MgmtFrame) (*AssociationResponseBody, error) {
	if f.Subtype != layers.Dot11TypeMgmtAssociationResp && f.Subtype != layers.Dot11TypeMgmtReassociationResp {
		return nil, ErrWrongSubtype
	}
	if len(f.Body) < 6 {
		return nil, ErrFrameTooShort
	}
	els, err := ParseElements(f.Body[6:])
	if err != nil {
		return nil, err
	}
	return &AssociationResponseBody{
		CapabilityInfo: binary.LittleEndian.Uint16(f.Body[0:2]),
		Status:         layers.Dot11Status(binary.LittleEndian.Uint16(f.Body[2:4])),
		AID:            binary.LittleEndian.Uint16(f.Body[4:6]) & 0x3FFF,
		Elements:       els,
	}, nil
}

// AssociationResponse is the AP-side association response frame, used
// by AP tooling and as a test fixture.
type AssociationResponse struct {
	MgmtHeader
	CapabilityInfo uint16
	Status         layers.Dot11Status
	AID            uint16 // transmitted with the two reserved MSBs set
	Elements       ElementList
}

func (f *AssociationResponse) Serialize() ([]byte, error) {
	f.Subtype = layers.Dot11TypeMgmtAssociationResp
	data := appendMgmtHeader(nil, &f.MgmtHeader)
	var fixed [6]byte
	binary.LittleEndian.PutUint16(fixed[0:2], f.CapabilityInfo)
	binary.LittleEndian.PutUint16(fixed[2:4], uint16(f.Status))
	binary.LittleEndian.PutUint16(fixed[4:6], f.AID|0xC000)
	data = append(data, fixed[:]...)
	els, err := f.Elements.Serialize()
	if err != nil {
		return nil, err
	}
	return append(data, els...), nil
}

// Beacon is the AP-side beacon frame, used by AP tooling and as a test
// fixture.
type Beacon struct {
	MgmtHeader
	Timestamp        uint64
	BeaconIntervalTU uint16
	CapabilityInfo   uint16
	Elements         ElementList
}

func (f *Beacon) Serialize() ([]byte, error) {
	f.Subtype = layers.Dot11TypeMgmtBeacon
	data := appendMgmtHeader(nil, &f.MgmtHeader)
	var fixed [12]byte
	binary.LittleEndian.PutUint64(fixed[0:8], f.Timestamp)
	binary.LittleEndian.PutUint16(fixed[8:10], f.BeaconIntervalTU)
	binary.LittleEndian.PutUint16(fixed[10:12], f.CapabilityInfo)
	data = append(data, fixed[:]...)
	els, err := f.Elements.Serialize()
	if err != nil {
		return nil, err
	}
	return append(data, els...), nil
}

// Deauthentication is a management deauthentication frame.
type Deauthentication struct {
	MgmtHeader
	Reason layers.Dot11Reason
}

func (f *Deauthentication) Serialize() []byte {
	f.Subtype = layers.Dot11TypeMgmtDeauthentication
	data := appendMgmtHeader(nil, &f.MgmtHeader)
	var fixed [2]byte
	binary.LittleEndian.PutUint16(fixed[:], uint16(f.Reason))
	return append(data, fixed[:]...)
}

// Disassociation is a management disassociation frame.
type Disassociation struct {
	MgmtHeader
	Reason layers.Dot11Reason
}

func (f *Disassociation) Serialize() []byte {
	f.Subtype = layers.Dot11TypeMgmtDisassociation
	data := appendMgmtHeader(nil, &f.MgmtHeader)
	var fixed [2]byte
	binary.LittleEndian.PutUint16(fixed[:], uint16(f.Reason))
	return append(data, fixed[:]...)
}

// ParseReason extracts the reason code shared by deauthentication and
// disassociation frames.
func ParseReason(f *MgmtFrame) (layers.Dot11Reason, error) {
	if f.Subtype != layers.Dot11TypeMgmtDeauthentication && f.Subtype != layers.Dot11TypeMgmtDisassociation {
		return 0, ErrWrongSubtype
	}
	if len(f.Body) < 2 {
		return 0, ErrFrameTooShort
	}
	return layers.Dot11Reason(binary.LittleEndian.Uint16(f.Body[0:2])), nil
}

// ProbeRequest is a management probe request frame used for active
// scanning. A nil SSID probes the wildcard SSID.
type ProbeRequest struct {
	MgmtHeader
	SSID  []byte
	Rates []byte
}

func (f *ProbeRequest) Serialize() ([]byte, error) {
	f.Subtype = layers.Dot11TypeMgmtProbeReq
	data := appendMgmtHeader(nil, &f.MgmtHeader)
	var err error
	if data, err = appendElement(data, layers.Dot11InformationElementIDSSID, f.SSID); err != nil {
		return nil, err
	}
	return appendRates(data, f.Rates)
}

// BeaconBody are the fixed fields and elements shared by beacon and
// probe response frames.
type BeaconBody struct {
	Timestamp        uint64
	BeaconIntervalTU uint16
	CapabilityInfo   uint16
	Elements         ElementList
}

func ParseBeacon(f *MgmtFrame) (*BeaconBody, error) {
	if f.Subtype != layers.Dot11TypeMgmtBeacon && f.Subtype != layers.Dot11TypeMgmtProbeResp {
		return nil, ErrWrongSubtype
	}
	if len(f.Body) < 12 {
		return nil, ErrFrameTooShort
	}
	els, err := ParseElements(f.Body[12:])
	if err != nil {
		return nil, err
	}
	return &BeaconBody{
		Timestamp:        binary.LittleEndian.Uint64(f.Body[0:8]),
		BeaconIntervalTU: binary.LittleEndian.Uint16(f.Body[8:10]),
		CapabilityInfo:   binary.LittleEndian.Uint16(f.Body[10:12]),
		Elements:         els,
	}, nil
}

// IsForBSS reports whether a management frame was sent by or to the
// given BSS.
func (f *MgmtFrame) IsForBSS(bssid net.HardwareAddr) bool {
	return macEqual(f.BSSID, bssid)
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != macAddrLen || len(b) != macAddrLen {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
