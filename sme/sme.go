// Package sme defines the message boundary between the MLME and the
// station management entity that drives it. The SME decides which BSS
// to join and runs key handshakes; the MLME executes the connection
// protocol and reports back through these messages.
package sme

import "net"

// Message is implemented by every SME-bound indication and confirm.
type Message interface {
	message()
}

// Sender delivers MLME-originated messages to the single SME consumer.
// Implementations must not block the caller.
type Sender interface {
	Send(Message)
}

// AuthType selects the authentication and key management algorithm for
// a connection attempt.
type AuthType uint8

const (
	AuthTypeOpenSystem AuthType = iota
	AuthTypeSAE
)

func (t AuthType) String() string {
	switch t {
	case AuthTypeOpenSystem:
		return "open-system"
	case AuthTypeSAE:
		return "sae"
	default:
		return "unknown"
	}
}

// ScanType chooses between listening for beacons and probing.
type ScanType uint8

const (
	ScanTypePassive ScanType = iota
	ScanTypeActive
)

// BSSDescription summarizes one observed BSS. RSNE, HT and VHT carry
// the raw element bodies so the SME sees exactly what the AP advertised.
type BSSDescription struct {
	BSSID            net.HardwareAddr
	SSID             []byte
	BeaconIntervalTU uint16
	CapabilityInfo   uint16
	Channel          uint8
	RSSIDBm          int8
	Rates            []byte
	RSNE             []byte
	HTCapabilities   []byte
	VHTCapabilities  []byte
}

// ScanRequest asks the MLME to survey the given channels. TxnID is
// echoed in the ScanEnd so the SME can match concurrent attempts it
// queued locally.
type ScanRequest struct {
	TxnID      uint64
	Type       ScanType
	Channels   []uint8
	SSID       []byte // probed SSID for active scans; nil for wildcard
	MinDwellTU uint16
	MaxDwellTU uint16
}

// ScanEnd reports the outcome of a scan and, on success, everything
// heard, one entry per BSSID.
type ScanEnd struct {
	TxnID   uint64
	Code    ScanResultCode
	Results []BSSDescription
}

func (*ScanEnd) message() {}

// ConnectRequest asks the MLME to join the described BSS. RSNE, when
// set, is the full element the station offers in its association
// request; its presence also closes the controlled port until the SME
// opens it.
type ConnectRequest struct {
	BSS              BSSDescription
	AuthType         AuthType
	RSNE             []byte
	ConnectTimeoutBI uint32 // beacon intervals before the attempt is abandoned
}

// ConnectConfirm reports the outcome of a ConnectRequest. AID and the
// association IEs are only meaningful on success.
type ConnectConfirm struct {
	PeerAddr net.HardwareAddr
	Code     ConnectResult
	AID      uint16
	AssocIEs []byte
}

func (*ConnectConfirm) message() {}

// ReconnectRequest asks for one fast reconnect to the still-known BSS
// after an unsolicited disassociation.
type ReconnectRequest struct {
	PeerAddr net.HardwareAddr
}

// DeauthenticateRequest tears the association down with the given
// reason code sent over the air.
type DeauthenticateRequest struct {
	PeerAddr net.HardwareAddr
	Reason   uint16
}

// DisassociateRequest leaves the association but keeps nothing else;
// the MLME tears down the same way deauthentication does.
type DisassociateRequest struct {
	PeerAddr net.HardwareAddr
	Reason   uint16
}

// DeauthenticateConfirm acknowledges a DeauthenticateRequest.
type DeauthenticateConfirm struct {
	PeerAddr net.HardwareAddr
}

func (*DeauthenticateConfirm) message() {}

// DeauthenticateIndication reports a deauthentication the MLME did not
// initiate on the SME's behalf. LocallyInitiated is set for auto-deauth
// after BSS loss.
type DeauthenticateIndication struct {
	PeerAddr         net.HardwareAddr
	Reason           uint16
	LocallyInitiated bool
}

func (*DeauthenticateIndication) message() {}

// DisassociateIndication reports an AP-initiated disassociation.
type DisassociateIndication struct {
	PeerAddr net.HardwareAddr
	Reason   uint16
}

func (*DisassociateIndication) message() {}

// ControlledPortState gates non-EAPOL traffic on an RSN association.
type ControlledPortState uint8

const (
	ControlledPortClosed ControlledPortState = iota
	ControlledPortOpen
)

// SetControlledPort opens or closes the IEEE 802.1X controlled port,
// normally once the SME completes the key handshake.
type SetControlledPort struct {
	PeerAddr net.HardwareAddr
	State    ControlledPortState
}

// KeyType distinguishes pairwise and group keys.
type KeyType uint8

const (
	KeyTypePairwise KeyType = iota
	KeyTypeGroup
)

// KeyDescriptor is one key installed by the SME after its handshake.
type KeyDescriptor struct {
	Type       KeyType
	Key        []byte
	KeyID      uint8
	Address    net.HardwareAddr
	CipherOUI  [3]byte
	CipherType uint8
}

// SetKeysRequest installs keys into the underlying device.
type SetKeysRequest struct {
	Keys []KeyDescriptor
}

// EapolRequest asks the MLME to transmit one EAPOL frame to the peer.
type EapolRequest struct {
	Src  net.HardwareAddr
	Dst  net.HardwareAddr
	Data []byte
}

// EapolConfirm reports whether an EapolRequest made it to the device.
type EapolConfirm struct {
	Code EapolResult
}

func (*EapolConfirm) message() {}

// EapolIndication carries one received EAPOL frame up to the SME.
type EapolIndication struct {
	Src  net.HardwareAddr
	Dst  net.HardwareAddr
	Data []byte
}

func (*EapolIndication) message() {}

// SaeHandshakeIndication tells the SME to start an SAE handshake with
// the peer; the MLME only relays the commit and confirm frames.
type SaeHandshakeIndication struct {
	PeerAddr net.HardwareAddr
}

func (*SaeHandshakeIndication) message() {}

// SaeFrame is one SAE authentication frame body, relayed in either
// direction between the air and the SME.
type SaeFrame struct {
	PeerAddr       net.HardwareAddr
	TransactionSeq uint16
	Status         uint16
	Body           []byte
}

// SaeFrameRx is an SAE frame received from the peer.
type SaeFrameRx struct {
	Frame SaeFrame
}

func (*SaeFrameRx) message() {}

// SaeFrameTx asks the MLME to transmit an SME-built SAE frame.
type SaeFrameTx struct {
	Frame SaeFrame
}

// SaeHandshakeResponse reports the handshake's end state so the MLME
// can proceed to association or fail the connect attempt.
type SaeHandshakeResponse struct {
	PeerAddr net.HardwareAddr
	Status   uint16 // 0 on success
}

// SignalReportIndication is the periodic signal strength report while
// associated.
type SignalReportIndication struct {
	RSSIDBm int8
}

func (*SignalReportIndication) message() {}

// DeviceQueryRequest asks for the device's static capabilities.
type DeviceQueryRequest struct{}

// DeviceQueryConfirm reports them.
type DeviceQueryConfirm struct {
	MACAddr         net.HardwareAddr
	SupportedRates  []byte
	HTCapabilities  []byte
	VHTCapabilities []byte
	HWScanOffload   bool
}

func (*DeviceQueryConfirm) message() {}
