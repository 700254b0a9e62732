package wire

import (
	"bytes"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	testBSSID = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	testSTA   = net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xAA, 0xBB}
)

func mgmtHeader(da, sa, bssid net.HardwareAddr, seq uint16) MgmtHeader {
	return MgmtHeader{DA: da, SA: sa, BSSID: bssid, Seq: seq}
}

func TestAuthenticationGoldenBytes(t *testing.T) {
	f := &Authentication{
		MgmtHeader:     mgmtHeader(testBSSID, testSTA, testBSSID, 1),
		Algorithm:      layers.Dot11AlgorithmOpen,
		TransactionSeq: 1,
		Status:         layers.Dot11StatusSuccess,
	}
	want := []byte{
		0xB0, 0x00, // frame control: type mgmt, subtype auth
		0x00, 0x00, // duration
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, // DA
		0x66, 0x77, 0x88, 0x99, 0xAA, 0xBB, // SA
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, // BSSID
		0x10, 0x00, // sequence control: seq 1, frag 0
		0x00, 0x00, // algorithm: open system
		0x01, 0x00, // transaction sequence 1
		0x00, 0x00, // status: success
	}
	got := f.Serialize()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("serialized frame mismatch (-want +got):\n%s", diff)
	}
}

// Serialized frames must be readable by an independent 802.11 decoder.
func TestAuthenticationCrossDecode(t *testing.T) {
	f := &Authentication{
		MgmtHeader:     mgmtHeader(testBSSID, testSTA, testBSSID, 7),
		Algorithm:      AlgorithmSAE,
		TransactionSeq: 1,
		Status:         layers.Dot11StatusSuccess,
		Fields:         []byte{0x13, 0x00, 0xAB},
	}
	raw := append(f.Serialize(), 0, 0, 0, 0) // gopacket expects a trailing FCS
	packet := gopacket.NewPacket(raw, layers.LayerTypeDot11, gopacket.NoCopy)
	dot11, ok := packet.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	if !ok {
		t.Fatalf("gopacket did not decode a Dot11 layer: %v", packet.ErrorLayer())
	}
	if dot11.Type != layers.Dot11TypeMgmtAuthentication {
		t.Errorf("decoded type = %v, want %v", dot11.Type, layers.Dot11TypeMgmtAuthentication)
	}
	if !bytes.Equal(dot11.Address1, testBSSID) || !bytes.Equal(dot11.Address2, testSTA) {
		t.Errorf("decoded addresses = %s/%s, want %s/%s", dot11.Address1, dot11.Address2, testBSSID, testSTA)
	}
	if dot11.SequenceNumber != 7 {
		t.Errorf("decoded sequence = %d, want 7", dot11.SequenceNumber)
	}
}

func TestAuthenticationRoundTrip(t *testing.T) {
	in := &Authentication{
		MgmtHeader:     mgmtHeader(testBSSID, testSTA, testBSSID, 42),
		Algorithm:      AlgorithmSAE,
		TransactionSeq: 2,
		Status:         layers.Dot11Status(77),
		Fields:         []byte{1, 2, 3, 4},
	}
	f, err := ParseMgmtFrame(in.Serialize())
	if err != nil {
		t.Fatalf("ParseMgmtFrame: %v", err)
	}
	body, err := ParseAuthentication(f)
	if err != nil {
		t.Fatalf("ParseAuthentication: %v", err)
	}
	want := &AuthenticationBody{
		Algorithm:      AlgorithmSAE,
		TransactionSeq: 2,
		Status:         layers.Dot11Status(77),
		Fields:         []byte{1, 2, 3, 4},
	}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Fatalf("authentication body mismatch (-want +got):\n%s", diff)
	}
}

func TestAssociationRequestRoundTrip(t *testing.T) {
	rsne := []byte{48, 4, 0x01, 0x00, 0x00, 0x0F}
	in := &AssociationRequest{
		MgmtHeader:     mgmtHeader(testBSSID, testSTA, testBSSID, 3),
		CapabilityInfo: CapESS | CapPrivacy,
		ListenInterval: 10,
		SSID:           []byte("backhaul"),
		Rates:          []byte{0x82, 0x84, 0x8B, 0x96, 0x0C, 0x12, 0x18, 0x24, 0x30, 0x48},
		RSNE:           rsne,
	}
	raw, err := in.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	f, err := ParseMgmtFrame(raw)
	if err != nil {
		t.Fatalf("ParseMgmtFrame: %v", err)
	}
	body, err := ParseAssociationRequest(f)
	if err != nil {
		t.Fatalf("ParseAssociationRequest: %v", err)
	}
	if body.CapabilityInfo != CapESS|CapPrivacy {
		t.Errorf("capability = %#x, want %#x", body.CapabilityInfo, CapESS|CapPrivacy)
	}
	if ssid, _ := body.Elements.SSID(); string(ssid) != "backhaul" {
		t.Errorf("SSID = %q, want %q", ssid, "backhaul")
	}
	if got := body.Elements.Rates(); !bytes.Equal(got, in.Rates) {
		t.Errorf("rates = %#v, want %#v", got, in.Rates)
	}
	if got, ok := body.Elements.Raw(layers.Dot11InformationElementIDRSNInfo); !ok || !bytes.Equal(got, rsne) {
		t.Errorf("RSNE = %#v, want %#v", got, rsne)
	}
}

func TestParseAssociationResponseMasksAID(t *testing.T) {
	// APs set the two reserved MSBs of the AID field.
	body := []byte{
		0x01, 0x04, // capability
		0x00, 0x00, // success
		0x2A, 0xC0, // AID 42 with 0xC000 set
		1, 1, 0x82, // supported rates
	}
	f := &MgmtFrame{
		MgmtHeader: MgmtHeader{Subtype: layers.Dot11TypeMgmtAssociationResp},
		Body:       body,
	}
	resp, err := ParseAssociationResponse(f)
	if err != nil {
		t.Fatalf("ParseAssociationResponse: %v", err)
	}
	if resp.AID != 42 {
		t.Errorf("AID = %d, want 42", resp.AID)
	}
	if resp.Status != layers.Dot11StatusSuccess {
		t.Errorf("status = %v, want success", resp.Status)
	}
}

func TestDeauthenticationRoundTrip(t *testing.T) {
	in := &Deauthentication{
		MgmtHeader: mgmtHeader(testBSSID, testSTA, testBSSID, 9),
		Reason:     layers.Dot11ReasonDeauthStLeaving,
	}
	f, err := ParseMgmtFrame(in.Serialize())
	if err != nil {
		t.Fatalf("ParseMgmtFrame: %v", err)
	}
	reason, err := ParseReason(f)
	if err != nil {
		t.Fatalf("ParseReason: %v", err)
	}
	if reason != layers.Dot11ReasonDeauthStLeaving {
		t.Errorf("reason = %v, want %v", reason, layers.Dot11ReasonDeauthStLeaving)
	}
}

func TestParseBeacon(t *testing.T) {
	var body []byte
	body = append(body, make([]byte, 8)...) // timestamp
	body = append(body, 0x64, 0x00)         // beacon interval 100 TU
	body = append(body, 0x01, 0x04)         // capability
	body = append(body, 0, 4, 'h', 'o', 'm', 'e')
	body = append(body, 3, 1, 11)
	body = append(body, 37, 3, 1, 36, 5) // CSA: quiet, channel 36, 5 beacons
	f := &MgmtFrame{
		MgmtHeader: MgmtHeader{Subtype: layers.Dot11TypeMgmtBeacon},
		Body:       body,
	}
	b, err := ParseBeacon(f)
	if err != nil {
		t.Fatalf("ParseBeacon: %v", err)
	}
	if b.BeaconIntervalTU != 100 {
		t.Errorf("beacon interval = %d TU, want 100", b.BeaconIntervalTU)
	}
	if ch, ok := b.Elements.DSChannel(); !ok || ch != 11 {
		t.Errorf("DS channel = %d/%v, want 11/true", ch, ok)
	}
	csa, ok := b.Elements.ChannelSwitch()
	if !ok {
		t.Fatal("no channel switch announcement found")
	}
	want := &ChannelSwitch{Mode: 1, NewChannel: 36, Count: 5}
	if diff := cmp.Diff(want, csa); diff != "" {
		t.Errorf("CSA mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMgmtFrameRejectsShortAndWrongType(t *testing.T) {
	if _, err := ParseMgmtFrame(make([]byte, 10)); err == nil {
		t.Error("short buffer accepted")
	}
	data := make([]byte, 30)
	data[0] = byte(layers.Dot11TypeData) << 2
	if _, err := ParseMgmtFrame(data); err == nil {
		t.Error("data frame accepted as management")
	}
}
