package mlme

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/gopacket/layers"

	"github.com/boxwifi/mlme/sme"
	"github.com/boxwifi/mlme/wire"
)

func fireDwell(t *testing.T, m *MLME, sched *fakeScheduler) {
	t.Helper()
	ev, ok := sched.lastOfKind(TimedEventScanDwell)
	if !ok {
		t.Fatal("no dwell timer armed")
	}
	m.HandleTimeout(ev.id, ev.ev)
}

func TestSoftwareScanVisitsAllChannels(t *testing.T) {
	m, dev, sched, snd := newTestMLME(t, Config{})

	m.HandleSMEMessage(&sme.ScanRequest{TxnID: 1, Type: sme.ScanTypePassive, Channels: []uint8{1, 6, 11}})
	if !m.scanner.Busy() {
		t.Fatal("scan did not start")
	}

	// One beacon seen while parked on channel 1.
	beacon := apBeacon(t, wire.ElementList{
		{ID: layers.Dot11InformationElementIDSSID, Data: []byte("backhaul")},
		{ID: layers.Dot11InformationElementIDRates, Data: []byte{0x82, 0x84}},
		{ID: layers.Dot11InformationElementIDDSSet, Data: []byte{1}},
	})
	m.HandleFrame(beacon, rxOnChannel(1))

	fireDwell(t, m, sched)
	fireDwell(t, m, sched)
	fireDwell(t, m, sched)

	if m.scanner.Busy() {
		t.Fatal("scan still busy after last dwell")
	}
	var got []uint8
	for _, ch := range dev.Channels {
		got = append(got, ch.Number)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 6 || got[2] != 11 {
		t.Errorf("channel visits = %v, want [1 6 11]", got)
	}

	end := snd.lastScanEnd()
	if end == nil || end.Code != sme.ScanSuccess || end.TxnID != 1 {
		t.Fatalf("scan end = %+v, want success txn 1", end)
	}
	if len(end.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(end.Results))
	}
	res := end.Results[0]
	if !bytes.Equal(res.BSSID, apAddr) || string(res.SSID) != "backhaul" || res.Channel != 1 {
		t.Errorf("result = %+v, want backhaul on channel 1 from %s", res, apAddr)
	}
}

func TestActiveScanProbes(t *testing.T) {
	m, dev, sched, _ := newTestMLME(t, Config{})

	m.HandleSMEMessage(&sme.ScanRequest{
		TxnID:    2,
		Type:     sme.ScanTypeActive,
		Channels: []uint8{6},
		SSID:     []byte("backhaul"),
	})

	probe := lastMgmtOfSubtype(t, dev, layers.Dot11TypeMgmtProbeReq)
	if probe == nil {
		t.Fatal("active scan sent no probe request")
	}
	els, err := wire.ParseElements(probe.Body)
	if err != nil {
		t.Fatalf("parse probe request elements: %v", err)
	}
	if ssid, _ := els.SSID(); string(ssid) != "backhaul" {
		t.Errorf("probe SSID = %q, want %q", ssid, "backhaul")
	}
	fireDwell(t, m, sched)
	if m.scanner.Busy() {
		t.Error("scan still busy")
	}
}

func TestScanKeepsBestSignalPerBSS(t *testing.T) {
	m, _, sched, snd := newTestMLME(t, Config{})
	m.HandleSMEMessage(&sme.ScanRequest{TxnID: 3, Type: sme.ScanTypePassive, Channels: []uint8{1}})

	beacon := apBeacon(t, wire.ElementList{
		{ID: layers.Dot11InformationElementIDSSID, Data: []byte("backhaul")},
		{ID: layers.Dot11InformationElementIDDSSet, Data: []byte{1}},
	})
	weak := rxOnChannel(1)
	weak.RSSIDBm = -80
	strong := rxOnChannel(1)
	strong.RSSIDBm = -35
	m.HandleFrame(beacon, weak)
	m.HandleFrame(beacon, strong)
	m.HandleFrame(beacon, weak)

	fireDwell(t, m, sched)
	end := snd.lastScanEnd()
	if end == nil || len(end.Results) != 1 {
		t.Fatalf("scan end = %+v, want 1 result", end)
	}
	if end.Results[0].RSSIDBm != -35 {
		t.Errorf("kept RSSI %d, want the strongest sighting -35", end.Results[0].RSSIDBm)
	}
}

func TestScanSSIDFilter(t *testing.T) {
	m, _, sched, snd := newTestMLME(t, Config{})
	m.HandleSMEMessage(&sme.ScanRequest{
		TxnID:    4,
		Type:     sme.ScanTypePassive,
		Channels: []uint8{1},
		SSID:     []byte("wanted"),
	})

	other := apBeacon(t, wire.ElementList{
		{ID: layers.Dot11InformationElementIDSSID, Data: []byte("other")},
		{ID: layers.Dot11InformationElementIDDSSet, Data: []byte{1}},
	})
	m.HandleFrame(other, rxOnChannel(1))

	fireDwell(t, m, sched)
	end := snd.lastScanEnd()
	if end == nil || len(end.Results) != 0 {
		t.Fatalf("scan end = %+v, want no results", end)
	}
}

func TestSecondScanRejectedBusy(t *testing.T) {
	m, _, _, snd := newTestMLME(t, Config{})
	m.HandleSMEMessage(&sme.ScanRequest{TxnID: 5, Channels: []uint8{1}})
	m.HandleSMEMessage(&sme.ScanRequest{TxnID: 6, Channels: []uint8{6}})

	end := snd.lastScanEnd()
	if end == nil || end.TxnID != 6 || end.Code != sme.ScanBusy {
		t.Fatalf("scan end = %+v, want busy for txn 6", end)
	}
	if !m.scanner.Busy() {
		t.Error("first scan no longer in flight")
	}
}

func TestScanInvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		req  sme.ScanRequest
	}{
		{"no channels", sme.ScanRequest{TxnID: 7}},
		{"channel zero", sme.ScanRequest{TxnID: 7, Channels: []uint8{0}}},
		{"channel out of range", sme.ScanRequest{TxnID: 7, Channels: []uint8{20}}},
		{"dwell inverted", sme.ScanRequest{TxnID: 7, Channels: []uint8{1}, MinDwellTU: 200, MaxDwellTU: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _, snd := newTestMLME(t, Config{})
			m.HandleSMEMessage(&tt.req)
			end := snd.lastScanEnd()
			if end == nil || end.Code != sme.ScanInvalidArgs {
				t.Fatalf("scan end = %+v, want invalid-args", end)
			}
			if m.scanner.Busy() {
				t.Error("invalid scan left a session behind")
			}
		})
	}
}

func TestHWScanOffload(t *testing.T) {
	m, dev, _, snd := newTestMLME(t, Config{})
	dev.Caps.HWScanOffload = true

	m.HandleSMEMessage(&sme.ScanRequest{
		TxnID:    8,
		Type:     sme.ScanTypeActive,
		Channels: []uint8{1, 6},
		SSID:     []byte("backhaul"),
	})

	if len(dev.HWScans) != 1 {
		t.Fatalf("driver saw %d scan offloads, want 1", len(dev.HWScans))
	}
	hw := dev.HWScans[0]
	if hw.Passive || len(hw.Channels) != 2 || len(hw.SSIDs) != 1 {
		t.Errorf("hardware scan request = %+v", hw)
	}
	if len(dev.Channels) != 0 {
		t.Errorf("offloaded scan retuned the radio itself: %v", dev.Channels)
	}

	m.AddScanResult(sme.BSSDescription{BSSID: apAddr, SSID: []byte("backhaul"), Channel: 6, RSSIDBm: -50})
	m.HandleHWScanComplete(false)

	end := snd.lastScanEnd()
	if end == nil || end.Code != sme.ScanSuccess || len(end.Results) != 1 {
		t.Fatalf("scan end = %+v, want success with 1 result", end)
	}
}

func TestHWScanAborted(t *testing.T) {
	m, dev, _, snd := newTestMLME(t, Config{})
	dev.Caps.HWScanOffload = true
	m.HandleSMEMessage(&sme.ScanRequest{TxnID: 9, Channels: []uint8{1}})

	m.HandleHWScanComplete(true)

	end := snd.lastScanEnd()
	if end == nil || end.Code != sme.ScanCanceled {
		t.Fatalf("scan end = %+v, want canceled", end)
	}
}

func TestScanRestoresMainChannelWhileAssociated(t *testing.T) {
	m, dev, sched, _ := newTestMLME(t, Config{})
	connect(t, m, dev, 42, nil)
	dev.Channels = nil

	m.HandleSMEMessage(&sme.ScanRequest{TxnID: 10, Type: sme.ScanTypePassive, Channels: []uint8{11}})
	fireDwell(t, m, sched)

	if len(dev.Channels) != 2 {
		t.Fatalf("channel changes = %v, want excursion then restore", dev.Channels)
	}
	if dev.Channels[0].Number != 11 || dev.Channels[1].Number != 6 {
		t.Errorf("channel sequence = %v, want [11 6]", dev.Channels)
	}
}

func TestStaleDwellTimerIgnored(t *testing.T) {
	m, _, sched, snd := newTestMLME(t, Config{})
	m.HandleSMEMessage(&sme.ScanRequest{TxnID: 11, Channels: []uint8{1, 6}})

	ev, _ := sched.lastOfKind(TimedEventScanDwell)
	m.HandleTimeout(ev.id, ev.ev)
	// The first dwell's ID is dead now; replaying it must not advance
	// the scan a second time.
	m.HandleTimeout(ev.id, ev.ev)

	if !m.scanner.Busy() {
		t.Fatal("stale dwell timer finished the scan")
	}
	if end := snd.lastScanEnd(); end != nil {
		t.Fatalf("unexpected scan end %+v", end)
	}
}

func TestScanChannelTuneFailureReportsOnce(t *testing.T) {
	m, dev, _, snd := newTestMLME(t, Config{})
	dev.SetChannelErr = errors.New("device busy")

	m.HandleSMEMessage(&sme.ScanRequest{TxnID: 99, Type: sme.ScanTypePassive, Channels: []uint8{1}})

	var ends []*sme.ScanEnd
	for _, msg := range snd.msgs {
		if end, ok := msg.(*sme.ScanEnd); ok {
			ends = append(ends, end)
		}
	}
	if len(ends) != 1 {
		t.Fatalf("got %d ScanEnd messages for one request, want 1", len(ends))
	}
	if ends[0].TxnID != 99 || ends[0].Code != sme.ScanInternalError {
		t.Errorf("scan end = %+v, want internal error for txn 99", ends[0])
	}
	if m.scanner.Busy() {
		t.Error("scanner still busy after failed start")
	}
}

func TestScanDwellHonorsMinimum(t *testing.T) {
	m, _, sched, _ := newTestMLME(t, Config{})

	m.HandleSMEMessage(&sme.ScanRequest{
		TxnID:      12,
		Type:       sme.ScanTypePassive,
		Channels:   []uint8{6},
		MinDwellTU: 200,
	})

	ev, ok := sched.lastOfKind(TimedEventScanDwell)
	if !ok {
		t.Fatal("no dwell timer armed")
	}
	if want := tuDuration(200); ev.d != want {
		t.Errorf("dwell = %v, want at least the requested minimum %v", ev.d, want)
	}
}
