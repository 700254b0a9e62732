package mlme

import (
	"errors"

	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"github.com/boxwifi/mlme/device"
	"github.com/boxwifi/mlme/sme"
	"github.com/boxwifi/mlme/wire"
)

const (
	defaultMinDwellTU = 50
	defaultMaxDwellTU = 100
)

// scanSession is one in-flight scan: its request, the channels still
// to visit for software scans, and the per-BSSID result accumulation.
type scanSession struct {
	req       sme.ScanRequest
	hw        bool
	remaining []uint8
	results   map[string]*sme.BSSDescription
	dwellID   EventID
}

// Scanner coordinates passive and active scanning. At most one session
// exists at a time; a second request is rejected busy, never queued.
// Software scans drive the radio through the ChannelState's off-channel
// hooks; hardware scans are handed to the driver whole.
type Scanner struct {
	dev      device.Device
	sme      sme.Sender
	sched    Scheduler
	channels *ChannelState
	seq      *wire.SeqManager
	log      *zap.Logger
	metrics  *Metrics

	session *scanSession
}

func NewScanner(
	dev device.Device,
	smeSender sme.Sender,
	sched Scheduler,
	channels *ChannelState,
	seq *wire.SeqManager,
	log *zap.Logger,
	metrics *Metrics,
) *Scanner {
	return &Scanner{
		dev:      dev,
		sme:      smeSender,
		sched:    sched,
		channels: channels,
		seq:      seq,
		log:      log,
		metrics:  metrics,
	}
}

// Busy reports whether a scan session is in flight.
func (s *Scanner) Busy() bool { return s.session != nil }

// OnScanRequest validates and starts a scan. The returned code is
// reported to the SME immediately on rejection; acceptance is reported
// later through the ScanEnd.
func (s *Scanner) OnScanRequest(req *sme.ScanRequest) sme.ScanResultCode {
	if s.session != nil {
		s.metrics.ScansRejected.WithLabelValues(sme.ScanBusy.String()).Inc()
		return sme.ScanBusy
	}
	if code := validateScanRequest(req); code != sme.ScanSuccess {
		s.metrics.ScansRejected.WithLabelValues(code.String()).Inc()
		return code
	}

	sess := &scanSession{
		req:     *req,
		results: make(map[string]*sme.BSSDescription),
	}
	if s.dev.Capabilities().HWScanOffload {
		if err := s.startHWScan(sess); err != nil {
			if !errors.Is(err, device.ErrNotSupported) {
				s.log.Error("hardware scan failed to start", zap.Error(err))
				return sme.ScanInternalError
			}
		} else {
			sess.hw = true
			s.session = sess
			s.metrics.ScansStarted.Inc()
			return sme.ScanSuccess
		}
	}

	sess.remaining = append([]uint8(nil), req.Channels...)
	s.session = sess
	s.channels.PreSwitchOffChannel()
	if err := s.dwellNext(); err != nil {
		s.log.Error("software scan failed to start", zap.Error(err))
		// The session was started, so finish owns its terminal
		// report. Returning success keeps the caller from sending
		// a second ScanEnd for the same transaction.
		s.finish(sme.ScanInternalError)
		return sme.ScanSuccess
	}
	s.metrics.ScansStarted.Inc()
	return sme.ScanSuccess
}

func validateScanRequest(req *sme.ScanRequest) sme.ScanResultCode {
	if len(req.Channels) == 0 {
		return sme.ScanInvalidArgs
	}
	for _, ch := range req.Channels {
		if !validChannel(ch) {
			return sme.ScanInvalidArgs
		}
	}
	if req.MinDwellTU != 0 && req.MaxDwellTU != 0 && req.MinDwellTU > req.MaxDwellTU {
		return sme.ScanInvalidArgs
	}
	return sme.ScanSuccess
}

func validChannel(ch uint8) bool {
	switch {
	case ch >= 1 && ch <= 14:
		return true
	case ch >= 36 && ch <= 177:
		return true
	default:
		return false
	}
}

func (s *Scanner) startHWScan(sess *scanSession) error {
	hw := &device.HWScanRequest{
		Passive:  sess.req.Type == sme.ScanTypePassive,
		Channels: sess.req.Channels,
	}
	if len(sess.req.SSID) > 0 {
		hw.SSIDs = [][]byte{sess.req.SSID}
	}
	return s.dev.StartHWScan(hw)
}

// dwellNext tunes to the next channel in the list and arms the dwell
// timer, probing first on active scans.
func (s *Scanner) dwellNext() error {
	ch := s.session.remaining[0]
	s.session.remaining = s.session.remaining[1:]
	if err := s.channels.ScanChannel(device.Channel{Number: ch}); err != nil {
		return err
	}
	if s.session.req.Type == sme.ScanTypeActive {
		s.sendProbeRequest()
	}
	dwell := s.session.req.MaxDwellTU
	if dwell == 0 {
		dwell = defaultMaxDwellTU
	}
	if dwell < s.session.req.MinDwellTU {
		dwell = s.session.req.MinDwellTU
	}
	s.session.dwellID = s.sched.Schedule(tuDuration(uint32(dwell)), TimedEvent{Kind: TimedEventScanDwell})
	return nil
}

func (s *Scanner) sendProbeRequest() {
	caps := s.dev.Capabilities()
	probe := &wire.ProbeRequest{
		MgmtHeader: wire.MgmtHeader{
			DA:    wire.BroadcastAddr(),
			SA:    caps.MACAddr,
			BSSID: wire.BroadcastAddr(),
			Seq:   s.seq.Next(wire.BroadcastAddr()),
		},
		SSID:  s.session.req.SSID,
		Rates: caps.SupportedRates,
	}
	raw, err := probe.Serialize()
	if err != nil {
		s.log.Warn("probe request build failed", zap.Error(err))
		return
	}
	if err := s.dev.SendFrame(raw, 0); err != nil {
		s.log.Debug("probe request send failed", zap.Error(err))
	}
}

// HandleFrame accumulates one beacon or probe response into the
// session, keeping the best-signal sighting per BSSID.
func (s *Scanner) HandleFrame(f *wire.MgmtFrame, beacon *wire.BeaconBody, info device.RxInfo) {
	if s.session == nil {
		return
	}
	desc := bssDescription(f, beacon, info)
	if desc == nil {
		return
	}
	if want := s.session.req.SSID; len(want) > 0 && string(want) != string(desc.SSID) {
		return
	}
	key := f.BSSID.String()
	if prev, ok := s.session.results[key]; ok && prev.RSSIDBm >= desc.RSSIDBm {
		return
	}
	s.session.results[key] = desc
}

// AddBSS merges one externally sourced result, used when a hardware
// scan's results come from the driver's BSS table instead of frames.
func (s *Scanner) AddBSS(desc sme.BSSDescription) {
	if s.session == nil || desc.BSSID == nil {
		return
	}
	key := desc.BSSID.String()
	if prev, ok := s.session.results[key]; ok && prev.RSSIDBm >= desc.RSSIDBm {
		return
	}
	s.session.results[key] = &desc
}

func bssDescription(f *wire.MgmtFrame, beacon *wire.BeaconBody, info device.RxInfo) *sme.BSSDescription {
	ssid, ok := beacon.Elements.SSID()
	if !ok {
		return nil
	}
	desc := &sme.BSSDescription{
		BSSID:            f.BSSID,
		SSID:             ssid,
		BeaconIntervalTU: beacon.BeaconIntervalTU,
		CapabilityInfo:   beacon.CapabilityInfo,
		Channel:          info.Channel,
		RSSIDBm:          info.RSSIDBm,
		Rates:            beacon.Elements.Rates(),
	}
	if ch, ok := beacon.Elements.DSChannel(); ok {
		desc.Channel = ch
	}
	if rsne, ok := beacon.Elements.Raw(layers.Dot11InformationElementIDRSNInfo); ok {
		desc.RSNE = rsne
	}
	if ht, ok := beacon.Elements.HTCapabilities(); ok {
		desc.HTCapabilities = ht.Raw
	}
	if vht, ok := beacon.Elements.VHTCapabilities(); ok {
		desc.VHTCapabilities = vht.Raw
	}
	return desc
}

// HandleDwellTimeout advances a software scan to its next channel or
// completes it. Stale timer IDs are ignored.
func (s *Scanner) HandleDwellTimeout(id EventID) {
	if s.session == nil || s.session.hw || id != s.session.dwellID {
		return
	}
	s.session.dwellID = NoEvent
	if len(s.session.remaining) > 0 {
		if err := s.dwellNext(); err != nil {
			s.log.Error("scan channel change failed", zap.Error(err))
			s.finish(sme.ScanInternalError)
		}
		return
	}
	s.finish(sme.ScanSuccess)
}

// HandleHWScanComplete finalizes a hardware scan.
func (s *Scanner) HandleHWScanComplete(aborted bool) {
	if s.session == nil || !s.session.hw {
		return
	}
	if aborted {
		s.finish(sme.ScanCanceled)
		return
	}
	s.finish(sme.ScanSuccess)
}

// Cancel aborts any in-flight scan with the given terminal code.
// Connect requests use this so a scan never races a connection.
func (s *Scanner) Cancel(code sme.ScanResultCode) {
	if s.session == nil {
		return
	}
	if s.session.dwellID != NoEvent {
		s.sched.Cancel(s.session.dwellID)
	}
	s.finish(code)
}

// finish reports the ScanEnd, restores the main channel after a
// software excursion and drops the session.
func (s *Scanner) finish(code sme.ScanResultCode) {
	sess := s.session
	s.session = nil
	if !sess.hw {
		if err := s.channels.HandleBackOnChannel(); err != nil {
			s.log.Warn("main channel restore failed", zap.Error(err))
		}
	}
	end := &sme.ScanEnd{TxnID: sess.req.TxnID, Code: code}
	if code == sme.ScanSuccess {
		for _, desc := range sess.results {
			end.Results = append(end.Results, *desc)
		}
	}
	s.log.Info("scan finished",
		zap.Uint64("txn", sess.req.TxnID),
		zap.Stringer("code", code),
		zap.Int("results", len(end.Results)))
	s.sme.Send(end)
}
