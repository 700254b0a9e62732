//go:build linux
// +build linux

package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/boxwifi/mlme/sme"
)

const rescanDelay = 10 * time.Second

// policy is the minimal SME driving the daemon: scan for the
// configured SSID, join the strongest open BSS, rescan after the link
// drops. Protected networks are reported but not joined; key
// management needs a full supplicant on the SME side.
type policy struct {
	ssid     string
	channels []uint8
	log      *zap.Logger

	out  chan any
	txn  uint64
	when func(time.Duration, func()) // test seam for the rescan delay
}

func newPolicy(ssid string, channels []uint8, log *zap.Logger) *policy {
	p := &policy{
		ssid:     ssid,
		channels: channels,
		log:      log,
		out:      make(chan any, 16),
	}
	p.when = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	return p
}

// Requests is the stream of SME requests for the event loop to feed
// into the MLME.
func (p *policy) Requests() <-chan any { return p.out }

// Start issues the initial scan.
func (p *policy) Start() {
	if p.ssid == "" {
		p.log.Info("no network configured, idling")
		return
	}
	p.scan()
}

func (p *policy) scan() {
	p.txn++
	p.enqueue(&sme.ScanRequest{
		TxnID:    p.txn,
		Type:     sme.ScanTypeActive,
		Channels: p.channels,
		SSID:     []byte(p.ssid),
	})
}

func (p *policy) rescan() {
	p.when(rescanDelay, func() { p.scan() })
}

func (p *policy) enqueue(msg any) {
	select {
	case p.out <- msg:
	default:
		p.log.Warn("sme request queue full, dropping request")
	}
}

// Send receives MLME-to-SME traffic. It runs on the event loop
// goroutine; anything it wants done goes back through the request
// queue.
func (p *policy) Send(msg sme.Message) {
	switch m := msg.(type) {
	case *sme.ScanEnd:
		p.handleScanEnd(m)
	case *sme.ConnectConfirm:
		if m.Code == sme.ConnectSuccess {
			p.log.Info("connected", zap.String("bssid", m.PeerAddr.String()), zap.Uint16("aid", m.AID))
			return
		}
		p.log.Warn("connect failed", zap.Stringer("code", m.Code))
		p.rescan()
	case *sme.DeauthenticateIndication:
		p.log.Warn("link lost",
			zap.Uint16("reason", m.Reason),
			zap.Bool("local", m.LocallyInitiated))
		p.rescan()
	case *sme.DisassociateIndication:
		p.log.Warn("disassociated", zap.Uint16("reason", m.Reason))
	case *sme.SignalReportIndication:
		p.log.Debug("signal report", zap.Int8("rssi_dbm", m.RSSIDBm))
	case *sme.SaeFrameRx, *sme.SaeHandshakeIndication:
		p.log.Warn("SAE handshake requested but no supplicant is wired in")
	case *sme.EapolIndication:
		p.log.Debug("eapol frame received, no supplicant to hand it to")
	}
}

func (p *policy) handleScanEnd(end *sme.ScanEnd) {
	if end.Code != sme.ScanSuccess {
		p.log.Warn("scan failed", zap.Stringer("code", end.Code))
		p.rescan()
		return
	}
	var best *sme.BSSDescription
	for i := range end.Results {
		r := &end.Results[i]
		if best == nil || r.RSSIDBm > best.RSSIDBm {
			best = r
		}
	}
	if best == nil {
		p.log.Info("network not found, will rescan", zap.String("ssid", p.ssid))
		p.rescan()
		return
	}
	if len(best.RSNE) > 0 {
		p.log.Warn("strongest BSS is protected, not joining",
			zap.String("bssid", best.BSSID.String()))
		p.rescan()
		return
	}
	p.log.Info("joining",
		zap.String("bssid", best.BSSID.String()),
		zap.Uint8("channel", best.Channel),
		zap.Int8("rssi_dbm", best.RSSIDBm))
	p.enqueue(&sme.ConnectRequest{BSS: *best, AuthType: sme.AuthTypeOpenSystem})
}
