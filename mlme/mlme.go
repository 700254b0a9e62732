// Package mlme is the client-mode MAC sublayer management entity: the
// connection state machine, scanner, channel arbitration, loss
// detection and block-ack negotiation for one 802.11 station.
//
// The MLME is single-threaded by contract. Exactly one caller, the
// daemon's event loop, invokes the Handle* methods; frames, SME
// requests, scan completions and timer firings are serialized through
// that loop and never run concurrently.
package mlme

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/boxwifi/mlme/device"
	"github.com/boxwifi/mlme/sme"
	"github.com/boxwifi/mlme/wire"
)

// MLME is the single entry point demultiplexing driver frames, SME
// requests and timer firings to the connection machine and scanner.
type MLME struct {
	cfg     Config
	dev     device.Device
	sme     sme.Sender
	sched   Scheduler
	log     *zap.Logger
	metrics *Metrics

	channels *ChannelState
	scanner  *Scanner
	seq      *wire.SeqManager

	// client is nil until the first connect request.
	client *Client
}

// New assembles an MLME instance. reg may be nil to skip metric
// registration.
func New(
	cfg Config,
	dev device.Device,
	smeSender sme.Sender,
	sched Scheduler,
	log *zap.Logger,
	reg prometheus.Registerer,
) *MLME {
	cfg = cfg.withDefaults()
	metrics := NewMetrics(reg)
	seq := wire.NewSeqManager()
	channels := NewChannelState(dev, sched, log.Named("channel"))
	return &MLME{
		cfg:      cfg,
		dev:      dev,
		sme:      smeSender,
		sched:    sched,
		log:      log,
		metrics:  metrics,
		channels: channels,
		scanner:  NewScanner(dev, smeSender, sched, channels, seq, log.Named("scan"), metrics),
		seq:      seq,
	}
}

// HandleFrame consumes one raw frame from the driver.
func (m *MLME) HandleFrame(frame []byte, info device.RxInfo) {
	t, err := wire.FrameType(frame)
	if err != nil {
		m.metrics.FramesDropped.Inc()
		return
	}
	switch t.MainType() {
	case layers.Dot11TypeMgmt:
		m.handleMgmtFrame(frame, info)
	case layers.Dot11TypeData:
		f, err := wire.ParseDataFrame(frame)
		if err != nil {
			m.metrics.FramesDropped.Inc()
			return
		}
		if m.client != nil {
			m.client.HandleDataFrame(f)
		}
	default:
		// Control frames are the driver's business.
	}
}

func (m *MLME) handleMgmtFrame(frame []byte, info device.RxInfo) {
	f, err := wire.ParseMgmtFrame(frame)
	if err != nil {
		m.metrics.FramesDropped.Inc()
		m.log.Debug("malformed management frame", zap.Error(err))
		return
	}
	m.metrics.FramesRx.WithLabelValues("mgmt").Inc()

	// Beacons and probe responses feed the scanner regardless of the
	// connection; everything else belongs to the client machine.
	if f.Subtype == layers.Dot11TypeMgmtBeacon || f.Subtype == layers.Dot11TypeMgmtProbeResp {
		if beacon, err := wire.ParseBeacon(f); err == nil {
			m.scanner.HandleFrame(f, beacon, info)
		}
	}
	if m.client != nil {
		m.client.HandleMgmtFrame(f, info)
	}
}

// HandleEthernet consumes one outbound Ethernet frame from the
// netstack.
func (m *MLME) HandleEthernet(frame []byte) error {
	if m.client == nil {
		return fmt.Errorf("mlme: no connection")
	}
	eth, err := wire.ParseEthernet(frame)
	if err != nil {
		return err
	}
	return m.client.HandleEthernet(eth)
}

// HandleTimeout consumes one fired timer, routing it by kind. Stale
// IDs die in the component that armed them.
func (m *MLME) HandleTimeout(id EventID, ev TimedEvent) {
	switch ev.Kind {
	case TimedEventScanDwell:
		m.scanner.HandleDwellTimeout(id)
	case TimedEventChannelSwitch:
		if err := m.channels.HandleChannelSwitchTimeout(id); err != nil {
			m.log.Error("channel switch failed", zap.Error(err))
		}
	default:
		if m.client != nil {
			m.client.HandleTimeout(ev, id)
		}
	}
}

// HandleHWScanComplete consumes the driver's scan completion callback.
func (m *MLME) HandleHWScanComplete(aborted bool) {
	m.scanner.HandleHWScanComplete(aborted)
}

// AddScanResult merges one driver-sourced BSS into the running scan.
func (m *MLME) AddScanResult(desc sme.BSSDescription) {
	m.scanner.AddBSS(desc)
}

// HandleSMEMessage consumes one typed SME request.
func (m *MLME) HandleSMEMessage(msg any) error {
	switch req := msg.(type) {
	case *sme.ScanRequest:
		if code := m.scanner.OnScanRequest(req); code != sme.ScanSuccess {
			m.sme.Send(&sme.ScanEnd{TxnID: req.TxnID, Code: code})
		}
	case *sme.ConnectRequest:
		m.handleConnect(req)
	case *sme.ReconnectRequest:
		if m.client == nil {
			return fmt.Errorf("mlme: reconnect without a prior connection")
		}
		m.client.StartConnecting()
	case *sme.DeauthenticateRequest:
		if m.client != nil {
			m.client.Deauthenticate(req.Reason)
		}
	case *sme.DisassociateRequest:
		if m.client != nil {
			m.client.Disassociate(req.Reason)
		}
	case *sme.SetControlledPort:
		if m.client != nil {
			m.client.SetControlledPort(req.State)
		}
	case *sme.SetKeysRequest:
		// Key programming is the driver's concern; the MLME accepts
		// the request so the SME's handshake can complete.
		m.log.Debug("set keys", zap.Int("count", len(req.Keys)))
	case *sme.EapolRequest:
		if m.client != nil {
			m.client.SendEapol(req)
		}
	case *sme.SaeFrameTx:
		if m.client != nil {
			m.client.HandleSaeFrameTx(req)
		}
	case *sme.SaeHandshakeResponse:
		if m.client != nil {
			m.client.HandleSaeHandshakeResponse(req)
		}
	case *sme.DeviceQueryRequest:
		caps := m.dev.Capabilities()
		m.sme.Send(&sme.DeviceQueryConfirm{
			MACAddr:         caps.MACAddr,
			SupportedRates:  caps.SupportedRates,
			HTCapabilities:  caps.HTCapabilities,
			VHTCapabilities: caps.VHTCapabilities,
			HWScanOffload:   caps.HWScanOffload,
		})
	default:
		return fmt.Errorf("mlme: unhandled SME message %T", msg)
	}
	return nil
}

func (m *MLME) handleConnect(req *sme.ConnectRequest) {
	// A connect cancels any in-flight scan before touching the radio.
	m.scanner.Cancel(sme.ScanCanceled)
	if m.client != nil && m.client.Associated() {
		m.client.Deauthenticate(uint16(layers.Dot11ReasonDeauthStLeaving))
	}
	m.metrics.ConnectAttempts.Inc()
	m.client = newConnectionClient(
		m.cfg, m.dev, m.sme, m.sched, m.channels, m.seq,
		m.log.Named("client"), m.metrics, req,
	)
	m.client.StartConnecting()
}

// Capabilities answers the SME's device query.
func (m *MLME) Capabilities() *device.Capabilities {
	return m.dev.Capabilities()
}

// Client exposes the active connection, nil before the first connect.
func (m *MLME) Client() *Client { return m.client }
