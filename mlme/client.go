package mlme

import (
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"github.com/boxwifi/mlme/device"
	"github.com/boxwifi/mlme/sme"
	"github.com/boxwifi/mlme/wire"
)

// Config tunes the connection engine.
type Config struct {
	// BeaconLossTimeout is the number of consecutive status check
	// ticks without a beacon before the station deauthenticates.
	BeaconLossTimeout uint32
	// SignalReportTicks is the number of status check ticks between
	// signal report indications.
	SignalReportTicks uint32
	// ConnectTimeoutBI is the default connect timeout in beacon
	// intervals, used when the connect request does not carry one.
	ConnectTimeoutBI uint32
}

// DefaultConfig matches the timing a typical AP's 100 TU beacon period
// implies: about four seconds of beacon loss tolerance and five
// seconds to complete a connect attempt.
func DefaultConfig() Config {
	return Config{
		BeaconLossTimeout: 40,
		SignalReportTicks: 10,
		ConnectTimeoutBI:  50,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BeaconLossTimeout == 0 {
		c.BeaconLossTimeout = d.BeaconLossTimeout
	}
	if c.SignalReportTicks == 0 {
		c.SignalReportTicks = d.SignalReportTicks
	}
	if c.ConnectTimeoutBI == 0 {
		c.ConnectTimeoutBI = d.ConnectTimeoutBI
	}
	return c
}

// association holds the state that only exists while associated.
type association struct {
	aid      uint16
	assocIEs []byte
	rates    []byte
	ht       []byte
	vht      []byte
	qos      bool

	rsn      bool
	portOpen bool

	lostBSS  *LostBSSCounter
	blockAck *BlockAck
	signal   signalAverage
	ticks    uint32
}

// signalAverage is an exponentially weighted RSSI average.
type signalAverage struct {
	avg float64
	set bool
}

func (s *signalAverage) add(rssi int8) {
	if rssi == 0 {
		return
	}
	if !s.set {
		s.avg = float64(rssi)
		s.set = true
		return
	}
	s.avg = 0.9*s.avg + 0.1*float64(rssi)
}

func (s *signalAverage) value() int8 { return int8(s.avg) }

// Client is the station's connection context: one target BSS, one
// protocol state. A new connect request replaces the whole Client.
// All methods run on the facade's single event loop.
type Client struct {
	cfg      Config
	dev      device.Device
	sme      sme.Sender
	sched    Scheduler
	channels *ChannelState
	seq      *wire.SeqManager
	log      *zap.Logger
	metrics  *Metrics

	mac      net.HardwareAddr
	bss      sme.BSSDescription
	rsne     []byte
	authType sme.AuthType
	akm      akm

	connectTimeout time.Duration

	state clientState
	// Timer identity tokens. A fired timer whose ID does not match
	// the stored one is stale and ignored.
	connectID EventID
	statusID  EventID

	assoc *association
}

func newConnectionClient(
	cfg Config,
	dev device.Device,
	smeSender sme.Sender,
	sched Scheduler,
	channels *ChannelState,
	seq *wire.SeqManager,
	log *zap.Logger,
	metrics *Metrics,
	req *sme.ConnectRequest,
) *Client {
	cfg = cfg.withDefaults()
	timeoutBI := req.ConnectTimeoutBI
	if timeoutBI == 0 {
		timeoutBI = cfg.ConnectTimeoutBI
	}
	bi := uint32(req.BSS.BeaconIntervalTU)
	if bi == 0 {
		bi = 100
	}
	return &Client{
		cfg:            cfg,
		dev:            dev,
		sme:            smeSender,
		sched:          sched,
		channels:       channels,
		seq:            seq,
		log:            log.With(zap.String("bssid", req.BSS.BSSID.String())),
		metrics:        metrics,
		mac:            dev.Capabilities().MACAddr,
		bss:            req.BSS,
		rsne:           req.RSNE,
		authType:       req.AuthType,
		akm:            newAKM(req.AuthType),
		connectTimeout: tuDuration(bi * timeoutBI),
		state:          &idleState{},
	}
}

// StartConnecting tunes to the BSS, fires the AKM's opening move and
// arms the connect timeout.
func (c *Client) StartConnecting() {
	if err := c.channels.SetMainChannel(device.Channel{Number: c.bss.Channel}); err != nil {
		c.log.Error("set channel failed", zap.Error(err))
		c.reportConnectResult(sme.ConnectInternalError)
		return
	}
	if err := c.akm.initiate(c); err != nil {
		c.log.Error("authentication initiate failed", zap.Error(err))
		c.channels.ClearMainChannel()
		c.reportConnectResult(sme.ConnectInternalError)
		return
	}
	c.connectID = c.sched.Schedule(c.connectTimeout, TimedEvent{Kind: TimedEventConnecting})
	c.setState(&authenticatingState{})
}

// HandleMgmtFrame dispatches one management frame from the associated
// or target BSS into the current state.
func (c *Client) HandleMgmtFrame(f *wire.MgmtFrame, info device.RxInfo) {
	if !f.IsForBSS(c.bss.BSSID) {
		return
	}
	c.setState(c.state.handleMgmt(c, f, info))
}

// HandleTimeout dispatches one fired timer into the current state.
func (c *Client) HandleTimeout(ev TimedEvent, id EventID) {
	c.setState(c.state.handleTimeout(c, ev, id))
}

func (c *Client) setState(next clientState) {
	if next == nil || next == c.state {
		return
	}
	c.log.Info("state transition",
		zap.Stringer("from", c.state),
		zap.Stringer("to", next))
	c.state = next
}

// StateName reports the current protocol state.
func (c *Client) StateName() string { return c.state.String() }

// Associated reports whether the connection reached steady state.
func (c *Client) Associated() bool {
	_, ok := c.state.(*associatedState)
	return ok
}

func (c *Client) mgmtHeader() wire.MgmtHeader {
	return wire.MgmtHeader{
		DA:    c.bss.BSSID,
		SA:    c.mac,
		BSSID: c.bss.BSSID,
		Seq:   c.seq.Next(c.bss.BSSID),
	}
}

func (c *Client) sendMgmt(frame []byte) error {
	if c.channels.OffChannel() {
		c.metrics.FramesDropped.Inc()
		c.log.Debug("mgmt frame dropped while off channel")
		return nil
	}
	if err := c.dev.SendFrame(frame, device.TxFlagFavorReliability); err != nil {
		return err
	}
	c.metrics.FramesTx.WithLabelValues("mgmt").Inc()
	return nil
}

func (c *Client) sendAssociationRequest() error {
	caps := c.dev.Capabilities()
	capInfo := wire.CapESS
	if len(c.rsne) > 0 {
		capInfo |= wire.CapPrivacy
	}
	req := &wire.AssociationRequest{
		MgmtHeader:      c.mgmtHeader(),
		CapabilityInfo:  capInfo,
		ListenInterval:  10,
		SSID:            c.bss.SSID,
		Rates:           caps.SupportedRates,
		RSNE:            c.rsne,
		HTCapabilities:  caps.HTCapabilities,
		VHTCapabilities: caps.VHTCapabilities,
	}
	raw, err := req.Serialize()
	if err != nil {
		return fmt.Errorf("build association request: %w", err)
	}
	return c.sendMgmt(raw)
}

func (c *Client) reportConnectResult(code sme.ConnectResult) {
	c.metrics.ConnectResults.WithLabelValues(code.String()).Inc()
	confirm := &sme.ConnectConfirm{PeerAddr: c.bss.BSSID, Code: code}
	if code == sme.ConnectSuccess && c.assoc != nil {
		confirm.AID = c.assoc.aid
		confirm.AssocIEs = c.assoc.assocIEs
	}
	c.sme.Send(confirm)
}

// failConnect reports a failed attempt and returns the machine to idle.
func (c *Client) failConnect(code sme.ConnectResult) clientState {
	c.cancelConnectTimer()
	c.channels.ClearMainChannel()
	c.reportConnectResult(code)
	return &idleState{}
}

func (c *Client) cancelConnectTimer() {
	if c.connectID != NoEvent {
		c.sched.Cancel(c.connectID)
		c.connectID = NoEvent
	}
}

func (c *Client) cancelStatusTimer() {
	if c.statusID != NoEvent {
		c.sched.Cancel(c.statusID)
		c.statusID = NoEvent
	}
}

// completeAssociation parses the success response, seeds the
// association sub-state and reports the connect confirm.
func (c *Client) completeAssociation(resp *wire.AssociationResponseBody, rawIEs []byte) clientState {
	c.cancelConnectTimer()

	a := &association{
		aid:      resp.AID,
		assocIEs: rawIEs,
		rates:    resp.Elements.Rates(),
		rsn:      len(c.rsne) > 0,
		lostBSS:  NewLostBSSCounter(c.cfg.BeaconLossTimeout),
		blockAck: NewBlockAck(),
	}
	if ht, ok := resp.Elements.HTCapabilities(); ok {
		a.ht = ht.Raw
		a.qos = true
	}
	if vht, ok := resp.Elements.VHTCapabilities(); ok {
		a.vht = vht.Raw
	}
	if resp.CapabilityInfo&wire.CapQoS != 0 {
		a.qos = true
	}
	// For an open BSS the data path comes up immediately; an RSN
	// association stays gated until the SME finishes its handshake.
	a.portOpen = !a.rsn
	c.assoc = a

	if err := c.dev.ConfigureBSS(&device.BSSConfig{
		BSSID:   c.bss.BSSID,
		AID:     a.aid,
		Channel: device.Channel{Number: c.bss.Channel},
	}); err != nil {
		c.log.Error("configure bss failed", zap.Error(err))
		c.assoc = nil
		return c.failConnect(sme.ConnectInternalError)
	}

	c.statusID = c.sched.Schedule(c.statusCheckInterval(), TimedEvent{Kind: TimedEventAssociationStatusCheck})
	c.log.Info("associated", zap.Uint16("aid", a.aid), zap.Bool("rsn", a.rsn))
	c.reportConnectResult(sme.ConnectSuccess)
	return &associatedState{}
}

func (c *Client) statusCheckInterval() time.Duration {
	bi := uint32(c.bss.BeaconIntervalTU)
	if bi == 0 {
		bi = 100
	}
	return tuDuration(bi)
}

// teardown leaves the associated state: stop timers, drop association
// state, clear the channel and BSS programming.
func (c *Client) teardown() {
	c.cancelConnectTimer()
	c.cancelStatusTimer()
	c.assoc = nil
	c.channels.ClearMainChannel()
	if err := c.dev.ConfigureBSS(nil); err != nil {
		c.log.Warn("clear bss failed", zap.Error(err))
	}
}

// Deauthenticate handles the SME's deauthenticate request: frame on
// the wire, then local teardown.
func (c *Client) Deauthenticate(reason uint16) {
	f := &wire.Deauthentication{
		MgmtHeader: c.mgmtHeader(),
		Reason:     layers.Dot11Reason(reason),
	}
	if err := c.sendMgmt(f.Serialize()); err != nil {
		c.log.Warn("deauth frame send failed", zap.Error(err))
	}
	c.teardown()
	c.sme.Send(&sme.DeauthenticateConfirm{PeerAddr: c.bss.BSSID})
	c.setState(&idleState{})
}

// Disassociate handles the SME's disassociate request. The station
// does not keep the bare authentication alive; it tears down fully so
// a later connect starts clean.
func (c *Client) Disassociate(reason uint16) {
	f := &wire.Disassociation{
		MgmtHeader: c.mgmtHeader(),
		Reason:     layers.Dot11Reason(reason),
	}
	if err := c.sendMgmt(f.Serialize()); err != nil {
		c.log.Warn("disassoc frame send failed", zap.Error(err))
	}
	c.teardown()
	c.sme.Send(&sme.DisassociateIndication{PeerAddr: c.bss.BSSID, Reason: reason})
	c.setState(&idleState{})
}

// autoDeauthenticate is the lost-BSS exit: deauth frame with a leaving
// reason, a locally initiated indication, back to idle.
func (c *Client) autoDeauthenticate() clientState {
	reason := uint16(layers.Dot11ReasonDeauthStLeaving)
	f := &wire.Deauthentication{
		MgmtHeader: c.mgmtHeader(),
		Reason:     layers.Dot11Reason(reason),
	}
	if err := c.sendMgmt(f.Serialize()); err != nil {
		c.log.Warn("auto-deauth frame send failed", zap.Error(err))
	}
	c.metrics.AutoDeauths.Inc()
	c.teardown()
	c.sme.Send(&sme.DeauthenticateIndication{
		PeerAddr:         c.bss.BSSID,
		Reason:           reason,
		LocallyInitiated: true,
	})
	c.log.Warn("bss lost, deauthenticated locally")
	return &idleState{}
}

// SetControlledPort opens or closes the data path on an RSN
// association.
func (c *Client) SetControlledPort(state sme.ControlledPortState) {
	if c.assoc == nil {
		return
	}
	c.assoc.portOpen = state == sme.ControlledPortOpen
	c.log.Info("controlled port", zap.Bool("open", c.assoc.portOpen))
}

// SendEapol transmits one SME-supplied EAPOL frame. Oversized payloads
// are refused outright.
func (c *Client) SendEapol(req *sme.EapolRequest) {
	if len(req.Data) > wire.MaxEAPOLFrameSize || c.assoc == nil || c.channels.OffChannel() {
		c.sme.Send(&sme.EapolConfirm{Code: sme.EapolTxFailure})
		return
	}
	eth := &wire.EthernetII{
		Dst:       req.Dst,
		Src:       req.Src,
		EtherType: wire.EtherTypeEAPOL,
		Payload:   req.Data,
	}
	frame := wire.ConvertEthernet(eth, c.bss.BSSID, c.seq.Next(c.bss.BSSID), false, 0)
	if err := c.dev.SendFrame(frame, device.TxFlagFavorReliability); err != nil {
		c.log.Warn("eapol send failed", zap.Error(err))
		c.sme.Send(&sme.EapolConfirm{Code: sme.EapolTxFailure})
		return
	}
	c.metrics.FramesTx.WithLabelValues("eapol").Inc()
	c.sme.Send(&sme.EapolConfirm{Code: sme.EapolTxSuccess})
}

// HandleSaeFrameTx relays one SME-built SAE frame onto the air.
func (c *Client) HandleSaeFrameTx(req *sme.SaeFrameTx) {
	relay, ok := c.akm.(*saeRelay)
	if !ok {
		return
	}
	if err := relay.transmit(c, &req.Frame); err != nil {
		c.log.Warn("sae frame send failed", zap.Error(err))
	}
}

// HandleSaeHandshakeResponse consumes the SME's handshake verdict and
// moves the connection forward or fails it.
func (c *Client) HandleSaeHandshakeResponse(resp *sme.SaeHandshakeResponse) {
	relay, ok := c.akm.(*saeRelay)
	if !ok {
		return
	}
	if _, ok := c.state.(*authenticatingState); !ok {
		return
	}
	switch relay.finish(resp.Status) {
	case akmSuccess:
		if err := c.sendAssociationRequest(); err != nil {
			c.log.Error("association request failed", zap.Error(err))
			c.setState(c.failConnect(sme.ConnectInternalError))
			return
		}
		c.setState(&associatingState{})
	default:
		c.setState(c.failConnect(sme.ConnectAuthenticationRejected))
	}
}

// HandleDataFrame processes one data frame while associated: answer
// keep-alives, route EAPOL to the SME, bridge the rest to the netstack
// behind the controlled port.
func (c *Client) HandleDataFrame(f *wire.DataFrame) {
	if c.assoc == nil || !macEqualAddr(f.Addr2, c.bss.BSSID) && !macEqualAddr(f.Addr3, c.bss.BSSID) {
		return
	}
	if f.Subtype == layers.Dot11TypeDataNull || f.Subtype == layers.Dot11TypeDataQOSNull {
		if c.channels.OffChannel() {
			return
		}
		// Keep-alive: answer in kind.
		frame := wire.NullData(c.bss.BSSID, c.mac, c.seq.Next(c.bss.BSSID), false)
		if err := c.dev.SendFrame(frame, 0); err != nil {
			c.log.Debug("keep-alive reply failed", zap.Error(err))
		}
		return
	}
	eth, err := wire.ConvertDataFrame(f)
	if err != nil || eth == nil {
		if err != nil {
			c.metrics.FramesDropped.Inc()
		}
		return
	}
	if eth.IsEAPOL() {
		if len(eth.Payload) > wire.MaxEAPOLFrameSize {
			c.metrics.FramesDropped.Inc()
			c.log.Warn("oversized eapol frame dropped", zap.Int("len", len(eth.Payload)))
			return
		}
		c.metrics.FramesRx.WithLabelValues("eapol").Inc()
		c.sme.Send(&sme.EapolIndication{Src: eth.Src, Dst: eth.Dst, Data: eth.Payload})
		return
	}
	if !c.assoc.portOpen {
		c.metrics.FramesDropped.Inc()
		return
	}
	c.metrics.FramesRx.WithLabelValues("data").Inc()
	if err := c.dev.DeliverEthernet(eth.Serialize()); err != nil {
		c.log.Warn("ethernet delivery failed", zap.Error(err))
	}
}

// HandleEthernet transmits one outbound netstack frame, gated by the
// controlled port for protected networks.
func (c *Client) HandleEthernet(eth *wire.EthernetII) error {
	if c.assoc == nil {
		return fmt.Errorf("mlme: not associated")
	}
	if !c.assoc.portOpen && !eth.IsEAPOL() {
		return fmt.Errorf("mlme: controlled port closed")
	}
	if c.channels.OffChannel() {
		c.metrics.FramesDropped.Inc()
		return fmt.Errorf("mlme: radio parked on a scan channel")
	}
	var (
		qos bool
		tid uint8
		seq uint16
	)
	if c.assoc.qos {
		qos = true
		tid = wire.TIDFromEthernet(eth)
		seq = c.seq.NextQoS(c.bss.BSSID, tid)
		c.maybeStartBlockAck(tid, seq)
	} else {
		seq = c.seq.Next(c.bss.BSSID)
	}
	frame := wire.ConvertEthernet(eth, c.bss.BSSID, seq, qos, tid)
	var flags device.TxFlags
	if eth.IsEAPOL() {
		flags = device.TxFlagFavorReliability
	}
	if err := c.dev.SendFrame(frame, flags); err != nil {
		return err
	}
	c.metrics.FramesTx.WithLabelValues("data").Inc()
	return nil
}

// maybeStartBlockAck originates an ADDBA exchange the first time a TID
// carries traffic.
func (c *Client) maybeStartBlockAck(tid uint8, startingSeq uint16) {
	req, ok := c.assoc.blockAck.StartNegotiation(tid, startingSeq)
	if !ok {
		return
	}
	req.MgmtHeader = c.mgmtHeader()
	if err := c.sendMgmt(req.Serialize()); err != nil {
		c.log.Debug("addba request failed", zap.Error(err))
		c.assoc.blockAck.HandleTimeout(tid)
	}
}

func macEqualAddr(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
