package mlme

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"github.com/boxwifi/mlme/device"
	"github.com/boxwifi/mlme/sme"
	"github.com/boxwifi/mlme/wire"
)

// clientState is one phase of the connection. Handlers receive the
// owning Client, mutate it, and return the next state value; the
// caller swaps it in. A handler never holds a state across the call.
type clientState interface {
	fmt.Stringer
	handleMgmt(c *Client, f *wire.MgmtFrame, info device.RxInfo) clientState
	handleTimeout(c *Client, ev TimedEvent, id EventID) clientState
}

// idleState has no connection. Everything but a connect request is
// noise here.
type idleState struct{}

func (s *idleState) String() string { return "idle" }

func (s *idleState) handleMgmt(c *Client, f *wire.MgmtFrame, info device.RxInfo) clientState {
	return s
}

func (s *idleState) handleTimeout(c *Client, ev TimedEvent, id EventID) clientState {
	return s
}

// authenticatingState awaits the authentication exchange's completion,
// driven by the AKM algorithm.
type authenticatingState struct{}

func (s *authenticatingState) String() string { return "authenticating" }

func (s *authenticatingState) handleMgmt(c *Client, f *wire.MgmtFrame, info device.RxInfo) clientState {
	switch f.Subtype {
	case layers.Dot11TypeMgmtAuthentication:
		body, err := wire.ParseAuthentication(f)
		if err != nil {
			c.metrics.FramesDropped.Inc()
			c.log.Debug("malformed auth frame", zap.Error(err))
			return s
		}
		switch c.akm.handleAuthFrame(c, body) {
		case akmSuccess:
			if err := c.sendAssociationRequest(); err != nil {
				c.log.Error("association request failed", zap.Error(err))
				return c.failConnect(sme.ConnectInternalError)
			}
			return &associatingState{}
		case akmFailure:
			c.log.Info("authentication rejected",
				zap.Uint16("status", uint16(body.Status)))
			return c.failConnect(sme.ConnectAuthenticationRejected)
		default:
			return s
		}
	case layers.Dot11TypeMgmtDeauthentication:
		reason, _ := wire.ParseReason(f)
		c.log.Info("deauthenticated during authentication", zap.Uint16("reason", uint16(reason)))
		return c.failConnect(sme.ConnectAuthenticationRejected)
	default:
		return s
	}
}

func (s *authenticatingState) handleTimeout(c *Client, ev TimedEvent, id EventID) clientState {
	if ev.Kind != TimedEventConnecting || id != c.connectID {
		return s
	}
	c.connectID = NoEvent
	c.log.Info("authentication timed out")
	return c.failConnect(sme.ConnectAuthenticationTimeout)
}

// associatingState awaits the association response.
type associatingState struct{}

func (s *associatingState) String() string { return "associating" }

func (s *associatingState) handleMgmt(c *Client, f *wire.MgmtFrame, info device.RxInfo) clientState {
	switch f.Subtype {
	case layers.Dot11TypeMgmtAssociationResp, layers.Dot11TypeMgmtReassociationResp:
		resp, err := wire.ParseAssociationResponse(f)
		if err != nil {
			c.metrics.FramesDropped.Inc()
			c.log.Debug("malformed association response", zap.Error(err))
			return s
		}
		if resp.Status != layers.Dot11StatusSuccess {
			c.log.Info("association rejected", zap.Uint16("status", uint16(resp.Status)))
			return c.failConnect(sme.ConnectAssociationRejected)
		}
		return c.completeAssociation(resp, f.Body[6:])
	case layers.Dot11TypeMgmtDeauthentication:
		reason, _ := wire.ParseReason(f)
		c.log.Info("deauthenticated during association", zap.Uint16("reason", uint16(reason)))
		return c.failConnect(sme.ConnectAssociationRejected)
	default:
		return s
	}
}

func (s *associatingState) handleTimeout(c *Client, ev TimedEvent, id EventID) clientState {
	if ev.Kind != TimedEventConnecting || id != c.connectID {
		return s
	}
	c.connectID = NoEvent
	c.log.Info("association timed out")
	return c.failConnect(sme.ConnectAssociationTimeout)
}

// associatedState is steady state: beacons feed the lost-BSS counter,
// the AP's management traffic is answered or forwarded, and the status
// check tick drives loss detection and signal reports.
type associatedState struct{}

func (s *associatedState) String() string { return "associated" }

func (s *associatedState) handleMgmt(c *Client, f *wire.MgmtFrame, info device.RxInfo) clientState {
	switch f.Subtype {
	case layers.Dot11TypeMgmtBeacon:
		return s.handleBeacon(c, f, info)
	case layers.Dot11TypeMgmtDeauthentication:
		reason, err := wire.ParseReason(f)
		if err != nil {
			c.metrics.FramesDropped.Inc()
			return s
		}
		c.log.Info("deauthenticated by ap", zap.Uint16("reason", uint16(reason)))
		c.teardown()
		c.sme.Send(&sme.DeauthenticateIndication{
			PeerAddr: c.bss.BSSID,
			Reason:   uint16(reason),
		})
		return &idleState{}
	case layers.Dot11TypeMgmtDisassociation:
		reason, err := wire.ParseReason(f)
		if err != nil {
			c.metrics.FramesDropped.Inc()
			return s
		}
		c.log.Info("disassociated by ap, attempting fast reconnect",
			zap.Uint16("reason", uint16(reason)))
		c.sme.Send(&sme.DisassociateIndication{PeerAddr: c.bss.BSSID, Reason: uint16(reason)})
		// Still authenticated: one immediate re-association attempt.
		c.cancelStatusTimer()
		c.assoc = nil
		if err := c.sendAssociationRequest(); err != nil {
			c.log.Error("reassociation request failed", zap.Error(err))
			return c.giveUpReassociation()
		}
		c.connectID = c.sched.Schedule(c.connectTimeout, TimedEvent{Kind: TimedEventReassociating})
		return &reassociatingState{}
	case layers.Dot11TypeMgmtAction:
		s.handleAction(c, f)
		return s
	default:
		return s
	}
}

func (s *associatedState) handleBeacon(c *Client, f *wire.MgmtFrame, info device.RxInfo) clientState {
	beacon, err := wire.ParseBeacon(f)
	if err != nil {
		c.metrics.FramesDropped.Inc()
		return s
	}
	if c.assoc != nil {
		c.assoc.lostBSS.Reset()
		c.assoc.signal.add(info.RSSIDBm)
	}
	if csa, ok := beacon.Elements.ChannelSwitch(); ok {
		c.channels.ScheduleChannelSwitch(csa, beacon.BeaconIntervalTU)
	}
	return s
}

func (s *associatedState) handleAction(c *Client, f *wire.MgmtFrame) {
	action, err := wire.ParseAction(f)
	if err != nil || action.Category != wire.CategoryBlockAck {
		return
	}
	switch action.Action {
	case wire.ActionADDBAResponse:
		resp, err := wire.ParseADDBAResponse(action)
		if err != nil {
			c.metrics.FramesDropped.Inc()
			return
		}
		state := c.assoc.blockAck.HandleResponse(resp)
		c.log.Info("block-ack response",
			zap.Uint8("tid", resp.TID),
			zap.Stringer("state", state))
	case wire.ActionADDBARequest:
		req, err := wire.ParseADDBARequest(action)
		if err != nil {
			c.metrics.FramesDropped.Inc()
			return
		}
		// Accept AP-originated sessions as offered; reordering is the
		// data plane's problem.
		resp := &wire.ADDBAResponse{
			MgmtHeader:  c.mgmtHeader(),
			DialogToken: req.DialogToken,
			Status:      layers.Dot11StatusSuccess,
			AMSDU:       req.AMSDU,
			ImmediateBA: req.ImmediateBA,
			TID:         req.TID,
			BufferSize:  req.BufferSize,
			TimeoutTU:   req.TimeoutTU,
		}
		if err := c.sendMgmt(resp.Serialize()); err != nil {
			c.log.Debug("addba response failed", zap.Error(err))
		}
	}
}

func (s *associatedState) handleTimeout(c *Client, ev TimedEvent, id EventID) clientState {
	if ev.Kind != TimedEventAssociationStatusCheck || id != c.statusID || c.assoc == nil {
		return s
	}
	if c.assoc.lostBSS.Advance() {
		c.statusID = NoEvent
		return c.autoDeauthenticate()
	}
	c.assoc.ticks++
	if c.cfg.SignalReportTicks > 0 && c.assoc.ticks%c.cfg.SignalReportTicks == 0 && c.assoc.signal.set {
		c.sme.Send(&sme.SignalReportIndication{RSSIDBm: c.assoc.signal.value()})
	}
	c.statusID = c.sched.Schedule(c.statusCheckInterval(), TimedEvent{Kind: TimedEventAssociationStatusCheck})
	return s
}

// reassociatingState is the one fast reconnect attempt after an
// unsolicited disassociation.
type reassociatingState struct{}

func (s *reassociatingState) String() string { return "reassociating" }

func (s *reassociatingState) handleMgmt(c *Client, f *wire.MgmtFrame, info device.RxInfo) clientState {
	switch f.Subtype {
	case layers.Dot11TypeMgmtAssociationResp, layers.Dot11TypeMgmtReassociationResp:
		resp, err := wire.ParseAssociationResponse(f)
		if err != nil {
			c.metrics.FramesDropped.Inc()
			return s
		}
		if resp.Status != layers.Dot11StatusSuccess {
			c.log.Info("reassociation rejected", zap.Uint16("status", uint16(resp.Status)))
			return c.giveUpReassociation()
		}
		return c.completeAssociation(resp, f.Body[6:])
	case layers.Dot11TypeMgmtDeauthentication:
		reason, _ := wire.ParseReason(f)
		c.log.Info("deauthenticated during reassociation", zap.Uint16("reason", uint16(reason)))
		return c.giveUpReassociation()
	default:
		return s
	}
}

func (s *reassociatingState) handleTimeout(c *Client, ev TimedEvent, id EventID) clientState {
	if ev.Kind != TimedEventReassociating || id != c.connectID {
		return s
	}
	c.connectID = NoEvent
	c.log.Info("reassociation timed out")
	return c.giveUpReassociation()
}

// giveUpReassociation abandons the fast reconnect and reports the
// association as fully gone.
func (c *Client) giveUpReassociation() clientState {
	c.teardown()
	c.sme.Send(&sme.DeauthenticateIndication{
		PeerAddr:         c.bss.BSSID,
		Reason:           uint16(layers.Dot11ReasonDeauthStLeaving),
		LocallyInitiated: true,
	})
	return &idleState{}
}
