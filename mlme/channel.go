package mlme

import (
	"go.uber.org/zap"

	"github.com/boxwifi/mlme/device"
	"github.com/boxwifi/mlme/wire"
)

// ChannelState is the single authoritative record of the radio's
// operating channel. Only it talks to the driver about channels: the
// connection machine sets and clears the main channel, the scanner
// brackets its excursions with the off-channel hooks, and announced
// channel switches run through the ChannelSwitch timer path.
type ChannelState struct {
	dev   device.Device
	sched Scheduler
	log   *zap.Logger

	main       *device.Channel
	offChannel bool

	switchTarget device.Channel
	switchID     EventID
}

func NewChannelState(dev device.Device, sched Scheduler, log *zap.Logger) *ChannelState {
	return &ChannelState{dev: dev, sched: sched, log: log}
}

// SetMainChannel programs the driver and records the association
// channel. Any pending announced switch is superseded.
func (s *ChannelState) SetMainChannel(ch device.Channel) error {
	if err := s.dev.SetChannel(ch); err != nil {
		return err
	}
	s.main = &ch
	s.offChannel = false
	s.switchID = NoEvent
	s.log.Debug("main channel set", zap.Uint8("channel", ch.Number))
	return nil
}

// ClearMainChannel forgets the association channel so a later connect
// cannot observe a stale one. Called on deauthentication.
func (s *ChannelState) ClearMainChannel() {
	s.main = nil
	s.switchID = NoEvent
}

// MainChannel reports the association channel, if one is set.
func (s *ChannelState) MainChannel() (device.Channel, bool) {
	if s.main == nil {
		return device.Channel{}, false
	}
	return *s.main, true
}

// OffChannel reports whether the radio is parked away from the main
// channel for a scan excursion.
func (s *ChannelState) OffChannel() bool { return s.offChannel }

// PreSwitchOffChannel marks the start of a scan excursion. The scanner
// then tunes wherever it needs to via ScanChannel.
func (s *ChannelState) PreSwitchOffChannel() {
	s.offChannel = true
}

// ScanChannel tunes the radio for one scan dwell. Valid only between
// PreSwitchOffChannel and HandleBackOnChannel.
func (s *ChannelState) ScanChannel(ch device.Channel) error {
	return s.dev.SetChannel(ch)
}

// HandleBackOnChannel ends a scan excursion, retuning to the main
// channel when one is set.
func (s *ChannelState) HandleBackOnChannel() error {
	s.offChannel = false
	if s.main == nil {
		return nil
	}
	return s.dev.SetChannel(*s.main)
}

// ScheduleChannelSwitch arms the switch announced by the AP: after
// Count more beacon intervals the radio moves to the new channel.
func (s *ChannelState) ScheduleChannelSwitch(csa *wire.ChannelSwitch, beaconIntervalTU uint16) {
	target := device.Channel{Number: csa.NewChannel}
	if s.main != nil {
		target.Width = s.main.Width
	}
	delay := tuDuration(uint32(beaconIntervalTU) * uint32(csa.Count))
	s.switchTarget = target
	s.switchID = s.sched.Schedule(delay, TimedEvent{Kind: TimedEventChannelSwitch})
	s.log.Info("channel switch announced",
		zap.Uint8("new_channel", csa.NewChannel),
		zap.Uint8("count", csa.Count))
}

// HandleChannelSwitchTimeout executes a scheduled switch. Stale
// firings, identified by an ID that no longer matches, are ignored.
func (s *ChannelState) HandleChannelSwitchTimeout(id EventID) error {
	if id != s.switchID || s.switchID == NoEvent {
		return nil
	}
	s.switchID = NoEvent
	return s.SetMainChannel(s.switchTarget)
}
