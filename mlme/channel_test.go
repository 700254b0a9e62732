package mlme

import (
	"testing"

	"github.com/google/gopacket/layers"
	"go.uber.org/zap"

	"github.com/boxwifi/mlme/device"
	"github.com/boxwifi/mlme/device/devicetest"
	"github.com/boxwifi/mlme/wire"
)

func newTestChannelState(t *testing.T) (*ChannelState, *devicetest.Fake, *fakeScheduler) {
	t.Helper()
	dev := devicetest.New()
	sched := &fakeScheduler{}
	return NewChannelState(dev, sched, zap.NewNop()), dev, sched
}

func TestScanExcursionRestoresMainChannel(t *testing.T) {
	cs, dev, _ := newTestChannelState(t)
	if err := cs.SetMainChannel(device.Channel{Number: 36, Width: device.ChannelWidth40}); err != nil {
		t.Fatalf("set main channel: %v", err)
	}

	cs.PreSwitchOffChannel()
	if !cs.OffChannel() {
		t.Fatal("not marked off-channel")
	}
	if err := cs.ScanChannel(device.Channel{Number: 1}); err != nil {
		t.Fatalf("scan channel: %v", err)
	}
	if err := cs.HandleBackOnChannel(); err != nil {
		t.Fatalf("back on channel: %v", err)
	}
	if cs.OffChannel() {
		t.Error("still marked off-channel")
	}

	want := []uint8{36, 1, 36}
	if len(dev.Channels) != len(want) {
		t.Fatalf("channel changes = %v, want %v", dev.Channels, want)
	}
	for i, ch := range dev.Channels {
		if ch.Number != want[i] {
			t.Errorf("change %d tuned to %d, want %d", i, ch.Number, want[i])
		}
	}
	if dev.Channels[2].Width != device.ChannelWidth40 {
		t.Errorf("restore lost the channel width: %v", dev.Channels[2])
	}
}

func TestBackOnChannelWithoutMainIsNoop(t *testing.T) {
	cs, dev, _ := newTestChannelState(t)
	cs.PreSwitchOffChannel()
	if err := cs.ScanChannel(device.Channel{Number: 6}); err != nil {
		t.Fatalf("scan channel: %v", err)
	}
	if err := cs.HandleBackOnChannel(); err != nil {
		t.Fatalf("back on channel: %v", err)
	}
	if len(dev.Channels) != 1 {
		t.Errorf("channel changes = %v, want only the excursion", dev.Channels)
	}
}

func TestAnnouncedChannelSwitch(t *testing.T) {
	cs, dev, sched := newTestChannelState(t)
	cs.SetMainChannel(device.Channel{Number: 36, Width: device.ChannelWidth40})

	cs.ScheduleChannelSwitch(&wire.ChannelSwitch{Mode: 1, NewChannel: 40, Count: 5}, 100)
	ev, ok := sched.lastOfKind(TimedEventChannelSwitch)
	if !ok {
		t.Fatal("no channel switch timer armed")
	}
	if want := tuDuration(100 * 5); ev.d != want {
		t.Errorf("switch delay = %v, want %v", ev.d, want)
	}

	if err := cs.HandleChannelSwitchTimeout(ev.id); err != nil {
		t.Fatalf("channel switch: %v", err)
	}
	main, ok := cs.MainChannel()
	if !ok || main.Number != 40 || main.Width != device.ChannelWidth40 {
		t.Errorf("main channel = %v, want 40 at the old width", main)
	}
	last := dev.Channels[len(dev.Channels)-1]
	if last.Number != 40 {
		t.Errorf("radio tuned to %d, want 40", last.Number)
	}
}

func TestChannelSwitchStaleTimerIgnored(t *testing.T) {
	cs, dev, sched := newTestChannelState(t)
	cs.SetMainChannel(device.Channel{Number: 36})

	cs.ScheduleChannelSwitch(&wire.ChannelSwitch{NewChannel: 40, Count: 1}, 100)
	first, _ := sched.lastOfKind(TimedEventChannelSwitch)

	// A newer announcement supersedes the first.
	cs.ScheduleChannelSwitch(&wire.ChannelSwitch{NewChannel: 44, Count: 1}, 100)
	if err := cs.HandleChannelSwitchTimeout(first.id); err != nil {
		t.Fatalf("stale switch: %v", err)
	}
	if main, _ := cs.MainChannel(); main.Number != 36 {
		t.Errorf("stale timer moved the channel to %d", main.Number)
	}

	second, _ := sched.lastOfKind(TimedEventChannelSwitch)
	if err := cs.HandleChannelSwitchTimeout(second.id); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if main, _ := cs.MainChannel(); main.Number != 44 {
		t.Errorf("channel = %d after valid switch, want 44", main.Number)
	}
	if got := dev.Channels[len(dev.Channels)-1].Number; got != 44 {
		t.Errorf("radio on %d, want 44", got)
	}
}

func TestReconnectSupersedesAnnouncedSwitch(t *testing.T) {
	cs, _, sched := newTestChannelState(t)
	cs.SetMainChannel(device.Channel{Number: 36})
	cs.ScheduleChannelSwitch(&wire.ChannelSwitch{NewChannel: 40, Count: 1}, 100)
	ev, _ := sched.lastOfKind(TimedEventChannelSwitch)

	cs.SetMainChannel(device.Channel{Number: 6})

	if err := cs.HandleChannelSwitchTimeout(ev.id); err != nil {
		t.Fatalf("stale switch: %v", err)
	}
	if main, _ := cs.MainChannel(); main.Number != 6 {
		t.Errorf("channel = %d, want the freshly set 6", main.Number)
	}
}

func TestBeaconWithCSASchedulesSwitch(t *testing.T) {
	m, dev, sched, _ := newTestMLME(t, Config{})
	connect(t, m, dev, 42, nil)

	beacon := apBeacon(t, wire.ElementList{
		{ID: layers.Dot11InformationElementIDSSID, Data: []byte("backhaul")},
		{ID: layers.Dot11InformationElementIDSwitchChannelAnnounce, Data: []byte{1, 11, 3}},
	})
	m.HandleFrame(beacon, rxOnChannel(6))

	ev, ok := sched.lastOfKind(TimedEventChannelSwitch)
	if !ok {
		t.Fatal("CSA beacon armed no switch timer")
	}
	m.HandleTimeout(ev.id, ev.ev)

	if main, _ := m.channels.MainChannel(); main.Number != 11 {
		t.Errorf("channel = %d after CSA, want 11", main.Number)
	}
	if got := dev.Channels[len(dev.Channels)-1].Number; got != 11 {
		t.Errorf("radio on %d, want 11", got)
	}
}
