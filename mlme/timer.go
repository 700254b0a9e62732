package mlme

import "time"

// EventID identifies one armed timer. IDs are monotonic and never
// reused, so a state transition can invalidate a pending timer simply
// by forgetting its ID: when the stale timer fires, the comparison
// against the currently expected ID fails and the firing is dropped.
type EventID uint64

// NoEvent is the zero EventID; no armed timer ever carries it.
const NoEvent EventID = 0

// TimedEventKind says why a timer was armed.
type TimedEventKind uint8

const (
	TimedEventConnecting TimedEventKind = iota
	TimedEventReassociating
	TimedEventAssociationStatusCheck
	TimedEventChannelSwitch
	TimedEventScanDwell
)

func (k TimedEventKind) String() string {
	switch k {
	case TimedEventConnecting:
		return "connecting"
	case TimedEventReassociating:
		return "reassociating"
	case TimedEventAssociationStatusCheck:
		return "association-status-check"
	case TimedEventChannelSwitch:
		return "channel-switch"
	case TimedEventScanDwell:
		return "scan-dwell"
	default:
		return "unknown"
	}
}

// TimedEvent is handed back to the facade when a timer fires.
type TimedEvent struct {
	Kind TimedEventKind
}

// Scheduler arms timers for the MLME. The returned EventID must be
// delivered together with the TimedEvent when the timer fires.
// Implementations deliver firings into the same event loop that calls
// every other MLME handler; they never invoke the MLME directly.
type Scheduler interface {
	Schedule(d time.Duration, ev TimedEvent) EventID
	Cancel(id EventID)
}

// tuDuration converts 802.11 time units (1024 microseconds) into a
// time.Duration.
func tuDuration(tu uint32) time.Duration {
	return time.Duration(tu) * 1024 * time.Microsecond
}
