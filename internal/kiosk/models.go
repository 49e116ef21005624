package kiosk

import "time"

// Phase is the lifecycle phase of the playback session owned by the StreamController.
type Phase string

const (
	PhaseIdle         Phase = "IDLE"
	PhaseInitializing Phase = "INITIALIZING"
	PhasePlaying      Phase = "PLAYING"
	PhaseStopped      Phase = "STOPPED"
	PhaseErrored      Phase = "ERRORED"
	PhaseEndReached   Phase = "END_REACHED"
	PhaseReleased     Phase = "RELEASED"
)

// AllPhases lists every phase, in lifecycle order.
var AllPhases = []Phase{
	PhaseIdle,
	PhaseInitializing,
	PhasePlaying,
	PhaseStopped,
	PhaseErrored,
	PhaseEndReached,
	PhaseReleased,
}

// IsTerminal reports whether the phase ends the session.
func (p Phase) IsTerminal() bool {
	return p == PhaseReleased
}

// EventType identifies the kind of a PlaybackEvent.
type EventType int

const (
	EventOpening EventType = iota + 1
	EventBuffering
	EventStopped
	EventError
	EventEndReached
)

func (t EventType) String() string {
	switch t {
	case EventOpening:
		return "opening"
	case EventBuffering:
		return "buffering"
	case EventStopped:
		return "stopped"
	case EventError:
		return "error"
	case EventEndReached:
		return "end_reached"
	default:
		return "unknown"
	}
}

// PlaybackEvent is a discrete notification emitted by the playback engine.
// Buffering carries the progress percentage; Message carries the engine's
// error text for EventError.
type PlaybackEvent struct {
	Type      EventType
	Buffering float64
	Message   string
}

// IsTerminal reports whether the event ends playback of the current media and
// therefore triggers a reconnect.
func (e PlaybackEvent) IsTerminal() bool {
	return e.Type == EventStopped || e.Type == EventEndReached
}

// Opening returns an EventOpening event.
func Opening() PlaybackEvent { return PlaybackEvent{Type: EventOpening} }

// Buffering returns an EventBuffering event with the given percentage.
func Buffering(percent float64) PlaybackEvent {
	return PlaybackEvent{Type: EventBuffering, Buffering: percent}
}

// Stopped returns an EventStopped event.
func Stopped() PlaybackEvent { return PlaybackEvent{Type: EventStopped} }

// ErrorEvent returns an EventError event carrying msg.
func ErrorEvent(msg string) PlaybackEvent { return PlaybackEvent{Type: EventError, Message: msg} }

// EndReached returns an EventEndReached event.
func EndReached() PlaybackEvent { return PlaybackEvent{Type: EventEndReached} }

// Status is a point-in-time snapshot of the StreamController.
type Status struct {
	Phase         Phase     `json:"phase"`
	SessionID     string    `json:"session_id,omitempty"`
	Endpoint      string    `json:"endpoint,omitempty"`
	Starts        int       `json:"starts"`
	Reconnects    int       `json:"reconnects"`
	LastEvent     string    `json:"last_event,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	DroppedEvents uint64    `json:"dropped_events"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IdleTimerState is a snapshot of the IdleTimerCoordinator.
type IdleTimerState struct {
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Attached  bool      `json:"attached"`
}
