package kiosk

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"rtsp-kiosk/internal/platform/metrics"
)

// HostSignal is a lifecycle transition of the view hosting the stream.
type HostSignal string

const (
	SignalCreated   HostSignal = "created"
	SignalActive    HostSignal = "active"
	SignalInactive  HostSignal = "inactive"
	SignalDestroyed HostSignal = "destroyed"
)

// ParseHostSignal accepts the signal names case-insensitively.
func ParseHostSignal(s string) (HostSignal, error) {
	switch sig := HostSignal(strings.ToLower(strings.TrimSpace(s))); sig {
	case SignalCreated, SignalActive, SignalInactive, SignalDestroyed:
		return sig, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSignal, s)
	}
}

// StreamLifecycle is the part of StreamController the binder drives.
type StreamLifecycle interface {
	Initialize(ep StreamEndpoint) error
	Start() error
	Teardown()
	Active() bool
}

// IdleTimer is the part of IdleTimerCoordinator the binder drives.
type IdleTimer interface {
	Attach(d TimerDisplay)
	Restart() time.Time
	Stop()
}

// LifecycleBinder maps host lifecycle signals and pointer input onto the
// stream controller and idle timer. Signals are applied one at a time.
type LifecycleBinder struct {
	stream   StreamLifecycle
	timer    IdleTimer
	display  TimerDisplay
	endpoint StreamEndpoint
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu sync.Mutex
}

// NewLifecycleBinder returns a binder that plays endpoint on view-active and
// attaches display to timer on view-created. Metrics may be nil.
func NewLifecycleBinder(stream StreamLifecycle, timer IdleTimer, display TimerDisplay, endpoint StreamEndpoint, log *slog.Logger, m *metrics.Metrics) *LifecycleBinder {
	return &LifecycleBinder{
		stream:   stream,
		timer:    timer,
		display:  display,
		endpoint: endpoint,
		log:      log,
		metrics:  m,
	}
}

// Dispatch routes sig to its handler.
func (b *LifecycleBinder) Dispatch(sig HostSignal) error {
	switch sig {
	case SignalCreated:
		b.OnCreated()
	case SignalActive:
		return b.OnActive()
	case SignalInactive:
		b.OnInactive()
	case SignalDestroyed:
		b.OnDestroyed()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSignal, string(sig))
	}
	return nil
}

// OnCreated attaches the overlay display to the idle timer.
func (b *LifecycleBinder) OnCreated() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count(SignalCreated)
	b.timer.Attach(b.display)
	b.log.Info("view created")
}

// OnActive brings up a fresh session and starts playback. A live session is
// torn down first, so each activation yields exactly one Initialize and one
// Start. An *EngineInitError is logged and returned; it is not retried here.
func (b *LifecycleBinder) OnActive() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count(SignalActive)
	if b.stream.Active() {
		b.log.Info("view active with live session, tearing down first")
		b.stream.Teardown()
	}

	if err := b.stream.Initialize(b.endpoint); err != nil {
		var initErr *EngineInitError
		if errors.As(err, &initErr) {
			if b.metrics != nil {
				b.metrics.IncEngineInitErrors()
			}
			b.log.Error("engine init failed",
				slog.String("stage", string(initErr.Stage)),
				slog.String("error", initErr.Err.Error()))
		} else {
			b.log.Error("initialize failed", slog.String("error", err.Error()))
		}
		return err
	}
	if err := b.stream.Start(); err != nil {
		b.log.Error("start failed", slog.String("error", err.Error()))
		return err
	}
	b.log.Info("view active, stream started", slog.String("endpoint", b.endpoint.Redacted()))
	return nil
}

// OnInactive releases the stream.
func (b *LifecycleBinder) OnInactive() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count(SignalInactive)
	b.stream.Teardown()
	b.log.Info("view inactive, stream released")
}

// OnDestroyed releases the stream and stops the idle timer.
func (b *LifecycleBinder) OnDestroyed() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count(SignalDestroyed)
	b.stream.Teardown()
	b.timer.Stop()
	b.log.Info("view destroyed")
}

// OnPointerUp restarts the idle timer. It returns false: the input is
// never consumed and keeps propagating to the host.
func (b *LifecycleBinder) OnPointerUp() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := b.timer.Restart()
	b.log.Debug("pointer up, idle timer restarted", slog.Time("start", start))
	return false
}

func (b *LifecycleBinder) count(sig HostSignal) {
	if b.metrics != nil {
		b.metrics.IncHostSignals(string(sig))
	}
}
