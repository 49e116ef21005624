package kiosk

import (
	"log/slog"
	"sync"
	"time"

	"rtsp-kiosk/internal/platform/metrics"
)

// TimerDisplay renders elapsed time since a reference instant.
type TimerDisplay interface {
	// Restart begins (or resumes) showing time elapsed since start.
	Restart(start time.Time)
	// Stop halts updates.
	Stop()
}

// IdleTimerCoordinator owns the single idle clock shown over the stream.
// Each Restart yields a reference instant strictly later than the previous one,
// even if the clock does not advance between calls.
type IdleTimerCoordinator struct {
	clock   Clock
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	display TimerDisplay
	running bool
	start   time.Time
}

// NewIdleTimerCoordinator returns a coordinator reading time from clock
// (RealClock when nil). Metrics may be nil.
func NewIdleTimerCoordinator(clock Clock, log *slog.Logger, m *metrics.Metrics) *IdleTimerCoordinator {
	if clock == nil {
		clock = RealClock{}
	}
	return &IdleTimerCoordinator{clock: clock, log: log, metrics: m}
}

// Attach binds the display. If the timer is running, the previous display is
// stopped and d continues from the same reference instant.
func (c *IdleTimerCoordinator) Attach(d TimerDisplay) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasRunning := c.running
	if wasRunning && c.display != nil {
		c.display.Stop()
	}
	c.display = d
	c.running = false
	if d != nil && wasRunning {
		d.Restart(c.start)
		c.running = true
	}
	c.log.Debug("idle timer display attached")
}

// Restart records a new reference instant and restarts the display from it.
// Without a display only the instant is recorded.
func (c *IdleTimerCoordinator) Restart() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if !c.start.IsZero() && !now.After(c.start) {
		now = c.start.Add(time.Nanosecond)
	}
	c.start = now

	if c.metrics != nil {
		c.metrics.IncIdleRestarts()
	}

	if c.display == nil {
		c.log.Warn("idle timer restart without display", slog.Time("start", now))
		return now
	}
	c.display.Restart(now)
	c.running = true
	return now
}

// Stop halts the display and detaches it.
func (c *IdleTimerCoordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.display != nil {
		c.display.Stop()
	}
	c.display = nil
	c.running = false
	c.log.Debug("idle timer stopped")
}

// Snapshot returns the current state.
func (c *IdleTimerCoordinator) Snapshot() IdleTimerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return IdleTimerState{
		Running:   c.running,
		StartedAt: c.start,
		Attached:  c.display != nil,
	}
}
