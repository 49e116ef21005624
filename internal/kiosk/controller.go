package kiosk

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"rtsp-kiosk/internal/platform/metrics"

	"github.com/google/uuid"
)

// DefaultEventQueueSize bounds the engine event queue when the config leaves it unset.
const DefaultEventQueueSize = 64

// Reconnect reasons, used as the metrics label.
const (
	reasonStopped    = "stopped"
	reasonEndReached = "end_reached"
	reasonWatchdog   = "error_watchdog"
)

var phaseNames = func() []string {
	names := make([]string, len(AllPhases))
	for i, p := range AllPhases {
		names[i] = string(p)
	}
	return names
}()

// Notifier receives a status snapshot after every controller state change.
// Notify is called with the controller lock held and must not block.
type Notifier interface {
	Notify(st Status)
}

// ControllerConfig configures a StreamController.
type ControllerConfig struct {
	Surface       Surface
	EngineOptions EngineOptions
	RTSPTimeout   time.Duration

	// EventQueueSize bounds the engine event queue; <= 0 means DefaultEventQueueSize.
	EventQueueSize int

	Reconnect ReconnectPolicy

	// ErrorReconnectGrace arms a one-shot reconnect after an Error event that
	// is not followed by Opening, Stopped or EndReached. Zero disables it.
	ErrorReconnectGrace time.Duration

	// Clock stamps status updates; RealClock when nil.
	Clock Clock

	// History, when set, receives one record per session.
	History *SessionHistory
}

type session struct {
	id       string
	gen      uint64
	endpoint StreamEndpoint
	runtime  Runtime
	player   Player
	media    Media
}

type queuedEvent struct {
	gen uint64
	ev  PlaybackEvent
}

// StreamController owns the single playback session and keeps it playing:
// every Stopped or EndReached event re-issues a start on the same player.
//
// All session state is guarded by one mutex. Engine events are queued by a
// non-blocking listener and applied in order by a dispatcher goroutine, so
// engine callbacks never re-enter the controller. Each session carries a
// generation; events and delayed reconnects from an older generation are
// discarded.
type StreamController struct {
	engine  Engine
	cfg     ControllerConfig
	log     *slog.Logger
	metrics *metrics.Metrics

	events  chan queuedEvent
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	// Terminal events that did not fit in the queue. They are never dropped.
	pendMu  sync.Mutex
	pending []queuedEvent
	wake    chan struct{}

	mu             sync.Mutex
	notifier       Notifier
	closed         bool
	gen            uint64
	sess           *session
	phase          Phase
	starts         int
	reconnects     int
	consecutive    int
	lastEvent      string
	lastError      string
	updatedAt      time.Time
	reconnectTimer *time.Timer
	watchdog       *time.Timer
}

// NewStreamController returns a controller driving engine and starts its
// event dispatcher. Metrics may be nil. Call Close to stop the dispatcher.
func NewStreamController(engine Engine, cfg ControllerConfig, log *slog.Logger, m *metrics.Metrics) *StreamController {
	if cfg.EventQueueSize <= 0 {
		cfg.EventQueueSize = DefaultEventQueueSize
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	c := &StreamController{
		engine:  engine,
		cfg:     cfg,
		log:     log,
		metrics: m,
		events:  make(chan queuedEvent, cfg.EventQueueSize),
		done:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
		phase:   PhaseIdle,
	}
	c.updatedAt = cfg.Clock.Now()
	if m != nil {
		m.SetPhase(string(PhaseIdle), phaseNames)
	}

	c.wg.Add(1)
	go c.run()
	return c
}

// SetNotifier installs n as the status change observer.
func (c *StreamController) SetNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

// Initialize creates the engine runtime and player for ep, attaches the
// player to the surface with fit-to-screen scaling, and registers the event
// listener. Nothing is played until Start.
func (c *StreamController) Initialize(ep StreamEndpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrControllerClosed
	}
	if c.sess != nil {
		return ErrSessionActive
	}

	c.log.Info("initializing engine",
		slog.String("endpoint", ep.Redacted()),
		slog.Any("engine_args", c.cfg.EngineOptions.Args()))

	rt, err := c.engine.NewRuntime(c.cfg.EngineOptions)
	if err != nil {
		return &EngineInitError{Stage: StageRuntime, Err: err}
	}
	p, err := rt.NewPlayer()
	if err != nil {
		rt.Release()
		return &EngineInitError{Stage: StagePlayer, Err: err}
	}
	if err := p.AttachOutput(c.cfg.Surface); err != nil {
		p.Release()
		rt.Release()
		return &EngineInitError{Stage: StageSurface, Err: err}
	}
	p.SetScaleMode(ScaleFitScreen)

	c.gen++
	p.SetEventListener(c.listener(c.gen))

	c.sess = &session{
		id:       uuid.NewString(),
		gen:      c.gen,
		endpoint: ep,
		runtime:  rt,
		player:   p,
	}
	c.starts = 0
	c.reconnects = 0
	c.consecutive = 0
	c.lastEvent = ""
	c.lastError = ""
	c.setPhaseLocked(PhaseIdle)

	if c.cfg.History != nil {
		c.cfg.History.Open(c.sess.id, ep.Redacted(), c.cfg.Clock.Now())
	}
	if c.metrics != nil {
		c.metrics.SetSessionActive(true)
	}
	c.log.Info("playback session created", slog.String("session_id", c.sess.id))
	c.notifyLocked()
	return nil
}

// Start feeds the player a fresh media descriptor and asks it to play.
// It does not wait for playback; progress arrives as events.
func (c *StreamController) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.sess == nil {
		c.log.Warn("start ignored: no playback session")
		return ErrNoSession
	}
	c.stopReconnectTimerLocked()
	c.startLocked(false)
	c.notifyLocked()
	return nil
}

// Teardown invalidates the session and releases every engine handle.
// It is a no-op when no session is live.
func (c *StreamController) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

// Close tears down any session and stops the dispatcher. Afterwards
// Initialize returns ErrControllerClosed. Close is idempotent.
func (c *StreamController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
}

// Active reports whether a session is live.
func (c *StreamController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Status returns a snapshot of the controller.
func (c *StreamController) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// listener returns the engine callback for session generation gen.
// It only enqueues. When the queue is full, Stopped and EndReached are set
// aside for the dispatcher; any other event is dropped.
func (c *StreamController) listener(gen uint64) EventListener {
	return func(ev PlaybackEvent) {
		qe := queuedEvent{gen: gen, ev: ev}
		select {
		case c.events <- qe:
			return
		default:
		}

		if ev.IsTerminal() {
			c.pendMu.Lock()
			c.pending = append(c.pending, qe)
			c.pendMu.Unlock()
			select {
			case c.wake <- struct{}{}:
			default:
			}
			c.log.Warn("engine event deferred: queue full",
				slog.String("event", ev.Type.String()))
			return
		}

		n := c.dropped.Add(1)
		if c.metrics != nil {
			c.metrics.IncEventsDropped()
		}
		c.log.Warn("engine event dropped: queue full",
			slog.String("event", ev.Type.String()),
			slog.Uint64("dropped_total", n))
	}
}

func (c *StreamController) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case qe := <-c.events:
			c.handleEvent(qe)
		case <-c.wake:
			c.drainDeferred()
		}
	}
}

// drainDeferred applies the events already queued, then the terminal events
// that overflowed behind them.
func (c *StreamController) drainDeferred() {
queued:
	for {
		select {
		case qe := <-c.events:
			c.handleEvent(qe)
		default:
			break queued
		}
	}

	c.pendMu.Lock()
	pending := c.pending
	c.pending = nil
	c.pendMu.Unlock()

	for _, qe := range pending {
		c.handleEvent(qe)
	}
}

func (c *StreamController) handleEvent(qe queuedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev := qe.ev
	if c.closed || c.sess == nil || qe.gen != c.gen {
		if c.metrics != nil {
			c.metrics.IncEventsStale()
		}
		c.log.Debug("stale engine event discarded",
			slog.String("event", ev.Type.String()),
			slog.Uint64("generation", qe.gen))
		return
	}

	c.lastEvent = ev.Type.String()
	if c.metrics != nil {
		c.metrics.IncPlaybackEvent(ev.Type.String())
	}

	switch ev.Type {
	case EventOpening:
		c.stopWatchdogLocked()
		c.setPhaseLocked(PhasePlaying)
		c.log.Info("stream opening", slog.String("session_id", c.sess.id))

	case EventBuffering:
		if ev.Buffering >= 100 {
			c.consecutive = 0
		}
		c.log.Debug("stream buffering", slog.Float64("percent", ev.Buffering))

	case EventStopped:
		c.stopWatchdogLocked()
		c.setPhaseLocked(PhaseStopped)
		c.log.Info("stream stopped, reconnecting", slog.String("session_id", c.sess.id))
		c.reconnectLocked(reasonStopped)

	case EventEndReached:
		c.stopWatchdogLocked()
		c.setPhaseLocked(PhaseEndReached)
		c.log.Info("end of stream reached, reconnecting", slog.String("session_id", c.sess.id))
		c.reconnectLocked(reasonEndReached)

	case EventError:
		c.setPhaseLocked(PhaseErrored)
		category := ClassifyPlaybackError(ev.Message)
		c.lastError = ev.Message
		if c.metrics != nil {
			c.metrics.IncPlaybackErrors(string(category))
		}
		if c.cfg.History != nil {
			c.cfg.History.RecordError(c.sess.id, ev.Message)
		}
		c.log.Error("playback error",
			slog.String("session_id", c.sess.id),
			slog.String("category", string(category)),
			slog.String("error", ev.Message))
		c.armWatchdogLocked()
	}

	c.notifyLocked()
}

// startLocked sets a fresh media descriptor and plays it.
// Caller must hold c.mu and c.sess must be non-nil.
func (c *StreamController) startLocked(reconnect bool) {
	s := c.sess
	s.media = NewMedia(s.endpoint, c.cfg.RTSPTimeout)
	s.player.SetMedia(s.media)
	c.starts++
	c.setPhaseLocked(PhaseInitializing)
	s.player.Play()

	if c.metrics != nil {
		c.metrics.IncStarts()
	}
	if c.cfg.History != nil {
		c.cfg.History.RecordStart(s.id, reconnect)
	}
	c.log.Info("play requested",
		slog.String("session_id", s.id),
		slog.String("media", s.media.String()),
		slog.Int("starts", c.starts))
}

// reconnectLocked re-issues a start, immediately or after the backoff delay.
// Caller must hold c.mu.
func (c *StreamController) reconnectLocked(reason string) {
	c.reconnects++
	c.consecutive++
	if c.metrics != nil {
		c.metrics.IncReconnects(reason)
	}

	delay := c.cfg.Reconnect.Delay(c.consecutive)
	if delay <= 0 {
		c.startLocked(true)
		return
	}

	c.stopReconnectTimerLocked()
	gen := c.gen
	c.reconnectTimer = time.AfterFunc(delay, func() { c.delayedStart(gen) })
	c.log.Info("reconnect scheduled",
		slog.String("reason", reason),
		slog.Duration("delay", delay),
		slog.Int("attempt", c.consecutive))
}

func (c *StreamController) delayedStart(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.sess == nil || gen != c.gen {
		return
	}
	c.reconnectTimer = nil
	c.startLocked(true)
	c.notifyLocked()
}

func (c *StreamController) armWatchdogLocked() {
	if c.cfg.ErrorReconnectGrace <= 0 {
		return
	}
	c.stopWatchdogLocked()
	gen := c.gen
	c.watchdog = time.AfterFunc(c.cfg.ErrorReconnectGrace, func() { c.errorWatchdog(gen) })
}

func (c *StreamController) errorWatchdog(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.sess == nil || gen != c.gen || c.phase != PhaseErrored {
		return
	}
	c.watchdog = nil
	c.log.Warn("no recovery after playback error, reconnecting",
		slog.String("session_id", c.sess.id),
		slog.Duration("grace", c.cfg.ErrorReconnectGrace))
	c.reconnectLocked(reasonWatchdog)
	c.notifyLocked()
}

func (c *StreamController) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *StreamController) stopWatchdogLocked() {
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

// teardownLocked bumps the generation before touching the engine, so
// anything the engine emits while stopping is discarded.
func (c *StreamController) teardownLocked() {
	s := c.sess
	if s == nil {
		return
	}
	c.gen++
	c.sess = nil
	c.stopReconnectTimerLocked()
	c.stopWatchdogLocked()
	c.setPhaseLocked(PhaseReleased)

	s.player.Stop()
	s.player.DetachOutput()
	s.player.Release()
	s.runtime.Release()

	if c.cfg.History != nil {
		c.cfg.History.Close(s.id, c.cfg.Clock.Now())
	}
	if c.metrics != nil {
		c.metrics.SetSessionActive(false)
	}
	c.log.Info("playback session released",
		slog.String("session_id", s.id),
		slog.Int("starts", c.starts),
		slog.Int("reconnects", c.reconnects))
	c.notifyLocked()
}

func (c *StreamController) setPhaseLocked(p Phase) {
	c.phase = p
	c.updatedAt = c.cfg.Clock.Now()
	if c.metrics != nil {
		c.metrics.SetPhase(string(p), phaseNames)
	}
}

func (c *StreamController) statusLocked() Status {
	st := Status{
		Phase:         c.phase,
		Starts:        c.starts,
		Reconnects:    c.reconnects,
		LastEvent:     c.lastEvent,
		LastError:     c.lastError,
		DroppedEvents: c.dropped.Load(),
		UpdatedAt:     c.updatedAt,
	}
	if c.sess != nil {
		st.SessionID = c.sess.id
		st.Endpoint = c.sess.endpoint.Redacted()
	}
	return st
}

func (c *StreamController) notifyLocked() {
	if c.notifier != nil {
		c.notifier.Notify(c.statusLocked())
	}
}
