// Package sim is a playback engine that plays no video. It walks the RTSP
// request sequence a real client would issue and emits the matching
// playback events, so the daemon can run without GStreamer or a camera.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rtsp-kiosk/internal/kiosk"

	"github.com/aler9/gortsplib/pkg/base"
)

// Options shapes the simulated stream.
type Options struct {
	// StepDelay separates the simulated RTSP requests and buffering steps.
	StepDelay time.Duration
	// SessionLength ends each play with EndReached after this long; zero never ends.
	SessionLength time.Duration
	// FailEvery makes every n-th play fail at DESCRIBE; zero never fails.
	FailEvery int
}

// Exchange is one simulated RTSP request and its response status.
type Exchange struct {
	Method base.Method
	URL    string
	Status base.StatusCode
}

// String renders the exchange as "METHOD url status".
func (x Exchange) String() string {
	return fmt.Sprintf("%s %s %d", x.Method, x.URL, x.Status)
}

// Surface is a named stand-in for a screen.
type Surface struct {
	name string
}

// NewSurface returns a surface called name.
func NewSurface(name string) *Surface { return &Surface{name: name} }

// Name implements kiosk.Surface.
func (s *Surface) Name() string { return s.name }

// Engine creates simulated runtimes.
type Engine struct {
	opts Options
	log  *slog.Logger
}

// New returns a simulated engine.
func New(opts Options, log *slog.Logger) *Engine {
	if opts.StepDelay <= 0 {
		opts.StepDelay = 10 * time.Millisecond
	}
	return &Engine{opts: opts, log: log}
}

// NewRuntime implements kiosk.Engine.
func (e *Engine) NewRuntime(opts kiosk.EngineOptions) (kiosk.Runtime, error) {
	e.log.Debug("sim runtime created", slog.Any("args", opts.Args()))
	return &runtime{engine: e, opts: opts}, nil
}

type runtime struct {
	engine *Engine
	opts   kiosk.EngineOptions

	mu       sync.Mutex
	released bool
	players  []*Player
}

var errReleased = errors.New("runtime released")

func (r *runtime) NewPlayer() (kiosk.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, errReleased
	}
	p := &Player{opts: r.engine.opts, log: r.engine.log}
	r.players = append(r.players, p)
	return p, nil
}

func (r *runtime) Release() {
	r.mu.Lock()
	players := r.players
	r.players = nil
	r.released = true
	r.mu.Unlock()

	for _, p := range players {
		p.Release()
	}
}

// Player is a simulated player. Calls after Release are ignored.
type Player struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	listener  kiosk.EventListener
	surface   kiosk.Surface
	scale     kiosk.ScaleMode
	media     kiosk.Media
	hasMedia  bool
	plays     int
	released  bool
	exchanges []Exchange
	cancel    chan struct{}
	wg        sync.WaitGroup
}

var errNoSurface = errors.New("no surface")

// AttachOutput implements kiosk.Player.AttachOutput.
func (p *Player) AttachOutput(s kiosk.Surface) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return errReleased
	}
	if s == nil {
		return errNoSurface
	}
	p.surface = s
	return nil
}

// SetScaleMode implements kiosk.Player.SetScaleMode.
func (p *Player) SetScaleMode(mode kiosk.ScaleMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scale = mode
}

// SetEventListener implements kiosk.Player.SetEventListener.
func (p *Player) SetEventListener(fn kiosk.EventListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = fn
}

// SetMedia implements kiosk.Player.SetMedia.
func (p *Player) SetMedia(m kiosk.Media) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.media = m
	p.hasMedia = true
}

// Play starts a new simulated session, replacing any running one.
func (p *Player) Play() {
	p.halt()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released || !p.hasMedia {
		return
	}
	p.plays++
	fail := p.opts.FailEvery > 0 && p.plays%p.opts.FailEvery == 0
	cancel := make(chan struct{})
	p.cancel = cancel
	url := p.media.Endpoint.Redacted()

	p.wg.Add(1)
	go p.session(url, fail, cancel)
}

// Stop tears the session down and reports Stopped asynchronously.
func (p *Player) Stop() {
	if !p.halt() {
		return
	}
	p.mu.Lock()
	url := p.media.Endpoint.Redacted()
	p.exchanges = append(p.exchanges, Exchange{Method: base.Teardown, URL: url, Status: base.StatusOK})
	l := p.listener
	p.mu.Unlock()

	if l != nil {
		go l(kiosk.Stopped())
	}
}

// DetachOutput implements kiosk.Player.DetachOutput.
func (p *Player) DetachOutput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.surface = nil
}

// Release implements kiosk.Player.Release.
func (p *Player) Release() {
	p.halt()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	p.listener = nil
}

// Exchanges returns the simulated RTSP requests issued so far.
func (p *Player) Exchanges() []Exchange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Exchange(nil), p.exchanges...)
}

// Methods returns the methods of Exchanges, in order.
func (p *Player) Methods() []base.Method {
	xs := p.Exchanges()
	out := make([]base.Method, len(xs))
	for i, x := range xs {
		out[i] = x.Method
	}
	return out
}

// halt cancels the running session and waits for it. It reports whether
// a session was running.
func (p *Player) halt() bool {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return false
	}
	close(cancel)
	p.wg.Wait()
	return true
}

func (p *Player) session(url string, fail bool, cancel <-chan struct{}) {
	defer p.wg.Done()

	steps := []base.Method{base.Options, base.Describe, base.Setup, base.Play}
	for _, m := range steps {
		if !p.wait(cancel, p.opts.StepDelay) {
			return
		}
		if fail && m == base.Describe {
			p.record(Exchange{Method: m, URL: url, Status: base.StatusNotFound})
			p.emit(kiosk.ErrorEvent(fmt.Sprintf("%s %s: 404 Not Found", m, url)))
			p.emit(kiosk.Stopped())
			p.clearCancel(cancel)
			return
		}
		p.record(Exchange{Method: m, URL: url, Status: base.StatusOK})
		if m == base.Describe {
			p.emit(kiosk.Opening())
		}
	}

	for _, pct := range []float64{0, 50, 100} {
		if !p.wait(cancel, p.opts.StepDelay) {
			return
		}
		p.emit(kiosk.Buffering(pct))
	}
	p.log.Debug("sim stream playing", slog.String("url", url))

	if p.opts.SessionLength <= 0 {
		<-cancel
		return
	}
	if !p.wait(cancel, p.opts.SessionLength) {
		return
	}
	p.emit(kiosk.EndReached())
	p.clearCancel(cancel)
}

// clearCancel marks the session finished so a later Stop reports no
// teardown for it.
func (p *Player) clearCancel(cancel <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil && (<-chan struct{})(p.cancel) == cancel {
		p.cancel = nil
	}
}

func (p *Player) wait(cancel <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-cancel:
		return false
	case <-t.C:
		return true
	}
}

func (p *Player) record(x Exchange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchanges = append(p.exchanges, x)
}

func (p *Player) emit(ev kiosk.PlaybackEvent) {
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l != nil {
		l(ev)
	}
}
