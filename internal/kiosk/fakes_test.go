package kiosk

import (
	"sync"
	"time"

	"rtsp-kiosk/internal/platform/logger"
)

var testLog = logger.Discard()

type fakeSurface string

func (s fakeSurface) Name() string { return string(s) }

// fakeEngine records every engine call. Errors injected into the *Err fields
// make the matching allocation fail.
type fakeEngine struct {
	mu         sync.Mutex
	runtimeErr error
	playerErr  error
	attachErr  error
	// stopEmits makes Player.Stop deliver Stopped synchronously, the way
	// some engines do.
	stopEmits bool
	runtimes  []*fakeRuntime
}

func (e *fakeEngine) NewRuntime(opts EngineOptions) (Runtime, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtimeErr != nil {
		return nil, e.runtimeErr
	}
	rt := &fakeRuntime{engine: e, opts: opts}
	e.runtimes = append(e.runtimes, rt)
	return rt, nil
}

func (e *fakeEngine) runtimeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runtimes)
}

func (e *fakeEngine) runtime(i int) *fakeRuntime {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtimes[i]
}

// lastPlayer returns the most recently created player.
func (e *fakeEngine) lastPlayer() *fakePlayer {
	e.mu.Lock()
	defer e.mu.Unlock()
	rt := e.runtimes[len(e.runtimes)-1]
	return rt.players[len(rt.players)-1]
}

// liveHandles counts runtimes and players not yet released.
func (e *fakeEngine) liveHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, rt := range e.runtimes {
		if !rt.isReleased() {
			n++
		}
		for _, p := range rt.players {
			if !p.isReleased() {
				n++
			}
		}
	}
	return n
}

type fakeRuntime struct {
	engine   *fakeEngine
	opts     EngineOptions
	mu       sync.Mutex
	released bool
	players  []*fakePlayer
}

// NewPlayer is called with fakeEngine.mu unlocked.
func (r *fakeRuntime) NewPlayer() (Player, error) {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	if r.engine.playerErr != nil {
		return nil, r.engine.playerErr
	}
	p := &fakePlayer{engine: r.engine}
	r.players = append(r.players, p)
	return p, nil
}

func (r *fakeRuntime) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = true
}

func (r *fakeRuntime) isReleased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

type fakePlayer struct {
	engine *fakeEngine

	mu                sync.Mutex
	listener          EventListener
	surface           Surface
	scale             ScaleMode
	media             []Media
	plays             int
	stops             int
	detached          bool
	released          bool
	callsAfterRelease int
}

func (p *fakePlayer) touch() {
	if p.released {
		p.callsAfterRelease++
	}
}

func (p *fakePlayer) AttachOutput(s Surface) error {
	p.engine.mu.Lock()
	err := p.engine.attachErr
	p.engine.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	if err != nil {
		return err
	}
	p.surface = s
	return nil
}

func (p *fakePlayer) SetScaleMode(mode ScaleMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	p.scale = mode
}

func (p *fakePlayer) SetEventListener(fn EventListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	p.listener = fn
}

func (p *fakePlayer) SetMedia(m Media) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	p.media = append(p.media, m)
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	p.plays++
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	p.touch()
	p.stops++
	l := p.listener
	p.mu.Unlock()

	p.engine.mu.Lock()
	emit := p.engine.stopEmits
	p.engine.mu.Unlock()
	if emit && l != nil {
		l(Stopped())
	}
}

func (p *fakePlayer) DetachOutput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	p.detached = true
	p.surface = nil
}

func (p *fakePlayer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
	p.released = true
}

// emit delivers ev to the registered listener, as an engine goroutine would.
func (p *fakePlayer) emit(ev PlaybackEvent) {
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l != nil {
		l(ev)
	}
}

func (p *fakePlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

func (p *fakePlayer) mediaAt(i int) Media {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.media[i]
}

func (p *fakePlayer) isReleased() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func (p *fakePlayer) misuse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callsAfterRelease
}

// fakeDisplay records TimerDisplay calls.
type fakeDisplay struct {
	mu       sync.Mutex
	restarts []time.Time
	stops    int
}

func (d *fakeDisplay) Restart(start time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restarts = append(d.restarts, start)
}

func (d *fakeDisplay) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
}

func (d *fakeDisplay) restartsSnapshot() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.restarts...)
}

func (d *fakeDisplay) stopCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
	quiet   = 100 * time.Millisecond
)

var testEndpoint = MustParseEndpoint("rtsp://192.168.1.75:8554/live")

func newTestController(e *fakeEngine, mutate func(*ControllerConfig)) *StreamController {
	cfg := ControllerConfig{
		Surface:       fakeSurface("test"),
		EngineOptions: DefaultEngineOptions(2),
		RTSPTimeout:   3 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewStreamController(e, cfg, testLog, nil)
}
