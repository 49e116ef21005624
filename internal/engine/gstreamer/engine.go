// Package gstreamer plays the kiosk stream through a GStreamer pipeline.
package gstreamer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rtsp-kiosk/internal/kiosk"

	"github.com/tinyzimmer/go-gst/gst"
)

// Engine creates GStreamer runtimes.
type Engine struct {
	log *slog.Logger
}

// New returns an engine. GStreamer itself is checked when a runtime is created.
func New(log *slog.Logger) *Engine {
	return &Engine{log: log}
}

// NewRuntime implements kiosk.Engine.
func (e *Engine) NewRuntime(opts kiosk.EngineOptions) (kiosk.Runtime, error) {
	if err := checkGStreamerAvailable(); err != nil {
		return nil, err
	}
	e.log.Debug("gstreamer runtime created", slog.Any("args", opts.Args()))
	return &runtime{opts: opts, log: e.log}, nil
}

// checkGStreamerAvailable fails fast when GStreamer or its core plugins are missing.
func checkGStreamerAvailable() error {
	// Safe to call multiple times.
	gst.Init(nil)

	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("gstreamer not available: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}

// Surface is the video sink the player renders to. It also carries the idle
// clock text, which it pushes into the running pipeline's text overlay.
type Surface struct {
	Sink string

	mu      sync.Mutex
	text    string
	overlay *gst.Element
}

// NewSurface returns a surface rendering through the named sink element,
// e.g. autovideosink or kmssink.
func NewSurface(sink string) *Surface {
	return &Surface{Sink: sink}
}

// Name implements kiosk.Surface.
func (s *Surface) Name() string { return s.Sink }

// SetText shows text over the video.
func (s *Surface) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	if s.overlay != nil {
		s.overlay.SetProperty("text", text)
	}
}

func (s *Surface) bind(el *gst.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlay = el
	if el != nil {
		el.SetProperty("text", s.text)
	}
}

type runtime struct {
	opts kiosk.EngineOptions
	log  *slog.Logger

	mu       sync.Mutex
	released bool
	players  []*player
}

var errReleased = errors.New("runtime released")

func (r *runtime) NewPlayer() (kiosk.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, errReleased
	}
	p := &player{opts: r.opts, log: r.log}
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

type player struct {
	opts kiosk.EngineOptions
	log  *slog.Logger

	mu       sync.Mutex
	surface  *Surface
	scale    kiosk.ScaleMode
	listener kiosk.EventListener
	media    kiosk.Media
	hasMedia bool
	released bool
	pipeline *gst.Pipeline
	cancel   chan struct{}
	wg       sync.WaitGroup
}

func (p *player) AttachOutput(s kiosk.Surface) error {
	sf, ok := s.(*Surface)
	if !ok || sf == nil {
		return fmt.Errorf("unsupported surface %T", s)
	}
	sink, err := gst.NewElement(sf.Sink)
	if err != nil {
		return fmt.Errorf("video sink %q: %w", sf.Sink, err)
	}
	sink.SetState(gst.StateNull)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return errReleased
	}
	p.surface = sf
	return nil
}

func (p *player) SetScaleMode(mode kiosk.ScaleMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scale = mode
}

func (p *player) SetEventListener(fn kiosk.EventListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = fn
}

func (p *player) SetMedia(m kiosk.Media) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.media = m
	p.hasMedia = true
}

// Play replaces any running pipeline with a fresh one for the current media.
// The replaced pipeline reports nothing.
func (p *player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released || !p.hasMedia || p.surface == nil {
		return
	}
	p.stopPipelineLocked()

	l := p.listener
	emit := func(ev kiosk.PlaybackEvent) {
		if l != nil {
			l(ev)
		}
	}

	desc := PipelineString(p.media, p.opts, p.scale, p.surface.Sink)
	p.log.Debug("building pipeline", slog.String("media", p.media.String()))
	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		p.log.Error("pipeline build failed", slog.String("error", err.Error()))
		fail(emit, err.Error())
		return
	}
	if el, err := pipeline.GetElementByName(OverlayElement); err == nil {
		p.surface.bind(el)
	}

	cancel := make(chan struct{})
	p.pipeline = pipeline
	p.cancel = cancel
	p.wg.Add(1)
	go p.monitor(pipeline, emit, cancel)

	emit(kiosk.Opening())
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		fail(emit, err.Error())
	}
}

// Stop halts the pipeline and reports Stopped synchronously.
func (p *player) Stop() {
	p.mu.Lock()
	ran := p.stopPipelineLocked()
	l := p.listener
	p.mu.Unlock()

	if ran && l != nil {
		l(kiosk.Stopped())
	}
}

func (p *player) DetachOutput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.surface != nil {
		p.surface.bind(nil)
	}
	p.surface = nil
}

func (p *player) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopPipelineLocked()
	p.released = true
	p.listener = nil
}

// stopPipelineLocked stops the bus monitor and the pipeline. It reports
// whether a pipeline was running. Caller must hold p.mu.
func (p *player) stopPipelineLocked() bool {
	if p.pipeline == nil {
		return false
	}
	close(p.cancel)
	p.wg.Wait()

	p.pipeline.SetState(gst.StateNull)
	if p.surface != nil {
		p.surface.bind(nil)
	}
	p.pipeline = nil
	p.cancel = nil
	return true
}

// monitor turns bus messages into playback events until cancel is closed
// or the stream ends. It never takes p.mu.
func (p *player) monitor(pipeline *gst.Pipeline, emit func(kiosk.PlaybackEvent), cancel <-chan struct{}) {
	defer p.wg.Done()

	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-cancel:
			return
		default:
		}

		// Short timeout keeps cancellation responsive.
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			p.log.Info("end of stream")
			emit(kiosk.EndReached())
			return

		case gst.MessageError:
			gerr := msg.ParseError()
			p.log.Error("pipeline error",
				slog.String("error", gerr.Error()),
				slog.String("debug", gerr.DebugString()))
			fail(emit, gerr.Error())
			return

		case gst.MessageBuffering:
			emit(kiosk.Buffering(float64(msg.ParseBuffering())))

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				old, next := msg.ParseStateChanged()
				p.log.Debug("pipeline state changed",
					slog.String("from", old.String()),
					slog.String("to", next.String()))
				if next == gst.StatePlaying {
					emit(kiosk.Buffering(100))
				}
			}
		}
	}
}

// fail reports a playback failure as Error followed by Stopped, so the
// controller reconnects.
func fail(emit func(kiosk.PlaybackEvent), msg string) {
	emit(kiosk.ErrorEvent(msg))
	emit(kiosk.Stopped())
}
