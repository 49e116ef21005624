// Package overlay renders the idle clock: the time elapsed since the last
// user interaction, refreshed on a ticker.
package overlay

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Sink receives each rendered text, e.g. a video text overlay element.
type Sink interface {
	SetText(text string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(text string)

func (f SinkFunc) SetText(text string) { f(text) }

// Display is a ticker-driven elapsed-time display. It satisfies the idle
// timer's display contract.
type Display struct {
	now  func() time.Time
	tick time.Duration
	sink Sink
	log  *slog.Logger

	mu    sync.Mutex
	start time.Time
	text  string
	stop  chan struct{}
	done  chan struct{}
}

// New returns a stopped Display refreshing every tick. now defaults to
// time.Now and sink may be nil.
func New(now func() time.Time, tick time.Duration, sink Sink, log *slog.Logger) *Display {
	if now == nil {
		now = time.Now
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Display{now: now, tick: tick, sink: sink, log: log}
}

// Restart shows the time elapsed since start, refreshing until Stop.
func (d *Display) Restart(start time.Time) {
	d.Stop()

	d.mu.Lock()
	d.start = start
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	stop, done := d.stop, d.done
	d.mu.Unlock()

	d.render()
	go d.loop(stop, done)
}

// Stop halts the refresh loop and blanks the text. It waits for the loop to exit.
func (d *Display) Stop() {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done

	d.mu.Lock()
	d.text = ""
	d.start = time.Time{}
	d.mu.Unlock()
	if d.sink != nil {
		d.sink.SetText("")
	}
}

// Text returns the text currently shown, empty when stopped.
func (d *Display) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Running reports whether the refresh loop is active.
func (d *Display) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop != nil
}

func (d *Display) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(d.tick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			d.render()
		}
	}
}

func (d *Display) render() {
	d.mu.Lock()
	if d.start.IsZero() {
		d.mu.Unlock()
		return
	}
	text := FormatElapsed(d.now().Sub(d.start))
	changed := text != d.text
	d.text = text
	d.mu.Unlock()

	if changed && d.sink != nil {
		d.sink.SetText(text)
	}
	if changed && d.log != nil {
		d.log.Debug("overlay updated", slog.String("text", text))
	}
}

// FormatElapsed renders d as MM:SS, or H:MM:SS from one hour on.
// Negative durations render as zero.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
