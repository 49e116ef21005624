package kiosk

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EngineOptions is the fixed option set the engine runtime is created with.
type EngineOptions struct {
	DropLateFrames bool
	RTSPOverTCP    bool
	Verbosity      int
}

// DefaultEngineOptions keeps every frame, forces RTSP interleaved over TCP
// and logs verbosely.
func DefaultEngineOptions(verbosity int) EngineOptions {
	return EngineOptions{
		DropLateFrames: false,
		RTSPOverTCP:    true,
		Verbosity:      verbosity,
	}
}

// Args renders the options as command-line style flags, for logging.
func (o EngineOptions) Args() []string {
	var args []string
	if !o.DropLateFrames {
		args = append(args, "--no-drop-late-frames")
	}
	if o.RTSPOverTCP {
		args = append(args, "--rtsp-tcp")
	}
	if o.Verbosity > 0 {
		args = append(args, "-"+strings.Repeat("v", o.Verbosity))
	}
	return args
}

// ScaleMode controls how video is fitted to the output surface.
type ScaleMode int

const (
	ScaleOriginal ScaleMode = iota
	ScaleFitScreen
)

// HWDecoding selects hardware decoding. Enabled without Force lets the engine
// fall back to software decoders.
type HWDecoding struct {
	Enabled bool
	Force   bool
}

// MediaOption is a single per-media engine option.
type MediaOption struct {
	Name  string
	Value string
}

func (o MediaOption) String() string {
	return ":" + o.Name + "=" + o.Value
}

// Media is the descriptor handed to Player.SetMedia. A fresh one is built
// for every start.
type Media struct {
	Endpoint   StreamEndpoint
	HWDecoding HWDecoding
	Options    []MediaOption
}

// Option returns the value of the named option.
func (m Media) Option(name string) (string, bool) {
	for _, o := range m.Options {
		if o.Name == name {
			return o.Value, true
		}
	}
	return "", false
}

// OptionInt returns the named option as an integer.
func (m Media) OptionInt(name string) (int, bool) {
	v, ok := m.Option(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (m Media) String() string {
	parts := make([]string, 0, len(m.Options)+1)
	parts = append(parts, m.Endpoint.Redacted())
	for _, o := range m.Options {
		parts = append(parts, o.String())
	}
	return strings.Join(parts, " ")
}

// NewMedia builds the low-latency descriptor for ep: hardware decoding
// preferred with software fallback, no network caching, no clock jitter
// compensation or synchronisation, and rtspTimeout rounded to whole seconds
// (at least one).
func NewMedia(ep StreamEndpoint, rtspTimeout time.Duration) Media {
	secs := int(rtspTimeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	return Media{
		Endpoint:   ep,
		HWDecoding: HWDecoding{Enabled: true, Force: false},
		Options: []MediaOption{
			{Name: "network-caching", Value: "0"},
			{Name: "clock-jitter", Value: "0"},
			{Name: "clock-synchro", Value: "0"},
			{Name: "rtsp-timeout", Value: fmt.Sprint(secs)},
		},
	}
}

// Surface is the display area a player renders into.
type Surface interface {
	Name() string
}

// EventListener receives engine events. It may be invoked from any engine
// goroutine, including synchronously from inside Player.Stop.
type EventListener func(PlaybackEvent)

// Engine creates runtimes.
type Engine interface {
	NewRuntime(opts EngineOptions) (Runtime, error)
}

// Runtime is one engine instance. It owns the players created from it.
type Runtime interface {
	NewPlayer() (Player, error)
	Release()
}

// Player renders one media at a time onto an attached surface.
type Player interface {
	AttachOutput(s Surface) error
	SetScaleMode(mode ScaleMode)
	SetEventListener(fn EventListener)
	SetMedia(m Media)
	Play()
	Stop()
	DetachOutput()
	Release()
}
