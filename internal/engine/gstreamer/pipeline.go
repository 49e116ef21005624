package gstreamer

import (
	"fmt"
	"strings"
	"time"

	"rtsp-kiosk/internal/kiosk"
)

// OverlayElement is the name of the textoverlay element that shows the idle clock.
const OverlayElement = "idleclock"

// PipelineString builds the gst-launch description playing m onto sink.
//
//	rtspsrc ! decoder ! videoconvert ! textoverlay ! [videoscale] ! sink
//
// network-caching maps to the jitterbuffer latency in milliseconds,
// rtsp-timeout to the TCP timeout, and clock-synchro to the sink's sync flag.
func PipelineString(m kiosk.Media, opts kiosk.EngineOptions, scale kiosk.ScaleMode, sink string) string {
	latency, ok := m.OptionInt("network-caching")
	if !ok {
		latency = 0
	}
	timeout, ok := m.OptionInt("rtsp-timeout")
	if !ok || timeout < 1 {
		timeout = 1
	}
	synchro, _ := m.OptionInt("clock-synchro")

	src := []string{
		"rtspsrc",
		fmt.Sprintf("location=%q", m.Endpoint.String()),
		fmt.Sprintf("latency=%d", latency),
		fmt.Sprintf("tcp-timeout=%d", (time.Duration(timeout)*time.Second).Microseconds()),
		fmt.Sprintf("drop-on-latency=%t", opts.DropLateFrames),
	}
	if opts.RTSPOverTCP {
		src = append(src, "protocols=tcp")
	}

	var decoder string
	switch {
	case m.HWDecoding.Enabled && m.HWDecoding.Force:
		decoder = "vaapidecodebin"
	case m.HWDecoding.Enabled:
		decoder = "decodebin"
	default:
		decoder = "decodebin force-sw-decoders=true"
	}

	stages := []string{
		strings.Join(src, " "),
		decoder,
		"videoconvert qos=" + fmt.Sprint(opts.DropLateFrames),
		"textoverlay name=" + OverlayElement + ` valignment=top halignment=right shaded-background=true font-desc="Sans 24"`,
	}
	if scale == kiosk.ScaleFitScreen {
		stages = append(stages, "videoscale add-borders=true")
	}
	stages = append(stages, fmt.Sprintf("%s sync=%t", sink, synchro != 0))

	return strings.Join(stages, " ! ")
}
