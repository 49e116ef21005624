package kiosk

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionActive is returned by Initialize while a session is live.
	ErrSessionActive = errors.New("playback session already active")

	// ErrNoSession is returned by Start when no session is live.
	ErrNoSession = errors.New("no playback session")

	// ErrControllerClosed is returned by Initialize after Close.
	ErrControllerClosed = errors.New("stream controller closed")

	// ErrInvalidEndpoint wraps every endpoint parse failure.
	ErrInvalidEndpoint = errors.New("invalid stream endpoint")

	// ErrUnknownSignal is returned for host signals the binder does not know.
	ErrUnknownSignal = errors.New("unknown host signal")
)

// InitStage names the engine allocation step that failed.
type InitStage string

const (
	StageRuntime InitStage = "runtime"
	StagePlayer  InitStage = "player"
	StageSurface InitStage = "surface"
)

// EngineInitError reports a failure to bring up the playback engine. It is
// fatal for the current activation only.
type EngineInitError struct {
	Stage InitStage
	Err   error
}

func (e *EngineInitError) Error() string {
	return fmt.Sprintf("engine init failed at %s: %v", e.Stage, e.Err)
}

func (e *EngineInitError) Unwrap() error { return e.Err }

// ErrorCategory classifies engine error messages for logs and metrics.
type ErrorCategory string

const (
	CategoryNetwork ErrorCategory = "network"
	CategoryCodec   ErrorCategory = "codec"
	CategoryAuth    ErrorCategory = "auth"
	CategoryUnknown ErrorCategory = "unknown"
)

var categoryKeywords = []struct {
	category ErrorCategory
	keywords []string
}{
	{CategoryAuth, []string{"401", "403", "unauthorized", "forbidden", "authentication", "not authorized"}},
	{CategoryNetwork, []string{"connection", "timeout", "timed out", "refused", "unreachable", "no route", "reset by peer", "could not open resource", "socket", "eof"}},
	{CategoryCodec, []string{"decode", "decoder", "codec", "caps", "negotiat", "no suitable plugin", "missing plugin", "not-negotiated"}},
}

// ClassifyPlaybackError maps an engine error message onto an ErrorCategory
// by keyword. Auth is checked first since auth failures often mention the
// connection too.
func ClassifyPlaybackError(msg string) ErrorCategory {
	lower := strings.ToLower(msg)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.category
			}
		}
	}
	return CategoryUnknown
}
