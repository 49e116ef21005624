package kiosk

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultRTSPPort  = 554
	defaultRTSPSPort = 322
)

// StreamEndpoint is an immutable, validated RTSP locator.
type StreamEndpoint struct {
	u    *url.URL
	port int
}

// ParseEndpoint validates raw as an rtsp:// or rtsps:// URL with a host.
// The port defaults to 554 (322 for rtsps) when omitted.
func ParseEndpoint(raw string) (StreamEndpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return StreamEndpoint{}, fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return StreamEndpoint{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}

	scheme := strings.ToLower(u.Scheme)
	var port int
	switch scheme {
	case "rtsp":
		port = defaultRTSPPort
	case "rtsps":
		port = defaultRTSPSPort
	default:
		return StreamEndpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Hostname() == "" {
		return StreamEndpoint{}, fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return StreamEndpoint{}, fmt.Errorf("%w: invalid port %q", ErrInvalidEndpoint, p)
		}
		port = n
	}

	u.Scheme = scheme
	return StreamEndpoint{u: u, port: port}, nil
}

// MustParseEndpoint is ParseEndpoint that panics on error. Intended for tests
// and constants.
func MustParseEndpoint(raw string) StreamEndpoint {
	ep, err := ParseEndpoint(raw)
	if err != nil {
		panic(err)
	}
	return ep
}

// IsZero reports whether e was never parsed.
func (e StreamEndpoint) IsZero() bool { return e.u == nil }

// Scheme returns rtsp or rtsps.
func (e StreamEndpoint) Scheme() string {
	if e.u == nil {
		return ""
	}
	return e.u.Scheme
}

// Host returns the host name without port or brackets.
func (e StreamEndpoint) Host() string {
	if e.u == nil {
		return ""
	}
	return e.u.Hostname()
}

// Port returns the explicit port, or the scheme default.
func (e StreamEndpoint) Port() int { return e.port }

// Path returns the stream path, including any query string.
func (e StreamEndpoint) Path() string {
	if e.u == nil {
		return ""
	}
	return e.u.RequestURI()
}

// HostPort returns host:port with the effective port.
func (e StreamEndpoint) HostPort() string {
	return net.JoinHostPort(e.Host(), strconv.Itoa(e.port))
}

// String returns the locator as configured, credentials included.
func (e StreamEndpoint) String() string {
	if e.u == nil {
		return ""
	}
	return e.u.String()
}

// Redacted returns the locator with any password masked, for logs and status.
func (e StreamEndpoint) Redacted() string {
	if e.u == nil {
		return ""
	}
	return e.u.Redacted()
}
