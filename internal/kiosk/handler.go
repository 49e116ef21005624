package kiosk

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"rtsp-kiosk/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// StatusSource reports the stream controller state.
type StatusSource interface {
	Status() Status
}

// TimerSource reports the idle timer state.
type TimerSource interface {
	Snapshot() IdleTimerState
}

// TextSource reports the text currently shown by the overlay.
type TextSource interface {
	Text() string
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Stream    Status         `json:"stream"`
	IdleTimer IdleTimerState `json:"idle_timer"`
	Overlay   string         `json:"overlay,omitempty"`
}

// Handler exposes the host signal and status endpoints using go-chi.
type Handler struct {
	binder  *LifecycleBinder
	stream  StatusSource
	timer   TimerSource
	overlay TextSource
	history *SessionHistory
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler. overlay, history and metrics may be nil.
func NewHandler(binder *LifecycleBinder, stream StatusSource, timer TimerSource, overlay TextSource, history *SessionHistory, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		binder:  binder,
		stream:  stream,
		timer:   timer,
		overlay: overlay,
		history: history,
		log:     log,
		metrics: m,
	}
}

// Routes registers the handler's endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/host/{signal}", h.HostSignal)
	r.Post("/input/pointer-up", h.PointerUp)
	r.Get("/status", h.Status)
	r.Get("/sessions", h.Sessions)
	r.Get("/healthz", h.Healthz)
}

// HostSignal handles POST /host/{signal}.
func (h *Handler) HostSignal(w http.ResponseWriter, r *http.Request) {
	sig, err := ParseHostSignal(chi.URLParam(r, "signal"))
	if err != nil {
		h.log.Debug("unknown host signal", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.binder.Dispatch(sig); err != nil {
		var initErr *EngineInitError
		switch {
		case errors.As(err, &initErr), errors.Is(err, ErrControllerClosed), errors.Is(err, ErrNoSession):
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			h.log.Error("host signal failed", slog.String("signal", string(sig)), slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PointerUp handles POST /input/pointer-up. The input is not consumed, so
// the answer is 202 Accepted.
func (h *Handler) PointerUp(w http.ResponseWriter, r *http.Request) {
	h.binder.OnPointerUp()
	w.WriteHeader(http.StatusAccepted)
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Stream:    h.stream.Status(),
		IdleTimer: h.timer.Snapshot(),
	}
	if h.overlay != nil {
		resp.Overlay = h.overlay.Text()
	}
	h.writeJSON(w, resp)
}

// Sessions handles GET /sessions, newest first.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeJSON(w, []SessionRecord{})
		return
	}
	h.writeJSON(w, h.history.Snapshot())
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encode response failed", slog.String("error", err.Error()))
	}
}
