package kiosk

import (
	"sort"
	"sync"
	"time"
)

// DefaultHistoryLimit is the number of closed sessions kept by SessionHistory.
const DefaultHistoryLimit = 20

// SessionRecord summarizes one playback session, from Initialize to Teardown.
type SessionRecord struct {
	ID         string    `json:"id"`
	Endpoint   string    `json:"endpoint"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at,omitempty"`
	Starts     int       `json:"starts"`
	Reconnects int       `json:"reconnects"`
	Errors     int       `json:"errors"`
	LastError  string    `json:"last_error,omitempty"`
}

// Open reports whether the session has not been torn down yet.
func (r SessionRecord) Open() bool { return r.ClosedAt.IsZero() }

// SessionHistory is a concurrency-safe, bounded log of recent playback
// sessions. It lives only in memory and is lost on restart.
type SessionHistory struct {
	mu    sync.RWMutex
	store HistoryStore
	limit int
}

// NewSessionHistory returns a history that keeps at most limit closed
// sessions. If limit <= 0, DefaultHistoryLimit is used.
func NewSessionHistory(limit int) *SessionHistory {
	return NewSessionHistoryWithStore(NewInMemoryHistoryStore(), limit)
}

// NewSessionHistoryWithStore is NewSessionHistory backed by the given store.
func NewSessionHistoryWithStore(store HistoryStore, limit int) *SessionHistory {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &SessionHistory{store: store, limit: limit}
}

// Open records a new session. Reopening a known ID is a no-op.
func (h *SessionHistory) Open(id, endpoint string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.store.GetSession(id); exists {
		return
	}
	h.store.SetSession(&SessionRecord{ID: id, Endpoint: endpoint, OpenedAt: at})
}

// RecordStart counts a play request; reconnect marks it as a reconnect.
func (h *SessionHistory) RecordStart(id string, reconnect bool) {
	h.update(id, func(rec *SessionRecord) {
		rec.Starts++
		if reconnect {
			rec.Reconnects++
		}
	})
}

// RecordError counts an engine error and keeps its message.
func (h *SessionHistory) RecordError(id, msg string) {
	h.update(id, func(rec *SessionRecord) {
		rec.Errors++
		rec.LastError = msg
	})
}

// Close marks the session closed and trims the oldest closed sessions
// beyond the limit. Closing an unknown or closed session is a no-op.
func (h *SessionHistory) Close(id string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.store.GetSession(id)
	if !ok || !rec.Open() {
		return
	}
	rec.ClosedAt = at
	h.trimLocked()
}

// Snapshot returns copies of all records, newest first.
func (h *SessionHistory) Snapshot() []SessionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := h.store.ListSessionIDs()
	out := make([]SessionRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := h.store.GetSession(id); ok {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	return out
}

func (h *SessionHistory) update(id string, fn func(rec *SessionRecord)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rec, ok := h.store.GetSession(id); ok {
		fn(rec)
	}
}

// trimLocked drops the oldest closed sessions beyond h.limit.
// Caller must hold h.mu in write mode.
func (h *SessionHistory) trimLocked() {
	var closed []*SessionRecord
	for _, id := range h.store.ListSessionIDs() {
		if rec, ok := h.store.GetSession(id); ok && !rec.Open() {
			closed = append(closed, rec)
		}
	}
	if len(closed) <= h.limit {
		return
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].ClosedAt.Before(closed[j].ClosedAt) })
	for _, rec := range closed[:len(closed)-h.limit] {
		h.store.DeleteSession(rec.ID)
	}
}
