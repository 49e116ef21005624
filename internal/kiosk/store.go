package kiosk

// HistoryStore is the storage abstraction behind SessionHistory.
// SessionHistory serializes access, so implementations need no locking.
type HistoryStore interface {
	GetSession(id string) (*SessionRecord, bool)
	SetSession(rec *SessionRecord)
	DeleteSession(id string)
	ListSessionIDs() []string
}

// InMemoryHistoryStore is an in-memory implementation of HistoryStore.
type InMemoryHistoryStore struct {
	sessions map[string]*SessionRecord
}

// NewInMemoryHistoryStore returns a new empty in-memory store.
func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{
		sessions: make(map[string]*SessionRecord),
	}
}

// GetSession implements HistoryStore.GetSession.
func (s *InMemoryHistoryStore) GetSession(id string) (*SessionRecord, bool) {
	rec, ok := s.sessions[id]
	return rec, ok
}

// SetSession implements HistoryStore.SetSession.
func (s *InMemoryHistoryStore) SetSession(rec *SessionRecord) {
	s.sessions[rec.ID] = rec
}

// DeleteSession implements HistoryStore.DeleteSession.
func (s *InMemoryHistoryStore) DeleteSession(id string) {
	delete(s.sessions, id)
}

// ListSessionIDs implements HistoryStore.ListSessionIDs.
func (s *InMemoryHistoryStore) ListSessionIDs() []string {
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
