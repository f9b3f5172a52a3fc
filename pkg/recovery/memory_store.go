package recovery

import (
	"sync"

	"github.com/go-go-golems/mento/pkg/session"
)

// MemoryStore is a thread-safe in-process Store implementation, used in
// tests and as the default when no persistence path is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	sessionID string
	modality  *session.Modality
	voice     *bool
	pending   *session.PendingDataRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) HasRecoverableState() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modality != nil || s.voice != nil || s.pending != nil
}

func (s *MemoryStore) GetModalityPreference() (session.Modality, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.modality == nil {
		return "", false
	}
	return *s.modality, true
}

func (s *MemoryStore) SetModalityPreference(m session.Modality) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modality = &m
	return nil
}

func (s *MemoryStore) GetVoiceEnabled() (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.voice == nil {
		return false, false
	}
	return *s.voice, true
}

func (s *MemoryStore) SetVoiceEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice = &enabled
	return nil
}

func (s *MemoryStore) GetPendingData() (*session.PendingDataRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending == nil {
		return nil, false
	}
	return s.pending.Clone(), true
}

func (s *MemoryStore) SetPendingData(p *session.PendingDataRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = p.Clone()
	return nil
}

func (s *MemoryStore) UpdatePendingDataFields(fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = &session.PendingDataRequest{}
	}
	s.pending.Merge(fields)
	return nil
}

func (s *MemoryStore) SetSessionID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
	return nil
}

func (s *MemoryStore) GetSessionID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID, s.sessionID != ""
}

func (s *MemoryStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
	s.modality = nil
	s.voice = nil
	s.pending = nil
	return nil
}
