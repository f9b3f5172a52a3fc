package modality

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mento/pkg/recovery"
	"github.com/go-go-golems/mento/pkg/session"
)

// Synchronizer reconciles the two interaction surfaces against the
// backend's canonical session state. It keeps a read/write-through mirror;
// modality preference and the voice flag are additionally persisted to the
// recovery store for instant reload recovery, then reconciled.
//
// Merge policies differ by stakes: preference writes are optimistic and
// absorb backend failures, data merges are authoritative and re-surface
// them.
type Synchronizer struct {
	mu        sync.RWMutex
	sessionID string
	backend   Backend
	store     recovery.Store
	state     *session.UnifiedState
	logger    zerolog.Logger

	// count of absorbed preference-sync failures, so a surface MAY render a
	// degraded-sync indicator
	syncErrors atomic.Int64
}

type SynchronizerOption func(*Synchronizer)

func WithLogger(logger zerolog.Logger) SynchronizerOption {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// NewSynchronizer builds the synchronizer for one session id. Local recovery
// values are loaded before any backend fetch is issued, so a reload never
// regresses the modality preference to its default while waiting on the
// network.
func NewSynchronizer(sessionID string, backend Backend, store recovery.Store, options ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		sessionID: sessionID,
		backend:   backend,
		store:     store,
		state:     session.DefaultUnifiedState(),
		logger:    log.Logger,
	}
	for _, o := range options {
		o(s)
	}

	if err := store.SetSessionID(sessionID); err != nil {
		s.logger.Warn().Err(err).Msg("could not persist session id")
	}
	if m, ok := store.GetModalityPreference(); ok {
		s.state.Modality = m
	}
	if v, ok := store.GetVoiceEnabled(); ok {
		s.state.VoiceEnabled = v
	}
	if p, ok := store.GetPendingData(); ok {
		s.state.Pending = p
	}

	return s
}

// State returns a clone of the mirror. Only Synchronizer operations mutate
// the mirror itself.
func (s *Synchronizer) State() *session.UnifiedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// SyncErrors returns how many preference writes were absorbed after a
// backend failure since construction.
func (s *Synchronizer) SyncErrors() int64 {
	return s.syncErrors.Load()
}

// FetchState overwrites the mirror with the backend's canonical state and
// writes the modality preference and voice flag through to the recovery
// store. A backend response that leaves the modality unset does not revert a
// locally held preference; the backend has to explicitly disagree.
func (s *Synchronizer) FetchState(ctx context.Context) (*session.UnifiedState, error) {
	fetched, err := s.backend.FetchState(ctx, s.sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch session state")
	}
	if fetched == nil {
		fetched = session.DefaultUnifiedState()
	}

	s.mu.Lock()
	if fetched.Modality == "" {
		fetched.Modality = s.state.Modality
	}
	s.state = fetched.Clone()
	state := s.state.Clone()
	s.mu.Unlock()

	if err := s.store.SetModalityPreference(state.Modality); err != nil {
		s.logger.Warn().Err(err).Msg("could not persist modality preference")
	}
	if err := s.store.SetVoiceEnabled(state.VoiceEnabled); err != nil {
		s.logger.Warn().Err(err).Msg("could not persist voice flag")
	}
	if err := s.store.SetPendingData(state.Pending); err != nil {
		s.logger.Warn().Err(err).Msg("could not persist pending data snapshot")
	}

	return state, nil
}

// SetModality updates the local mirror immediately, persists the preference,
// then notifies the backend best-effort. A backend failure is logged and
// absorbed; the optimistic local value is never rolled back, so the surface
// does not flicker on a transient sync failure.
func (s *Synchronizer) SetModality(ctx context.Context, next session.Modality) {
	s.mu.Lock()
	s.state.Modality = next
	s.mu.Unlock()

	if err := s.store.SetModalityPreference(next); err != nil {
		s.logger.Warn().Err(err).Msg("could not persist modality preference")
	}

	if err := s.backend.SetModality(ctx, s.sessionID, next); err != nil {
		s.syncErrors.Add(1)
		s.logger.Warn().Err(err).Str("modality", string(next)).Msg("backend modality sync failed, keeping local value")
	}
}

// SetVoiceEnabled follows the same optimistic policy as SetModality.
func (s *Synchronizer) SetVoiceEnabled(ctx context.Context, enabled bool) {
	s.mu.Lock()
	s.state.VoiceEnabled = enabled
	s.mu.Unlock()

	if err := s.store.SetVoiceEnabled(enabled); err != nil {
		s.logger.Warn().Err(err).Msg("could not persist voice flag")
	}
}

// SetPending mirrors a pending data request announced by a terminal frame,
// persisting the snapshot for reload recovery.
func (s *Synchronizer) SetPending(p *session.PendingDataRequest) {
	s.mu.Lock()
	s.state.Pending = p.Clone()
	s.mu.Unlock()

	if err := s.store.SetPendingData(p); err != nil {
		s.logger.Warn().Err(err).Msg("could not persist pending data snapshot")
	}
}

// MergeData merges collected fields locally, forwards them to the backend
// merge endpoint, and replaces the mirror with the authoritative response.
// A backend failure here is returned to the caller: merged data silently
// lost would corrupt a multi-turn collection flow.
func (s *Synchronizer) MergeData(ctx context.Context, fields map[string]any) (*session.UnifiedState, error) {
	s.mu.Lock()
	if s.state.Pending != nil {
		s.state.Pending.Merge(fields)
	}
	if s.state.CollectedFields == nil {
		s.state.CollectedFields = map[string]any{}
	}
	for k, v := range fields {
		s.state.CollectedFields[k] = v
	}
	s.mu.Unlock()

	if err := s.store.UpdatePendingDataFields(fields); err != nil {
		s.logger.Warn().Err(err).Msg("could not persist pending data fields")
	}

	merged, err := s.backend.MergeData(ctx, s.sessionID, fields)
	if err != nil {
		return nil, errors.Wrap(err, "backend merge failed")
	}

	s.mu.Lock()
	if merged != nil {
		if merged.Modality == "" {
			merged.Modality = s.state.Modality
		}
		s.state = merged.Clone()
	}
	state := s.state.Clone()
	s.mu.Unlock()

	return state, nil
}

// GetPrefillData is a pure read with a safe empty-object fallback on
// failure.
func (s *Synchronizer) GetPrefillData(ctx context.Context, intent string) map[string]any {
	data, err := s.backend.PrefillData(ctx, s.sessionID, intent)
	if err != nil {
		s.logger.Warn().Err(err).Str("intent", intent).Msg("prefill fetch failed, returning empty data")
		return map[string]any{}
	}
	if data == nil {
		return map[string]any{}
	}
	return data
}

// ClearState wipes local and backend state and resets the mirror to its
// defaults. A backend failure during clear is logged only.
func (s *Synchronizer) ClearState(ctx context.Context) {
	s.mu.Lock()
	s.state = session.DefaultUnifiedState()
	s.mu.Unlock()

	if err := s.store.ClearAll(); err != nil {
		s.logger.Warn().Err(err).Msg("could not clear recovery store")
	}
	if err := s.backend.ClearState(ctx, s.sessionID); err != nil {
		s.logger.Warn().Err(err).Msg("backend clear failed")
	}
}
