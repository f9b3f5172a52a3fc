package modality

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/mento/pkg/recovery"
	"github.com/go-go-golems/mento/pkg/session"
)

// mockBackend implements Backend against an in-memory canonical state.
type mockBackend struct {
	state *session.UnifiedState

	fetchErr error
	setErr   error
	mergeErr error
	prefills map[string]map[string]any

	setModalityCalls int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		state:    session.DefaultUnifiedState(),
		prefills: map[string]map[string]any{},
	}
}

func (m *mockBackend) FetchState(_ context.Context, _ string) (*session.UnifiedState, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.state.Clone(), nil
}

func (m *mockBackend) SetModality(_ context.Context, _ string, mod session.Modality) error {
	m.setModalityCalls++
	if m.setErr != nil {
		return m.setErr
	}
	m.state.Modality = mod
	return nil
}

func (m *mockBackend) MergeData(_ context.Context, _ string, fields map[string]any) (*session.UnifiedState, error) {
	if m.mergeErr != nil {
		return nil, m.mergeErr
	}
	if m.state.CollectedFields == nil {
		m.state.CollectedFields = map[string]any{}
	}
	for k, v := range fields {
		m.state.CollectedFields[k] = v
	}
	if m.state.Pending != nil {
		m.state.Pending.Merge(fields)
	}
	return m.state.Clone(), nil
}

func (m *mockBackend) PrefillData(_ context.Context, _ string, intent string) (map[string]any, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.prefills[intent], nil
}

func (m *mockBackend) ClearState(_ context.Context, _ string) error {
	m.state = session.DefaultUnifiedState()
	return nil
}

var _ Backend = (*mockBackend)(nil)

func TestRecoveryLoadsBeforeFetch(t *testing.T) {
	store := recovery.NewMemoryStore()
	require.NoError(t, store.SetModalityPreference(session.ModalityVoice))
	require.NoError(t, store.SetVoiceEnabled(true))

	// construction alone must surface the recovered values, no network
	s := NewSynchronizer("s1", newMockBackend(), store)

	st := s.State()
	assert.Equal(t, session.ModalityVoice, st.Modality)
	assert.True(t, st.VoiceEnabled)

	id, ok := store.GetSessionID()
	require.True(t, ok)
	assert.Equal(t, "s1", id)
}

func TestFetchStateOverwritesMirrorAndPersists(t *testing.T) {
	backend := newMockBackend()
	backend.state.Modality = session.ModalityVoice
	backend.state.VoiceEnabled = true
	backend.state.Pending = &session.PendingDataRequest{Intent: "daily_checkin"}

	store := recovery.NewMemoryStore()
	s := NewSynchronizer("s1", backend, store)

	st, err := s.FetchState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.ModalityVoice, st.Modality)
	assert.True(t, st.VoiceEnabled)

	m, ok := store.GetModalityPreference()
	require.True(t, ok)
	assert.Equal(t, session.ModalityVoice, m)
	p, ok := store.GetPendingData()
	require.True(t, ok)
	assert.Equal(t, "daily_checkin", p.Intent)
}

func TestSetModalityOfflineIsOptimistic(t *testing.T) {
	backend := newMockBackend()
	backend.setErr = errors.New("backend unreachable")

	s := NewSynchronizer("s1", backend, recovery.NewMemoryStore())
	s.SetModality(context.Background(), session.ModalityVoice)

	// the failure is absorbed, the optimistic value stays
	assert.Equal(t, session.ModalityVoice, s.State().Modality)
	assert.Equal(t, int64(1), s.SyncErrors())

	// once the backend is back, a fetch that does not explicitly disagree
	// must not revert the preference
	backend.setErr = nil
	backend.state.Modality = ""
	st, err := s.FetchState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.ModalityVoice, st.Modality)

	// an explicit disagreement wins
	backend.state.Modality = session.ModalityChat
	st, err = s.FetchState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.ModalityChat, st.Modality)
}

func TestMergeDataRoundTrip(t *testing.T) {
	backend := newMockBackend()
	backend.state.Pending = &session.PendingDataRequest{
		Intent:         "daily_checkin",
		RequiredFields: []string{"a"},
	}

	s := NewSynchronizer("s1", backend, recovery.NewMemoryStore())

	_, err := s.MergeData(context.Background(), map[string]any{"a": 1})
	require.NoError(t, err)

	st, err := s.FetchState(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st.Pending)
	assert.Equal(t, 1, st.Pending.CollectedFields["a"].(int))
	assert.Equal(t, 1, st.CollectedFields["a"].(int))
}

func TestMergeDataFailureIsReturned(t *testing.T) {
	backend := newMockBackend()
	backend.mergeErr = errors.New("merge endpoint down")

	s := NewSynchronizer("s1", backend, recovery.NewMemoryStore())

	_, err := s.MergeData(context.Background(), map[string]any{"a": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge endpoint down")
}

func TestGetPrefillDataFallsBackToEmpty(t *testing.T) {
	backend := newMockBackend()
	backend.prefills["daily_checkin"] = map[string]any{"energy": 7}

	s := NewSynchronizer("s1", backend, recovery.NewMemoryStore())

	data := s.GetPrefillData(context.Background(), "daily_checkin")
	assert.Equal(t, 7, data["energy"].(int))

	backend.fetchErr = errors.New("unreachable")
	data = s.GetPrefillData(context.Background(), "daily_checkin")
	require.NotNil(t, data)
	assert.Empty(t, data)

	// unknown intent also degrades to an empty object
	backend.fetchErr = nil
	data = s.GetPrefillData(context.Background(), "unknown")
	require.NotNil(t, data)
	assert.Empty(t, data)
}

func TestClearStateResetsEverything(t *testing.T) {
	backend := newMockBackend()
	store := recovery.NewMemoryStore()
	s := NewSynchronizer("s1", backend, store)

	s.SetModality(context.Background(), session.ModalityVoice)
	_, err := s.MergeData(context.Background(), map[string]any{"a": 1})
	require.NoError(t, err)

	s.ClearState(context.Background())

	st := s.State()
	assert.Equal(t, session.ModalityChat, st.Modality)
	assert.Empty(t, st.CollectedFields)
	assert.Nil(t, st.Pending)
	assert.False(t, store.HasRecoverableState())
}

func TestSetPendingPersistsSnapshot(t *testing.T) {
	store := recovery.NewMemoryStore()
	s := NewSynchronizer("s1", newMockBackend(), store)

	s.SetPending(&session.PendingDataRequest{Intent: "daily_checkin", RequiredFields: []string{"energy"}})

	p, ok := store.GetPendingData()
	require.True(t, ok)
	assert.Equal(t, "daily_checkin", p.Intent)

	// a reload recovers the pending flow from the store
	recovered := NewSynchronizer("s1", newMockBackend(), store)
	require.NotNil(t, recovered.State().Pending)
	assert.Equal(t, "daily_checkin", recovered.State().Pending.Intent)
}
