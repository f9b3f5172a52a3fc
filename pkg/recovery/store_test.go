package recovery

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/mento/pkg/session"
)

func runStoreSuite(t *testing.T, store Store) {
	t.Helper()

	assert.False(t, store.HasRecoverableState())
	_, ok := store.GetModalityPreference()
	assert.False(t, ok)

	require.NoError(t, store.SetSessionID("s1"))
	id, ok := store.GetSessionID()
	require.True(t, ok)
	assert.Equal(t, "s1", id)

	require.NoError(t, store.SetModalityPreference(session.ModalityVoice))
	m, ok := store.GetModalityPreference()
	require.True(t, ok)
	assert.Equal(t, session.ModalityVoice, m)
	assert.True(t, store.HasRecoverableState())

	require.NoError(t, store.SetVoiceEnabled(true))
	v, ok := store.GetVoiceEnabled()
	require.True(t, ok)
	assert.True(t, v)

	require.NoError(t, store.SetPendingData(&session.PendingDataRequest{
		Intent:         "daily_checkin",
		RequiredFields: []string{"energy"},
	}))
	require.NoError(t, store.UpdatePendingDataFields(map[string]any{"energy": 7}))

	p, ok := store.GetPendingData()
	require.True(t, ok)
	assert.Equal(t, "daily_checkin", p.Intent)
	require.NotNil(t, p.CollectedFields)
	assert.NotNil(t, p.CollectedFields["energy"])

	require.NoError(t, store.ClearAll())
	assert.False(t, store.HasRecoverableState())
	_, ok = store.GetSessionID()
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestBoltStore(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "recovery.db"))
	require.NoError(t, err)
	defer func() {
		_ = store.Close()
	}()

	runStoreSuite(t, store)
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.db")

	store, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SetModalityPreference(session.ModalityVoice))
	require.NoError(t, store.UpdatePendingDataFields(map[string]any{"energy": 7}))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(path)
	require.NoError(t, err)
	defer func() {
		_ = reopened.Close()
	}()

	m, ok := reopened.GetModalityPreference()
	require.True(t, ok)
	assert.Equal(t, session.ModalityVoice, m)

	p, ok := reopened.GetPendingData()
	require.True(t, ok)
	assert.EqualValues(t, 7, p.CollectedFields["energy"])
}

func TestMemoryStorePendingIsolation(t *testing.T) {
	store := NewMemoryStore()
	orig := &session.PendingDataRequest{Intent: "x", CollectedFields: map[string]any{"a": 1}}
	require.NoError(t, store.SetPendingData(orig))

	got, ok := store.GetPendingData()
	require.True(t, ok)
	got.CollectedFields["a"] = 2

	again, _ := store.GetPendingData()
	assert.Equal(t, 1, again.CollectedFields["a"].(int))
}
