package modality

import (
	"context"

	"github.com/go-go-golems/mento/pkg/session"
)

// Backend is the request/response surface of the dialogue backend, reached
// over plain calls rather than the stream. Authentication happens out of
// band.
type Backend interface {
	// FetchState returns the canonical session state.
	FetchState(ctx context.Context, sessionID string) (*session.UnifiedState, error)

	// SetModality records the modality preference.
	SetModality(ctx context.Context, sessionID string, m session.Modality) error

	// MergeData merges collected fields into the canonical state and returns
	// the authoritative state after the merge.
	MergeData(ctx context.Context, sessionID string, fields map[string]any) (*session.UnifiedState, error)

	// PrefillData returns previously known field values for an intent.
	PrefillData(ctx context.Context, sessionID string, intent string) (map[string]any, error)

	// ClearState wipes the backend-side session state.
	ClearState(ctx context.Context, sessionID string) error
}
