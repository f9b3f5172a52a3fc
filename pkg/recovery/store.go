package recovery

import "github.com/go-go-golems/mento/pkg/session"

// Store is the key/value persistence surface the synchronizer uses to
// survive a reload without losing in-flight form state. The core never
// assumes a particular medium, only that writes are immediately visible to
// subsequent reads within the same process.
type Store interface {
	HasRecoverableState() bool

	GetModalityPreference() (session.Modality, bool)
	SetModalityPreference(m session.Modality) error

	GetVoiceEnabled() (bool, bool)
	SetVoiceEnabled(enabled bool) error

	GetPendingData() (*session.PendingDataRequest, bool)
	UpdatePendingDataFields(fields map[string]any) error
	SetPendingData(p *session.PendingDataRequest) error

	SetSessionID(id string) error
	GetSessionID() (string, bool)

	ClearAll() error
}
