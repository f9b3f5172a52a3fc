package session

import "time"

// Modality is the interaction surface in use, typed chat or voice.
type Modality string

const (
	ModalityChat  Modality = "chat"
	ModalityVoice Modality = "voice"
)

// PendingDataRequest is a backend-declared, partially fulfilled intent that
// needs specific fields before it can proceed. The prompt is usable by a
// non-visual surface to ask for the same fields the tree collects.
type PendingDataRequest struct {
	Intent          string         `json:"intent"`
	RequiredFields  []string       `json:"required_fields"`
	CollectedFields map[string]any `json:"collected_fields,omitempty"`
	Prompt          string         `json:"prompt,omitempty"`
}

// MissingFields returns the required fields not collected yet, in the order
// the backend declared them.
func (p *PendingDataRequest) MissingFields() []string {
	if p == nil {
		return nil
	}
	var missing []string
	for _, f := range p.RequiredFields {
		if _, ok := p.CollectedFields[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Complete reports whether every required field is present.
func (p *PendingDataRequest) Complete() bool {
	return p != nil && len(p.MissingFields()) == 0
}

// Merge adds fields to the collected map, additively. It never removes a
// previously collected value.
func (p *PendingDataRequest) Merge(fields map[string]any) {
	if p == nil || len(fields) == 0 {
		return
	}
	if p.CollectedFields == nil {
		p.CollectedFields = map[string]any{}
	}
	for k, v := range fields {
		p.CollectedFields[k] = v
	}
}

func (p *PendingDataRequest) Clone() *PendingDataRequest {
	if p == nil {
		return nil
	}
	out := &PendingDataRequest{
		Intent: p.Intent,
		Prompt: p.Prompt,
	}
	out.RequiredFields = append(out.RequiredFields, p.RequiredFields...)
	if p.CollectedFields != nil {
		out.CollectedFields = make(map[string]any, len(p.CollectedFields))
		for k, v := range p.CollectedFields {
			out.CollectedFields[k] = v
		}
	}
	return out
}

// TaggedMessage is one entry of the unified message log, stamped with the
// modality it originated from.
type TaggedMessage struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Source  Modality  `json:"source"`
	Time    time.Time `json:"time"`
}

// UnifiedState is the client's mirror of the backend's canonical session
// state. The backend owns it; only the synchronizer's operations mutate the
// mirror.
type UnifiedState struct {
	Modality        Modality            `json:"modality"`
	VoiceEnabled    bool                `json:"voice_enabled"`
	Pending         *PendingDataRequest `json:"pending_data_request,omitempty"`
	CollectedFields map[string]any      `json:"collected_fields,omitempty"`
	Messages        []TaggedMessage     `json:"messages,omitempty"`
}

// DefaultUnifiedState is the mirror's reset value.
func DefaultUnifiedState() *UnifiedState {
	return &UnifiedState{
		Modality:        ModalityChat,
		CollectedFields: map[string]any{},
	}
}

func (u *UnifiedState) Clone() *UnifiedState {
	if u == nil {
		return nil
	}
	out := &UnifiedState{
		Modality:     u.Modality,
		VoiceEnabled: u.VoiceEnabled,
		Pending:      u.Pending.Clone(),
	}
	if u.CollectedFields != nil {
		out.CollectedFields = make(map[string]any, len(u.CollectedFields))
		for k, v := range u.CollectedFields {
			out.CollectedFields[k] = v
		}
	}
	out.Messages = append(out.Messages, u.Messages...)
	return out
}
