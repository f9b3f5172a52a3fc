package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/mento/pkg/session"
	"github.com/go-go-golems/mento/pkg/uitree"
)

type FrameType string

const (
	// FrameTypeChunk signals "still producing"; it carries no turn payload
	// and must never be appended to the turn log.
	FrameTypeChunk FrameType = "chunk"
	// FrameTypeComplete is the terminal frame of an assistant turn, carrying
	// message text, optional tree and optional pending-data-request.
	FrameTypeComplete FrameType = "complete"
	FrameTypeError    FrameType = "error"
	// FrameTypeStatus frames are synthesized client-side on connection
	// lifecycle transitions; they never arrive on the wire.
	FrameTypeStatus FrameType = "status"
)

type Frame interface {
	Type() FrameType
	Metadata() FrameMetadata
	Payload() []byte
}

// FrameMetadata carries the correlation identifiers attached to every frame.
type FrameMetadata struct {
	ID        uuid.UUID      `json:"frame_id" mapstructure:"frame_id"`
	SessionID string         `json:"session_id,omitempty" mapstructure:"session_id"`
	TurnID    string         `json:"turn_id,omitempty" mapstructure:"turn_id"`
	Extra     map[string]any `json:"extra,omitempty" mapstructure:"extra"`
}

func (fm FrameMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("frame_id", fm.ID.String())
	if fm.SessionID != "" {
		e.Str("session_id", fm.SessionID)
	}
	if fm.TurnID != "" {
		e.Str("turn_id", fm.TurnID)
	}
	if len(fm.Extra) > 0 {
		e.Dict("extra", zerolog.Dict().Fields(fm.Extra))
	}
}

type FrameImpl struct {
	Type_     FrameType     `json:"type"`
	Metadata_ FrameMetadata `json:"meta,omitempty"`

	// raw payload when the frame was deserialized from the wire
	payload []byte
}

func (f *FrameImpl) Type() FrameType {
	return f.Type_
}

func (f *FrameImpl) Metadata() FrameMetadata {
	return f.Metadata_
}

func (f *FrameImpl) Payload() []byte {
	return f.payload
}

// SetPayload stores the raw wire payload on the frame. Used by DecodeFrame
// and external decoders.
func (f *FrameImpl) SetPayload(b []byte) {
	f.payload = b
}

func (f *FrameImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(f.Type_))
	ev.Object("meta", f.Metadata_)
}

var _ Frame = &FrameImpl{}

// ChunkFrame signals that the assistant is still producing. It carries no
// turn payload.
type ChunkFrame struct {
	FrameImpl
}

func NewChunkFrame(metadata FrameMetadata) *ChunkFrame {
	return &ChunkFrame{
		FrameImpl: FrameImpl{Type_: FrameTypeChunk, Metadata_: metadata},
	}
}

var _ Frame = &ChunkFrame{}

// TurnResponse is the payload of a terminal frame: the full assistant turn.
type TurnResponse struct {
	Message            string                      `json:"message"`
	Mode               string                      `json:"mode,omitempty"`
	UITree             *uitree.Node                `json:"ui_tree,omitempty"`
	PendingDataRequest *session.PendingDataRequest `json:"pending_data_request,omitempty"`
}

type CompleteFrame struct {
	FrameImpl
	Response TurnResponse `json:"response"`
}

func NewCompleteFrame(metadata FrameMetadata, response TurnResponse) *CompleteFrame {
	return &CompleteFrame{
		FrameImpl: FrameImpl{Type_: FrameTypeComplete, Metadata_: metadata},
		Response:  response,
	}
}

func (f CompleteFrame) MarshalZerologObject(ev *zerolog.Event) {
	f.FrameImpl.MarshalZerologObject(ev)
	ev.Str("message", f.Response.Message)
	if f.Response.Mode != "" {
		ev.Str("mode", f.Response.Mode)
	}
	ev.Bool("has_tree", f.Response.UITree != nil)
	ev.Bool("has_pending", f.Response.PendingDataRequest != nil)
}

var _ Frame = &CompleteFrame{}

type ErrorFrame struct {
	FrameImpl
	Message string `json:"message"`
}

func NewErrorFrame(metadata FrameMetadata, message string) *ErrorFrame {
	return &ErrorFrame{
		FrameImpl: FrameImpl{Type_: FrameTypeError, Metadata_: metadata},
		Message:   message,
	}
}

func (f ErrorFrame) MarshalZerologObject(ev *zerolog.Event) {
	f.FrameImpl.MarshalZerologObject(ev)
	ev.Str("message", f.Message)
}

var _ Frame = &ErrorFrame{}

// StatusFrame reports a connection lifecycle transition to status
// subscribers. Attempt is the reconnect attempt counter at the time of the
// transition, zero outside reconnection.
type StatusFrame struct {
	FrameImpl
	State   session.ConnState `json:"state"`
	Attempt int               `json:"attempt,omitempty"`
}

func NewStatusFrame(metadata FrameMetadata, state session.ConnState, attempt int) *StatusFrame {
	return &StatusFrame{
		FrameImpl: FrameImpl{Type_: FrameTypeStatus, Metadata_: metadata},
		State:     state,
		Attempt:   attempt,
	}
}

func (f StatusFrame) MarshalZerologObject(ev *zerolog.Event) {
	f.FrameImpl.MarshalZerologObject(ev)
	ev.Str("state", string(f.State))
	ev.Int("attempt", f.Attempt)
}

var _ Frame = &StatusFrame{}

// MessageFrame is the outbound frame for a user message.
type MessageFrame struct {
	Content string `json:"content"`
	IsVoice bool   `json:"is_voice"`
}

// FormSubmissionFrame is the outbound field-submission frame, distinct from
// a text message.
type FormSubmissionFrame struct {
	FormID string         `json:"formId"`
	Data   map[string]any `json:"data"`
}

// ErrEmptyFrame is returned when the wire delivers an empty payload.
var ErrEmptyFrame = errors.New("empty frame payload")

// DecodeFrame classifies an inbound wire payload. Payloads that do not
// decode as a known frame schema degrade to a complete frame carrying the
// raw text as plain assistant content; the client must remain usable when
// the wire format drifts.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) == 0 {
		return nil, ErrEmptyFrame
	}

	var hdr struct {
		Type FrameType `json:"type"`
	}
	_ = json.Unmarshal(b, &hdr)

	// External decoders get first pick for custom frame types.
	if hdr.Type != "" {
		if dec := lookupDecoder(string(hdr.Type)); dec != nil {
			if f, err := dec(b); err == nil && f != nil {
				if setter, ok := f.(interface{ SetPayload([]byte) }); ok {
					setter.SetPayload(b)
				}
				return f, nil
			}
		}
	}

	switch hdr.Type {
	case FrameTypeChunk:
		f := &ChunkFrame{}
		if err := json.Unmarshal(b, f); err != nil {
			return plainTextFrame(b), nil
		}
		f.SetPayload(b)
		return f, nil
	case FrameTypeComplete:
		f := &CompleteFrame{}
		if err := json.Unmarshal(b, f); err != nil {
			return plainTextFrame(b), nil
		}
		f.SetPayload(b)
		return f, nil
	case FrameTypeError:
		f := &ErrorFrame{}
		if err := json.Unmarshal(b, f); err != nil {
			return plainTextFrame(b), nil
		}
		f.SetPayload(b)
		return f, nil
	case FrameTypeStatus:
		f := &StatusFrame{}
		if err := json.Unmarshal(b, f); err != nil {
			return plainTextFrame(b), nil
		}
		f.SetPayload(b)
		return f, nil
	}

	return plainTextFrame(b), nil
}

func plainTextFrame(b []byte) *CompleteFrame {
	f := NewCompleteFrame(FrameMetadata{ID: uuid.New()}, TurnResponse{Message: string(b)})
	f.SetPayload(b)
	return f
}
