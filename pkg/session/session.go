package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-go-golems/mento/pkg/uitree"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConnState is the connection lifecycle state of a session.
type ConnState string

const (
	ConnStateDisconnected ConnState = "disconnected"
	ConnStateConnecting   ConnState = "connecting"
	ConnStateConnected    ConnState = "connected"
	ConnStateError        ConnState = "error"
)

// Turn is one message exchange unit in the session log. Turns are appended,
// never edited, except that a streaming turn accumulates delta text until a
// terminal frame closes it.
type Turn struct {
	ID      uuid.UUID           `json:"id"`
	Role    Role                `json:"role"`
	Content string              `json:"content"`
	Time    time.Time           `json:"time"`
	Mode    string              `json:"mode,omitempty"`
	Tree    *uitree.Node        `json:"ui_tree,omitempty"`
	Pending *PendingDataRequest `json:"pending_data_request,omitempty"`
}

func NewTurn(role Role, content string) *Turn {
	return &Turn{
		ID:      uuid.New(),
		Role:    role,
		Content: content,
		Time:    time.Now(),
	}
}

// Session owns the ordered turn log and the connection lifecycle state for
// one session id. The lifecycle state is mutated only by connection events.
type Session struct {
	mu        sync.RWMutex
	id        string
	connState ConnState
	turns     []*Turn
	streaming *Turn
}

func New(id string) *Session {
	return &Session{
		id:        id,
		connState: ConnStateDisconnected,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) ConnState() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connState
}

func (s *Session) SetConnState(state ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connState = state
}

// AppendTurn appends a closed turn. Turns land in the log strictly in the
// order their terminal frames arrive.
func (s *Session) AppendTurn(t *Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

// Turns returns a copy of the turn log.
func (s *Session) Turns() []*Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) LastTurn() *Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return nil
	}
	return s.turns[len(s.turns)-1]
}

// BeginStreaming opens an assistant turn that accumulates deltas. Calling it
// while a streaming turn is already open keeps the open one.
func (s *Session) BeginStreaming() *Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming == nil {
		s.streaming = NewTurn(RoleAssistant, "")
	}
	return s.streaming
}

// AppendDelta adds partial text to the open streaming turn, opening one if
// needed. Deltas are never appended to the turn log themselves.
func (s *Session) AppendDelta(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming == nil {
		s.streaming = NewTurn(RoleAssistant, "")
	}
	s.streaming.Content += delta
}

// StreamingTurn returns the open streaming turn, if any.
func (s *Session) StreamingTurn() *Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaming
}

// CloseStreaming closes the open streaming turn and appends the final turn
// to the log. The terminal frame carries the authoritative content, so the
// accumulated deltas are discarded in its favor.
func (s *Session) CloseStreaming(final *Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = nil
	if final != nil {
		s.turns = append(s.turns, final)
	}
}
