package controller

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/mento/pkg/events"
	"github.com/go-go-golems/mento/pkg/modality"
	"github.com/go-go-golems/mento/pkg/recovery"
	"github.com/go-go-golems/mento/pkg/session"
	"github.com/go-go-golems/mento/pkg/transport"
	"github.com/go-go-golems/mento/pkg/uitree"
)

// stubBackend is a minimal canonical-state backend for controller tests.
type stubBackend struct {
	state    *session.UnifiedState
	mergeErr error
}

func newStubBackend() *stubBackend {
	return &stubBackend{state: session.DefaultUnifiedState()}
}

func (b *stubBackend) FetchState(context.Context, string) (*session.UnifiedState, error) {
	return b.state.Clone(), nil
}

func (b *stubBackend) SetModality(_ context.Context, _ string, mod session.Modality) error {
	b.state.Modality = mod
	return nil
}

func (b *stubBackend) MergeData(_ context.Context, _ string, fields map[string]any) (*session.UnifiedState, error) {
	if b.mergeErr != nil {
		return nil, b.mergeErr
	}
	if b.state.CollectedFields == nil {
		b.state.CollectedFields = map[string]any{}
	}
	for k, v := range fields {
		b.state.CollectedFields[k] = v
	}
	return b.state.Clone(), nil
}

func (b *stubBackend) PrefillData(context.Context, string, string) (map[string]any, error) {
	return map[string]any{"energy": 7}, nil
}

func (b *stubBackend) ClearState(context.Context, string) error {
	b.state = session.DefaultUnifiedState()
	return nil
}

var _ modality.Backend = (*stubBackend)(nil)

type testRig struct {
	controller *Controller
	client     *transport.Client
	server     *transport.ChannelConn
	backend    *stubBackend
	sync       *modality.Synchronizer
	session    *session.Session
}

func newTestRig(t *testing.T, options ...ControllerOption) *testRig {
	t.Helper()

	clientConn, serverConn := transport.NewChannelPipe()
	dialer := transport.DialerFunc(func(context.Context, string) (transport.FrameConn, error) {
		return clientConn, nil
	})

	client := transport.NewClient("s1", dialer, transport.WithRetryBudget(0))
	backend := newStubBackend()
	sync := modality.NewSynchronizer("s1", backend, recovery.NewMemoryStore())
	sess := session.New("s1")

	c := New(client, sess, sync, options...)
	c.Start()
	require.NoError(t, client.Connect(context.Background()))

	t.Cleanup(func() {
		c.Stop()
		client.Disconnect()
	})

	return &testRig{
		controller: c,
		client:     client,
		server:     serverConn,
		backend:    backend,
		sync:       sync,
		session:    sess,
	}
}

func waitTurn(t *testing.T, turns <-chan *session.Turn) *session.Turn {
	t.Helper()
	select {
	case turn := <-turns:
		return turn
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for turn")
		return nil
	}
}

func TestCompleteFrameBecomesAssistantTurn(t *testing.T) {
	rig := newTestRig(t)

	turns := make(chan *session.Turn, 1)
	rig.controller.OnTurn = func(turn *session.Turn) {
		turns <- turn
	}

	require.NoError(t, rig.server.WriteFrame([]byte(`{
		"type": "complete",
		"response": {
			"message": "Welcome",
			"mode": "checkin",
			"ui_tree": {"type": "EnergySelector", "properties": {"field": "energy"}},
			"pending_data_request": {
				"intent": "daily_checkin",
				"required_fields": ["energy"],
				"prompt": "How is your energy today?"
			}
		}
	}`)))

	turn := waitTurn(t, turns)
	assert.Equal(t, session.RoleAssistant, turn.Role)
	assert.Equal(t, "Welcome", turn.Content)
	assert.Equal(t, "checkin", turn.Mode)
	require.NotNil(t, turn.Tree)
	assert.Equal(t, "EnergySelector", turn.Tree.Type)

	logged := rig.session.Turns()
	require.Len(t, logged, 1)
	assert.Same(t, turn, logged[0])

	// the pending data request flows into the synchronizer
	pending := rig.sync.State().Pending
	require.NotNil(t, pending)
	assert.Equal(t, "daily_checkin", pending.Intent)
	assert.False(t, rig.controller.IsTyping())
}

func TestChunkSetsTypingWithoutLoggingTurns(t *testing.T) {
	rig := newTestRig(t)

	require.NoError(t, rig.server.WriteFrame([]byte(`{"type": "chunk"}`)))

	require.Eventually(t, rig.controller.IsTyping, 5*time.Second, time.Millisecond)
	assert.Empty(t, rig.session.Turns())
	assert.NotNil(t, rig.session.StreamingTurn())
}

func TestErrorFrameSurfacesWithoutTurn(t *testing.T) {
	rig := newTestRig(t)

	surfaced := make(chan string, 1)
	rig.controller.OnSurfaceError = func(msg string) {
		surfaced <- msg
	}

	require.NoError(t, rig.server.WriteFrame([]byte(`{"type": "error", "message": "backend overloaded"}`)))

	select {
	case msg := <-surfaced:
		assert.Equal(t, "backend overloaded", msg)
	case <-time.After(5 * time.Second):
		t.Fatal("error never surfaced")
	}
	assert.Empty(t, rig.session.Turns())
}

func TestSendMessageAppendsUserTurn(t *testing.T) {
	rig := newTestRig(t)

	require.NoError(t, rig.controller.SendMessage(context.Background(), "hello", false))

	turns := rig.session.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)
	assert.True(t, rig.controller.IsTyping())

	b, err := rig.server.ReadFrame()
	require.NoError(t, err)
	var msg events.MessageFrame
	require.NoError(t, json.Unmarshal(b, &msg))
	assert.Equal(t, "hello", msg.Content)
	assert.False(t, msg.IsVoice)
}

func TestSendMessageFailureKeepsLogClean(t *testing.T) {
	rig := newTestRig(t)
	rig.client.Disconnect()

	err := rig.controller.SendMessage(context.Background(), "hello", false)
	require.Error(t, err)
	assert.Empty(t, rig.session.Turns())
}

func TestRenderTurnWithRegisteredPrimitive(t *testing.T) {
	reg := uitree.NewRegistry()
	reg.MustRegister("EnergySelector", func(n *uitree.Node, _ []string, rc *uitree.RenderContext) (string, error) {
		field := n.StringProp("field", "")
		if v, ok := rc.FormData()[field]; ok {
			return "energy: set to " + v.(string), nil
		}
		return "energy: unset", nil
	})

	rig := newTestRig(t, WithRenderer(uitree.NewRenderer(reg)))

	turn := session.NewTurn(session.RoleAssistant, "Welcome")
	turn.Tree = &uitree.Node{Type: "EnergySelector", Properties: map[string]any{"field": "energy"}}

	view, rc := rig.controller.RenderTurn(turn)
	assert.Equal(t, "energy: unset", view)
	assert.NotContains(t, view, "unsupported component")
	require.NotNil(t, rc)

	// fields already collected on the pending request prefill the next render
	rig.sync.SetPending(&session.PendingDataRequest{
		Intent:          "daily_checkin",
		RequiredFields:  []string{"energy"},
		CollectedFields: map[string]any{"energy": "7"},
	})
	view, _ = rig.controller.RenderTurn(turn)
	assert.Equal(t, "energy: set to 7", view)
}

func TestRenderTurnUnknownTypeRendersPlaceholder(t *testing.T) {
	rig := newTestRig(t, WithRenderer(uitree.NewRenderer(uitree.NewRegistry())))

	turn := session.NewTurn(session.RoleAssistant, "Welcome")
	turn.Tree = &uitree.Node{Type: "HoloDeck"}

	view, _ := rig.controller.RenderTurn(turn)
	assert.True(t, strings.Contains(view, "[unsupported component: HoloDeck]"))
}

func TestRenderTurnWithoutTree(t *testing.T) {
	rig := newTestRig(t)

	view, rc := rig.controller.RenderTurn(session.NewTurn(session.RoleAssistant, "just text"))
	assert.Empty(t, view)
	require.NotNil(t, rc)

	view, rc = rig.controller.RenderTurn(nil)
	assert.Empty(t, view)
	require.NotNil(t, rc)
}

func TestSubmitFormMergesAndNotifiesStream(t *testing.T) {
	rig := newTestRig(t)

	require.NoError(t, rig.controller.SubmitForm(context.Background(), "checkin", map[string]any{"energy": 7}))
	assert.True(t, rig.controller.IsTyping())

	st := rig.sync.State()
	assert.Equal(t, 7, st.CollectedFields["energy"].(int))

	b, err := rig.server.ReadFrame()
	require.NoError(t, err)
	var form events.FormSubmissionFrame
	require.NoError(t, json.Unmarshal(b, &form))
	assert.Equal(t, "checkin", form.FormID)
}

func TestSubmitFormMergeFailureIsReturned(t *testing.T) {
	rig := newTestRig(t)
	rig.backend.mergeErr = errors.New("merge endpoint down")

	err := rig.controller.SubmitForm(context.Background(), "checkin", map[string]any{"energy": 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge endpoint down")

	err = rig.controller.SubmitForm(context.Background(), "checkin", nil)
	require.Error(t, err)
}

func TestSubmitFormActionRoutesThroughDispatch(t *testing.T) {
	rig := newTestRig(t)

	turn := session.NewTurn(session.RoleAssistant, "Welcome")
	turn.Tree = &uitree.Node{Type: "Text"}
	_, rc := rig.controller.RenderTurn(turn)

	rc.Dispatch(uitree.Action{
		Name: ActionSubmitForm,
		Data: map[string]any{
			"form_id": "checkin",
			"fields":  map[string]any{"energy": 7},
		},
	})

	assert.Equal(t, 7, rig.sync.State().CollectedFields["energy"].(int))
}

func TestUnknownActionGoesToHook(t *testing.T) {
	rig := newTestRig(t)

	var got uitree.Action
	rig.controller.OnAction = func(a uitree.Action) {
		got = a
	}

	_, rc := rig.controller.RenderTurn(nil)
	rc.Dispatch(uitree.Action{Name: "open_settings"})
	assert.Equal(t, "open_settings", got.Name)
}

func TestAbandonPendingFlow(t *testing.T) {
	rig := newTestRig(t)

	rig.sync.SetPending(&session.PendingDataRequest{Intent: "daily_checkin"})
	require.NotNil(t, rig.sync.State().Pending)

	rig.controller.AbandonPendingFlow()
	assert.Nil(t, rig.sync.State().Pending)
}

func TestStatusFrameUpdatesSessionConnState(t *testing.T) {
	rig := newTestRig(t)

	require.Eventually(t, func() bool {
		return rig.session.ConnState() == session.ConnStateConnected
	}, 5*time.Second, time.Millisecond)

	rig.client.Disconnect()
	require.Eventually(t, func() bool {
		return rig.session.ConnState() == session.ConnStateDisconnected
	}, 5*time.Second, time.Millisecond)
}

func TestPrefillForSeedsRenderContext(t *testing.T) {
	rig := newTestRig(t)

	rc := rig.controller.PrefillFor(context.Background(), "daily_checkin")
	assert.Equal(t, 7, rc.FormData()["energy"].(int))
}
