package controller

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mento/pkg/events"
	"github.com/go-go-golems/mento/pkg/modality"
	"github.com/go-go-golems/mento/pkg/session"
	"github.com/go-go-golems/mento/pkg/transport"
	"github.com/go-go-golems/mento/pkg/uitree"
)

// Well-known action names leaves dispatch at the controller.
const (
	ActionSubmitForm  = "submit_form"
	ActionSendMessage = "send_message"
)

// Controller drives one chat session: terminal frames become turns, trees
// become render contexts, and collected fields flow through the
// synchronizer back to the backend.
type Controller struct {
	client   *transport.Client
	session  *session.Session
	sync     *modality.Synchronizer
	renderer *uitree.Renderer
	logger   zerolog.Logger

	typing atomic.Bool

	// OnSurfaceError receives error-frame messages; they surface without
	// mutating the turn log.
	OnSurfaceError func(message string)
	// OnTurn is invoked for every appended assistant turn.
	OnTurn func(t *session.Turn)
	// OnAction receives actions the controller does not consume itself.
	OnAction func(a uitree.Action)

	unsubs []func()
}

type ControllerOption func(*Controller)

func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithRenderer(r *uitree.Renderer) ControllerOption {
	return func(c *Controller) {
		c.renderer = r
	}
}

func New(client *transport.Client, sess *session.Session, sync *modality.Synchronizer, options ...ControllerOption) *Controller {
	c := &Controller{
		client:   client,
		session:  sess,
		sync:     sync,
		renderer: uitree.NewRenderer(nil),
		logger:   log.With().Str("session_id", sess.ID()).Logger(),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Start subscribes the controller to the client's frame classes. Stop
// revokes the subscriptions.
func (c *Controller) Start() {
	c.unsubs = append(c.unsubs,
		c.client.OnChunk(c.handleChunk),
		c.client.OnComplete(c.handleComplete),
		c.client.OnError(c.handleError),
		c.client.OnStatus(c.handleStatus),
	)
}

func (c *Controller) Stop() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

// IsTyping reports whether the assistant is mid-turn.
func (c *Controller) IsTyping() bool {
	return c.typing.Load()
}

func (c *Controller) Session() *session.Session {
	return c.session
}

func (c *Controller) Synchronizer() *modality.Synchronizer {
	return c.sync
}

// SendMessage appends the user turn and sends it over the stream, stamped
// with its source modality.
func (c *Controller) SendMessage(ctx context.Context, content string, isVoice bool) error {
	if err := c.client.Send(ctx, content, isVoice); err != nil {
		return err
	}
	c.session.AppendTurn(session.NewTurn(session.RoleUser, content))
	c.typing.Store(true)
	return nil
}

// RenderTurn renders a turn's tree into a view plus the render context that
// owns the tree's form-data store. Each call builds a fresh context: no two
// concurrently rendered trees share a store. The store is seeded with the
// pending request's already collected fields so the tree prefills.
func (c *Controller) RenderTurn(t *session.Turn) (string, *uitree.RenderContext) {
	var seed map[string]any
	if st := c.sync.State(); st.Pending != nil {
		seed = st.Pending.CollectedFields
	}
	rc := uitree.NewRenderContextWithData(c.handleAction, seed)
	if t == nil || t.Tree == nil {
		return "", rc
	}
	return c.renderer.Render(t.Tree, rc), rc
}

// SubmitForm merges the collected fields into canonical state over the
// request channel; a merge failure is returned to the caller. The stream is
// then notified with the distinct field-submission frame, best-effort.
func (c *Controller) SubmitForm(ctx context.Context, formID string, fields map[string]any) error {
	if len(fields) == 0 {
		return errors.New("no fields to submit")
	}
	if _, err := c.sync.MergeData(ctx, fields); err != nil {
		return err
	}
	if err := c.client.SendFormSubmission(ctx, formID, fields); err != nil {
		c.logger.Warn().Err(err).Str("form_id", formID).Msg("could not notify stream of form submission")
	}
	c.typing.Store(true)
	return nil
}

// AbandonPendingFlow drops the pending data request without submitting.
func (c *Controller) AbandonPendingFlow() {
	c.sync.SetPending(nil)
}

// PrefillFor fetches known field values for an intent, with an empty-map
// fallback, and returns a render context seeded with them.
func (c *Controller) PrefillFor(ctx context.Context, intent string) *uitree.RenderContext {
	return uitree.NewRenderContextWithData(c.handleAction, c.sync.GetPrefillData(ctx, intent))
}

func (c *Controller) handleAction(a uitree.Action) {
	switch a.Name {
	case ActionSubmitForm:
		formID, _ := a.Data["form_id"].(string)
		fields, _ := a.Data["fields"].(map[string]any)
		if err := c.SubmitForm(context.Background(), formID, fields); err != nil {
			c.logger.Error().Err(err).Str("form_id", formID).Msg("form submission failed")
			if c.OnSurfaceError != nil {
				c.OnSurfaceError(err.Error())
			}
		}
	case ActionSendMessage:
		content, _ := a.Data["content"].(string)
		if err := c.SendMessage(context.Background(), content, false); err != nil {
			c.logger.Error().Err(err).Msg("could not send message")
			if c.OnSurfaceError != nil {
				c.OnSurfaceError(err.Error())
			}
		}
	default:
		if c.OnAction != nil {
			c.OnAction(a)
		} else {
			c.logger.Debug().Str("action", a.Name).Msg("unconsumed action")
		}
	}
}

func (c *Controller) handleChunk(f *events.ChunkFrame) {
	// a chunk only signals "still producing"; it never reaches the turn log
	c.typing.Store(true)
	c.session.BeginStreaming()
}

func (c *Controller) handleComplete(f *events.CompleteFrame) {
	c.typing.Store(false)

	turn := session.NewTurn(session.RoleAssistant, f.Response.Message)
	turn.Mode = f.Response.Mode
	turn.Tree = f.Response.UITree
	turn.Pending = f.Response.PendingDataRequest
	c.session.CloseStreaming(turn)

	if f.Response.PendingDataRequest != nil {
		c.sync.SetPending(f.Response.PendingDataRequest)
	}

	if c.OnTurn != nil {
		c.OnTurn(turn)
	}
}

func (c *Controller) handleError(f *events.ErrorFrame) {
	c.typing.Store(false)
	if c.OnSurfaceError != nil {
		c.OnSurfaceError(f.Message)
	}
}

func (c *Controller) handleStatus(f *events.StatusFrame) {
	c.session.SetConnState(f.State)
}
