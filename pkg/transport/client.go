package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mento/pkg/events"
	"github.com/go-go-golems/mento/pkg/session"
)

// Watermill topics classified frames are published to when a
// PublisherManager is attached.
const (
	TopicChunk    = "chat.chunk"
	TopicComplete = "chat.complete"
	TopicError    = "chat.error"
	TopicStatus   = "chat.status"
)

var (
	// ErrNotConnected is returned by Send and SendFormSubmission when the
	// client has no open connection.
	ErrNotConnected = errors.New("not connected")
)

// Client owns one streaming connection per session id. It classifies
// inbound frames into chunk, complete, error and status, notifies typed
// subscribers per class, and reconnects automatically with exponential
// backoff under a bounded retry budget.
//
// Subscriber callbacks run on the client's internal goroutines and must not
// block; status callbacks additionally must not call back into the Client.
type Client struct {
	sessionID string
	dialer    Dialer
	logger    zerolog.Logger

	baseDelay time.Duration
	maxDelay  time.Duration
	budgetCfg int

	pubs *events.PublisherManager

	mu       sync.Mutex
	conn     FrameConn
	state    session.ConnState
	attempts int // reconnect attempts since the last successful connect
	budget   int // remaining attempt ceiling; Disconnect zeroes it
	closing  bool
	dialCtx  context.Context
	timer    *time.Timer

	subs subscribers
}

type ClientOption func(*Client)

// WithBaseDelay sets the backoff base; attempt n waits baseDelay x 2^(n-1).
func WithBaseDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// WithMaxDelay caps the backoff delay. Zero leaves the delay uncapped; the
// retry budget keeps it finite either way.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithRetryBudget sets how many reconnect attempts may run before the
// client goes terminally disconnected.
func WithRetryBudget(n int) ClientOption {
	return func(c *Client) {
		c.budgetCfg = n
	}
}

// WithPublisherManager attaches a watermill publisher fan-out; every
// classified frame is additionally published to its class topic.
func WithPublisherManager(pm *events.PublisherManager) ClientOption {
	return func(c *Client) {
		c.pubs = pm
	}
}

func WithClientLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(sessionID string, dialer Dialer, options ...ClientOption) *Client {
	c := &Client{
		sessionID: sessionID,
		dialer:    dialer,
		logger:    log.With().Str("session_id", sessionID).Logger(),
		baseDelay: 500 * time.Millisecond,
		budgetCfg: 5,
		state:     session.ConnStateDisconnected,
	}
	for _, o := range options {
		o(c)
	}
	c.budget = c.budgetCfg
	c.subs.init()
	return c
}

func (c *Client) SessionID() string {
	return c.sessionID
}

// State returns the connection lifecycle state.
func (c *Client) State() session.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the connection for the session id. It is idempotent if the
// connection is already open or opening. After a Disconnect, Connect is a
// fresh start: the retry budget is restored and no old timers resume.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == session.ConnStateConnected || c.state == session.ConnStateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.closing = false
	c.budget = c.budgetCfg
	c.attempts = 0
	c.dialCtx = ctx
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.setStateLocked(session.ConnStateConnecting)
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}
	if err != nil {
		c.setStateLocked(session.ConnStateError)
		c.scheduleReconnectLocked()
		return errors.Wrap(err, "could not connect")
	}

	c.adoptConnLocked(conn)
	return nil
}

// Disconnect sets the retry budget to zero before closing, guaranteeing no
// resurrection after an intentional close. Pending reconnect timers are
// cancelled; an in-flight backend request cannot be cancelled and its
// response must be discarded by the caller.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.budget = 0
	c.closing = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(session.ConnStateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Send sends a user message over the stream. It fails when not connected.
func (c *Client) Send(ctx context.Context, content string, isVoice bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := c.openConn()
	if err != nil {
		return err
	}
	b, err := json.Marshal(events.MessageFrame{Content: content, IsVoice: isVoice})
	if err != nil {
		return err
	}
	return errors.Wrap(conn.WriteFrame(b), "could not send message")
}

// SendFormSubmission sends the distinct field-submission frame.
func (c *Client) SendFormSubmission(ctx context.Context, formID string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := c.openConn()
	if err != nil {
		return err
	}
	b, err := json.Marshal(events.FormSubmissionFrame{FormID: formID, Data: data})
	if err != nil {
		return err
	}
	return errors.Wrap(conn.WriteFrame(b), "could not send form submission")
}

func (c *Client) openConn() (FrameConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != session.ConnStateConnected || c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// OnChunk registers a subscriber for chunk frames and returns its
// unsubscribe handle. Multiple subscribers per class are allowed and all
// are notified.
func (c *Client) OnChunk(fn func(*events.ChunkFrame)) func() {
	return c.subs.addChunk(fn)
}

func (c *Client) OnComplete(fn func(*events.CompleteFrame)) func() {
	return c.subs.addComplete(fn)
}

func (c *Client) OnError(fn func(*events.ErrorFrame)) func() {
	return c.subs.addError(fn)
}

func (c *Client) OnStatus(fn func(*events.StatusFrame)) func() {
	return c.subs.addStatus(fn)
}

// adoptConnLocked installs a freshly dialed connection and starts its read
// loop. Caller holds c.mu.
func (c *Client) adoptConnLocked(conn FrameConn) {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.attempts = 0
	c.setStateLocked(session.ConnStateConnected)
	go c.readLoop(conn)
}

// readLoop drains one connection. It exits before any reconnect is
// scheduled, so the loop and the backoff timer never run concurrently for
// the same connection.
func (c *Client) readLoop(conn FrameConn) {
	for {
		b, err := conn.ReadFrame()
		if err != nil {
			c.handleConnectionLoss(conn, err)
			return
		}

		frame, err := events.DecodeFrame(b)
		if err != nil {
			c.logger.Debug().Err(err).Msg("skipping undecodable frame")
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame events.Frame) {
	switch f := frame.(type) {
	case *events.ChunkFrame:
		c.logger.Trace().Object("frame", f).Msg("chunk frame")
		c.subs.notifyChunk(f)
		if c.pubs != nil {
			c.pubs.PublishBlind(TopicChunk, f)
		}
	case *events.CompleteFrame:
		c.logger.Debug().Object("frame", *f).Msg("complete frame")
		c.subs.notifyComplete(f)
		if c.pubs != nil {
			c.pubs.PublishBlind(TopicComplete, f)
		}
	case *events.ErrorFrame:
		c.logger.Warn().Object("frame", *f).Msg("error frame")
		c.subs.notifyError(f)
		if c.pubs != nil {
			c.pubs.PublishBlind(TopicError, f)
		}
	case *events.StatusFrame:
		// status frames are client-synthesized; one arriving on the wire is
		// forwarded to status subscribers as-is
		c.subs.notifyStatus(f)
	default:
		c.logger.Warn().Str("type", string(frame.Type())).Msg("unhandled frame class")
	}
}

func (c *Client) handleConnectionLoss(conn FrameConn, err error) {
	_ = conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		// an intentional Disconnect or a newer connection already replaced
		// this one
		return
	}
	c.conn = nil
	if c.closing {
		return
	}
	c.logger.Warn().Err(err).Msg("connection lost")
	c.setStateLocked(session.ConnStateError)
	c.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the backoff timer for the next reconnect
// attempt, or goes terminally disconnected once the budget is exhausted.
// Caller holds c.mu.
func (c *Client) scheduleReconnectLocked() {
	if c.attempts >= c.budget {
		c.logger.Warn().Int("attempts", c.attempts).Msg("retry budget exhausted, staying disconnected")
		c.setStateLocked(session.ConnStateDisconnected)
		return
	}
	c.attempts++
	n := c.attempts

	delay := backoffDelay(c.baseDelay, c.maxDelay, n)
	c.logger.Info().Int("attempt", n).Dur("delay", delay).Msg("scheduling reconnect")
	c.timer = time.AfterFunc(delay, c.attemptReconnect)
}

// backoffDelay is the wait before reconnect attempt n (1-based): baseDelay
// x 2^(n-1), capped by maxDelay when set.
func backoffDelay(baseDelay, maxDelay time.Duration, n int) time.Duration {
	delay := baseDelay << uint(n-1)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func (c *Client) attemptReconnect() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(session.ConnStateConnecting)
	ctx := c.dialCtx
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := c.dialer.Dial(ctx, c.sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.logger.Warn().Err(err).Int("attempt", c.attempts).Msg("reconnect failed")
		c.setStateLocked(session.ConnStateError)
		c.scheduleReconnectLocked()
		return
	}
	c.logger.Info().Int("attempt", c.attempts).Msg("reconnected")
	c.adoptConnLocked(conn)
}

// setStateLocked records a lifecycle transition and synthesizes the status
// frame for subscribers. Caller holds c.mu.
func (c *Client) setStateLocked(state session.ConnState) {
	if c.state == state {
		return
	}
	c.state = state
	f := events.NewStatusFrame(events.FrameMetadata{SessionID: c.sessionID}, state, c.attempts)
	c.subs.notifyStatus(f)
	if c.pubs != nil {
		c.pubs.PublishBlind(TopicStatus, f)
	}
}

// subscribers holds the per-class callback registries. Each registration
// returns an independently revocable unsubscribe handle.
type subscribers struct {
	mu       sync.Mutex
	nextID   int
	chunk    map[int]func(*events.ChunkFrame)
	complete map[int]func(*events.CompleteFrame)
	errs     map[int]func(*events.ErrorFrame)
	status   map[int]func(*events.StatusFrame)
}

func (s *subscribers) init() {
	s.chunk = map[int]func(*events.ChunkFrame){}
	s.complete = map[int]func(*events.CompleteFrame){}
	s.errs = map[int]func(*events.ErrorFrame){}
	s.status = map[int]func(*events.StatusFrame){}
}

func (s *subscribers) addChunk(fn func(*events.ChunkFrame)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.chunk[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.chunk, id)
	}
}

func (s *subscribers) addComplete(fn func(*events.CompleteFrame)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.complete[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.complete, id)
	}
}

func (s *subscribers) addError(fn func(*events.ErrorFrame)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.errs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.errs, id)
	}
}

func (s *subscribers) addStatus(fn func(*events.StatusFrame)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.status[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.status, id)
	}
}

func (s *subscribers) notifyChunk(f *events.ChunkFrame) {
	for _, fn := range s.snapshotChunk() {
		fn(f)
	}
}

func (s *subscribers) notifyComplete(f *events.CompleteFrame) {
	for _, fn := range s.snapshotComplete() {
		fn(f)
	}
}

func (s *subscribers) notifyError(f *events.ErrorFrame) {
	for _, fn := range s.snapshotError() {
		fn(f)
	}
}

func (s *subscribers) notifyStatus(f *events.StatusFrame) {
	for _, fn := range s.snapshotStatus() {
		fn(f)
	}
}

func (s *subscribers) snapshotChunk() []func(*events.ChunkFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(*events.ChunkFrame), 0, len(s.chunk))
	for _, fn := range s.chunk {
		out = append(out, fn)
	}
	return out
}

func (s *subscribers) snapshotComplete() []func(*events.CompleteFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(*events.CompleteFrame), 0, len(s.complete))
	for _, fn := range s.complete {
		out = append(out, fn)
	}
	return out
}

func (s *subscribers) snapshotError() []func(*events.ErrorFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(*events.ErrorFrame), 0, len(s.errs))
	for _, fn := range s.errs {
		out = append(out, fn)
	}
	return out
}

func (s *subscribers) snapshotStatus() []func(*events.StatusFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(*events.StatusFrame), 0, len(s.status))
	for _, fn := range s.status {
		out = append(out, fn)
	}
	return out
}
