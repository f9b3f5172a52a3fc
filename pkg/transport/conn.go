package transport

import (
	"context"
	"io"
	"sync"
)

// FrameConn is one duplex framed connection to the backend stream.
type FrameConn interface {
	// ReadFrame blocks until the next inbound frame payload arrives. It
	// returns io.EOF once the connection is closed.
	ReadFrame() ([]byte, error)
	WriteFrame(b []byte) error
	Close() error
}

// Dialer opens the streaming connection for a session id. The address is
// parameterized by the session id; how is up to the implementation.
type Dialer interface {
	Dial(ctx context.Context, sessionID string) (FrameConn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, sessionID string) (FrameConn, error)

func (f DialerFunc) Dial(ctx context.Context, sessionID string) (FrameConn, error) {
	return f(ctx, sessionID)
}

// ChannelConn is an in-process FrameConn half backed by channels. Both
// halves of a pipe share the closed signal, so closing either side
// terminates reads on both.
type ChannelConn struct {
	in        <-chan []byte
	out       chan<- []byte
	closed    chan struct{}
	closeOnce *sync.Once
}

var _ FrameConn = (*ChannelConn)(nil)

func (c *ChannelConn) ReadFrame() ([]byte, error) {
	select {
	case b, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *ChannelConn) WriteFrame(b []byte) error {
	select {
	case c.out <- b:
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	}
}

func (c *ChannelConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

// NewChannelPipe returns two connected in-process frame connections, used in
// tests and local development.
func NewChannelPipe() (*ChannelConn, *ChannelConn) {
	aToB := make(chan []byte, 16)
	bToA := make(chan []byte, 16)
	closed := make(chan struct{})
	once := &sync.Once{}

	a := &ChannelConn{in: bToA, out: aToB, closed: closed, closeOnce: once}
	b := &ChannelConn{in: aToB, out: bToA, closed: closed, closeOnce: once}
	return a, b
}
