package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// TCPDialer speaks newline-delimited JSON frames over a TCP connection. The
// first outbound frame is a hello carrying the session id, which is how the
// connection address is parameterized by session.
type TCPDialer struct {
	Addr string
}

func NewTCPDialer(addr string) *TCPDialer {
	return &TCPDialer{Addr: addr}
}

var _ Dialer = (*TCPDialer)(nil)

type helloFrame struct {
	SessionID string `json:"session_id"`
}

func (d *TCPDialer) Dial(ctx context.Context, sessionID string) (FrameConn, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "could not dial %s", d.Addr)
	}

	fc := newLineConn(conn)
	hello, err := json.Marshal(helloFrame{SessionID: sessionID})
	if err != nil {
		_ = fc.Close()
		return nil, err
	}
	if err := fc.WriteFrame(hello); err != nil {
		_ = fc.Close()
		return nil, errors.Wrap(err, "could not send session hello")
	}
	return fc, nil
}

// lineConn frames payloads as single JSON documents separated by newlines.
type lineConn struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
}

var _ FrameConn = (*lineConn)(nil)

func newLineConn(conn net.Conn) *lineConn {
	return &lineConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

func (c *lineConn) ReadFrame() ([]byte, error) {
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	// strip the delimiter, tolerate \r\n
	line = line[:len(line)-1]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line, nil
}

func (c *lineConn) WriteFrame(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

func (c *lineConn) Close() error {
	return c.conn.Close()
}
