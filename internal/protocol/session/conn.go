package session

import (
	"net"
	"time"

	"github.com/danmuck/fxchange/internal/protocol/frame"
	"github.com/danmuck/fxchange/internal/protocol/obfs"
)

// Conn is a message-oriented view of one stream connection. Every payload is
// obfuscated and framed on the way out and unframed and restored on the way in.
type Conn struct {
	raw       net.Conn
	transform obfs.Transformer
	cfg       Config
}

func NewConn(raw net.Conn, cfg Config) *Conn {
	cfg = cfg.WithDefaults()
	return &Conn{
		raw:       raw,
		transform: obfs.New(cfg.ObfuscationKey),
		cfg:       cfg,
	}
}

// Send writes one message under the write deadline.
func (c *Conn) Send(payload []byte) error {
	_ = c.raw.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return frame.WriteFrame(c.raw, c.transform.Transform(payload), c.cfg.Limits)
}

// Receive reads one message under the in-operation read deadline.
func (c *Conn) Receive() ([]byte, error) {
	return c.receive(c.cfg.ReadTimeout)
}

// ReceiveIdle reads one message under the idle deadline. It is used while
// waiting for the peer to start its next operation.
func (c *Conn) ReceiveIdle() ([]byte, error) {
	return c.receive(c.cfg.IdleTimeout)
}

func (c *Conn) receive(timeout time.Duration) ([]byte, error) {
	_ = c.raw.SetReadDeadline(time.Now().Add(timeout))
	payload, err := frame.ReadFrame(c.raw, c.cfg.Limits)
	if err != nil {
		return nil, err
	}
	return c.transform.Transform(payload), nil
}

func (c *Conn) RemoteAddr() string {
	if addr := c.raw.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *Conn) Close() error {
	return c.raw.Close()
}
