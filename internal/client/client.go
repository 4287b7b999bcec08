// Package client drives one file-exchange session from the client side.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/danmuck/fxchange/internal/protocol"
	"github.com/danmuck/fxchange/internal/protocol/session"
	"github.com/danmuck/fxchange/internal/store"
	"github.com/danmuck/fxchange/internal/transfer"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("client: server address required")
	ErrAuthRejected    = errors.New("client: authentication rejected")
	ErrClosed          = errors.New("client: session closed")
)

type Config struct {
	Address string
	// Dir is where downloads land and bare upload names are read from.
	Dir                string
	ChunkSize          int
	MaxConnectAttempts int
	Session            session.Config
}

func DefaultConfig() Config {
	return Config{
		Address:            "127.0.0.1:9999",
		Dir:                "client_files",
		ChunkSize:          transfer.DefaultUploadChunkSize,
		MaxConnectAttempts: 5,
		Session:            session.DefaultConfig(),
	}
}

// Client is one connected session. Operations are serialized; only one is
// ever in flight on the connection.
type Client struct {
	cfg Config

	mu    sync.Mutex
	conn  *session.Conn
	state session.State
	user  string
}

// Dial connects to the server, retrying with backoff until
// MaxConnectAttempts is reached (0 retries forever) or ctx ends.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = transfer.DefaultUploadChunkSize
	}
	cfg.Session = cfg.Session.WithDefaults()
	if uint64(cfg.ChunkSize) > uint64(cfg.Session.Limits.MaxPayloadBytes) {
		return nil, fmt.Errorf("client: chunk_size %d exceeds max frame payload %d", cfg.ChunkSize, cfg.Session.Limits.MaxPayloadBytes)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; ; attempt++ {
		dialer := net.Dialer{Timeout: cfg.Session.ConnectTimeout}
		raw, err := dialer.DialContext(ctx, "tcp", cfg.Address)
		if err == nil {
			log.Info().Str("addr", cfg.Address).Int("attempt", attempt).Msg("client.Dial connected")
			return &Client{
				cfg:   cfg,
				conn:  session.NewConn(raw, cfg.Session),
				state: session.StateUnauthenticated,
			}, nil
		}
		log.Warn().Err(err).Str("addr", cfg.Address).Int("attempt", attempt).Msg("client.Dial failed")
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, err
		}
		if err := session.SleepBackoff(ctx, cfg.Session.Backoff, attempt, rng); err != nil {
			return nil, err
		}
	}
}

func (c *Client) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Auth sends credentials. A rejected pair returns ErrAuthRejected and leaves
// the session open for another attempt.
//
// Empty credentials or credentials containing whitespace cannot travel as
// single command arguments; they fail locally with ErrMalformedCommand and
// nothing is sent.
func (c *Client) Auth(user, pass string) error {
	if err := checkCredential("user", user); err != nil {
		return err
	}
	if err := checkCredential("password", pass); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return err
	}
	reply, err := c.roundTrip(protocol.AuthCommand(user, pass).Encode())
	if err != nil {
		return c.fail(err)
	}
	st := protocol.ParseStatus(reply)
	switch {
	case st.Code == protocol.StatusAuthSuccess:
		c.state = session.StateAuthenticated
		c.user = user
		return nil
	case st.Code == protocol.StatusAuthFail:
		return fmt.Errorf("%w: user %q", ErrAuthRejected, user)
	case st.IsError():
		return st.Err()
	default:
		return c.fail(fmt.Errorf("%w: %q", protocol.ErrUnexpectedResponse, st.Code))
	}
}

// List returns the server's file names.
func (c *Client) List() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return nil, err
	}
	reply, err := c.roundTrip(protocol.ListCommand().Encode())
	if err != nil {
		return nil, c.fail(err)
	}
	if st := protocol.ParseStatus(reply); st.IsError() {
		return nil, st.Err()
	}
	return protocol.DecodeListing(reply), nil
}

// Download fetches name into the local directory and returns the byte count
// written. A partial file is left in place when the transfer breaks.
func (c *Client) Download(name string, progress transfer.ProgressFunc) (int64, error) {
	if err := store.ValidateName(name); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return 0, err
	}

	target := filepath.Join(c.cfg.Dir, name)
	create := func(int64) (io.WriteCloser, error) {
		if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
			return nil, err
		}
		return os.Create(target)
	}
	tc, err := transfer.FetchDownload(c.conn, name, create, progress)
	var n int64
	if tc != nil {
		n = tc.Transferred()
	}
	if err != nil {
		return n, c.fail(err)
	}
	log.Info().Str("file", name).Str("path", target).Int64("bytes", n).Msg("client.Download complete")
	return n, nil
}

// Upload sends a local file. A bare name is read from the local directory;
// anything with a path separator is used as given. The remote name is the
// base name.
func (c *Client) Upload(localPath string, progress transfer.ProgressFunc) (int64, error) {
	name := filepath.Base(localPath)
	if err := store.ValidateName(name); err != nil {
		return 0, err
	}
	if !strings.ContainsRune(localPath, os.PathSeparator) && !strings.ContainsRune(localPath, '/') {
		localPath = filepath.Join(c.cfg.Dir, localPath)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return 0, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", protocol.ErrFileNotFound, localPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", protocol.ErrFileNotFound, localPath, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s is not a regular file", protocol.ErrFileNotFound, localPath)
	}

	tc, err := transfer.PushUpload(c.conn, name, f, info.Size(), c.cfg.ChunkSize, progress)
	var n int64
	if tc != nil {
		n = tc.Transferred()
	}
	if err != nil {
		return n, c.fail(err)
	}
	log.Info().Str("file", name).Int64("bytes", n).Msg("client.Upload complete")
	return n, nil
}

// Quit ends the session politely and closes the connection.
func (c *Client) Quit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == session.StateClosed {
		return nil
	}
	err := c.conn.Send(protocol.QuitCommand().Encode())
	c.closeLocked()
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == session.StateClosed {
		return nil
	}
	return c.closeLocked()
}

func checkCredential(field, v string) error {
	if v == "" {
		return fmt.Errorf("%w: empty %s", protocol.ErrMalformedCommand, field)
	}
	if strings.ContainsFunc(v, unicode.IsSpace) {
		return fmt.Errorf("%w: %s contains whitespace", protocol.ErrMalformedCommand, field)
	}
	return nil
}

func (c *Client) ready() error {
	if c.state == session.StateClosed {
		return ErrClosed
	}
	return nil
}

func (c *Client) roundTrip(payload []byte) ([]byte, error) {
	if err := c.conn.Send(payload); err != nil {
		return nil, err
	}
	return c.conn.Receive()
}

// fail closes the session when err leaves the connection unusable.
func (c *Client) fail(err error) error {
	if protocol.IsFatal(err) ||
		errors.Is(err, protocol.ErrUnexpectedResponse) ||
		errors.Is(err, transfer.ErrShortSource) {
		log.Warn().Err(err).Msg("client.session closing after fatal error")
		c.closeLocked()
	}
	return err
}

func (c *Client) closeLocked() error {
	c.state = session.StateClosed
	return c.conn.Close()
}
