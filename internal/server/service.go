package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/fxchange/internal/auth"
	"github.com/danmuck/fxchange/internal/observability"
	"github.com/danmuck/fxchange/internal/protocol/session"
	"github.com/danmuck/fxchange/internal/transfer"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"
)

// FileStore is the directory sessions list, read and write.
type FileStore interface {
	List() ([]string, error)
	Open(name string) (io.ReadCloser, int64, error)
	Create(name string) (io.WriteCloser, error)
}

// ServiceConfig configures the listener and every session it runs.
type ServiceConfig struct {
	ListenAddr      string
	ChunkSize       int
	MaxConnections  int
	AdminListenAddr string
	CorsOrigins     []string
	Session         session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr: ":9999",
		ChunkSize:  transfer.DefaultChunkSize,
		Session:    session.DefaultConfig(),
	}
}

// Validate checks that the config can run.
func (c ServiceConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("server: chunk_size must be positive, got %d", c.ChunkSize)
	}
	if uint64(c.ChunkSize) > uint64(c.Session.Limits.MaxPayloadBytes) {
		return fmt.Errorf("server: chunk_size %d exceeds max frame payload %d", c.ChunkSize, c.Session.Limits.MaxPayloadBytes)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("server: max_connections must not be negative")
	}
	return nil
}

// Service accepts connections and runs one session per connection.
type Service struct {
	cfg   ServiceConfig
	creds auth.Validator
	files FileStore

	connsMu sync.Mutex
	conns   map[*session.Session]*session.Conn
	closing bool

	active  atomic.Int64
	serving atomic.Bool
	wg      sync.WaitGroup
}

func NewService(cfg ServiceConfig, creds auth.Validator, files FileStore) (*Service, error) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServiceConfig().ListenAddr
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = transfer.DefaultChunkSize
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, fmt.Errorf("server: credential validator required")
	}
	if files == nil {
		return nil, fmt.Errorf("server: file store required")
	}
	return &Service{
		cfg:   cfg,
		creds: creds,
		files: files,
		conns: make(map[*session.Session]*session.Conn),
	}, nil
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("server.Service.Run listening")

	adminErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		go func() {
			adminErr <- s.serveAdmin(ctx, addr)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()
	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			log.Error().Err(err).Msg("server.Service.Run admin listener failed")
		}
		return <-serveErr
	}
}

// Serve runs the accept loop on ln until ctx is cancelled, then closes every
// live connection and waits for their handlers to return.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	s.connsMu.Lock()
	s.closing = false
	s.connsMu.Unlock()
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
		s.closeAllConns()
	}()

	s.serving.Store(true)
	defer s.serving.Store(false)

	var delay time.Duration
	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			delay = nextAcceptDelay(delay)
			log.Warn().Err(err).Dur("retry_in", delay).Msg("server.Serve accept failed")
			time.Sleep(delay)
			continue
		}
		delay = 0
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.ServeConn(raw)
		}()
	}
}

// ServeConn runs one session on raw until it closes. The returned error is the
// reason the session ended; nil means the client sent QUIT.
func (s *Service) ServeConn(raw net.Conn) error {
	conn := session.NewConn(raw, s.cfg.Session)
	sess := session.New(conn.RemoteAddr())
	s.trackConn(sess, conn)
	defer s.untrackConn(sess)

	active := s.active.Add(1)
	observability.SessionOpened()
	logger := log.With().Str("session", sess.ID()).Str("remote", sess.Peer()).Logger()
	logger.Info().Int64("active_clients", active).Msg("server.session client connected")

	h := &handler{
		conn:       conn,
		sess:       sess,
		creds:      s.creds,
		files:      s.files,
		chunkSize:  s.cfg.ChunkSize,
		maxPayload: s.cfg.Session.Limits.MaxPayloadBytes,
		log:        logger,
	}
	err := h.run()

	sess.Close()
	_ = conn.Close()
	reason := closeReason(err)
	observability.SessionClosed(reason)
	remaining := s.active.Add(-1)
	ev := logger.Info()
	if err != nil {
		ev = logger.Warn().Err(err)
	}
	ev.Str("reason", reason).Int64("active_clients", remaining).Msg("server.session client disconnected")
	return err
}

// ActiveSessions returns the number of live sessions.
func (s *Service) ActiveSessions() int64 {
	return s.active.Load()
}

// Sessions returns snapshots of live sessions ordered by connect time.
func (s *Service) Sessions() []session.Snapshot {
	s.connsMu.Lock()
	out := make([]session.Snapshot, 0, len(s.conns))
	for sess := range s.conns {
		out = append(out, sess.Snapshot())
	}
	s.connsMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

func (s *Service) trackConn(sess *session.Session, conn *session.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.closing {
		// accepted just before shutdown; the handler sees a closed conn at once
		_ = conn.Close()
	}
	s.conns[sess] = conn
}

func (s *Service) untrackConn(sess *session.Session) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, sess)
}

// closeAllConns unblocks every handler; each then unwinds to Closed.
func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.closing = true
	for _, conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Service) serveAdmin(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.AdminRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("server.serveAdmin listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return 5 * time.Millisecond
	}
	if next := prev * 2; next < time.Second {
		return next
	}
	return time.Second
}
