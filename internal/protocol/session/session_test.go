package session

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/danmuck/fxchange/internal/protocol/frame"
	"github.com/danmuck/fxchange/internal/testutil/testlog"
	"github.com/danmuck/fxchange/internal/transfer"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(cfg, 3, rng)
	if got < 500*time.Millisecond || got > 1500*time.Millisecond {
		t.Fatalf("attempt3 jitter out of range: %v", got)
	}
}

func TestSleepBackoffHonorsContext(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := BackoffConfig{InitialDelay: time.Hour}
	if err := SleepBackoff(ctx, cfg, 1, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	testlog.Start(t)
	s := New("127.0.0.1:5555")
	if s.State() != StateUnauthenticated || s.Authenticated() {
		t.Fatalf("new session should be unauthenticated, got %s", s.State())
	}
	if s.ID() == "" {
		t.Fatalf("expected session id")
	}

	tc := transfer.NewContext(transfer.Download, "report.txt", 10)
	if err := s.BeginTransfer(tc); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected transfer before auth to fail, got %v", err)
	}
	if err := s.Authenticate("user"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := s.Authenticate("user"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected second authenticate to fail, got %v", err)
	}
	if err := s.BeginTransfer(tc); err != nil {
		t.Fatalf("begin transfer: %v", err)
	}
	if s.State() != StateTransferring || !s.Authenticated() {
		t.Fatalf("expected transferring, got %s", s.State())
	}
	snap := s.Snapshot()
	if snap.Transfer == nil || snap.Transfer.Name != "report.txt" || snap.Username != "user" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if err := s.BeginTransfer(tc); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected nested transfer to fail, got %v", err)
	}
	if err := s.EndTransfer(); err != nil {
		t.Fatalf("end transfer: %v", err)
	}
	if s.Transfer() != nil || s.State() != StateAuthenticated {
		t.Fatalf("expected idle authenticated session, got %s", s.State())
	}

	s.Close()
	s.Close()
	if s.State() != StateClosed || s.Authenticated() {
		t.Fatalf("expected closed, got %s", s.State())
	}
	if err := s.EndTransfer(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected end transfer on closed session to fail, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateUnauthenticated, StateAuthenticated, true},
		{StateUnauthenticated, StateTransferring, false},
		{StateAuthenticated, StateTransferring, true},
		{StateTransferring, StateAuthenticated, true},
		{StateTransferring, StateTransferring, false},
		{StateClosed, StateAuthenticated, false},
		{StateTransferring, StateClosed, true},
		{StateAuthenticated, StateUnauthenticated, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestConnRoundTripObfuscated(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	cfg := DefaultConfig()
	cfg.ReadTimeout = 2 * time.Second
	ca, cb := NewConn(a, cfg), NewConn(b, cfg)
	defer ca.Close()
	defer cb.Close()

	go func() {
		_ = ca.Send([]byte("AUTH user pass123"))
	}()
	got, err := cb.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(got) != "AUTH user pass123" {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestConnKeyMismatchGarblesPayload(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	cfg := DefaultConfig()
	other := cfg
	other.ObfuscationKey = "otherkey"
	ca, cb := NewConn(a, cfg), NewConn(b, other)
	defer ca.Close()
	defer cb.Close()

	go func() {
		_ = ca.Send([]byte("LIST"))
	}()
	got, err := cb.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(got) == "LIST" {
		t.Fatalf("expected mismatched keys to garble payload")
	}
}

func TestConnReceiveDeadline(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	defer a.Close()
	cfg := DefaultConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	c := NewConn(b, cfg)
	defer c.Close()

	if _, err := c.ReceiveIdle(); !errors.Is(err, frame.ErrConnectionClosed) {
		t.Fatalf("expected deadline to surface as connection closed, got %v", err)
	}
}
