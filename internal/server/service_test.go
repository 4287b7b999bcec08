package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/fxchange/internal/auth"
	"github.com/danmuck/fxchange/internal/protocol"
	"github.com/danmuck/fxchange/internal/protocol/session"
	"github.com/danmuck/fxchange/internal/store"
	"github.com/danmuck/fxchange/internal/testutil/testlog"
)

func testSessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.IdleTimeout = 2 * time.Second
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	return cfg
}

type fixture struct {
	svc    *Service
	files  *store.Store
	addr   string
	cancel context.CancelFunc
	done   chan error
}

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	return newTestServiceWith(t, nil)
}

func newTestServiceWith(t *testing.T, mutate func(*ServiceConfig)) (*Service, *store.Store) {
	t.Helper()
	files, err := store.New(filepath.Join(t.TempDir(), "server_files"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(files.Root(), "report.txt"), []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	creds, err := auth.NewTable([]auth.Credential{
		{User: "user", Password: "pass123"},
		{User: "admin", Password: "adminpass"},
	})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	cfg := DefaultServiceConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Session = testSessionConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(cfg, creds, files)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, files
}

func startService(t *testing.T) *fixture {
	t.Helper()
	svc, files := newTestService(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{svc: svc, files: files, addr: ln.Addr().String(), cancel: cancel, done: make(chan error, 1)}
	go func() {
		f.done <- svc.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(3 * time.Second):
			t.Errorf("serve did not exit")
		}
	})
	return f
}

func dialSession(t *testing.T, addr string) *session.Conn {
	t.Helper()
	raw, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := session.NewConn(raw, testSessionConfig())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func exchange(t *testing.T, c *session.Conn, payload string) string {
	t.Helper()
	if err := c.Send([]byte(payload)); err != nil {
		t.Fatalf("send %q: %v", payload, err)
	}
	reply, err := c.Receive()
	if err != nil {
		t.Fatalf("receive after %q: %v", payload, err)
	}
	return string(reply)
}

func expectReply(t *testing.T, c *session.Conn, payload, want string) {
	t.Helper()
	if got := exchange(t, c, payload); got != want {
		t.Fatalf("%q: expected %q, got %q", payload, want, got)
	}
}

func TestServiceAuthListDownload(t *testing.T) {
	testlog.Start(t)
	f := startService(t)
	c := dialSession(t, f.addr)

	expectReply(t, c, "AUTH user pass123", protocol.StatusAuthSuccess)
	expectReply(t, c, "LIST", "report.txt")
	expectReply(t, c, "DOWNLOAD report.txt", "OK_DOWNLOAD 10")

	if err := c.Send([]byte(protocol.ReplyStart)); err != nil {
		t.Fatalf("send start: %v", err)
	}
	var got bytes.Buffer
	for got.Len() < 10 {
		chunk, err := c.Receive()
		if err != nil {
			t.Fatalf("receive chunk: %v", err)
		}
		got.Write(chunk)
	}
	if got.String() != "0123456789" {
		t.Fatalf("unexpected content: %q", got.String())
	}
	done, err := c.Receive()
	if err != nil {
		t.Fatalf("receive done marker: %v", err)
	}
	if string(done) != protocol.StatusDownloadDone {
		t.Fatalf("expected %s, got %q", protocol.StatusDownloadDone, done)
	}

	expectReply(t, c, "LIST", "report.txt")
	if err := c.Send(protocol.QuitCommand().Encode()); err != nil {
		t.Fatalf("send quit: %v", err)
	}
	if _, err := c.Receive(); !errors.Is(err, protocol.ErrConnectionClosed) {
		t.Fatalf("expected connection closed after quit, got %v", err)
	}
}

func TestServiceRejectsBadCredentialsThenAccepts(t *testing.T) {
	testlog.Start(t)
	f := startService(t)
	c := dialSession(t, f.addr)

	expectReply(t, c, "AUTH user wrong", protocol.StatusAuthFail)
	expectReply(t, c, "LIST", "ERROR Authentication required.")
	expectReply(t, c, "AUTH admin adminpass", protocol.StatusAuthSuccess)
	expectReply(t, c, "AUTH admin adminpass", "ERROR Already authenticated.")
}

func TestServiceCommandRejections(t *testing.T) {
	testlog.Start(t)
	f := startService(t)
	c := dialSession(t, f.addr)

	expectReply(t, c, "FROB", "ERROR Unknown command.")
	expectReply(t, c, "", "ERROR Unknown command.")
	expectReply(t, c, "DOWNLOAD", "ERROR Authentication required.")
	expectReply(t, c, "UPLOAD x.bin 10", "ERROR Authentication required.")
	expectReply(t, c, "AUTH user", "ERROR Malformed command.")

	expectReply(t, c, "AUTH user pass123", protocol.StatusAuthSuccess)
	expectReply(t, c, "DOWNLOAD", "ERROR Malformed command.")
	expectReply(t, c, "UPLOAD x.bin lots", "ERROR Malformed command.")
	expectReply(t, c, "UPLOAD x.bin -1", "ERROR Malformed command.")
	expectReply(t, c, "DOWNLOAD ../secret", "ERROR Invalid file name.")
	expectReply(t, c, "DOWNLOAD missing.txt", "ERROR File not found.")
	expectReply(t, c, "LIST", "report.txt")
}

func TestServiceDownloadCancelKeepsSession(t *testing.T) {
	testlog.Start(t)
	f := startService(t)
	c := dialSession(t, f.addr)

	expectReply(t, c, "AUTH user pass123", protocol.StatusAuthSuccess)
	expectReply(t, c, "DOWNLOAD report.txt", "OK_DOWNLOAD 10")
	if err := c.Send([]byte(protocol.ReplyCancel)); err != nil {
		t.Fatalf("send cancel: %v", err)
	}
	expectReply(t, c, "LIST", "report.txt")

	expectReply(t, c, "DOWNLOAD report.txt", "OK_DOWNLOAD 10")
	expectReply(t, c, "LIST", "ERROR Malformed command.")
	expectReply(t, c, "LIST", "report.txt")
}

func TestServiceOversizedListingKeepsSession(t *testing.T) {
	testlog.Start(t)
	svc, files := newTestServiceWith(t, func(cfg *ServiceConfig) {
		cfg.ChunkSize = 64
		cfg.Session.Limits.MaxPayloadBytes = 128
	})
	for i := 0; i < 8; i++ {
		name := filepath.Join(files.Root(), fmt.Sprintf("%s-%02d.dat", strings.Repeat("n", 24), i))
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	serverEnd, clientEnd := net.Pipe()
	result := make(chan error, 1)
	go func() {
		result <- svc.ServeConn(serverEnd)
	}()

	c := session.NewConn(clientEnd, testSessionConfig())
	expectReply(t, c, "AUTH user pass123", protocol.StatusAuthSuccess)
	expectReply(t, c, "LIST", "ERROR Listing too large.")
	expectReply(t, c, "DOWNLOAD report.txt", "OK_DOWNLOAD 10")
	if err := c.Send([]byte(protocol.ReplyCancel)); err != nil {
		t.Fatalf("send cancel: %v", err)
	}
	if err := c.Send(protocol.QuitCommand().Encode()); err != nil {
		t.Fatalf("send quit: %v", err)
	}

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("expected clean quit, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not end")
	}
	_ = c.Close()
}

func TestServiceUploadThenDownload(t *testing.T) {
	testlog.Start(t)
	f := startService(t)
	c := dialSession(t, f.addr)

	body := bytes.Repeat([]byte("abcdefgh"), 700)
	expectReply(t, c, "AUTH user pass123", protocol.StatusAuthSuccess)
	expectReply(t, c, "UPLOAD data.bin 5600", protocol.StatusOKUpload)
	for off := 0; off < len(body); off += 2048 {
		end := min(off+2048, len(body))
		if err := c.Send(body[off:end]); err != nil {
			t.Fatalf("send chunk: %v", err)
		}
	}
	reply, err := c.Receive()
	if err != nil {
		t.Fatalf("receive upload status: %v", err)
	}
	if string(reply) != protocol.StatusUploadSuccess {
		t.Fatalf("expected upload success, got %q", reply)
	}

	stored, err := os.ReadFile(filepath.Join(f.files.Root(), "data.bin"))
	if err != nil {
		t.Fatalf("read stored: %v", err)
	}
	if !bytes.Equal(stored, body) {
		t.Fatalf("stored content mismatch: %d bytes", len(stored))
	}
	expectReply(t, c, "LIST", "data.bin\nreport.txt")
}

func TestServiceBusyFile(t *testing.T) {
	testlog.Start(t)
	f := startService(t)
	w, err := f.files.Create("locked.txt")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer w.Close()

	c := dialSession(t, f.addr)
	expectReply(t, c, "AUTH user pass123", protocol.StatusAuthSuccess)
	expectReply(t, c, "DOWNLOAD locked.txt", "ERROR File is busy.")
	expectReply(t, c, "UPLOAD locked.txt 4", "ERROR File is busy.")
}

func TestServeConnUploadDisconnectKeepsPartialFile(t *testing.T) {
	testlog.Start(t)
	svc, files := newTestService(t)
	serverEnd, clientEnd := net.Pipe()

	result := make(chan error, 1)
	go func() {
		result <- svc.ServeConn(serverEnd)
	}()

	c := session.NewConn(clientEnd, testSessionConfig())
	expectReply(t, c, "AUTH user pass123", protocol.StatusAuthSuccess)
	expectReply(t, c, "UPLOAD partial.bin 1000", protocol.StatusOKUpload)
	for i := 0; i < 2; i++ {
		if err := c.Send(bytes.Repeat([]byte{'z'}, 200)); err != nil {
			t.Fatalf("send chunk: %v", err)
		}
	}
	_ = c.Close()

	select {
	case err := <-result:
		if !errors.Is(err, protocol.ErrIncompleteTransfer) {
			t.Fatalf("expected incomplete transfer, got %v", err)
		}
		if !errors.Is(err, protocol.ErrConnectionClosed) {
			t.Fatalf("expected connection closed cause, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not end")
	}

	info, err := os.Stat(filepath.Join(files.Root(), "partial.bin"))
	if err != nil {
		t.Fatalf("stat partial: %v", err)
	}
	if info.Size() != 400 {
		t.Fatalf("expected 400 bytes on disk, got %d", info.Size())
	}
	if svc.ActiveSessions() != 0 {
		t.Fatalf("expected no active sessions, got %d", svc.ActiveSessions())
	}
}

func TestServiceShutdownClosesSessions(t *testing.T) {
	testlog.Start(t)
	svc, _ := newTestService(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx, ln)
	}()

	c := dialSession(t, ln.Addr().String())
	expectReply(t, c, "AUTH user pass123", protocol.StatusAuthSuccess)
	if n := len(svc.Sessions()); n != 1 {
		t.Fatalf("expected one live session, got %d", n)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve exit err: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("serve did not exit")
	}
	if _, err := c.Receive(); !errors.Is(err, protocol.ErrConnectionClosed) {
		t.Fatalf("expected closed connection, got %v", err)
	}
	if svc.ActiveSessions() != 0 {
		t.Fatalf("expected no active sessions, got %d", svc.ActiveSessions())
	}
}

func TestServiceConcurrentClients(t *testing.T) {
	testlog.Start(t)
	f := startService(t)

	const clients = 4
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		go func() {
			raw, err := net.DialTimeout("tcp", f.addr, 2*time.Second)
			if err != nil {
				errs <- err
				return
			}
			c := session.NewConn(raw, testSessionConfig())
			defer c.Close()
			for _, step := range []struct{ send, want string }{
				{"AUTH user pass123", protocol.StatusAuthSuccess},
				{"LIST", "report.txt"},
			} {
				if err := c.Send([]byte(step.send)); err != nil {
					errs <- err
					return
				}
				reply, err := c.Receive()
				if err != nil {
					errs <- err
					return
				}
				if string(reply) != step.want {
					errs <- errors.New("unexpected reply " + string(reply))
					return
				}
			}
			errs <- nil
		}()
	}
	for i := 0; i < clients; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("client %d: %v", i, err)
		}
	}
}

func TestServiceConfigValidate(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultServiceConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg.ChunkSize = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative chunk size to fail")
	}
	cfg = DefaultServiceConfig()
	cfg.ChunkSize = int(cfg.Session.Limits.MaxPayloadBytes) + 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected oversized chunk to fail")
	}
}
