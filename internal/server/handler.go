package server

import (
	"errors"
	"time"

	"github.com/danmuck/fxchange/internal/auth"
	"github.com/danmuck/fxchange/internal/observability"
	"github.com/danmuck/fxchange/internal/protocol"
	"github.com/danmuck/fxchange/internal/protocol/session"
	"github.com/danmuck/fxchange/internal/transfer"
	"github.com/rs/zerolog"
)

// handler runs the command loop for one connection. It is owned by a single
// goroutine.
type handler struct {
	conn      *session.Conn
	sess      *session.Session
	creds     auth.Validator
	files     FileStore
	chunkSize int
	// maxPayload bounds every frame this handler sends.
	maxPayload uint32
	log        zerolog.Logger
}

// run processes commands until QUIT (nil) or a fatal error.
func (h *handler) run() error {
	for {
		payload, err := h.conn.ReceiveIdle()
		if err != nil {
			return err
		}
		quit, err := h.dispatch(payload)
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
}

// respond sends a status and reports the command outcome.
func (h *handler) respond(verb protocol.Verb, outcome string, payload []byte) error {
	observability.RecordCommand(string(verb), outcome)
	return h.conn.Send(payload)
}

func (h *handler) respondError(verb protocol.Verb, err error) error {
	h.log.Debug().Str("verb", string(verb)).Err(err).Msg("server.handler command rejected")
	return h.respond(verb, outcomeFor(err), protocol.ErrorStatus(err))
}

func (h *handler) handleAuth(cmd protocol.Command) error {
	if h.sess.Authenticated() {
		return h.respondError(cmd.Verb, protocol.ErrAlreadyAuthenticated)
	}
	user, pass := cmd.Args[0], cmd.Args[1]
	if err := h.creds.Validate(user, pass); err != nil {
		observability.RecordAuth(false)
		h.log.Warn().Str("user", user).Msg("server.handler authentication failed")
		return h.respond(cmd.Verb, "auth_fail", []byte(protocol.StatusAuthFail))
	}
	if err := h.sess.Authenticate(user); err != nil {
		return err
	}
	observability.RecordAuth(true)
	h.log.Info().Str("user", user).Msg("server.handler authenticated")
	return h.respond(cmd.Verb, "ok", []byte(protocol.StatusAuthSuccess))
}

func (h *handler) handleList(cmd protocol.Command) error {
	names, err := h.files.List()
	if err != nil {
		h.log.Error().Err(err).Msg("server.handler list failed")
		return h.respondError(cmd.Verb, err)
	}
	listing := protocol.EncodeListing(names)
	if uint64(len(listing)) > uint64(h.maxPayload) {
		h.log.Warn().Int("files", len(names)).Int("bytes", len(listing)).Uint32("limit", h.maxPayload).Msg("server.handler listing exceeds frame limit")
		return h.respondError(cmd.Verb, protocol.ErrListingTooLarge)
	}
	return h.respond(cmd.Verb, "ok", listing)
}

func (h *handler) handleDownload(cmd protocol.Command) error {
	name := cmd.Args[0]
	src, size, err := h.files.Open(name)
	if err != nil {
		return h.respondError(cmd.Verb, err)
	}
	defer src.Close()

	tc := transfer.NewContext(transfer.Download, name, size)
	if err := h.sess.BeginTransfer(tc); err != nil {
		return err
	}
	started := time.Now()
	err = transfer.ServeDownload(h.conn, src, tc, h.chunkSize)
	_ = h.sess.EndTransfer()

	switch {
	case err == nil:
		observability.RecordCommand(string(cmd.Verb), "ok")
		observability.RecordTransfer("download", "ok", tc.Transferred(), time.Since(started))
		h.log.Info().Str("file", name).Int64("bytes", tc.Transferred()).Msg("server.handler download complete")
		return nil
	case errors.Is(err, transfer.ErrCancelled):
		observability.RecordCommand(string(cmd.Verb), "cancelled")
		observability.RecordTransfer("download", "cancelled", 0, time.Since(started))
		h.log.Info().Str("file", name).Msg("server.handler download cancelled by client")
		return nil
	default:
		observability.RecordCommand(string(cmd.Verb), "failed")
		observability.RecordTransfer("download", "failed", tc.Transferred(), time.Since(started))
		return err
	}
}

func (h *handler) handleUpload(cmd protocol.Command) error {
	name := cmd.Args[0]
	dst, err := h.files.Create(name)
	if err != nil {
		return h.respondError(cmd.Verb, err)
	}

	tc := transfer.NewContext(transfer.Upload, name, cmd.Size)
	if err := h.sess.BeginTransfer(tc); err != nil {
		_ = dst.Close()
		return err
	}
	started := time.Now()
	err = transfer.ServeUpload(h.conn, dst, tc)
	if closeErr := dst.Close(); closeErr != nil {
		h.log.Error().Err(closeErr).Str("file", name).Msg("server.handler upload close failed")
	}
	_ = h.sess.EndTransfer()

	ev := h.log.Info()
	outcome := "ok"
	if err != nil {
		ev = h.log.Warn().Err(err)
		outcome = "failed"
	}
	ev.Str("file", name).Int64("bytes", tc.Transferred()).Int64("declared", tc.Declared).Msg("server.handler upload finished")
	observability.RecordCommand(string(cmd.Verb), outcome)
	observability.RecordTransfer("upload", outcome, tc.Transferred(), time.Since(started))

	if protocol.IsFatal(err) {
		return err
	}
	return nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, protocol.ErrAuthenticationRequired):
		return "auth_required"
	case errors.Is(err, protocol.ErrUnknownCommand):
		return "unknown"
	case errors.Is(err, protocol.ErrMalformedCommand), errors.Is(err, protocol.ErrInvalidFileName):
		return "malformed"
	case errors.Is(err, protocol.ErrFileNotFound):
		return "not_found"
	case errors.Is(err, protocol.ErrFileBusy):
		return "busy"
	case errors.Is(err, protocol.ErrListingTooLarge):
		return "too_large"
	default:
		return "error"
	}
}

func closeReason(err error) string {
	switch {
	case err == nil:
		return "quit"
	case errors.Is(err, protocol.ErrIncompleteTransfer):
		return "incomplete_transfer"
	case errors.Is(err, protocol.ErrMalformedFrame), errors.Is(err, protocol.ErrFrameTooLarge):
		return "protocol_error"
	case errors.Is(err, protocol.ErrConnectionClosed):
		return "connection_closed"
	default:
		return "error"
	}
}
