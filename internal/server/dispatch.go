package server

import (
	"github.com/danmuck/fxchange/internal/observability"
	"github.com/danmuck/fxchange/internal/protocol"
)

const verbUnknown protocol.Verb = "unknown"

type route struct {
	requiresAuth bool
	handle       func(*handler, protocol.Command) error
}

var routes = map[protocol.Verb]route{
	protocol.VerbAuth:     {requiresAuth: false, handle: (*handler).handleAuth},
	protocol.VerbList:     {requiresAuth: true, handle: (*handler).handleList},
	protocol.VerbDownload: {requiresAuth: true, handle: (*handler).handleDownload},
	protocol.VerbUpload:   {requiresAuth: true, handle: (*handler).handleUpload},
	protocol.VerbQuit:     {requiresAuth: false},
}

// dispatch parses and routes one command payload. quit is true after QUIT;
// a non-nil error ends the session.
//
// Rejections are checked in order: unknown verb, then authentication, then
// argument shape.
func (h *handler) dispatch(payload []byte) (quit bool, err error) {
	cmd, parseErr := protocol.ParseCommand(payload)
	r, ok := routes[cmd.Verb]
	if !ok {
		// unbounded client input stays out of metric labels
		return false, h.respondError(verbUnknown, protocol.ErrUnknownCommand)
	}
	if r.requiresAuth && !h.sess.Authenticated() {
		return false, h.respondError(cmd.Verb, protocol.ErrAuthenticationRequired)
	}
	if parseErr != nil {
		return false, h.respondError(cmd.Verb, parseErr)
	}
	if cmd.Verb == protocol.VerbQuit {
		observability.RecordCommand(string(cmd.Verb), "ok")
		h.log.Info().Msg("server.handler client quit")
		return true, nil
	}
	return false, r.handle(h, cmd)
}
