package protocol

import (
	"errors"

	"github.com/danmuck/fxchange/internal/protocol/frame"
)

// Fatal to the session.
var (
	ErrConnectionClosed = frame.ErrConnectionClosed
	ErrMalformedFrame   = frame.ErrMalformedFrame
	ErrFrameTooLarge    = frame.ErrFrameTooLarge
)

// Recoverable: answered with an ERROR status, state unchanged.
var (
	ErrMalformedCommand       = errors.New("protocol: malformed command")
	ErrUnknownCommand         = errors.New("protocol: unknown command")
	ErrAuthenticationRequired = errors.New("protocol: authentication required")
	ErrAlreadyAuthenticated   = errors.New("protocol: already authenticated")
	ErrInvalidFileName        = errors.New("protocol: invalid file name")
	ErrFileNotFound           = errors.New("protocol: file not found")
	ErrCannotCreateFile       = errors.New("protocol: cannot create file")
	ErrFileBusy               = errors.New("protocol: file busy")
	ErrListingTooLarge        = errors.New("protocol: listing too large")
)

var (
	ErrIncompleteTransfer = errors.New("protocol: incomplete transfer")
	ErrUnexpectedResponse = errors.New("protocol: unexpected response")
)

// IsFatal reports whether err must end the session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConnectionClosed) ||
		errors.Is(err, ErrMalformedFrame) ||
		errors.Is(err, ErrFrameTooLarge)
}
