// Package transfer moves file content across a message connection in chunks
// with exact byte accounting against a declared size.
//
// Chunk boundaries carry no meaning: receivers concatenate chunk payloads and
// stop on the byte count alone. Content frames and status frames look the
// same on the wire, so a sender that cannot deliver the declared size has no
// way back into sync and must drop the connection.
package transfer

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/fxchange/internal/protocol"
)

const (
	DefaultChunkSize       = 4096
	DefaultUploadChunkSize = 2048
)

var (
	ErrCancelled   = errors.New("transfer: cancelled by peer")
	ErrShortSource = fmt.Errorf("%w: source ended before declared size", protocol.ErrIncompleteTransfer)
)

// Conn is the message transport a transfer runs over.
type Conn interface {
	Send(payload []byte) error
	Receive() ([]byte, error)
}

// SendChunks streams exactly tc.Declared bytes from src as content frames of
// at most chunkSize bytes.
func SendChunks(conn Conn, src io.Reader, tc *Context, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)
	for tc.Remaining() > 0 {
		want := int64(chunkSize)
		if r := tc.Remaining(); r < want {
			want = r
		}
		n, err := io.ReadFull(src, buf[:want])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: %s at %d of %d bytes", ErrShortSource, tc.Name, tc.Transferred()+int64(n), tc.Declared)
			}
			return fmt.Errorf("%w: read %s: %w", ErrShortSource, tc.Name, err)
		}
		if err := conn.Send(buf[:n]); err != nil {
			return fmt.Errorf("%w: %w", protocol.ErrIncompleteTransfer, err)
		}
		tc.add(n)
	}
	return nil
}

// ReceiveChunks reads content frames into dst until tc.Declared bytes have
// arrived. A final chunk that overshoots is truncated. If dst fails the rest
// of the stream is still drained so the connection stays in sync; the write
// failure is returned once the byte count is reached.
func ReceiveChunks(conn Conn, dst io.Writer, tc *Context) error {
	var writeErr error
	for tc.Remaining() > 0 {
		chunk, err := conn.Receive()
		if err != nil {
			return fmt.Errorf("%w: %s at %d of %d bytes: %w", protocol.ErrIncompleteTransfer, tc.Name, tc.Transferred(), tc.Declared, err)
		}
		if r := tc.Remaining(); int64(len(chunk)) > r {
			chunk = chunk[:r]
		}
		if writeErr == nil {
			if _, err := dst.Write(chunk); err != nil {
				writeErr = err
			}
		}
		tc.add(len(chunk))
	}
	if writeErr != nil {
		return fmt.Errorf("%w: write %s: %w", protocol.ErrIncompleteTransfer, tc.Name, writeErr)
	}
	return nil
}
