package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderLen is the width of the big-endian payload length prefix.
const HeaderLen = 4

var (
	ErrConnectionClosed = errors.New("frame: connection closed")
	ErrMalformedFrame   = errors.New("frame: malformed frame")
	ErrFrameTooLarge    = errors.New("frame: payload too large")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 1024 * 1024,
	}
}

// Encode prefixes payload with its length.
func Encode(payload []byte, limits Limits) ([]byte, error) {
	if uint64(len(payload)) > uint64(limits.MaxPayloadBytes) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), limits.MaxPayloadBytes)
	}
	buf := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[:HeaderLen], uint32(len(payload)))
	copy(buf[HeaderLen:], payload)
	return buf, nil
}

// WriteFrame writes one complete frame with a single Write call.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	buf, err := Encode(payload, limits)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return nil
}

// ReadFrame blocks until exactly one frame has been consumed from r or the
// stream fails. Short reads are retried until the frame is complete.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var header [HeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, closedErr(err)
	}

	n := binary.BigEndian.Uint32(header[:])
	if n > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: declared length %d exceeds %d", ErrMalformedFrame, n, limits.MaxPayloadBytes)
	}

	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, closedErr(err)
		}
	}
	return payload, nil
}

func closedErr(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrConnectionClosed
	}
	return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
}
