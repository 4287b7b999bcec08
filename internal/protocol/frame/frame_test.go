package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/danmuck/fxchange/internal/testutil/testlog"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	limits := Limits{MaxPayloadBytes: 64 * 1024}
	sizes := []int{0, 1, 3, 4095, 4096, 4097, 64 * 1024}
	for _, size := range sizes {
		payload := bytes.Repeat([]byte{0xA5}, size)
		for i := range payload {
			payload[i] = byte(i * 7)
		}
		var buf bytes.Buffer
		if err := WriteFrame(&buf, payload, limits); err != nil {
			t.Fatalf("write frame size=%d: %v", size, err)
		}
		if buf.Len() != HeaderLen+size {
			t.Fatalf("unexpected encoded length size=%d got=%d", size, buf.Len())
		}
		out, err := ReadFrame(&buf, limits)
		if err != nil {
			t.Fatalf("read frame size=%d: %v", size, err)
		}
		if !bytes.Equal(out, payload) {
			t.Fatalf("payload mismatch size=%d", size)
		}
	}
}

func TestReadFrameOneByteReads(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	payloads := [][]byte{[]byte("AUTH user pass123"), {}, bytes.Repeat([]byte("x"), 5000)}
	for _, p := range payloads {
		if err := WriteFrame(&buf, p, DefaultLimits()); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	r := iotest.OneByteReader(&buf)
	for i, want := range payloads {
		got, err := ReadFrame(r, DefaultLimits())
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d mismatch: got=%d bytes want=%d", i, len(got), len(want))
		}
	}
	if _, err := ReadFrame(r, DefaultLimits()); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed at end of stream, got %v", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "empty stream", raw: nil},
		{name: "short header", raw: []byte{0, 0}},
		{name: "short payload", raw: []byte{0, 0, 0, 5, 'a', 'b'}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tc.raw), DefaultLimits())
			if !errors.Is(err, ErrConnectionClosed) {
				t.Fatalf("expected ErrConnectionClosed, got %v", err)
			}
		})
	}
}

func TestReadFrameLengthOverLimitIsMalformed(t *testing.T) {
	testlog.Start(t)
	var header [HeaderLen]byte
	binary.BigEndian.PutUint32(header[:], 1<<30)
	_, err := ReadFrame(bytes.NewReader(header[:]), DefaultLimits())
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestEncodeTooLarge(t *testing.T) {
	testlog.Start(t)
	limits := Limits{MaxPayloadBytes: 8}
	if _, err := Encode(make([]byte, 9), limits); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if err := WriteFrame(io.Discard, make([]byte, 9), limits); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge from WriteFrame, got %v", err)
	}
	if _, err := Encode(make([]byte, 8), limits); err != nil {
		t.Fatalf("payload at limit rejected: %v", err)
	}
}

func TestWriteFrameSurfacesWriterFailure(t *testing.T) {
	testlog.Start(t)
	err := WriteFrame(failingWriter{}, []byte("LIST"), DefaultLimits())
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }
