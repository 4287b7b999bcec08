package transfer

import (
	"fmt"
	"io"

	"github.com/danmuck/fxchange/internal/protocol"
)

// ServeDownload runs the sending side of a download whose source is already
// open: OK_DOWNLOAD <size>, wait for START, content, DOWNLOAD_DONE.
// ErrCancelled means the client declined and the session may continue; a
// reply other than START or CANCEL also cancels, after an ERROR status. Any
// other error leaves the connection out of sync.
func ServeDownload(conn Conn, src io.Reader, tc *Context, chunkSize int) error {
	if err := conn.Send(protocol.OKDownloadStatus(tc.Declared)); err != nil {
		return err
	}
	reply, err := conn.Receive()
	if err != nil {
		return err
	}
	switch string(reply) {
	case protocol.ReplyStart:
	case protocol.ReplyCancel:
		return ErrCancelled
	default:
		// the download is abandoned either way; the peer still gets an answer
		if err := conn.Send(protocol.ErrorStatus(protocol.ErrMalformedCommand)); err != nil {
			return err
		}
		return fmt.Errorf("%w: unexpected readiness reply %q", ErrCancelled, reply)
	}
	if err := SendChunks(conn, src, tc, chunkSize); err != nil {
		return err
	}
	return conn.Send([]byte(protocol.StatusDownloadDone))
}

// ServeUpload runs the receiving side of an upload whose destination is
// already created: OK_UPLOAD, content, then UPLOAD_SUCCESS or an
// incomplete-data error when the peer is still there to hear it.
func ServeUpload(conn Conn, dst io.Writer, tc *Context) error {
	if err := conn.Send([]byte(protocol.StatusOKUpload)); err != nil {
		return err
	}
	recvErr := ReceiveChunks(conn, dst, tc)
	if protocol.IsFatal(recvErr) {
		return recvErr
	}
	if recvErr != nil {
		if err := conn.Send(protocol.ErrorStatus(recvErr)); err != nil {
			return err
		}
		return recvErr
	}
	return conn.Send([]byte(protocol.StatusUploadSuccess))
}
