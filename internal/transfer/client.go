package transfer

import (
	"fmt"
	"io"

	"github.com/danmuck/fxchange/internal/protocol"
)

// CreateFunc opens the local destination once the download size is known.
type CreateFunc func(size int64) (io.WriteCloser, error)

// FetchDownload requests name and receives it into the writer returned by
// create. The DOWNLOAD_DONE marker is always awaited, even after the byte
// count is reached.
func FetchDownload(conn Conn, name string, create CreateFunc, progress ProgressFunc) (*Context, error) {
	if err := conn.Send(protocol.DownloadCommand(name).Encode()); err != nil {
		return nil, err
	}
	reply, err := conn.Receive()
	if err != nil {
		return nil, err
	}
	st := protocol.ParseStatus(reply)
	if st.IsError() {
		return nil, st.Err()
	}
	size, err := st.DownloadSize()
	if err != nil {
		return nil, err
	}

	dst, err := create(size)
	if err != nil {
		if sendErr := conn.Send([]byte(protocol.ReplyCancel)); sendErr != nil {
			return nil, sendErr
		}
		return nil, fmt.Errorf("%w: %w", protocol.ErrCannotCreateFile, err)
	}
	if err := conn.Send([]byte(protocol.ReplyStart)); err != nil {
		_ = dst.Close()
		return nil, err
	}

	tc := NewContext(Download, name, size).OnProgress(progress)
	recvErr := ReceiveChunks(conn, dst, tc)
	closeErr := dst.Close()
	if protocol.IsFatal(recvErr) {
		return tc, recvErr
	}

	marker, err := conn.Receive()
	if err != nil {
		return tc, err
	}
	if string(marker) != protocol.StatusDownloadDone {
		return tc, fmt.Errorf("%w: expected %s, got %d bytes", protocol.ErrUnexpectedResponse, protocol.StatusDownloadDone, len(marker))
	}
	if recvErr != nil {
		return tc, recvErr
	}
	if closeErr != nil {
		return tc, fmt.Errorf("%w: close %s: %w", protocol.ErrIncompleteTransfer, name, closeErr)
	}
	return tc, nil
}

// PushUpload announces name with size and streams src to the server.
func PushUpload(conn Conn, name string, src io.Reader, size int64, chunkSize int, progress ProgressFunc) (*Context, error) {
	if err := conn.Send(protocol.UploadCommand(name, size).Encode()); err != nil {
		return nil, err
	}
	reply, err := conn.Receive()
	if err != nil {
		return nil, err
	}
	st := protocol.ParseStatus(reply)
	if st.IsError() {
		return nil, st.Err()
	}
	if st.Code != protocol.StatusOKUpload {
		return nil, fmt.Errorf("%w: expected %s, got %q", protocol.ErrUnexpectedResponse, protocol.StatusOKUpload, st.Code)
	}

	tc := NewContext(Upload, name, size).OnProgress(progress)
	if err := SendChunks(conn, src, tc, chunkSize); err != nil {
		return tc, err
	}

	reply, err = conn.Receive()
	if err != nil {
		return tc, err
	}
	st = protocol.ParseStatus(reply)
	switch {
	case st.Code == protocol.StatusUploadSuccess:
		return tc, nil
	case st.IsError():
		return tc, st.Err()
	default:
		return tc, fmt.Errorf("%w: expected %s, got %q", protocol.ErrUnexpectedResponse, protocol.StatusUploadSuccess, st.Code)
	}
}
