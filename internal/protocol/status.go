package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	StatusAuthSuccess   = "AUTH_SUCCESS"
	StatusAuthFail      = "AUTH_FAIL"
	StatusOKDownload    = "OK_DOWNLOAD"
	StatusOKUpload      = "OK_UPLOAD"
	StatusUploadSuccess = "UPLOAD_SUCCESS"
	StatusDownloadDone  = "DOWNLOAD_DONE"
	StatusError         = "ERROR"
)

var statusMessages = []struct {
	err error
	msg string
}{
	{ErrAuthenticationRequired, "Authentication required."},
	{ErrAlreadyAuthenticated, "Already authenticated."},
	{ErrUnknownCommand, "Unknown command."},
	{ErrMalformedCommand, "Malformed command."},
	{ErrInvalidFileName, "Invalid file name."},
	{ErrFileNotFound, "File not found."},
	{ErrCannotCreateFile, "Cannot create file."},
	{ErrFileBusy, "File is busy."},
	{ErrListingTooLarge, "Listing too large."},
	{ErrIncompleteTransfer, "Upload incomplete."},
}

// ErrorStatus renders an ERROR status for a recoverable error. Errors outside
// the taxonomy collapse to a generic message so raw system text never reaches
// the peer.
func ErrorStatus(err error) []byte {
	for _, m := range statusMessages {
		if errors.Is(err, m.err) {
			return []byte(StatusError + " " + m.msg)
		}
	}
	return []byte(StatusError + " Internal error.")
}

func OKDownloadStatus(size int64) []byte {
	return []byte(StatusOKDownload + " " + strconv.FormatInt(size, 10))
}

// Status is a parsed status payload.
type Status struct {
	Code string
	Arg  string
}

// ParseStatus splits a status payload into its code and remainder.
func ParseStatus(payload []byte) Status {
	code, arg, _ := strings.Cut(string(payload), " ")
	return Status{Code: code, Arg: arg}
}

func (s Status) IsError() bool {
	return s.Code == StatusError
}

// Err maps an ERROR status back onto the taxonomy.
func (s Status) Err() error {
	if !s.IsError() {
		return nil
	}
	for _, m := range statusMessages {
		if s.Arg == m.msg {
			return fmt.Errorf("%w: %s", m.err, s.Arg)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnexpectedResponse, s.Arg)
}

// DownloadSize returns the size carried by an OK_DOWNLOAD status.
func (s Status) DownloadSize() (int64, error) {
	if s.Code != StatusOKDownload {
		return 0, fmt.Errorf("%w: expected %s, got %q", ErrUnexpectedResponse, StatusOKDownload, s.Code)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(s.Arg), 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: invalid download size %q", ErrUnexpectedResponse, s.Arg)
	}
	return size, nil
}

// EncodeListing joins names with newlines.
func EncodeListing(names []string) []byte {
	return []byte(strings.Join(names, "\n"))
}

// DecodeListing is the inverse of EncodeListing.
func DecodeListing(payload []byte) []string {
	if len(payload) == 0 {
		return []string{}
	}
	return strings.Split(string(payload), "\n")
}
