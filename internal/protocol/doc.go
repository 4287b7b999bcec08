// Package protocol owns the command/status vocabulary of the file-exchange wire.
//
// Ownership boundary:
// - command verbs and argument validation
// - status text and error-to-status mapping
// - the error taxonomy shared by server and client
//
// Framing lives in protocol/frame, the payload transform in protocol/obfs and
// per-connection state in protocol/session.
package protocol
