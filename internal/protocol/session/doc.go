// Package session owns per-connection protocol state.
//
// Ownership boundary:
// - the session state machine (Unauthenticated -> Authenticated <-> Transferring -> Closed)
// - the framed, obfuscated message connection with read/write deadlines
// - timeout and dial backoff configuration shared by server and client
package session
