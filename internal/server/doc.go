// Package server owns the file-exchange listener.
//
// Ownership boundary:
// - accept loop, one goroutine per connection, orderly shutdown
// - per-connection command loop and verb routing
// - optional admin HTTP surface (health, metrics, live sessions)
//
// Credentials and the file store are handed in at construction; nothing here
// is process-global.
package server
