// Package server implements the HTTP server and handlers for the
// file-drop service. It wires together the routes, the Postgres metadata
// store, and the blob store backend, and provides lifecycle helpers used
// by tests and the production binary.
package server
