package mcp

import "errors"

var (
	// ErrDuplicateID is returned when a call id is already pending. Call ids
	// are minted as UUIDs so this indicates a bug, but it is checked anyway.
	ErrDuplicateID = errors.New("call id already pending")

	// ErrTimeout is delivered to a call whose deadline passed with no
	// matching response. The session stays usable.
	ErrTimeout = errors.New("call timed out")

	// ErrProcessTerminated is delivered to every pending call when the
	// session's subprocess exits. The session is discarded and a later call
	// with the same session id spawns a fresh process.
	ErrProcessTerminated = errors.New("mcp subprocess terminated")
)
