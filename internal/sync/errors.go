package sync

import "errors"

// ErrConnection marks a transport-level failure talking to the source API.
// Source clients wrap unreachable-host and timeout errors with it; the engine
// aborts the current pass and returns partial stats when it sees one.
var ErrConnection = errors.New("source connection failed")
