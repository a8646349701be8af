package session

import "errors"

// ErrStopping is returned by Start while a previous session is still
// tearing down.
var ErrStopping = errors.New("session is stopping")
