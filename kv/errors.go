package kv

import "errors"

// ErrClosed is returned by a Store whose underlying resource has already
// been closed.
var ErrClosed = errors.New("kv: store is closed")
