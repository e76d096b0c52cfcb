package store

import "errors"

// ErrUnavailable wraps every backend transport failure so callers can
// distinguish "store down" from "key absent".
var ErrUnavailable = errors.New("key-value store unavailable")
