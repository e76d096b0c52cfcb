package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timed out")
)

// Registry-related errors
var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrNotAuthenticated    = errors.New("connection must be authenticated before registration")
	ErrInvalidRegistryKey  = errors.New("invalid registry identity")
)
