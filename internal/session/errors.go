package session

import "errors"

// ErrExpiredOrInvalid covers every failed resolution: missing, expired,
// garbled or revoked tokens all look identical to the caller so a tampered
// token reveals nothing about session state.
var ErrExpiredOrInvalid = errors.New("session expired or invalid")
