package otp

import "errors"

// ErrResendSuppressed is returned by Issue while a previously issued code is
// still valid for the identity. Callers should answer generically so the
// endpoint leaks nothing about outstanding codes.
var ErrResendSuppressed = errors.New("a valid code was already issued")
