// Package transport adapts a PC/SC reader connection into the blocking
// exchange primitive every higher layer (apdu, session, families) builds
// on: one frame in, one frame out, plus field/polling control.
package transport

import "errors"

var (
	ErrNoReaders      = errors.New("transport: no smart card readers found")
	ErrReaderIndex    = errors.New("transport: reader index out of range")
	ErrNoCard         = errors.New("transport: no card present")
	ErrExchangeFailed = errors.New("transport: exchange failed")
)
