// Package xcrypto collects the pure, deterministic cryptographic
// primitives shared by every family's authentication engine and
// secure-messaging layer: block ciphers, MACs, AEAD, key agreement,
// signature verification, and key derivation.
package xcrypto

import "errors"

var (
	// ErrAuthTagMismatch is returned by AES-GCM open on authentication failure.
	ErrAuthTagMismatch = errors.New("xcrypto: GCM authentication tag mismatch")
	// ErrInvalidKeyLength is returned when a key does not match the cipher's
	// expected length.
	ErrInvalidKeyLength = errors.New("xcrypto: invalid key length")
	// ErrInvalidPoint is returned when an EC point fails curve validation.
	ErrInvalidPoint = errors.New("xcrypto: point not on curve")
	// ErrBadPadding is returned when ISO/IEC 7816-4 padding cannot be stripped.
	ErrBadPadding = errors.New("xcrypto: bad ISO 7816-4 padding")
)
