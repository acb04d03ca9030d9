package cmd

import (
	"errors"

	"hfcore/families"
	"hfcore/selector"
	"hfcore/session"
	"hfcore/tlv"
	"hfcore/transport"
	"hfcore/xcrypto"
)

// classifyErr maps an orchestrator/lower-layer error to the CLI surface's
// documented exit code by sentinel, for verbs whose failures can come from
// any layer (auth, read, write).
func classifyErr(err error) int {
	switch {
	case errors.Is(err, transport.ErrNoReaders), errors.Is(err, transport.ErrReaderIndex),
		errors.Is(err, transport.ErrNoCard), errors.Is(err, transport.ErrExchangeFailed):
		return 2
	case errors.Is(err, families.ErrAuthFailed), errors.Is(err, session.ErrAuthFailed),
		errors.Is(err, session.ErrMacInvalid), errors.Is(err, session.ErrNoSession):
		return 3
	case errors.Is(err, tlv.ErrMalformed), errors.Is(err, tlv.ErrTruncated),
		errors.Is(err, selector.ErrAidNotPresent), errors.Is(err, selector.ErrFileNotFound):
		return 4
	case errors.Is(err, xcrypto.ErrAuthTagMismatch), errors.Is(err, xcrypto.ErrInvalidKeyLength),
		errors.Is(err, xcrypto.ErrInvalidPoint), errors.Is(err, xcrypto.ErrBadPadding):
		return 5
	default:
		return 1
	}
}

func failAny(err error) error {
	if err == nil {
		return nil
	}
	return fail(classifyErr(err), err)
}
