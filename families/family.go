// Package families implements one mutual-authentication engine per
// contactless card family (Mifare DESFire, HID SEOS, Apple/HID VAS, FIDO
// U2F, eMRTD BAC, CIPURSE), all satisfying the same Engine contract so the
// orchestrator can drive any of them identically, the way the teacher drove
// every SIM profile through one common AuthContext shape.
package families

import (
	"encoding/binary"
	"errors"

	"hfcore/keystore"
	"hfcore/selector"
	"hfcore/session"
)

// ErrAuthFailed is returned by VerifyResponse/DeriveSession on any MAC
// mismatch, parity failure, or RND mismatch. The caller must discard the
// session without retrying.
var ErrAuthFailed = errors.New("families: authentication failed")

// AuthResult carries everything a completed handshake hands to the
// secure-messaging layer: derived keys, the initial counter, the cipher
// family, and the security levels the family mandates.
type AuthResult struct {
	SEnc      []byte
	SMac      []byte
	SSC       uint64
	Alg       session.Algorithm
	ReqLevel  session.SecLevel
	RespLevel session.SecLevel
	SMCLABit  byte
}

// Engine is the polymorphic mutual-auth contract every family implements,
// per the five-step handshake: challenge, compose, send, verify, derive.
type Engine interface {
	GetChallenge(x selector.Exchanger, slot keystore.Slot) ([]byte, error)
	ComposeAuthMessage(rndICC []byte, slot keystore.Slot) (msg, rndIFD []byte, err error)
	SendAuth(x selector.Exchanger, msg []byte) (resp []byte, sw uint16, err error)
	VerifyResponse(resp []byte, rndIFD []byte, slot keystore.Slot) (rndICC []byte, err error)
	DeriveSession(rndIFD, rndICC []byte, slot keystore.Slot) (AuthResult, error)
}

// sscFromLowHalves implements spec's SSC derivation literally: the
// concatenation of the low halves of RND.ICC and RND.IFD, folded into the
// 8-byte counter every family's Session starts from.
func sscFromLowHalves(rndICC, rndIFD []byte) uint64 {
	lowICC := rndICC[len(rndICC)/2:]
	lowIFD := rndIFD[len(rndIFD)/2:]
	buf := make([]byte, 8)
	n := 4
	if len(lowICC) < n {
		n = len(lowICC)
	}
	copy(buf[0:4], lowICC[:n])
	m := 4
	if len(lowIFD) < m {
		m = len(lowIFD)
	}
	copy(buf[4:8], lowIFD[:m])
	return binary.BigEndian.Uint64(buf)
}
