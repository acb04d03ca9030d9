// Package session implements the secure-messaging layer shared by every
// authentication engine: wrap outbound APDUs with ISO/IEC 7816-4 padding,
// CBC encryption and a retail-MAC or AES-CMAC tag, and unwrap inbound
// responses the same way, tracking a strictly monotonic send-sequence
// counter the way the teacher's SCP02Session chained its ICV across
// WrapAndSend calls.
package session

import (
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"

	"hfcore/apdu"
	"hfcore/keystore"
	"hfcore/tlv"
	"hfcore/xcrypto"
)

var (
	// ErrNoSession is returned by Wrap/Unwrap on a session that was never
	// authenticated or has already been torn down.
	ErrNoSession = errors.New("session: no live session")
	// ErrAuthFailed marks a mutual-authentication failure at session setup.
	ErrAuthFailed = errors.New("session: authentication failed")
	// ErrMacInvalid is returned by Unwrap when the response MAC does not
	// match; the caller must tear the session down on receipt.
	ErrMacInvalid = errors.New("session: response MAC invalid")
)

// SecLevel is the secure-messaging level applied to one direction of
// traffic; request and response levels are independent.
type SecLevel int

const (
	Plain SecLevel = iota
	MAC
	Encrypted
)

// Algorithm selects which block cipher and MAC primitive a session's
// derived keys use, since families split between AES (DESFire, VAS,
// CIPURSE) and 3DES (eMRTD BAC, legacy SEOS).
type Algorithm int

const (
	AlgAES Algorithm = iota
	Alg3DES
)

// Session is one live secure-messaging channel: derived keys, the
// send-sequence counter, and the security levels negotiated during
// mutual authentication.
type Session struct {
	Family     keystore.Family
	Alg        Algorithm
	SEnc       []byte
	SMac       []byte
	SSC        uint64
	ReqLevel   SecLevel
	RespLevel  SecLevel
	Live       bool
	smCLABit   byte // secure-messaging CLA bit pattern, e.g. 0x0C or 0x04
}

// New starts a live session over keys derived by a family's authentication
// engine. smCLABit is OR'd into the class byte of every wrapped APDU.
func New(family keystore.Family, alg Algorithm, sEnc, sMac []byte, ssc uint64, reqLevel, respLevel SecLevel, smCLABit byte) *Session {
	return &Session{
		Family:    family,
		Alg:       alg,
		SEnc:      append([]byte{}, sEnc...),
		SMac:      append([]byte{}, sMac...),
		SSC:       ssc,
		ReqLevel:  reqLevel,
		RespLevel: respLevel,
		Live:      true,
		smCLABit:  smCLABit,
	}
}

// Close tears the session down; every subsequent Wrap/Unwrap call fails
// with ErrNoSession.
func (s *Session) Close() {
	s.Live = false
}

func (s *Session) blockSize() int {
	if s.Alg == Alg3DES {
		return 8
	}
	return 16
}

func (s *Session) encrypt(iv, data []byte) ([]byte, error) {
	if s.Alg == Alg3DES {
		key24, err := xcrypto.ExpandTo3DESKey(s.SEnc)
		if err != nil {
			return nil, err
		}
		return xcrypto.TDESCBCEncrypt(key24, iv, data)
	}
	return xcrypto.AESCBCEncrypt(s.SEnc, iv, data)
}

func (s *Session) decrypt(iv, data []byte) ([]byte, error) {
	if s.Alg == Alg3DES {
		key24, err := xcrypto.ExpandTo3DESKey(s.SEnc)
		if err != nil {
			return nil, err
		}
		return xcrypto.TDESCBCDecrypt(key24, iv, data)
	}
	return xcrypto.AESCBCDecrypt(s.SEnc, iv, data)
}

func (s *Session) mac(msg []byte) ([]byte, error) {
	if s.Alg == Alg3DES {
		icv := make([]byte, 8)
		return xcrypto.RetailMAC(s.SMac, icv, msg)
	}
	return xcrypto.AESCMAC8(s.SMac, msg)
}

func sscBytes(ssc uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, ssc)
	return b
}

var trailerLiteral = []byte{0x97, 0x00}

// Wrap builds the secure-messaging form of a, applying ReqLevel. SSC is
// pre-incremented before the MAC is computed, matching every response's
// symmetric Unwrap accounting.
func (s *Session) Wrap(a apdu.APDU) (apdu.APDU, error) {
	if !s.Live {
		return apdu.APDU{}, ErrNoSession
	}
	if s.ReqLevel == Plain {
		return a, nil
	}

	bs := s.blockSize()
	cla := a.CLA | s.smCLABit
	header4 := []byte{cla, a.INS, a.P1, a.P2}
	paddedHeader := xcrypto.Pad7816(header4, bs)

	var bodyTLV []byte
	if s.ReqLevel == Encrypted {
		paddedBody := xcrypto.Pad7816(a.Data, bs)
		iv := make([]byte, bs)
		enc, err := s.encrypt(iv, paddedBody)
		if err != nil {
			return apdu.APDU{}, err
		}
		bodyTLV = append([]byte{0x87}, tlv.EncodeLength(len(enc)+1)...)
		bodyTLV = append(bodyTLV, 0x01)
		bodyTLV = append(bodyTLV, enc...)
	} else {
		bodyTLV = a.Data
	}

	s.SSC++
	paddedTrailer := xcrypto.Pad7816(trailerLiteral, bs)
	macInput := make([]byte, 0, 8+len(paddedHeader)+len(bodyTLV)+len(paddedTrailer))
	macInput = append(macInput, sscBytes(s.SSC)...)
	macInput = append(macInput, paddedHeader...)
	macInput = append(macInput, bodyTLV...)
	macInput = append(macInput, paddedTrailer...)

	tag, err := s.mac(macInput)
	if err != nil {
		return apdu.APDU{}, err
	}
	macTLV := append([]byte{0x8E, 0x08}, tag...)

	finalBody := make([]byte, 0, len(bodyTLV)+len(trailerLiteral)+len(macTLV))
	if s.ReqLevel == Encrypted {
		finalBody = append(finalBody, bodyTLV...)
		finalBody = append(finalBody, trailerLiteral...)
	} else {
		finalBody = append(finalBody, bodyTLV...)
	}
	finalBody = append(finalBody, macTLV...)

	wrapped := apdu.New(cla, a.INS, a.P1, a.P2, finalBody, a.Le)
	wrapped.HasLe = a.HasLe
	return wrapped, nil
}

// Unwrap verifies and strips secure messaging from a response body. sw is
// the status word the transport layer decoded alongside body; Unwrap does
// not use it. The MAC input is SSC ‖ the 0x87/0x85 object ‖ the padded
// 97 00 trailer; a 0x99 object in body is not part of it.
func (s *Session) Unwrap(body []byte, sw uint16) ([]byte, error) {
	if !s.Live {
		return nil, ErrNoSession
	}
	if s.RespLevel == Plain {
		return body, nil
	}

	nodes, err := tlv.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("session: parse response TLVs: %w", err)
	}

	encNode := tlv.Find(nodes, tlv.Tag{0x87})
	if encNode == nil {
		encNode = tlv.Find(nodes, tlv.Tag{0x85})
	}
	macNode := tlv.Find(nodes, tlv.Tag{0x8E})
	if macNode == nil {
		return nil, fmt.Errorf("session: response carries no MAC object")
	}

	bs := s.blockSize()
	s.SSC++

	var encTLVBytes []byte
	if encNode != nil {
		encTLVBytes = append([]byte{}, encNode.Tag...)
		encTLVBytes = append(encTLVBytes, tlv.EncodeLength(len(encNode.Value))...)
		encTLVBytes = append(encTLVBytes, encNode.Value...)
	}

	paddedTrailer := xcrypto.Pad7816(trailerLiteral, bs)
	macInput := make([]byte, 0, 8+len(encTLVBytes)+len(paddedTrailer))
	macInput = append(macInput, sscBytes(s.SSC)...)
	macInput = append(macInput, encTLVBytes...)
	macInput = append(macInput, paddedTrailer...)

	expected, err := s.mac(macInput)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(expected, macNode.Value) != 1 {
		return nil, ErrMacInvalid
	}

	if s.RespLevel != Encrypted || encNode == nil {
		return nil, nil
	}

	// Value carries a leading 0x01 padding-indicator byte ahead of the
	// ciphertext, mirroring the request side's 0x87 object.
	if len(encNode.Value) < 1 {
		return nil, fmt.Errorf("session: encrypted body object too short")
	}
	cipherText := encNode.Value[1:]
	iv := make([]byte, bs)
	padded, err := s.decrypt(iv, cipherText)
	if err != nil {
		return nil, err
	}
	plain, err := xcrypto.Unpad7816(padded, bs)
	if err != nil {
		return nil, err
	}
	return plain, nil
}
