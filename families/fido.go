package families

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"hfcore/apdu"
	"hfcore/tlv"
	"hfcore/xcrypto"
)

const (
	u2fInsRegister     = 0x01
	u2fInsAuthenticate = 0x02

	u2fP1AuthEnforceUserPresence = 0x03
	u2fP1AuthCheckOnly           = 0x07
)

// RegistrationResponse is the parsed form of a U2F REGISTER response:
// `05 | pubkey(65) | L_kh | kh(L_kh) | attestation_cert(DER) | ecdsa_sig(DER)`.
type RegistrationResponse struct {
	PublicKey       []byte
	KeyHandle       []byte
	AttestationCert []byte
	Signature       []byte
}

// ParseRegistrationResponse splits a raw U2F REGISTER response into its
// fixed-format fields, per the FIDO U2F raw message format.
func ParseRegistrationResponse(resp []byte) (*RegistrationResponse, error) {
	if len(resp) < 1+65+1 {
		return nil, fmt.Errorf("families: FIDO registration response too short")
	}
	if resp[0] != 0x05 {
		return nil, fmt.Errorf("families: FIDO registration response missing 0x05 reserved byte")
	}
	off := 1
	pubKey := resp[off : off+65]
	off += 65
	khLen := int(resp[off])
	off++
	if off+khLen > len(resp) {
		return nil, fmt.Errorf("families: FIDO key handle runs past end of response")
	}
	kh := resp[off : off+khLen]
	off += khLen

	// The remainder is an attestation certificate (DER SEQUENCE) followed
	// immediately by a DER ECDSA signature. Both parse as sibling nodes
	// of the same flat TLV stream; re-encoding the first sibling recovers
	// its exact original byte width without hand-walking BER lengths a
	// second time next to the tlv package's own walker.
	nodes, err := tlv.Parse(resp[off:])
	if err != nil || len(nodes) < 2 {
		return nil, fmt.Errorf("families: cannot split attestation certificate from signature")
	}
	certLen := len(tlv.Encode(nodes[:1]))
	cert := resp[off : off+certLen]
	sig := resp[off+certLen:]

	return &RegistrationResponse{
		PublicKey:       pubKey,
		KeyHandle:       kh,
		AttestationCert: cert,
		Signature:       sig,
	}, nil
}

// VerifyRegistration verifies the attestation signature over
// `00 ‖ applicationParam ‖ challengeParam ‖ keyHandle ‖ publicKey`, per
// the U2F registration response format.
func VerifyRegistration(reg *RegistrationResponse, applicationParam, challengeParam [32]byte) (bool, error) {
	cert, err := tlv.ParseCertificate(reg.AttestationCert)
	if err != nil {
		return false, err
	}

	msg := make([]byte, 0, 1+32+32+len(reg.KeyHandle)+len(reg.PublicKey))
	msg = append(msg, 0x00)
	msg = append(msg, applicationParam[:]...)
	msg = append(msg, challengeParam[:]...)
	msg = append(msg, reg.KeyHandle...)
	msg = append(msg, reg.PublicKey...)
	digest := sha256.Sum256(msg)

	return xcrypto.ECDSAVerifyP256(cert.PublicKey, digest[:], reg.Signature)
}

// u2fRegisterAPDU builds the raw U2F REGISTER command: challenge(32) ‖
// application(32) in the data field.
func u2fRegisterAPDU(challengeParam, applicationParam [32]byte) (apdu.APDU, error) {
	data := make([]byte, 0, 64)
	data = append(data, challengeParam[:]...)
	data = append(data, applicationParam[:]...)
	return apdu.New(0x00, u2fInsRegister, 0x00, 0x00, data, 0x00), nil
}

// NewU2FRegisterAPDU exports u2fRegisterAPDU for callers outside this
// package driving the transport exchange themselves (the orchestrator's
// FIDORegister verb).
func NewU2FRegisterAPDU(challengeParam, applicationParam [32]byte) (apdu.APDU, error) {
	return u2fRegisterAPDU(challengeParam, applicationParam)
}

// NewU2FAuthenticateAPDU exports u2fAuthenticateAPDU for callers outside
// this package (the orchestrator's FIDOAuthenticate verb).
func NewU2FAuthenticateAPDU(challengeParam, applicationParam [32]byte, keyHandle []byte, checkOnly bool) apdu.APDU {
	return u2fAuthenticateAPDU(challengeParam, applicationParam, keyHandle, checkOnly)
}

// u2fAuthenticateAPDU builds the raw U2F AUTHENTICATE command: challenge(32)
// ‖ application(32) ‖ L_kh ‖ keyHandle. checkOnly requests a key-handle
// presence check (P1 0x07) instead of a full signature (P1 0x03).
func u2fAuthenticateAPDU(challengeParam, applicationParam [32]byte, keyHandle []byte, checkOnly bool) apdu.APDU {
	data := make([]byte, 0, 64+1+len(keyHandle))
	data = append(data, challengeParam[:]...)
	data = append(data, applicationParam[:]...)
	data = append(data, byte(len(keyHandle)))
	data = append(data, keyHandle...)
	p1 := byte(u2fP1AuthEnforceUserPresence)
	if checkOnly {
		p1 = u2fP1AuthCheckOnly
	}
	return apdu.New(0x00, u2fInsAuthenticate, p1, 0x00, data, 0x00)
}

// AuthenticationResponse is the parsed form of a U2F AUTHENTICATE response:
// `userPresence(1) | counter(4) | ecdsa_sig(DER)`.
type AuthenticationResponse struct {
	UserPresence byte
	Counter      uint32
	Signature    []byte
}

// ParseAuthenticationResponse splits a raw U2F AUTHENTICATE response into
// its fixed-format fields.
func ParseAuthenticationResponse(resp []byte) (*AuthenticationResponse, error) {
	if len(resp) < 5 {
		return nil, fmt.Errorf("families: FIDO authentication response too short")
	}
	return &AuthenticationResponse{
		UserPresence: resp[0],
		Counter:      binary.BigEndian.Uint32(resp[1:5]),
		Signature:    resp[5:],
	}, nil
}

// VerifyAuthentication verifies the signature over
// `applicationParam ‖ userPresence ‖ counter ‖ challengeParam`, the U2F
// authentication signing format, against the credential public key
// returned at registration.
func VerifyAuthentication(pub *ecdsa.PublicKey, resp *AuthenticationResponse, applicationParam, challengeParam [32]byte) (bool, error) {
	msg := make([]byte, 0, 32+1+4+32)
	msg = append(msg, applicationParam[:]...)
	msg = append(msg, resp.UserPresence)
	var counter [4]byte
	binary.BigEndian.PutUint32(counter[:], resp.Counter)
	msg = append(msg, counter[:]...)
	msg = append(msg, challengeParam[:]...)
	digest := sha256.Sum256(msg)
	return xcrypto.ECDSAVerifyP256(pub, digest[:], resp.Signature)
}

// RegistrationExtras is a best-effort decode of a trailing CBOR extensions
// map some newer U2F/FIDO2-hybrid authenticators append after the DER
// attestation signature. It supplements spec's raw U2F fields; the raw
// fields remain authoritative and VerifyRegistration never depends on this
// decode succeeding.
type RegistrationExtras map[string]interface{}

// DecodeRegistrationExtras decodes trailing bytes as a CBOR map, returning
// (nil, nil) rather than an error when trailing is empty or not valid
// CBOR — callers treat it as optional pretty-printing input, never as a
// verification input.
func DecodeRegistrationExtras(trailing []byte) (RegistrationExtras, error) {
	if len(trailing) == 0 {
		return nil, nil
	}
	var extras RegistrationExtras
	if err := cbor.Unmarshal(trailing, &extras); err != nil {
		return nil, nil
	}
	return extras, nil
}
