package families

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"fmt"

	"hfcore/apdu"
	"hfcore/keystore"
	"hfcore/selector"
	"hfcore/session"
	"hfcore/xcrypto"
)

// EMRTDEngine implements ICAO 9303 Basic Access Control: a SHA-1 seed
// derived from the MRZ feeds two SetDESParity'd 3DES keys, GET CHALLENGE
// supplies RND.ICC, and EXTERNAL AUTHENTICATE exchanges RND.IFD/RND.ICC
// under retail-MAC integrity the way the original BAC handshake does.
//
// EMRTDEngine is stateful across one handshake: ComposeAuthMessage
// generates K.IFD and keeps it so DeriveSession can fold it against the
// card's K.ICC, so callers must use one engine instance per attempt.
type EMRTDEngine struct {
	kIFD []byte
}

var _ Engine = &EMRTDEngine{}

// BACSeed derives the 16-byte BAC seed from the three MRZ check-digit
// fields, per ICAO 9303: seed = SHA1(documentNumber ‖ dob ‖ expiry)[:16],
// where each field already carries its trailing check digit.
func BACSeed(kmrz string) []byte {
	sum := sha1.Sum([]byte(kmrz))
	return append([]byte{}, sum[:16]...)
}

// DeriveBACKeys expands a BAC seed into the parity-adjusted K_ENC/K_MAC
// 3DES keys per ICAO 9303 Appendix D.1.
func DeriveBACKeys(seed []byte) (kEnc, kMac []byte) {
	kEnc = deriveBACKey(seed, 1)
	kMac = deriveBACKey(seed, 2)
	return
}

func deriveBACKey(seed []byte, counter uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, counter)
	sum := sha1.Sum(append(append([]byte{}, seed...), buf...))
	return xcrypto.SetDESParity(sum[:16])
}

func (e *EMRTDEngine) GetChallenge(x selector.Exchanger, slot keystore.Slot) ([]byte, error) {
	a := apdu.NoLe(0x00, 0x84, 0x00, 0x00, nil)
	a.HasLe = true
	a.Le = 0x08
	frame, err := a.Encode()
	if err != nil {
		return nil, err
	}
	resp, err := x.Exchange(frame)
	if err != nil {
		return nil, err
	}
	body, sw, err := apdu.Decode(resp)
	if err != nil {
		return nil, err
	}
	if sw != apdu.SWOK {
		return nil, fmt.Errorf("%w: GET CHALLENGE SW=%04X", ErrAuthFailed, sw)
	}
	if len(body) != 8 {
		return nil, fmt.Errorf("%w: RND.ICC must be 8 bytes, got %d", ErrAuthFailed, len(body))
	}
	return body, nil
}

// ComposeAuthMessage builds the BAC authentication payload: a fresh
// 8-byte RND.IFD plus a 16-byte K.IFD, encrypted under K_ENC with a zero
// IV and integrity-protected with an 8-byte retail-MAC.
func (e *EMRTDEngine) ComposeAuthMessage(rndICC []byte, slot keystore.Slot) (msg, rndIFD []byte, err error) {
	rndIFD = make([]byte, 8)
	if _, err := rand.Read(rndIFD); err != nil {
		return nil, nil, err
	}
	e.kIFD = make([]byte, 16)
	if _, err := rand.Read(e.kIFD); err != nil {
		return nil, nil, err
	}

	plain := append(append(append([]byte{}, rndIFD...), rndICC...), e.kIFD...)
	key24, err := xcrypto.ExpandTo3DESKey(slot.PrivEnc[:])
	if err != nil {
		return nil, nil, err
	}
	iv := make([]byte, 8)
	enc, err := xcrypto.TDESCBCEncrypt(key24, iv, plain)
	if err != nil {
		return nil, nil, err
	}

	mac, err := xcrypto.RetailMAC(slot.PrivMac[:], iv, enc)
	if err != nil {
		return nil, nil, err
	}
	return append(enc, mac...), rndIFD, nil
}

func (e *EMRTDEngine) SendAuth(x selector.Exchanger, msg []byte) ([]byte, uint16, error) {
	a := apdu.New(0x00, 0x82, 0x00, 0x00, msg, 0x28)
	frame, err := a.Encode()
	if err != nil {
		return nil, 0, err
	}
	resp, err := x.Exchange(frame)
	if err != nil {
		return nil, 0, err
	}
	body, sw, err := apdu.Decode(resp)
	if err != nil {
		return nil, 0, err
	}
	return body, sw, nil
}

// VerifyResponse checks the response MAC, decrypts, and confirms RND.IFD
// echoes back unchanged; it returns the card's RND.ICC' and K.ICC folded
// together as the 24-byte tail (8 bytes of RND.ICC', 16 bytes of K.ICC)
// the caller needs for DeriveSession.
func (e *EMRTDEngine) VerifyResponse(resp []byte, rndIFD []byte, slot keystore.Slot) ([]byte, error) {
	if len(resp) != 40 {
		return nil, fmt.Errorf("%w: BAC response must be 40 bytes, got %d", ErrAuthFailed, len(resp))
	}
	enc, tag := resp[:32], resp[32:]
	iv := make([]byte, 8)
	expectedTag, err := xcrypto.RetailMAC(slot.PrivMac[:], iv, enc)
	if err != nil {
		return nil, err
	}
	if !bytesEqual(expectedTag, tag) {
		return nil, fmt.Errorf("%w: response MAC mismatch", ErrAuthFailed)
	}
	key24, err := xcrypto.ExpandTo3DESKey(slot.PrivEnc[:])
	if err != nil {
		return nil, err
	}
	plain, err := xcrypto.TDESCBCDecrypt(key24, iv, enc)
	if err != nil {
		return nil, err
	}
	rndICCPrime, rndIFDEcho, kICC := plain[0:8], plain[8:16], plain[16:32]
	if !bytesEqual(rndIFDEcho, rndIFD) {
		return nil, fmt.Errorf("%w: RND.IFD echo mismatch", ErrAuthFailed)
	}
	return append(append([]byte{}, rndICCPrime...), kICC...), nil
}

// DeriveSession derives K_ENC/K_MAC session keys from K.IFD XOR K.ICC per
// ICAO 9303, using the same seed-derivation scheme BAC key setup does.
func (e *EMRTDEngine) DeriveSession(rndIFD, rndICCAndKICC []byte, slot keystore.Slot) (AuthResult, error) {
	if len(rndICCAndKICC) != 24 {
		return AuthResult{}, fmt.Errorf("%w: expected 24-byte RND.ICC'+K.ICC, got %d", ErrAuthFailed, len(rndICCAndKICC))
	}
	if len(e.kIFD) != 16 {
		return AuthResult{}, fmt.Errorf("%w: DeriveSession called before ComposeAuthMessage", ErrAuthFailed)
	}
	rndICC, kICC := rndICCAndKICC[0:8], rndICCAndKICC[8:24]
	seed := xcrypto.XOR(e.kIFD, kICC)
	sEnc := deriveBACKey(seed, 1)
	sMac := deriveBACKey(seed, 2)

	return AuthResult{
		SEnc:      sEnc,
		SMac:      sMac,
		SSC:       sscFromLowHalves(rndICC, rndIFD),
		Alg:       session.Alg3DES,
		ReqLevel:  session.Encrypted,
		RespLevel: session.Encrypted,
		SMCLABit:  0x0C,
	}, nil
}
