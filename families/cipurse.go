package families

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"hfcore/apdu"
	"hfcore/keystore"
	"hfcore/selector"
	"hfcore/session"
	"hfcore/xcrypto"
)

// CIPURSEEngine implements CIPURSE's AES-128 GENERAL AUTHENTICATE exchange
// with AES-CMAC integrity; ReqLevel/RespLevel are set independently per
// direction once the handshake completes, matching CIPURSE's per-command
// security-level selection.
type CIPURSEEngine struct {
	ReqLevel  session.SecLevel
	RespLevel session.SecLevel
}

var _ Engine = &CIPURSEEngine{}

func (e *CIPURSEEngine) GetChallenge(x selector.Exchanger, slot keystore.Slot) ([]byte, error) {
	a := apdu.New(0x00, 0x84, 0x00, 0x00, nil, 0x10)
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
		return nil, fmt.Errorf("%w: CIPURSE GET CHALLENGE SW=%04X", ErrAuthFailed, sw)
	}
	return body, nil
}

func (e *CIPURSEEngine) ComposeAuthMessage(rndICC []byte, slot keystore.Slot) (msg, rndIFD []byte, err error) {
	rndIFD = make([]byte, 16)
	if _, err := rand.Read(rndIFD); err != nil {
		return nil, nil, err
	}
	plain := xcrypto.Pad7816(append(append([]byte{}, rndIFD...), rndICC...), 16)
	iv := make([]byte, 16)
	enc, err := xcrypto.AESCBCEncrypt(slot.PrivEnc[:], iv, plain)
	if err != nil {
		return nil, nil, err
	}
	tag, err := xcrypto.AESCMAC8(slot.PrivMac[:], enc)
	if err != nil {
		return nil, nil, err
	}
	return append(enc, tag...), rndIFD, nil
}

func (e *CIPURSEEngine) SendAuth(x selector.Exchanger, msg []byte) ([]byte, uint16, error) {
	a := apdu.New(0x00, 0x82, 0x00, 0x00, msg, 0x00)
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

func (e *CIPURSEEngine) VerifyResponse(resp []byte, rndIFD []byte, slot keystore.Slot) ([]byte, error) {
	if len(resp) < 8 {
		return nil, fmt.Errorf("%w: CIPURSE auth response too short", ErrAuthFailed)
	}
	enc, tag := resp[:len(resp)-8], resp[len(resp)-8:]
	expected, err := xcrypto.AESCMAC8(slot.PrivMac[:], enc)
	if err != nil {
		return nil, err
	}
	if !bytesEqual(expected, tag) {
		return nil, fmt.Errorf("%w: CIPURSE auth response MAC mismatch", ErrAuthFailed)
	}
	iv := make([]byte, 16)
	padded, err := xcrypto.AESCBCDecrypt(slot.PrivEnc[:], iv, enc)
	if err != nil {
		return nil, err
	}
	plain, err := xcrypto.Unpad7816(padded, 16)
	if err != nil {
		return nil, err
	}
	if len(plain) < 16 || !bytesEqual(plain[16:], rndIFD) {
		return nil, fmt.Errorf("%w: RND.IFD echo mismatch", ErrAuthFailed)
	}
	return plain, nil
}

func (e *CIPURSEEngine) DeriveSession(rndIFD, plainResponse []byte, slot keystore.Slot) (AuthResult, error) {
	rndICC := plainResponse[:16]
	digest := sha256.Sum256(append(append([]byte{}, rndIFD...), rndICC...))
	reqLevel, respLevel := e.ReqLevel, e.RespLevel
	if reqLevel == session.Plain && respLevel == session.Plain {
		reqLevel, respLevel = session.Encrypted, session.Encrypted
	}
	return AuthResult{
		SEnc:      digest[:16],
		SMac:      digest[16:32],
		SSC:       sscFromLowHalves(rndICC, rndIFD),
		Alg:       session.AlgAES,
		ReqLevel:  reqLevel,
		RespLevel: respLevel,
		SMCLABit:  0x04,
	}, nil
}
