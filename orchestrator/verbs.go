package orchestrator

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"hfcore/apdu"
	"hfcore/families"
	"hfcore/keystore"
	"hfcore/selector"
	"hfcore/session"
	"hfcore/tlv"
)

// ErrUnsupportedFamily is returned when a verb is asked to drive a family
// it has no handshake for (e.g. Auth against VAS, which has no symmetric
// mutual-auth step at all).
var ErrUnsupportedFamily = errors.New("orchestrator: verb not supported for this family")

// InfoResult is what the Info verb reports: whatever the transport layer
// learned from the ATR plus, once a family has been selected, its FCI.
type InfoResult struct {
	ReaderName string
	ATRHex     string
	Family     keystore.Family
	FCI        []byte
}

// Info reports the currently-connected reader and card identity and, when
// one of family's candidate AIDs selects, the FCI that selection returned.
// It never touches the key store or a session.
func (c *Context) Info(family keystore.Family) InfoResult {
	r := InfoResult{Family: family}
	if c.Transport != nil {
		r.ReaderName = c.Transport.Name()
		r.ATRHex = c.Transport.ATRHex()
		if _, fci, err := selector.SelectAID(c.Transport, family); err == nil {
			r.FCI = fci
		}
	}
	return r
}

// SelectResult carries the outcome of a Select verb call.
type SelectResult struct {
	AID []byte
	FCI []byte
}

// Select runs ISO 7816-4 application selection for family, either against
// an explicit AID (explicitAID non-nil, bypassing the compiled-in candidate
// table) or by walking AIDTable[family]. fid, when non-nil, selects a file
// ID under whatever application is already current instead.
func (c *Context) Select(family keystore.Family, explicitAID, fid []byte) (SelectResult, error) {
	if c.Transport == nil {
		return SelectResult{}, fmt.Errorf("orchestrator: no transport connected")
	}
	if err := c.checkCancel(); err != nil {
		return SelectResult{}, err
	}

	if fid != nil {
		body, err := selector.SelectFileID(c.Transport, fid)
		if err != nil {
			return SelectResult{}, err
		}
		return SelectResult{AID: fid, FCI: body}, nil
	}

	if explicitAID != nil {
		fci, ok := selector.SelectAIDBytes(c.Transport, explicitAID)
		if !ok {
			return SelectResult{}, fmt.Errorf("%w: AID %X", selector.ErrAidNotPresent, explicitAID)
		}
		return SelectResult{AID: explicitAID, FCI: fci}, nil
	}

	aid, fci, err := selector.SelectAID(c.Transport, family)
	if err != nil {
		return SelectResult{}, err
	}
	return SelectResult{AID: aid, FCI: fci}, nil
}

// AuthRequest bundles the per-family inputs the Auth verb needs beyond the
// key index every family shares.
type AuthRequest struct {
	Family keystore.Family
	KeyIdx int

	// SEOS needs the OID it selected and the FCI SelectByOID returned, to
	// decode the ADF cryptogram before the symmetric handshake can start.
	OID []byte
	FCI []byte

	// CIPURSE sets its request/response security level independently; zero
	// value (Plain/Plain) is promoted to Encrypted/Encrypted by
	// CIPURSEEngine.DeriveSession.
	ReqLevel, RespLevel session.SecLevel
}

// Auth drives one family's mutual-authentication handshake end to end and,
// on success, installs a live Session for subsequent Read/Write calls.
// VAS and FIDO have no symmetric mutual-auth step: VAS is the Decrypt
// verb's job, and FIDO gets its own Register/Authenticate pair below.
func (c *Context) Auth(req AuthRequest) (families.AuthResult, error) {
	if c.Transport == nil {
		return families.AuthResult{}, fmt.Errorf("orchestrator: no transport connected")
	}
	slot, err := c.Keys.Slot(req.Family, req.KeyIdx)
	if err != nil {
		return families.AuthResult{}, err
	}

	var engine families.Engine
	switch req.Family {
	case keystore.FamilyDESFire:
		engine = &families.DESFireEngine{KeyNo: byte(req.KeyIdx)}
	case keystore.FamilyEMRTD:
		engine = &families.EMRTDEngine{}
	case keystore.FamilyCIPURSE:
		engine = &families.CIPURSEEngine{ReqLevel: req.ReqLevel, RespLevel: req.RespLevel}
	case keystore.FamilySEOS:
		adf, err := families.DecodeADFCryptogram(req.FCI, slot.ReadKey[:], req.OID)
		if err != nil {
			return families.AuthResult{}, err
		}
		engine = &families.SEOSEngine{ADF: adf}
	case keystore.FamilyVAS, keystore.FamilyFIDO:
		return families.AuthResult{}, fmt.Errorf("%w: %s has no symmetric mutual-auth handshake", ErrUnsupportedFamily, req.Family)
	default:
		return families.AuthResult{}, fmt.Errorf("%w: %s", ErrUnsupportedFamily, req.Family)
	}

	result, err := c.runHandshake(engine, slot)
	if err != nil {
		c.teardown(req.Family)
		return families.AuthResult{}, err
	}

	c.Sessions[req.Family] = session.New(req.Family, result.Alg, result.SEnc, result.SMac, result.SSC, result.ReqLevel, result.RespLevel, result.SMCLABit)
	return result, nil
}

// runHandshake drives the five-step mutual-auth contract every Engine
// implements identically: challenge, compose, send, verify, derive.
func (c *Context) runHandshake(engine families.Engine, slot keystore.Slot) (families.AuthResult, error) {
	if err := c.checkCancel(); err != nil {
		return families.AuthResult{}, err
	}
	rndICC, err := engine.GetChallenge(c.Transport, slot)
	if err != nil {
		return families.AuthResult{}, err
	}

	msg, rndIFD, err := engine.ComposeAuthMessage(rndICC, slot)
	if err != nil {
		return families.AuthResult{}, err
	}

	if err := c.checkCancel(); err != nil {
		return families.AuthResult{}, err
	}
	resp, sw, err := engine.SendAuth(c.Transport, msg)
	if err != nil {
		return families.AuthResult{}, err
	}
	if sw != apdu.SWOK {
		return families.AuthResult{}, fmt.Errorf("%w: SendAuth SW=%04X", families.ErrAuthFailed, sw)
	}

	verified, err := engine.VerifyResponse(resp, rndIFD, slot)
	if err != nil {
		return families.AuthResult{}, err
	}

	return engine.DeriveSession(rndIFD, verified, slot)
}

// Read sends a secure-messaging-wrapped READ BINARY and returns the
// unwrapped payload. A live session for family must already exist.
func (c *Context) Read(family keystore.Family, p1, p2 byte, le int) ([]byte, error) {
	return c.exchangeSecure(family, apdu.New(0x00, 0xB0, p1, p2, nil, le))
}

// Write sends a secure-messaging-wrapped UPDATE BINARY carrying data.
func (c *Context) Write(family keystore.Family, p1, p2 byte, data []byte) ([]byte, error) {
	return c.exchangeSecure(family, apdu.New(0x00, 0xD6, p1, p2, data, 0))
}

// exchangeSecure wraps a, chains it into short-form segments that fit the
// transport's frame size, sends each in turn, and unwraps the final
// response under the family's live session. Tears the session down on any
// MAC failure or transport error per the state machine's "any MAC fail"
// transition.
func (c *Context) exchangeSecure(family keystore.Family, a apdu.APDU) ([]byte, error) {
	if c.Transport == nil {
		return nil, fmt.Errorf("orchestrator: no transport connected")
	}
	s, err := c.liveSession(family)
	if err != nil {
		return nil, err
	}
	if err := c.checkCancel(); err != nil {
		return nil, err
	}

	wrapped, err := s.Wrap(a)
	if err != nil {
		c.teardown(family)
		return nil, err
	}

	body, sw, err := c.sendChained(wrapped)
	if err != nil {
		c.teardown(family)
		return nil, err
	}
	if sw != apdu.SWOK {
		c.teardown(family)
		return nil, fmt.Errorf("orchestrator: exchange SW=%04X", sw)
	}
	plain, err := s.Unwrap(body, sw)
	if err != nil {
		c.teardown(family)
		return nil, err
	}
	return plain, nil
}

// sendChained splits a into maxFrameSize-bounded segments via apdu.Chain
// and sends them in sequence, per spec.md scenario 4 and DESFire/SEOS's
// short-form-only mandate: every segment but the last carries the chaining
// CLA bit, and only the last segment's response is returned to the caller.
func (c *Context) sendChained(a apdu.APDU) (body []byte, sw uint16, err error) {
	segs, err := apdu.Chain(a, c.Transport.MaxFrameSize())
	if err != nil {
		return nil, 0, err
	}
	for i, seg := range segs {
		if err := c.checkCancel(); err != nil {
			return nil, 0, err
		}
		frame, err := seg.Encode()
		if err != nil {
			return nil, 0, err
		}
		raw, err := c.Transport.Exchange(frame)
		if err != nil {
			return nil, 0, err
		}
		body, sw, err = apdu.Decode(raw)
		if err != nil {
			return nil, 0, err
		}
		if i < len(segs)-1 && sw != apdu.SWOK {
			return nil, 0, fmt.Errorf("%w: segment %d SW=%04X", apdu.ErrUnexpectedChainResponse, i, sw)
		}
	}
	return body, sw, nil
}

// ManageKeys runs the load and save key-ring file operations of the CLI's
// `managekeys` verb: load replaces the store with the slots for family
// read from path, and save writes 4 slots to path. Load takes precedence
// when both are given. Printing is not handled here; the CLI calls
// keystore's Store.Print itself.
func (c *Context) ManageKeys(family keystore.Family, load, save string) error {
	if load != "" {
		st, err := keystore.Load(load, family)
		if err != nil {
			return err
		}
		c.Keys = st
		return nil
	}
	if save != "" {
		return c.Keys.Save(save, family, 4)
	}
	return nil
}

// DecryptVAS decodes an Apple/HID VAS cryptogram against a reader private
// key; VAS has no symmetric session, so this bypasses Auth/Read entirely
// and never touches c.Sessions.
func (c *Context) DecryptVAS(cryptogram []byte, readerPriv *ecdsa.PrivateKey) (*families.VASCryptogram, error) {
	return families.DecodeCryptogram(cryptogram, readerPriv)
}

// FIDORegister drives a U2F REGISTER exchange and verifies the returned
// attestation signature.
func (c *Context) FIDORegister(challengeParam, applicationParam [32]byte) (*families.RegistrationResponse, bool, error) {
	if c.Transport == nil {
		return nil, false, fmt.Errorf("orchestrator: no transport connected")
	}
	if err := c.checkCancel(); err != nil {
		return nil, false, err
	}
	a, err := families.NewU2FRegisterAPDU(challengeParam, applicationParam)
	if err != nil {
		return nil, false, err
	}
	frame, err := a.Encode()
	if err != nil {
		return nil, false, err
	}
	raw, err := c.Transport.Exchange(frame)
	if err != nil {
		return nil, false, err
	}
	body, sw, err := apdu.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	if sw != apdu.SWOK {
		return nil, false, fmt.Errorf("orchestrator: FIDO REGISTER SW=%04X", sw)
	}
	reg, err := families.ParseRegistrationResponse(body)
	if err != nil {
		return nil, false, err
	}
	valid, err := families.VerifyRegistration(reg, applicationParam, challengeParam)
	return reg, valid, err
}

// FIDOAuthenticate drives a U2F AUTHENTICATE exchange against a previously
// registered key handle and verifies the signature against pub.
func (c *Context) FIDOAuthenticate(challengeParam, applicationParam [32]byte, keyHandle []byte, pub *ecdsa.PublicKey, checkOnly bool) (*families.AuthenticationResponse, bool, error) {
	if c.Transport == nil {
		return nil, false, fmt.Errorf("orchestrator: no transport connected")
	}
	if err := c.checkCancel(); err != nil {
		return nil, false, err
	}
	a := families.NewU2FAuthenticateAPDU(challengeParam, applicationParam, keyHandle, checkOnly)
	frame, err := a.Encode()
	if err != nil {
		return nil, false, err
	}
	raw, err := c.Transport.Exchange(frame)
	if err != nil {
		return nil, false, err
	}
	body, sw, err := apdu.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	if sw != apdu.SWOK {
		return nil, false, fmt.Errorf("orchestrator: FIDO AUTHENTICATE SW=%04X", sw)
	}
	resp, err := families.ParseAuthenticationResponse(body)
	if err != nil {
		return nil, false, err
	}
	if checkOnly {
		return resp, true, nil
	}
	valid, err := families.VerifyAuthentication(pub, resp, applicationParam, challengeParam)
	return resp, valid, err
}

// WalkPxSEDirectory exposes the PxSE directory probe for the Select verb's
// auto-discovery path, returning candidate AIDs parsed out of the FCI.
func (c *Context) WalkPxSEDirectory() ([][]byte, error) {
	if c.Transport == nil {
		return nil, fmt.Errorf("orchestrator: no transport connected")
	}
	fci, err := selector.WalkPxSEDirectory(c.Transport)
	if err != nil {
		return nil, err
	}
	nodes, err := tlv.Parse(fci)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: parse PxSE directory FCI: %w", err)
	}
	var aids [][]byte
	for _, n := range tlv.FindAll(nodes, tlv.Tag{0x4F}) {
		aids = append(aids, n.Value)
	}
	return aids, nil
}
