package families

import (
	"bytes"
	"errors"
	"testing"

	"hfcore/apdu"
	"hfcore/keystore"
	"hfcore/session"
	"hfcore/xcrypto"
)

func cipurseSlot(t *testing.T, encKey, macKey []byte) keystore.Slot {
	t.Helper()
	st := keystore.NewStore()
	if err := st.Set(keystore.FamilyCIPURSE, 0, keystore.FieldPrivEnc, encKey); err != nil {
		t.Fatalf("Set PrivEnc: %v", err)
	}
	if err := st.Set(keystore.FamilyCIPURSE, 0, keystore.FieldPrivMac, macKey); err != nil {
		t.Fatalf("Set PrivMac: %v", err)
	}
	slot, err := st.Slot(keystore.FamilyCIPURSE, 0)
	if err != nil {
		t.Fatalf("Slot: %v", err)
	}
	return slot
}

func TestCIPURSEFullHandshake(t *testing.T) {
	encKey := bytes.Repeat([]byte{0x01}, 16)
	macKey := bytes.Repeat([]byte{0x02}, 16)
	slot := cipurseSlot(t, encKey, macKey)

	rndICC := bytes.Repeat([]byte{0xAA}, 16)
	e := &CIPURSEEngine{}
	fx := &scriptedExchanger{steps: [][]byte{swBytes(rndICC, apdu.SWOK)}}

	gotRndICC, err := e.GetChallenge(fx, slot)
	if err != nil {
		t.Fatalf("GetChallenge: %v", err)
	}
	if !bytes.Equal(gotRndICC, rndICC) {
		t.Fatalf("rndICC = %X, want %X", gotRndICC, rndICC)
	}

	msg, rndIFD, err := e.ComposeAuthMessage(gotRndICC, slot)
	if err != nil {
		t.Fatalf("ComposeAuthMessage: %v", err)
	}
	if len(rndIFD) != 16 {
		t.Fatalf("rndIFD length = %d, want 16", len(rndIFD))
	}

	// Simulate the card's response: it echoes back RND.IFD after its own
	// RND.ICC, encrypted and tagged the same way the reader's message was.
	plain := xcrypto.Pad7816(append(append([]byte{}, rndICC...), rndIFD...), 16)
	iv := make([]byte, 16)
	enc, err := xcrypto.AESCBCEncrypt(encKey, iv, plain)
	if err != nil {
		t.Fatalf("AESCBCEncrypt: %v", err)
	}
	tag, err := xcrypto.AESCMAC8(macKey, enc)
	if err != nil {
		t.Fatalf("AESCMAC8: %v", err)
	}
	resp := append(enc, tag...)

	fx2 := &scriptedExchanger{steps: [][]byte{swBytes(msg, apdu.SWOK)}}
	_, sw, err := e.SendAuth(fx2, msg)
	if err != nil {
		t.Fatalf("SendAuth: %v", err)
	}
	if sw != apdu.SWOK {
		t.Fatalf("sw = %04X, want 9000", sw)
	}

	plainResp, err := e.VerifyResponse(resp, rndIFD, slot)
	if err != nil {
		t.Fatalf("VerifyResponse: %v", err)
	}

	result, err := e.DeriveSession(rndIFD, plainResp, slot)
	if err != nil {
		t.Fatalf("DeriveSession: %v", err)
	}
	if len(result.SEnc) != 16 || len(result.SMac) != 16 {
		t.Fatalf("derived key lengths wrong: SEnc=%d SMac=%d", len(result.SEnc), len(result.SMac))
	}
	if result.ReqLevel != session.Encrypted || result.RespLevel != session.Encrypted {
		t.Fatalf("default levels = %v/%v, want Encrypted/Encrypted", result.ReqLevel, result.RespLevel)
	}
	if result.SMCLABit != 0x04 {
		t.Fatalf("SMCLABit = %02X, want 04", result.SMCLABit)
	}
}

func TestCIPURSEVerifyResponseRejectsBadMAC(t *testing.T) {
	encKey := bytes.Repeat([]byte{0x01}, 16)
	macKey := bytes.Repeat([]byte{0x02}, 16)
	slot := cipurseSlot(t, encKey, macKey)
	rndIFD := bytes.Repeat([]byte{0xBB}, 16)
	badResp := bytes.Repeat([]byte{0x00}, 24)
	if _, err := (&CIPURSEEngine{}).VerifyResponse(badResp, rndIFD, slot); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
}

func TestCIPURSEDeriveSessionRespectsExplicitLevels(t *testing.T) {
	encKey := bytes.Repeat([]byte{0x01}, 16)
	macKey := bytes.Repeat([]byte{0x02}, 16)
	slot := cipurseSlot(t, encKey, macKey)
	e := &CIPURSEEngine{ReqLevel: session.MAC, RespLevel: session.Plain}
	plainResp := bytes.Repeat([]byte{0xCC}, 16)
	result, err := e.DeriveSession(bytes.Repeat([]byte{0xDD}, 16), plainResp, slot)
	if err != nil {
		t.Fatalf("DeriveSession: %v", err)
	}
	if result.ReqLevel != session.MAC || result.RespLevel != session.Plain {
		t.Fatalf("levels = %v/%v, want MAC/Plain", result.ReqLevel, result.RespLevel)
	}
}
