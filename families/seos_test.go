package families

import (
	"bytes"
	"errors"
	"testing"

	"hfcore/apdu"
	"hfcore/keystore"
	"hfcore/xcrypto"
)

func tlvBytes(tag byte, value []byte) []byte {
	if len(value) > 0x7F {
		panic("tlvBytes: test helper only supports short-form lengths")
	}
	out := make([]byte, 0, 2+len(value))
	out = append(out, tag, byte(len(value)))
	return append(out, value...)
}

func seosSlot(t *testing.T, encKey, macKey []byte) keystore.Slot {
	t.Helper()
	st := keystore.NewStore()
	if err := st.Set(keystore.FamilySEOS, 0, keystore.FieldPrivEnc, encKey); err != nil {
		t.Fatalf("Set PrivEnc: %v", err)
	}
	if err := st.Set(keystore.FamilySEOS, 0, keystore.FieldPrivMac, macKey); err != nil {
		t.Fatalf("Set PrivMac: %v", err)
	}
	slot, err := st.Slot(keystore.FamilySEOS, 0)
	if err != nil {
		t.Fatalf("Slot: %v", err)
	}
	return slot
}

func buildADFFCI(t *testing.T, baseReadKey, oid, diversifier, nonce []byte, algID, hashID byte) []byte {
	t.Helper()
	plain := append(append(tlvBytes(0x06, oid), tlvBytes(0xCF, diversifier)...), nonce...)
	if len(plain) != 64 {
		t.Fatalf("test ADF plaintext = %d bytes, want 64", len(plain))
	}
	iv := make([]byte, 16)
	blob, err := xcrypto.AESCBCEncrypt(baseReadKey, iv, plain)
	if err != nil {
		t.Fatalf("AESCBCEncrypt: %v", err)
	}
	return append(tlvBytes(0xCD, []byte{algID, hashID}), tlvBytes(0x85, blob)...)
}

func TestDecodeADFCryptogram(t *testing.T) {
	baseReadKey := bytes.Repeat([]byte{0x33}, 16)
	oid := bytes.Repeat([]byte{0x01}, 8)
	diversifier := bytes.Repeat([]byte{0x44}, 44)
	nonce := bytes.Repeat([]byte{0x55}, 8)
	fci := buildADFFCI(t, baseReadKey, oid, diversifier, nonce, 0x02, 0x01)

	adf, err := DecodeADFCryptogram(fci, baseReadKey, oid)
	if err != nil {
		t.Fatalf("DecodeADFCryptogram: %v", err)
	}
	if !bytes.Equal(adf.OID, oid) {
		t.Fatalf("OID = %X, want %X", adf.OID, oid)
	}
	if !bytes.Equal(adf.Diversifier, diversifier) {
		t.Fatalf("Diversifier = %X, want %X", adf.Diversifier, diversifier)
	}
	if !bytes.Equal(adf.Nonce, nonce) {
		t.Fatalf("Nonce = %X, want %X", adf.Nonce, nonce)
	}
	if adf.Suite != Aes128Cbc || adf.Hash != Sha256 {
		t.Fatalf("Suite/Hash = %v/%v, want Aes128Cbc/Sha256", adf.Suite, adf.Hash)
	}
}

func TestDecodeADFCryptogramRejectsOIDMismatch(t *testing.T) {
	baseReadKey := bytes.Repeat([]byte{0x33}, 16)
	oid := bytes.Repeat([]byte{0x01}, 8)
	diversifier := bytes.Repeat([]byte{0x44}, 44)
	nonce := bytes.Repeat([]byte{0x55}, 8)
	fci := buildADFFCI(t, baseReadKey, oid, diversifier, nonce, 0x02, 0x01)

	wrongOID := bytes.Repeat([]byte{0x02}, 8)
	if _, err := DecodeADFCryptogram(fci, baseReadKey, wrongOID); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
}

func TestSEOSFullHandshake(t *testing.T) {
	baseReadKey := bytes.Repeat([]byte{0x33}, 16)
	baseMacKey := bytes.Repeat([]byte{0x77}, 16)
	oid := bytes.Repeat([]byte{0x01}, 8)
	diversifier := bytes.Repeat([]byte{0x44}, 44)
	nonce := bytes.Repeat([]byte{0x55}, 8)
	fci := buildADFFCI(t, baseReadKey, oid, diversifier, nonce, 0x02, 0x01)

	slot := seosSlot(t, baseReadKey, baseMacKey)
	adf, err := DecodeADFCryptogram(fci, baseReadKey, oid)
	if err != nil {
		t.Fatalf("DecodeADFCryptogram: %v", err)
	}

	e := &SEOSEngine{ADF: adf}
	rndICC := bytes.Repeat([]byte{0x99}, 16)
	fx := &scriptedExchanger{steps: [][]byte{swBytes(rndICC, apdu.SWOK)}}
	gotRndICC, err := e.GetChallenge(fx, slot)
	if err != nil {
		t.Fatalf("GetChallenge: %v", err)
	}

	msg, rndIFD, err := e.ComposeAuthMessage(gotRndICC, slot)
	if err != nil {
		t.Fatalf("ComposeAuthMessage: %v", err)
	}

	encKey, err := diversify(Sha256, 16, baseReadKey, diversifier)
	if err != nil {
		t.Fatalf("diversify enc key: %v", err)
	}
	macKey, err := diversify(Sha256, 16, baseMacKey, diversifier)
	if err != nil {
		t.Fatalf("diversify mac key: %v", err)
	}
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
	if _, sw, err := e.SendAuth(fx2, msg); err != nil || sw != apdu.SWOK {
		t.Fatalf("SendAuth: sw=%04X err=%v", sw, err)
	}

	plainResp, err := e.VerifyResponse(resp, rndIFD, slot)
	if err != nil {
		t.Fatalf("VerifyResponse: %v", err)
	}
	if len(plainResp) != 32 {
		t.Fatalf("plainResp length = %d, want 32", len(plainResp))
	}

	result, err := e.DeriveSession(rndIFD, rndICC, slot)
	if err != nil {
		t.Fatalf("DeriveSession: %v", err)
	}
	if len(result.SEnc) != 16 || len(result.SMac) != 16 {
		t.Fatalf("derived key lengths wrong: SEnc=%d SMac=%d", len(result.SEnc), len(result.SMac))
	}
}

func TestSEOSComposeAuthMessageRequiresADF(t *testing.T) {
	slot := seosSlot(t, bytes.Repeat([]byte{0x33}, 16), bytes.Repeat([]byte{0x77}, 16))
	e := &SEOSEngine{}
	if _, _, err := e.ComposeAuthMessage(bytes.Repeat([]byte{0x01}, 16), slot); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
}
