package session

import (
	"bytes"
	"testing"

	"hfcore/apdu"
	"hfcore/keystore"
	"hfcore/xcrypto"
)

func testKeys() (enc, mac []byte) {
	enc = bytes.Repeat([]byte{0x01}, 16)
	mac = bytes.Repeat([]byte{0xFE}, 16)
	return
}

func TestWrapPlainPassesThrough(t *testing.T) {
	enc, mac := testKeys()
	s := New(keystore.FamilyDESFire, AlgAES, enc, mac, 0, Plain, Plain, 0x0C)
	a := apdu.New(0x00, 0xA4, 0x00, 0x0C, []byte{0x2F, 0x00}, 0)
	wrapped, err := s.Wrap(a)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if !bytes.Equal(wrapped.Data, a.Data) {
		t.Fatalf("plain-level wrap must not modify the body")
	}
}

func TestWrapEncryptedShapeMatchesWorkedExample(t *testing.T) {
	enc, mac := testKeys()
	s := New(keystore.FamilyDESFire, AlgAES, enc, mac, 0, Encrypted, Encrypted, 0x0C)
	a := apdu.New(0x00, 0xA4, 0x02, 0x0C, []byte{0x2F, 0x00}, 0)

	wrapped, err := s.Wrap(a)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if s.SSC != 1 {
		t.Fatalf("SSC = %d, want 1", s.SSC)
	}

	body := wrapped.Data
	if body[0] != 0x87 || body[1] != 0x11 || body[2] != 0x01 {
		t.Fatalf("encrypted-body TLV header = % X, want 87 11 01", body[0:3])
	}
	cipherLen := int(body[1]) - 1
	trailerOffset := 3 + cipherLen
	if !bytes.Equal(body[trailerOffset:trailerOffset+2], []byte{0x97, 0x00}) {
		t.Fatalf("trailer = % X, want 97 00", body[trailerOffset:trailerOffset+2])
	}
	macOffset := trailerOffset + 2
	if body[macOffset] != 0x8E || body[macOffset+1] != 0x08 {
		t.Fatalf("MAC TLV header = % X, want 8E 08", body[macOffset:macOffset+2])
	}
	if len(body) != macOffset+2+8 {
		t.Fatalf("body length = %d, want %d", len(body), macOffset+2+8)
	}
}

func TestRewrapWithAdvancedSSCProducesDifferentMAC(t *testing.T) {
	enc, mac := testKeys()
	a := apdu.New(0x00, 0xA4, 0x02, 0x0C, []byte{0x2F, 0x00}, 0)

	s1 := New(keystore.FamilyDESFire, AlgAES, enc, mac, 0, Encrypted, Encrypted, 0x0C)
	w1, err := s1.Wrap(a)
	if err != nil {
		t.Fatalf("Wrap 1: %v", err)
	}
	tag1 := w1.Data[len(w1.Data)-8:]

	s2 := New(keystore.FamilyDESFire, AlgAES, enc, mac, 1, Encrypted, Encrypted, 0x0C)
	w2, err := s2.Wrap(a)
	if err != nil {
		t.Fatalf("Wrap 2: %v", err)
	}
	tag2 := w2.Data[len(w2.Data)-8:]

	if s2.SSC != 2 {
		t.Fatalf("second session SSC = %d, want 2", s2.SSC)
	}
	if bytes.Equal(tag1, tag2) {
		t.Fatalf("MAC should differ once SSC advances, got identical tags %X", tag1)
	}
}

func TestWrapEncryptedLongBodyUsesBERLongFormLength(t *testing.T) {
	enc, mac := testKeys()
	s := New(keystore.FamilyDESFire, AlgAES, enc, mac, 0, Encrypted, Encrypted, 0x0C)
	// 120 plaintext bytes pads to 128, so the 0x87 value (0x01 ‖ ciphertext)
	// is 129 bytes — past the single-byte BER short-form length limit (0x7F)
	// but still within the one-length-byte long form (0x81).
	a := apdu.New(0x00, 0xA4, 0x02, 0x0C, bytes.Repeat([]byte{0xAB}, 120), 0)

	wrapped, err := s.Wrap(a)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	body := wrapped.Data
	if body[0] != 0x87 {
		t.Fatalf("tag = %X, want 87", body[0])
	}
	if body[1] != 0x81 {
		t.Fatalf("length form = %X, want 81 (long form, one length byte)", body[1])
	}
	if body[2] != 129 {
		t.Fatalf("encoded length = %d, want 129", body[2])
	}
}

func TestWrapOnClosedSessionFails(t *testing.T) {
	enc, mac := testKeys()
	s := New(keystore.FamilyDESFire, AlgAES, enc, mac, 0, Encrypted, Encrypted, 0x0C)
	s.Close()
	a := apdu.New(0x00, 0xA4, 0x02, 0x0C, []byte{0x2F, 0x00}, 0)
	if _, err := s.Wrap(a); err != ErrNoSession {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	enc, mac := testKeys()
	sSend := New(keystore.FamilyDESFire, AlgAES, enc, mac, 0, Encrypted, Encrypted, 0x0C)
	sRecv := New(keystore.FamilyDESFire, AlgAES, enc, mac, 0, Encrypted, Encrypted, 0x0C)

	plainResponse := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	padded := xcrypto.Pad7816(plainResponse, 16)
	iv := make([]byte, 16)
	cipherText, err := xcrypto.AESCBCEncrypt(enc, iv, padded)
	if err != nil {
		t.Fatalf("AESCBCEncrypt: %v", err)
	}

	encTLV := append([]byte{0x87, byte(len(cipherText) + 1), 0x01}, cipherText...)
	sRecv.SSC = 0
	sSend.SSC = 0
	sSend.SSC++ // mirror the sender's pre-increment before computing the MAC it would have sent
	paddedTrailer := xcrypto.Pad7816(trailerLiteral, 16)
	macInput := append(sscBytes(sSend.SSC), encTLV...)
	macInput = append(macInput, paddedTrailer...)
	tag, err := sSend.mac(macInput)
	if err != nil {
		t.Fatalf("mac: %v", err)
	}
	macTLV := append([]byte{0x8E, 0x08}, tag...)

	respBody := append(append([]byte{}, encTLV...), macTLV...)
	plain, err := sRecv.Unwrap(respBody, apdu.SWOK)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !bytes.Equal(plain, plainResponse) {
		t.Fatalf("plain = %X, want %X", plain, plainResponse)
	}
	if sRecv.SSC != 1 {
		t.Fatalf("receiver SSC = %d, want 1", sRecv.SSC)
	}
}

func TestUnwrapDetectsTamperedMAC(t *testing.T) {
	enc, mac := testKeys()
	sRecv := New(keystore.FamilyDESFire, AlgAES, enc, mac, 0, Encrypted, Encrypted, 0x0C)

	cipherText := bytes.Repeat([]byte{0x00}, 16)
	encTLV := append([]byte{0x87, 0x11, 0x01}, cipherText...)
	badMAC := append([]byte{0x8E, 0x08}, bytes.Repeat([]byte{0xFF}, 8)...)
	respBody := append(append([]byte{}, encTLV...), badMAC...)

	if _, err := sRecv.Unwrap(respBody, apdu.SWOK); err != ErrMacInvalid {
		t.Fatalf("err = %v, want ErrMacInvalid", err)
	}
}

func TestUnwrapOnClosedSessionFails(t *testing.T) {
	enc, mac := testKeys()
	s := New(keystore.FamilyDESFire, AlgAES, enc, mac, 0, Encrypted, Encrypted, 0x0C)
	s.Close()
	if _, err := s.Unwrap([]byte{0x87, 0x01, 0x01}, apdu.SWOK); err != ErrNoSession {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestTDESAlgorithmUsesEightByteBlocks(t *testing.T) {
	enc24 := bytes.Repeat([]byte{0x11}, 24)
	mac16 := bytes.Repeat([]byte{0x22}, 16)
	s := New(keystore.FamilyEMRTD, Alg3DES, enc24, mac16, 0, Encrypted, Encrypted, 0x0C)
	a := apdu.New(0x00, 0xB0, 0x00, 0x00, []byte{0x01, 0x02, 0x03}, 0)

	wrapped, err := s.Wrap(a)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	cipherLen := int(wrapped.Data[1]) - 1
	if cipherLen%8 != 0 {
		t.Fatalf("3DES ciphertext length %d not a multiple of 8", cipherLen)
	}
}
