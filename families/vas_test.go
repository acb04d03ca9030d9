package families

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"testing"

	"hfcore/xcrypto"
)

func TestKeyHintAllZeroTestVector(t *testing.T) {
	zero := make([]byte, 32)
	hint := KeyHint(zero)
	want := mustHex(t, "66687AAD")
	if !bytes.Equal(hint, want) {
		t.Fatalf("hint = %X, want %X", hint, want)
	}
}

func TestDecodeCryptogramRoundTrip(t *testing.T) {
	readerKP, err := xcrypto.GenerateEphemeralP256()
	if err != nil {
		t.Fatalf("GenerateEphemeralP256 (reader): %v", err)
	}
	mobilePriv := mustEvenYKey(t)

	readerPriv := readerKP.Private.(*ecdsa.PrivateKey)

	shared, err := xcrypto.ECDH(mobilePriv, &readerPriv.PublicKey)
	if err != nil {
		t.Fatalf("ECDH: %v", err)
	}

	readerPubX := make([]byte, 32)
	readerPriv.X.FillBytes(readerPubX)
	sharedInfo := sharedInfoVariant(false, readerPubX)
	key := xcrypto.ANSIX963KDF(shared, sharedInfo, 32)

	payload := []byte("hfcore-vas-test-payload")
	var ts uint32 = 12345
	plain := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(plain[0:4], ts)
	copy(plain[4:], payload)

	iv := xcrypto.IVFor("vas", xcrypto.DirResponse, 0)
	cipherText, err := xcrypto.AESGCMSeal(key, iv, nil, plain)
	if err != nil {
		t.Fatalf("AESGCMSeal: %v", err)
	}

	hint := KeyHint(readerPubX)
	mobileXCompressed := compressedXOf(t, mobilePriv)

	cryptogram := append(append(append([]byte{}, hint...), mobileXCompressed...), cipherText...)

	decoded, err := DecodeCryptogram(cryptogram, readerPriv)
	if err != nil {
		t.Fatalf("DecodeCryptogram: %v", err)
	}
	if decoded.Timestamp != ts {
		t.Fatalf("timestamp = %d, want %d", decoded.Timestamp, ts)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("payload = %q, want %q", decoded.Payload, payload)
	}
}

func TestDecodeCryptogramRejectsWrongKeyHint(t *testing.T) {
	readerKP, _ := xcrypto.GenerateEphemeralP256()
	readerPriv := readerKP.Private.(*ecdsa.PrivateKey)

	cryptogram := make([]byte, 4+32+16+16)
	if _, err := DecodeCryptogram(cryptogram, readerPriv); err == nil {
		t.Fatal("expected error for mismatched key hint")
	}
}

// compressedXOf returns the 32-byte X coordinate of priv's public key.
func compressedXOf(t *testing.T, priv *ecdsa.PrivateKey) []byte {
	t.Helper()
	x := make([]byte, 32)
	priv.X.FillBytes(x)
	return x
}

// mustEvenYKey generates P-256 ephemeral keys until it finds one whose
// public Y is even, since DecodeCryptogram always decompresses the
// mobile ephemeral point with sign 0x02 (spec's fixed convention).
func mustEvenYKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	for i := 0; i < 64; i++ {
		kp, err := xcrypto.GenerateEphemeralP256()
		if err != nil {
			t.Fatalf("GenerateEphemeralP256: %v", err)
		}
		priv := kp.Private.(*ecdsa.PrivateKey)
		if priv.Y.Bit(0) == 0 {
			return priv
		}
	}
	t.Fatal("could not find an even-Y P-256 key after 64 attempts")
	return nil
}
