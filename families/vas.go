package families

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"hfcore/xcrypto"
)

// vasEpoch2001 is 2001-01-01T00:00:00Z in Unix seconds, the epoch VAS
// cryptogram timestamps count from.
const vasEpoch2001 = 978307200

// KeyHint returns the first 4 bytes of SHA-256 of the reader's public-key
// X coordinate, the value a VAS cryptogram's first 4 bytes must match
// before a reader attempts decryption.
func KeyHint(readerPubX []byte) []byte {
	sum := sha256.Sum256(readerPubX)
	return append([]byte{}, sum[:4]...)
}

// VASCryptogram is the decoded Apple/HID VAS payload: a big-endian
// epoch-2001 timestamp plus the pass/credential payload bytes.
type VASCryptogram struct {
	Timestamp uint32
	Payload   []byte
}

// sharedInfoVariant builds one of the two ANSI X9.63 shared-info byte
// strings readers in the wild are known to use; the legacy variant omits
// the reader public key, the current variant includes it.
func sharedInfoVariant(legacy bool, readerPubX []byte) []byte {
	if legacy {
		return []byte("VAS ECDH")
	}
	return append([]byte("VAS ECDH"), readerPubX...)
}

// DecodeCryptogram implements spec's VAS cryptogram decode: key-hint
// check, ephemeral-point decompression, ECDH, a two-variant ANSI X9.63 KDF
// attempt, and AES-GCM open, returning the de-timestamped payload.
func DecodeCryptogram(cryptogram []byte, readerPriv *ecdsa.PrivateKey) (*VASCryptogram, error) {
	if len(cryptogram) < 4+32+16 {
		return nil, fmt.Errorf("families: VAS cryptogram too short (%d bytes)", len(cryptogram))
	}
	keyHint := cryptogram[0:4]
	mobileX := cryptogram[4:36]
	rest := cryptogram[36:]

	readerPubX := make([]byte, 32)
	readerPriv.X.FillBytes(readerPubX)
	wantHint := KeyHint(readerPubX)
	if !bytesEqual(keyHint, wantHint) {
		return nil, fmt.Errorf("families: VAS key hint mismatch, reader key not addressed")
	}

	compressed := append([]byte{0x02}, mobileX...)
	mobilePub, err := xcrypto.DecompressP256(compressed)
	if err != nil {
		return nil, err
	}

	shared, err := xcrypto.ECDH(readerPriv, mobilePub)
	if err != nil {
		return nil, err
	}

	iv := xcrypto.IVFor("vas", xcrypto.DirResponse, 0)
	for _, legacy := range []bool{false, true} {
		sharedInfo := sharedInfoVariant(legacy, readerPubX)
		key := xcrypto.ANSIX963KDF(shared, sharedInfo, 32)
		plain, err := xcrypto.AESGCMOpen(key, iv, nil, rest)
		if err != nil {
			continue
		}
		if len(plain) < 4 {
			continue
		}
		return &VASCryptogram{
			Timestamp: binary.BigEndian.Uint32(plain[0:4]),
			Payload:   plain[4:],
		}, nil
	}
	return nil, xcrypto.ErrAuthTagMismatch
}

// UnixTime converts a cryptogram's embedded timestamp to Unix epoch
// seconds.
func (c *VASCryptogram) UnixTime() int64 {
	return vasEpoch2001 + int64(c.Timestamp)
}
