package xcrypto

import (
	"crypto/sha256"
	"encoding/binary"
)

// ANSIX963KDF derives outLen bytes from a shared secret and optional
// shared info per ANSI X9.63, the key-derivation function the VAS family
// uses to turn an ECDH shared secret into an AES-GCM session key:
// K = H(Z ‖ counter ‖ SharedInfo) for counter = 1, 2, ... concatenated and
// truncated to outLen bytes.
func ANSIX963KDF(sharedSecret, sharedInfo []byte, outLen int) []byte {
	out := make([]byte, 0, outLen+sha256.Size)
	var counter uint32 = 1
	for len(out) < outLen {
		h := sha256.New()
		h.Write(sharedSecret)
		var ctr [4]byte
		binary.BigEndian.PutUint32(ctr[:], counter)
		h.Write(ctr[:])
		h.Write(sharedInfo)
		out = append(out, h.Sum(nil)...)
		counter++
	}
	return out[:outLen]
}
