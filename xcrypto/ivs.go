package xcrypto

import "encoding/binary"

// Direction distinguishes a secure-messaging IV derived for the
// reader-to-card direction from one derived for card-to-reader.
type Direction int

const (
	DirRequest Direction = iota
	DirResponse
)

// IVFor returns a 16-byte IV for family and direction. VAS's AES-GCM step
// always gets the all-zero IV (the key agreement, not the nonce, is what
// makes each VAS session unique); any other family gets the SSC big-endian
// in the low 8 bytes, with byte 0 set to 0x80 for DirResponse. The VAS
// decoder is its only caller: session and the symmetric family engines
// build their own all-zero CBC IVs.
func IVFor(family string, dir Direction, ssc uint64) []byte {
	if family == "vas" {
		return make([]byte, 16)
	}
	iv := make([]byte, 16)
	binary.BigEndian.PutUint64(iv[8:], ssc)
	if dir == DirResponse {
		iv[0] = 0x80
	}
	return iv
}
