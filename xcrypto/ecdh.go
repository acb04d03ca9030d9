package xcrypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"github.com/wsddn/go-ecdh"
)

// ECDHKeyPair is an ephemeral P-256 key pair generated for a VAS session.
type ECDHKeyPair struct {
	Private crypto.PrivateKey
	Public  crypto.PublicKey
}

// GenerateEphemeralP256 mirrors the ephemeral-keypair step of geth's
// scwallet secure channel: generate a fresh P-256 pair for one key
// agreement and discard the private half once the shared secret is
// derived.
func GenerateEphemeralP256() (*ECDHKeyPair, error) {
	e := ecdh.NewEllipticECDH(elliptic.P256())
	priv, pub, err := e.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: generate ephemeral P-256 key: %w", err)
	}
	return &ECDHKeyPair{Private: priv, Public: pub}, nil
}

// MarshalPublicUncompressed renders kp's public point in SEC1 uncompressed
// form (0x04 ‖ X ‖ Y), the form a reader's VAS APDU carries.
func MarshalPublicUncompressed(pub crypto.PublicKey) []byte {
	e := ecdh.NewEllipticECDH(elliptic.P256())
	return e.Marshal(pub)
}

// ECDH performs P-256 ECDH between our ephemeral private key and the
// peer's public point (as decompressed by DecompressP256 or parsed from a
// certificate), returning the 32-byte X9.63-ready shared secret.
func ECDH(private crypto.PrivateKey, peerPub crypto.PublicKey) ([]byte, error) {
	e := ecdh.NewEllipticECDH(elliptic.P256())
	secret, err := e.GenerateSharedSecret(private, peerPub)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: ECDH shared secret: %w", err)
	}
	return secret, nil
}

// UnmarshalPublicUncompressed parses a 65-byte uncompressed SEC1 point
// (0x04 ‖ X ‖ Y) into a crypto.PublicKey usable with ECDH, validating it
// lies on P-256.
func UnmarshalPublicUncompressed(data []byte) (crypto.PublicKey, error) {
	e := ecdh.NewEllipticECDH(elliptic.P256())
	pub, ok := e.Unmarshal(data)
	if !ok {
		return nil, ErrInvalidPoint
	}
	return pub, nil
}

// ecdsaPublicKey recovers the standard-library *ecdsa.PublicKey backing an
// ECDH public key, for callers that need to feed it into crypto/ecdsa or
// into certificate comparison.
func ecdsaPublicKey(pub crypto.PublicKey) (*ecdsa.PublicKey, bool) {
	k, ok := pub.(*ecdsa.PublicKey)
	return k, ok
}
