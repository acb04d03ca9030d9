package tlv

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	casn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Certificate is a parsed X.509 certificate together with its raw DER, kept
// around for chain building and signature verification.
type Certificate struct {
	Raw       []byte
	PublicKey *ecdsa.PublicKey
	X509      *x509.Certificate
}

// CertChain is an ordered, read-only sequence of DER certificates plus a
// trailing attestation signature, as produced by a FIDO registration
// response or a SEOS/VAS key-file bundle.
type CertChain struct {
	Certs     []Certificate
	Signature []byte
}

// ParseCertificate parses a DER-encoded X.509 certificate and extracts its
// EC public key, validating that the point lies on its declared curve
// (crypto/x509 + crypto/ecdsa already enforce curve membership on parse).
func ParseCertificate(der []byte) (*Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("tlv: parse certificate: %w", err)
	}
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("tlv: certificate public key is not EC")
	}
	return &Certificate{Raw: der, PublicKey: pub, X509: cert}, nil
}

// ParseECKeyFile extracts the 0x04 private-key octet string and the 0x03
// public-point bit string from a SEC1 "EC private key file" style DER
// blob, used by SEOS/VAS reader-private-key material. Built on
// golang.org/x/crypto/cryptobyte the way a second, independent DER reader
// is built elsewhere in the pack, instead of hand-rolling BER length
// arithmetic a second time next to the tlv walker above.
func ParseECKeyFile(der []byte) (priv []byte, pub *ecdsa.PublicKey, err error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, casn1.SEQUENCE) {
		return nil, nil, fmt.Errorf("%w: not a DER SEQUENCE", ErrMalformed)
	}

	var version int64
	if !seq.ReadASN1Integer(&version) {
		return nil, nil, fmt.Errorf("%w: missing EC key version", ErrMalformed)
	}

	var privOctets cryptobyte.String
	if !seq.ReadASN1(&privOctets, casn1.OCTET_STRING) {
		return nil, nil, fmt.Errorf("%w: missing private key octet string", ErrMalformed)
	}
	priv = append([]byte{}, privOctets...)

	// Remaining fields are optional context-tagged [0] parameters and
	// [1] public key bit string; scan for the [1] tag.
	for !seq.Empty() {
		var tagByte byte
		peek := seq
		if !peek.ReadUint8(&tagByte) {
			break
		}
		const ctxPublicKey = 0xA1 // context-constructed [1]
		if tagByte != ctxPublicKey {
			// Skip any element we don't care about ([0] curve OID etc).
			var skip cryptobyte.String
			if !seq.ReadASN1Element(&skip, casn1.Tag(tagByte)) {
				return nil, nil, fmt.Errorf("%w: cannot skip EC key field", ErrMalformed)
			}
			continue
		}
		var wrapped cryptobyte.String
		if !seq.ReadASN1(&wrapped, casn1.Tag(ctxPublicKey)) {
			return nil, nil, fmt.Errorf("%w: malformed [1] public key wrapper", ErrMalformed)
		}
		var bitString cryptobyte.String
		if !wrapped.ReadASN1BitString(&bitString) {
			return nil, nil, fmt.Errorf("%w: malformed public key bit string", ErrMalformed)
		}
		pub, err = decodeUncompressedPoint([]byte(bitString))
		if err != nil {
			return nil, nil, err
		}
		break
	}

	return priv, pub, nil
}

// decodeUncompressedPoint parses a P-256 point, compressed (0x02/0x03||X)
// or uncompressed (0x04||X||Y), and validates curve membership.
func decodeUncompressedPoint(b []byte) (*ecdsa.PublicKey, error) {
	curve := elliptic.P256()
	x, y := elliptic.UnmarshalCompressed(curve, b)
	if x == nil {
		// Fall back to uncompressed unmarshal (0x04 prefix).
		x, y = elliptic.Unmarshal(curve, b)
	}
	if x == nil || y == nil || !pointOnCurve(curve, x, y) {
		return nil, fmt.Errorf("%w: EC point not on curve", ErrMalformed)
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// pointOnCurve is a defensive re-check of a point decodeUncompressedPoint
// has just unmarshalled; it has no other caller.
func pointOnCurve(curve elliptic.Curve, x, y *big.Int) bool {
	return curve.IsOnCurve(x, y)
}
