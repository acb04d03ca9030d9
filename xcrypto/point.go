package xcrypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"math/big"
)

// DecompressP256 expands a 33-byte SEC1 compressed point (0x02/0x03 ‖ X)
// into an *ecdsa.PublicKey, validating the result lies on the curve.
// VAS and SEOS certificates sometimes carry compressed points where
// transport APDUs carry uncompressed ones.
func DecompressP256(data []byte) (*ecdsa.PublicKey, error) {
	if len(data) != 33 || (data[0] != 0x02 && data[0] != 0x03) {
		return nil, ErrInvalidPoint
	}
	curve := elliptic.P256()
	x := new(big.Int).SetBytes(data[1:])

	p := curve.Params().P
	ySq := new(big.Int).Exp(x, big.NewInt(3), p)
	threeX := new(big.Int).Mul(x, big.NewInt(3))
	ySq.Sub(ySq, threeX)
	ySq.Add(ySq, curve.Params().B)
	ySq.Mod(ySq, p)

	y := new(big.Int).ModSqrt(ySq, p)
	if y == nil {
		return nil, ErrInvalidPoint
	}
	wantOdd := data[0] == 0x03
	if y.Bit(0) == 1 != wantOdd {
		y.Sub(p, y)
	}
	if !curve.IsOnCurve(x, y) {
		return nil, ErrInvalidPoint
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}
