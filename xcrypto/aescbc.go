package xcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// AESCBCEncrypt encrypts data (which must already be block-aligned; padding
// is the caller's concern per spec) under key with the given IV.
func AESCBCEncrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyLength, err)
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("xcrypto: data not block-aligned (%d bytes)", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// AESCBCDecrypt is the inverse of AESCBCEncrypt.
func AESCBCDecrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyLength, err)
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("xcrypto: data not block-aligned (%d bytes)", len(data))
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// Pad7816 applies ISO/IEC 7816-4 padding (0x80 then 0x00 bytes) up to the
// next multiple of blockSize.
func Pad7816(data []byte, blockSize int) []byte {
	out := make([]byte, len(data), len(data)+blockSize)
	copy(out, data)
	out = append(out, 0x80)
	for len(out)%blockSize != 0 {
		out = append(out, 0x00)
	}
	return out
}

// Unpad7816 strips ISO/IEC 7816-4 padding, returning ErrBadPadding if the
// 0x80 marker cannot be found within the final block.
func Unpad7816(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrBadPadding
	}
	limit := blockSize
	if limit > len(data) {
		limit = len(data)
	}
	for i := 1; i <= limit; i++ {
		b := data[len(data)-i]
		if b == 0x80 {
			return data[:len(data)-i], nil
		}
		if b != 0x00 {
			return nil, ErrBadPadding
		}
	}
	return nil, ErrBadPadding
}

// XOR xors two equal-length byte slices, returning a new slice.
func XOR(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}
