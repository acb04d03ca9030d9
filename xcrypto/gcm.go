package xcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// AESGCMOpen authenticates and decrypts ciphertext (with its trailing GCM
// tag already appended, as VAS cryptograms carry it) under key/iv/aad,
// returning ErrAuthTagMismatch on authentication failure.
func AESGCMOpen(key, iv, aad, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyLength, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthTagMismatch
	}
	return plain, nil
}

// AESGCMSeal is the inverse of AESGCMOpen, used by tests that need to
// reproduce a reference cryptogram.
func AESGCMSeal(key, iv, aad, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyLength, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, iv, plaintext, aad), nil
}
