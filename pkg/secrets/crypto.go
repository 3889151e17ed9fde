package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// ivLen is the AES block size; blob layout on disk is IV || ciphertext.
const ivLen = aes.BlockSize

// encrypt AES-CBC-encrypts a 64-byte padded secret under key, with a fresh
// random IV, and returns the on-disk blob (IV || ciphertext, 80 bytes).
func encrypt(key [32]byte, padded []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("secrets: constructing AES cipher: %w", err)
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("secrets: generating IV: %w", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	blob := make([]byte, 0, ivLen+len(ciphertext))
	blob = append(blob, iv...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// decrypt splits the IV off a stored blob and AES-CBC-decrypts the rest.
func decrypt(key [32]byte, blob []byte) ([]byte, error) {
	if len(blob) != ivLen+PaddedLen {
		return nil, fmt.Errorf("secrets: stored blob has length %d, want %d", len(blob), ivLen+PaddedLen)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("secrets: constructing AES cipher: %w", err)
	}

	iv := blob[:ivLen]
	ciphertext := blob[ivLen:]
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return plain, nil
}
