// crypt/crypt.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Key and IV are derived deterministically from the password with fixed
// salts: the artifact format carries no per-file salt, so the same password
// must reproduce the same key material on restore. The flip side is that
// equal plaintexts under equal passwords give equal ciphertexts.
const (
	keySalt = "BackupSystemSalt"
	ivSalt  = "BackupSystemIV"

	kdfIterations = 10000
)

var (
	ErrDecryption     = errors.New("decryption failed")
	ErrNotInitialized = errors.New("encryptor not initialized")
)

// Encryptor applies AES-256-CBC with PKCS#7 padding. Init must be called
// before Encrypt or Decrypt.
type Encryptor struct {
	key []byte
	iv  []byte
}

func NewEncryptor() *Encryptor {
	return &Encryptor{}
}

// Init derives the 32-byte key and 16-byte IV from the password via
// PBKDF2-HMAC-SHA256.
func (e *Encryptor) Init(password string) {
	e.key = pbkdf2.Key([]byte(password), []byte(keySalt), kdfIterations, 32, sha256.New)
	e.iv = pbkdf2.Key([]byte(password), []byte(ivSalt), kdfIterations, aes.BlockSize, sha256.New)
}

func (e *Encryptor) initialized() bool { return e.key != nil }

// Encrypt returns the ciphertext of plain, padded up to the next block
// boundary (a full padding block when already aligned). Empty input
// round-trips to empty output without touching the cipher.
func (e *Encryptor) Encrypt(plain []byte) ([]byte, error) {
	if !e.initialized() {
		return nil, ErrNotInitialized
	}
	if len(plain) == 0 {
		return []byte{}, nil
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}

	pad := aes.BlockSize - len(plain)%aes.BlockSize
	out := make([]byte, len(plain)+pad)
	copy(out, plain)
	for i := len(plain); i < len(out); i++ {
		out[i] = byte(pad)
	}

	cipher.NewCBCEncrypter(block, e.iv).CryptBlocks(out, out)
	return out, nil
}

// Decrypt inverts Encrypt. Misaligned input or invalid padding (wrong
// password or tampering) fails with ErrDecryption.
func (e *Encryptor) Decrypt(ct []byte) ([]byte, error) {
	if !e.initialized() {
		return nil, ErrNotInitialized
	}
	if len(ct) == 0 {
		return []byte{}, nil
	}
	if len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d not block-aligned: %w",
			len(ct), ErrDecryption)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, e.iv).CryptBlocks(out, ct)

	pad := int(out[len(out)-1])
	if pad < 1 || pad > aes.BlockSize {
		return nil, fmt.Errorf("invalid padding: %w", ErrDecryption)
	}
	for _, b := range out[len(out)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("invalid padding: %w", ErrDecryption)
		}
	}
	return out[:len(out)-pad], nil
}
