// Package cryptox implements the project key material: an X25519 keypair per
// project, with the private half encrypted at rest under a key-encryption
// key derived from the service passphrase.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
)

// KeyPair holds a project's long-term X25519 keypair. The private key is
// returned in the clear; callers must encrypt it before persisting.
type KeyPair struct {
	Public  []byte
	Private []byte
}

// GenerateKeyPair creates a fresh X25519 keypair for a project.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keypair generation failed: %w", err)
	}
	return &KeyPair{
		Public:  priv.PublicKey().Bytes(),
		Private: priv.Bytes(),
	}, nil
}

// DeriveKeyEncryptionKey derives the 32-byte AES key protecting a project's
// private key from the service passphrase and a per-project salt.
func DeriveKeyEncryptionKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, keySize)
}

// EncryptPrivateKey encrypts a project private key with AES-GCM under a
// key-encryption key derived from passphrase. A fresh salt and nonce are
// generated per call and must be stored alongside the ciphertext.
func EncryptPrivateKey(privateKey, passphrase []byte) (ciphertext, salt, nonce []byte, err error) {
	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, nil, err
	}

	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, err
	}

	kek := DeriveKeyEncryptionKey(passphrase, salt)

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, privateKey, nil)
	return ciphertext, salt, nonce, nil
}

// DecryptPrivateKey reverses EncryptPrivateKey. It fails if the passphrase,
// salt or nonce do not match the values used at encryption time.
func DecryptPrivateKey(ciphertext, passphrase, salt, nonce []byte) ([]byte, error) {
	kek := DeriveKeyEncryptionKey(passphrase, salt)

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("private key decryption failed: %w", err)
	}
	return plaintext, nil
}
