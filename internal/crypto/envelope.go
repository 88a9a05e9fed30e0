// Package crypto implements the envelope-encryption scheme of the plug-in:
// a per-segment AES-256 data key wrapped under an RSA key pair, and
// AES-GCM ciphers binding the segment AAD into every chunk.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
)

const (
	// DataKeySize is the AES-256 data key length.
	DataKeySize = 32
	// AADSize is the length of the random per-segment AAD.
	AADSize = 32
	// IVSize is the GCM nonce length prepended to each chunk ciphertext.
	IVSize = 12
	// TagSize is the GCM auth tag length appended to each chunk ciphertext.
	TagSize = 16
	// Overhead is the per-chunk ciphertext expansion.
	Overhead = IVSize + TagSize
)

// ErrKeyUnwrap reports a private key mismatch or a tampered wrapped key.
var ErrKeyUnwrap = errors.New("crypto: data key unwrap failed")

// ErrAuthTag reports ciphertext tampering detected by GCM.
var ErrAuthTag = errors.New("crypto: auth tag invalid")

// KeyPair wraps and unwraps data keys with an RSA key pair. Immutable after
// construction and safe for concurrent use.
type KeyPair struct {
	public  *rsa.PublicKey
	private *rsa.PrivateKey
}

// NewKeyPair builds a KeyPair. Either key may be nil when only one
// direction is needed.
func NewKeyPair(public *rsa.PublicKey, private *rsa.PrivateKey) (*KeyPair, error) {
	if public == nil && private == nil {
		return nil, errors.New("crypto: at least one key required")
	}
	return &KeyPair{public: public, private: private}, nil
}

// Wrap encrypts the data key under the public key with RSA-OAEP-SHA256.
func (k *KeyPair) Wrap(dataKey []byte) ([]byte, error) {
	if k.public == nil {
		return nil, errors.New("crypto: no public key configured")
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, k.public, dataKey, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: wrap data key: %w", err)
	}
	return wrapped, nil
}

// Unwrap decrypts a wrapped data key with the private key.
func (k *KeyPair) Unwrap(wrapped []byte) ([]byte, error) {
	if k.private == nil {
		return nil, errors.New("crypto: no private key configured")
	}
	dataKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, k.private, wrapped, nil)
	if err != nil {
		return nil, ErrKeyUnwrap
	}
	if len(dataKey) != DataKeySize {
		return nil, ErrKeyUnwrap
	}
	return dataKey, nil
}

// DataKey is a per-segment symmetric key with its authenticated data.
type DataKey struct {
	Key []byte
	AAD []byte
}

// NewDataKey draws a fresh data key and AAD from the secure random source.
func NewDataKey() (DataKey, error) {
	key := make([]byte, DataKeySize)
	if _, err := rand.Read(key); err != nil {
		return DataKey{}, fmt.Errorf("crypto: generate data key: %w", err)
	}
	aad := make([]byte, AADSize)
	if _, err := rand.Read(aad); err != nil {
		return DataKey{}, fmt.Errorf("crypto: generate aad: %w", err)
	}
	return DataKey{Key: key, AAD: aad}, nil
}

// Cipher encrypts and decrypts chunks with AES-256-GCM. The IV travels at
// the head of each chunk ciphertext; the AAD is bound on every operation.
// Safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
	aad  []byte
}

// NewCipher builds a chunk cipher from a data key and AAD.
func NewCipher(key, aad []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	cp := make([]byte, len(aad))
	copy(cp, aad)
	return &Cipher{aead: aead, aad: cp}, nil
}

// Encrypt seals one chunk: iv || ciphertext || tag. The IV is unique per
// call, drawn from the secure random source.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("crypto: generate iv: %w", err)
	}
	out := make([]byte, IVSize, IVSize+len(plaintext)+TagSize)
	copy(out, iv)
	return c.aead.Seal(out, iv, plaintext, c.aad), nil
}

// Decrypt opens one chunk, stripping the IV and verifying the tag.
func (c *Cipher) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < Overhead {
		return nil, ErrAuthTag
	}
	iv := sealed[:IVSize]
	plaintext, err := c.aead.Open(nil, iv, sealed[IVSize:], c.aad)
	if err != nil {
		return nil, ErrAuthTag
	}
	return plaintext, nil
}
