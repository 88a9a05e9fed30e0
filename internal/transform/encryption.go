package transform

import (
	"github.com/kk-code-lab/tierstore/internal/crypto"
)

// EncryptStream seals each block with the segment cipher. One input block
// yields one output block grown by the IV and auth tag.
type EncryptStream struct {
	inner  ChunkStream
	cipher *crypto.Cipher
}

// NewEncryptStream wraps an inbound stage with per-block encryption.
func NewEncryptStream(inner ChunkStream, cipher *crypto.Cipher) *EncryptStream {
	return &EncryptStream{inner: inner, cipher: cipher}
}

func (s *EncryptStream) Next() ([]byte, error) {
	block, err := s.inner.Next()
	if err != nil {
		return nil, err
	}
	return s.cipher.Encrypt(block)
}

func (s *EncryptStream) OriginalChunkSize() int { return s.inner.OriginalChunkSize() }

// DecryptStream reverses EncryptStream block by block, verifying the auth
// tag of every chunk.
type DecryptStream struct {
	inner  ChunkStream
	cipher *crypto.Cipher
}

// NewDecryptStream wraps an outbound stage with per-block decryption.
func NewDecryptStream(inner ChunkStream, cipher *crypto.Cipher) *DecryptStream {
	return &DecryptStream{inner: inner, cipher: cipher}
}

func (s *DecryptStream) Next() ([]byte, error) {
	block, err := s.inner.Next()
	if err != nil {
		return nil, err
	}
	return s.cipher.Decrypt(block)
}

func (s *DecryptStream) OriginalChunkSize() int { return s.inner.OriginalChunkSize() }
