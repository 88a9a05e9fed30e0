package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/kk-code-lab/tierstore/internal/chunkindex"
	"github.com/kk-code-lab/tierstore/internal/crypto"
	"github.com/kk-code-lab/tierstore/internal/manifest"
	"github.com/kk-code-lab/tierstore/internal/storage"
	"github.com/kk-code-lab/tierstore/internal/transform"
)

// ErrChunkOutOfRange reports a chunk ordinal outside the segment.
var ErrChunkOutOfRange = errors.New("fetch: chunk ordinal out of range")

// Manager rebuilds plaintext chunks: object-store range GET, then the
// outbound transform chain the manifest prescribes.
type Manager struct {
	backend storage.Backend
	keys    *crypto.KeyPair

	// ciphers memoizes the unwrapped per-segment cipher so the RSA unwrap
	// runs once per segment, keyed by log object key.
	ciphersMu sync.Mutex
	ciphers   map[string]*crypto.Cipher
}

// NewManager builds a chunk manager. keys may be nil when no segment uses
// encryption.
func NewManager(backend storage.Backend, keys *crypto.KeyPair) *Manager {
	return &Manager{
		backend: backend,
		keys:    keys,
		ciphers: make(map[string]*crypto.Cipher),
	}
}

// Chunk returns a stream yielding exactly the plaintext bytes of one chunk.
func (m *Manager) Chunk(ctx context.Context, logKey string, man *manifest.Manifest, ordinal int) (io.ReadCloser, error) {
	c, err := man.Index.Get(ordinal)
	if err != nil {
		return nil, fmt.Errorf("%w: ordinal %d", ErrChunkOutOfRange, ordinal)
	}
	body, err := m.backend.FetchRange(ctx, logKey, c.TransformedFrom, c.TransformedFrom+int64(c.TransformedSize)-1)
	if err != nil {
		return nil, err
	}
	var stream transform.ChunkStream = transform.NewDechunker(body, man.Index.OriginalChunkSize(), []chunkindex.Chunk{c})
	if man.Encryption != nil {
		cipher, err := m.cipher(logKey, man.Encryption)
		if err != nil {
			_ = body.Close()
			return nil, err
		}
		stream = transform.NewDecryptStream(stream, cipher)
	}
	if man.Compressed {
		stream = transform.NewDecompressStream(stream)
	}
	return transform.NewReader(stream, body), nil
}

// Loader adapts Chunk to the cache's loader contract.
func (m *Manager) Loader(logKey string, man *manifest.Manifest, ordinal int) Loader {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return m.Chunk(ctx, logKey, man, ordinal)
	}
}

func (m *Manager) cipher(logKey string, enc *manifest.EncryptionMetadata) (*crypto.Cipher, error) {
	m.ciphersMu.Lock()
	cached, ok := m.ciphers[logKey]
	m.ciphersMu.Unlock()
	if ok {
		return cached, nil
	}
	if m.keys == nil {
		return nil, errors.New("fetch: segment is encrypted but no key pair configured")
	}
	dataKey, err := m.keys.Unwrap(enc.WrappedDataKey)
	if err != nil {
		return nil, err
	}
	cipher, err := crypto.NewCipher(dataKey, enc.AAD)
	if err != nil {
		return nil, err
	}
	m.ciphersMu.Lock()
	m.ciphers[logKey] = cipher
	m.ciphersMu.Unlock()
	return cipher, nil
}

// Forget drops the memoized cipher for a deleted segment.
func (m *Manager) Forget(logKey string) {
	m.ciphersMu.Lock()
	delete(m.ciphers, logKey)
	m.ciphersMu.Unlock()
}
