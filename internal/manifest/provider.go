package manifest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/kk-code-lab/tierstore/internal/metrics"
	"github.com/kk-code-lab/tierstore/internal/storage"
)

// ProviderOptions configures the cached manifest provider.
type ProviderOptions struct {
	Backend storage.Backend
	// Size bounds the number of cached manifests; -1 means unbounded.
	Size int
	// Retention evicts entries this long after insertion; -1 disables
	// time-based expiry.
	Retention time.Duration
	Logger    zerolog.Logger
	Counters  *metrics.CacheCounters
}

// Provider memoizes parsed manifests by segment object key. Concurrent
// misses on the same key share one fetch+parse; failures are never cached.
type Provider struct {
	backend  storage.Backend
	cache    *expirable.LRU[string, *Manifest]
	group    singleflight.Group
	log      zerolog.Logger
	counters *metrics.CacheCounters
}

// NewProvider builds a manifest provider.
func NewProvider(opts ProviderOptions) (*Provider, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("manifest: backend required")
	}
	size := opts.Size
	if size < 0 {
		// expirable.LRU treats 0 as unbounded.
		size = 0
	} else if size == 0 {
		return nil, fmt.Errorf("manifest: cache size must be positive or -1")
	}
	ttl := opts.Retention
	if ttl < 0 {
		ttl = 0
	} else if ttl == 0 {
		return nil, fmt.Errorf("manifest: cache retention must be positive or -1")
	}
	p := &Provider{
		backend:  opts.Backend,
		log:      opts.Logger,
		counters: opts.Counters,
	}
	p.cache = expirable.NewLRU[string, *Manifest](size, nil, ttl)
	return p, nil
}

// Get returns the parsed manifest stored under the given object key,
// fetching and caching it on first use.
func (p *Provider) Get(ctx context.Context, key string) (*Manifest, error) {
	if m, ok := p.cache.Get(key); ok {
		p.counters.Hit()
		return m, nil
	}
	p.counters.Miss()
	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		if m, ok := p.cache.Get(key); ok {
			return m, nil
		}
		m, err := p.load(ctx, key)
		if err != nil {
			p.counters.LoadFailure()
			return nil, err
		}
		p.counters.LoadSuccess()
		p.cache.Add(key, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Manifest), nil
}

func (p *Provider) load(ctx context.Context, key string) (*Manifest, error) {
	body, err := p.backend.Fetch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("manifest: fetch %q: %w", key, err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("manifest: fetch %q: %w", key, err)
	}
	m, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	p.log.Debug().Str("key", key).Int("bytes", len(data)).Msg("manifest loaded")
	return m, nil
}

// Invalidate drops the cached manifest for the key, if present.
func (p *Provider) Invalidate(key string) {
	if p.cache.Remove(key) {
		p.counters.Eviction(metrics.EvictManual)
	}
}
