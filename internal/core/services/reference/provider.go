package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/second-order-ai/singapore-postcode-geocoding/internal/core/domain"
	apperrors "github.com/second-order-ai/singapore-postcode-geocoding/internal/pkg/errors"
)

// Loader reads the geocoded reference table from its system of record
type Loader interface {
	Load(ctx context.Context) (*domain.Table, error)
	Describe() string
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context) (*domain.Table, error)

// Load calls f
func (f LoaderFunc) Load(ctx context.Context) (*domain.Table, error) {
	return f(ctx)
}

// Describe names the loader in logs
func (f LoaderFunc) Describe() string {
	return "func"
}

// Cache is the byte store used for reference snapshots. RedisCache
// satisfies it.
type Cache interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ProviderConfig configures a Provider
type ProviderConfig struct {
	KeyColumn string
	CacheKey  string
	CacheTTL  time.Duration
}

// DefaultProviderConfig keys on POSTAL and caches snapshots for a day
func DefaultProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		KeyColumn: domain.ColPostal,
		CacheKey:  "reference:geocoded:v1",
		CacheTTL:  24 * time.Hour,
	}
}

// Provider hands out the process-wide master reference. The dataset is
// loaded on first use and replaced only by Refresh; readers holding an
// older *Dataset keep a consistent view.
type Provider struct {
	mu      sync.RWMutex
	current *Dataset

	// serialises loads so concurrent first callers share one load
	loadMu sync.Mutex

	loader Loader
	cache  Cache
	config *ProviderConfig
	logger *slog.Logger
}

// NewProvider creates a provider. cache may be nil.
func NewProvider(loader Loader, cache Cache, cfg *ProviderConfig, logger *slog.Logger) *Provider {
	if cfg == nil {
		cfg = DefaultProviderConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		loader: loader,
		cache:  cache,
		config: cfg,
		logger: logger,
	}
}

// NewStaticProvider wraps an already built dataset
func NewStaticProvider(d *Dataset) *Provider {
	p := NewProvider(LoaderFunc(func(context.Context) (*domain.Table, error) {
		return d.Table(), nil
	}), nil, &ProviderConfig{KeyColumn: d.KeyColumn()}, nil)
	p.current = d
	return p
}

// Current returns the loaded dataset or nil
func (p *Provider) Current() *Dataset {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Get returns the dataset, loading it on first use from the snapshot cache
// or the loader.
func (p *Provider) Get(ctx context.Context) (*Dataset, error) {
	if d := p.Current(); d != nil {
		return d, nil
	}

	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	if d := p.Current(); d != nil {
		return d, nil
	}

	if d := p.fromCache(ctx); d != nil {
		p.swap(d)
		return d, nil
	}

	d, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	p.swap(d)
	return d, nil
}

// Refresh reloads from the loader, bypassing the snapshot cache, and swaps
// the new dataset in. On failure the previous dataset stays in place.
func (p *Provider) Refresh(ctx context.Context) (*Dataset, error) {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	d, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	p.swap(d)

	p.logger.Info("master reference refreshed",
		slog.Int("rows", d.Len()),
		slog.Int("postcodes", d.Postcodes().Len()),
		slog.String("source", d.Source()))

	return d, nil
}

func (p *Provider) swap(d *Dataset) {
	p.mu.Lock()
	p.current = d
	p.mu.Unlock()
}

func (p *Provider) load(ctx context.Context) (*Dataset, error) {
	start := time.Now()

	table, err := p.loader.Load(ctx)
	if err != nil {
		return nil, apperrors.ReferenceUnavailable(err)
	}

	d, err := NewDataset(table, p.config.KeyColumn, p.loader.Describe())
	if err != nil {
		return nil, err
	}

	p.logger.Info("master reference loaded",
		slog.String("source", d.Source()),
		slog.Int("rows", d.Len()),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	p.toCache(ctx, d)
	return d, nil
}

// snapshot is the cached form of a dataset
type snapshot struct {
	Source string        `json:"source"`
	Table  *domain.Table `json:"table"`
}

func (p *Provider) fromCache(ctx context.Context) *Dataset {
	if p.cache == nil || p.config.CacheTTL <= 0 {
		return nil
	}

	data, err := p.cache.GetBytes(ctx, p.config.CacheKey)
	if err != nil {
		p.logger.Debug("reference snapshot cache miss",
			slog.String("key", p.config.CacheKey),
			slog.Any("error", err))
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.Table == nil {
		p.logger.Warn("discarding unreadable reference snapshot",
			slog.String("key", p.config.CacheKey))
		_ = p.cache.Delete(ctx, p.config.CacheKey)
		return nil
	}

	d, err := NewDataset(snap.Table, p.config.KeyColumn, fmt.Sprintf("cache(%s)", snap.Source))
	if err != nil {
		p.logger.Warn("discarding invalid reference snapshot",
			slog.String("key", p.config.CacheKey),
			slog.Any("error", err))
		return nil
	}

	p.logger.Info("master reference restored from cache",
		slog.String("key", p.config.CacheKey),
		slog.Int("rows", d.Len()))
	return d
}

func (p *Provider) toCache(ctx context.Context, d *Dataset) {
	if p.cache == nil || p.config.CacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(snapshot{Source: d.Source(), Table: d.Table()})
	if err != nil {
		p.logger.Warn("failed to encode reference snapshot", slog.Any("error", err))
		return
	}
	if err := p.cache.Set(ctx, p.config.CacheKey, data, p.config.CacheTTL); err != nil {
		// cache is best effort; the dataset is already in memory
		p.logger.Warn("failed to store reference snapshot",
			slog.String("key", p.config.CacheKey),
			slog.Any("error", err))
	}
}
