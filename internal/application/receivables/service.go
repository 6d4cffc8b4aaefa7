package receivables

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerlens/backend/internal/domain/aging"
	"github.com/ledgerlens/backend/internal/domain/dataset"
	"github.com/ledgerlens/backend/internal/infrastructure/cache"
	"github.com/ledgerlens/backend/internal/infrastructure/tally"
)

// ErrSuperseded marks a fetch cancelled because a newer fetch for the same
// logical query started. It is a suppression signal, not a failure: it never
// lands in the last-error slot and carries no user-visible effect.
var ErrSuperseded = errors.New("receivables: fetch superseded by a newer request")

// Fetcher abstracts the upstream client so the service can be exercised
// without a live accounting system.
type Fetcher interface {
	Fetch(ctx context.Context, company tally.Company, formula string) (dataset.Dataset, error)
}

// Result is one loaded dataset with its schema resolved once, alongside.
type Result struct {
	Data      dataset.Dataset
	Schema    dataset.Schema
	FromCache bool
}

// Service is the engine's fetch orchestrator: cache consultation, per-query
// cancellation of superseded fetches, normalization, and the single
// last-error slot the presentation layer consumes.
type Service struct {
	fetcher Fetcher
	cache   *cache.TieredCache
	buckets aging.BucketConfig
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	gen      uint64
	inflight map[string]*inflightFetch
	lastErr  error
}

type inflightFetch struct {
	cancel context.CancelFunc
	gen    uint64
}

// ServiceOption is a functional option for Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithServiceClock overrides the time source, for tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService wires the orchestrator.
func NewService(fetcher Fetcher, c *cache.TieredCache, buckets aging.BucketConfig, opts ...ServiceOption) *Service {
	s := &Service{
		fetcher:  fetcher,
		cache:    c,
		buckets:  buckets,
		logger:   zap.NewNop(),
		now:      time.Now,
		inflight: make(map[string]*inflightFetch),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Buckets returns the active aging bucket configuration.
func (s *Service) Buckets() aging.BucketConfig { return s.buckets }

// Fetch loads the normalized dataset for one company and formula. The cache
// is consulted first unless forceRefresh is set; a successful live fetch
// always (re)writes the cache. Issuing a fetch cancels any in-flight fetch
// for the same logical query, so results are never applied out of order
// within one query key.
func (s *Service) Fetch(ctx context.Context, company tally.Company, formula string, forceRefresh bool) (Result, error) {
	key, cacheable := cache.NewKey(company.LocationID, company.GUID, formula)

	if cacheable && !forceRefresh {
		if entry, ok := s.cache.Get(ctx, key); ok {
			d := entry.Dataset()
			s.logger.Debug("serving receivables from cache", zap.String("key", key.String()))
			return Result{Data: d, Schema: dataset.ResolveSchema(d.Columns), FromCache: true}, nil
		}
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var gen uint64
	if cacheable {
		gen = s.supersede(key.String(), cancel)
		defer s.release(key.String(), gen)
	}

	raw, err := s.fetcher.Fetch(fetchCtx, company, formula)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(fetchCtx.Err(), context.Canceled) {
			// Superseded or abandoned: suppress entirely, success and error
			// effects alike.
			return Result{}, ErrSuperseded
		}
		s.recordError(err)
		return Result{}, err
	}
	if fetchCtx.Err() != nil {
		// A newer fetch won the race after this one completed; its result is
		// the one that counts.
		return Result{}, ErrSuperseded
	}

	norm := dataset.Normalize(raw)
	if cacheable {
		s.cache.Put(ctx, key, norm)
	}
	s.clearError()
	s.logger.Info("receivables fetched",
		zap.String("location_id", company.LocationID),
		zap.String("company_guid", company.GUID),
		zap.String("formula", formula),
		zap.Int("rows", len(norm.Rows)),
		zap.Bool("force_refresh", forceRefresh))
	return Result{Data: norm, Schema: dataset.ResolveSchema(norm.Columns)}, nil
}

// Aggregator loads the dataset (from cache when fresh) and returns an
// aggregator anchored at the current day.
func (s *Service) Aggregator(ctx context.Context, company tally.Company, formula string) (*Aggregator, error) {
	res, err := s.Fetch(ctx, company, formula, false)
	if err != nil {
		return nil, err
	}
	return NewAggregator(res.Data, res.Schema, s.buckets, s.now()), nil
}

// ViewSet loads the dataset and returns a fresh view set over it.
func (s *Service) ViewSet(ctx context.Context, company tally.Company, formula string) (*ViewSet, error) {
	res, err := s.Fetch(ctx, company, formula, false)
	if err != nil {
		return nil, err
	}
	return NewViewSet(res.Data, res.Schema, s.now()), nil
}

// LastError returns the most recent unsuppressed fetch failure, or nil after
// a successful fetch. Cancellations never touch it.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// supersede cancels any in-flight fetch for the key and registers this one.
func (s *Service) supersede(key string, cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.inflight[key]; ok {
		prev.cancel()
	}
	s.gen++
	s.inflight[key] = &inflightFetch{cancel: cancel, gen: s.gen}
	return s.gen
}

// release clears the in-flight slot if it still belongs to this fetch.
func (s *Service) release(key string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.inflight[key]; ok && f.gen == gen {
		delete(s.inflight, key)
	}
}

func (s *Service) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.logger.Warn("receivables fetch failed", zap.Error(err))
}

func (s *Service) clearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}
