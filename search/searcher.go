package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/yellowbook/ai"
	"github.com/poiesic/yellowbook/core"
	"github.com/poiesic/yellowbook/storage"
	"golang.org/x/sync/singleflight"
)

// DefaultTopK is the number of businesses returned per search.
const DefaultTopK = 5

// Searcher answers natural-language questions over the directory.
//
// Each search checks the response cache, then ranks records by vector
// similarity to the embedded question. When the question cannot be
// embedded it ranks by keyword overlap instead. The ranked records are
// turned into an answer and the result is cached.
type Searcher struct {
	records     storage.RecordRepository
	embedder    ai.Embedder
	ranker      *Ranker
	matcher     *KeywordMatcher
	synthesizer *Synthesizer
	cache       *ResponseCache
	inflight    singleflight.Group
	mu          sync.Mutex
	flights     map[string]*flight
	monitor     SearchMonitor
	logger      *slog.Logger

	topK         int
	cacheTTL     time.Duration
	cacheSize    int
	embedTimeout time.Duration
	now          func() time.Time
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithTopK sets how many businesses a result holds.
// Default is 5.
func WithTopK(k int) Option {
	return func(s *Searcher) error {
		if k < 1 {
			return fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidOption, k)
		}
		s.topK = k
		return nil
	}
}

// WithCacheTTL sets how long answers are cached.
// Default is one hour.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Searcher) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: cache TTL must be positive, got %s", ErrInvalidOption, ttl)
		}
		s.cacheTTL = ttl
		return nil
	}
}

// WithCacheSize bounds the number of cached answers.
func WithCacheSize(size int) Option {
	return func(s *Searcher) error {
		if size < 1 {
			return fmt.Errorf("%w: cache size must be positive, got %d", ErrInvalidOption, size)
		}
		s.cacheSize = size
		return nil
	}
}

// WithEmbedTimeout bounds the query embedding call. Zero leaves it to
// the provider.
func WithEmbedTimeout(d time.Duration) Option {
	return func(s *Searcher) error {
		s.embedTimeout = d
		return nil
	}
}

// WithMonitor installs hooks observing every search.
func WithMonitor(m SearchMonitor) Option {
	return func(s *Searcher) error {
		if m == nil {
			m = &noopMonitor{}
		}
		s.monitor = m
		return nil
	}
}

// WithClock sets the clock used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Searcher) error {
		s.now = now
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(records storage.RecordRepository, provider ai.AIProvider, opts ...Option) (*Searcher, error) {
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		records:   records,
		embedder:  provider.Embedder(),
		matcher:   NewKeywordMatcher(),
		monitor:   &noopMonitor{},
		logger:    slog.Default(),
		topK:      DefaultTopK,
		cacheTTL:  DefaultCacheTTL,
		cacheSize: DefaultCacheSize,
		flights:   make(map[string]*flight),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.logger = s.logger.With("component", "searcher")
	s.ranker = NewRanker(s.logger)
	s.synthesizer = NewSynthesizer(provider.Completer(), s.logger)
	s.cache = NewResponseCache(s.cacheSize, s.cacheTTL, s.now)
	return s, nil
}

// Search answers question, optionally restricted to a city.
//
// It fails only on an invalid question or a record store error. Provider
// failures degrade the result instead: keyword ranking replaces vector
// ranking, and a template replaces the generated answer. Concurrent
// identical searches share one computation, which is cancelled once every
// caller waiting on it has gone.
func (s *Searcher) Search(ctx context.Context, question, city string) (*core.SearchResult, error) {
	query, err := core.NewSearchQuery(question, city)
	if err != nil {
		return nil, err
	}
	s.monitor.Start(query)

	key := CacheKey(query.Question, query.City)
	if cached, ok := s.cache.Get(key); ok {
		s.logger.Debug("cache hit", "key", key)
		s.monitor.CacheHit(key)
		cached.Cached = true
		return cached, nil
	}

	fl := s.join(ctx, key)
	ch := s.inflight.DoChan(key, func() (any, error) {
		return s.compute(fl.ctx, query, key)
	})

	select {
	case <-ctx.Done():
		s.leave(key, fl)
		return nil, ctx.Err()
	case res := <-ch:
		s.leave(key, fl)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*core.SearchResult).Clone(), nil
	}
}

// flight is the context shared by every caller waiting on one key. It is
// cancelled when its last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (s *Searcher) join(ctx context.Context, key string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	fl, ok := s.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: fctx, cancel: cancel}
		s.flights[key] = fl
	}
	fl.waiters++
	return fl
}

func (s *Searcher) leave(key string, fl *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	if s.flights[key] == fl {
		delete(s.flights, key)
		// A later caller must not attach to the cancelled computation.
		s.inflight.Forget(key)
	}
}

// Cache exposes the response cache.
func (s *Searcher) Cache() *ResponseCache {
	return s.cache
}

func (s *Searcher) compute(ctx context.Context, query core.SearchQuery, key string) (*core.SearchResult, error) {
	candidates, err := s.records.ListRecords(ctx, query.City)
	if err != nil {
		s.logger.Error("error listing records", "city", query.City, "err", err)
		return nil, err
	}
	s.monitor.AfterRecordRetrieval(candidates)

	mode := core.SearchModeSemantic
	ranked, err := s.rankByVector(ctx, query.Question, candidates)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		s.logger.Warn("vector ranking unavailable, falling back to keywords", "err", err)
		s.monitor.EmbeddingFailed(err)
		mode = core.SearchModeKeyword
		ranked = s.matcher.Match(query.Question, candidates, s.topK)
	}
	s.monitor.AfterRanking(mode, ranked)

	result := &core.SearchResult{
		Answer:     s.synthesizer.Synthesize(ctx, query.Question, ranked, mode),
		Businesses: ranked,
		Mode:       mode,
	}
	// An abandoned search may have degraded to the template answer.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.cache.Put(key, result)
	s.monitor.Finish(result)
	return result, nil
}

func (s *Searcher) rankByVector(ctx context.Context, question string, candidates []*core.Record) ([]core.RankedRecord, error) {
	if s.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.embedTimeout)
		defer cancel()
	}

	vector, err := s.embedder.EmbedText(ctx, question)
	if err != nil {
		return nil, err
	}
	return s.ranker.Rank(vector, candidates, s.topK)
}
