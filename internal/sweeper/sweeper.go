// Package sweeper periodically writes idle, modified documents to the durable
// room store so cached content does not drift far from storage.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/manpreetbhatti/codetogether/internal/logging"
	"github.com/manpreetbhatti/codetogether/internal/metrics"
	"github.com/manpreetbhatti/codetogether/internal/room"
)

// Store is the part of the durable room store the sweeper writes to.
type Store interface {
	SaveContent(ctx context.Context, id, content string) error
}

// Config controls the sweep cycle.
type Config struct {
	Interval      time.Duration
	IdleThreshold time.Duration
	StoreTimeout  time.Duration
}

// DefaultConfig returns the default sweep settings.
func DefaultConfig() Config {
	return Config{
		Interval:      5 * time.Second,
		IdleThreshold: 2 * time.Second,
		StoreTimeout:  5 * time.Second,
	}
}

// Service flushes cached documents on a ticker.
type Service struct {
	cache   *room.Cache
	store   Store
	config  Config
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a sweeper over cache.
func New(cache *room.Cache, store Store, config Config, opts ...Option) *Service {
	s := &Service{
		cache:  cache,
		store:  store,
		config: config,
		logger: logging.New("sweeper"),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.config.StoreTimeout <= 0 {
		s.config.StoreTimeout = DefaultConfig().StoreTimeout
	}
	return s
}

// Start runs the sweep loop in the background.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Infof("sweeper started (interval: %v, idle threshold: %v)",
		s.config.Interval, s.config.IdleThreshold)
}

// Stop ends the loop after one last sweep and waits for it.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.Sweep(context.Background())
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep writes every document that changed since its last write and has been
// idle for at least the idle threshold. It returns the number written. A
// failed write leaves the document dirty for the next cycle.
func (s *Service) Sweep(ctx context.Context) int {
	now := s.now()
	skip := func(snap room.Snapshot) bool {
		return !snap.Dirty || now.Sub(snap.LastModified) < s.config.IdleThreshold
	}

	flushed := 0
	for _, doc := range s.cache.Documents() {
		if ctx.Err() != nil {
			break
		}

		if s.flush(ctx, doc, skip) {
			flushed++
		}
	}

	if flushed > 0 {
		s.logger.Debugf("flushed %d rooms", flushed)
	}
	return flushed
}

func (s *Service) flush(ctx context.Context, doc *room.Document, skip func(room.Snapshot) bool) bool {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	_, ok, err := doc.Flush(ctx, s.store.SaveContent, skip)
	if err != nil {
		s.logger.Errorf("flush room %s: %v", doc.ID, err)
		s.metrics.AddSweepFlush(metrics.ResultFailure)
		return false
	}
	if ok {
		s.metrics.AddSweepFlush(metrics.ResultSuccess)
	}
	return ok
}
