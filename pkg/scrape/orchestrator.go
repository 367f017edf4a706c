// Package scrape runs background website crawls for businesses and tracks
// their status.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/metrics"
	"github.com/jordanlanch/leadscope/pkg/scraper"
)

var (
	// ErrQueueFull is returned when no worker slot is free for a new crawl
	ErrQueueFull = errors.New("scrape queue is full")
	// ErrClosed is returned after Shutdown
	ErrClosed = errors.New("scrape orchestrator is shut down")
)

// Crawler walks a website
type Crawler interface {
	Crawl(ctx context.Context, website string) (*scraper.Result, error)
}

// Config sizes the worker pool
type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	// LockTTL bounds how long a crashed worker keeps a business locked
	LockTTL time.Duration
}

// DefaultConfig returns the standard pool settings
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		QueueSize:  100,
		JobTimeout: 15 * time.Minute,
		LockTTL:    20 * time.Minute,
	}
}

type job struct {
	businessID string
	website    string
}

// Orchestrator queues crawls and runs them on a fixed set of workers
type Orchestrator struct {
	store   *Store
	crawler Crawler
	locker  Locker
	cfg     Config
	logger  logger.Logger
	metrics *metrics.Metrics

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewOrchestrator creates an Orchestrator and starts its workers
func NewOrchestrator(store *Store, crawler Crawler, locker Locker, cfg Config, log logger.Logger, m *metrics.Metrics) *Orchestrator {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.JobTimeout + 5*time.Minute
	}
	if locker == nil {
		locker = NewLocalLocker()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:   store,
		crawler: crawler,
		locker:  locker,
		cfg:     cfg,
		logger:  logger.OrDefault(log).With("component", "scrape_orchestrator"),
		metrics: m,
		jobs:    make(chan job, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	return o
}

// Trigger starts a background crawl of businessID when none has run yet or
// the last one ended empty or failed. It returns the status seen before the
// call and whether a crawl was queued. A business without a website is
// marked empty without crawling.
func (o *Orchestrator) Trigger(ctx context.Context, businessID string, website *string) (Status, bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return "", false, ErrClosed
	}

	prev := StatusNotStarted
	info, err := o.store.Get(ctx, businessID)
	if err != nil {
		return "", false, err
	}
	if info != nil {
		prev = info.Status
	}
	if !prev.Triggerable() {
		return prev, false, nil
	}

	claimed, err := o.store.Claim(ctx, businessID)
	if err != nil {
		return prev, false, err
	}
	if !claimed {
		return prev, false, nil
	}

	if website == nil || *website == "" {
		if err := o.store.SetStatus(ctx, businessID, StatusEmpty); err != nil {
			return prev, false, err
		}
		o.logger.Info("business has no website", "business_id", businessID)
		return prev, false, nil
	}

	select {
	case o.jobs <- job{businessID: businessID, website: *website}:
		o.metrics.SetScrapeQueueDepth(len(o.jobs))
		o.logger.Info("crawl queued", "business_id", businessID, "website", *website)
		return prev, true, nil
	default:
		if err := o.store.SetStatus(ctx, businessID, StatusFailed); err != nil {
			o.logger.Error("failed to release claim", "business_id", businessID, "error", err)
		}
		o.logger.Warn("crawl queue full", "business_id", businessID)
		return prev, false, ErrQueueFull
	}
}

// Status returns the crawl status of a business, or pending when it has no
// business_info row
func (o *Orchestrator) Status(ctx context.Context, businessID string) (Status, error) {
	info, err := o.store.Get(ctx, businessID)
	if err != nil {
		return "", err
	}
	if info == nil {
		return StatusPending, nil
	}
	return info.Status, nil
}

// Run crawls a business synchronously, bypassing the queue but not the
// per-business lock
func (o *Orchestrator) Run(ctx context.Context, businessID, website string) (*scraper.Result, Status, error) {
	if err := o.store.SetStatus(ctx, businessID, StatusInProgress); err != nil {
		return nil, "", err
	}
	return o.execute(ctx, job{businessID: businessID, website: website})
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case j := <-o.jobs:
			o.metrics.SetScrapeQueueDepth(len(o.jobs))
			o.runJob(j)
		}
	}
}

func (o *Orchestrator) runJob(j job) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("crawl panic: %v", r)
			o.logger.Error("crawl panicked", "business_id", j.businessID, "panic", r)
			o.capture(j, err)
			o.finish(j.businessID, StatusFailed)
		}
	}()

	if _, _, err := o.execute(o.ctx, j); err != nil {
		o.logger.Warn("crawl did not complete", "business_id", j.businessID, "error", err)
	}
}

// execute crawls under the per-business lock and stores the outcome. The
// lock is released before the terminal status is written, so a crawl
// claimed right after that status is visible always finds the lock free.
func (o *Orchestrator) execute(ctx context.Context, j job) (*scraper.Result, Status, error) {
	start := time.Now()
	result, locked, err := o.crawl(ctx, j)
	if !locked && err == nil {
		o.logger.Info("crawl already running elsewhere", "business_id", j.businessID)
		return nil, StatusInProgress, nil
	}
	if err != nil {
		o.metrics.RecordScrape(string(StatusFailed), time.Since(start))
		o.finish(j.businessID, StatusFailed)
		if !errors.Is(err, context.Canceled) {
			o.capture(j, err)
		}
		return nil, StatusFailed, err
	}

	saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer saveCancel()
	status, err := o.store.SaveResult(saveCtx, j.businessID, result)
	if err != nil {
		o.metrics.RecordScrape(string(StatusFailed), time.Since(start))
		o.finish(j.businessID, StatusFailed)
		o.capture(j, err)
		return result, StatusFailed, err
	}

	o.metrics.RecordScrape(string(status), time.Since(start))
	o.logger.Info("crawl stored", "business_id", j.businessID, "status", status,
		"duration_ms", time.Since(start).Milliseconds())
	return result, status, nil
}

func (o *Orchestrator) crawl(ctx context.Context, j job) (*scraper.Result, bool, error) {
	unlock, ok, err := o.locker.TryLock(ctx, lockKey(j.businessID), o.cfg.LockTTL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock %s: %w", j.businessID, err)
	}
	if !ok {
		return nil, false, nil
	}
	defer unlock()

	jctx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()
	result, err := o.crawler.Crawl(jctx, j.website)
	return result, true, err
}

// finish writes a terminal status even when the orchestrator is stopping
func (o *Orchestrator) finish(businessID string, status Status) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.SetStatus(ctx, businessID, status); err != nil {
		o.logger.Error("failed to store crawl status", "business_id", businessID, "status", status, "error", err)
	}
}

func (o *Orchestrator) capture(j job, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("business_id", j.businessID)
		scope.SetExtra("website", j.website)
		sentry.CaptureException(err)
	})
}

// Shutdown stops accepting crawls, cancels running ones and waits for the
// workers. Crawls still queued are marked failed so they can be retried.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		select {
		case j := <-o.jobs:
			o.finish(j.businessID, StatusFailed)
		default:
			o.metrics.SetScrapeQueueDepth(0)
			return nil
		}
	}
}
