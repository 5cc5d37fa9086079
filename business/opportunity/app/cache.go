package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/fd1az/flashloan-engine/business/opportunity/domain"
	"github.com/fd1az/flashloan-engine/internal/logger"
)

// DefaultCacheTTL is how long a snapshot is served without rescanning.
const DefaultCacheTTL = 60 * time.Second

// DefaultListenerTimeout bounds each snapshot listener call.
const DefaultListenerTimeout = 5 * time.Second

const refreshKey = "snapshot"

// SnapshotListener is called with each newly installed snapshot.
type SnapshotListener func(ctx context.Context, snap *domain.Snapshot)

// Collector produces the raw opportunities of one scan.
type Collector interface {
	Scan(ctx context.Context) []domain.Opportunity
}

type cacheMetrics struct {
	reads           metric.Int64Counter
	refreshes       metric.Int64Counter
	refreshDuration metric.Float64Histogram
	size            metric.Int64Gauge
}

// Cache serves the latest ranked snapshot. Readers never lock: the snapshot
// lives behind an atomic pointer and is replaced whole. Concurrent refreshes
// collapse into one scan.
type Cache struct {
	collector Collector
	ranker    *Ranker
	ttl       time.Duration
	now       func() time.Time
	logger    logger.LoggerInterface

	current atomic.Pointer[domain.Snapshot]
	group   singleflight.Group

	listenersMu     sync.RWMutex
	listeners       []SnapshotListener
	listenerTimeout time.Duration

	metrics *cacheMetrics
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithListenerTimeout bounds each listener call. Non-positive values keep the default.
func WithListenerTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.listenerTimeout = d
		}
	}
}

// NewCache creates a Cache. A negative ttl uses DefaultCacheTTL; zero
// disables reuse so every Get rescans.
func NewCache(collector Collector, ranker *Ranker, ttl time.Duration, log logger.LoggerInterface, opts ...CacheOption) (*Cache, error) {
	if ttl < 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{
		collector: collector,
		ranker:    ranker,
		ttl:       ttl,
		now:       time.Now,
		logger:    log,

		listenerTimeout: DefaultListenerTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *Cache) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	c.metrics = &cacheMetrics{}

	c.metrics.reads, err = meter.Int64Counter(
		"opportunity_cache_reads_total",
		metric.WithDescription("Cache reads by result (hit, miss)"),
	)
	if err != nil {
		return err
	}

	c.metrics.refreshes, err = meter.Int64Counter(
		"opportunity_cache_refreshes_total",
		metric.WithDescription("Snapshot refreshes performed"),
	)
	if err != nil {
		return err
	}

	c.metrics.refreshDuration, err = meter.Float64Histogram(
		"opportunity_cache_refresh_duration_seconds",
		metric.WithDescription("Scan and rank latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	c.metrics.size, err = meter.Int64Gauge(
		"opportunity_cache_size",
		metric.WithDescription("Opportunities in the current snapshot"),
	)
	return err
}

// Get returns the current snapshot when it is within the TTL, otherwise
// scans, ranks and installs a new one. The returned snapshot must not be modified.
func (c *Cache) Get(ctx context.Context) (*domain.Snapshot, error) {
	if snap := c.fresh(); snap != nil {
		c.metrics.reads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "hit")))
		return snap, nil
	}
	c.metrics.reads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "miss")))
	return c.refresh(ctx, false)
}

// Refresh rescans regardless of the TTL.
func (c *Cache) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	return c.refresh(ctx, true)
}

// OnRefresh registers fn to run after every refresh. Listeners run in order on
// a background goroutine, each under its own deadline, so they never delay
// readers waiting on the refresh.
func (c *Cache) OnRefresh(fn SnapshotListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Peek returns the current snapshot without refreshing. It is nil before
// the first scan.
func (c *Cache) Peek() *domain.Snapshot {
	return c.current.Load()
}

// Consume removes id from the current snapshot by installing a copy without
// it. It reports whether id was present.
func (c *Cache) Consume(id string) bool {
	for {
		cur := c.current.Load()
		next, ok := cur.Without(id)
		if !ok {
			return false
		}
		if c.current.CompareAndSwap(cur, next) {
			c.metrics.size.Record(context.Background(), int64(next.Len()))
			return true
		}
	}
}

// Run refreshes the snapshot every interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	if interval <= 0 {
		interval = DefaultCacheTTL
	}

	if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn(ctx, "initial refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn(ctx, "background refresh failed", "error", err)
			}
		}
	}
}

func (c *Cache) fresh() *domain.Snapshot {
	snap := c.current.Load()
	if snap == nil || c.now().Sub(snap.Timestamp) >= c.ttl {
		return nil
	}
	return snap
}

// refresh runs the scan detached from the caller's cancellation so one
// caller leaving cannot fail the result shared with the others. Each caller
// still stops waiting when its own ctx ends.
func (c *Cache) refresh(ctx context.Context, force bool) (*domain.Snapshot, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		if !force {
			if snap := c.fresh(); snap != nil {
				return snap, nil
			}
		}

		start := c.now()
		raw := c.collector.Scan(detached)
		ranked := c.ranker.Rank(raw)
		snap := &domain.Snapshot{Timestamp: c.now(), Opportunities: ranked}
		c.current.Store(snap)

		c.metrics.refreshes.Add(detached, 1)
		c.metrics.refreshDuration.Record(detached, snap.Timestamp.Sub(start).Seconds())
		c.metrics.size.Record(detached, int64(len(ranked)))
		if dropped := len(raw) - len(ranked); dropped > 0 {
			c.logger.Info(detached, "unprofitable opportunities dropped", "dropped", dropped)
		}
		c.logger.Info(detached, "opportunity snapshot refreshed", "opportunities", len(ranked))
		go c.notify(detached, snap)
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Snapshot), nil
	}
}

func (c *Cache) notify(ctx context.Context, snap *domain.Snapshot) {
	c.listenersMu.RLock()
	fns := make([]SnapshotListener, len(c.listeners))
	copy(fns, c.listeners)
	c.listenersMu.RUnlock()

	for _, fn := range fns {
		// A newer refresh has its own notification.
		if cur := c.current.Load(); cur != nil && cur.Timestamp.After(snap.Timestamp) {
			return
		}
		c.callListener(ctx, fn, snap)
	}
}

func (c *Cache) callListener(ctx context.Context, fn SnapshotListener, snap *domain.Snapshot) {
	ctx, cancel := context.WithTimeout(ctx, c.listenerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(ctx, "snapshot listener panicked", "panic", r)
		}
	}()
	fn(ctx, snap)
}
