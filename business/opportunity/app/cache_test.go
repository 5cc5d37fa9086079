package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/flashloan-engine/business/opportunity/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingCollector struct {
	scans   atomic.Int32
	result  []domain.Opportunity
	started chan struct{}
	release chan struct{}
}

func (c *countingCollector) Scan(context.Context) []domain.Opportunity {
	c.scans.Add(1)
	if c.started != nil {
		select {
		case c.started <- struct{}{}:
		default:
		}
	}
	if c.release != nil {
		<-c.release
	}
	return c.result
}

func newTestCache(t *testing.T, col Collector, clock *fakeClock) *Cache {
	t.Helper()
	r := NewRanker(DefaultRankerConfig(), ratings(map[string]float64{"p": 5}))
	c, err := NewCache(col, r, time.Minute, &mockLogger{}, WithClock(clock.Now))
	require.NoError(t, err)
	return c
}

func TestCache_ReadsWithinTTLShareOneScan(t *testing.T) {
	clock := newFakeClock()
	col := &countingCollector{result: []domain.Opportunity{opp("a", "p", "1"), opp("b", "p", "2")}}
	c := newTestCache(t, col, clock)

	first, err := c.Get(context.Background())
	require.NoError(t, err)
	clock.Advance(59 * time.Second)
	second, err := c.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), col.scans.Load())
	assert.Same(t, first, second)
	assert.Equal(t, "b", first.Opportunities[0].ID, "snapshot is ranked")
}

func TestCache_ExpiryRescans(t *testing.T) {
	clock := newFakeClock()
	col := &countingCollector{}
	c := newTestCache(t, col, clock)

	first, err := c.Get(context.Background())
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := c.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), col.scans.Load())
	assert.True(t, second.Timestamp.After(first.Timestamp))
}

func TestCache_EmptyScanStoresEmptySnapshot(t *testing.T) {
	clock := newFakeClock()
	col := &countingCollector{}
	c := newTestCache(t, col, clock)
	assert.Nil(t, c.Peek())

	snap, err := c.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.Len())
	assert.Equal(t, clock.Now(), snap.Timestamp)
	assert.Same(t, snap, c.Peek())
}

func TestCache_ConcurrentMissesSingleFlight(t *testing.T) {
	clock := newFakeClock()
	col := &countingCollector{
		result:  []domain.Opportunity{opp("a", "p", "1")},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := newTestCache(t, col, clock)

	const callers = 16
	var wg sync.WaitGroup
	snaps := make([]*domain.Snapshot, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.Get(context.Background())
			assert.NoError(t, err)
			snaps[i] = s
		}()
	}

	<-col.started
	time.Sleep(20 * time.Millisecond)
	close(col.release)
	wg.Wait()

	assert.Equal(t, int32(1), col.scans.Load())
	for _, s := range snaps {
		assert.Same(t, snaps[0], s)
	}
}

func TestCache_CallerCancellationDoesNotAbortRefresh(t *testing.T) {
	clock := newFakeClock()
	col := &countingCollector{
		result:  []domain.Opportunity{opp("a", "p", "1")},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := newTestCache(t, col, clock)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx)
		errCh <- err
	}()

	<-col.started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(col.release)
	require.Eventually(t, func() bool { return c.Peek() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, c.Peek().Len())
}

func TestCache_Consume(t *testing.T) {
	clock := newFakeClock()
	col := &countingCollector{result: []domain.Opportunity{opp("a", "p", "1"), opp("b", "p", "2")}}
	c := newTestCache(t, col, clock)

	assert.False(t, c.Consume("a"), "nothing cached yet")

	before, err := c.Get(context.Background())
	require.NoError(t, err)
	require.True(t, c.Consume("a"))
	assert.False(t, c.Consume("a"))

	after := c.Peek()
	assert.Equal(t, 2, before.Len(), "previous snapshot untouched")
	assert.Equal(t, 1, after.Len())
	_, found := after.Find("a")
	assert.False(t, found)
	assert.Equal(t, before.Timestamp, after.Timestamp)
}

func TestCache_RefreshIgnoresTTL(t *testing.T) {
	clock := newFakeClock()
	col := &countingCollector{}
	c := newTestCache(t, col, clock)

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), col.scans.Load())
}

func TestCache_OnRefreshNotifiesListeners(t *testing.T) {
	clock := newFakeClock()
	col := &countingCollector{result: []domain.Opportunity{opp("a", "p", "1")}}
	c := newTestCache(t, col, clock)

	got := make(chan *domain.Snapshot, 4)
	c.OnRefresh(func(_ context.Context, snap *domain.Snapshot) { got <- snap })

	snap, err := c.Get(context.Background())
	require.NoError(t, err)
	_, err = c.Get(context.Background())
	require.NoError(t, err)

	select {
	case s := <-got:
		assert.Same(t, snap, s)
	case <-time.After(time.Second):
		t.Fatal("listener not notified")
	}
	select {
	case <-got:
		t.Fatal("cached read must not notify")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCache_SlowListenerDoesNotBlockReaders(t *testing.T) {
	clock := newFakeClock()
	col := &countingCollector{result: []domain.Opportunity{opp("a", "p", "1")}}
	r := NewRanker(DefaultRankerConfig(), ratings(map[string]float64{"p": 5}))
	c, err := NewCache(col, r, time.Minute, &mockLogger{},
		WithClock(clock.Now), WithListenerTimeout(50*time.Millisecond))
	require.NoError(t, err)

	deadlines := make(chan bool, 1)
	c.OnRefresh(func(ctx context.Context, _ *domain.Snapshot) {
		_, ok := ctx.Deadline()
		<-ctx.Done()
		deadlines <- ok
	})
	c.OnRefresh(func(context.Context, *domain.Snapshot) { panic("listener bug") })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Refresh(context.Background())
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh waited on a blocked listener")
	}
	select {
	case ok := <-deadlines:
		assert.True(t, ok, "listener context carries a deadline")
	case <-time.After(time.Second):
		t.Fatal("listener deadline never fired")
	}
}

func TestCache_DropsUnprofitableFromSnapshot(t *testing.T) {
	clock := newFakeClock()
	col := &countingCollector{result: []domain.Opportunity{opp("win", "p", "3"), opp("loss", "p", "-1")}}
	c := newTestCache(t, col, clock)

	snap, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, "win", snap.Opportunities[0].ID)
}
