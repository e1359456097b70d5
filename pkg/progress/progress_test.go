package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"price-compare/pkg/models"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestSession_Finished(t *testing.T) {
	assert.False(t, Session{}.Finished())
	assert.False(t, Session{
		"amazon": {Status: StatusCompleted},
		"daraz":  {Status: StatusInProgress},
	}.Finished())
	assert.True(t, Session{
		"amazon": {Status: StatusCompleted},
		"daraz":  {Status: StatusError},
	}.Finished())
}

func TestMemoryLedger_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewMemoryLedger()
	l.now = clk.now

	_, err := l.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	require.NoError(t, l.Put(ctx, "s1", Entry{Platform: "amazon", Status: StatusInProgress}))
	require.NoError(t, l.Put(ctx, "s1", Entry{Platform: "daraz", Status: StatusInProgress}))
	require.NoError(t, l.Put(ctx, "s1", Entry{Platform: "amazon", Status: StatusCompleted, ProductsFound: 12}))

	s, err := l.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.Equal(t, StatusCompleted, s["amazon"].Status)
	assert.Equal(t, 12, s["amazon"].ProductsFound)

	require.NoError(t, l.Release(ctx, "s1", time.Minute))
	clk.advance(30 * time.Second)
	_, err = l.Get(ctx, "s1")
	assert.NoError(t, err, "still readable during the grace period")

	clk.advance(time.Minute)
	_, err = l.Get(ctx, "s1")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestMemoryLedger_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	require.NoError(t, l.Put(ctx, "s1", Entry{Platform: "amazon", Status: StatusInProgress}))

	s, err := l.Get(ctx, "s1")
	require.NoError(t, err)
	s["amazon"] = Entry{Platform: "amazon", Status: StatusError}

	again, err := l.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, again["amazon"].Status)
}

func TestMemoryLedger_Sweep(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Now()}
	l := NewMemoryLedger()
	l.now = clk.now

	require.NoError(t, l.Put(ctx, "done", Entry{Platform: "amazon"}))
	require.NoError(t, l.Put(ctx, "running", Entry{Platform: "daraz"}))
	require.NoError(t, l.Release(ctx, "done", time.Second))
	assert.ErrorIs(t, l.Release(ctx, "unknown", time.Second), models.ErrSessionNotFound)

	clk.advance(2 * time.Second)
	assert.Equal(t, 1, l.Sweep())

	_, err := l.Get(ctx, "running")
	assert.NoError(t, err)

	clk.advance(DefaultMaxAge)
	assert.Equal(t, 1, l.Sweep())
}

func TestMemoryLedger_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	var wg sync.WaitGroup
	for _, platform := range []string{"amazon", "daraz"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := 1; page <= 50; page++ {
				assert.NoError(t, l.Put(ctx, "s1", Entry{Platform: platform, CurrentPage: page}))
				_, _ = l.Get(ctx, "s1")
			}
		}()
	}
	wg.Wait()

	s, err := l.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 50, s["amazon"].CurrentPage)
	assert.Equal(t, 50, s["daraz"].CurrentPage)
}

func newRedisLedger(t *testing.T) (*RedisLedger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLedger(client), mr
}

func TestRedisLedger_Lifecycle(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLedger(t)

	_, err := l.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	require.NoError(t, l.Put(ctx, "s1", Entry{Platform: "amazon", Status: StatusInProgress, CurrentPage: 2, TotalPages: 5}))
	require.NoError(t, l.Put(ctx, "s1", Entry{Platform: "daraz", Status: StatusCompleted, ProductsFound: 40}))

	s, err := l.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.Equal(t, 2, s["amazon"].CurrentPage)
	assert.Equal(t, 5, s["amazon"].TotalPages)
	assert.Equal(t, 40, s["daraz"].ProductsFound)
	assert.True(t, mr.TTL("progress:s1") > time.Hour)

	require.NoError(t, l.Release(ctx, "s1", time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("progress:s1"))

	mr.FastForward(2 * time.Minute)
	_, err = l.Get(ctx, "s1")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	assert.ErrorIs(t, l.Release(ctx, "s1", time.Minute), models.ErrSessionNotFound)
}

func TestRedisLedger_SkipsUnreadableEntries(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLedger(t)

	require.NoError(t, l.Put(ctx, "s1", Entry{Platform: "amazon", Status: StatusCompleted}))
	mr.HSet("progress:s1", "daraz", "{not json")

	s, err := l.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, s, 1)
	assert.Contains(t, s, "amazon")
}

type failingLedger struct{}

func (failingLedger) Put(context.Context, string, Entry) error { return errors.New("ledger down") }
func (failingLedger) Get(context.Context, string) (Session, error) {
	return nil, errors.New("ledger down")
}
func (failingLedger) Release(context.Context, string, time.Duration) error {
	return errors.New("ledger down")
}

func TestTracker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	tr := &Tracker{Ledger: l, SessionID: "s1", Platform: models.PlatformDaraz, Logger: zap.NewNop()}

	tr.Start(ctx, 3)
	s, err := l.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s["daraz"].Status)
	assert.Equal(t, 3, s["daraz"].TotalPages)

	progress := tr.Progress(ctx)
	progress(1, 3, 40)
	progress(2, 3, 80)
	s, _ = l.Get(ctx, "s1")
	assert.Equal(t, 2, s["daraz"].CurrentPage)
	assert.Equal(t, 80, s["daraz"].ProductsFound)
	assert.False(t, s.Finished())

	tr.Complete(ctx, 80, "")
	s, _ = l.Get(ctx, "s1")
	assert.Equal(t, StatusCompleted, s["daraz"].Status)
	assert.Equal(t, "Found 80 products", s["daraz"].Message)
	assert.True(t, s.Finished())

	tr2 := &Tracker{Ledger: l, SessionID: "s1", Platform: models.PlatformAmazon, Logger: zap.NewNop()}
	tr2.Fail(ctx, 0, errors.New("status 503"))
	s, _ = l.Get(ctx, "s1")
	assert.Equal(t, StatusError, s["amazon"].Status)
	assert.Equal(t, "status 503", s["amazon"].Message)
}

func TestTracker_LedgerFailureIsNotFatal(t *testing.T) {
	tr := &Tracker{Ledger: failingLedger{}, SessionID: "s1", Platform: models.PlatformAmazon, Logger: zap.NewNop()}
	assert.NotPanics(t, func() {
		tr.Start(context.Background(), 1)
		tr.Complete(context.Background(), 0, "")
	})
}
