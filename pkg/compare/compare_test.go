package compare

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"price-compare/pkg/models"
	"price-compare/pkg/pagination"
)

type fakeSearcher struct {
	platform models.Platform
	pages    [][]models.Product
	stop     pagination.StopReason
	err      error
	calls    atomic.Int32
	running  *atomic.Int32
	peak     *atomic.Int32
	delay    time.Duration
}

func (f *fakeSearcher) Run(_ context.Context, _ string, _ int, progress pagination.ProgressFunc) pagination.Result {
	f.calls.Add(1)
	if f.running != nil {
		n := f.running.Add(1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer f.running.Add(-1)
	}
	time.Sleep(f.delay)

	var res pagination.Result
	for i, page := range f.pages {
		res.Products = append(res.Products, page...)
		if progress != nil {
			progress(i+1, pagination.NoPageCap, len(res.Products))
		}
	}
	res.Stop, res.Err = f.stop, f.err
	if res.Stop == "" {
		res.Stop = pagination.Exhausted
	}
	return res
}

func product(platform models.Platform, id string, price, rating float64, sponsored bool) models.Product {
	currency := models.USD.Code
	if platform == models.PlatformDaraz {
		currency = models.PKR.Code
	}
	return models.Product{
		ID:          id,
		Title:       "Product " + id,
		Price:       price,
		Rating:      rating,
		IsSponsored: sponsored,
		Currency:    currency,
		Platform:    platform,
	}
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]models.Product
}

func newMemStore() *memStore { return &memStore{data: map[string][]models.Product{}} }

func (m *memStore) key(p models.Platform, q string, pages int) string {
	return fmt.Sprintf("%s|%s|%d", p.Key(), q, pages)
}

func (m *memStore) Get(p models.Platform, q string, pages int) ([]models.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[m.key(p, q, pages)]
	return v, ok
}

func (m *memStore) Set(p models.Platform, q string, pages int, products []models.Product, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[m.key(p, q, pages)] = products
}

type reporter struct {
	mu      sync.Mutex
	updates []int
	status  string
	message string
	count   int
}

func (r *reporter) Progress(context.Context) func(page, total, count int) {
	return func(_, _, count int) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.updates = append(r.updates, count)
	}
}

func (r *reporter) Complete(_ context.Context, count int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status, r.count, r.message = "completed", count, message
}

func (r *reporter) Fail(_ context.Context, count int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status, r.count, r.message = "error", count, err.Error()
}

func newRunner(store Store, searchers ...*fakeSearcher) *Runner {
	m := make(map[models.Platform]Searcher)
	for _, s := range searchers {
		m[s.platform] = s
	}
	r := NewRunner(m, 3)
	if store != nil {
		r.Store = store
	}
	r.Logger = zap.NewNop()
	return r
}

func TestRunner_RunsAllPlatforms(t *testing.T) {
	amazon := &fakeSearcher{platform: models.PlatformAmazon, pages: [][]models.Product{
		{product(models.PlatformAmazon, "A1", 10, 4, false), product(models.PlatformAmazon, "A2", 20, 0, true)},
	}}
	daraz := &fakeSearcher{platform: models.PlatformDaraz, pages: [][]models.Product{
		{product(models.PlatformDaraz, "D1", 2800, 5, false)},
		{product(models.PlatformDaraz, "D2", 5600, 3, false)},
	}}

	reps := map[models.Platform]*reporter{
		models.PlatformAmazon: {},
		models.PlatformDaraz:  {},
	}
	res := newRunner(nil, amazon, daraz).Run(context.Background(), Request{Query: "mouse"}, func(p models.Platform) Reporter {
		return reps[p]
	})

	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, models.PlatformAmazon, res.Outcomes[0].Platform)
	assert.Equal(t, 4, res.Total())
	assert.Equal(t, map[string]int{"amazon": 2, "daraz": 2}, res.Counts())
	assert.Len(t, res.ByPlatform()["daraz"], 2)

	assert.Equal(t, []int{1, 2}, reps[models.PlatformDaraz].updates)
	assert.Equal(t, "completed", reps[models.PlatformDaraz].status)
	assert.Equal(t, 2, reps[models.PlatformDaraz].count)
}

func TestRunner_PlatformSelection(t *testing.T) {
	amazon := &fakeSearcher{platform: models.PlatformAmazon}
	r := newRunner(nil, amazon)

	assert.Equal(t, []models.Platform{models.PlatformAmazon},
		r.Platforms([]models.Platform{models.PlatformAmazon, "Ebay", models.PlatformAmazon, models.PlatformDaraz}))
	assert.Equal(t, []models.Platform{models.PlatformAmazon}, r.Platforms(nil))
}

func TestRunner_CacheFirst(t *testing.T) {
	store := newMemStore()
	daraz := &fakeSearcher{platform: models.PlatformDaraz, pages: [][]models.Product{
		{product(models.PlatformDaraz, "D1", 1000, 4, false)},
	}}
	r := newRunner(store, daraz)
	req := Request{Query: "buds", Platforms: []models.Platform{models.PlatformDaraz}, MaxPages: 1}

	first := r.Run(context.Background(), req, nil)
	assert.False(t, first.Outcomes[0].Cached)

	rep := &reporter{}
	second := r.Run(context.Background(), req, func(models.Platform) Reporter { return rep })
	assert.True(t, second.Outcomes[0].Cached)
	assert.Len(t, second.Products(models.PlatformDaraz), 1)
	assert.Equal(t, int32(1), daraz.calls.Load())
	assert.Equal(t, "completed", rep.status)
	assert.Contains(t, rep.message, "cache")

	cached, ok := r.Cached(req)
	require.True(t, ok)
	assert.Equal(t, 1, cached.Total())
}

func TestRunner_FailedSearchIsNotCached(t *testing.T) {
	store := newMemStore()
	amazon := &fakeSearcher{
		platform: models.PlatformAmazon,
		pages:    [][]models.Product{{product(models.PlatformAmazon, "A1", 10, 4, false)}},
		stop:     pagination.FetchFailed,
		err:      fmt.Errorf("%w: status 503", models.ErrTransport),
	}
	rep := &reporter{}
	r := newRunner(store, amazon)
	req := Request{Query: "laptop", Platforms: []models.Platform{models.PlatformAmazon}}

	res := r.Run(context.Background(), req, func(models.Platform) Reporter { return rep })

	assert.Len(t, res.Products(models.PlatformAmazon), 1, "partial results are kept")
	assert.Equal(t, pagination.FetchFailed, res.Outcomes[0].Stop)
	assert.Equal(t, "completed", rep.status)
	assert.Contains(t, rep.message, "stopped early")

	_, ok := r.Cached(req)
	assert.False(t, ok)
}

func TestRunner_EmptyFailureReportsError(t *testing.T) {
	amazon := &fakeSearcher{
		platform: models.PlatformAmazon,
		stop:     pagination.FetchFailed,
		err:      fmt.Errorf("%w: status 503", models.ErrTransport),
	}
	rep := &reporter{}
	newRunner(nil, amazon).Run(context.Background(), Request{Query: "tv"}, func(models.Platform) Reporter { return rep })

	assert.Equal(t, "error", rep.status)
	assert.Contains(t, rep.message, "503")
}

func TestRunner_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	amazon := &fakeSearcher{platform: models.PlatformAmazon, running: &running, peak: &peak, delay: 50 * time.Millisecond}
	daraz := &fakeSearcher{platform: models.PlatformDaraz, running: &running, peak: &peak, delay: 50 * time.Millisecond}

	r := newRunner(nil, amazon, daraz)
	r.slots = make(chan struct{}, 1)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(context.Background(), Request{Query: "q"}, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, int32(3), amazon.calls.Load())
}

func TestSummarize(t *testing.T) {
	res := Results{
		Query: "earbuds",
		Outcomes: []Outcome{
			{Platform: models.PlatformAmazon, Products: []models.Product{
				product(models.PlatformAmazon, "A1", 10, 4, true),
				product(models.PlatformAmazon, "A2", 30, 5, false),
				product(models.PlatformAmazon, "A3", 0, 0, false),
				product(models.PlatformAmazon, "A4", 20, 0, true),
			}},
			{Platform: models.PlatformDaraz, Products: []models.Product{
				product(models.PlatformDaraz, "D1", 2800, 4.5, false),
				product(models.PlatformDaraz, "D2", 8400, 0, false),
			}},
			{Platform: "Ebay"},
		},
	}

	s := Summarize(res, 280)
	assert.Equal(t, "earbuds", s.Query)
	assert.Equal(t, 6, s.TotalProducts)
	require.Len(t, s.Platforms, 2)

	a := s.Platforms["amazon"]
	assert.Equal(t, 4, a.Count)
	assert.Equal(t, "USD", a.Currency)
	assert.InDelta(t, 20.0, a.AvgPrice, 1e-9)
	assert.Equal(t, 10.0, a.MinPrice)
	assert.Equal(t, 30.0, a.MaxPrice)
	assert.InDelta(t, 20.0, a.AvgPriceUSD, 1e-9)
	assert.InDelta(t, 4.5, a.AvgRating, 1e-9)
	assert.Equal(t, 2, a.SponsoredCount)
	assert.InDelta(t, 50.0, a.SponsoredPercentage, 1e-9)

	d := s.Platforms["daraz"]
	assert.Equal(t, "PKR", d.Currency)
	assert.InDelta(t, 5600.0, d.AvgPrice, 1e-9)
	assert.InDelta(t, 20.0, d.AvgPriceUSD, 1e-9)
	assert.InDelta(t, 4.5, d.AvgRating, 1e-9)
	assert.Zero(t, d.SponsoredPercentage)
}

func TestSummarize_NoPricedProducts(t *testing.T) {
	res := Results{Outcomes: []Outcome{{Platform: models.PlatformAmazon, Products: []models.Product{
		product(models.PlatformAmazon, "A1", 0, 0, false),
	}}}}

	a := Summarize(res, 280).Platforms["amazon"]
	assert.Zero(t, a.AvgPrice)
	assert.Zero(t, a.MinPrice)
	assert.Zero(t, a.MaxPrice)
	assert.Zero(t, a.AvgRating)
}

func TestFindPair(t *testing.T) {
	res := Results{Outcomes: []Outcome{
		{Platform: models.PlatformAmazon, Products: []models.Product{product(models.PlatformAmazon, "B0X", 10, 4, false)}},
		{Platform: models.PlatformDaraz, Products: []models.Product{product(models.PlatformDaraz, "B0X", 2800, 4, false)}},
	}}

	a, d := FindPair(res, models.PlatformAmazon, models.PlatformDaraz, "B0X")
	require.NotNil(t, a)
	require.NotNil(t, d)
	assert.Equal(t, models.PlatformAmazon, a.Platform)
	assert.Equal(t, models.PlatformDaraz, d.Platform)

	a, d = FindPair(res, models.PlatformAmazon, models.PlatformDaraz, "missing")
	assert.Nil(t, a)
	assert.Nil(t, d)
}
