package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-search-scraper/internal/models"
)

type fakeScraper struct {
	results  map[string]int
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	pages    map[string]int
}

func (f *fakeScraper) ScrapeQuery(ctx context.Context, query string) []models.Product {
	return f.ScrapePages(ctx, query, 0)
}

func (f *fakeScraper) ScrapePages(ctx context.Context, query string, pages int) []models.Product {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	f.mu.Lock()
	if f.pages == nil {
		f.pages = make(map[string]int)
	}
	f.pages[query] = pages
	f.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	products := make([]models.Product, 0, f.results[query])
	for i := 0; i < f.results[query]; i++ {
		price := 10.0
		p, _ := models.NewProduct(models.Listing{Title: query, Price: &price}, query)
		products = append(products, p)
	}
	return products
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Save(ctx context.Context, query string, products []models.Product) error {
	args := m.Called(ctx, query, products)
	return args.Error(0)
}

func TestRunPreservesOrderAndBoundsConcurrency(t *testing.T) {
	fs := &fakeScraper{results: map[string]int{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5, "f": 6}}
	sink := new(MockSink)
	sink.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	r := New(fs, []Sink{sink}, 3, nil)
	queries := []string{"a", "b", "c", "d", "e", "f"}

	results := r.Run(context.Background(), queries)

	require.Len(t, results, len(queries))
	for i, res := range results {
		assert.Equal(t, queries[i], res.Query)
		assert.Equal(t, i+1, res.Products)
		assert.Equal(t, i+1, res.Priced)
		assert.NoError(t, res.Err)
	}
	assert.LessOrEqual(t, fs.peak.Load(), int32(3))
	sink.AssertNumberOfCalls(t, "Save", 6)
}

func TestRunSkipsSinksForEmptyResults(t *testing.T) {
	fs := &fakeScraper{results: map[string]int{"full": 2}}
	sink := new(MockSink)
	sink.On("Save", mock.Anything, "full", mock.MatchedBy(func(p []models.Product) bool {
		return len(p) == 2
	})).Return(nil)

	results := New(fs, []Sink{sink}, 2, nil).Run(context.Background(), []string{"empty", "full"})

	assert.NoError(t, results[0].Err)
	assert.Equal(t, 0, results[0].Products)
	assert.Equal(t, 2, results[1].Products)
	sink.AssertExpectations(t)
	sink.AssertNotCalled(t, "Save", mock.Anything, "empty", mock.Anything)
}

func TestRunIsolatesSinkFailures(t *testing.T) {
	fs := &fakeScraper{results: map[string]int{"good": 1, "bad": 1}}
	sink := new(MockSink)
	sink.On("Save", mock.Anything, "good", mock.Anything).Return(nil)
	sink.On("Save", mock.Anything, "bad", mock.Anything).Return(errors.New("disk full"))

	results := New(fs, []Sink{sink}, 1, nil).Run(context.Background(), []string{"good", "bad"})

	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.Contains(t, results[1].Err.Error(), "disk full")

	summary := results[1].Summary()
	assert.False(t, summary.Success)
	assert.Equal(t, "disk full", summary.Error)
}

func TestRunQueryPassesPageCap(t *testing.T) {
	fs := &fakeScraper{results: map[string]int{"q": 1}}

	res := New(fs, nil, 1, nil).RunQuery(context.Background(), "q", 4)

	assert.NoError(t, res.Err)
	assert.Equal(t, 4, fs.pages["q"])
}

func TestRunQueryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fs := &fakeScraper{}
	res := New(fs, nil, 1, nil).RunQuery(ctx, "q", 0)

	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, fs.pages)
}

func TestLogSummary(t *testing.T) {
	results := []QueryResult{
		{Query: "a", Products: 3},
		{Query: "b", Err: errors.New("boom")},
		{Query: "c", Products: 0},
	}

	ok, failed := LogSummary(slog.Default(), results)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)
}

type interruptedScraper struct {
	cancel context.CancelFunc
}

func (s interruptedScraper) ScrapeQuery(ctx context.Context, query string) []models.Product {
	return s.ScrapePages(ctx, query, 0)
}

func (s interruptedScraper) ScrapePages(ctx context.Context, query string, pages int) []models.Product {
	price := 5.0
	p, _ := models.NewProduct(models.Listing{Title: "partial", Price: &price}, query)
	s.cancel()
	return []models.Product{p}
}

func TestRunQuerySavesPartialResultsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := new(MockSink)
	sink.On("Save", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), "cable", mock.Anything).Return(nil).Once()

	res := New(interruptedScraper{cancel: cancel}, []Sink{sink}, 1, nil).RunQuery(ctx, "cable", 0)

	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Products)
	assert.Error(t, ctx.Err())
	sink.AssertExpectations(t)
}
