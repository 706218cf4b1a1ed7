package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/pevans/newsharvest"
	"github.com/pevans/newsharvest/browser"
	"github.com/pevans/newsharvest/browser/browsertest"
)

// fakeSink records every upserted batch.
type fakeSink struct {
	mu      sync.Mutex
	batches [][]newsharvest.ArticleRecord
}

func (s *fakeSink) Upsert(ctx context.Context, records []newsharvest.ArticleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]newsharvest.ArticleRecord, len(records))
	copy(batch, records)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *fakeSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func linkRecord(id int, source string) newsharvest.ArticleRecord {
	url := fmt.Sprintf("/news/%d/story-%d", id, id)
	return newsharvest.ArticleRecord{
		Title:       fmt.Sprintf("Story %d", id),
		URL:         url,
		RedirectURL: newsharvest.RedirectPath(url),
		Date:        "2026-08-28T10:00:00Z",
		Source:      source,
		SourceType:  newsharvest.SourceLink,
		Currencies:  []string{newsharvest.NoCurrency},
		Votes:       map[string]int{},
	}
}

func fastReader(t *testing.T, handler http.HandlerFunc) *Reader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	r := NewReader(srv.URL, "key", testConfigs(), testLogger())
	r.limiter.SetLimit(rate.Every(time.Microsecond))
	return r
}

func sessionPool(n int, navigate func(url string) (string, error)) []browser.Page {
	pool := make([]browser.Page, n)
	for i := range pool {
		page := browsertest.NewFakePage()
		page.NavigateFunc = navigate
		pool[i] = page
	}
	return pool
}

func newTestEnricher(t *testing.T, dir string, reader *Reader) (*Enricher, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	e := &Enricher{
		Cache:    newsharvest.LoadCache(filepath.Join(dir, "cache.json"), 50, testLogger()),
		Index:    newsharvest.LoadRedirectIndex(filepath.Join(dir, "redirects.json"), testLogger()),
		Reader:   reader,
		Resolver: &Resolver{OriginBase: "https://cryptopanic.com", Log: testLogger()},
		Sink:     sink,
		Log:      testLogger(),
	}
	return e, sink
}

func TestEnricherRun_ResolvesAndFetches(t *testing.T) {
	reader := fastReader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"description": "fetched body"}}`))
	})

	dir := t.TempDir()
	e, sink := newTestEnricher(t, dir, reader)
	for i := 1; i <= 5; i++ {
		e.Cache.Put(linkRecord(i, "example.com"))
	}

	pool := sessionPool(2, func(url string) (string, error) {
		return "https://example.com/full-story", nil
	})
	require.NoError(t, e.Run(context.Background(), pool))

	assert.Equal(t, 5, e.Index.Len())
	assert.Equal(t, 5, sink.total(), "every resolved record reaches the sink")

	rec, ok := e.Cache.Get("/news/3/story-3")
	require.True(t, ok)
	require.NotNil(t, rec.FinalURL)
	assert.Equal(t, "https://example.com/full-story", *rec.FinalURL)
	require.NotNil(t, rec.Content)
	assert.Equal(t, "fetched body", *rec.Content)

	// Both state files were flushed on the way out.
	reloaded := newsharvest.LoadRedirectIndex(filepath.Join(dir, "redirects.json"), testLogger())
	assert.True(t, reloaded.Resolved("/news/click/3/"))
}

func TestEnricherRun_BatchCheckpoints(t *testing.T) {
	reader := fastReader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body"))
	})

	e, sink := newTestEnricher(t, t.TempDir(), reader)
	e.BatchSize = 3
	for i := 1; i <= 7; i++ {
		e.Cache.Put(linkRecord(i, "example.com"))
	}

	pool := sessionPool(2, func(url string) (string, error) {
		return "https://example.com/full-story", nil
	})
	require.NoError(t, e.Run(context.Background(), pool))

	require.Len(t, sink.batches, 3, "seven records at batch size three means two full batches plus a remainder")
	assert.Len(t, sink.batches[0], 3)
	assert.Len(t, sink.batches[1], 3)
	assert.Len(t, sink.batches[2], 1)
}

func TestEnricherRun_OnOriginSkipsFetch(t *testing.T) {
	var fetches atomic.Int32
	reader := fastReader(t, func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte("body"))
	})

	e, _ := newTestEnricher(t, t.TempDir(), reader)
	e.Cache.Put(linkRecord(1, "example.com"))

	pool := sessionPool(1, func(url string) (string, error) {
		return "https://cryptopanic.com/news/1/story-1", nil
	})
	require.NoError(t, e.Run(context.Background(), pool))

	assert.Zero(t, fetches.Load(), "still-on-origin destinations never hit the reader")

	rec, _ := e.Cache.Get("/news/1/story-1")
	require.NotNil(t, rec.FinalURL, "the resolution itself is still recorded")
	assert.Nil(t, rec.Content)
	assert.True(t, e.Index.Resolved("/news/click/1/"))
}

func TestEnricherRun_ErrorTagsStayUnresolved(t *testing.T) {
	reader := fastReader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body"))
	})

	e, sink := newTestEnricher(t, t.TempDir(), reader)
	e.Cache.Put(linkRecord(1, "example.com"))

	pool := sessionPool(1, func(url string) (string, error) {
		return "", fmt.Errorf("net::ERR_NAME_NOT_RESOLVED")
	})
	require.NoError(t, e.Run(context.Background(), pool))

	result, ok := e.Index.Get("/news/click/1/")
	require.True(t, ok)
	assert.Equal(t, newsharvest.RedirectErrNavigation, result)
	assert.False(t, e.Index.Resolved("/news/click/1/"), "error tags are re-attemptable")
	assert.Zero(t, sink.total(), "failed resolutions never reach the sink")

	rec, _ := e.Cache.Get("/news/1/story-1")
	assert.Nil(t, rec.FinalURL)
}

func TestEnricherRun_SkipsNonCandidates(t *testing.T) {
	reader := fastReader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body"))
	})

	e, _ := newTestEnricher(t, t.TempDir(), reader)

	tw := linkRecord(1, "twitter.com")
	tw.SourceType = newsharvest.SourceTwitter
	e.Cache.Put(tw)

	done := linkRecord(2, "example.com")
	final := "https://example.com/old"
	done.FinalURL = &final
	e.Cache.Put(done)

	indexed := linkRecord(3, "example.com")
	e.Cache.Put(indexed)
	e.Index.Set(indexed.RedirectURL, "https://example.com/already")

	var navigations atomic.Int32
	pool := sessionPool(1, func(url string) (string, error) {
		navigations.Add(1)
		return "https://example.com/full-story", nil
	})
	require.NoError(t, e.Run(context.Background(), pool))

	assert.Zero(t, navigations.Load(),
		"non-link, already-enriched, and already-resolved records are not candidates")
}
