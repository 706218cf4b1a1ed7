package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/newsharvest"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>News</title>
    <item>
      <title>  Bitcoin climbs past resistance </title>
      <link>https://cryptopanic.com/news/101/bitcoin-climbs</link>
      <pubDate>Fri, 28 Aug 2026 10:00:00 GMT</pubDate>
      <author>example.com</author>
      <category>BTC</category>
      <category>ETH</category>
    </item>
    <item>
      <title>Untradeable headline</title>
      <link>https://cryptopanic.com/news/102/untradeable</link>
    </item>
    <item>
      <title></title>
      <link>https://cryptopanic.com/news/103/untitled</link>
    </item>
  </channel>
</rss>`

func parseSample(t *testing.T) *gofeed.Feed {
	t.Helper()
	parsed, err := gofeed.NewParser().ParseString(sampleFeed)
	require.NoError(t, err)
	return parsed
}

func TestFeedToRecords(t *testing.T) {
	records := FeedToRecords(parseSample(t))
	require.Len(t, records, 2, "titleless items are dropped")

	first := records[0]
	assert.Equal(t, "Bitcoin climbs past resistance", first.Title)
	assert.Equal(t, "/news/101/bitcoin-climbs", first.URL, "feed links collapse to site-relative paths")
	assert.Equal(t, "/news/click/101/", first.RedirectURL)
	assert.Equal(t, "2026-08-28T10:00:00Z", first.Date)
	assert.Equal(t, "example.com", first.Source)
	assert.Equal(t, newsharvest.SourceLink, first.SourceType)
	assert.Equal(t, []string{"BTC", "ETH"}, first.Currencies)
	assert.Empty(t, first.Votes, "the feed carries no vote data")

	second := records[1]
	assert.Equal(t, []string{newsharvest.NoCurrency}, second.Currencies)
	assert.Equal(t, "", second.Date)
}

func TestBackfill_DedupsAgainstCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)
	cache := newsharvest.LoadCache(filepath.Join(t.TempDir(), "cache.json"), 50, log)

	// Pre-seed one of the feed's records, as a browser pass would have.
	cache.Put(FeedToRecords(parseSample(t))[0])

	added := Backfill(context.Background(), srv.URL, cache, log)
	assert.Equal(t, 1, added)
	assert.Equal(t, 2, cache.Len())

	// A second backfill finds nothing new.
	assert.Equal(t, 0, Backfill(context.Background(), srv.URL, cache, log))
}

func TestBackfill_FeedErrorIsSwallowed(t *testing.T) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)
	cache := newsharvest.LoadCache(filepath.Join(t.TempDir(), "cache.json"), 50, log)

	added := Backfill(context.Background(), "http://127.0.0.1:1/feed", cache, log)
	assert.Equal(t, 0, added, "an unreachable feed adds nothing and returns no error")
}
