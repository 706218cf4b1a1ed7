// Package feed backfills the article cache from the origin site's RSS
// feed. The feed carries the same stream as the rendered page, so records
// missed between browser passes can still be picked up cheaply.
package feed

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"

	"github.com/pevans/newsharvest"
)

// FetchRecords fetches and parses the feed at feedURL and converts its
// items to article records.
func FetchRecords(ctx context.Context, feedURL string) ([]newsharvest.ArticleRecord, error) {
	fp := gofeed.NewParser()
	parsed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return FeedToRecords(parsed), nil
}

// FeedToRecords converts all feed items to article records, dropping items
// without a usable title or link.
func FeedToRecords(parsed *gofeed.Feed) []newsharvest.ArticleRecord {
	records := make([]newsharvest.ArticleRecord, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if rec, ok := itemToRecord(item); ok {
			records = append(records, rec)
		}
	}
	return records
}

// itemToRecord maps one feed item onto the record shape the extraction
// engine produces: site-relative URL, derived redirect path, ticker
// categories, no votes (the feed doesn't carry them).
func itemToRecord(item *gofeed.Item) (newsharvest.ArticleRecord, bool) {
	if item.Title == "" || item.Link == "" {
		return newsharvest.ArticleRecord{}, false
	}

	parsed, err := url.Parse(item.Link)
	if err != nil || parsed.Path == "" {
		return newsharvest.ArticleRecord{}, false
	}

	date := ""
	if item.PublishedParsed != nil {
		date = item.PublishedParsed.UTC().Format("2006-01-02T15:04:05Z")
	}

	source := ""
	if item.Author != nil {
		source = strings.TrimSpace(item.Author.Name)
	}

	currencies := make([]string, 0, len(item.Categories))
	for _, cat := range item.Categories {
		if cat = strings.TrimSpace(cat); cat != "" {
			currencies = append(currencies, cat)
		}
	}
	if len(currencies) == 0 {
		currencies = []string{newsharvest.NoCurrency}
	}

	return newsharvest.ArticleRecord{
		Title:       strings.TrimSpace(item.Title),
		URL:         parsed.Path,
		RedirectURL: newsharvest.RedirectPath(parsed.Path),
		Date:        date,
		Source:      source,
		SourceType:  newsharvest.SourceLink,
		Currencies:  currencies,
		Votes:       map[string]int{},
	}, true
}

// Backfill merges feed records into the cache, honoring the same
// URL-dedup rule as page extraction. Best-effort: any feed error is logged
// and swallowed. Returns how many records were added.
func Backfill(ctx context.Context, feedURL string, cache *newsharvest.Cache, log *logrus.Logger) int {
	records, err := FetchRecords(ctx, feedURL)
	if err != nil {
		log.WithError(err).WithField("feed", feedURL).Warn("feed backfill failed")
		return 0
	}

	added := 0
	for _, rec := range records {
		if cache.Has(rec.URL) {
			continue
		}
		cache.Put(rec)
		added++
	}
	if added > 0 {
		log.WithFields(logrus.Fields{"feed": feedURL, "new": added}).Info("feed backfill complete")
	}
	return added
}
