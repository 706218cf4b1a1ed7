package scraper

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/pevans/newsharvest"
	"github.com/pevans/newsharvest/browser"
)

// Row-level selectors, shared by the bulk script and the fallback parser.
const (
	titleSelector    = "span.title-text span"
	linkSelector     = "a.news-cell.nc-title"
	timeSelector     = "time"
	sourceSelector   = "span.si-source-domain"
	twitterSelector  = "span.open-link-icon.icon.icon-twitter"
	youtubeSelector  = "span.open-link-icon.icon.icon-youtube-play"
	currencySelector = "a.colored-link"
	voteSelector     = "span.nc-vote-cont"
)

// bulkExtractScript scans every article row in one evaluation and returns
// the raw field tuples in a single round trip.
const bulkExtractScript = `(() => {
	return Array.from(document.querySelectorAll('div.news-row.news-row-link')).map(row => {
		const textOf = sel => {
			const el = row.querySelector(sel);
			return el ? el.textContent.trim() : '';
		};
		const attrOf = (sel, name) => {
			const el = row.querySelector(sel);
			return el ? (el.getAttribute(name) || '') : '';
		};
		let sourceType = 'link';
		if (row.querySelector('span.open-link-icon.icon.icon-twitter')) sourceType = 'twitter';
		else if (row.querySelector('span.open-link-icon.icon.icon-youtube-play')) sourceType = 'youtube';
		return {
			title: textOf('span.title-text span'),
			url: attrOf('a.news-cell.nc-title', 'href'),
			date: attrOf('time', 'datetime') || textOf('time'),
			source: textOf('span.si-source-domain'),
			sourceType: sourceType,
			currencies: Array.from(row.querySelectorAll('a.colored-link')).map(a => a.textContent.trim()),
			voteTitles: Array.from(row.querySelectorAll('span.nc-vote-cont')).map(s => s.getAttribute('title') || ''),
		};
	});
})()`

// rawRow is the plain field tuple one article row extracts to, before
// validation and record assembly.
type rawRow struct {
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Date       string   `json:"date"`
	Source     string   `json:"source"`
	SourceType string   `json:"sourceType"`
	Currencies []string `json:"currencies"`
	VoteTitles []string `json:"voteTitles"`
}

// ScoreFunc scores a title; see the sentiment package.
type ScoreFunc func(title string) (label string, confidence int)

// Extractor converts a converged page into cache records. The bulk strategy
// costs one round trip; the concurrent per-element fallback exists because
// the bulk script can fail outright (DOM shape drift, script-injection
// restriction) and costs one round trip per row instead.
type Extractor struct {
	// RowSelector matches one rendered article row.
	RowSelector string

	// MaxConcurrency caps in-flight per-element queries on the fallback
	// path. Each in-flight task holds a remote script-evaluation context.
	MaxConcurrency int64

	// ForceRefresh makes already-cached URLs eligible for overwrite.
	ForceRefresh bool

	// Score, when set, fills each new record's sentiment fields.
	Score ScoreFunc

	Log *logrus.Logger
}

// NewExtractor returns an extractor with the production row selector.
func NewExtractor(maxConcurrency int, log *logrus.Logger) *Extractor {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Extractor{
		RowSelector:    "div.news-row.news-row-link",
		MaxConcurrency: int64(maxConcurrency),
		Log:            log,
	}
}

// Extract produces the maximal set of new records from the page and stores
// them in the cache. Returns how many records were stored.
func (e *Extractor) Extract(ctx context.Context, page browser.Page, cache *newsharvest.Cache) (int, error) {
	var rows []rawRow
	if err := page.Evaluate(ctx, bulkExtractScript, &rows); err != nil {
		e.Log.WithError(err).Warn("bulk extraction failed, falling back to per-element extraction")
		return e.extractFallback(ctx, page, cache)
	}
	if rows == nil {
		e.Log.Warn("bulk extraction returned no list, falling back to per-element extraction")
		return e.extractFallback(ctx, page, cache)
	}

	added := 0
	for _, row := range rows {
		if e.store(row, cache) {
			added++
		}
	}
	e.Log.WithFields(logrus.Fields{"rows": len(rows), "new": added}).Info("bulk extraction complete")
	return added, nil
}

// extractFallback spawns one task per article row, bounded by a counting
// semaphore. Each task reads its row's HTML in one round trip, parses the
// fields locally, and writes its own URL key into the shared cache -- so
// completion order never affects the final cache state.
func (e *Extractor) extractFallback(ctx context.Context, page browser.Page, cache *newsharvest.Cache) (int, error) {
	els, err := page.QueryAll(ctx, e.RowSelector)
	if err != nil {
		return 0, err
	}

	sem := semaphore.NewWeighted(e.MaxConcurrency)
	var wg sync.WaitGroup
	var added atomic.Int64

	for i, el := range els {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, el browser.Element) {
			defer wg.Done()
			defer sem.Release(1)

			html, err := el.HTML(ctx)
			if err != nil {
				e.Log.WithError(err).WithField("row", i).Warn("failed to read article row")
				return
			}
			row, err := parseRowHTML(html)
			if err != nil {
				e.Log.WithError(err).WithField("row", i).Warn("failed to parse article row")
				return
			}
			if e.store(row, cache) {
				added.Add(1)
			}
		}(i, el)
	}
	wg.Wait()

	e.Log.WithFields(logrus.Fields{"rows": len(els), "new": added.Load()}).Info("fallback extraction complete")
	return int(added.Load()), ctx.Err()
}

// store validates a raw row, assembles the record, and puts it in the
// cache. Rows without a title or URL are dropped; cached URLs are skipped
// unless force-refresh is set.
func (e *Extractor) store(row rawRow, cache *newsharvest.Cache) bool {
	if row.Title == "" || row.URL == "" {
		e.Log.WithField("url", row.URL).Debug("dropping row without title or url")
		return false
	}
	if !e.ForceRefresh && cache.Has(row.URL) {
		return false
	}

	rec := buildRecord(row)
	if e.Score != nil {
		rec.Sentiment, rec.Confidence = e.Score(rec.Title)
	}
	cache.Put(rec)
	return true
}

// buildRecord turns a raw field tuple into an ArticleRecord.
func buildRecord(row rawRow) newsharvest.ArticleRecord {
	currencies := make([]string, 0, len(row.Currencies))
	for _, cur := range row.Currencies {
		if cur = strings.TrimSpace(cur); cur != "" {
			currencies = append(currencies, cur)
		}
	}
	if len(currencies) == 0 {
		currencies = []string{newsharvest.NoCurrency}
	}

	votes := make(map[string]int)
	for _, title := range row.VoteTitles {
		if label, count, ok := newsharvest.ParseVote(title); ok {
			votes[label] = count
		}
	}

	sourceType := newsharvest.SourceType(row.SourceType)
	switch sourceType {
	case newsharvest.SourceTwitter, newsharvest.SourceYouTube:
	default:
		sourceType = newsharvest.SourceLink
	}

	return newsharvest.ArticleRecord{
		Title:       row.Title,
		URL:         row.URL,
		RedirectURL: newsharvest.RedirectPath(row.URL),
		Date:        row.Date,
		Source:      row.Source,
		SourceType:  sourceType,
		Currencies:  currencies,
		Votes:       votes,
	}
}

// parseRowHTML extracts a raw row from one article element's outer HTML.
// Field shape is identical to what the bulk script yields.
func parseRowHTML(html string) (rawRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return rawRow{}, err
	}

	var row rawRow
	row.Title = strings.TrimSpace(doc.Find(titleSelector).First().Text())
	row.URL, _ = doc.Find(linkSelector).First().Attr("href")

	// Attribute preferred over element text for the timestamp.
	timeEl := doc.Find(timeSelector).First()
	if dt, ok := timeEl.Attr("datetime"); ok && dt != "" {
		row.Date = dt
	} else {
		row.Date = strings.TrimSpace(timeEl.Text())
	}

	row.Source = strings.TrimSpace(doc.Find(sourceSelector).First().Text())

	row.SourceType = string(newsharvest.SourceLink)
	if doc.Find(twitterSelector).Length() > 0 {
		row.SourceType = string(newsharvest.SourceTwitter)
	} else if doc.Find(youtubeSelector).Length() > 0 {
		row.SourceType = string(newsharvest.SourceYouTube)
	}

	doc.Find(currencySelector).Each(func(_ int, s *goquery.Selection) {
		row.Currencies = append(row.Currencies, strings.TrimSpace(s.Text()))
	})
	doc.Find(voteSelector).Each(func(_ int, s *goquery.Selection) {
		if title, ok := s.Attr("title"); ok {
			row.VoteTitles = append(row.VoteTitles, title)
		}
	})

	return row, nil
}
