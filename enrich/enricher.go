package enrich

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pevans/newsharvest"
	"github.com/pevans/newsharvest/browser"
)

// DefaultBatchSize is how many resolved URLs accumulate before the redirect
// index, cache, and durable sink are all checkpointed.
const DefaultBatchSize = 10

// Sink is the durable upsert target for enriched records.
type Sink interface {
	Upsert(ctx context.Context, records []newsharvest.ArticleRecord) error
}

// Enricher runs the enrichment pass: resolve each unresolved link-type
// record's destination through a pool of reusable browser sessions, fetch
// article bodies for external destinations, and checkpoint progress in
// fixed batches so a mid-run failure loses at most one batch.
type Enricher struct {
	Cache    *newsharvest.Cache
	Index    *newsharvest.RedirectIndex
	Reader   *Reader
	Resolver *Resolver

	// Sink, when non-nil, receives each checkpointed batch.
	Sink Sink

	// BatchSize is the checkpoint interval in resolved URLs.
	BatchSize int

	Log *logrus.Logger
}

// outcome pairs a record with its resolution and any fetched content.
type outcome struct {
	rec     newsharvest.ArticleRecord
	res     Resolution
	content *string
}

// Run processes every candidate record. Resolution fans out across the
// session pool; merging and checkpoint decisions happen on a single
// collector so no two writers race a checkpoint. Checkpoints are also
// flushed unconditionally on the way out.
func (e *Enricher) Run(ctx context.Context, pool []browser.Page) (retErr error) {
	batchSize := e.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	defer func() {
		if err := e.Index.Save(); err != nil && retErr == nil {
			retErr = err
		}
		if err := e.Cache.Save(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	candidates := e.candidates()
	if len(candidates) == 0 {
		e.Log.Info("no records need enrichment")
		return nil
	}
	e.Log.WithField("records", len(candidates)).Info("starting enrichment pass")

	// Sessions circulate through the channel: checked out for one record's
	// resolution, then returned.
	sessions := make(chan browser.Page, len(pool))
	for _, page := range pool {
		sessions <- page
	}

	jobs := make(chan newsharvest.ArticleRecord)
	results := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < len(pool); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				results <- e.process(ctx, sessions, rec)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, rec := range candidates {
			select {
			case jobs <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single-threaded merge and checkpoint coordination.
	var batch []newsharvest.ArticleRecord
	for out := range results {
		e.merge(out)
		if out.res.ErrTag == "" {
			if rec, ok := e.Cache.Get(out.rec.URL); ok {
				batch = append(batch, rec)
			}
		}
		if len(batch) >= batchSize {
			e.checkpoint(ctx, batch)
			batch = nil
		}
	}
	if len(batch) > 0 {
		e.checkpoint(ctx, batch)
	}

	return ctx.Err()
}

// candidates returns the link-type records whose destination has not yet
// been successfully resolved.
func (e *Enricher) candidates() []newsharvest.ArticleRecord {
	var out []newsharvest.ArticleRecord
	for _, rec := range e.Cache.Records() {
		if rec.SourceType != newsharvest.SourceLink || rec.RedirectURL == "" {
			continue
		}
		if rec.Enriched() || e.Index.Resolved(rec.RedirectURL) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// process resolves one record on a pooled session and fetches its content
// when the destination is external.
func (e *Enricher) process(ctx context.Context, sessions chan browser.Page, rec newsharvest.ArticleRecord) outcome {
	page := <-sessions
	res := e.Resolver.Resolve(ctx, page, rec.RedirectURL)
	sessions <- page

	out := outcome{rec: rec, res: res}
	if res.ErrTag != "" || res.OnOrigin {
		// Still-internal redirects never have external article bodies;
		// the resolution is complete with content intentionally absent.
		return out
	}

	out.content = e.Reader.Fetch(ctx, res.FinalURL, rec.Source)
	return out
}

// merge records one outcome in the redirect index and the cache.
func (e *Enricher) merge(out outcome) {
	if out.res.ErrTag != "" {
		e.Index.Set(out.rec.RedirectURL, out.res.ErrTag)
		return
	}
	e.Index.Set(out.rec.RedirectURL, out.res.FinalURL)
	e.Cache.SetEnrichment(out.rec.URL, &out.res.FinalURL, out.content)
}

// checkpoint persists the redirect index and cache and upserts the batch
// into the durable sink.
func (e *Enricher) checkpoint(ctx context.Context, batch []newsharvest.ArticleRecord) {
	if err := e.Index.Save(); err != nil {
		e.Log.WithError(err).Warn("failed to save redirect index")
	}
	if err := e.Cache.Save(); err != nil {
		e.Log.WithError(err).Warn("failed to save cache")
	}
	if e.Sink != nil {
		if err := e.Sink.Upsert(ctx, batch); err != nil {
			e.Log.WithError(err).Warn("failed to upsert batch into sink")
		}
	}
	e.Log.WithField("batch", len(batch)).Debug("enrichment checkpoint written")
}
