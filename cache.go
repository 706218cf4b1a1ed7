package newsharvest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultCheckpointInterval is how many newly stored records trigger an
// automatic cache save.
const DefaultCheckpointInterval = 50

// Cache is the URL-keyed article store. It is loaded once at startup,
// mutated in place while a pass runs, and rewritten wholesale at
// checkpoints and on shutdown. Records are only ever added or
// enrichment-updated, never deleted.
//
// Concurrent fallback-extraction tasks write disjoint URL keys, so the
// mutex exists mainly to keep the checkpoint counter and the save decision
// a single atomic step per writer.
type Cache struct {
	mu        sync.Mutex
	path      string
	interval  int
	records   map[string]ArticleRecord
	sinceSave int
	log       *logrus.Logger
}

// LoadCache reads a cache file from disk. A missing or corrupt file yields
// an empty cache -- logged, never fatal -- so a damaged checkpoint can't
// wedge the pipeline.
func LoadCache(path string, interval int, log *logrus.Logger) *Cache {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	c := &Cache{
		path:     path,
		interval: interval,
		records:  make(map[string]ArticleRecord),
		log:      log,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("path", path).Info("no cache file found, starting fresh")
		} else {
			log.WithError(err).WithField("path", path).Warn("failed to read cache file, starting fresh")
		}
		return c
	}

	if err := json.Unmarshal(data, &c.records); err != nil {
		log.WithError(err).WithField("path", path).Warn("cache file is corrupt, starting fresh")
		c.records = make(map[string]ArticleRecord)
		return c
	}

	log.WithFields(logrus.Fields{"path": path, "records": len(c.records)}).Info("loaded cached articles")
	return c
}

// Has reports whether a record with the given URL is already cached.
func (c *Cache) Has(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.records[url]
	return ok
}

// Get returns the record stored under the given URL.
func (c *Cache) Get(url string) (ArticleRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[url]
	return rec, ok
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns a snapshot of all cached records ordered by URL.
func (c *Cache) Records() []ArticleRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	recs := make([]ArticleRecord, 0, len(c.records))
	for _, rec := range c.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].URL < recs[j].URL })
	return recs
}

// Put stores a record under its own URL key, counts it toward the next
// checkpoint, and saves the whole cache once the checkpoint interval is
// reached. The store and the save decision happen under one lock so two
// concurrent writers can't both trigger the same checkpoint.
func (c *Cache) Put(rec ArticleRecord) {
	c.mu.Lock()
	c.records[rec.URL] = rec
	c.sinceSave++
	checkpoint := c.sinceSave >= c.interval
	if checkpoint {
		c.sinceSave = 0
	}
	c.mu.Unlock()

	if checkpoint {
		if err := c.Save(); err != nil {
			c.log.WithError(err).Warn("cache checkpoint failed")
		} else {
			c.log.WithField("records", c.Len()).Debug("cache checkpoint written")
		}
	}
}

// SetEnrichment fills in a record's enrichment fields. Nil arguments leave
// the corresponding field untouched, preserving the nil-to-value-only
// transition rule.
func (c *Cache) SetEnrichment(url string, finalURL, content *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[url]
	if !ok {
		return
	}
	if finalURL != nil {
		rec.FinalURL = finalURL
	}
	if content != nil {
		rec.Content = content
	}
	c.records[url] = rec
}

// Save rewrites the entire cache file. Full rewrite is the chosen
// persistence model: cache sizes are bounded at thousands of records, so
// simplicity wins over write amplification.
func (c *Cache) Save() error {
	c.mu.Lock()
	data, err := json.MarshalIndent(c.records, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

// UniqueSources derives a source -> sample URL index with one entry per
// distinct source domain among link-type records. The index is derived on
// demand rather than maintained incrementally.
func (c *Cache) UniqueSources() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Iterate URLs in order so each source maps to a stable sample.
	urls := make([]string, 0, len(c.records))
	for url := range c.records {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	index := make(map[string]string)
	for _, url := range urls {
		rec := c.records[url]
		if rec.SourceType != SourceLink || rec.Source == "" {
			continue
		}
		if _, ok := index[rec.Source]; !ok {
			index[rec.Source] = rec.URL
		}
	}
	return index
}

// SaveUniqueSources writes the derived unique-source index to a JSON file.
func (c *Cache) SaveUniqueSources(path string) error {
	data, err := json.MarshalIndent(c.UniqueSources(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal unique sources: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write unique sources file: %w", err)
	}
	return nil
}
