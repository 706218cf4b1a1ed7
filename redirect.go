package newsharvest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Error tags recorded in the redirect index when a click-through link could
// not be resolved to a destination URL.
const (
	RedirectErrNavigation = "error:navigation"
	RedirectErrChallenge  = "error:challenge"
)

// RedirectIndex maps redirect paths to either the final destination URL or
// an error tag. It accumulates during the enrichment pass and is persisted
// separately from the article cache.
type RedirectIndex struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
}

// LoadRedirectIndex reads a redirect index file. As with the article cache,
// a missing or corrupt file yields an empty index.
func LoadRedirectIndex(path string, log *logrus.Logger) *RedirectIndex {
	idx := &RedirectIndex{
		path:    path,
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithField("path", path).Warn("failed to read redirect index, starting fresh")
		}
		return idx
	}
	if err := json.Unmarshal(data, &idx.entries); err != nil {
		log.WithError(err).WithField("path", path).Warn("redirect index is corrupt, starting fresh")
		idx.entries = make(map[string]string)
	}
	return idx
}

// Set records the resolution outcome for a redirect path.
func (r *RedirectIndex) Set(redirectURL, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[redirectURL] = result
}

// Get returns the recorded outcome for a redirect path.
func (r *RedirectIndex) Get(redirectURL string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.entries[redirectURL]
	return result, ok
}

// Resolved reports whether a redirect path has a successful (non-error)
// resolution recorded. Error-tagged entries are eligible for another
// attempt on a later pass.
func (r *RedirectIndex) Resolved(redirectURL string) bool {
	result, ok := r.Get(redirectURL)
	return ok && !IsRedirectError(result)
}

// Len returns the number of recorded entries.
func (r *RedirectIndex) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsRedirectError reports whether an index value is an error tag rather
// than a destination URL.
func IsRedirectError(result string) bool {
	return strings.HasPrefix(result, "error:")
}

// Save rewrites the redirect index file.
func (r *RedirectIndex) Save() error {
	r.mu.Lock()
	data, err := json.MarshalIndent(r.entries, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal redirect index: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write redirect index: %w", err)
	}
	return nil
}
