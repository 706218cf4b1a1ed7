// Package enrich resolves article click-through links to their true
// destinations and fetches article bodies through the external
// content-reader API, rate-limited and incrementally checkpointed.
package enrich

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// SourceConfig carries the per-domain extraction directives forwarded to
// the content-reader API.
type SourceConfig struct {
	TitleSelector  []string `json:"titleSelector,omitempty"`
	TextSelector   []string `json:"textSelector,omitempty"`
	IgnoreSelector []string `json:"ignoreSelector,omitempty"`
	Skip           bool     `json:"skip,omitempty"`
}

// TargetSelector joins the title and text selectors into the combined
// target-selector directive.
func (c SourceConfig) TargetSelector() string {
	parts := make([]string, 0, len(c.TitleSelector)+len(c.TextSelector))
	parts = append(parts, c.TitleSelector...)
	parts = append(parts, c.TextSelector...)
	return strings.Join(parts, ", ")
}

// RemoveSelector joins the ignore selectors into the remove-selector
// directive.
func (c SourceConfig) RemoveSelector() string {
	return strings.Join(c.IgnoreSelector, ", ")
}

// SourceConfigs maps normalized domains to their extraction directives.
type SourceConfigs map[string]SourceConfig

// LoadSourceConfigs reads the domain -> config JSON file. A missing file
// yields an empty set: articles from unconfigured domains simply don't get
// content fetched.
func LoadSourceConfigs(path string) (SourceConfigs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SourceConfigs{}, nil
		}
		return nil, fmt.Errorf("failed to read source configs: %w", err)
	}

	var raw map[string]SourceConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse source configs: %w", err)
	}

	configs := make(SourceConfigs, len(raw))
	for domain, cfg := range raw {
		configs[NormalizeDomain(domain)] = cfg
	}
	return configs, nil
}

// Lookup finds the config for a source domain, normalizing it first.
func (s SourceConfigs) Lookup(domain string) (SourceConfig, bool) {
	cfg, ok := s[NormalizeDomain(domain)]
	return cfg, ok
}

// subdomainPrefixes are common prefixes stripped before config matching, so
// "www.example.com" and "example.com" share one entry.
var subdomainPrefixes = []string{"www.", "en.", "news."}

// NormalizeDomain lowercases a domain and strips one common subdomain
// prefix.
func NormalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for _, prefix := range subdomainPrefixes {
		if rest, ok := strings.CutPrefix(domain, prefix); ok {
			return rest
		}
	}
	return domain
}
