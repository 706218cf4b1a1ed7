package enrich

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Inter-request intervals enforced by the reader service. The service rate
// limits on a flat request cadence, not on concurrency, so the wait after
// each call is unconditional.
const (
	FreeTierInterval      = 3 * time.Second
	AuthenticatedInterval = 120 * time.Millisecond
)

// Reader fetches article bodies from the external content-reader API.
// Content enrichment is best-effort: every failure path returns nil rather
// than an error, because a missing body never invalidates the core record.
type Reader struct {
	baseURL    string
	apiKey     string
	configs    SourceConfigs
	httpClient *http.Client
	limiter    *rate.Limiter
	interval   time.Duration
	log        *logrus.Logger
}

// readerEnvelope is the JSON response shape in the service's JSON API mode.
type readerEnvelope struct {
	Data struct {
		Description string `json:"description"`
	} `json:"data"`
}

// NewReader builds a reader client. With an API key the authenticated-tier
// cadence applies; without one, the free-tier cadence.
func NewReader(baseURL, apiKey string, configs SourceConfigs, log *logrus.Logger) *Reader {
	interval := FreeTierInterval
	if apiKey != "" {
		interval = AuthenticatedInterval
	}

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	// Spend the initial burst token: the service counts cadence from the
	// first request, so the first call pays the interval too.
	limiter.Allow()

	return &Reader{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		configs:    configs,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    limiter,
		interval:   interval,
		log:        log,
	}
}

// Interval returns the enforced inter-request interval.
func (r *Reader) Interval() time.Duration {
	return r.interval
}

// Fetch retrieves the article body for finalURL using the directives
// configured for sourceDomain. Returns nil when no config exists, the
// config says skip, or the request fails -- no retry in any case. The
// post-call rate wait runs whether the request succeeded or not.
func (r *Reader) Fetch(ctx context.Context, finalURL, sourceDomain string) *string {
	cfg, ok := r.configs.Lookup(sourceDomain)
	if !ok {
		r.log.WithField("source", sourceDomain).Debug("no source config, skipping content fetch")
		return nil
	}
	if cfg.Skip {
		r.log.WithField("source", sourceDomain).Debug("source config says skip")
		return nil
	}

	content := r.get(ctx, finalURL, cfg)
	if err := r.limiter.Wait(ctx); err != nil {
		return content
	}
	return content
}

func (r *Reader) get(ctx context.Context, finalURL string, cfg SourceConfig) *string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+finalURL, nil)
	if err != nil {
		r.log.WithError(err).WithField("url", finalURL).Warn("failed to build reader request")
		return nil
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Retain-Images", "none")
	if sel := cfg.TargetSelector(); sel != "" {
		req.Header.Set("X-Target-Selector", sel)
	}
	if sel := cfg.RemoveSelector(); sel != "" {
		req.Header.Set("X-Remove-Selector", sel)
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.log.WithError(err).WithField("url", finalURL).Warn("reader request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.log.WithFields(logrus.Fields{"url": finalURL, "status": resp.StatusCode}).Warn("reader returned error status")
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.log.WithError(err).WithField("url", finalURL).Warn("failed to read reader response")
		return nil
	}

	text := decodeReaderBody(body)
	if text == "" {
		return nil
	}
	return &text
}

// decodeReaderBody handles both response modes: the JSON envelope with a
// data.description field, and plain article text.
func decodeReaderBody(body []byte) string {
	var envelope readerEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data.Description != "" {
		return envelope.Data.Description
	}
	return strings.TrimSpace(string(body))
}
