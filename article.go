package newsharvest

import (
	"regexp"
	"strconv"
)

// SourceType classifies where an article ultimately points: a regular
// external news site, a Twitter/X post, or a YouTube video.
type SourceType string

const (
	SourceLink    SourceType = "link"
	SourceTwitter SourceType = "twitter"
	SourceYouTube SourceType = "youtube"
)

// NoCurrency is the placeholder used when an article has no ticker links.
const NoCurrency = "N/A"

// ArticleRecord is one scraped news item. URL is the record's identity; a
// cache holds at most one record per URL. Title and URL are immutable once
// set. Content and FinalURL start nil and are filled in exactly once by the
// enrichment pass -- they never transition back to nil.
type ArticleRecord struct {
	Title       string         `json:"Title"`
	URL         string         `json:"URL"`
	RedirectURL string         `json:"RedirectURL"`
	Date        string         `json:"Date"`
	Source      string         `json:"Source"`
	SourceType  SourceType     `json:"SourceType"`
	Currencies  []string       `json:"Currencies"`
	Votes       map[string]int `json:"Votes"`
	Sentiment   string         `json:"Sentiment,omitempty"`
	Confidence  int            `json:"Confidence,omitempty"`
	Content     *string        `json:"Content,omitempty"`
	FinalURL    *string        `json:"FinalURL,omitempty"`
}

// Enriched reports whether the enrichment pass has already resolved this
// record's destination.
func (a *ArticleRecord) Enriched() bool {
	return a.FinalURL != nil
}

// voteRe matches vote title attributes of the form "5 Bullish votes" or
// "12 Important vote". Anything else is ignored.
var voteRe = regexp.MustCompile(`^\s*(\d+)\s+(.+?)\s+votes?\s*$`)

// ParseVote parses a vote count and label out of an element title
// attribute. Returns ok=false for attributes that don't match the expected
// "<N> <Label> votes" shape.
func ParseVote(attr string) (label string, count int, ok bool) {
	m := voteRe.FindStringSubmatch(attr)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return m[2], n, true
}

// articleIDRe captures the numeric article ID embedded in a site-relative
// article path such as /news/29538595/dogecoin-whale-alert.
var articleIDRe = regexp.MustCompile(`^/news/(\d+)(?:/|$)`)

// RedirectPath derives the click-through redirect path for an article URL.
// Returns "" when the URL doesn't carry a numeric article ID.
func RedirectPath(articleURL string) string {
	m := articleIDRe.FindStringSubmatch(articleURL)
	if m == nil {
		return ""
	}
	return "/news/click/" + m[1] + "/"
}
