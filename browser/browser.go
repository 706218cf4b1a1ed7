// Package browser defines the narrow page-automation interface the
// harvesting pipeline is written against, plus a chromedp-backed
// implementation. Core logic (gate, driver, extraction, resolver) only ever
// sees these interfaces, so it can be unit-tested against a fake.
package browser

import "context"

// Page is one browser tab. Implementations must tolerate concurrent use of
// distinct Page instances; a single Page is not safe for concurrent use.
type Page interface {
	// Navigate loads the given URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// Location returns the page's current URL, after any redirects.
	Location(ctx context.Context) (string, error)

	// Evaluate runs a script in the page and unmarshals its result into
	// out. A nil out discards the result.
	Evaluate(ctx context.Context, script string, out any) error

	// Query returns the first element matching the selector. An absent
	// element is reported through the found flag, not an error.
	Query(ctx context.Context, selector string) (el Element, found bool, err error)

	// QueryAll returns every element matching the selector.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string) error

	// Screenshot captures the viewport to a PNG file at path.
	Screenshot(ctx context.Context, path string) error

	// SolveChallenge attempts to interact with a bot-interstitial challenge
	// widget. Best-effort: callers re-check the challenge marker afterwards.
	SolveChallenge(ctx context.Context) error

	// Close releases the tab.
	Close() error
}

// Element is a handle to a single DOM element.
type Element interface {
	// Text returns the element's visible text content.
	Text(ctx context.Context) (string, error)

	// Attr returns the named attribute. An absent attribute is reported
	// through the found flag.
	Attr(ctx context.Context, name string) (val string, found bool, err error)

	// HTML returns the element's outer HTML.
	HTML(ctx context.Context) (string, error)
}
