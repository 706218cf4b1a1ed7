package enrich

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pevans/newsharvest"
	"github.com/pevans/newsharvest/browser"
)

// Resolver opens click-through links to discover their true destinations.
// A resolution is one of three outcomes: an error tag (challenge page or
// navigation failure), a still-on-origin URL, or an external URL.
type Resolver struct {
	// OriginBase is the origin site's base URL, e.g.
	// "https://cryptopanic.com". Redirect paths are resolved relative to
	// it, and final URLs under it are classified as still-on-origin.
	OriginBase string

	// ChallengeMarker, when non-empty, is checked after navigation; its
	// presence tags the resolution as a challenge failure.
	ChallengeMarker string

	Log *logrus.Logger
}

// Resolution is the outcome of resolving one redirect path.
type Resolution struct {
	FinalURL string
	ErrTag   string
	OnOrigin bool
}

// Resolve navigates the redirect path on the given session and classifies
// the outcome. Navigation failures are recorded as error tags, never
// returned as errors: one bad URL must not stop the pass.
func (r *Resolver) Resolve(ctx context.Context, page browser.Page, redirectURL string) Resolution {
	target := strings.TrimSuffix(r.OriginBase, "/") + redirectURL

	if err := page.Navigate(ctx, target); err != nil {
		r.Log.WithError(err).WithField("redirect", redirectURL).Warn("redirect navigation failed")
		return Resolution{ErrTag: newsharvest.RedirectErrNavigation}
	}

	if r.ChallengeMarker != "" {
		if _, found, _ := page.Query(ctx, r.ChallengeMarker); found {
			r.Log.WithField("redirect", redirectURL).Warn("challenge page blocked redirect resolution")
			return Resolution{ErrTag: newsharvest.RedirectErrChallenge}
		}
	}

	final, err := page.Location(ctx)
	if err != nil {
		r.Log.WithError(err).WithField("redirect", redirectURL).Warn("failed to read final location")
		return Resolution{ErrTag: newsharvest.RedirectErrNavigation}
	}

	return Resolution{
		FinalURL: final,
		OnOrigin: strings.HasPrefix(final, strings.TrimSuffix(r.OriginBase, "/")),
	}
}
