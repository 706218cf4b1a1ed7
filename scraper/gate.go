// Package scraper drives the rendered news page to a fully-loaded state and
// turns it into article records: challenge clearance, scroll convergence,
// and bulk-with-fallback extraction.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pevans/newsharvest/browser"
)

// ErrChallengeFailed means the bot-interstitial challenge marker was still
// present after the maximum number of clearance attempts. This is fatal to
// the enclosing pass.
var ErrChallengeFailed = errors.New("challenge could not be cleared")

// Gate waits out the bot-challenge interstitial before any extraction
// proceeds. Fixed backoff interval, bounded attempt count -- exponential
// backoff buys nothing against an interstitial that either clears or
// doesn't.
type Gate struct {
	// MarkerSelector matches the DOM element signaling an unresolved
	// challenge.
	MarkerSelector string

	// MaxAttempts bounds how many times the gate sleeps and retries while
	// the marker is present.
	MaxAttempts int

	// Backoff is the fixed sleep between attempts.
	Backoff time.Duration

	// ProbeTimeout bounds each marker poll.
	ProbeTimeout time.Duration

	// ScreenshotDir receives a diagnostic screenshot when clearance fails.
	ScreenshotDir string

	Log *logrus.Logger
}

// NewGate returns a gate with the production defaults.
func NewGate(screenshotDir string, log *logrus.Logger) *Gate {
	return &Gate{
		MarkerSelector: "#challenge-error-title",
		MaxAttempts:    5,
		Backoff:        5 * time.Second,
		ProbeTimeout:   2 * time.Second,
		ScreenshotDir:  screenshotDir,
		Log:            log,
	}
}

// Clear polls for the challenge marker. The common case -- no marker --
// returns immediately. Otherwise it sleeps, invokes the solve capability,
// and retries; exhaustion captures a screenshot and returns a
// ErrChallengeFailed-wrapped error.
func (g *Gate) Clear(ctx context.Context, page browser.Page) error {
	for attempt := 1; ; attempt++ {
		present, err := g.markerPresent(ctx, page)
		if err != nil {
			return fmt.Errorf("failed to probe challenge marker: %w", err)
		}
		if !present {
			return nil
		}

		if attempt > g.MaxAttempts {
			shot := filepath.Join(g.ScreenshotDir, "challenge-"+uuid.NewString()+".png")
			if err := page.Screenshot(ctx, shot); err != nil {
				g.Log.WithError(err).Warn("failed to capture challenge screenshot")
			} else {
				g.Log.WithField("screenshot", shot).Error("challenge screenshot captured")
			}
			return fmt.Errorf("marker still present after %d attempts: %w", g.MaxAttempts, ErrChallengeFailed)
		}

		g.Log.WithField("attempt", attempt).Warn("challenge detected, waiting to verify")

		if err := sleep(ctx, g.Backoff); err != nil {
			return err
		}
		if err := page.SolveChallenge(ctx); err != nil {
			g.Log.WithError(err).Debug("challenge solve attempt failed")
		}
	}
}

func (g *Gate) markerPresent(ctx context.Context, page browser.Page) (bool, error) {
	probeCtx := ctx
	if g.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, g.ProbeTimeout)
		defer cancel()
	}
	_, found, err := page.Query(probeCtx, g.MarkerSelector)
	return found, err
}

// sleep blocks for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
