package scraper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pevans/newsharvest/browser"
)

const scrollToBottomScript = "window.scrollTo(0, document.body.scrollHeight)"

// Driver grows the infinite-scroll page until it stops producing new
// article rows. Convergence needs two exits: the page may plateau without
// ever showing its end-of-feed marker (network hiccup), or show the marker
// before the stale-count check would fire.
type Driver struct {
	// RowSelector matches one rendered article row.
	RowSelector string

	// LoadMoreSelector matches the optional "load more" affordance.
	// Clicking it is best-effort; absence is not an error.
	LoadMoreSelector string

	// CompleteSelector matches the explicit "all content loaded" marker.
	CompleteSelector string

	// Pause is how long to wait after each scroll for new rows to render.
	Pause time.Duration

	// MaxStale is how many consecutive no-growth iterations end the loop.
	MaxStale int

	Log *logrus.Logger
}

// NewDriver returns a driver with the production selectors.
func NewDriver(pause time.Duration, maxStale int, log *logrus.Logger) *Driver {
	return &Driver{
		RowSelector:      "div.news-row.news-row-link",
		LoadMoreSelector: ".btn-outline-primary",
		CompleteSelector: ".news-complete",
		Pause:            pause,
		MaxStale:         maxStale,
		Log:              log,
	}
}

// Converge scrolls until the page is stable and returns the final rendered
// row count.
func (d *Driver) Converge(ctx context.Context, page browser.Page) (int, error) {
	stale := 0
	prev := -1

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		if err := page.Evaluate(ctx, scrollToBottomScript, nil); err != nil {
			d.Log.WithError(err).Debug("scroll evaluation failed")
		}
		if err := sleep(ctx, d.Pause); err != nil {
			return 0, err
		}

		if _, found, _ := page.Query(ctx, d.LoadMoreSelector); found {
			if err := page.Click(ctx, d.LoadMoreSelector); err != nil {
				d.Log.WithError(err).Debug("load-more click failed")
			}
		}

		rows, err := page.QueryAll(ctx, d.RowSelector)
		if err != nil {
			return 0, err
		}
		count := len(rows)

		if count == prev {
			stale++
		} else {
			stale = 0
		}
		prev = count

		d.Log.WithFields(logrus.Fields{"rows": count, "stale": stale}).Debug("scroll iteration")

		if _, found, _ := page.Query(ctx, d.CompleteSelector); found {
			d.Log.WithField("rows", count).Info("all content loaded")
			return count, nil
		}
		if stale >= d.MaxStale {
			d.Log.WithField("rows", count).Info("page stopped growing")
			return count, nil
		}
	}
}
