package scraper

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pevans/newsharvest"
	"github.com/pevans/newsharvest/browser"
)

// Scraper runs one full harvesting pass: clear the challenge gate, scroll
// the page to convergence, extract records into the cache.
type Scraper struct {
	Gate      *Gate
	Driver    *Driver
	Extractor *Extractor

	// StartURL is the news page to harvest.
	StartURL string

	// UniqueSourcesPath, when non-empty, receives the derived
	// source -> sample URL index after a successful pass.
	UniqueSourcesPath string

	Log *logrus.Logger
}

// Run executes the pass. The cache is saved unconditionally on the way out
// -- success, failure, or cancellation -- so a crash mid-scroll loses at
// most the records since the last checkpoint.
func (s *Scraper) Run(ctx context.Context, page browser.Page, cache *newsharvest.Cache) (retErr error) {
	defer func() {
		if err := cache.Save(); err != nil {
			s.Log.WithError(err).Error("final cache save failed")
			if retErr == nil {
				retErr = err
			}
		}
	}()

	s.Log.WithField("url", s.StartURL).Info("navigating to news page")
	if err := page.Navigate(ctx, s.StartURL); err != nil {
		return fmt.Errorf("failed to open news page: %w", err)
	}

	if err := s.Gate.Clear(ctx, page); err != nil {
		return err
	}

	rows, err := s.Driver.Converge(ctx, page)
	if err != nil {
		return fmt.Errorf("scroll convergence failed: %w", err)
	}
	if rows == 0 {
		s.Log.Warn("no articles rendered")
		return nil
	}

	added, err := s.Extractor.Extract(ctx, page, cache)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	s.Log.WithFields(logrus.Fields{"rendered": rows, "new": added, "cached": cache.Len()}).Info("pass complete")

	if s.UniqueSourcesPath != "" {
		if err := cache.SaveUniqueSources(s.UniqueSourcesPath); err != nil {
			s.Log.WithError(err).Warn("failed to write unique sources index")
		}
	}
	return nil
}
