// Package browsertest provides an in-memory fake implementation of
// browser.Page for unit tests.
package browsertest

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/pevans/newsharvest/browser"
)

// FakeElement is a static DOM element.
type FakeElement struct {
	TextValue string
	Attrs     map[string]string
	HTMLValue string
}

func (e *FakeElement) Text(ctx context.Context) (string, error) {
	return e.TextValue, nil
}

func (e *FakeElement) Attr(ctx context.Context, name string) (string, bool, error) {
	val, ok := e.Attrs[name]
	return val, ok, nil
}

func (e *FakeElement) HTML(ctx context.Context) (string, error) {
	return e.HTMLValue, nil
}

// FakePage is a scriptable browser.Page. Tests populate Selectors with the
// elements each selector should match and optionally hook Navigate,
// Evaluate, or Click behavior.
type FakePage struct {
	mu sync.Mutex

	// CurrentURL is what Location reports. Navigate sets it.
	CurrentURL string

	// Selectors maps a selector to the elements it matches.
	Selectors map[string][]*FakeElement

	// NavigateFunc, when set, overrides Navigate. It returns the final URL
	// after redirects.
	NavigateFunc func(url string) (string, error)

	// EvaluateFunc, when set, handles Evaluate calls.
	EvaluateFunc func(script string, out any) error

	// ClickFunc, when set, is called for every Click in addition to the
	// default click counting.
	ClickFunc func(selector string) error

	// Clicks counts clicks per selector.
	Clicks map[string]int

	// SolveCalls counts SolveChallenge invocations.
	SolveCalls int

	// Screenshots records the paths passed to Screenshot.
	Screenshots []string

	// Closed reports whether Close was called.
	Closed bool
}

// NewFakePage returns an empty fake page.
func NewFakePage() *FakePage {
	return &FakePage{
		Selectors: make(map[string][]*FakeElement),
		Clicks:    make(map[string]int),
	}
}

// SetElements replaces the elements matched by a selector. Safe to call
// while the page is in use.
func (p *FakePage) SetElements(selector string, els ...*FakeElement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Selectors[selector] = els
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	nav := p.NavigateFunc
	p.mu.Unlock()

	if nav != nil {
		final, err := nav(url)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.CurrentURL = final
		p.mu.Unlock()
		return nil
	}

	p.mu.Lock()
	p.CurrentURL = url
	p.mu.Unlock()
	return nil
}

func (p *FakePage) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL, nil
}

func (p *FakePage) Evaluate(ctx context.Context, script string, out any) error {
	p.mu.Lock()
	eval := p.EvaluateFunc
	p.mu.Unlock()

	if eval == nil {
		return errors.New("browsertest: no Evaluate handler configured")
	}
	return eval(script, out)
}

func (p *FakePage) Query(ctx context.Context, selector string) (browser.Element, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	els := p.Selectors[selector]
	if len(els) == 0 {
		return nil, false, nil
	}
	return els[0], true, nil
}

func (p *FakePage) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	els := p.Selectors[selector]
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out, nil
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.Clicks[selector]++
	click := p.ClickFunc
	p.mu.Unlock()

	if click != nil {
		return click(selector)
	}
	return nil
}

func (p *FakePage) Screenshot(ctx context.Context, path string) error {
	p.mu.Lock()
	p.Screenshots = append(p.Screenshots, path)
	p.mu.Unlock()
	return os.WriteFile(path, []byte("fake-png"), 0o600)
}

func (p *FakePage) SolveChallenge(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SolveCalls++
	return nil
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}
