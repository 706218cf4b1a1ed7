package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// Chrome manages a Chrome process and hands out tabs implementing Page.
// Tabs share the one process, so opening another Page is cheap enough to
// pool.
type Chrome struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// ChromeOptions configures the launched browser.
type ChromeOptions struct {
	Headless  bool
	UserAgent string
}

// NewChrome launches a Chrome process.
func NewChrome(ctx context.Context, opts ChromeOptions) (*Chrome, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...,
	)
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	allocOpts = append(allocOpts,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	return &Chrome{allocCtx: allocCtx, allocCancel: allocCancel}, nil
}

// NewPage opens a new tab.
func (c *Chrome) NewPage() (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx)

	// Running an empty task forces tab creation now, so failures surface
	// here instead of on first use.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	return &chromePage{ctx: tabCtx, cancel: tabCancel}, nil
}

// Stop shuts the browser down. All pages become unusable.
func (c *Chrome) Stop() {
	c.allocCancel()
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes chromedp actions against this tab, honoring any deadline on
// the caller's context.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := p.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(p.ctx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) Location(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

func (p *chromePage) Evaluate(ctx context.Context, script string, out any) error {
	if out == nil {
		return p.run(ctx, chromedp.Evaluate(script, nil))
	}
	return p.run(ctx, chromedp.Evaluate(script, out))
}

func (p *chromePage) Query(ctx context.Context, selector string) (Element, bool, error) {
	var nodes []*cdp.Node
	err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, false, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	if len(nodes) == 0 {
		return nil, false, nil
	}
	return &chromeElement{page: p, id: nodes[0].NodeID}, true, nil
}

func (p *chromePage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	var nodes []*cdp.Node
	err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	els := make([]Element, 0, len(nodes))
	for _, node := range nodes {
		els = append(els, &chromeElement{page: p, id: node.NodeID})
	}
	return els, nil
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to click %q: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

func (p *chromePage) SolveChallenge(ctx context.Context) error {
	// The interstitial widget renders its checkbox inside a closed iframe,
	// so the most that can be done from outside is clicking where the
	// widget sits and letting the verification rerun. The caller re-checks
	// the marker afterwards either way.
	clickCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.run(clickCtx, chromedp.Click(`input[type="checkbox"]`, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("challenge widget click failed: %w", err)
	}
	return nil
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

type chromeElement struct {
	page *chromePage
	id   cdp.NodeID
}

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	ids := []cdp.NodeID{e.id}
	if err := e.page.run(ctx, chromedp.Text(ids, &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("failed to read element text: %w", err)
	}
	return text, nil
}

func (e *chromeElement) Attr(ctx context.Context, name string) (string, bool, error) {
	var val string
	var ok bool
	ids := []cdp.NodeID{e.id}
	if err := e.page.run(ctx, chromedp.AttributeValue(ids, name, &val, &ok, chromedp.ByNodeID)); err != nil {
		return "", false, fmt.Errorf("failed to read attribute %q: %w", name, err)
	}
	return val, ok, nil
}

func (e *chromeElement) HTML(ctx context.Context) (string, error) {
	var html string
	ids := []cdp.NodeID{e.id}
	if err := e.page.run(ctx, chromedp.OuterHTML(ids, &html, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("failed to read element HTML: %w", err)
	}
	return html, nil
}
