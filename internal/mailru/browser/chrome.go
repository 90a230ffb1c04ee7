package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"mailru-backend/internal/mailru/cookie"
	"mailru-backend/internal/telemetry"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const (
	report_chrome_start = "chrome.start"
	report_chrome_page  = "chrome.page"
)

const (
	blankURL = "about:blank"

	scrollScript  = "window.scroll(0, document.body.scrollHeight)"
	visibleScript = `(function(selector) {
	const node = document.querySelector(selector);
	if (!node) return false;
	const style = window.getComputedStyle(node);
	return style.display !== "none" && style.visibility !== "hidden" && node.offsetParent !== null;
})(%s)`
	attrFunction = "function(name) { return this.getAttribute(name); }"
	textFunction = "function() { return this.innerText; }"
)

type Options struct {
	// Endpoint is the websocket url of an already running browser, when empty a
	// local browser is launched.
	Endpoint       string `json:"endpoint"`
	Headless       bool   `json:"headless"`
	ViewportWidth  int64  `json:"viewport_width"`
	ViewportHeight int64  `json:"viewport_height"`
}

// Chrome implements Browser with chromedp.
type Chrome struct {
	opts Options
	tel  telemetry.API

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu    sync.Mutex
	pages []*chromePage
}

func NewChrome(ctx context.Context, opts Options, tel telemetry.API) (*Chrome, error) {
	tel = telemetry.NewScopedAPI("browser", tel)
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = 1200
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = 1920
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.Endpoint != "" {
		tel.ReportDebug("connecting to browser", opts.Endpoint)
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.Endpoint)
	} else {
		tel.ReportDebug("launching new browser")
		allocOpts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, allocOpts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	err := chromedp.Run(browserCtx)
	if err != nil {
		browserCancel()
		allocCancel()
		tel.ReportBroken(report_chrome_start, err)
		return nil, fmt.Errorf("browser: start: %w", err)
	}

	return &Chrome{
		opts:          opts,
		tel:           tel,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

func (c *Chrome) Page(ctx context.Context, url string, cookies []cookie.Cookie) (Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var blank *chromePage
	for _, p := range c.pages {
		if p.url == url {
			return p, nil
		}
		if p.url == blankURL && blank == nil {
			blank = p
		}
	}

	page := blank
	if page == nil {
		c.tel.ReportDebug("creating new page")
		tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
		// the first run allocates the tab, later runs use derived contexts so that
		// cancelling them never closes it.
		err := chromedp.Run(tabCtx, chromedp.EmulateViewport(c.opts.ViewportWidth, c.opts.ViewportHeight))
		if err != nil {
			tabCancel()
			c.tel.ReportBroken(report_chrome_page, fmt.Errorf("new tab: %w", err))
			return nil, fmt.Errorf("browser: new tab: %w", err)
		}
		page = &chromePage{ctx: tabCtx, cancel: tabCancel, url: blankURL}
		c.pages = append(c.pages, page)
	}

	if len(cookies) > 0 {
		c.tel.ReportDebug("setting cookies", len(cookies))
		err := page.SetCookies(ctx, cookies)
		if err != nil {
			c.tel.ReportBroken(report_chrome_page, fmt.Errorf("set cookies: %w", err))
			return nil, err
		}
	}

	c.tel.ReportDebug("go to", url)
	err := page.Navigate(ctx, url)
	if err != nil {
		c.tel.ReportBroken(report_chrome_page, fmt.Errorf("navigate: %w", err), url)
		return nil, err
	}
	return page, nil
}

func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pages {
		p.cancel()
	}
	c.pages = nil
	c.browserCancel()
	c.allocCancel()
	return nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	url    string
}

// run executes actions on the tab, stopping early when ctx is done.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromePage) URL() string {
	return p.url
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	err := p.run(ctx, chromedp.Navigate(url))
	if err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	p.url = url
	return nil
}

func (p *chromePage) SetCookies(ctx context.Context, cookies []cookie.Cookie) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			params := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				params = params.WithExpires(&expires)
			}
			err := params.Do(ctx)
			if err != nil {
				return fmt.Errorf("browser: set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

func (p *chromePage) queryAll(ctx context.Context, selector string, from *cdp.Node) ([]Element, error) {
	var nodes []*cdp.Node
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if from != nil {
		opts = append(opts, chromedp.FromNode(from))
	}
	err := p.run(ctx, chromedp.Nodes(selector, &nodes, opts...))
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}

	out := make([]Element, len(nodes))
	for i, n := range nodes {
		out[i] = chromeElement{page: p, node: n}
	}
	return out, nil
}

func (p *chromePage) Query(ctx context.Context, selector string) (Element, error) {
	return first(p.queryAll(ctx, selector, nil))
}

func (p *chromePage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	return p.queryAll(ctx, selector, nil)
}

func (p *chromePage) Evaluate(ctx context.Context, script string, out any) error {
	return p.run(ctx, chromedp.Evaluate(script, out))
}

func (p *chromePage) ScrollToBottom(ctx context.Context) error {
	return p.Evaluate(ctx, scrollScript, nil)
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *chromePage) Visible(ctx context.Context, selector string) (bool, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return false, err
	}
	var visible bool
	err = p.Evaluate(ctx, fmt.Sprintf(visibleScript, quoted), &visible)
	return visible, err
}

func (p *chromePage) WaitFor(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

type chromeElement struct {
	page *chromePage
	node *cdp.Node
}

func (e chromeElement) Query(ctx context.Context, selector string) (Element, error) {
	return first(e.page.queryAll(ctx, selector, e.node))
}

func (e chromeElement) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	return e.page.queryAll(ctx, selector, e.node)
}

// call runs a function declaration with the node bound to `this`.
func (e chromeElement) call(ctx context.Context, fn string, out any, args ...any) error {
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(e.node.BackendNodeID).Do(ctx)
		if err != nil {
			return err
		}
		return chromedp.CallFunctionOn(fn, out, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
			return p.WithObjectID(obj.ObjectID)
		}, args...).Do(ctx)
	}))
}

func (e chromeElement) Attr(ctx context.Context, name string) (string, bool, error) {
	var value *string
	err := e.call(ctx, attrFunction, &value, name)
	if err != nil {
		return "", false, fmt.Errorf("browser: attribute %s: %w", name, err)
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (e chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.call(ctx, textFunction, &text)
	if err != nil {
		return "", fmt.Errorf("browser: text: %w", err)
	}
	return text, nil
}

func first(elements []Element, err error) (Element, error) {
	if err != nil || len(elements) == 0 {
		return nil, err
	}
	return elements[0], nil
}
