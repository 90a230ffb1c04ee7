// Package testutil holds in-memory doubles for the browser, clock and
// telemetry capabilities.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"mailru-backend/internal/mailru/browser"
	"mailru-backend/internal/mailru/cookie"
	"mailru-backend/lib/htmlutil"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// FakePage is a browser.Page over a goquery document. Scroll and click hooks
// let a test mutate the document the way the live site would.
type FakePage struct {
	mu      sync.Mutex
	doc     *goquery.Document
	url     string
	cookies []cookie.Cookie
	scrolls int
	clicks  map[string]int

	// Documents are loaded by Navigate when the url matches.
	Documents map[string]string
	// Scripts are the results returned by Evaluate, keyed by script source.
	Scripts map[string]any
	// OnScroll runs after every ScrollToBottom with the 1 based scroll count.
	OnScroll func(p *FakePage, n int)
	// OnClick runs after a click on the keyed selector with the 1 based click count.
	OnClick map[string]func(p *FakePage, n int)
	// PollInterval is how often WaitFor re-checks the document.
	PollInterval time.Duration
}

var _ browser.Page = (*FakePage)(nil)

func NewFakePage(url, document string) (*FakePage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return nil, err
	}
	return &FakePage{
		doc:          doc,
		url:          url,
		clicks:       map[string]int{},
		Documents:    map[string]string{},
		Scripts:      map[string]any{},
		OnClick:      map[string]func(p *FakePage, n int){},
		PollInterval: time.Millisecond,
	}, nil
}

func (p *FakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	document, ok := p.Documents[url]
	if !ok {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return err
	}
	p.doc = doc
	return nil
}

func (p *FakePage) SetCookies(ctx context.Context, cookies []cookie.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = append(p.cookies, cookies...)
	return nil
}

// Cookies returns every cookie installed on the page.
func (p *FakePage) Cookies() []cookie.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]cookie.Cookie(nil), p.cookies...)
}

func (p *FakePage) wrap(sel *goquery.Selection) []browser.Element {
	out := make([]browser.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, FakeElement{page: p, sel: s})
	})
	return out
}

func (p *FakePage) Query(ctx context.Context, selector string) (browser.Element, error) {
	return firstElement(p.QueryAll(ctx, selector))
}

func (p *FakePage) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wrap(p.doc.Find(selector)), nil
}

func (p *FakePage) Evaluate(ctx context.Context, script string, out any) error {
	p.mu.Lock()
	result, ok := p.Scripts[script]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("fake page: unknown script %q", script)
	}
	if out == nil {
		return nil
	}
	buf, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}

func (p *FakePage) ScrollToBottom(ctx context.Context) error {
	p.mu.Lock()
	p.scrolls++
	n := p.scrolls
	hook := p.OnScroll
	p.mu.Unlock()

	if hook != nil {
		hook(p, n)
	}
	return nil
}

// Scrolls is the number of ScrollToBottom calls so far.
func (p *FakePage) Scrolls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolls
}

// Click waits until a visible node matches selector before pressing it,
// the same way the browser does.
func (p *FakePage) Click(ctx context.Context, selector string) error {
	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		if p.visible(selector) {
			break
		}
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	p.clicks[selector]++
	n := p.clicks[selector]
	hook := p.OnClick[selector]
	p.mu.Unlock()

	if hook != nil {
		hook(p, n)
	}
	return nil
}

// Clicks is the number of clicks on selector so far.
func (p *FakePage) Clicks(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clicks[selector]
}

func (p *FakePage) Visible(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible(selector), nil
}

// visible reports whether the first node matching selector is shown, p.mu
// must be held.
func (p *FakePage) visible(selector string) bool {
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return false
	}
	for node := sel; node.Length() > 0; node = node.Parent() {
		if _, hidden := node.Attr("hidden"); hidden {
			return false
		}
		style, _ := node.Attr("style")
		if strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none") {
			return false
		}
	}
	return true
}

func (p *FakePage) WaitFor(ctx context.Context, selector string) error {
	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		found := p.doc.Find(selector).Length() > 0
		p.mu.Unlock()
		if found {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Append parses fragment and appends it to every node matching selector.
func (p *FakePage) Append(selector, fragment string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(selector).AppendHtml(fragment)
}

// SetAttr sets an attribute on every node matching selector.
func (p *FakePage) SetAttr(selector, name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(selector).SetAttr(name, value)
}

// RemoveAttr removes an attribute from every node matching selector.
func (p *FakePage) RemoveAttr(selector, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(selector).RemoveAttr(name)
}

// FakeElement is a node of a FakePage.
type FakeElement struct {
	page *FakePage
	sel  *goquery.Selection
}

func (e FakeElement) Query(ctx context.Context, selector string) (browser.Element, error) {
	return firstElement(e.QueryAll(ctx, selector))
}

func (e FakeElement) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.page.wrap(e.sel.Find(selector)), nil
}

func (e FakeElement) Attr(ctx context.Context, name string) (string, bool, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	value, ok := e.sel.Attr(name)
	return value, ok, nil
}

func (e FakeElement) Text(ctx context.Context) (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return htmlutil.InnerText(e.sel), nil
}

func firstElement(elements []browser.Element, err error) (browser.Element, error) {
	if err != nil || len(elements) == 0 {
		return nil, err
	}
	return elements[0], nil
}

// FakeBrowser hands out preconfigured pages by url.
type FakeBrowser struct {
	mu     sync.Mutex
	pages  map[string]*FakePage
	opened int
	closed bool
}

var _ browser.Browser = (*FakeBrowser)(nil)

func NewFakeBrowser() *FakeBrowser {
	return &FakeBrowser{pages: map[string]*FakePage{}}
}

// Serve registers page under url.
func (b *FakeBrowser) Serve(url string, page *FakePage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[url] = page
}

func (b *FakeBrowser) Page(ctx context.Context, url string, cookies []cookie.Cookie) (browser.Page, error) {
	b.mu.Lock()
	page, ok := b.pages[url]
	b.opened++
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("fake browser: no page for %s", url)
	}
	if len(cookies) > 0 {
		err := page.SetCookies(ctx, cookies)
		if err != nil {
			return nil, err
		}
	}
	return page, nil
}

// Opened is the number of Page calls so far.
func (b *FakeBrowser) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

func (b *FakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
