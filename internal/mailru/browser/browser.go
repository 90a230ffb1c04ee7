// Package browser describes the headless browser capability consumed by the
// scrape engine, and implements it over the Chrome DevTools protocol.
package browser

import (
	"context"
	"mailru-backend/internal/mailru/cookie"
)

// Element is a handle to a DOM node.
type Element interface {
	// Query returns the first descendant matching selector, or nil when there is none.
	Query(ctx context.Context, selector string) (Element, error)
	// QueryAll returns every descendant matching selector in document order.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// Attr returns the value of an attribute and whether it is present.
	Attr(ctx context.Context, name string) (string, bool, error)
	// Text returns the rendered text of the node.
	Text(ctx context.Context) (string, error)
}

// Page is a single browser tab. A page is not safe for concurrent use, the
// caller must serialize access to it.
type Page interface {
	URL() string
	Navigate(ctx context.Context, url string) error
	SetCookies(ctx context.Context, cookies []cookie.Cookie) error

	Query(ctx context.Context, selector string) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// Evaluate runs a script in the page and stores its result in out, out may be nil.
	Evaluate(ctx context.Context, script string, out any) error

	ScrollToBottom(ctx context.Context) error
	Click(ctx context.Context, selector string) error
	// Visible reports whether selector matches a rendered, non hidden node.
	Visible(ctx context.Context, selector string) (bool, error)
	// WaitFor blocks until selector matches at least one node or ctx is done.
	WaitFor(ctx context.Context, selector string) error
}

// Browser hands out pages.
type Browser interface {
	// Page returns a tab showing url, reusing an open one when possible. Cookies
	// are installed before the first navigation.
	Page(ctx context.Context, url string, cookies []cookie.Cookie) (Page, error)
	Close() error
}
