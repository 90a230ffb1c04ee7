// Package scraper serves the API methods the REST endpoint cannot answer by
// driving a browser page logged in with the session cookies.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"mailru-backend/internal/assert"
	"mailru-backend/internal/chrono"
	"mailru-backend/internal/mailru/api"
	"mailru-backend/internal/mailru/browser"
	"mailru-backend/internal/mailru/cookie"
	"mailru-backend/internal/mailru/session"
	"mailru-backend/internal/telemetry"
	"sync"
)

const (
	report_scraper_page      = "scraper.page"
	report_scraper_stream    = "scraper.stream"
	report_scraper_scrape    = "scraper.scrape"
	report_scraper_groups    = "scraper.groups"
	report_scraper_join      = "scraper.join"
	report_scraper_multicall = "scraper.multicall"
	report_scraper_profile   = "scraper.profile"
)

// Session is the part of a session the scraper needs.
type Session interface {
	api.Requester
	PublicRequest(ctx context.Context, segments ...string) (any, error)
	Cookies() []cookie.Cookie
	PassError() bool
}

type Options struct {
	Session Session
	Browser browser.Browser
	Config  Config
	// Time defaults to the system clock.
	Time chrono.TimeAPI
	// Metrics may be nil.
	Metrics *telemetry.Metrics
}

// Scraper is an api.Caller that answers some methods by scraping and sends
// every other method to the REST API.
type Scraper struct {
	session Session
	api     api.API
	browser browser.Browser
	cfg     Config
	time    chrono.TimeAPI
	tel     telemetry.API
	metrics *telemetry.Metrics
	cache   *scrapeCache

	mu    sync.Mutex
	pages map[string]*sync.Mutex
}

func New(opts Options, tel telemetry.API) *Scraper {
	assert.NotNil(opts.Session)
	assert.NotNil(opts.Browser)
	assert.NotNil(tel)

	cfg := opts.Config.withDefaults()
	clock := opts.Time
	if clock == nil {
		clock = chrono.NewStandardTime()
	}
	return &Scraper{
		session: opts.Session,
		api:     api.New(opts.Session),
		browser: opts.Browser,
		cfg:     cfg,
		time:    clock,
		tel:     telemetry.NewScopedAPI("mailru_scraper", tel),
		metrics: opts.Metrics,
		cache:   newScrapeCache(cfg.CacheSize, cfg.CacheTTL, opts.Metrics),
		pages:   map[string]*sync.Mutex{},
	}
}

// Method starts a method path served by the scraper.
func (s *Scraper) Method(name string) api.Method {
	return api.NewMethod(s, name)
}

// Call runs the operation registered for method, or the plain REST call
// when there is none.
func (s *Scraper) Call(ctx context.Context, method string, params session.Params) (any, error) {
	if err := api.ValidateName(method); err != nil {
		return nil, err
	}
	handle := s.handler(Lookup(method))
	if handle == nil {
		return s.api.Call(ctx, method, params)
	}
	return handle(ctx, params.Clone())
}

// lockPage serializes every use of the page showing url.
func (s *Scraper) lockPage(url string) func() {
	s.mu.Lock()
	lock, ok := s.pages[url]
	if !ok {
		lock = &sync.Mutex{}
		s.pages[url] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// page opens url with the session cookies, the caller must hold its lock.
func (s *Scraper) page(ctx context.Context, url string) (browser.Page, error) {
	cookies := s.session.Cookies()
	if len(cookies) == 0 {
		s.tel.ReportWarning(report_scraper_page, ErrCookie, url)
		return nil, ErrCookie
	}
	page, err := s.browser.Page(ctx, url, cookies)
	if err != nil {
		s.tel.ReportBroken(report_scraper_page, err, url)
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	return page, nil
}

// click presses the node at selector, failing with ErrScrapeTimeout when it
// does not become visible within WaitTimeout.
func (s *Scraper) click(ctx context.Context, page browser.Page, selector string) error {
	clickCtx, cancel := context.WithTimeout(ctx, s.cfg.WaitTimeout)
	defer cancel()

	err := page.Click(clickCtx, selector)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s not clickable within %s", ErrScrapeTimeout, selector, s.cfg.WaitTimeout)
	}
	return err
}

// poll calls check every PollInterval until it reports done, failing with
// ErrScrapeTimeout after PollAttempts checks.
func (s *Scraper) poll(ctx context.Context, what string, check func(ctx context.Context) (bool, error)) error {
	for attempt := 0; attempt < s.cfg.PollAttempts; attempt++ {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		err = s.time.Sleep(ctx, s.cfg.PollInterval)
		if err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s after %d checks", ErrScrapeTimeout, what, s.cfg.PollAttempts)
}
