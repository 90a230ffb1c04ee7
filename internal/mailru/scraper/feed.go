package scraper

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"mailru-backend/internal/mailru/browser"
	"mailru-backend/internal/mailru/objects"
	"sync"
)

// FeedState is the value of the feed container state attribute.
type FeedState string

const (
	StateInit     FeedState = ""
	StateLoading  FeedState = "loading"
	StateLoaded   FeedState = "loaded"
	StateNoEvents FeedState = "noevents"
)

// Stream yields the events of the feed at url from the newest to the
// oldest, loading more entries as the previous ones are consumed. Breaking
// out of the loop leaves the page open for the next stream.
func (s *Scraper) Stream(ctx context.Context, url string) iter.Seq2[objects.Event, error] {
	return func(yield func(objects.Event, error) bool) {
		unlock := s.lockPage(url)
		defer unlock()

		page, err := s.page(ctx, url)
		if err != nil {
			yield(objects.Event{}, err)
			return
		}
		err = s.stream(ctx, page, yield)
		if err != nil {
			s.tel.ReportBroken(report_scraper_stream, err, url)
			yield(objects.Event{}, err)
		}
	}
}

func (s *Scraper) stream(ctx context.Context, page browser.Page, yield func(objects.Event, error) bool) error {
	sel := s.cfg.Selectors
	history, err := page.Query(ctx, sel.History)
	if err != nil {
		return fmt.Errorf("query feed: %w", err)
	}
	if history == nil {
		return fmt.Errorf("%w: no feed at %s", ErrScraper, page.URL())
	}

	offset := 0
	state := StateInit
	for cycle := 0; ; cycle++ {
		nodes, err := history.QueryAll(ctx, sel.HistoryEvent)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		for i := offset; i < len(nodes); i++ {
			event, err := objects.EventFromElement(ctx, nodes[i], sel.Event)
			if err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
			s.metrics.IncEvents()
			if !yield(event, nil) {
				return nil
			}
		}
		offset = len(nodes)

		if state == StateNoEvents {
			return nil
		}
		if cycle >= s.cfg.MaxCycles {
			s.tel.ReportWarning(report_scraper_stream, "stopped after max cycles", page.URL(), cycle)
			return nil
		}

		err = page.ScrollToBottom(ctx)
		if err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		s.metrics.IncScrollCycles()

		err = s.awaitTransition(ctx, page)
		if err != nil {
			return err
		}
		state, err = s.awaitSettled(ctx, history)
		if err != nil {
			return err
		}
		s.tel.ReportDebug("feed cycle", page.URL(), cycle, string(state), offset)
	}
}

// awaitTransition waits until the feed either starts loading or is settled,
// whichever comes first. The other wait is cancelled before returning.
func (s *Scraper) awaitTransition(ctx context.Context, page browser.Page) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.WaitTimeout)
	defer cancel()

	selectors := []string{s.cfg.Selectors.loading(), s.cfg.Selectors.loaded()}
	results := make(chan error, len(selectors))
	wg := sync.WaitGroup{}
	for _, selector := range selectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- page.WaitFor(waitCtx, selector)
		}()
	}

	var first error
	for range selectors {
		err := <-results
		if err == nil {
			first = nil
			break
		}
		if first == nil {
			first = err
		}
	}
	cancel()
	wg.Wait()

	if first == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(first, context.DeadlineExceeded) {
		return fmt.Errorf("%w: feed did not change state within %s", ErrScrapeTimeout, s.cfg.WaitTimeout)
	}
	return fmt.Errorf("wait for feed: %w", first)
}

// awaitSettled polls the feed state until it is no longer loading.
func (s *Scraper) awaitSettled(ctx context.Context, history browser.Element) (FeedState, error) {
	var state FeedState
	err := s.poll(ctx, "feed loading", func(ctx context.Context) (bool, error) {
		value, _, err := history.Attr(ctx, s.cfg.Selectors.HistoryState)
		if err != nil {
			return false, fmt.Errorf("read feed state: %w", err)
		}
		state = FeedState(value)
		return state != StateLoading, nil
	})
	return state, err
}

// Scrape returns up to limit events of the feed at url, starting after the
// event with id skip when it is set. A limit below one is unbounded. Results
// are memoized by (url, skip, limit, uuid), pass a fresh uuid to scrape again.
// Concurrent calls with the same key share one scrape, which keeps running
// while at least one of the callers is still waiting for it.
func (s *Scraper) Scrape(ctx context.Context, url, skip string, limit int, uuid string) ([]objects.Event, error) {
	key := cacheKey{url: url, skip: skip, limit: limit, uuid: uuid}
	events, err := s.cache.do(ctx, key, func(ctx context.Context) ([]objects.Event, error) {
		return collect(s.Stream(ctx, url), skip, limit)
	})
	if err != nil {
		s.tel.ReportWarning(report_scraper_scrape, err, url, skip, limit)
		return nil, err
	}
	return events, nil
}

func collect(events iter.Seq2[objects.Event, error], skip string, limit int) ([]objects.Event, error) {
	out := []objects.Event{}
	skipping := skip != ""
	for event, err := range events {
		if err != nil {
			return nil, err
		}
		if skipping {
			skipping = event.ID != skip
			continue
		}
		out = append(out, event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
