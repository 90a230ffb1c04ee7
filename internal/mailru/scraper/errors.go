package scraper

import (
	"errors"
	"fmt"
	"mailru-backend/internal/mailru/session"
)

var (
	// ErrCookie is returned when a scrape is attempted by a session without
	// authenticated cookies.
	ErrCookie = errors.New("scraper: session has no cookies")

	// ErrEmptyObjects is returned by a fan-out that produced no results.
	ErrEmptyObjects = errors.New("scraper: no objects")
	ErrEmptyGroups  = fmt.Errorf("%w: no groups", ErrEmptyObjects)

	// ErrScraper matches every failure of a DOM driven workflow.
	ErrScraper = errors.New("scraper error")
	// ErrScrapeAction is returned when an action never reached the state it should produce.
	ErrScrapeAction = fmt.Errorf("%w: action failed", ErrScraper)
	// ErrScrapeTimeout is returned when the page never left a transient state.
	ErrScrapeTimeout = fmt.Errorf("%w: timed out", ErrScraper)

	ErrNoProfile = errors.New("scraper: no such profile")
	ErrNotGroup  = errors.New("scraper: profile is not a community")
)

const emptyObjectsCode = -1

// errorPayload renders err the way the API reports errors, for sessions
// that pass errors to the caller.
func errorPayload(err error) map[string]any {
	return session.APIError{Code: emptyObjectsCode, Message: err.Error()}.Payload()
}
