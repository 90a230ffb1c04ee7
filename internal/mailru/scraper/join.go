package scraper

import (
	"context"
	"fmt"
	"mailru-backend/internal/mailru/browser"
)

// JoinState is the membership of the session user in a community.
type JoinState string

const (
	JoinNone     JoinState = ""
	JoinJoinable JoinState = "joinable"
	JoinPending  JoinState = "pending"
	JoinMember   JoinState = "member"
)

func (j JoinState) terminal() bool {
	return j == JoinPending || j == JoinMember
}

// Join requests membership in the community at url. It succeeds as soon
// as the request is pending or accepted, and fails with ErrScrapeAction
// when neither shows up after the configured number of attempts.
func (s *Scraper) Join(ctx context.Context, url string) (JoinState, error) {
	unlock := s.lockPage(url)
	defer unlock()

	page, err := s.page(ctx, url)
	if err != nil {
		return JoinNone, err
	}

	state, err := s.joinState(ctx, page)
	if err != nil {
		return JoinNone, err
	}
	if state.terminal() {
		return state, nil
	}
	if state != JoinJoinable {
		err := fmt.Errorf("%w: no join button at %s", ErrScrapeAction, url)
		s.tel.ReportWarning(report_scraper_join, err)
		return JoinNone, err
	}

	for attempt := 1; attempt <= s.cfg.JoinAttempts; attempt++ {
		// The button can disappear before the pending marker shows up, only
		// press it while it is there.
		if state == JoinJoinable {
			err = s.click(ctx, page, s.cfg.Selectors.JoinButton)
			if err != nil {
				return JoinNone, fmt.Errorf("click join: %w", err)
			}
			s.metrics.IncJoinAttempts()
		}

		err = s.time.Sleep(ctx, s.cfg.JoinInterval)
		if err != nil {
			return JoinNone, err
		}
		state, err = s.joinState(ctx, page)
		if err != nil {
			return JoinNone, err
		}
		if state.terminal() {
			s.tel.ReportDebug("joined", url, string(state), attempt)
			return state, nil
		}
	}

	err = fmt.Errorf("%w: join %s not confirmed after %d attempts", ErrScrapeAction, url, s.cfg.JoinAttempts)
	s.tel.ReportBroken(report_scraper_join, err)
	return JoinNone, err
}

// joinState checks the three mutually exclusive membership markers.
func (s *Scraper) joinState(ctx context.Context, page browser.Page) (JoinState, error) {
	sel := s.cfg.Selectors
	for _, marker := range []struct {
		selector string
		state    JoinState
	}{
		{sel.JoinApproved, JoinMember},
		{sel.JoinPending, JoinPending},
		{sel.JoinButton, JoinJoinable},
	} {
		visible, err := page.Visible(ctx, marker.selector)
		if err != nil {
			return JoinNone, fmt.Errorf("check %s: %w", marker.state, err)
		}
		if visible {
			return marker.state, nil
		}
	}
	return JoinNone, nil
}
