package scraper

import (
	"context"
	"fmt"
	"mailru-backend/internal/mailru/cookie"
	"mailru-backend/internal/mailru/objects"
	"mailru-backend/internal/mailru/session"
	"mailru-backend/internal/telemetry"
	"mailru-backend/internal/testutil"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	aliceUid  = "100"
	aliceLink = "https://my.mail.ru/mail/alice/"
)

type fakeSession struct {
	mu          sync.Mutex
	cookies     []cookie.Cookie
	passError   bool
	profiles    map[string]map[string]any
	communities map[string]string
	failing     map[string]bool
	requests    []session.Params
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		cookies: []cookie.Cookie{{Name: "Mpop", Value: "token", Domain: ".mail.ru", Path: "/"}},
		profiles: map[string]map[string]any{
			aliceUid: {"uid": aliceUid, "link": aliceLink},
		},
		communities: map[string]string{},
		failing:     map[string]bool{},
	}
}

func (f *fakeSession) addCommunity(uid, name string) {
	f.profiles[uid] = map[string]any{
		"uid":  uid,
		"link": fmt.Sprintf("https://my.mail.ru/community/%s/", name),
	}
	f.communities[name] = uid
}

func (f *fakeSession) Request(ctx context.Context, params session.Params) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, params.Clone())

	method, _ := params.String("method")
	switch method {
	case methodUsersGetInfo:
		uid, _ := params.String("uids")
		if f.failing[uid] {
			return nil, session.APIError{Code: 202, Message: "access denied"}
		}
		profile, ok := f.profiles[uid]
		if !ok {
			return []any{}, nil
		}
		return []any{profile}, nil
	default:
		return map[string]any{"method": method}, nil
	}
}

func (f *fakeSession) PublicRequest(ctx context.Context, segments ...string) (any, error) {
	if len(segments) == 2 && segments[0] == "community" {
		uid, ok := f.communities[segments[1]]
		if ok {
			return map[string]any{"uid": uid}, nil
		}
	}
	return nil, session.APIError{Code: 100, Message: "not found"}
}

func (f *fakeSession) Cookies() []cookie.Cookie {
	return f.cookies
}

func (f *fakeSession) PassError() bool {
	return f.passError
}

func (f *fakeSession) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.requests {
		method, _ := p.String("method")
		out = append(out, method)
	}
	return out
}

type harness struct {
	scraper *Scraper
	session *fakeSession
	browser *testutil.FakeBrowser
	clock   *testutil.FakeClock
	metrics *telemetry.Metrics
}

func newHarness(t testing.TB, cfg Config) harness {
	h := harness{
		session: newFakeSession(),
		browser: testutil.NewFakeBrowser(),
		clock:   testutil.NewFakeClock(time.Unix(1561532419, 0)),
		metrics: telemetry.NewMetrics(),
	}
	h.scraper = New(Options{
		Session: h.session,
		Browser: h.browser,
		Config:  cfg,
		Time:    h.clock,
		Metrics: h.metrics,
	}, telemetry.NoopAPI{})
	return h
}

func (h harness) serve(t testing.TB, url, document string) *testutil.FakePage {
	page, err := testutil.NewFakePage(url, document)
	require.NoError(t, err)
	h.browser.Serve(url, page)
	return page
}

const historySelector = `div[data-mru-fragment="home/history"]`

func entry(id string, ts int) string {
	return fmt.Sprintf(`<div class="b-history-event" data-astat="1:5-41:%s:1:0::0:0:%d">`+
		`<div class="b-history_event_active-area_shift"><div class="b-history-event__body">`+
		`<div class="b-history-event__event-textbox2">post %s</div></div></div></div>`, id, ts, id)
}

// serveFeed serves a feed that reveals one batch per scroll and reports
// noevents on the scroll after the last batch.
func (h harness) serveFeed(t testing.TB, url string, batches ...[]string) *testutil.FakePage {
	render := func(ids []string) string {
		var b strings.Builder
		for _, id := range ids {
			b.WriteString(entry(id, 1000))
		}
		return b.String()
	}

	page := h.serve(t, url, `<html><body><div id="boosterCanvas">`+
		`<div data-mru-fragment="home/history" data-state="loaded">`+render(batches[0])+`</div>`+
		`</div></body></html>`)
	page.OnScroll = func(p *testutil.FakePage, n int) {
		if n < len(batches) {
			p.Append(historySelector, render(batches[n]))
			p.SetAttr(historySelector, "data-state", string(StateLoaded))
			return
		}
		p.SetAttr(historySelector, "data-state", string(StateNoEvents))
	}
	return page
}

func ids(t testing.TB, res any) []string {
	events, ok := res.([]objects.Event)
	require.True(t, ok, "%T", res)
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
