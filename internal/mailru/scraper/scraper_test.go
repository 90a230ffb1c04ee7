package scraper

import (
	"context"
	"errors"
	"mailru-backend/internal/mailru/objects"
	"mailru-backend/internal/mailru/session"
	"mailru-backend/internal/telemetry"
	"mailru-backend/internal/testutil"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrapeIsMemoized(t *testing.T) {
	h := newHarness(t, Config{})
	h.serveFeed(t, aliceLink, fiveEvents...)
	ctx := context.Background()

	first, err := h.scraper.Scrape(ctx, aliceLink, "", 2, "a")
	require.NoError(t, err)
	second, err := h.scraper.Scrape(ctx, aliceLink, "", 2, "a")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, h.browser.Opened())

	_, err = h.scraper.Scrape(ctx, aliceLink, "", 2, "b")
	require.NoError(t, err)
	require.Equal(t, 2, h.browser.Opened())

	require.Equal(t, 1.0, promtest.ToFloat64(h.metrics.CacheLookups.WithLabelValues("hit")))
	require.Equal(t, 2.0, promtest.ToFloat64(h.metrics.CacheLookups.WithLabelValues("miss")))
}

func TestCacheDeduplicatesInFlight(t *testing.T) {
	cache := newScrapeCache(8, time.Minute, nil)
	key := cacheKey{url: aliceLink, limit: 1, uuid: "a"}

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	scrape := func(context.Context) ([]objects.Event, error) {
		calls.Add(1)
		close(started)
		<-release
		return []objects.Event{{ID: "e1"}}, nil
	}

	results := make(chan []objects.Event, 2)
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		events, err := cache.do(context.Background(), key, scrape)
		assert.NoError(t, err)
		results <- events
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		events, err := cache.do(context.Background(), key, func(context.Context) ([]objects.Event, error) {
			t.Error("duplicate scrape")
			return nil, nil
		})
		assert.NoError(t, err)
		results <- events
	}()

	close(release)
	wg.Wait()
	close(results)
	for events := range results {
		require.Equal(t, []objects.Event{{ID: "e1"}}, events)
	}
	require.Equal(t, int32(1), calls.Load())
}

func TestCacheOutlivesCancelledCaller(t *testing.T) {
	cache := newScrapeCache(8, time.Minute, nil)
	key := cacheKey{url: aliceLink, limit: 1, uuid: "a"}

	release := make(chan struct{})
	started := make(chan struct{})
	scrape := func(ctx context.Context) ([]objects.Event, error) {
		close(started)
		select {
		case <-release:
			return []objects.Event{{ID: "e1"}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.do(firstCtx, key, scrape)
		firstErr <- err
	}()
	<-started

	second := make(chan []objects.Event, 1)
	go func() {
		events, err := cache.do(context.Background(), key, func(context.Context) ([]objects.Event, error) {
			t.Error("duplicate scrape")
			return nil, nil
		})
		assert.NoError(t, err)
		second <- events
	}()
	require.Eventually(t, func() bool {
		cache.mu.Lock()
		defer cache.mu.Unlock()
		entry, ok := cache.entries.Peek(key)
		return ok && entry.waiters == 2
	}, time.Second, time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	require.Equal(t, []objects.Event{{ID: "e1"}}, <-second)
	require.Equal(t, 1, cache.len())
}

func TestCacheCancelsAbandonedScrape(t *testing.T) {
	cache := newScrapeCache(8, time.Minute, nil)
	key := cacheKey{url: aliceLink, limit: 1, uuid: "a"}

	started := make(chan struct{})
	stopped := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := cache.do(ctx, key, func(ctx context.Context) ([]objects.Event, error) {
		close(started)
		<-ctx.Done()
		stopped <- ctx.Err()
		return nil, ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, <-stopped, context.Canceled)
	require.Equal(t, 0, cache.len())

	events, err := cache.do(context.Background(), key, func(context.Context) ([]objects.Event, error) {
		return []objects.Event{{ID: "e1"}}, nil
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestCacheForgetsFailures(t *testing.T) {
	cache := newScrapeCache(8, time.Minute, nil)
	key := cacheKey{url: aliceLink, limit: 1, uuid: "a"}
	boom := errors.New("boom")

	_, err := cache.do(context.Background(), key, func(context.Context) ([]objects.Event, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, cache.len())

	events, err := cache.do(context.Background(), key, func(context.Context) ([]objects.Event, error) {
		return []objects.Event{{ID: "e1"}}, nil
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, 1, cache.len())
}

func TestCacheIsBounded(t *testing.T) {
	cache := newScrapeCache(2, time.Minute, nil)
	for _, uuid := range []string{"a", "b", "c"} {
		_, err := cache.do(context.Background(), cacheKey{url: aliceLink, uuid: uuid}, func(context.Context) ([]objects.Event, error) {
			return nil, nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 2, cache.len())
}

func TestMulticall(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	var seen []string
	call := func(ctx context.Context, params session.Params) (any, error) {
		id, _ := params.String("uids")
		seen = append(seen, id)
		if id == "2" {
			return nil, ErrNotGroup
		}
		return id, nil
	}

	res, err := h.scraper.Multicall(ctx, "uids", session.Params{"uids": "1,2,3"}, ErrEmptyObjects, call)
	require.NoError(t, err)
	require.Equal(t, []any{"1", "3"}, res)
	require.Equal(t, []string{"1", "2", "3"}, seen)
	require.Equal(t, 1.0, promtest.ToFloat64(h.metrics.FanOutFailures.WithLabelValues("ignored")))

	seen = nil
	_, err = h.scraper.Multicall(ctx, "uids", session.Params{"uids": "2, 2 ,2"}, ErrEmptyObjects, call)
	require.ErrorIs(t, err, ErrEmptyObjects)
	require.Equal(t, []string{"2", "2", "2"}, seen)

	res, err = h.scraper.Multicall(ctx, "uids", session.Params{"uids": ""}, ErrEmptyObjects, call)
	require.NoError(t, err)
	require.Equal(t, []any{}, res)

	boom := errors.New("boom")
	seen = nil
	_, err = h.scraper.Multicall(ctx, "uids", session.Params{"uids": "1,4,3"}, ErrEmptyObjects,
		func(ctx context.Context, params session.Params) (any, error) {
			id, _ := params.String("uids")
			seen = append(seen, id)
			if id == "4" {
				return nil, boom
			}
			return []any{id, id}, nil
		})
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"1", "4"}, seen)
}

func TestGroupsGetInfo(t *testing.T) {
	h := newHarness(t, Config{})
	h.session.addCommunity("1", "gophers")
	h.session.addCommunity("3", "rustaceans")
	ctx := context.Background()

	// uid 100 is a user, uid 2 does not exist
	res, err := h.scraper.Call(ctx, "groups.getInfo", session.Params{"uids": "1,100,2,3"})
	require.NoError(t, err)
	groups, ok := res.([]any)
	require.True(t, ok)
	require.Len(t, groups, 2)
	require.Equal(t, "1", groups[0].(map[string]any)["uid"])
	require.Equal(t, "3", groups[1].(map[string]any)["uid"])

	_, err = h.scraper.Call(ctx, "groups.getInfo", session.Params{"uids": "100,2"})
	require.ErrorIs(t, err, ErrEmptyGroups)
	require.ErrorIs(t, err, ErrEmptyObjects)

	h.session.failing["3"] = true
	_, err = h.scraper.Call(ctx, "groups.getInfo", session.Params{"uids": "1,3"})
	require.ErrorIs(t, err, session.ErrAPI)
}

func TestGroupsGetInfoPassError(t *testing.T) {
	h := newHarness(t, Config{})
	h.session.passError = true

	res, err := h.scraper.Call(context.Background(), "groups.getInfo", session.Params{"uids": "100,2"})
	require.NoError(t, err)
	require.Equal(t, session.APIError{Code: emptyObjectsCode, Message: ErrEmptyGroups.Error()}.Payload(), res)
}

const groupsLink = aliceLink + "groups"

func tile(name string) string {
	return `<div class="groups-catalog__item"><a class="groups-catalog__item-link" href="https://my.mail.ru/community/` +
		name + `/">` + name + `</a></div>`
}

func TestGroupsGet(t *testing.T) {
	h := newHarness(t, Config{})
	h.session.addCommunity("101", "g1")
	h.session.addCommunity("102", "g2")
	h.session.addCommunity("103", "g3")

	page := h.serve(t, groupsLink, `<html><body>`+
		`<div class="groups-catalog">`+tile("g1")+tile("g2")+`</div>`+
		`<div class="groups-catalog__more"><button>more</button></div>`+
		`</body></html>`)
	page.OnClick[objects.DefaultGroupShowMore] = func(p *testutil.FakePage, n int) {
		p.Append("div.groups-catalog", tile("g3")+`<div class="groups-catalog__item"><a class="groups-catalog__item-link" href="https://my.mail.ru/mail/bob/">bob</a></div>`)
		p.Append("body", `<div class="groups-catalog_nomore"></div>`)
	}

	res, err := h.scraper.Call(context.Background(), "groups.get", session.Params{"uid": aliceUid})
	require.NoError(t, err)
	groups, ok := res.([]any)
	require.True(t, ok)
	var uids []any
	for _, g := range groups {
		uids = append(uids, g.(map[string]any)["uid"])
	}
	require.Equal(t, []any{"101", "102", "103"}, uids)
	require.Equal(t, 1, page.Clicks(objects.DefaultGroupShowMore))

	res, err = h.scraper.Call(context.Background(), "groups.get", session.Params{"uid": aliceUid, "offset": 1, "limit": 1})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "102", res.([]any)[0].(map[string]any)["uid"])
}

const communityLink = "https://my.mail.ru/community/gophers/"

func (h harness) serveCommunity(t testing.TB, markers string) *testutil.FakePage {
	h.session.addCommunity("1", "gophers")
	return h.serve(t, communityLink, `<html><body>`+markers+`</body></html>`)
}

const joinMarkers = `<span class="profile__join-button">join</span>` +
	`<span class="profile__join-pending" hidden>pending</span>` +
	`<span class="profile__join-approved" hidden>member</span>`

func TestJoinExhaustsAttempts(t *testing.T) {
	h := newHarness(t, Config{})
	page := h.serveCommunity(t, joinMarkers)

	_, err := h.scraper.Call(context.Background(), "groups.join", session.Params{"group_id": 1})
	require.ErrorIs(t, err, ErrScrapeAction)
	require.ErrorIs(t, err, ErrScraper)
	require.Equal(t, 10, page.Clicks(objects.DefaultJoinButton))
	require.Len(t, h.clock.Sleeps(), 10)
	for _, d := range h.clock.Sleeps() {
		require.Equal(t, time.Second, d)
	}
	require.Equal(t, 10.0, promtest.ToFloat64(h.metrics.JoinAttempts))
}

func TestJoinPending(t *testing.T) {
	h := newHarness(t, Config{JoinAttempts: 5, JoinInterval: 2 * time.Second})
	page := h.serveCommunity(t, joinMarkers)
	page.OnClick[objects.DefaultJoinButton] = func(p *testutil.FakePage, n int) {
		if n == 2 {
			p.RemoveAttr(objects.DefaultJoinPending, "hidden")
			p.SetAttr(objects.DefaultJoinButton, "hidden", "")
		}
	}

	res, err := h.scraper.Call(context.Background(), "groups.join", session.Params{"group_id": "1"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"group_id": "1", "state": string(JoinPending)}, res)
	require.Equal(t, 2, page.Clicks(objects.DefaultJoinButton))
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, h.clock.Sleeps())
}

func TestJoinWaitsWhileButtonIsGone(t *testing.T) {
	h := newHarness(t, Config{JoinAttempts: 5})
	page := h.serveCommunity(t, joinMarkers)
	page.OnClick[objects.DefaultJoinButton] = func(p *testutil.FakePage, n int) {
		p.SetAttr(objects.DefaultJoinButton, "hidden", "")
	}
	h.clock.OnSleep = func(n int) {
		if n == 3 {
			page.RemoveAttr(objects.DefaultJoinPending, "hidden")
		}
	}

	state, err := h.scraper.Join(context.Background(), communityLink)
	require.NoError(t, err)
	require.Equal(t, JoinPending, state)
	require.Equal(t, 1, page.Clicks(objects.DefaultJoinButton))
	require.Len(t, h.clock.Sleeps(), 3)
	require.Equal(t, 1.0, promtest.ToFloat64(h.metrics.JoinAttempts))
}

func TestJoinGivesUpWhileButtonIsGone(t *testing.T) {
	h := newHarness(t, Config{JoinAttempts: 3})
	page := h.serveCommunity(t, joinMarkers)
	page.OnClick[objects.DefaultJoinButton] = func(p *testutil.FakePage, n int) {
		p.SetAttr(objects.DefaultJoinButton, "hidden", "")
	}

	_, err := h.scraper.Join(context.Background(), communityLink)
	require.ErrorIs(t, err, ErrScrapeAction)
	require.Equal(t, 1, page.Clicks(objects.DefaultJoinButton))
	require.Len(t, h.clock.Sleeps(), 3)
}

func TestClickIsBounded(t *testing.T) {
	h := newHarness(t, Config{WaitTimeout: 10 * time.Millisecond})
	page := h.serveCommunity(t, `<span class="profile__join-button" hidden>join</span>`)

	err := h.scraper.click(context.Background(), page, objects.DefaultJoinButton)
	require.ErrorIs(t, err, ErrScrapeTimeout)
	require.Equal(t, 0, page.Clicks(objects.DefaultJoinButton))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = h.scraper.click(ctx, page, objects.DefaultJoinButton)
	require.ErrorIs(t, err, context.Canceled)
}

func TestJoinAlreadyMember(t *testing.T) {
	h := newHarness(t, Config{})
	page := h.serveCommunity(t, `<span class="profile__join-approved">member</span>`)

	state, err := h.scraper.Join(context.Background(), communityLink)
	require.NoError(t, err)
	require.Equal(t, JoinMember, state)
	require.Equal(t, 0, page.Clicks(objects.DefaultJoinButton))
}

func TestJoinWithoutButton(t *testing.T) {
	h := newHarness(t, Config{})
	h.serveCommunity(t, `<span>closed community</span>`)

	_, err := h.scraper.Join(context.Background(), communityLink)
	require.ErrorIs(t, err, ErrScrapeAction)
}

func TestJoinRejectsUsers(t *testing.T) {
	h := newHarness(t, Config{})

	_, err := h.scraper.Call(context.Background(), "groups.join", session.Params{"group_id": aliceUid})
	require.ErrorIs(t, err, ErrNotGroup)
	require.Equal(t, 0, h.browser.Opened())
}

func TestLookup(t *testing.T) {
	for method, op := range map[string]Operation{
		"stream.getByAuthor": OpStreamGetByAuthor,
		"groups.get":         OpGroupsGet,
		"groups.getInfo":     OpGroupsGetInfo,
		"groups.join":        OpGroupsJoin,
		"users.getInfo":      OpREST,
		"stream":             OpREST,
	} {
		require.Equal(t, op, Lookup(method), method)
	}
	require.Equal(t, "groups.join", OpGroupsJoin.String())
	require.Equal(t, "rest", OpREST.String())
}

func TestCallFallsBackToREST(t *testing.T) {
	h := newHarness(t, Config{})

	res, err := h.scraper.Method("friends").Sub("get").Call(context.Background(), session.Params{"uid": 1})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"method": "friends.get"}, res)
	require.Equal(t, []string{"friends.get"}, h.session.methods())

	_, err = h.scraper.Call(context.Background(), "friends..get", nil)
	require.Error(t, err)
}

func TestNewAppliesDefaults(t *testing.T) {
	s := New(Options{
		Session: newFakeSession(),
		Browser: testutil.NewFakeBrowser(),
	}, telemetry.NoopAPI{})
	require.Equal(t, DefaultConfig().JoinAttempts, s.cfg.JoinAttempts)
	require.Equal(t, DefaultSelectors(), s.cfg.Selectors)
	require.NotNil(t, s.time)
}

func TestPartialSelectorsKeepDefaults(t *testing.T) {
	cfg := Config{Selectors: Selectors{
		History: "div.custom-feed",
		Event:   objects.EventSelectors{Text: "p.custom-text"},
	}}.withDefaults()

	expected := DefaultSelectors()
	expected.History = "div.custom-feed"
	expected.Event.Text = "p.custom-text"
	require.Equal(t, expected, cfg.Selectors)
	require.Equal(t, objects.DefaultHistoryEvent, cfg.Selectors.HistoryEvent)
	require.Equal(t, objects.DefaultJoinButton, cfg.Selectors.JoinButton)
	require.NotEmpty(t, cfg.Selectors.Event.AstatAttr)
	require.Equal(t, objects.DefaultGroupSelectors(), cfg.Selectors.Group)
}

func TestPartialSelectorsDriveTheFeed(t *testing.T) {
	h := newHarness(t, Config{Selectors: Selectors{History: "div.custom-feed"}})
	page := h.serve(t, aliceLink, `<html><body><div class="custom-feed" data-state="noevents">`+
		entry("e1", 1000)+entry("e2", 1000)+`</div></body></html>`)

	events, err := h.scraper.Scrape(context.Background(), aliceLink, "", 0, "a")
	require.NoError(t, err)
	require.Equal(t, []string{"e1", "e2"}, ids(t, events))
	require.Equal(t, 1, page.Scrolls())
}
