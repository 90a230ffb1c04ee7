package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const fixture = `<html><body>
<div id="feed" data-state="loaded">
	<div class="item" data-id="a"><span>first</span></div>
</div>
<button id="more">more</button>
<div style="display: none"><button id="hidden">hidden</button></div>
<button id="gone" hidden>gone</button>
</body></html>`

func TestFakePageQueries(t *testing.T) {
	ctx := context.Background()
	page, err := NewFakePage("https://my.mail.ru/mail/alice", fixture)
	require.NoError(t, err)

	feed, err := page.Query(ctx, "#feed")
	require.NoError(t, err)
	require.NotNil(t, feed)

	items, err := feed.QueryAll(ctx, "div.item")
	require.NoError(t, err)
	require.Len(t, items, 1)

	id, ok, err := items[0].Attr(ctx, "data-id")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", id)

	text, err := items[0].Text(ctx)
	require.NoError(t, err)
	require.Equal(t, "first", text)

	missing, err := feed.Query(ctx, "div.nothing")
	require.NoError(t, err)
	require.Nil(t, missing)

	page.Append("#feed", `<div class="item" data-id="b"></div>`)
	items, err = feed.QueryAll(ctx, "div.item")
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestFakePageVisibility(t *testing.T) {
	ctx := context.Background()
	page, err := NewFakePage("", fixture)
	require.NoError(t, err)

	for selector, expected := range map[string]bool{
		"#more":    true,
		"#hidden":  false,
		"#gone":    false,
		"#missing": false,
	} {
		visible, err := page.Visible(ctx, selector)
		require.NoError(t, err)
		require.Equal(t, expected, visible, selector)
	}
}

func TestFakePageHooks(t *testing.T) {
	ctx := context.Background()
	page, err := NewFakePage("", fixture)
	require.NoError(t, err)

	page.OnClick["#more"] = func(p *FakePage, n int) {
		p.SetAttr("#feed", "data-state", "noevents")
	}
	require.NoError(t, page.Click(ctx, "#more"))
	require.Equal(t, 1, page.Clicks("#more"))

	blocked, cancelBlocked := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancelBlocked()
	require.ErrorIs(t, page.Click(blocked, "#missing"), context.DeadlineExceeded)
	require.Equal(t, 0, page.Clicks("#missing"))

	go func() {
		time.Sleep(5 * time.Millisecond)
		page.RemoveAttr("#gone", "hidden")
	}()
	revealed, cancelRevealed := context.WithTimeout(ctx, time.Second)
	defer cancelRevealed()
	require.NoError(t, page.Click(revealed, "#gone"))
	require.Equal(t, 1, page.Clicks("#gone"))

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, page.WaitFor(waitCtx, `#feed[data-state="noevents"]`))

	shortCtx, cancelShort := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancelShort()
	require.ErrorIs(t, page.WaitFor(shortCtx, `#feed[data-state="loading"]`), context.DeadlineExceeded)

	page.Scripts["1 + 1"] = 2
	var out int
	require.NoError(t, page.Evaluate(ctx, "1 + 1", &out))
	require.Equal(t, 2, out)
	require.Error(t, page.Evaluate(ctx, "unknown()", nil))
}
