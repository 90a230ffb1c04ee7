package objects

import (
	"context"
	"fmt"
	"mailru-backend/internal/mailru/browser"
	"net/url"
	"strings"
)

// GroupItem is a tile of a community list.
type GroupItem struct {
	Link string `json:"link"`
}

// Name returns the short name of the community, the path segment after
// "community", and whether the link points at a community at all.
func (g GroupItem) Name() (string, bool) {
	return CommunityName(g.Link)
}

// CommunityName extracts the short name from a community profile link.
func CommunityName(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == "community" && segments[i+1] != "" {
			return segments[i+1], true
		}
	}
	return "", false
}

func GroupItemFromElement(ctx context.Context, el browser.Element, sel GroupSelectors) (GroupItem, error) {
	anchor, err := el.Query(ctx, sel.Link)
	if err != nil {
		return GroupItem{}, fmt.Errorf("query link: %w", err)
	}
	if anchor == nil {
		return GroupItem{}, nil
	}
	link, _, err := anchor.Attr(ctx, sel.LinkAttr)
	if err != nil {
		return GroupItem{}, fmt.Errorf("read link: %w", err)
	}
	return GroupItem{Link: link}, nil
}
