// Package objects normalizes feed entries and community tiles of the
// rendered site into API shaped records.
package objects

import (
	"context"
	"fmt"
	"mailru-backend/internal/mailru/browser"
	"slices"
	"strings"
)

var (
	clickableTypes = []string{"1-1", "3-23", "5-39", "5-41"}
	statusType     = "3-23"
)

type Author struct {
	Link string `json:"link"`
}

// LinkContent is the content of a "link" text media entry.
type LinkContent struct {
	TypeID   string `json:"type-id"`
	Contents string `json:"contents"`
}

// Media is an entry of Event.TextMedia, Content is a LinkContent for links
// and the plain text otherwise.
type Media struct {
	Object  string `json:"object"`
	Content any    `json:"content"`
}

// Event is a feed entry. Like and comment wrappers carry the target in
// Subevent and leave Type empty.
type Event struct {
	ID            string   `json:"id"`
	Time          int64    `json:"time,omitempty"`
	Type          string   `json:"type,omitempty"`
	TypeName      string   `json:"type_name,omitempty"`
	Subtype       string   `json:"subtype"`
	Authors       []Author `json:"authors"`
	LikesCount    int      `json:"likes_count"`
	CommentsCount int      `json:"comments_count"`
	IsLikeable    int      `json:"is_likeable"`
	IsCommentable int      `json:"is_commentable"`
	UserText      string   `json:"user_text"`
	ClickURL      string   `json:"click_url,omitempty"`
	TextMedia     []Media  `json:"text_media,omitempty"`
	Subevent      *Event   `json:"subevent,omitempty"`
}

// Author returns the link of the first author, if any.
func (e Event) Author() string {
	if len(e.Authors) == 0 {
		return ""
	}
	return e.Authors[0].Link
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// EventFromElement builds an Event from a feed entry node.
func EventFromElement(ctx context.Context, el browser.Element, sel EventSelectors) (Event, error) {
	raw, ok, err := el.Attr(ctx, sel.AstatAttr)
	if err != nil {
		return Event{}, fmt.Errorf("read astat: %w", err)
	}
	if !ok {
		return Event{}, fmt.Errorf("%w: entry has no %s attribute", ErrAstat, sel.AstatAttr)
	}
	astat, err := ParseAstat(raw)
	if err != nil {
		return Event{}, err
	}

	comments, err := el.Query(ctx, sel.Comments)
	if err != nil {
		return Event{}, fmt.Errorf("query comments: %w", err)
	}
	hasComments := flag(comments != nil)

	if astat.Subtype() == SubtypeEvent {
		event := Event{
			ID:            astat.ID(),
			Time:          astat.Time(),
			Type:          astat.Type(),
			TypeName:      astat.TypeName(),
			Subtype:       astat.Subtype(),
			LikesCount:    astat.LikesCount,
			CommentsCount: astat.CommentsCount,
			IsLikeable:    hasComments,
			IsCommentable: hasComments,
		}
		body, err := el.Query(ctx, sel.Event)
		if err != nil {
			return Event{}, fmt.Errorf("query event body: %w", err)
		}
		err = fillBody(ctx, &event, body, sel)
		if err != nil {
			return Event{}, err
		}
		return event, nil
	}

	subevent := Event{
		ID:            strings.ToLower(astat.CorrEventID),
		Type:          astat.CorrType(),
		TypeName:      astat.CorrTypeName(),
		Subtype:       SubtypeEvent,
		LikesCount:    astat.LikesCount,
		CommentsCount: astat.CommentsCount,
		IsLikeable:    hasComments,
		IsCommentable: hasComments,
	}
	body, err := el.Query(ctx, sel.Subevent)
	if err != nil {
		return Event{}, fmt.Errorf("query subevent body: %w", err)
	}
	err = fillBody(ctx, &subevent, body, sel)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:       astat.ID(),
		Time:     astat.Time(),
		Subtype:  astat.Subtype(),
		Authors:  []Author{},
		Subevent: &subevent,
	}, nil
}

// fillBody scrapes authors, click url and text of the event body node.
func fillBody(ctx context.Context, event *Event, body browser.Element, sel EventSelectors) error {
	event.Authors = []Author{{}}
	if body == nil {
		return nil
	}

	link, err := attrOf(ctx, body, sel.Controls, sel.Author, sel.AuthorAttr)
	if err != nil {
		return fmt.Errorf("author: %w", err)
	}
	event.Authors[0].Link = link

	if slices.Contains(clickableTypes, event.Type) {
		event.ClickURL, err = attrOf(ctx, body, sel.URL, sel.URL, "href")
		if err != nil {
			return fmt.Errorf("click url: %w", err)
		}
	}

	if event.Type == statusType {
		return fillStatus(ctx, event, body, sel)
	}

	text, err := body.Query(ctx, sel.Text)
	if err != nil {
		return fmt.Errorf("query text: %w", err)
	}
	if text != nil {
		event.UserText, err = text.Text(ctx)
		if err != nil {
			return fmt.Errorf("text: %w", err)
		}
	}
	return nil
}

// attrOf reads attr of the node at selector when guard matches something.
func attrOf(ctx context.Context, el browser.Element, guard, selector, attr string) (string, error) {
	g, err := el.Query(ctx, guard)
	if err != nil || g == nil {
		return "", err
	}
	node, err := el.Query(ctx, selector)
	if err != nil || node == nil {
		return "", err
	}
	value, _, err := node.Attr(ctx, attr)
	return value, err
}

// fillStatus replaces link texts with their targets in micropost text and
// records one media entry per link plus the final text.
func fillStatus(ctx context.Context, event *Event, body browser.Element, sel EventSelectors) error {
	status, err := body.Query(ctx, sel.Status)
	if err != nil {
		return fmt.Errorf("query status: %w", err)
	}
	if status == nil {
		return nil
	}
	text, err := status.Text(ctx)
	if err != nil {
		return fmt.Errorf("status text: %w", err)
	}
	links, err := body.QueryAll(ctx, sel.Links)
	if err != nil {
		return fmt.Errorf("query links: %w", err)
	}

	media := make([]Media, 0, len(links)+1)
	for _, link := range links {
		href, _, err := link.Attr(ctx, "href")
		if err != nil {
			return fmt.Errorf("link href: %w", err)
		}
		linkText, err := link.Text(ctx)
		if err != nil {
			return fmt.Errorf("link text: %w", err)
		}
		if linkText != "" {
			text = strings.ReplaceAll(text, linkText, href)
		}
		media = append(media, Media{
			Object:  "link",
			Content: LinkContent{TypeID: "text", Contents: href},
		})
	}
	event.UserText = text
	event.TextMedia = append(media, Media{Object: "text", Content: text})
	return nil
}
